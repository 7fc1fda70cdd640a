package main

import (
	"fmt"

	"github.com/BertoldVdb/GestureResearch/apds9960"
	"github.com/BertoldVdb/GestureResearch/apds9960/sensoropen"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func DumpCmdRunE(cmd *cobra.Command, args []string) error {
	debug, _ := cmd.Flags().GetBool("debug")
	if debug {
		log.SetLevel(log.DebugLevel)
	}

	// Leave the registers as they are.
	opts := apds9960.DefaultOpts
	opts.Reset = false
	opts.SetDefaults = false

	s, err := sensoropen.OpenSensor(args[0], &opts, driverLog(debug))
	if err != nil {
		return err
	}
	defer s.Close()

	dump, err := s.DumpRegisters()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-12s %-4s | %-4s | %-9s | %3s\n", "REGISTER", "ADDR", "HEX", "BINARY", "DEC")
	for _, v := range dump {
		fmt.Fprintln(out, v)
	}
	return nil
}
