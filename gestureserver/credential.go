package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/BertoldVdb/GestureResearch/gestureserver/config"
	"github.com/spf13/cobra"
)

func CredentialCmdRunE(cmd *cobra.Command, args []string) error {
	desc := config.NewGesturedDesc()
	if err := desc.Parse(cmd); err != nil {
		return err
	}

	if desc.Opt.API.APIKey == "" {
		return errors.New("no api_key configured, the API is open")
	}

	valid, _ := cmd.Flags().GetDuration("valid")

	var sensor string
	if len(args) > 0 {
		sensor = args[0]
	}

	user, pass := credentialFor(desc.Opt.API.APIKey, sensor, time.Now().Add(valid))
	fmt.Fprintf(cmd.OutOrStdout(), "user:     %s\npassword: %s\n", user, pass)
	return nil
}
