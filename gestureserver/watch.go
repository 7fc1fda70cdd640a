package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/BertoldVdb/GestureResearch/gestureserver/api"
	"github.com/BertoldVdb/GestureResearch/gestureserver/gestureclient"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func WatchCmdRunE(cmd *cobra.Command, args []string) error {
	sensor, _ := cmd.Flags().GetString("sensor")
	user, _ := cmd.Flags().GetString("user")
	password, _ := cmd.Flags().GetString("password")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var c *gestureclient.GestureClient
	var err error

	if len(args) > 0 {
		c, err = gestureclient.NewWithAuth(args[0], user, password)
	} else {
		lookupCtx, cancel := context.WithTimeout(ctx, timeout)
		c, err = gestureclient.DiscoverWithAuth(lookupCtx, sensor, user, password)
		cancel()
	}
	if err != nil {
		return err
	}
	defer c.Close()

	info := c.Info()
	log.Infof("Watching sensor '%s' (rotation %d)", info.Name, info.Rotation)

	var after uint64
	if last, ok, err := c.Last(ctx); err == nil && ok {
		after = last.Seq
	}

	out := cmd.OutOrStdout()
	for ctx.Err() == nil {
		ev, ok, err := c.NextGesture(ctx, after, api.MaxWait)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			log.Warnf("Request failed: %v", err)
			time.Sleep(time.Second)
			continue
		}
		if !ok {
			continue
		}

		if ev.Seq > after+1 && after > 0 {
			log.Warnf("Missed %d gestures", ev.Seq-after-1)
		}
		after = ev.Seq

		fmt.Fprintf(out, "%s %-6s %s\n", ev.Time.Format(time.RFC3339), ev.Gesture, ev.Sensor)
	}

	return nil
}
