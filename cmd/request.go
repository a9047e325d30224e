package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/trena/core/command"
	"github.com/kilianp07/trena/infra/mqtt"
)

var (
	requestTimeout time.Duration
	requestPayload string
)

var requestCmd = &cobra.Command{
	Use:   "request",
	Short: "Send a measure command through the broker and print the reply",
	RunE:  runRequest,
}

func init() {
	requestCmd.Flags().DurationVarP(&requestTimeout, "timeout", "t", 5*time.Second, "time to wait for the reply")
	requestCmd.Flags().StringVar(&requestPayload, "payload", command.Measure, "command payload")
	rootCmd.AddCommand(requestCmd)
}

func runRequest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
	defer cancel()
	reply, err := mqtt.Request(ctx, cfg.MQTT, requestPayload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), reply)
	return err
}
