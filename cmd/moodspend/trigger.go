package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"moodspend/internal/amqp"
)

var errAMQPDisabled = errors.New("AMQP is not configured: set AMQP_URL to reach the recurring-worker")

func triggerCmd() *cobra.Command {
	var requestedBy string

	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Ask the running recurring-worker to process now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if appConfig.AMQPURL == "" {
				return errAMQPDisabled
			}

			client, err := amqp.NewClient(appConfig.AMQPURL, appConfig.AMQPExchange, appConfig.AMQPQueue, appConfig.AMQPEventsQueue)
			if err != nil {
				return fmt.Errorf("connect to AMQP: %w", err)
			}
			defer client.Close()

			id, err := client.PublishProcessTrigger(cmd.Context(), requestedBy)
			if err != nil {
				return fmt.Errorf("publish trigger: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Process trigger %s sent\n", id)
			return nil
		},
	}

	cmd.Flags().StringVar(&requestedBy, "requested-by", "cli", "who asked for the pass, recorded in the worker log")

	return cmd
}
