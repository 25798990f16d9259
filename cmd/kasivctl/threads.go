package main

import (
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newThreadsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "threads",
		Short: "Generate threads",
	}

	var (
		topic          string
		length         string
		idempotencyKey string
	)
	generate := &cobra.Command{
		Use:   "generate",
		Short: "Generate a thread (requires an active entitlement)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			if idempotencyKey == "" {
				idempotencyKey = uuid.NewString()
			}
			thread, err := client.GenerateThread(cmd.Context(), topic, length, idempotencyKey)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), thread)
		},
	}
	generate.Flags().StringVar(&topic, "topic", "", "thread topic")
	generate.Flags().StringVar(&length, "length", "short", "short, medium or long")
	generate.Flags().StringVar(&idempotencyKey, "idempotency-key", "", "Idempotency-Key header (random when empty)")
	_ = generate.MarkFlagRequired("topic")

	cmd.AddCommand(generate)
	return cmd
}
