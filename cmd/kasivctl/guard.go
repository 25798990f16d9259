package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/kasiviral/kasiviral-backend/internal/guard"
)

type guardReport struct {
	State  guard.State    `json:"state"`
	Gated  guard.Decision `json:"gated"`
	Upsell guard.Decision `json:"upsell"`
	Error  string         `json:"error,omitempty"`
}

func newGuardCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "guard",
		Short: "Evaluate dashboard route guards for the caller",
	}
	var subject string
	check := &cobra.Command{
		Use:   "check",
		Short: "Resolve the caller's guard state and print both screen decisions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			session := guard.NewSession(client, nil)
			if strings.TrimSpace(opts.token) == "" {
				session.SignOut()
			} else {
				if subject == "" {
					subject = "cli"
				}
				session.SignIn(subject)
			}

			state := session.Resolve(cmd.Context())
			report := guardReport{
				State:  state,
				Gated:  guard.GatedDecision(state),
				Upsell: guard.UpsellDecision(state),
			}
			if err := session.LastError(); err != nil {
				report.Error = err.Error()
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
	check.Flags().StringVar(&subject, "subject", "", "subject id used as the cache key")
	cmd.AddCommand(check)
	return cmd
}
