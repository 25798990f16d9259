package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newEntitlementCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entitlement",
		Short: "Inspect or change the caller's entitlement",
	}
	cmd.AddCommand(
		newEntitlementMeCmd(opts),
		newEntitlementRegisterCmd(opts),
		newEntitlementActivateCmd(opts),
	)
	return cmd
}

func newEntitlementMeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Show the caller's entitlement, provisioning it on first call",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			view, err := client.Me(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), view)
		},
	}
}

func newEntitlementRegisterCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "register",
		Short: "Provision the caller's default entitlement",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			result, err := client.Register(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
}

func newEntitlementActivateCmd(opts *rootOptions) *cobra.Command {
	var (
		plan string
		days int
	)
	cmd := &cobra.Command{
		Use:   "activate",
		Short: "Activate via the dev-only shortcut route",
		Long: `Activate the caller's entitlement through POST /entitlement/activate.

The route only exists when the API runs with KASIVIRAL_APP_ENV=dev and
KASIVIRAL_FEATURE_ACTIVATION_SHORTCUT=true.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if days <= 0 {
				return fmt.Errorf("--days must be positive")
			}
			client, err := opts.client()
			if err != nil {
				return err
			}
			expiresAt := time.Now().UTC().Add(time.Duration(days) * 24 * time.Hour)
			view, err := client.Activate(cmd.Context(), plan, expiresAt)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), view)
		},
	}
	cmd.Flags().StringVar(&plan, "plan", "monthly", "monthly or annual")
	cmd.Flags().IntVar(&days, "days", 30, "days until expiry")
	return cmd
}
