package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kasiviral/kasiviral-backend/pkg/auth"
	"github.com/kasiviral/kasiviral-backend/pkg/config"
	"github.com/kasiviral/kasiviral-backend/pkg/env"
)

func newMintTokenCmd() *cobra.Command {
	var (
		payload  auth.TokenPayload
		secret   string
		audience string
		ttl      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "mint-token",
		Short: "Sign a development access token",
		Long: `Sign an HS256 access token shaped like the identity provider's.

Only useful against an API running with KASIVIRAL_IDENTITY_MODE=jwt and the
same secret.

Example:
  kasivctl mint-token --subject user-123 --email dev@example.com`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			token, err := auth.MintToken(config.IdentityConfig{
				JWTSecret: secret,
				Audience:  audience,
			}, time.Now(), ttl, payload)
			if err != nil {
				return fmt.Errorf("mint token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&payload.SubjectID, "subject", "", "subject id (sub claim)")
	cmd.Flags().StringVar(&payload.Email, "email", "", "email claim")
	cmd.Flags().StringVar(&payload.Role, "role", "authenticated", "role claim")
	cmd.Flags().StringVar(&secret, "secret", env.Get(config.EnvIdentityJWTSecret, ""), "HS256 signing secret")
	cmd.Flags().StringVar(&audience, "audience", env.Get(config.EnvIdentityAudience, "authenticated"), "aud claim")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
