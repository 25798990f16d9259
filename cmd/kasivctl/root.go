package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kasiviral/kasiviral-backend/pkg/apiclient"
	"github.com/kasiviral/kasiviral-backend/pkg/env"
)

const (
	envAPIURL  = "KASIVIRAL_API_URL"
	envToken   = "KASIVIRAL_TOKEN"
	envTimeout = "KASIVIRAL_CLI_TIMEOUT"
)

type rootOptions struct {
	baseURL string
	token   string
	timeout time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "kasivctl",
		Short:         "Operate the KasiViral API from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.baseURL, "base-url", env.Get(envAPIURL, "http://localhost:8080"), "API base URL")
	cmd.PersistentFlags().StringVar(&opts.token, "token", env.Get(envToken, ""), "bearer token (see mint-token)")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", env.Duration(envTimeout, 30*time.Second), "request timeout")

	cmd.AddCommand(
		newMintTokenCmd(),
		newEntitlementCmd(opts),
		newThreadsCmd(opts),
		newGuardCmd(opts),
	)
	return cmd
}

func (o *rootOptions) client() (*apiclient.Client, error) {
	token := strings.TrimSpace(o.token)
	return apiclient.New(apiclient.Options{
		BaseURL:    o.baseURL,
		HTTPClient: &http.Client{Timeout: o.timeout},
		Token: func(context.Context) (string, error) {
			if token == "" {
				return "", apiclient.ErrSignedOut
			}
			return token, nil
		},
	})
}

func printJSON(w io.Writer, value any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(value); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
