// Package stripe holds the billing-provider configuration the webhook path
// needs: the signing secret, the price-to-plan table and the environment guard.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kasiviral/kasiviral-backend/pkg/config"
	"github.com/kasiviral/kasiviral-backend/pkg/enums"
	"github.com/kasiviral/kasiviral-backend/pkg/logger"
)

const (
	testEnv = "test"
	liveEnv = "live"
)

var keyPrefixes = map[string][]string{
	testEnv: {"sk_test_", "rk_test_"},
	liveEnv: {"sk_live_", "rk_live_"},
}

var (
	errAPIKeyRequired   = errors.New("stripe api key is required")
	errSecretRequired   = errors.New("stripe webhook secret is required")
	errInvalidStripeEnv = fmt.Errorf("stripe environment must be %q or %q", testEnv, liveEnv)
)

// Client carries the verified Stripe settings for one environment.
type Client struct {
	environment   string
	signingSecret string
	tolerance     time.Duration
	pricePlans    map[string]enums.Plan
}

// NewClient validates that the key matches the environment before accepting any webhook.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errSecretRequired
	}
	if !hasAnyPrefix(apiKey, keyPrefixes[env]) {
		return nil, fmt.Errorf("stripe environment %q requires a key starting with one of %v", env, keyPrefixes[env])
	}

	client := &Client{
		environment:   env,
		signingSecret: secret,
		tolerance:     cfg.SignatureTolerance,
		pricePlans:    pricePlans(cfg),
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"stripe_env":    env,
			"stripe_prices": len(client.pricePlans),
		}), "stripe client initialized")
	}
	return client, nil
}

func pricePlans(cfg config.StripeConfig) map[string]enums.Plan {
	plans := make(map[string]enums.Plan, 2)
	for id, plan := range map[string]enums.Plan{
		cfg.MonthlyPriceID: enums.PlanMonthly,
		cfg.AnnualPriceID:  enums.PlanAnnual,
	} {
		if id = strings.TrimSpace(id); id != "" {
			plans[id] = plan
		}
	}
	return plans
}

// PlanForPrice resolves a configured price id to its subscription plan.
func (c *Client) PlanForPrice(priceID string) (enums.Plan, bool) {
	if c == nil {
		return "", false
	}
	plan, ok := c.pricePlans[strings.TrimSpace(priceID)]
	return plan, ok
}

// Environment reports the normalized Stripe environment in use.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// Live reports whether the client accepts live-mode events.
func (c *Client) Live() bool {
	return c.Environment() == liveEnv
}

func normalizeEnv(raw string) (string, error) {
	env := strings.TrimSpace(strings.ToLower(raw))
	if env == "" {
		return testEnv, nil
	}
	if _, ok := keyPrefixes[env]; !ok {
		return "", errInvalidStripeEnv
	}
	return env, nil
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
