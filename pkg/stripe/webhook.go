package stripe

import (
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	pkgerrors "github.com/kasiviral/kasiviral-backend/pkg/errors"
)

// VerifyEvent checks the Stripe-Signature header against the raw payload and
// rejects events from the other mode (a live event hitting a test deployment).
// Events pinned to a different API version are accepted; only the
// subscription fields this service reads need to match.
func (c *Client) VerifyEvent(payload []byte, sigHeader string) (stripe.Event, error) {
	if c == nil {
		return stripe.Event{}, pkgerrors.New(pkgerrors.CodeInternal, "stripe client not configured")
	}
	opts := webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true}
	if c.tolerance > 0 {
		opts.Tolerance = c.tolerance
	}
	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, c.signingSecret, opts)
	if err != nil {
		return stripe.Event{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid stripe signature")
	}
	if event.Livemode != c.Live() {
		return stripe.Event{}, pkgerrors.Newf(pkgerrors.CodeValidation, "stripe event livemode=%t rejected in %s environment", event.Livemode, c.environment)
	}
	return event, nil
}
