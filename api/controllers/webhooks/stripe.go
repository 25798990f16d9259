package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v84"

	"github.com/kasiviral/kasiviral-backend/api/responses"
	stripewebhook "github.com/kasiviral/kasiviral-backend/internal/webhooks/stripe"
	pkgerrors "github.com/kasiviral/kasiviral-backend/pkg/errors"
	"github.com/kasiviral/kasiviral-backend/pkg/logger"
)

const maxWebhookBytes = 64 << 10

type StripeWebhookService interface {
	HandleEvent(ctx context.Context, event *stripe.Event) error
}

type stripeEventGuard interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Complete(ctx context.Context, eventID string) error
	Release(ctx context.Context, eventID string) error
}

type eventVerifier interface {
	VerifyEvent(payload []byte, sigHeader string) (stripe.Event, error)
}

// StripeWebhook applies verified billing events to entitlements. A redelivered
// event is acknowledged with duplicate=true and not applied twice. An event the
// service rejects as invalid is settled and acknowledged with rejected=true;
// any other failure releases its claim so Stripe's retry can land.
func StripeWebhook(svc StripeWebhookService, verifier eventVerifier, guard stripeEventGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil || verifier == nil || guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stripe webhook unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get("Stripe-Signature")
		if sigHeader == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "stripe signature missing"))
			return
		}

		event, err := verifier.VerifyEvent(payload, sigHeader)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{
				"stripe_event_id":   event.ID,
				"stripe_event_type": string(event.Type),
			})
		}

		claimed, err := guard.Claim(ctx, event.ID)
		if errors.Is(err, stripewebhook.ErrEventInFlight) {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "stripe event in flight"))
			return
		}
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if !claimed {
			if logg != nil {
				logg.Info(ctx, "stripe event already processed")
			}
			responses.WriteSuccess(w, map[string]any{"received": true, "duplicate": true})
			return
		}

		if err := svc.HandleEvent(ctx, &event); err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
				settle(ctx, guard, event.ID, logg)
				if logg != nil {
					logg.Warn(logg.WithFields(ctx, pkgerrors.Dump(err).Fields()), "stripe event rejected")
				}
				responses.WriteSuccess(w, map[string]any{"received": true, "rejected": true})
				return
			}
			if releaseErr := guard.Release(ctx, event.ID); releaseErr != nil && logg != nil {
				logg.Error(ctx, "release stripe event claim", releaseErr)
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		settle(ctx, guard, event.ID, logg)
		if logg != nil {
			logg.Info(ctx, "stripe event processed")
		}
		responses.WriteSuccess(w, map[string]any{"received": true})
	}
}

func settle(ctx context.Context, guard stripeEventGuard, eventID string, logg *logger.Logger) {
	if err := guard.Complete(ctx, eventID); err != nil && logg != nil {
		logg.Error(ctx, "record stripe event completion", err)
	}
}
