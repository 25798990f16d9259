package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kasiviral/kasiviral-backend/pkg/redis"
)

const (
	claimPending = "pending"
	claimDone    = "done"

	// defaultProcessingTTL bounds how long a crashed delivery can hold an event.
	defaultProcessingTTL = 5 * time.Minute
)

// ErrEventInFlight reports that another delivery of the same event is still being applied.
var ErrEventInFlight = errors.New("stripe event is already being processed")

// EventGuard records Stripe event ids in two phases. Claim writes a short
// pending marker; Complete replaces it with a done marker kept for ttl.
// Release drops the marker so Stripe's retry can apply the event.
type EventGuard struct {
	store         redis.IdempotencyStore
	ttl           time.Duration
	processingTTL time.Duration
	scope         string
}

// NewEventGuard builds a guard scoped under the idempotency namespace.
func NewEventGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*EventGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	scope = strings.TrimSpace(scope)
	if scope == "" {
		return nil, errors.New("scope is required")
	}
	processing := defaultProcessingTTL
	if ttl > 0 && ttl < processing {
		processing = ttl
	}
	return &EventGuard{store: store, ttl: ttl, processingTTL: processing, scope: scope}, nil
}

func (g *EventGuard) key(eventID string) (string, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return "", errors.New("event id is required")
	}
	return g.store.IdempotencyKey(g.scope, eventID), nil
}

// Claim returns true when this delivery should apply the event, false when it
// was already applied, and ErrEventInFlight while another delivery holds it.
func (g *EventGuard) Claim(ctx context.Context, eventID string) (bool, error) {
	key, err := g.key(eventID)
	if err != nil {
		return false, err
	}
	for attempt := 0; attempt < 2; attempt++ {
		won, err := g.store.SetNX(ctx, key, claimPending, g.processingTTL)
		if err != nil {
			return false, fmt.Errorf("claim stripe event: %w", err)
		}
		if won {
			return true, nil
		}
		state, err := g.store.Get(ctx, key)
		switch {
		case errors.Is(err, goredis.Nil) || (err == nil && state == ""):
			// expired between SETNX and GET; contend again
			continue
		case err != nil:
			return false, fmt.Errorf("read stripe event claim: %w", err)
		case state == claimPending:
			return false, ErrEventInFlight
		default:
			return false, nil
		}
	}
	return false, ErrEventInFlight
}

// Complete overwrites the pending claim with the done marker in one write, so
// the key is never absent while the event is being settled.
func (g *EventGuard) Complete(ctx context.Context, eventID string) error {
	key, err := g.key(eventID)
	if err != nil {
		return err
	}
	if err := g.store.Set(ctx, key, claimDone, g.ttl); err != nil {
		return fmt.Errorf("record stripe event: %w", err)
	}
	return nil
}

// Release drops a claim so Stripe's retry can process the event again.
func (g *EventGuard) Release(ctx context.Context, eventID string) error {
	key, err := g.key(eventID)
	if err != nil {
		return err
	}
	return g.store.Del(ctx, key)
}
