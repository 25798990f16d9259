package breaker

import (
	"context"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/kasiviral/kasiviral-backend/pkg/logger"
)

const (
	defaultMaxRequests      = 1
	defaultInterval         = time.Minute
	defaultOpenTimeout      = 30 * time.Second
	defaultFailureThreshold = 5
)

// Options tunes a breaker. Zero values fall back to package defaults.
type Options struct {
	MaxRequests      uint32
	Interval         time.Duration
	OpenTimeout      time.Duration
	FailureThreshold uint32
	// IsSuccessful lets callers exclude expected errors (such as a rejected credential) from tripping.
	IsSuccessful func(err error) bool
}

// New builds a named circuit breaker that logs state transitions.
func New(name string, logg *logger.Logger, opts Options) *gobreaker.CircuitBreaker[any] {
	if opts.MaxRequests == 0 {
		opts.MaxRequests = defaultMaxRequests
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = defaultOpenTimeout
	}
	if opts.FailureThreshold == 0 {
		opts.FailureThreshold = defaultFailureThreshold
	}
	threshold := opts.FailureThreshold

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: opts.MaxRequests,
		Interval:    opts.Interval,
		Timeout:     opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: opts.IsSuccessful,
		OnStateChange: func(name string, from, to gobreaker.State) {
			if logg == nil {
				return
			}
			ctx := logg.WithFields(context.Background(), map[string]any{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
			logg.Warn(ctx, "circuit breaker state changed")
		},
	}
	return gobreaker.NewCircuitBreaker[any](settings)
}
