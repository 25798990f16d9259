package redis

import (
	"context"
	"time"

	"github.com/kasiviral/kasiviral-backend/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// slowCommandHook warns when a single command exceeds threshold. Keys are not
// logged since idempotency keys embed subject hashes.
type slowCommandHook struct {
	threshold time.Duration
	logg      *logger.Logger
}

func (h slowCommandHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (h slowCommandHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmd)
		if elapsed := time.Since(start); elapsed >= h.threshold {
			h.logg.Warn(h.logg.WithFields(ctx, map[string]any{
				"redis_command": cmd.Name(),
				"elapsed_ms":    elapsed.Milliseconds(),
			}), "redis.slow_command")
		}
		return err
	}
}

func (h slowCommandHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}
