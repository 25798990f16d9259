package redis

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

var errScriptingUnavailable = errors.New("redis scripting unavailable")

// compareAndDelete removes KEYS[1] only while it still holds ARGV[1].
var compareAndDelete = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// CompareAndDelete atomically deletes key if its value equals expected and
// reports whether the key was removed.
func (c *Client) CompareAndDelete(ctx context.Context, key, expected string) (bool, error) {
	if err := c.ready(); err != nil {
		return false, err
	}
	if c.scripter == nil {
		return false, errScriptingUnavailable
	}
	removed, err := compareAndDelete.Run(ctx, c.scripter, []string{key}, expected).Int64()
	if err != nil {
		return false, err
	}
	return removed == 1, nil
}
