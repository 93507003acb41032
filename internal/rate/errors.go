package rate

import "errors"

var (
	// ErrRateLimited is returned when a fixed-window attempt budget is spent.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps transport failures against the counter store.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
