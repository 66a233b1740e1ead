package fetcher

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// newHostLimiter returns a per-host rate limiter shared by the HTTP
// strategies, so many sources on one host don't hammer it.
func newHostLimiter(r float64) *hostLimiter {
	return &hostLimiter{
		limit:    rate.Limit(r),
		limiters: make(map[string]*rate.Limiter),
	}
}

type hostLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	limiters map[string]*rate.Limiter
}

func (self *hostLimiter) Wait(ctx context.Context, host string) error {
	self.mu.Lock()
	l, ok := self.limiters[host]
	if !ok {
		l = rate.NewLimiter(self.limit, 1)
		self.limiters[host] = l
	}
	self.mu.Unlock()

	if err := l.Wait(ctx); err != nil {
		return fmt.Errorf("fetcher: rate limit wait for %q: %w", host, err)
	}
	return nil
}
