package command

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

const (
	limiterCacheSize = 4096
	limiterTTL       = 10 * time.Minute
)

// senderLimiter keeps one token bucket per sender. Buckets idle for longer
// than limiterTTL are dropped and start full again.
type senderLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters *lru.LRU[string, *rate.Limiter]
}

// newSenderLimiter returns nil when perSecond is not positive.
func newSenderLimiter(perSecond float64, burst int) *senderLimiter {
	if perSecond <= 0 {
		return nil
	}
	return &senderLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		limiters: lru.NewLRU[string, *rate.Limiter](limiterCacheSize, nil, limiterTTL),
	}
}

func (l *senderLimiter) Allow(sender string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	limiter, ok := l.limiters.Get(sender)
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters.Add(sender, limiter)
	}
	l.mu.Unlock()
	return limiter.Allow()
}
