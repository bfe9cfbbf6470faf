// Package ratelimit limits how often a single caller may request artifacts.
package ratelimit

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/darmiel/kartei/internal/core"
)

// maxTrackedCallers bounds the limiter table; idle callers are evicted first.
const maxTrackedCallers = 50_000

// Limiter is the component injected into the issuance service.
type Limiter interface {
	// Allow returns a RateLimitedError when the caller exceeded its budget.
	Allow(callerID string) error
}

// PerCaller keeps one token bucket per caller.
type PerCaller struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	mu       sync.Mutex
	limiters *lru.Cache[string, *rate.Limiter]
}

func NewPerCaller(perSecond float64, burst int) *PerCaller {
	if burst < 1 {
		burst = 1
	}
	limiters, _ := lru.New[string, *rate.Limiter](maxTrackedCallers)
	return &PerCaller{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		now:      time.Now,
		limiters: limiters,
	}
}

func (p *PerCaller) limiter(callerID string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	if l, ok := p.limiters.Get(callerID); ok {
		return l
	}
	l := rate.NewLimiter(p.limit, p.burst)
	p.limiters.Add(callerID, l)
	return l
}

func (p *PerCaller) Allow(callerID string) error {
	now := p.now()
	r := p.limiter(callerID).ReserveN(now, 1)
	if !r.OK() {
		return &core.RateLimitedError{}
	}
	delay := r.DelayFrom(now)
	if delay == 0 {
		return nil
	}
	// give the token back; the caller is told when to retry instead of waiting
	r.CancelAt(now)
	return &core.RateLimitedError{RetryAfter: delay}
}

// Unlimited never rejects.
type Unlimited struct{}

func (Unlimited) Allow(string) error {
	return nil
}

// New returns Unlimited for a non-positive rate.
func New(perSecond float64, burst int) Limiter {
	if perSecond <= 0 {
		return Unlimited{}
	}
	return NewPerCaller(perSecond, burst)
}
