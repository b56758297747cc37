package boundary

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// limiterPool keeps one token bucket per chat so a chatty conversation
// cannot starve dispatches for the others.
type limiterPool struct {
	mu    sync.Mutex
	m     map[string]*rate.Limiter
	rps   float64
	burst int
}

func (p *limiterPool) get(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.m == nil {
		p.m = make(map[string]*rate.Limiter)
	}
	if l, ok := p.m[key]; ok {
		return l
	}
	rps := p.rps
	if rps <= 0 {
		rps = 5
	}
	burst := p.burst
	if burst <= 0 {
		burst = 10
	}
	l := rate.NewLimiter(rate.Limit(rps), burst)
	p.m[key] = l
	return l
}

// RateLimited wraps a Dispatcher with a per-chat send rate limit. Dispatch
// calls wait for a token or for ctx; leave/delete/invite pass through
// unthrottled since they are user-initiated one-offs.
type RateLimited struct {
	next Dispatcher
	pool limiterPool
}

// NewRateLimited builds the wrapper. rps/burst of zero select defaults.
func NewRateLimited(next Dispatcher, rps float64, burst int) *RateLimited {
	return &RateLimited{next: next, pool: limiterPool{rps: rps, burst: burst}}
}

func (r *RateLimited) DispatchSend(ctx context.Context, req SendRequest) error {
	if err := r.pool.get(req.Chat).Wait(ctx); err != nil {
		return err
	}
	return r.next.DispatchSend(ctx, req)
}

func (r *RateLimited) DispatchLeave(ctx context.Context, chatID string) error {
	return r.next.DispatchLeave(ctx, chatID)
}

func (r *RateLimited) DispatchDelete(ctx context.Context, chatID string, guid uint64) error {
	return r.next.DispatchDelete(ctx, chatID, guid)
}

func (r *RateLimited) DispatchInvite(ctx context.Context, chatID string, recipientKey []byte) error {
	return r.next.DispatchInvite(ctx, chatID, recipientKey)
}
