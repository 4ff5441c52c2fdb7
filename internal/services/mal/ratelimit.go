package mal

import (
	"context"
	"sync"
	"time"
)

// pacer enforces a minimum spacing between outgoing requests. MAL enforces a
// global per-credential quota, so a single gate is shared by every call the
// client makes, whatever the endpoint.
type pacer struct {
	mu       sync.Mutex
	interval time.Duration
	next     time.Time
}

func newPacer(interval time.Duration) *pacer {
	return &pacer{interval: interval}
}

// wait blocks until the next request slot is available or ctx is done. The
// slot is reserved under the lock before sleeping, so concurrent callers
// queue up instead of both passing the gate at once.
func (p *pacer) wait(ctx context.Context) error {
	p.mu.Lock()
	now := time.Now()
	var delay time.Duration
	if p.next.After(now) {
		delay = p.next.Sub(now)
		p.next = p.next.Add(p.interval)
	} else {
		p.next = now.Add(p.interval)
	}
	p.mu.Unlock()

	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
