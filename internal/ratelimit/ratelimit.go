package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spaces successive crawl requests.
type Pacer interface {
	Wait(ctx context.Context) error
	SetInterval(d time.Duration)
}

// IntervalPacer enforces a fixed spacing between calls. The first call never
// blocks.
type IntervalPacer struct {
	mu      sync.Mutex
	limiter *rate.Limiter
}

func NewIntervalPacer(interval time.Duration) *IntervalPacer {
	return &IntervalPacer{
		limiter: rate.NewLimiter(intervalToLimit(interval), 1),
	}
}

func (p *IntervalPacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	limiter := p.limiter
	p.mu.Unlock()
	return limiter.Wait(ctx)
}

func (p *IntervalPacer) SetInterval(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.limiter.SetLimit(intervalToLimit(d))
}

func intervalToLimit(d time.Duration) rate.Limit {
	if d <= 0 {
		return rate.Inf
	}
	return rate.Every(d)
}

// JitterPacer spaces calls by a random delay in [min, max) so the crawl does
// not look metronomic. With equal bounds the delay is fixed.
type JitterPacer struct {
	mu         sync.Mutex
	minDelay   time.Duration
	maxDelay   time.Duration
	lastAction time.Time
}

func NewJitterPacer(minDelay, maxDelay time.Duration) *JitterPacer {
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &JitterPacer{
		minDelay: minDelay,
		maxDelay: maxDelay,
	}
}

func (p *JitterPacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	elapsed := time.Since(p.lastAction)
	delay := p.nextDelay()

	if elapsed < delay {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay - elapsed):
		}
	}

	p.lastAction = time.Now()
	return nil
}

// SetInterval pins both bounds to d, removing the jitter.
func (p *JitterPacer) SetInterval(d time.Duration) {
	p.SetBounds(d, d)
}

func (p *JitterPacer) SetBounds(minDelay, maxDelay time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	p.minDelay = minDelay
	p.maxDelay = maxDelay
}

func (p *JitterPacer) nextDelay() time.Duration {
	if p.maxDelay <= p.minDelay {
		return p.minDelay
	}
	jitter := time.Duration(rand.Int63n(int64(p.maxDelay - p.minDelay)))
	return p.minDelay + jitter
}
