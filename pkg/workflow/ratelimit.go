package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	werrors "github.com/marktoflow/flowcore/pkg/errors"
)

// RateLimitConfig throttles how often a single step may run, independent of
// the step's retry policy. A step without one runs unthrottled.
type RateLimitConfig struct {
	// RequestsPerSecond limits the sustained rate directly. Takes
	// precedence over RequestsPerMinute when both are set.
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty" json:"requests_per_second,omitempty"`

	// RequestsPerMinute is a convenience for configs expressed per-minute.
	RequestsPerMinute int `yaml:"requests_per_minute,omitempty" json:"requests_per_minute,omitempty"`

	// Burst caps how many requests may run back-to-back before the
	// sustained rate applies. Defaults to the rounded-up rate, minimum 1.
	Burst int `yaml:"burst,omitempty" json:"burst,omitempty"`

	// Timeout bounds how long a step waits for a free slot, in seconds.
	// Defaults to 30.
	Timeout int `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

func (c *RateLimitConfig) ratePerSecond() float64 {
	if c.RequestsPerSecond > 0 {
		return c.RequestsPerSecond
	}
	if c.RequestsPerMinute > 0 {
		return float64(c.RequestsPerMinute) / 60.0
	}
	return 0
}

func (c *RateLimitConfig) burst() int {
	if c.Burst > 0 {
		return c.Burst
	}
	if b := int(c.ratePerSecond()); b > 1 {
		return b
	}
	return 1
}

func (c *RateLimitConfig) timeout() time.Duration {
	if c.Timeout > 0 {
		return time.Duration(c.Timeout) * time.Second
	}
	return 30 * time.Second
}

// rateLimiterGroup lazily builds one token-bucket limiter per step, so steps
// sharing a Dispatcher don't contend for the same bucket.
type rateLimiterGroup struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newRateLimiterGroup() *rateLimiterGroup {
	return &rateLimiterGroup{limiters: make(map[string]*rate.Limiter)}
}

func (g *rateLimiterGroup) get(stepID string, cfg *RateLimitConfig) *rate.Limiter {
	g.mu.Lock()
	defer g.mu.Unlock()

	if lim, ok := g.limiters[stepID]; ok {
		return lim
	}
	lim := rate.NewLimiter(rate.Limit(cfg.ratePerSecond()), cfg.burst())
	g.limiters[stepID] = lim
	return lim
}

// waitRateLimit blocks until step is allowed to run under its RateLimit, or
// returns a TimeoutError once the configured wait budget is exhausted. A
// step with no RateLimit returns immediately.
func (d *Dispatcher) waitRateLimit(ctx context.Context, step Step) error {
	if step.RateLimit == nil {
		return nil
	}
	if d.rateLimiters == nil {
		d.rateLimiters = newRateLimiterGroup()
	}
	lim := d.rateLimiters.get(step.ID, step.RateLimit)

	waitCtx, cancel := context.WithTimeout(ctx, step.RateLimit.timeout())
	defer cancel()

	if err := lim.Wait(waitCtx); err != nil {
		return &werrors.TimeoutError{
			Operation: fmt.Sprintf("rate limit for step %q", step.ID),
			Duration:  step.RateLimit.timeout(),
			Cause:     err,
		}
	}
	return nil
}
