// Package retrypolicy decides whether a failed segment attempt is retried
// and how long to wait first. The decision is pure; scheduling the retry
// (re-enqueueing after the delay) is the orchestrator's job, so policies
// can be tested without real clocks.
package retrypolicy

import (
	"math/rand"
	"time"

	"github.com/rollscan/rollscan/internal/extract"
)

// Decision is the outcome of a policy consultation.
type Decision struct {
	Retry bool
	After time.Duration
}

// GiveUp is the terminal decision.
var GiveUp = Decision{}

// Config tunes the backoff schedule.
type Config struct {
	// MaxRetries is the number of retries after the first attempt; a
	// segment sees at most MaxRetries+1 attempts.
	MaxRetries int
	// BaseDelay is doubled per attempt (default: 2s).
	BaseDelay time.Duration
	// MaxDelay caps the computed backoff (default: 2m).
	MaxDelay time.Duration
	// JitterFraction randomizes the delay by +/- this fraction to avoid
	// synchronized retries against the extraction service (default: 0.25).
	JitterFraction float64

	// Rand overrides the jitter source, for deterministic tests.
	Rand *rand.Rand
}

// Policy computes retry decisions for failed attempts.
type Policy struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	jitter     float64
	rand       *rand.Rand
}

// New creates a policy with defaults applied.
func New(cfg Config) *Policy {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 2 * time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 2 * time.Minute
	}
	if cfg.JitterFraction <= 0 {
		cfg.JitterFraction = 0.25
	}
	return &Policy{
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.BaseDelay,
		maxDelay:   cfg.MaxDelay,
		jitter:     cfg.JitterFraction,
		rand:       cfg.Rand,
	}
}

// MaxRetries returns the configured retry bound.
func (p *Policy) MaxRetries() int {
	return p.maxRetries
}

// Decide returns the action for a failed attempt. attemptIndex is the
// 0-based index of the attempt that just failed; retryAfterHint is the
// service-provided backoff for rate-limit errors (0 when absent). The hint
// overrides the computed backoff only when it is larger.
func (p *Policy) Decide(attemptIndex int, kind extract.ErrorKind, retryAfterHint time.Duration) Decision {
	if !kind.Retryable() {
		return GiveUp
	}
	if attemptIndex >= p.maxRetries {
		return GiveUp
	}

	delay := p.baseDelay << uint(attemptIndex)
	if delay > p.maxDelay || delay <= 0 {
		delay = p.maxDelay
	}
	delay = p.applyJitter(delay)

	if kind == extract.KindRateLimited && retryAfterHint > delay {
		delay = retryAfterHint
	}

	return Decision{Retry: true, After: delay}
}

func (p *Policy) applyJitter(d time.Duration) time.Duration {
	var f float64
	if p.rand != nil {
		f = p.rand.Float64()
	} else {
		f = rand.Float64()
	}
	// Spread over [1-jitter, 1+jitter).
	factor := 1 - p.jitter + 2*p.jitter*f
	return time.Duration(float64(d) * factor)
}
