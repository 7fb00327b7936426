package retrypolicy

import (
	"math/rand"
	"testing"
	"time"

	"github.com/rollscan/rollscan/internal/extract"
)

func newTestPolicy(maxRetries int) *Policy {
	return New(Config{
		MaxRetries:     maxRetries,
		BaseDelay:      time.Second,
		MaxDelay:       30 * time.Second,
		JitterFraction: 0.25,
		Rand:           rand.New(rand.NewSource(1)),
	})
}

func TestDecide(t *testing.T) {
	t.Run("permanent errors never retry", func(t *testing.T) {
		p := newTestPolicy(5)
		d := p.Decide(0, extract.KindPermanent, 0)
		if d.Retry {
			t.Fatal("expected give up for permanent error")
		}
	})

	t.Run("gives up at max retries", func(t *testing.T) {
		p := newTestPolicy(3)
		if d := p.Decide(2, extract.KindTransient, 0); !d.Retry {
			t.Error("attempt 2 of maxRetries=3 should retry")
		}
		if d := p.Decide(3, extract.KindTransient, 0); d.Retry {
			t.Error("attempt 3 of maxRetries=3 should give up")
		}
	})

	t.Run("backoff doubles per attempt within jitter bounds", func(t *testing.T) {
		p := newTestPolicy(10)
		for i := 0; i < 4; i++ {
			d := p.Decide(i, extract.KindTransient, 0)
			if !d.Retry {
				t.Fatalf("attempt %d: expected retry", i)
			}
			base := time.Second << uint(i)
			lo := time.Duration(float64(base) * 0.75)
			hi := time.Duration(float64(base) * 1.25)
			if d.After < lo || d.After > hi {
				t.Errorf("attempt %d: delay %v outside [%v, %v]", i, d.After, lo, hi)
			}
		}
	})

	t.Run("delay is capped", func(t *testing.T) {
		p := newTestPolicy(30)
		d := p.Decide(20, extract.KindTransient, 0)
		if !d.Retry {
			t.Fatal("expected retry")
		}
		if max := time.Duration(float64(30*time.Second) * 1.25); d.After > max {
			t.Errorf("delay %v exceeds jittered cap %v", d.After, max)
		}
	})

	t.Run("rate limit hint overrides smaller backoff", func(t *testing.T) {
		p := newTestPolicy(5)
		hint := 45 * time.Second
		d := p.Decide(0, extract.KindRateLimited, hint)
		if !d.Retry {
			t.Fatal("expected retry")
		}
		if d.After != hint {
			t.Errorf("expected hint %v to win, got %v", hint, d.After)
		}
	})

	t.Run("rate limit hint ignored when smaller", func(t *testing.T) {
		p := newTestPolicy(5)
		d := p.Decide(4, extract.KindRateLimited, time.Millisecond)
		if !d.Retry {
			t.Fatal("expected retry")
		}
		if d.After == time.Millisecond {
			t.Error("tiny hint should not shrink computed backoff")
		}
	})

	t.Run("timeout errors are retryable", func(t *testing.T) {
		p := newTestPolicy(2)
		if d := p.Decide(0, extract.KindTimeout, 0); !d.Retry {
			t.Error("timeout should retry")
		}
	})

	t.Run("retry bound holds for any error sequence", func(t *testing.T) {
		// No segment may accumulate more than maxRetries+1 attempts.
		for maxRetries := 0; maxRetries <= 4; maxRetries++ {
			p := newTestPolicy(maxRetries)
			attempts := 1
			for i := 0; ; i++ {
				d := p.Decide(i, extract.KindTransient, 0)
				if !d.Retry {
					break
				}
				attempts++
			}
			if attempts != maxRetries+1 {
				t.Errorf("maxRetries=%d: got %d attempts, want %d", maxRetries, attempts, maxRetries+1)
			}
		}
	})
}
