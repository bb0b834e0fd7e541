package retry

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

const (
	DefaultBaseDelay   = 10 * time.Second
	DefaultFactor      = 2.0
	DefaultMaxDelay    = 900 * time.Second
	DefaultMaxAttempts = 5
	DefaultJitter      = 0.2
)

// Policy maps the number of attempts already made to the next eligible dispatch time.
//
// The delay before retry n is min(BaseDelay * Factor^(n-1), MaxDelay) with a uniform
// ±Jitter fraction applied, and is never larger than MaxDelay. Jitter spreads out
// deliveries that failed against the same endpoint at the same instant.
type Policy struct {
	BaseDelay   time.Duration
	Factor      float64
	MaxDelay    time.Duration
	MaxAttempts int
	Jitter      float64

	// randFloat returns a value in [0, 1). Nil means math/rand.
	randFloat func() float64
}

// Decision is the result of evaluating a policy after a failed attempt.
type Decision struct {
	Exhausted     bool
	NextAttemptAt time.Time
	Delay         time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		BaseDelay:   DefaultBaseDelay,
		Factor:      DefaultFactor,
		MaxDelay:    DefaultMaxDelay,
		MaxAttempts: DefaultMaxAttempts,
		Jitter:      DefaultJitter,
	}
}

// WithRand returns a copy of p drawing jitter from fn.
func (p Policy) WithRand(fn func() float64) Policy {
	p.randFloat = fn
	return p
}

func (p Policy) Validate() error {
	if p.BaseDelay <= 0 {
		return fmt.Errorf("retry base delay must be positive (got %s)", p.BaseDelay)
	}
	if p.MaxDelay <= 0 {
		return fmt.Errorf("retry max delay must be positive (got %s)", p.MaxDelay)
	}
	if p.MaxDelay < p.BaseDelay {
		return fmt.Errorf("retry max delay %s is below base delay %s", p.MaxDelay, p.BaseDelay)
	}
	if p.Factor < 1 || math.IsNaN(p.Factor) || math.IsInf(p.Factor, 0) {
		return fmt.Errorf("retry backoff factor must be >= 1 (got %v)", p.Factor)
	}
	if p.MaxAttempts < 1 {
		return fmt.Errorf("retry max attempts must be >= 1 (got %d)", p.MaxAttempts)
	}
	if p.Jitter < 0 || p.Jitter >= 1 || math.IsNaN(p.Jitter) {
		return fmt.Errorf("retry jitter must be in [0, 1) (got %v)", p.Jitter)
	}
	return nil
}

// Next decides what happens after attemptCount attempts have been made.
func (p Policy) Next(attemptCount int, now time.Time) Decision {
	if attemptCount >= p.MaxAttempts {
		return Decision{Exhausted: true}
	}

	delay := p.Delay(attemptCount)
	return Decision{
		NextAttemptAt: now.Add(delay),
		Delay:         delay,
	}
}

// Delay returns the jittered wait after attemptCount attempts, bounded by MaxDelay.
func (p Policy) Delay(attemptCount int) time.Duration {
	if attemptCount < 1 {
		attemptCount = 1
	}

	maxDelay := float64(p.MaxDelay)
	delay := float64(p.BaseDelay) * math.Pow(p.Factor, float64(attemptCount-1))
	if math.IsInf(delay, 0) || math.IsNaN(delay) || delay > maxDelay {
		delay = maxDelay
	}

	if p.Jitter > 0 {
		delay += (p.random()*2 - 1) * p.Jitter * delay
	}

	if delay > maxDelay {
		delay = maxDelay
	}
	if delay < 0 {
		delay = 0
	}

	return time.Duration(delay)
}

func (p Policy) random() float64 {
	if p.randFloat != nil {
		return p.randFloat()
	}
	return rand.Float64()
}
