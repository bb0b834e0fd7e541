package retry

import (
	"testing"
	"time"
)

func TestPolicyNextFirstAttemptWithinJitterBounds(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0).UTC()
	policy := DefaultPolicy()

	for i := 0; i < 500; i++ {
		decision := policy.Next(1, now)
		if decision.Exhausted {
			t.Fatal("Next(1) should not be exhausted")
		}
		if decision.Delay < 8*time.Second || decision.Delay > 12*time.Second {
			t.Fatalf("Next(1) delay = %v, want within [8s, 12s]", decision.Delay)
		}
		if !decision.NextAttemptAt.Equal(now.Add(decision.Delay)) {
			t.Fatalf("NextAttemptAt = %v, want %v", decision.NextAttemptAt, now.Add(decision.Delay))
		}
	}
}

func TestPolicyNextExhausted(t *testing.T) {
	t.Parallel()

	policy := DefaultPolicy()
	now := time.Unix(1_700_000_000, 0)

	if got := policy.Next(5, now); !got.Exhausted {
		t.Fatalf("Next(5) = %+v, want exhausted", got)
	}
	if got := policy.Next(6, now); !got.Exhausted {
		t.Fatalf("Next(6) = %+v, want exhausted", got)
	}
	if got := policy.Next(4, now); got.Exhausted {
		t.Fatal("Next(4) should allow one more attempt")
	}
}

func TestPolicyDelayJitterExtremes(t *testing.T) {
	t.Parallel()

	policy := DefaultPolicy()

	low := policy.WithRand(func() float64 { return 0 })
	if got := low.Delay(1); got != 8*time.Second {
		t.Fatalf("Delay(1) with rand=0 = %v, want 8s", got)
	}

	mid := policy.WithRand(func() float64 { return 0.5 })
	if got := mid.Delay(1); got != 10*time.Second {
		t.Fatalf("Delay(1) with rand=0.5 = %v, want 10s", got)
	}
	if got := mid.Delay(3); got != 40*time.Second {
		t.Fatalf("Delay(3) with rand=0.5 = %v, want 40s", got)
	}
}

func TestPolicyDelayNeverExceedsMax(t *testing.T) {
	t.Parallel()

	policy := DefaultPolicy().WithRand(func() float64 { return 0.9999 })

	for _, attempt := range []int{1, 5, 7, 10, 50, 1_000, 1 << 30} {
		if got := policy.Delay(attempt); got > policy.MaxDelay {
			t.Fatalf("Delay(%d) = %v, exceeds max %v", attempt, got, policy.MaxDelay)
		}
	}

	uncapped := policy
	uncapped.MaxAttempts = 1_000
	if got := uncapped.Next(999, time.Unix(0, 0)); got.Delay > uncapped.MaxDelay {
		t.Fatalf("Next(999) delay = %v, exceeds max %v", got.Delay, uncapped.MaxDelay)
	}
}

func TestPolicyDelayNoJitter(t *testing.T) {
	t.Parallel()

	policy := Policy{
		BaseDelay:   time.Second,
		Factor:      3,
		MaxDelay:    time.Minute,
		MaxAttempts: 10,
	}

	want := []time.Duration{time.Second, 3 * time.Second, 9 * time.Second, 27 * time.Second, time.Minute}
	for i, w := range want {
		if got := policy.Delay(i + 1); got != w {
			t.Fatalf("Delay(%d) = %v, want %v", i+1, got, w)
		}
	}
}

func TestPolicyValidate(t *testing.T) {
	t.Parallel()

	if err := DefaultPolicy().Validate(); err != nil {
		t.Fatalf("DefaultPolicy().Validate() error = %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Policy)
	}{
		{name: "zero base", mutate: func(p *Policy) { p.BaseDelay = 0 }},
		{name: "max below base", mutate: func(p *Policy) { p.MaxDelay = time.Second }},
		{name: "factor below one", mutate: func(p *Policy) { p.Factor = 0.5 }},
		{name: "zero attempts", mutate: func(p *Policy) { p.MaxAttempts = 0 }},
		{name: "jitter too large", mutate: func(p *Policy) { p.Jitter = 1 }},
		{name: "negative jitter", mutate: func(p *Policy) { p.Jitter = -0.1 }},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p := DefaultPolicy()
			tt.mutate(&p)
			if err := p.Validate(); err == nil {
				t.Fatal("Validate() expected error, got nil")
			}
		})
	}
}
