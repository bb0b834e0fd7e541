package domain

import (
	"fmt"
	"strings"
	"time"
)

// MaxResponseExcerpt bounds how much of a receiver's response body is kept per attempt.
const MaxResponseExcerpt = 2048

// Outcome is the result of a single dispatch try.
type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeFailure Outcome = "FAILURE"
)

func (o Outcome) String() string { return string(o) }

func (o Outcome) IsValid() bool {
	return o == OutcomeSuccess || o == OutcomeFailure
}

// Attempt records a single HTTP try for a delivery. Attempts are append-only.
type Attempt struct {
	ID              string
	DeliveryID      string
	AttemptNumber   int
	StartedAt       time.Time
	ResponseStatus  *int
	ResponseExcerpt *string
	Error           *string
	Outcome         Outcome
	LatencyMs       int64
}

func (a *Attempt) Validate() error {
	if a == nil {
		return fmt.Errorf("%w: attempt is required", ErrValidation)
	}
	if strings.TrimSpace(a.DeliveryID) == "" {
		return fmt.Errorf("%w: attempt delivery id is required", ErrValidation)
	}
	if a.AttemptNumber < 1 {
		return fmt.Errorf("%w: attempt number must be >= 1 (got %d)", ErrValidation, a.AttemptNumber)
	}
	if !a.Outcome.IsValid() {
		return fmt.Errorf("%w: invalid attempt outcome %q", ErrValidation, a.Outcome)
	}
	return nil
}

// TruncateExcerpt cuts body down to MaxResponseExcerpt bytes without splitting a UTF-8 sequence.
func TruncateExcerpt(body string) string {
	if len(body) <= MaxResponseExcerpt {
		return body
	}
	cut := MaxResponseExcerpt
	for cut > 0 && !isRuneStart(body[cut]) {
		cut--
	}
	return body[:cut]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
