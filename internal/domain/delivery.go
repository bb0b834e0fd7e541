package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle state of a delivery.
type Status string

const (
	StatusPending         Status = "PENDING"
	StatusInProgress      Status = "IN_PROGRESS"
	StatusSucceeded       Status = "SUCCEEDED"
	StatusRetryScheduled  Status = "RETRY_SCHEDULED"
	StatusFailedPermanent Status = "FAILED_PERMANENT"
)

func (s Status) String() string { return string(s) }

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusSucceeded, StatusRetryScheduled, StatusFailedPermanent:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is allowed from s.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailedPermanent
}

// IsClaimable reports whether a delivery in state s may be picked up by a worker.
func (s Status) IsClaimable() bool {
	return s == StatusPending || s == StatusRetryScheduled
}

func ParseStatusFromString(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid status %q", ErrValidation, s)
	}
	return st, nil
}

// TerminalStatuses lists the statuses eligible for retention purging.
func TerminalStatuses() []Status {
	return []Status{StatusSucceeded, StatusFailedPermanent}
}

// ClaimableStatuses lists the statuses a worker may claim.
func ClaimableStatuses() []Status {
	return []Status{StatusPending, StatusRetryScheduled}
}

// Delivery is one attempt-series delivering one ingested event to one subscriber endpoint.
type Delivery struct {
	ID             string
	SubscriptionID string
	Payload        json.RawMessage
	Status         Status
	AttemptCount   int
	NextAttemptAt  *time.Time
	ClaimToken     *string
	ClaimedAt      *time.Time
	LastAttemptAt  *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ValidatePayload checks that payload is a non-empty JSON object.
func ValidatePayload(payload []byte) error {
	trimmed := strings.TrimSpace(string(payload))
	if trimmed == "" {
		return fmt.Errorf("%w: payload is required", ErrValidation)
	}
	if !json.Valid([]byte(trimmed)) {
		return fmt.Errorf("%w: payload must be valid JSON", ErrValidation)
	}
	if !strings.HasPrefix(trimmed, "{") {
		return fmt.Errorf("%w: payload must be a JSON object", ErrValidation)
	}
	return nil
}
