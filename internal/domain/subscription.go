package domain

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	MinSecretKeyLength = 32
	MaxSecretKeyLength = 64
	MaxNameLength      = 100
)

// Subscription is a registered receiver endpoint. The delivery engine only reads it.
type Subscription struct {
	ID        string
	Name      string
	TargetURL string
	SecretKey string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (s *Subscription) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: subscription is required", ErrValidation)
	}

	nameLen := len([]rune(s.Name))
	if nameLen == 0 {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if nameLen > MaxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters (got %d)", ErrValidation, MaxNameLength, nameLen)
	}

	if s.TargetURL == "" {
		return fmt.Errorf("%w: target url is required", ErrValidation)
	}
	parsed, err := url.ParseRequestURI(s.TargetURL)
	if err != nil || parsed.Host == "" {
		return fmt.Errorf("%w: invalid target url %q", ErrValidation, s.TargetURL)
	}
	if scheme := strings.ToLower(parsed.Scheme); scheme != "http" && scheme != "https" {
		return fmt.Errorf("%w: target url must use http or https", ErrValidation)
	}

	if len(s.SecretKey) < MinSecretKeyLength || len(s.SecretKey) > MaxSecretKeyLength {
		return fmt.Errorf("%w: secret key must be %d-%d characters", ErrValidation, MinSecretKeyLength, MaxSecretKeyLength)
	}
	for _, r := range s.SecretKey {
		if !isAlphanumeric(r) {
			return fmt.Errorf("%w: secret key must contain only alphanumeric characters", ErrValidation)
		}
	}

	return nil
}

func isAlphanumeric(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
