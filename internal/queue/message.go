package queue

import (
	"errors"
	"strings"
)

// DeliveryMessage announces that a delivery is due now.
type DeliveryMessage struct {
	DeliveryID     string `json:"deliveryId"`
	SubscriptionID string `json:"subscriptionId,omitempty"`
	RequestID      string `json:"requestId,omitempty"`
}

func (m DeliveryMessage) Validate() error {
	if strings.TrimSpace(m.DeliveryID) == "" {
		return errors.New("deliveryId is required")
	}
	return nil
}
