package handler

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/hookrelay/internal/domain"
	"github.com/kursadbilgin/hookrelay/internal/service"
)

type IngestionService interface {
	Ingest(ctx context.Context, subscriptionID string, payload []byte) (*domain.Delivery, error)
	GetDelivery(ctx context.Context, id string) (*service.DeliveryDetail, error)
	ListDeliveries(ctx context.Context, subscriptionID string, limit int) ([]domain.Delivery, error)
}

type DeliveryHandler struct {
	service IngestionService
}

func NewDeliveryHandler(service IngestionService) (*DeliveryHandler, error) {
	if service == nil {
		return nil, errors.New("ingestion service is required")
	}
	return &DeliveryHandler{service: service}, nil
}

func RegisterDeliveryRoutes(router fiber.Router, service IngestionService) error {
	h, err := NewDeliveryHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/ingest/:subscriptionId", h.Ingest)
	v1.Get("/deliveries/:id", h.GetDelivery)
	v1.Get("/subscriptions/:id/deliveries", h.ListDeliveries)

	return nil
}

type ingestResponse struct {
	DeliveryID string `json:"deliveryId"`
	Status     string `json:"status"`
}

type deliveryResponse struct {
	ID             string            `json:"id"`
	SubscriptionID string            `json:"subscriptionId"`
	Status         string            `json:"status"`
	AttemptCount   int               `json:"attemptCount"`
	NextAttemptAt  *time.Time        `json:"nextAttemptAt,omitempty"`
	LastAttemptAt  *time.Time        `json:"lastAttemptAt,omitempty"`
	Payload        json.RawMessage   `json:"payload,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
	Attempts       []attemptResponse `json:"attempts,omitempty"`
}

type attemptResponse struct {
	AttemptNumber   int       `json:"attemptNumber"`
	StartedAt       time.Time `json:"startedAt"`
	Outcome         string    `json:"outcome"`
	ResponseStatus  *int      `json:"responseStatus,omitempty"`
	ResponseExcerpt *string   `json:"responseExcerpt,omitempty"`
	Error           *string   `json:"error,omitempty"`
	LatencyMs       int64     `json:"latencyMs"`
}

type listDeliveriesResponse struct {
	Data []deliveryResponse `json:"data"`
}

func (h *DeliveryHandler) Ingest(c *fiber.Ctx) error {
	subscriptionID := strings.TrimSpace(c.Params("subscriptionId"))

	delivery, err := h.service.Ingest(c.UserContext(), subscriptionID, c.Body())
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(ingestResponse{
		DeliveryID: delivery.ID,
		Status:     delivery.Status.String(),
	})
}

func (h *DeliveryHandler) GetDelivery(c *fiber.Ctx) error {
	detail, err := h.service.GetDelivery(c.UserContext(), strings.TrimSpace(c.Params("id")))
	if err != nil {
		return toHTTPError(err)
	}

	resp := toDeliveryResponse(&detail.Delivery)
	resp.Attempts = make([]attemptResponse, 0, len(detail.Attempts))
	for _, attempt := range detail.Attempts {
		resp.Attempts = append(resp.Attempts, attemptResponse{
			AttemptNumber:   attempt.AttemptNumber,
			StartedAt:       attempt.StartedAt,
			Outcome:         attempt.Outcome.String(),
			ResponseStatus:  attempt.ResponseStatus,
			ResponseExcerpt: attempt.ResponseExcerpt,
			Error:           attempt.Error,
			LatencyMs:       attempt.LatencyMs,
		})
	}

	return c.Status(fiber.StatusOK).JSON(resp)
}

func (h *DeliveryHandler) ListDeliveries(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 0)

	deliveries, err := h.service.ListDeliveries(c.UserContext(), strings.TrimSpace(c.Params("id")), limit)
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]deliveryResponse, 0, len(deliveries))
	for i := range deliveries {
		item := toDeliveryResponse(&deliveries[i])
		item.Payload = nil
		data = append(data, item)
	}

	return c.Status(fiber.StatusOK).JSON(listDeliveriesResponse{Data: data})
}

func toDeliveryResponse(d *domain.Delivery) deliveryResponse {
	return deliveryResponse{
		ID:             d.ID,
		SubscriptionID: d.SubscriptionID,
		Status:         d.Status.String(),
		AttemptCount:   d.AttemptCount,
		NextAttemptAt:  d.NextAttemptAt,
		LastAttemptAt:  d.LastAttemptAt,
		Payload:        json.RawMessage(d.Payload),
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}
