package handler

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/hookrelay/internal/domain"
)

type SubscriptionService interface {
	Create(ctx context.Context, sub *domain.Subscription) (*domain.Subscription, error)
	Get(ctx context.Context, id string) (*domain.Subscription, error)
	List(ctx context.Context, limit, offset int) ([]domain.Subscription, error)
	Update(ctx context.Context, sub *domain.Subscription) (*domain.Subscription, error)
	Delete(ctx context.Context, id string) error
}

type SubscriptionHandler struct {
	service SubscriptionService
}

func NewSubscriptionHandler(service SubscriptionService) (*SubscriptionHandler, error) {
	if service == nil {
		return nil, errors.New("subscription service is required")
	}
	return &SubscriptionHandler{service: service}, nil
}

func RegisterSubscriptionRoutes(router fiber.Router, service SubscriptionService) error {
	h, err := NewSubscriptionHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/subscriptions", h.CreateSubscription)
	v1.Get("/subscriptions", h.ListSubscriptions)
	v1.Get("/subscriptions/:id", h.GetSubscription)
	v1.Put("/subscriptions/:id", h.UpdateSubscription)
	v1.Delete("/subscriptions/:id", h.DeleteSubscription)

	return nil
}

type subscriptionRequest struct {
	Name      string `json:"name"`
	TargetURL string `json:"targetUrl"`
	SecretKey string `json:"secretKey"`
	Active    *bool  `json:"active,omitempty"`
}

// The secret never leaves the service once stored.
type subscriptionResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	TargetURL string    `json:"targetUrl"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type listSubscriptionsResponse struct {
	Data []subscriptionResponse `json:"data"`
	Meta pageMeta               `json:"meta"`
}

type pageMeta struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

func (h *SubscriptionHandler) CreateSubscription(c *fiber.Ctx) error {
	var req subscriptionRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	sub := requestToSubscription(req)
	if req.Active == nil {
		sub.Active = true
	}

	created, err := h.service.Create(c.UserContext(), &sub)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(toSubscriptionResponse(created))
}

func (h *SubscriptionHandler) GetSubscription(c *fiber.Ctx) error {
	sub, err := h.service.Get(c.UserContext(), strings.TrimSpace(c.Params("id")))
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toSubscriptionResponse(sub))
}

func (h *SubscriptionHandler) ListSubscriptions(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 0)
	offset := c.QueryInt("offset", 0)

	subs, err := h.service.List(c.UserContext(), limit, offset)
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]subscriptionResponse, 0, len(subs))
	for i := range subs {
		data = append(data, toSubscriptionResponse(&subs[i]))
	}

	return c.Status(fiber.StatusOK).JSON(listSubscriptionsResponse{
		Data: data,
		Meta: pageMeta{Limit: limit, Offset: offset},
	})
}

// UpdateSubscription replaces name, target URL and secret. When active is omitted the
// current value is kept.
func (h *SubscriptionHandler) UpdateSubscription(c *fiber.Ctx) error {
	var req subscriptionRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	ctx := c.UserContext()
	id := strings.TrimSpace(c.Params("id"))

	sub := requestToSubscription(req)
	sub.ID = id
	if req.Active == nil {
		current, err := h.service.Get(ctx, id)
		if err != nil {
			return toHTTPError(err)
		}
		sub.Active = current.Active
	}

	updated, err := h.service.Update(ctx, &sub)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toSubscriptionResponse(updated))
}

func (h *SubscriptionHandler) DeleteSubscription(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if err := h.service.Delete(c.UserContext(), id); err != nil {
		return toHTTPError(err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func requestToSubscription(req subscriptionRequest) domain.Subscription {
	sub := domain.Subscription{
		Name:      req.Name,
		TargetURL: req.TargetURL,
		SecretKey: req.SecretKey,
	}
	if req.Active != nil {
		sub.Active = *req.Active
	}
	return sub
}

func toSubscriptionResponse(s *domain.Subscription) subscriptionResponse {
	if s == nil {
		return subscriptionResponse{}
	}

	return subscriptionResponse{
		ID:        s.ID,
		Name:      s.Name,
		TargetURL: s.TargetURL,
		Active:    s.Active,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}
