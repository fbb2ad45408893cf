package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/marminbh/discourse-autoreply/internal/models"
)

// Acknowledgement is the body returned for an accepted webhook.
const Acknowledgement = ":)"

// Publisher enqueues a serialized solved event.
type Publisher interface {
	Publish(ctx context.Context, body []byte) error
}

// WebhookHandler receives Discourse accepted-answer webhooks
type WebhookHandler struct {
	Publisher Publisher
	Secret    string
	Logger    *zap.Logger
}

// NewWebhookHandler creates a new webhook handler with dependencies
func NewWebhookHandler(publisher Publisher, secret string, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		Publisher: publisher,
		Secret:    secret,
		Logger:    logger,
	}
}

// AcceptedAnswer handles POST /webhooks/accepted_answer
// The response is always 200: ":)" once the event is queued, otherwise the
// error text.
func (h *WebhookHandler) AcceptedAnswer(c *fiber.Ctx) error {
	if err := h.enqueue(c); err != nil {
		h.Logger.Warn("Rejected accepted answer webhook",
			zap.String("event", c.Get("X-Discourse-Event")),
			zap.Error(err),
		)
		return c.SendString(err.Error())
	}
	return c.SendString(Acknowledgement)
}

func (h *WebhookHandler) enqueue(c *fiber.Ctx) error {
	body := c.Body()

	if h.Secret != "" {
		if err := VerifySignature(body, h.Secret, c.Get(SignatureHeader)); err != nil {
			return err
		}
	}

	event, err := models.ParseAcceptedAnswer(body)
	if err != nil {
		return err
	}

	encoded, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode solved event: %w", err)
	}

	if err := h.Publisher.Publish(c.UserContext(), encoded); err != nil {
		return fmt.Errorf("failed to enqueue solved event: %w", err)
	}

	h.Logger.Info("Sent solved event to queue",
		zap.Int("topic_id", event.TopicID),
		zap.Int("post_number", event.PostNumber),
		zap.String("username", event.Username),
	)
	return nil
}
