package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// TemplateProvider resolves the current canned response.
type TemplateProvider interface {
	Get(ctx context.Context) (string, error)
}

type CannedResponseHandler struct {
	Templates TemplateProvider
	Logger    *zap.Logger
}

func NewCannedResponseHandler(templates TemplateProvider, logger *zap.Logger) *CannedResponseHandler {
	return &CannedResponseHandler{Templates: templates, Logger: logger}
}

// CannedResponse handles GET /_/canned_response and returns the template as a JSON string.
func (h *CannedResponseHandler) CannedResponse(c *fiber.Ctx) error {
	template, err := h.Templates.Get(c.UserContext())
	if err != nil {
		h.Logger.Error("Failed to resolve canned response", zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(template)
}
