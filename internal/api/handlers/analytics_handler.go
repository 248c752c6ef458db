package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/crosspost/internal/service"
	"github.com/maheshrc27/crosspost/internal/transfer"
)

type AnalyticsHandler struct {
	an service.AnalyticsService
}

func NewAnalyticsHandler(an service.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{an: an}
}

// Refresh collects engagement for every published post of the caller.
func (h *AnalyticsHandler) Refresh(c *fiber.Ctx) error {
	n, err := h.an.RefreshOwner(c.Context(), GetUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(transfer.AnalyticsRefresh{Updated: n})
}
