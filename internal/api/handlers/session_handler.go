package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/crosspost/internal/service"
	"github.com/maheshrc27/crosspost/internal/transfer"
)

type SessionHandler struct {
	as service.AccountService
}

func NewSessionHandler(as service.AccountService) *SessionHandler {
	return &SessionHandler{as: as}
}

// StartOnboarding opens a visible browser on the platform's login page.
func (h *SessionHandler) StartOnboarding(c *fiber.Ctx) error {
	started, err := h.as.StartOnboarding(c.Context(), GetUserID(c), c.Params("platform"))
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(started)
}

func (h *SessionHandler) ConfirmOnboarding(c *fiber.Ctx) error {
	cred, err := h.as.ConfirmOnboarding(c.Context(), GetUserID(c), c.Params("platform"))
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(cred)
}

func (h *SessionHandler) ValidateSession(c *fiber.Ctx) error {
	platform := c.Params("platform")
	ok, err := h.as.ValidateSession(c.Context(), GetUserID(c), platform)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(transfer.SessionValidation{Platform: platform, Valid: ok})
}

func (h *SessionHandler) DisconnectSession(c *fiber.Ctx) error {
	if err := h.as.DisconnectSession(c.Context(), GetUserID(c), c.Params("platform")); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *SessionHandler) ListSessions(c *fiber.Ctx) error {
	sessions, err := h.as.ListSessions(c.Context(), GetUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(sessions)
}
