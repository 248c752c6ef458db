package handlers

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/crosspost/internal/browser"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/service"
)

func GetUserID(c *fiber.Ctx) int64 {
	userID, _ := c.Locals("user_id").(int64)
	return userID
}

func errorJSON(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": msg,
	})
}

// respondError maps service and publish errors onto HTTP statuses.
func respondError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidPost),
		errors.Is(err, service.ErrUnknownPlatform),
		errors.Is(err, service.ErrEmptyPayload),
		errors.Is(err, service.ErrUnsupportedMedia):
		return errorJSON(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrPostNotFound),
		errors.Is(err, browser.ErrNoSession):
		return errorJSON(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrPostNotCancelable),
		errors.Is(err, browser.ErrSessionBusy):
		return errorJSON(c, fiber.StatusConflict, err.Error())
	}

	switch models.KindOf(err) {
	case models.KindAuthMissing, models.KindAuthExpired:
		return errorJSON(c, fiber.StatusUnprocessableEntity, models.UserMessage(err))
	case models.KindContentRejected:
		return errorJSON(c, fiber.StatusBadRequest, models.UserMessage(err))
	case models.KindTransientPlatform, models.KindAutomationDrift:
		return errorJSON(c, fiber.StatusBadGateway, models.UserMessage(err))
	}

	slog.Error(err.Error())
	return errorJSON(c, fiber.StatusInternalServerError, "internal error")
}
