package handlers

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/crosspost/internal/service"
	"github.com/maheshrc27/crosspost/internal/transfer"
)

type PlatformHandler struct {
	as service.AccountService
}

func NewPlatformHandler(as service.AccountService) *PlatformHandler {
	return &PlatformHandler{as: as}
}

func (h *PlatformHandler) ConnectToken(c *fiber.Ctx) error {
	var in transfer.TokenConnect
	if err := c.BodyParser(&in); err != nil {
		slog.Info(err.Error())
		return errorJSON(c, fiber.StatusBadRequest, "Invalid request body")
	}

	cred, err := h.as.ConnectToken(c.Context(), GetUserID(c), c.Params("platform"), &in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(cred)
}

func (h *PlatformHandler) ConnectCookies(c *fiber.Ctx) error {
	var in transfer.CookieConnect
	if err := c.BodyParser(&in); err != nil {
		slog.Info(err.Error())
		return errorJSON(c, fiber.StatusBadRequest, "Invalid request body")
	}

	cred, err := h.as.ConnectCookies(c.Context(), GetUserID(c), c.Params("platform"), &in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(cred)
}

func (h *PlatformHandler) ListSocialAccounts(c *fiber.Ctx) error {
	creds, err := h.as.ListAccounts(c.Context(), GetUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(creds)
}

func (h *PlatformHandler) DeleteSocialAccount(c *fiber.Ctx) error {
	if err := h.as.RemoveAccount(c.Context(), GetUserID(c), c.Params("platform")); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
