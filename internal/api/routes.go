package api

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/maheshrc27/crosspost/internal/api/handlers"
)

type Handlers struct {
	Post      *handlers.PostHandler
	Platform  *handlers.PlatformHandler
	Session   *handlers.SessionHandler
	Analytics *handlers.AnalyticsHandler
	Metrics   http.Handler
}

func Routes(app *fiber.App, h Handlers, auth fiber.Handler) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	if h.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(h.Metrics))
	}

	api := app.Group("/api")
	api.Use(auth)

	api.Post("/posts", h.Post.CreatePost)
	api.Get("/posts", h.Post.ListPosts)
	api.Get("/posts/:id", h.Post.GetPost)
	api.Post("/posts/:id/cancel", h.Post.CancelPost)

	// social accounts api routes
	api.Get("/accounts", h.Platform.ListSocialAccounts)
	api.Post("/accounts/:platform/token", h.Platform.ConnectToken)
	api.Post("/accounts/:platform/cookies", h.Platform.ConnectCookies)
	api.Delete("/accounts/:platform", h.Platform.DeleteSocialAccount)

	api.Get("/sessions", h.Session.ListSessions)
	api.Post("/sessions/:platform/onboarding", h.Session.StartOnboarding)
	api.Post("/sessions/:platform/confirm", h.Session.ConfirmOnboarding)
	api.Get("/sessions/:platform/validate", h.Session.ValidateSession)
	api.Delete("/sessions/:platform", h.Session.DisconnectSession)

	api.Post("/analytics/refresh", h.Analytics.Refresh)
}
