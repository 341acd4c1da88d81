package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/transfer-api/transfer_api/internal/accounts"
)

// RegisterUserRoutes wires the authenticated profile endpoints.
func RegisterUserRoutes(r fiber.Router, h *accounts.Handler, session fiber.Handler) {
	me := r.Group("/users/me", session)
	me.Get("", h.Me)
	me.Put("/favorecidos", h.UpdateFavorites)
}
