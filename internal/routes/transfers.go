package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/transfer-api/transfer_api/internal/transfer"
)

// RegisterTransferRoutes wires the transfer endpoint. The idempotency cache runs after the
// session check so keys are scoped to the caller.
func RegisterTransferRoutes(r fiber.Router, h *transfer.Handler, session, idempotency fiber.Handler) {
	r.Post("/transfers", session, idempotency, h.Create)
}
