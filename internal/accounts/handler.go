package accounts

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/transfer-api/transfer_api/internal/middleware"
	"github.com/transfer-api/transfer_api/internal/money"
)

// Handler exposes the authenticated profile endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a profile HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// ProfileResponse is the public view of an account.
type ProfileResponse struct {
	Username    string       `json:"username"`
	Favorecidos []string     `json:"favorecidos"`
	Saldo       money.Amount `json:"saldo"`
}

// ToProfile strips credential material from an account.
func ToProfile(a Account) ProfileResponse {
	favs := a.Favorites
	if favs == nil {
		favs = []string{}
	}
	return ProfileResponse{Username: a.Username, Favorecidos: favs, Saldo: a.Balance}
}

type favoritesRequest struct {
	Favorecidos []string `json:"favorecidos"`
}

// Me returns the caller's profile.
func (h *Handler) Me(c *fiber.Ctx) error {
	acct, err := h.service.Profile(c.UserContext(), middleware.Username(c))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(http.StatusOK).JSON(ToProfile(acct))
}

// UpdateFavorites replaces the caller's favored-recipient list.
func (h *Handler) UpdateFavorites(c *fiber.Ctx) error {
	var req favoritesRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	acct, err := h.service.UpdateFavorites(c.UserContext(), middleware.Username(c), req.Favorecidos)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(http.StatusOK).JSON(ToProfile(acct))
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return fiber.NewError(http.StatusNotFound, "Usuário não encontrado")
	case errors.Is(err, ErrStoreUnavailable):
		return fiber.NewError(http.StatusServiceUnavailable, "Serviço indisponível, tente novamente")
	default:
		return err
	}
}
