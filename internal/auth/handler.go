package auth

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/transfer-api/transfer_api/internal/accounts"
)

// Handler exposes registration and login endpoints.
type Handler struct {
	svc *Service
}

// NewHandler constructs an auth handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type registerRequest struct {
	Username    string   `json:"username"`
	Password    string   `json:"password"`
	Favorecidos []string `json:"favorecidos"`
}

type registerResponse struct {
	Username    string   `json:"username"`
	Favorecidos []string `json:"favorecidos"`
}

// Register creates an account.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	acct, err := h.svc.Register(c.UserContext(), req.Username, req.Password, req.Favorecidos)
	if err != nil {
		return toHTTPError(err)
	}
	profile := accounts.ToProfile(acct)
	return c.Status(http.StatusCreated).JSON(registerResponse{Username: profile.Username, Favorecidos: profile.Favorecidos})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	accounts.ProfileResponse
	Token string `json:"token"`
}

// Login validates credentials and returns the profile with a session token.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	res, err := h.svc.Login(c.UserContext(), req.Username, req.Password)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(http.StatusOK).JSON(loginResponse{
		ProfileResponse: accounts.ToProfile(res.Account),
		Token:           res.Session.Token,
	})
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidRegistration):
		return fiber.NewError(http.StatusBadRequest, "Usuário e senha são obrigatórios")
	case errors.Is(err, ErrUsernameTaken):
		return fiber.NewError(http.StatusBadRequest, "Usuário já existe")
	case errors.Is(err, ErrUserNotFound):
		return fiber.NewError(http.StatusBadRequest, "Usuário não encontrado")
	case errors.Is(err, ErrInvalidCredentials):
		return fiber.NewError(http.StatusBadRequest, "Senha inválida")
	case errors.Is(err, accounts.ErrStoreUnavailable):
		return fiber.NewError(http.StatusServiceUnavailable, "Serviço indisponível, tente novamente")
	default:
		return err
	}
}
