package transfer

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/transfer-api/transfer_api/internal/accounts"
	"github.com/transfer-api/transfer_api/internal/middleware"
	"github.com/transfer-api/transfer_api/internal/money"
)

// Handler exposes the transfer endpoint.
type Handler struct {
	engine *Engine
}

// NewHandler constructs a transfer handler.
func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

type transferRequest struct {
	From      string       `json:"from"`
	To        string       `json:"to"`
	Value     money.Amount `json:"value"`
	RequestID string       `json:"requestId"`
}

type recipientResponse struct {
	Username string `json:"username"`
}

type transferResponse struct {
	ID        string            `json:"id"`
	RequestID string            `json:"requestId,omitempty"`
	From      string            `json:"from"`
	To        string            `json:"to"`
	Value     money.Amount      `json:"value"`
	Saldo     money.Amount      `json:"saldo"`
	Recipient recipientResponse `json:"recipient"`
	CreatedAt time.Time         `json:"createdAt"`
}

// Create performs a transfer from the authenticated caller's account.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		if errors.Is(err, money.ErrMalformed) || errors.Is(err, money.ErrTooPrecise) || errors.Is(err, money.ErrOverflow) {
			return fiber.NewError(http.StatusBadRequest, "Valor inválido")
		}
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	requestID := strings.TrimSpace(req.RequestID)
	if requestID == "" {
		requestID = strings.TrimSpace(c.Get(middleware.IdempotencyKeyHeader))
	}

	res, err := h.engine.Transfer(c.UserContext(), middleware.Username(c), Request{
		From:      strings.TrimSpace(req.From),
		To:        strings.TrimSpace(req.To),
		Amount:    req.Value,
		RequestID: requestID,
	})
	if err != nil {
		return toHTTPError(err)
	}

	if res.Replayed {
		c.Set("Idempotent-Replayed", "true")
	}
	return c.Status(http.StatusCreated).JSON(transferResponse{
		ID:        res.TransferID,
		RequestID: res.RequestID,
		From:      res.From,
		To:        res.To,
		Value:     res.Amount,
		Saldo:     res.Balance,
		Recipient: recipientResponse{Username: res.Recipient.Username},
		CreatedAt: res.CompletedAt,
	})
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidAmount):
		return fiber.NewError(http.StatusBadRequest, "Valor inválido")
	case errors.Is(err, ErrForbidden):
		return fiber.NewError(http.StatusForbidden, "Transferência permitida apenas a partir da própria conta")
	case errors.Is(err, ErrInvalidTransfer):
		return fiber.NewError(http.StatusBadRequest, "Origem e destino devem ser diferentes")
	case errors.Is(err, accounts.ErrNotFound):
		return fiber.NewError(http.StatusNotFound, "Usuário não encontrado")
	case errors.Is(err, ErrRecipientNotAllowed):
		return fiber.NewError(http.StatusBadRequest, "Destinatário não está entre os favorecidos")
	case errors.Is(err, ErrNonFavoredLimitExceeded):
		return fiber.NewError(http.StatusBadRequest, "Valor acima do limite para não favorecidos")
	case errors.Is(err, accounts.ErrInsufficientFunds):
		return fiber.NewError(http.StatusBadRequest, "Saldo insuficiente")
	case errors.Is(err, accounts.ErrRequestConflict):
		return fiber.NewError(http.StatusConflict, "requestId já utilizado em outra transferência")
	case errors.Is(err, accounts.ErrTransferInProgress):
		return fiber.NewError(http.StatusConflict, "Transferência em processamento")
	case errors.Is(err, accounts.ErrStoreUnavailable):
		return fiber.NewError(http.StatusServiceUnavailable, "Serviço indisponível, tente novamente")
	default:
		return err
	}
}
