package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/transfer-api/transfer_api/internal/accounts"
	"github.com/transfer-api/transfer_api/internal/money"
	"github.com/transfer-api/transfer_api/internal/notification"
)

// Stage is a point in the life of a single transfer.
type Stage string

const (
	StageReceived  Stage = "received"
	StageValidated Stage = "validated"
	StageLocked    Stage = "locked"
	StageCommitted Stage = "committed"
	StageAborted   Stage = "aborted"
)

// Request asks to move Amount from From to To. RequestID is optional; when set, repeats
// of the same request return the original result.
type Request struct {
	From      string
	To        string
	Amount    money.Amount
	RequestID string
}

// Recipient is the public view of the receiving account.
type Recipient struct {
	Username string
}

// Result describes a committed transfer. Balance is the sender's balance right after it.
type Result struct {
	TransferID  string
	RequestID   string
	From        string
	To          string
	Amount      money.Amount
	Balance     money.Amount
	Recipient   Recipient
	CompletedAt time.Time
	Replayed    bool
}

// Engine validates transfer requests and applies them through an accounts.Store. It holds
// no mutable state and is safe for concurrent use.
type Engine struct {
	store    accounts.Store
	rules    Rules
	notifier notification.Notifier
	metrics  *Metrics
	logger   *slog.Logger
}

// Option customizes an Engine.
type Option func(*Engine)

// WithNotifier notifies recipients after each committed transfer.
func WithNotifier(n notification.Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithMetrics records outcomes on m.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine builds an engine enforcing rules on top of store. Rules without a policy
// fall back to DefaultRules.
func NewEngine(store accounts.Store, rules Rules, opts ...Option) *Engine {
	if rules.Policy == "" {
		rules = DefaultRules()
	}
	e := &Engine{
		store:  store,
		rules:  rules,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Transfer moves funds on behalf of caller, the verified username of the session.
// Checks run in a fixed order and the first failure is returned before anything is
// locked: amount, ownership, distinct accounts, existence of sender then recipient,
// favored-recipient rules. The balance check happens inside the store. A request id the
// sender already committed is answered from its receipt before the account checks, so
// a retry still succeeds after favorites change.
func (e *Engine) Transfer(ctx context.Context, caller string, req Request) (Result, error) {
	start := time.Now()
	log := e.logger.With(
		slog.String("from", req.From),
		slog.String("to", req.To),
		slog.String("amount", req.Amount.String()),
		slog.String("request_id", req.RequestID),
	)
	log.Debug("transfer stage", slog.String("stage", string(StageReceived)))

	res, stage, err := e.run(ctx, log, caller, req)

	label := outcome(err)
	if err == nil && res.Replayed {
		label = "replayed"
	}
	e.metrics.observe(label, stage, time.Since(start))

	if err != nil {
		log.Warn("transfer aborted", slog.String("stage", string(stage)), slog.String("outcome", label), slog.Any("error", err))
		return Result{}, err
	}
	log.Info("transfer completed",
		slog.String("stage", string(stage)),
		slog.String("transfer_id", res.TransferID),
		slog.Bool("replayed", res.Replayed),
		slog.String("balance", res.Balance.String()),
	)
	return res, nil
}

func (e *Engine) run(ctx context.Context, log *slog.Logger, caller string, req Request) (Result, Stage, error) {
	if req.Amount <= 0 {
		return Result{}, StageAborted, ErrInvalidAmount
	}
	if caller == "" || caller != req.From {
		return Result{}, StageAborted, ErrForbidden
	}
	if req.From == req.To {
		return Result{}, StageAborted, ErrInvalidTransfer
	}

	if req.RequestID != "" {
		prior, ok, err := e.store.FindReceipt(ctx, req.From, req.RequestID)
		if err != nil {
			return Result{}, StageAborted, err
		}
		if ok {
			order := accounts.Order{From: req.From, To: req.To, Amount: req.Amount, RequestID: req.RequestID}
			if !prior.Matches(order) {
				return Result{}, StageAborted, accounts.ErrRequestConflict
			}
			return resultFrom(prior, true), StageCommitted, nil
		}
	}

	sender, err := e.store.Get(ctx, req.From)
	if err != nil {
		return Result{}, StageAborted, err
	}
	if _, err := e.store.Get(ctx, req.To); err != nil {
		return Result{}, StageAborted, err
	}
	if err := e.rules.Check(sender, req.To, req.Amount); err != nil {
		return Result{}, StageAborted, err
	}
	log.Debug("transfer stage", slog.String("stage", string(StageValidated)))

	log.Debug("transfer stage", slog.String("stage", string(StageLocked)))
	receipt, err := e.store.AtomicTransfer(ctx, accounts.Order{
		From:      req.From,
		To:        req.To,
		Amount:    req.Amount,
		RequestID: req.RequestID,
	})
	switch {
	case errors.Is(err, accounts.ErrDuplicateTransfer):
		return resultFrom(receipt, true), StageCommitted, nil
	case errors.Is(err, accounts.ErrNonPositiveAmount):
		return Result{}, StageAborted, ErrInvalidAmount
	case errors.Is(err, accounts.ErrSameAccount):
		return Result{}, StageAborted, ErrInvalidTransfer
	case errors.Is(err, money.ErrOverflow):
		return Result{}, StageAborted, fmt.Errorf("%w: recipient balance overflow", ErrInvalidAmount)
	case err != nil:
		return Result{}, StageAborted, err
	}

	res := resultFrom(receipt, false)
	e.notify(ctx, log, res)
	return res, StageCommitted, nil
}

func (e *Engine) notify(ctx context.Context, log *slog.Logger, res Result) {
	if e.notifier == nil {
		return
	}
	err := e.notifier.Send(ctx, notification.Message{
		Kind:        notification.KindTransferReceived,
		Destination: res.To,
		Body:        fmt.Sprintf("Você recebeu %s de %s", res.Amount, res.From),
	})
	if err != nil {
		log.Warn("transfer notification failed", slog.Any("error", err))
	}
}

func resultFrom(r accounts.Receipt, replayed bool) Result {
	return Result{
		TransferID:  r.ID,
		RequestID:   r.RequestID,
		From:        r.From,
		To:          r.To,
		Amount:      r.Amount,
		Balance:     r.FromBalance,
		Recipient:   Recipient{Username: r.To},
		CompletedAt: r.CommittedAt,
		Replayed:    replayed,
	}
}
