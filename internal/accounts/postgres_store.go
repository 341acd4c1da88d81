package accounts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/transfer-api/transfer_api/internal/money"
)

// Postgres error codes the store reacts to.
const (
	pgUniqueViolation      = "23505"
	pgCheckViolation       = "23514"
	pgNumericOutOfRange    = "22003"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgQueryCanceled        = "57014"
	pgAdminShutdown        = "57P01"
	pgCannotConnectNow     = "57P03"
)

// PostgresStore persists accounts and committed transfers in PostgreSQL.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore builds a store backed by the provided pool. The schema is created by
// infra.Migrate.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const accountColumns = `username, password_hash, balance, favorites, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var (
		a       Account
		balance int64
	)
	if err := row.Scan(&a.Username, &a.PasswordHash, &balance, &a.Favorites, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return Account{}, err
	}
	a.Balance = money.Amount(balance)
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	if a.Favorites == nil {
		a.Favorites = []string{}
	}
	return a, nil
}

// Get fetches an account by username.
func (s *PostgresStore) Get(ctx context.Context, username string) (Account, error) {
	row := s.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE username = $1`, username)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, notFound(username)
		}
		return Account{}, classify(err)
	}
	return a, nil
}

// Create inserts a new account; a taken username yields ErrAlreadyExists.
func (s *PostgresStore) Create(ctx context.Context, in NewAccount) (Account, error) {
	if in.OpeningBalance < 0 {
		return Account{}, ErrNonPositiveAmount
	}
	now := time.Now().UTC()
	row := s.db.QueryRow(ctx, `INSERT INTO accounts (username, password_hash, balance, favorites, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $5)
        RETURNING `+accountColumns,
		in.Username, in.PasswordHash, int64(in.OpeningBalance), NormalizeFavorites(in.Favorites), now)
	a, err := scanAccount(row)
	if err != nil {
		if pgCode(err) == pgUniqueViolation {
			return Account{}, ErrAlreadyExists
		}
		return Account{}, classify(err)
	}
	return a, nil
}

// SetFavorites replaces the favored-recipient list.
func (s *PostgresStore) SetFavorites(ctx context.Context, username string, favorites []string) (Account, error) {
	row := s.db.QueryRow(ctx, `UPDATE accounts SET favorites = $2, updated_at = $3
        WHERE username = $1
        RETURNING `+accountColumns,
		username, NormalizeFavorites(favorites), time.Now().UTC())
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, notFound(username)
		}
		return Account{}, classify(err)
	}
	return a, nil
}

// Credit adds amount to a single balance.
func (s *PostgresStore) Credit(ctx context.Context, username string, amount money.Amount) (money.Amount, error) {
	if amount <= 0 {
		return 0, ErrNonPositiveAmount
	}
	var balance int64
	err := s.db.QueryRow(ctx, `UPDATE accounts SET balance = balance + $2, updated_at = $3
        WHERE username = $1 RETURNING balance`, username, int64(amount), time.Now().UTC()).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, notFound(username)
		}
		return 0, classify(err)
	}
	return money.Amount(balance), nil
}

// AtomicTransfer runs the whole order in one transaction. Both rows are locked with
// SELECT ... ORDER BY username FOR UPDATE so overlapping orders queue in the same order.
func (s *PostgresStore) AtomicTransfer(ctx context.Context, order Order) (Receipt, error) {
	if order.Amount <= 0 {
		return Receipt{}, ErrNonPositiveAmount
	}
	if order.From == order.To {
		return Receipt{}, ErrSameAccount
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return Receipt{}, classify(err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	rows, err := tx.Query(ctx, `SELECT username, balance FROM accounts
        WHERE username = ANY($1) ORDER BY username FOR UPDATE`, []string{order.From, order.To})
	if err != nil {
		return Receipt{}, classify(err)
	}
	balances := make(map[string]int64, 2)
	for rows.Next() {
		var (
			name    string
			balance int64
		)
		if err := rows.Scan(&name, &balance); err != nil {
			rows.Close()
			return Receipt{}, classify(err)
		}
		balances[name] = balance
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Receipt{}, classify(err)
	}

	have, ok := balances[order.From]
	if !ok {
		return Receipt{}, notFound(order.From)
	}
	if _, ok := balances[order.To]; !ok {
		return Receipt{}, notFound(order.To)
	}

	if order.RequestID != "" {
		prior, err := findReceipt(ctx, tx, order.From, order.RequestID)
		switch {
		case err == nil:
			if !prior.Matches(order) {
				return Receipt{}, ErrRequestConflict
			}
			return prior, ErrDuplicateTransfer
		case !errors.Is(err, pgx.ErrNoRows):
			return Receipt{}, classify(err)
		}
	}

	if money.Amount(have) < order.Amount {
		return Receipt{}, &InsufficientFundsError{Username: order.From, Have: money.Amount(have), Need: order.Amount}
	}

	now := time.Now().UTC()
	var fromBalance, toBalance int64
	if err := tx.QueryRow(ctx, `UPDATE accounts SET balance = balance - $2, updated_at = $3
        WHERE username = $1 RETURNING balance`, order.From, int64(order.Amount), now).Scan(&fromBalance); err != nil {
		return Receipt{}, classify(err)
	}
	if err := tx.QueryRow(ctx, `UPDATE accounts SET balance = balance + $2, updated_at = $3
        WHERE username = $1 RETURNING balance`, order.To, int64(order.Amount), now).Scan(&toBalance); err != nil {
		return Receipt{}, classify(err)
	}

	receipt := Receipt{
		ID:          uuid.NewString(),
		RequestID:   order.RequestID,
		From:        order.From,
		To:          order.To,
		Amount:      order.Amount,
		FromBalance: money.Amount(fromBalance),
		ToBalance:   money.Amount(toBalance),
		CommittedAt: now,
	}

	var requestID *string
	if order.RequestID != "" {
		requestID = &order.RequestID
	}
	if _, err := tx.Exec(ctx, `INSERT INTO transfers (id, request_id, from_username, to_username, amount, from_balance, to_balance, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.MustParse(receipt.ID), requestID, receipt.From, receipt.To, int64(receipt.Amount), fromBalance, toBalance, now); err != nil {
		if pgCode(err) == pgUniqueViolation {
			// The sender row is locked, so this only fires if the lock was bypassed.
			return Receipt{}, ErrRequestConflict
		}
		return Receipt{}, classify(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Receipt{}, classify(err)
	}
	return receipt, nil
}

// FindReceipt looks up a committed transfer by its sender-scoped request id.
func (s *PostgresStore) FindReceipt(ctx context.Context, from, requestID string) (Receipt, bool, error) {
	if requestID == "" {
		return Receipt{}, false, nil
	}
	r, err := findReceipt(ctx, s.db, from, requestID)
	switch {
	case err == nil:
		return r, true, nil
	case errors.Is(err, pgx.ErrNoRows):
		return Receipt{}, false, nil
	default:
		return Receipt{}, false, classify(err)
	}
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func findReceipt(ctx context.Context, q rowQuerier, from, requestID string) (Receipt, error) {
	var (
		r                  Receipt
		id                 uuid.UUID
		amount, fromB, toB int64
	)
	err := q.QueryRow(ctx, `SELECT id, from_username, to_username, amount, from_balance, to_balance, created_at
        FROM transfers WHERE from_username = $1 AND request_id = $2`, from, requestID).
		Scan(&id, &r.From, &r.To, &amount, &fromB, &toB, &r.CommittedAt)
	if err != nil {
		return Receipt{}, err
	}
	r.ID = id.String()
	r.RequestID = requestID
	r.Amount = money.Amount(amount)
	r.FromBalance = money.Amount(fromB)
	r.ToBalance = money.Amount(toB)
	r.CommittedAt = r.CommittedAt.UTC()
	return r, nil
}

// TotalBalance sums all balances in one statement snapshot.
func (s *PostgresStore) TotalBalance(ctx context.Context) (money.Amount, error) {
	var total int64
	if err := s.db.QueryRow(ctx, `SELECT COALESCE(SUM(balance), 0)::BIGINT FROM accounts`).Scan(&total); err != nil {
		return 0, classify(err)
	}
	return money.Amount(total), nil
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// classify maps driver errors onto the store's error set. Transient failures become
// ErrStoreUnavailable so callers can retry.
func classify(err error) error {
	if err == nil {
		return nil
	}
	switch pgCode(err) {
	case pgNumericOutOfRange:
		return fmt.Errorf("%w: %v", money.ErrOverflow, err)
	case pgCheckViolation:
		return fmt.Errorf("%w: %v", ErrInsufficientFunds, err)
	case pgSerializationFailure, pgDeadlockDetected, pgQueryCanceled, pgAdminShutdown, pgCannotConnectNow:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) || pgconn.Timeout(err) || pgconn.SafeToRetry(err) ||
		errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return err
}
