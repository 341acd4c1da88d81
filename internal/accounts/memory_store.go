package accounts

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/transfer-api/transfer_api/internal/money"
)

type accountSlot struct {
	mu      sync.Mutex
	account Account
}

type requestRecord struct {
	pending   bool
	receipt   Receipt
	expiresAt time.Time
}

type memoryStore struct {
	mu       sync.RWMutex
	accounts map[string]*accountSlot

	reqMu     sync.Mutex
	requests  map[string]*requestRecord
	reqTTL    time.Duration
	lastSweep time.Time

	now func() time.Time
}

// MemoryOption customizes the in-memory store.
type MemoryOption func(*memoryStore)

// WithRequestTTL bounds how long a committed request id is remembered. Zero keeps
// request ids forever.
func WithRequestTTL(ttl time.Duration) MemoryOption {
	return func(s *memoryStore) { s.reqTTL = ttl }
}

// NewMemoryStore builds a concurrency-safe in-memory store. Each account carries its
// own mutex; transfers lock both accounts in username order.
func NewMemoryStore(opts ...MemoryOption) Store {
	s := &memoryStore{
		accounts: make(map[string]*accountSlot),
		requests: make(map[string]*requestRecord),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *memoryStore) slot(username string) (*accountSlot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sl, ok := s.accounts[username]
	return sl, ok
}

func (s *memoryStore) Get(_ context.Context, username string) (Account, error) {
	sl, ok := s.slot(username)
	if !ok {
		return Account{}, notFound(username)
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.account.clone(), nil
}

func (s *memoryStore) Create(_ context.Context, in NewAccount) (Account, error) {
	if in.OpeningBalance < 0 {
		return Account{}, ErrNonPositiveAmount
	}
	now := s.now().UTC()
	acct := Account{
		Username:     in.Username,
		PasswordHash: append([]byte(nil), in.PasswordHash...),
		Balance:      in.OpeningBalance,
		Favorites:    NormalizeFavorites(in.Favorites),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.accounts[in.Username]; exists {
		return Account{}, ErrAlreadyExists
	}
	s.accounts[in.Username] = &accountSlot{account: acct}
	return acct.clone(), nil
}

func (s *memoryStore) SetFavorites(_ context.Context, username string, favorites []string) (Account, error) {
	sl, ok := s.slot(username)
	if !ok {
		return Account{}, notFound(username)
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	sl.account.Favorites = NormalizeFavorites(favorites)
	sl.account.UpdatedAt = s.now().UTC()
	return sl.account.clone(), nil
}

func (s *memoryStore) Credit(_ context.Context, username string, amount money.Amount) (money.Amount, error) {
	if amount <= 0 {
		return 0, ErrNonPositiveAmount
	}
	sl, ok := s.slot(username)
	if !ok {
		return 0, notFound(username)
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	balance, err := sl.account.Balance.Add(amount)
	if err != nil {
		return 0, err
	}
	sl.account.Balance = balance
	sl.account.UpdatedAt = s.now().UTC()
	return balance, nil
}

func (s *memoryStore) AtomicTransfer(_ context.Context, order Order) (Receipt, error) {
	if order.Amount <= 0 {
		return Receipt{}, ErrNonPositiveAmount
	}
	if order.From == order.To {
		return Receipt{}, ErrSameAccount
	}

	from, ok := s.slot(order.From)
	if !ok {
		return Receipt{}, notFound(order.From)
	}
	to, ok := s.slot(order.To)
	if !ok {
		return Receipt{}, notFound(order.To)
	}

	// Total order over usernames keeps A->B and B->A from deadlocking.
	first, second := from, to
	if order.To < order.From {
		first, second = to, from
	}
	first.mu.Lock()
	defer first.mu.Unlock()
	second.mu.Lock()
	defer second.mu.Unlock()

	key := requestKey(order.From, order.RequestID)
	if order.RequestID != "" {
		if rec, err := s.reserve(key, order); err != nil {
			return rec, err
		}
	}

	have := from.account.Balance
	if have < order.Amount {
		s.release(key)
		return Receipt{}, &InsufficientFundsError{Username: order.From, Have: have, Need: order.Amount}
	}
	toBalance, err := to.account.Balance.Add(order.Amount)
	if err != nil {
		s.release(key)
		return Receipt{}, err
	}

	now := s.now().UTC()
	from.account.Balance = have - order.Amount
	from.account.UpdatedAt = now
	to.account.Balance = toBalance
	to.account.UpdatedAt = now

	receipt := Receipt{
		ID:          uuid.NewString(),
		RequestID:   order.RequestID,
		From:        order.From,
		To:          order.To,
		Amount:      order.Amount,
		FromBalance: from.account.Balance,
		ToBalance:   to.account.Balance,
		CommittedAt: now,
	}
	if order.RequestID != "" {
		s.commit(key, receipt)
	}
	return receipt, nil
}

// Request ids are scoped to the sending account.
func requestKey(from, requestID string) string {
	if requestID == "" {
		return ""
	}
	return from + "\x00" + requestID
}

func (r *requestRecord) expired(now time.Time) bool {
	return !r.pending && !r.expiresAt.IsZero() && now.After(r.expiresAt)
}

func (s *memoryStore) FindReceipt(_ context.Context, from, requestID string) (Receipt, bool, error) {
	if requestID == "" {
		return Receipt{}, false, nil
	}
	s.reqMu.Lock()
	defer s.reqMu.Unlock()
	rec, ok := s.requests[requestKey(from, requestID)]
	if !ok || rec.pending || rec.expired(s.now()) {
		return Receipt{}, false, nil
	}
	return rec.receipt, true, nil
}

// reserve marks key as pending, or reports why the order must not run.
func (s *memoryStore) reserve(key string, order Order) (Receipt, error) {
	s.reqMu.Lock()
	defer s.reqMu.Unlock()

	now := s.now()
	s.sweepLocked(now)
	if rec, ok := s.requests[key]; ok {
		if rec.expired(now) {
			delete(s.requests, key)
		} else {
			switch {
			case rec.pending:
				return Receipt{}, ErrTransferInProgress
			case !rec.receipt.Matches(order):
				return Receipt{}, ErrRequestConflict
			default:
				return rec.receipt, ErrDuplicateTransfer
			}
		}
	}
	s.requests[key] = &requestRecord{pending: true}
	return Receipt{}, nil
}

// sweepLocked drops expired records at most once per TTL period. Caller holds reqMu.
func (s *memoryStore) sweepLocked(now time.Time) {
	if s.reqTTL <= 0 || now.Sub(s.lastSweep) < s.reqTTL {
		return
	}
	s.lastSweep = now
	for key, rec := range s.requests {
		if rec.expired(now) {
			delete(s.requests, key)
		}
	}
}

func (s *memoryStore) release(key string) {
	if key == "" {
		return
	}
	s.reqMu.Lock()
	defer s.reqMu.Unlock()
	if rec, ok := s.requests[key]; ok && rec.pending {
		delete(s.requests, key)
	}
}

func (s *memoryStore) commit(key string, receipt Receipt) {
	s.reqMu.Lock()
	defer s.reqMu.Unlock()
	rec := &requestRecord{receipt: receipt}
	if s.reqTTL > 0 {
		rec.expiresAt = s.now().Add(s.reqTTL)
	}
	s.requests[key] = rec
}

func (s *memoryStore) TotalBalance(_ context.Context) (money.Amount, error) {
	s.mu.RLock()
	names := make([]string, 0, len(s.accounts))
	for name := range s.accounts {
		names = append(names, name)
	}
	slots := make([]*accountSlot, 0, len(names))
	sort.Strings(names)
	for _, name := range names {
		slots = append(slots, s.accounts[name])
	}
	s.mu.RUnlock()

	for _, sl := range slots {
		sl.mu.Lock()
	}
	defer func() {
		for _, sl := range slots {
			sl.mu.Unlock()
		}
	}()

	var total money.Amount
	for _, sl := range slots {
		sum, err := total.Add(sl.account.Balance)
		if err != nil {
			return 0, err
		}
		total = sum
	}
	return total, nil
}
