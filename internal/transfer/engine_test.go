package transfer

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/transfer-api/transfer_api/internal/accounts"
	"github.com/transfer-api/transfer_api/internal/logging"
	"github.com/transfer-api/transfer_api/internal/money"
	"github.com/transfer-api/transfer_api/internal/notification"
)

type fixture struct {
	store    accounts.Store
	engine   *Engine
	notifier *notification.Recorder
	metrics  *Metrics
}

type seed struct {
	name      string
	balance   string
	favorites []string
}

func newFixture(t *testing.T, rules Rules, seeds ...seed) fixture {
	t.Helper()
	store := accounts.NewMemoryStore()
	ctx := context.Background()
	for _, s := range seeds {
		_, err := store.Create(ctx, accounts.NewAccount{
			Username:       s.name,
			PasswordHash:   []byte("hash"),
			Favorites:      s.favorites,
			OpeningBalance: money.MustParse(s.balance),
		})
		if err != nil {
			t.Fatalf("seed %s: %v", s.name, err)
		}
	}
	rec := &notification.Recorder{}
	metrics := NewMetrics(prometheus.NewRegistry())
	engine := NewEngine(store, rules,
		WithNotifier(rec),
		WithMetrics(metrics),
		WithLogger(logging.Discard()),
	)
	return fixture{store: store, engine: engine, notifier: rec, metrics: metrics}
}

func (f fixture) balance(t *testing.T, name string) money.Amount {
	t.Helper()
	a, err := f.store.Get(context.Background(), name)
	if err != nil {
		t.Fatalf("get %s: %v", name, err)
	}
	return a.Balance
}

func TestTransferMovesFunds(t *testing.T) {
	f := newFixture(t, DefaultRules(), seed{name: "alice", balance: "100"}, seed{name: "bob", balance: "0"})

	res, err := f.engine.Transfer(context.Background(), "alice", Request{From: "alice", To: "bob", Amount: money.MustParse("40")})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if res.Balance != money.MustParse("60") {
		t.Fatalf("expected sender balance 60.00, got %s", res.Balance)
	}
	if res.Recipient.Username != "bob" || res.TransferID == "" || res.CompletedAt.IsZero() {
		t.Fatalf("unexpected result: %+v", res)
	}
	if got := f.balance(t, "bob"); got != money.MustParse("40") {
		t.Fatalf("expected bob 40.00, got %s", got)
	}

	msgs := f.notifier.Messages()
	if len(msgs) != 1 || msgs[0].Destination != "bob" || msgs[0].Kind != notification.KindTransferReceived {
		t.Fatalf("unexpected notifications: %+v", msgs)
	}
	if got := testutil.ToFloat64(f.metrics.transfers.WithLabelValues("committed")); got != 1 {
		t.Fatalf("expected committed counter 1, got %v", got)
	}
}

func TestTransferInsufficientFundsLeavesSnapshot(t *testing.T) {
	f := newFixture(t, Rules{Policy: PolicyOpen}, seed{name: "alice", balance: "60"}, seed{name: "bob", balance: "40"})
	ctx := context.Background()
	before, _ := f.store.TotalBalance(ctx)

	_, err := f.engine.Transfer(ctx, "alice", Request{From: "alice", To: "bob", Amount: money.MustParse("1000")})
	var insufficient *accounts.InsufficientFundsError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientFundsError, got %v", err)
	}
	if insufficient.Have != money.MustParse("60") || insufficient.Need != money.MustParse("1000") {
		t.Fatalf("unexpected have/need: %+v", insufficient)
	}
	if f.balance(t, "alice") != money.MustParse("60") || f.balance(t, "bob") != money.MustParse("40") {
		t.Fatalf("balances changed on failure")
	}
	after, _ := f.store.TotalBalance(ctx)
	if before != after {
		t.Fatalf("total changed: %s -> %s", before, after)
	}
	if len(f.notifier.Messages()) != 0 {
		t.Fatalf("failed transfer must not notify")
	}
	if got := testutil.ToFloat64(f.metrics.transfers.WithLabelValues("insufficient_funds")); got != 1 {
		t.Fatalf("expected insufficient_funds counter 1, got %v", got)
	}
}

func TestTransferValidationOrder(t *testing.T) {
	f := newFixture(t, DefaultRules(), seed{name: "alice", balance: "100"}, seed{name: "bob", balance: "0"})
	ctx := context.Background()

	cases := []struct {
		name   string
		caller string
		req    Request
		want   error
	}{
		{"zero amount", "alice", Request{From: "alice", To: "bob", Amount: 0}, ErrInvalidAmount},
		{"negative amount", "alice", Request{From: "alice", To: "bob", Amount: -100}, ErrInvalidAmount},
		{"amount before ownership", "bob", Request{From: "alice", To: "bob", Amount: 0}, ErrInvalidAmount},
		{"foreign source", "bob", Request{From: "alice", To: "bob", Amount: 100}, ErrForbidden},
		{"anonymous caller", "", Request{From: "alice", To: "bob", Amount: 100}, ErrForbidden},
		{"ownership before self check", "bob", Request{From: "alice", To: "alice", Amount: 100}, ErrForbidden},
		{"self transfer", "alice", Request{From: "alice", To: "alice", Amount: 100}, ErrInvalidTransfer},
		{"unknown recipient", "alice", Request{From: "alice", To: "carol", Amount: 100}, accounts.ErrNotFound},
		{"unknown sender", "dave", Request{From: "dave", To: "carol", Amount: 100}, accounts.ErrNotFound},
	}
	for _, tc := range cases {
		_, err := f.engine.Transfer(ctx, tc.caller, tc.req)
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}

	_, err := f.engine.Transfer(ctx, "dave", Request{From: "dave", To: "carol", Amount: 100})
	var nf *accounts.NotFoundError
	if !errors.As(err, &nf) || nf.Username != "dave" {
		t.Fatalf("expected sender to be reported first, got %v", err)
	}

	if f.balance(t, "alice") != money.MustParse("100") {
		t.Fatalf("rejected requests must not mutate balances")
	}
}

func TestTransferIdempotency(t *testing.T) {
	f := newFixture(t, DefaultRules(), seed{name: "alice", balance: "100"}, seed{name: "bob", balance: "0"})
	ctx := context.Background()
	req := Request{From: "alice", To: "bob", Amount: money.MustParse("10"), RequestID: "req-1"}

	first, err := f.engine.Transfer(ctx, "alice", req)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := f.engine.Transfer(ctx, "alice", req)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !second.Replayed || second.TransferID != first.TransferID || second.Balance != first.Balance {
		t.Fatalf("expected original result on replay, got %+v vs %+v", second, first)
	}
	if f.balance(t, "alice") != money.MustParse("90") {
		t.Fatalf("replay mutated balances")
	}
	if len(f.notifier.Messages()) != 1 {
		t.Fatalf("replay must not notify again")
	}

	req.Amount = money.MustParse("11")
	if _, err := f.engine.Transfer(ctx, "alice", req); !errors.Is(err, accounts.ErrRequestConflict) {
		t.Fatalf("expected ErrRequestConflict, got %v", err)
	}

	noID := Request{From: "alice", To: "bob", Amount: money.MustParse("10")}
	f.engine.Transfer(ctx, "alice", noID)
	f.engine.Transfer(ctx, "alice", noID)
	if f.balance(t, "alice") != money.MustParse("70") {
		t.Fatalf("requests without id must not be deduplicated, balance %s", f.balance(t, "alice"))
	}
}

func TestTransferRequestIDsAreScopedToSender(t *testing.T) {
	f := newFixture(t, Rules{Policy: PolicyOpen}, seed{name: "alice", balance: "100"}, seed{name: "bob", balance: "100"})
	ctx := context.Background()

	if _, err := f.engine.Transfer(ctx, "alice", Request{From: "alice", To: "bob", Amount: money.MustParse("10"), RequestID: "1"}); err != nil {
		t.Fatalf("alice: %v", err)
	}
	res, err := f.engine.Transfer(ctx, "bob", Request{From: "bob", To: "alice", Amount: money.MustParse("25"), RequestID: "1"})
	if err != nil {
		t.Fatalf("bob reusing request id 1: %v", err)
	}
	if res.Replayed || res.Balance != money.MustParse("85") {
		t.Fatalf("expected a fresh transfer for bob, got %+v", res)
	}
	if f.balance(t, "alice") != money.MustParse("115") {
		t.Fatalf("bob's transfer not applied, alice has %s", f.balance(t, "alice"))
	}
}

func TestTransferReplaySurvivesFavoritesChange(t *testing.T) {
	f := newFixture(t, Rules{Policy: PolicyStrict},
		seed{name: "alice", balance: "100", favorites: []string{"bob"}},
		seed{name: "bob", balance: "0"},
	)
	ctx := context.Background()
	req := Request{From: "alice", To: "bob", Amount: money.MustParse("10"), RequestID: "fav-1"}

	first, err := f.engine.Transfer(ctx, "alice", req)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	if _, err := f.store.SetFavorites(ctx, "alice", nil); err != nil {
		t.Fatalf("clear favorites: %v", err)
	}

	again, err := f.engine.Transfer(ctx, "alice", req)
	if err != nil {
		t.Fatalf("retry after favorites change: %v", err)
	}
	if !again.Replayed || again.TransferID != first.TransferID {
		t.Fatalf("expected replay of %s, got %+v", first.TransferID, again)
	}
	if f.balance(t, "alice") != money.MustParse("90") {
		t.Fatalf("replay mutated balances")
	}

	req.Amount = money.MustParse("11")
	if _, err := f.engine.Transfer(ctx, "alice", req); !errors.Is(err, accounts.ErrRequestConflict) {
		t.Fatalf("expected ErrRequestConflict, got %v", err)
	}
}

func TestTransferConcurrentConservation(t *testing.T) {
	f := newFixture(t, Rules{Policy: PolicyOpen},
		seed{name: "alice", balance: "500"},
		seed{name: "bob", balance: "500"},
		seed{name: "carol", balance: "500"},
	)
	ctx := context.Background()
	names := []string{"alice", "bob", "carol"}

	var wg sync.WaitGroup
	for i := 0; i < 90; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			from := names[i%3]
			to := names[(i+1+(i/3)%2)%3]
			_, err := f.engine.Transfer(ctx, from, Request{From: from, To: to, Amount: money.Amount(1_000 + i)})
			if err != nil && !errors.Is(err, accounts.ErrInsufficientFunds) {
				t.Errorf("transfer %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	total, err := f.store.TotalBalance(ctx)
	if err != nil {
		t.Fatalf("total: %v", err)
	}
	if total != money.MustParse("1500") {
		t.Fatalf("conservation violated: %s", total)
	}
	for _, n := range names {
		if f.balance(t, n) < 0 {
			t.Fatalf("negative balance for %s", n)
		}
	}
}
