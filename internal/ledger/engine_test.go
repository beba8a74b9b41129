package ledger

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sudo-init-do/gamevault/internal/models"
	"github.com/sudo-init-do/gamevault/internal/store/memstore"
)

var (
	buyer  = models.WalletKey{UserID: "buyer", Currency: "USD"}
	seller = models.WalletKey{UserID: "seller", Currency: "USD"}
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newEngine(t *testing.T, opts ...Option) (*Engine, *memstore.Store) {
	t.Helper()
	st := memstore.New()
	return New(st, zap.NewNop(), opts...), st
}

func fund(t *testing.T, e *Engine, key models.WalletKey, amount string) {
	t.Helper()
	_, err := e.Credit(context.Background(), key, d(amount), "seed:"+key.String()+":"+amount)
	require.NoError(t, err)
}

func balances(t *testing.T, e *Engine, key models.WalletKey) (string, string) {
	t.Helper()
	w, err := e.Wallet(context.Background(), key)
	require.NoError(t, err)
	return w.Available.String(), w.Escrow.String()
}

func TestHoldThenCaptureScenario(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	fund(t, e, buyer, "1000")

	_, err := e.Hold(ctx, buyer, d("300"), "order1")
	require.NoError(t, err)
	avail, esc := balances(t, e, buyer)
	assert.Equal(t, "700", avail)
	assert.Equal(t, "300", esc)

	entry, err := e.Capture(ctx, buyer, seller, d("300"), "order1")
	require.NoError(t, err)
	assert.Equal(t, models.EntryCapture, entry.Kind)
	assert.Equal(t, "seller", entry.CounterUserID)
	assert.True(t, entry.CounterAvailableAfter.Valid)
	assert.Equal(t, "300", entry.CounterAvailableAfter.Decimal.String())

	avail, esc = balances(t, e, buyer)
	assert.Equal(t, "700", avail)
	assert.Equal(t, "0", esc)
	avail, esc = balances(t, e, seller)
	assert.Equal(t, "300", avail)
	assert.Equal(t, "0", esc)
}

func TestHoldReleaseRoundTrip(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	fund(t, e, buyer, "250.75")

	before, err := e.Wallet(ctx, buyer)
	require.NoError(t, err)

	_, err = e.Hold(ctx, buyer, d("100.25"), "order-rt")
	require.NoError(t, err)
	_, err = e.Release(ctx, buyer, d("100.25"), "order-rt")
	require.NoError(t, err)

	after, err := e.Wallet(ctx, buyer)
	require.NoError(t, err)
	assert.True(t, before.Available.Equal(after.Available))
	assert.True(t, before.Escrow.Equal(after.Escrow))
}

func TestOperationsRejectBadInput(t *testing.T) {
	e, st := newEngine(t)
	ctx := context.Background()
	fund(t, e, buyer, "50")

	tests := []struct {
		name string
		run  func() error
		want error
	}{
		{"zero credit", func() error { _, err := e.Credit(ctx, buyer, decimal.Zero, "c0"); return err }, models.ErrInvalidAmount},
		{"credit finer than the store keeps", func() error { _, err := e.Credit(ctx, buyer, d("0.000000001"), "c1"); return err }, models.ErrInvalidAmount},
		{"hold finer than the store keeps", func() error { _, err := e.Hold(ctx, buyer, d("1.123456789"), "h0"); return err }, models.ErrInvalidAmount},
		{"credit too large for the store", func() error { _, err := e.Credit(ctx, buyer, d("1e30"), "c2"); return err }, models.ErrInvalidAmount},
		{"credit to empty wallet", func() error { _, err := e.Credit(ctx, models.WalletKey{}, d("5"), "c3"); return err }, models.ErrInvalidWallet},
		{"debit without currency", func() error {
			_, err := e.Debit(ctx, models.WalletKey{UserID: "buyer"}, d("1"), "d2")
			return err
		}, models.ErrInvalidWallet},
		{"capture to wallet without user", func() error {
			_, err := e.Capture(ctx, buyer, models.WalletKey{Currency: "USD"}, d("1"), "x4")
			return err
		}, models.ErrInvalidWallet},
		{"negative debit", func() error { _, err := e.Debit(ctx, buyer, d("-1"), "d0"); return err }, models.ErrInvalidAmount},
		{"debit over balance", func() error { _, err := e.Debit(ctx, buyer, d("50.01"), "d1"); return err }, models.ErrInsufficientFunds},
		{"hold over balance", func() error { _, err := e.Hold(ctx, buyer, d("51"), "h1"); return err }, models.ErrInsufficientFunds},
		{"release without escrow", func() error { _, err := e.Release(ctx, buyer, d("1"), "r1"); return err }, models.ErrInsufficientEscrow},
		{"capture without escrow", func() error { _, err := e.Capture(ctx, buyer, seller, d("1"), "x1"); return err }, models.ErrInsufficientEscrow},
		{"capture across currencies", func() error {
			_, err := e.Capture(ctx, buyer, models.WalletKey{UserID: "seller", Currency: "EUR"}, d("1"), "x2")
			return err
		}, models.ErrCurrencyMismatch},
		{"capture to self", func() error { _, err := e.Capture(ctx, buyer, buyer, d("1"), "x3"); return err }, ErrSameWallet},
		{"missing cause", func() error { _, err := e.Credit(ctx, buyer, d("1"), ""); return err }, ErrMissingCause},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.run(), tt.want)
		})
	}

	avail, esc := balances(t, e, buyer)
	assert.Equal(t, "50", avail)
	assert.Equal(t, "0", esc)

	wallets, err := st.ListWallets(ctx)
	require.NoError(t, err)
	require.Len(t, wallets, 1)
	assert.Equal(t, buyer, wallets[0].Key())
}

func TestReplayIsIdempotent(t *testing.T) {
	e, st := newEngine(t)
	ctx := context.Background()

	first, err := e.Credit(ctx, buyer, d("500"), "deposit-1")
	require.NoError(t, err)
	second, err := e.Credit(ctx, buyer, d("500"), "deposit-1")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	avail, _ := balances(t, e, buyer)
	assert.Equal(t, "500", avail)

	entries, err := st.ListEntries(ctx, buyer, 0, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	t.Run("same cause different amount conflicts", func(t *testing.T) {
		_, err := e.Credit(ctx, buyer, d("600"), "deposit-1")
		assert.ErrorIs(t, err, models.ErrCauseConflict)
	})
	t.Run("same cause different wallet conflicts", func(t *testing.T) {
		_, err := e.Credit(ctx, seller, d("500"), "deposit-1")
		assert.ErrorIs(t, err, models.ErrCauseConflict)
	})
	t.Run("same cause different kind is independent", func(t *testing.T) {
		_, err := e.Hold(ctx, buyer, d("100"), "deposit-1")
		assert.NoError(t, err)
	})
}

func TestRunIsAtomic(t *testing.T) {
	e, st := newEngine(t)
	ctx := context.Background()
	fund(t, e, buyer, "100")

	err := e.Run(ctx, []models.WalletKey{buyer, seller}, func(ctx context.Context, ops *Ops) error {
		if _, err := ops.Hold(ctx, buyer, d("40"), "atomic-1"); err != nil {
			return err
		}
		_, err := ops.Capture(ctx, buyer, seller, d("60"), "atomic-1")
		return err
	})
	require.ErrorIs(t, err, models.ErrInsufficientEscrow)

	avail, esc := balances(t, e, buyer)
	assert.Equal(t, "100", avail)
	assert.Equal(t, "0", esc)
	_, err = st.GetWallet(ctx, seller)
	assert.ErrorIs(t, err, models.ErrNotFound, "failed run must not create wallets")
}

func TestRunRejectsUndeclaredWallet(t *testing.T) {
	e, _ := newEngine(t)
	err := e.Run(context.Background(), []models.WalletKey{buyer}, func(ctx context.Context, ops *Ops) error {
		_, err := ops.Credit(ctx, seller, d("1"), "undeclared")
		return err
	})
	assert.ErrorIs(t, err, errNotLocked)
}

func TestConcurrentDebitsNeverOverdraw(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	fund(t, e, seller, "1000")

	const workers = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	debited := decimal.Zero
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := e.Debit(ctx, seller, d("30"), fmt.Sprintf("payout-%d", i))
			if err == nil {
				mu.Lock()
				debited = debited.Add(d("30"))
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, models.ErrInsufficientFunds)
		}(i)
	}
	wg.Wait()

	assert.True(t, debited.LessThanOrEqual(d("1000")))
	assert.Equal(t, "990", debited.String())
	avail, _ := balances(t, e, seller)
	assert.Equal(t, "10", avail)
}

func TestOppositeCapturesDoNotDeadlock(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	fund(t, e, buyer, "1000")
	fund(t, e, seller, "1000")
	_, err := e.Hold(ctx, buyer, d("500"), "hold-a")
	require.NoError(t, err)
	_, err = e.Hold(ctx, seller, d("500"), "hold-b")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(2)
			go func(i int) {
				defer wg.Done()
				_, err := e.Capture(ctx, buyer, seller, d("10"), fmt.Sprintf("ab-%d", i))
				assert.NoError(t, err)
			}(i)
			go func(i int) {
				defer wg.Done()
				_, err := e.Capture(ctx, seller, buyer, d("10"), fmt.Sprintf("ba-%d", i))
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("captures in opposite order deadlocked")
	}

	for _, key := range []models.WalletKey{buyer, seller} {
		avail, esc := balances(t, e, key)
		assert.Equal(t, "1000", avail)
		assert.Equal(t, "0", esc)
	}
}

func TestReconcileMatchesStoredBalances(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	fund(t, e, buyer, "300")
	_, err := e.Hold(ctx, buyer, d("120"), "o1")
	require.NoError(t, err)
	_, err = e.Capture(ctx, buyer, seller, d("120"), "o1")
	require.NoError(t, err)
	_, err = e.Debit(ctx, seller, d("20"), "w1")
	require.NoError(t, err)

	for _, key := range []models.WalletKey{buyer, seller} {
		drift, err := e.Reconcile(ctx, key)
		require.NoError(t, err)
		assert.True(t, drift.InSync(), "wallet %s drifted: %+v", key, drift)
	}

	drift, err := e.Reconcile(ctx, seller)
	require.NoError(t, err)
	assert.Equal(t, "100", drift.ExpectedAvailable.String())
	assert.Equal(t, 2, drift.Entries)
}

type fakeCache struct {
	mu   sync.Mutex
	data map[models.WalletKey]models.Wallet
}

func (c *fakeCache) Get(_ context.Context, key models.WalletKey) (*models.Wallet, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.data[key]
	if !ok {
		return nil, false
	}
	return &w, true
}

func (c *fakeCache) Set(_ context.Context, w models.Wallet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.data[w.Key()]; ok && cur.Version >= w.Version {
		return
	}
	c.data[w.Key()] = w
}

type countingRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func (r *countingRecorder) ObserveOperation(kind models.EntryKind, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[string(kind)+"/"+outcome]++
}

func TestCacheAndRecorderHooks(t *testing.T) {
	cache := &fakeCache{data: map[models.WalletKey]models.Wallet{}}
	rec := &countingRecorder{counts: map[string]int{}}
	e, _ := newEngine(t, WithCache(cache), WithRecorder(rec))
	ctx := context.Background()

	fund(t, e, buyer, "10")
	_, err := e.Wallet(ctx, buyer)
	require.NoError(t, err)
	_, cached := cache.Get(ctx, buyer)
	assert.True(t, cached)

	_, err = e.Hold(ctx, buyer, d("4"), "o-cache")
	require.NoError(t, err)
	w, cached := cache.Get(ctx, buyer)
	require.True(t, cached)
	assert.Equal(t, "6", w.Available.String(), "commit writes the new balance through")
	assert.Equal(t, "4", w.Escrow.String())

	_, err = e.Hold(ctx, buyer, d("4"), "o-cache")
	require.NoError(t, err)
	_, err = e.Debit(ctx, buyer, d("100"), "too-much")
	require.Error(t, err)

	assert.Equal(t, 1, rec.counts["credit/applied"])
	assert.Equal(t, 1, rec.counts["hold/applied"])
	assert.Equal(t, 1, rec.counts["hold/replayed"])
	assert.Equal(t, 1, rec.counts["debit/rejected"])
}

func TestStaleDisplayReadCannotOverwriteCommit(t *testing.T) {
	cache := &fakeCache{data: map[models.WalletKey]models.Wallet{}}
	e, st := newEngine(t, WithCache(cache))
	ctx := context.Background()
	fund(t, e, buyer, "100")

	// A display read loads the wallet, a debit commits, then the read
	// finally reaches the cache with what it loaded.
	before, err := st.GetWallet(ctx, buyer)
	require.NoError(t, err)
	_, err = e.Debit(ctx, buyer, d("40"), "late-read")
	require.NoError(t, err)
	cache.Set(ctx, *before)

	avail, _ := balances(t, e, buyer)
	assert.Equal(t, "60", avail)
}

func TestLockTableDropsIdleEntries(t *testing.T) {
	e, _ := newEngine(t)
	fund(t, e, buyer, "1")
	assert.Equal(t, 0, e.locks.size())
}

// randomSequence applies random operations across a few wallets and checks
// the invariants after every step.
func randomSequence(t *testing.T, seed int64, steps int) {
	e, st := newEngine(t)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(seed))
	keys := []models.WalletKey{
		{UserID: "a", Currency: "USD"},
		{UserID: "b", Currency: "USD"},
		{UserID: "c", Currency: "USD"},
	}

	for i := 0; i < steps; i++ {
		key := keys[rng.Intn(len(keys))]
		amount := decimal.New(int64(rng.Intn(200)-10), -int32(rng.Intn(3)))
		cause := fmt.Sprintf("op-%d", rng.Intn(steps+1))

		switch rng.Intn(5) {
		case 0:
			_, _ = e.Credit(ctx, key, amount, cause)
		case 1:
			_, _ = e.Debit(ctx, key, amount, cause)
		case 2:
			_, _ = e.Hold(ctx, key, amount, cause)
		case 3:
			_, _ = e.Release(ctx, key, amount, cause)
		case 4:
			_, _ = e.Capture(ctx, key, keys[rng.Intn(len(keys))], amount, cause)
		}

		for _, k := range keys {
			w, err := e.Wallet(ctx, k)
			require.NoError(t, err)
			require.False(t, w.Available.IsNegative(), "negative available on %s at step %d", k, i)
			require.False(t, w.Escrow.IsNegative(), "negative escrow on %s at step %d", k, i)
		}
	}

	// Money is conserved: the sum of all balances equals credits minus debits.
	total := decimal.Zero
	want := decimal.Zero
	for _, k := range keys {
		w, err := e.Wallet(ctx, k)
		require.NoError(t, err)
		total = total.Add(w.Total())

		entries, err := st.ListEntries(ctx, k, 0, 0)
		require.NoError(t, err)
		for _, en := range entries {
			if en.Wallet() != k {
				continue
			}
			switch en.Kind {
			case models.EntryCredit:
				want = want.Add(en.Amount)
			case models.EntryDebit:
				want = want.Sub(en.Amount)
			}
		}

		drift, err := e.Reconcile(ctx, k)
		require.NoError(t, err)
		require.True(t, drift.InSync(), "drift on %s", k)
	}
	require.True(t, total.Equal(want), "total %s, want %s", total, want)
}

func TestRandomSequencesKeepInvariants(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		t.Run(fmt.Sprintf("seed=%d", seed), func(t *testing.T) {
			randomSequence(t, seed, 200)
		})
	}
}

func FuzzLedgerInvariants(f *testing.F) {
	f.Add(int64(1), uint8(50))
	f.Add(int64(42), uint8(200))
	f.Fuzz(func(t *testing.T, seed int64, steps uint8) {
		randomSequence(t, seed, int(steps))
	})
}
