package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/gamevault/internal/models"
	"github.com/sudo-init-do/gamevault/internal/store"
)

var key = models.WalletKey{UserID: "u1", Currency: "USD"}

func TestRollbackDiscardsStagedWrites(t *testing.T) {
	s := New()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		ws, err := tx.LockWallets(ctx, []models.WalletKey{key})
		require.NoError(t, err)
		ws[key].Available = decimal.NewFromInt(10)
		require.NoError(t, tx.SaveWallet(ctx, ws[key]))
		require.NoError(t, tx.CreateOrder(ctx, &models.Order{ID: "o1", State: models.OrderCreated}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.GetWallet(ctx, key)
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = s.GetOrder(ctx, "o1")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestUnsavedLockedWalletIsNotPersisted(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.LockWallets(ctx, []models.WalletKey{key})
		return err
	}))
	_, err := s.GetWallet(ctx, key)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

// Without any outside lock, concurrent read-modify-write transactions must
// still not lose updates: stale commits are rejected and re-run.
func TestConflictingTransactionsAreRetried(t *testing.T) {
	s := New(WithMaxAttempts(1000))
	ctx := context.Background()

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
				ws, err := tx.LockWallets(ctx, []models.WalletKey{key})
				if err != nil {
					return err
				}
				w := ws[key]
				w.Available = w.Available.Add(decimal.NewFromInt(1))
				return tx.SaveWallet(ctx, w)
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	w, err := s.GetWallet(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "20", w.Available.String())
}

func TestStaleBusinessErrorStaysMatchable(t *testing.T) {
	ctx := context.Background()
	seed := func(s *Store) {
		require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
			ws, err := tx.LockWallets(ctx, []models.WalletKey{key})
			if err != nil {
				return err
			}
			ws[key].Available = decimal.NewFromInt(5)
			return tx.SaveWallet(ctx, ws[key])
		}))
	}
	// decide refuses a debit, but only after another writer has moved the
	// wallet underneath it on the first attempt.
	decide := func(s *Store, interfere *bool) func(ctx context.Context, tx store.Tx) error {
		return func(ctx context.Context, tx store.Tx) error {
			if _, err := tx.LockWallets(ctx, []models.WalletKey{key}); err != nil {
				return err
			}
			if *interfere {
				*interfere = false
				require.NoError(t, s.WithTx(ctx, func(ctx context.Context, other store.Tx) error {
					ws, err := other.LockWallets(ctx, []models.WalletKey{key})
					if err != nil {
						return err
					}
					ws[key].Available = ws[key].Available.Add(decimal.NewFromInt(1))
					return other.SaveWallet(ctx, ws[key])
				}))
			}
			return models.ErrInsufficientFunds
		}
	}

	t.Run("last attempt", func(t *testing.T) {
		s := New(WithMaxAttempts(1))
		seed(s)
		interfere := true
		err := s.WithTx(ctx, decide(s, &interfere))
		assert.ErrorIs(t, err, models.ErrConflict)
		assert.ErrorIs(t, err, models.ErrInsufficientFunds)
	})

	t.Run("retried on a fresh snapshot", func(t *testing.T) {
		s := New()
		seed(s)
		interfere := true
		err := s.WithTx(ctx, decide(s, &interfere))
		assert.ErrorIs(t, err, models.ErrInsufficientFunds)
		assert.NotErrorIs(t, err, models.ErrConflict)
	})
}

func TestDuplicateEntryCauseIsRejected(t *testing.T) {
	s := New()
	ctx := context.Background()
	entry := func() *models.LedgerEntry {
		return &models.LedgerEntry{ID: "e", Kind: models.EntryCredit, UserID: "u1", Currency: "USD",
			Amount: decimal.NewFromInt(1), CauseRef: "dep-1"}
	}

	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.AppendEntry(ctx, entry())
	}))
	err := s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.AppendEntry(ctx, entry())
	})
	assert.ErrorIs(t, err, models.ErrCauseConflict)

	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		found, err := tx.FindEntry(ctx, models.EntryCredit, "dep-1")
		require.NoError(t, err)
		assert.Equal(t, int64(1), found.Seq)
		return nil
	}))
}

func TestOpenDisputeLookup(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.CreateDispute(ctx, &models.Dispute{ID: "d1", OrderID: "o1", Status: models.DisputeOpen})
	}))

	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		d, err := tx.LockOpenDispute(ctx, "o1")
		require.NoError(t, err)
		d.Status = models.DisputeResolved
		return tx.UpdateDispute(ctx, d)
	}))

	err := s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.LockOpenDispute(ctx, "o1")
		return err
	})
	assert.ErrorIs(t, err, models.ErrNotFound)

	open, err := s.ListDisputes(ctx, models.DisputeOpen)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestListEntriesIncludesCaptureDestination(t *testing.T) {
	s := New()
	ctx := context.Background()
	dst := models.WalletKey{UserID: "u2", Currency: "USD"}
	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.AppendEntry(ctx, &models.LedgerEntry{ID: "a", Kind: models.EntryCredit, UserID: "u1", Currency: "USD",
			Amount: decimal.NewFromInt(5), CauseRef: "c1"}); err != nil {
			return err
		}
		return tx.AppendEntry(ctx, &models.LedgerEntry{ID: "b", Kind: models.EntryCapture, UserID: "u1", Currency: "USD",
			CounterUserID: "u2", Amount: decimal.NewFromInt(5), CauseRef: "o1"})
	}))

	got, err := s.ListEntries(ctx, dst, 0, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ID)

	page, err := s.ListEntries(ctx, key, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "b", page[0].ID)
}
