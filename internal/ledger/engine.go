// Package ledger is the only writer of wallet balances. Every mutation is
// recorded as an immutable LedgerEntry keyed by (kind, causeRef), which makes
// each operation idempotent.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sudo-init-do/gamevault/internal/models"
	"github.com/sudo-init-do/gamevault/internal/store"
)

var (
	ErrMissingCause = errors.New("cause reference is required")
	ErrSameWallet   = errors.New("capture source and destination are the same wallet")
	errNotLocked    = errors.New("wallet was not declared for this run")
)

// Outcomes reported to the Recorder.
const (
	OutcomeApplied  = "applied"
	OutcomeReplayed = "replayed"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// BalanceCache is the display cache in front of GetWallet. Set must ignore a
// wallet whose Version is not newer than the cached one.
type BalanceCache interface {
	Get(ctx context.Context, key models.WalletKey) (*models.Wallet, bool)
	Set(ctx context.Context, w models.Wallet)
}

type Recorder interface {
	ObserveOperation(kind models.EntryKind, outcome string, elapsed time.Duration)
}

type Engine struct {
	store   store.Store
	locks   *lockTable
	cache   BalanceCache
	metrics Recorder
	log     *zap.Logger
	now     func() time.Time
}

type Option func(*Engine)

// WithCache serves Wallet reads from c. Commits write the new balances
// through, so a cached wallet lags the store only when that write fails, and
// then for at most the cache's TTL.
func WithCache(c BalanceCache) Option { return func(e *Engine) { e.cache = c } }

func WithRecorder(r Recorder) Option { return func(e *Engine) { e.metrics = r } }

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

func New(st store.Store, log *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		store: st,
		locks: newLockTable(),
		log:   log.Named("ledger"),
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run serializes on every wallet in wallets, opens one store transaction and
// hands fn an Ops bound to it. Whatever fn writes through ops.Tx() commits or
// rolls back together with the balance changes. fn may be re-run by the store
// on a transient conflict.
func (e *Engine) Run(ctx context.Context, wallets []models.WalletKey, fn func(ctx context.Context, ops *Ops) error) error {
	for _, k := range wallets {
		if !k.Valid() {
			return fmt.Errorf("wallet %q: %w", k.String(), models.ErrInvalidWallet)
		}
	}
	keys := sortKeys(wallets)
	release := e.locks.acquire(keys)
	defer release()

	start := time.Now()
	var ops *Ops
	err := e.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		locked, err := tx.LockWallets(ctx, keys)
		if err != nil {
			return err
		}
		ops = &Ops{tx: tx, wallets: locked, now: e.now()}
		return fn(ctx, ops)
	})
	elapsed := time.Since(start)

	if ops == nil {
		return err
	}
	if err != nil {
		for _, r := range ops.results {
			if r.err != nil {
				e.observe(r.kind, outcomeOf(r.err), elapsed)
			}
		}
		return err
	}
	e.afterCommit(ctx, ops, elapsed)
	return nil
}

func (e *Engine) afterCommit(ctx context.Context, ops *Ops, elapsed time.Duration) {
	var touched []models.WalletKey
	for _, r := range ops.results {
		if r.err != nil || r.entry == nil {
			continue
		}
		if r.replayed {
			e.observe(r.kind, OutcomeReplayed, elapsed)
			e.log.Debug("ledger entry replayed",
				zap.String("kind", string(r.kind)),
				zap.String("cause_ref", r.entry.CauseRef),
				zap.String("entry_id", r.entry.ID))
			continue
		}
		e.observe(r.kind, OutcomeApplied, elapsed)
		touched = append(touched, r.entry.Wallet())
		fields := []zap.Field{
			zap.String("kind", string(r.kind)),
			zap.String("wallet", r.entry.Wallet().String()),
			zap.String("amount", r.entry.Amount.String()),
			zap.String("cause_ref", r.entry.CauseRef),
			zap.String("entry_id", r.entry.ID),
		}
		if counter, ok := r.entry.Counter(); ok {
			touched = append(touched, counter)
			fields = append(fields, zap.String("counter_wallet", counter.String()))
		}
		e.log.Info("ledger entry applied", fields...)
	}
	if e.cache != nil {
		for _, k := range touched {
			if w, ok := ops.wallets[k]; ok {
				e.cache.Set(ctx, *w)
			}
		}
	}
}

func (e *Engine) observe(kind models.EntryKind, outcome string, elapsed time.Duration) {
	if e.metrics != nil {
		e.metrics.ObserveOperation(kind, outcome, elapsed)
	}
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, models.ErrInvalidAmount),
		errors.Is(err, models.ErrInsufficientFunds),
		errors.Is(err, models.ErrInsufficientEscrow),
		errors.Is(err, models.ErrCauseConflict),
		errors.Is(err, models.ErrCurrencyMismatch),
		errors.Is(err, ErrMissingCause),
		errors.Is(err, ErrSameWallet):
		return OutcomeRejected
	}
	return OutcomeFailed
}

// =========================
// Single-operation helpers
// =========================

func (e *Engine) Credit(ctx context.Context, key models.WalletKey, amount decimal.Decimal, causeRef string) (*models.LedgerEntry, error) {
	return e.single(ctx, []models.WalletKey{key}, func(ctx context.Context, ops *Ops) (*models.LedgerEntry, error) {
		return ops.Credit(ctx, key, amount, causeRef)
	})
}

func (e *Engine) Debit(ctx context.Context, key models.WalletKey, amount decimal.Decimal, causeRef string) (*models.LedgerEntry, error) {
	return e.single(ctx, []models.WalletKey{key}, func(ctx context.Context, ops *Ops) (*models.LedgerEntry, error) {
		return ops.Debit(ctx, key, amount, causeRef)
	})
}

func (e *Engine) Hold(ctx context.Context, key models.WalletKey, amount decimal.Decimal, causeRef string) (*models.LedgerEntry, error) {
	return e.single(ctx, []models.WalletKey{key}, func(ctx context.Context, ops *Ops) (*models.LedgerEntry, error) {
		return ops.Hold(ctx, key, amount, causeRef)
	})
}

func (e *Engine) Release(ctx context.Context, key models.WalletKey, amount decimal.Decimal, causeRef string) (*models.LedgerEntry, error) {
	return e.single(ctx, []models.WalletKey{key}, func(ctx context.Context, ops *Ops) (*models.LedgerEntry, error) {
		return ops.Release(ctx, key, amount, causeRef)
	})
}

func (e *Engine) Capture(ctx context.Context, src, dst models.WalletKey, amount decimal.Decimal, causeRef string) (*models.LedgerEntry, error) {
	return e.single(ctx, []models.WalletKey{src, dst}, func(ctx context.Context, ops *Ops) (*models.LedgerEntry, error) {
		return ops.Capture(ctx, src, dst, amount, causeRef)
	})
}

func (e *Engine) single(ctx context.Context, keys []models.WalletKey, op func(ctx context.Context, ops *Ops) (*models.LedgerEntry, error)) (*models.LedgerEntry, error) {
	var entry *models.LedgerEntry
	err := e.Run(ctx, keys, func(ctx context.Context, ops *Ops) error {
		var err error
		entry, err = op(ctx, ops)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// =========================
// Reads
// =========================

// Wallet is the display read. It takes no lock and may be served from the
// cache; a wallet that was never touched reads as zero balances.
func (e *Engine) Wallet(ctx context.Context, key models.WalletKey) (*models.Wallet, error) {
	if e.cache != nil {
		if w, ok := e.cache.Get(ctx, key); ok {
			return w, nil
		}
	}
	w, err := e.store.GetWallet(ctx, key)
	if errors.Is(err, models.ErrNotFound) {
		return models.NewWallet(key, time.Time{}), nil
	}
	if err != nil {
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	if e.cache != nil {
		e.cache.Set(ctx, *w)
	}
	return w, nil
}

func (e *Engine) Entries(ctx context.Context, key models.WalletKey, limit, offset int) ([]models.LedgerEntry, error) {
	entries, err := e.store.ListEntries(ctx, key, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	return entries, nil
}
