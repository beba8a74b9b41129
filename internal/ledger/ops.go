package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sudo-init-do/gamevault/internal/models"
	"github.com/sudo-init-do/gamevault/internal/store"
)

// Ops applies ledger operations inside one Run. It is not safe for use
// outside the fn it was handed to.
type Ops struct {
	tx      store.Tx
	wallets map[models.WalletKey]*models.Wallet
	now     time.Time
	results []result
}

type result struct {
	kind     models.EntryKind
	entry    *models.LedgerEntry
	replayed bool
	err      error
}

// Tx exposes the transaction so callers can write their own rows atomically
// with the balance change.
func (o *Ops) Tx() store.Tx { return o.tx }

// Credit adds amount to available.
func (o *Ops) Credit(ctx context.Context, key models.WalletKey, amount decimal.Decimal, causeRef string) (*models.LedgerEntry, error) {
	return o.apply(ctx, models.EntryCredit, key, nil, amount, causeRef)
}

// Debit removes amount from available.
func (o *Ops) Debit(ctx context.Context, key models.WalletKey, amount decimal.Decimal, causeRef string) (*models.LedgerEntry, error) {
	return o.apply(ctx, models.EntryDebit, key, nil, amount, causeRef)
}

// Hold moves amount from available to escrow.
func (o *Ops) Hold(ctx context.Context, key models.WalletKey, amount decimal.Decimal, causeRef string) (*models.LedgerEntry, error) {
	return o.apply(ctx, models.EntryHold, key, nil, amount, causeRef)
}

// Release moves amount from escrow back to available.
func (o *Ops) Release(ctx context.Context, key models.WalletKey, amount decimal.Decimal, causeRef string) (*models.LedgerEntry, error) {
	return o.apply(ctx, models.EntryRelease, key, nil, amount, causeRef)
}

// Capture moves amount from src escrow to dst available.
func (o *Ops) Capture(ctx context.Context, src, dst models.WalletKey, amount decimal.Decimal, causeRef string) (*models.LedgerEntry, error) {
	return o.apply(ctx, models.EntryCapture, src, &dst, amount, causeRef)
}

func (o *Ops) apply(ctx context.Context, kind models.EntryKind, key models.WalletKey, counter *models.WalletKey, amount decimal.Decimal, causeRef string) (*models.LedgerEntry, error) {
	entry, replayed, err := o.applyEntry(ctx, kind, key, counter, amount, causeRef)
	o.results = append(o.results, result{kind: kind, entry: entry, replayed: replayed, err: err})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (o *Ops) applyEntry(ctx context.Context, kind models.EntryKind, key models.WalletKey, counter *models.WalletKey, amount decimal.Decimal, causeRef string) (*models.LedgerEntry, bool, error) {
	if err := models.ValidAmount(amount); err != nil {
		return nil, false, fmt.Errorf("%s: %w", kind, err)
	}
	if causeRef == "" {
		return nil, false, fmt.Errorf("%s: %w", kind, ErrMissingCause)
	}

	w, ok := o.wallets[key]
	if !ok {
		return nil, false, fmt.Errorf("%s %s: %w", kind, key, errNotLocked)
	}
	var cw *models.Wallet
	if counter != nil {
		if counter.Currency != key.Currency {
			return nil, false, fmt.Errorf("capture %s -> %s: %w", key, *counter, models.ErrCurrencyMismatch)
		}
		if *counter == key {
			return nil, false, fmt.Errorf("capture %s: %w", key, ErrSameWallet)
		}
		if cw, ok = o.wallets[*counter]; !ok {
			return nil, false, fmt.Errorf("%s %s: %w", kind, *counter, errNotLocked)
		}
	}

	prev, err := o.tx.FindEntry(ctx, kind, causeRef)
	switch {
	case err == nil:
		if !sameOperation(prev, key, counter, amount) {
			return nil, false, fmt.Errorf("%s %s: %w", kind, causeRef, models.ErrCauseConflict)
		}
		return prev, true, nil
	case !errors.Is(err, models.ErrNotFound):
		return nil, false, fmt.Errorf("find entry: %w", err)
	}

	next := *w
	var nextCounter models.Wallet
	switch kind {
	case models.EntryCredit:
		next.Available = next.Available.Add(amount)
	case models.EntryDebit:
		if next.Available.LessThan(amount) {
			return nil, false, fmt.Errorf("debit %s from %s: %w", amount, key, models.ErrInsufficientFunds)
		}
		next.Available = next.Available.Sub(amount)
	case models.EntryHold:
		if next.Available.LessThan(amount) {
			return nil, false, fmt.Errorf("hold %s on %s: %w", amount, key, models.ErrInsufficientFunds)
		}
		next.Available = next.Available.Sub(amount)
		next.Escrow = next.Escrow.Add(amount)
	case models.EntryRelease:
		if next.Escrow.LessThan(amount) {
			return nil, false, fmt.Errorf("release %s on %s: %w", amount, key, models.ErrInsufficientEscrow)
		}
		next.Escrow = next.Escrow.Sub(amount)
		next.Available = next.Available.Add(amount)
	case models.EntryCapture:
		if next.Escrow.LessThan(amount) {
			return nil, false, fmt.Errorf("capture %s from %s: %w", amount, key, models.ErrInsufficientEscrow)
		}
		next.Escrow = next.Escrow.Sub(amount)
		nextCounter = *cw
		nextCounter.Available = nextCounter.Available.Add(amount)
	default:
		return nil, false, fmt.Errorf("unknown entry kind %q", kind)
	}

	next.Version++
	next.UpdatedAt = o.now
	if err := o.tx.SaveWallet(ctx, &next); err != nil {
		return nil, false, err
	}

	entry := &models.LedgerEntry{
		ID:             uuid.NewString(),
		Kind:           kind,
		UserID:         key.UserID,
		Currency:       key.Currency,
		Amount:         amount,
		AvailableAfter: next.Available,
		EscrowAfter:    next.Escrow,
		CauseRef:       causeRef,
		CreatedAt:      o.now,
	}
	if counter != nil {
		nextCounter.Version++
		nextCounter.UpdatedAt = o.now
		if err := o.tx.SaveWallet(ctx, &nextCounter); err != nil {
			return nil, false, err
		}
		entry.CounterUserID = counter.UserID
		entry.CounterAvailableAfter = decimal.NewNullDecimal(nextCounter.Available)
	}
	if err := o.tx.AppendEntry(ctx, entry); err != nil {
		return nil, false, err
	}

	*w = next
	if cw != nil {
		*cw = nextCounter
	}
	return entry, false, nil
}

func sameOperation(prev *models.LedgerEntry, key models.WalletKey, counter *models.WalletKey, amount decimal.Decimal) bool {
	if prev.Wallet() != key || !prev.Amount.Equal(amount) {
		return false
	}
	prevCounter, hasCounter := prev.Counter()
	if counter == nil {
		return !hasCounter
	}
	return hasCounter && prevCounter == *counter
}
