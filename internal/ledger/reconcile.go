package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sudo-init-do/gamevault/internal/models"
)

// Drift compares a wallet's stored balances with the balances implied by its entries.
type Drift struct {
	Wallet            models.Wallet   `json:"wallet"`
	ExpectedAvailable decimal.Decimal `json:"expected_available"`
	ExpectedEscrow    decimal.Decimal `json:"expected_escrow"`
	Entries           int             `json:"entries"`
}

func (d Drift) InSync() bool {
	return d.Wallet.Available.Equal(d.ExpectedAvailable) && d.Wallet.Escrow.Equal(d.ExpectedEscrow)
}

// Reconcile replays every entry touching key and reports the result next to
// the stored wallet. It reads without locks, so run it when the wallet is quiet
// or accept a transient mismatch.
func (e *Engine) Reconcile(ctx context.Context, key models.WalletKey) (*Drift, error) {
	w, err := e.store.GetWallet(ctx, key)
	if errors.Is(err, models.ErrNotFound) {
		w = models.NewWallet(key, e.now())
	} else if err != nil {
		return nil, fmt.Errorf("get wallet: %w", err)
	}

	entries, err := e.store.ListEntries(ctx, key, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}

	available, escrow := Replay(key, entries)
	d := &Drift{Wallet: *w, ExpectedAvailable: available, ExpectedEscrow: escrow, Entries: len(entries)}
	if !d.InSync() {
		e.log.Warn("wallet drift detected",
			zap.String("wallet", key.String()),
			zap.String("available", w.Available.String()),
			zap.String("expected_available", available.String()),
			zap.String("escrow", w.Escrow.String()),
			zap.String("expected_escrow", escrow.String()))
	}
	return d, nil
}

// Replay folds entries into the balances they imply for key.
func Replay(key models.WalletKey, entries []models.LedgerEntry) (available, escrow decimal.Decimal) {
	available, escrow = decimal.Zero, decimal.Zero
	for _, en := range entries {
		if en.Wallet() == key {
			switch en.Kind {
			case models.EntryCredit:
				available = available.Add(en.Amount)
			case models.EntryDebit:
				available = available.Sub(en.Amount)
			case models.EntryHold:
				available = available.Sub(en.Amount)
				escrow = escrow.Add(en.Amount)
			case models.EntryRelease:
				escrow = escrow.Sub(en.Amount)
				available = available.Add(en.Amount)
			case models.EntryCapture:
				escrow = escrow.Sub(en.Amount)
			}
		}
		if counter, ok := en.Counter(); ok && counter == key {
			available = available.Add(en.Amount)
		}
	}
	return available, escrow
}
