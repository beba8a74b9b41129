package memstore

import (
	"context"
	"fmt"
	"time"

	"github.com/sudo-init-do/gamevault/internal/models"
	"github.com/sudo-init-do/gamevault/internal/store"
)

var _ store.Tx = (*tx)(nil)

type tx struct {
	s *Store

	reads  map[string]int64
	locked map[string]bool
	dirty  map[string]bool

	wallets       map[models.WalletKey]*models.Wallet
	entries       []models.LedgerEntry
	deposits      map[string]*models.DepositRequest
	withdrawals   map[string]*models.WithdrawalRequest
	orders        map[string]*models.Order
	disputes      map[string]*models.Dispute
	notifications []models.Notification
}

func newTx(s *Store) *tx {
	return &tx{
		s:           s,
		reads:       make(map[string]int64),
		locked:      make(map[string]bool),
		dirty:       make(map[string]bool),
		wallets:     make(map[models.WalletKey]*models.Wallet),
		deposits:    make(map[string]*models.DepositRequest),
		withdrawals: make(map[string]*models.WithdrawalRequest),
		orders:      make(map[string]*models.Order),
		disputes:    make(map[string]*models.Dispute),
	}
}

// observe records the committed version of row the first time it is seen.
// Callers hold s.mu for reading.
func (t *tx) observe(row string) {
	if _, ok := t.reads[row]; !ok {
		t.reads[row] = t.s.versions[row]
	}
}

func (t *tx) lock(row string) {
	t.observe(row)
	t.locked[row] = true
}

// =========================
// Wallets & entries
// =========================

func (t *tx) LockWallets(_ context.Context, keys []models.WalletKey) (map[models.WalletKey]*models.Wallet, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	out := make(map[models.WalletKey]*models.Wallet, len(keys))
	for _, k := range keys {
		if w, ok := t.wallets[k]; ok {
			out[k] = w
			continue
		}
		t.lock(walletRow(k))
		var w *models.Wallet
		if committed, ok := t.s.wallets[k]; ok {
			w = &committed
		} else {
			w = models.NewWallet(k, time.Now().UTC())
		}
		t.wallets[k] = w
		out[k] = w
	}
	return out, nil
}

func (t *tx) SaveWallet(_ context.Context, w *models.Wallet) error {
	k := w.Key()
	staged, ok := t.wallets[k]
	if !ok {
		return fmt.Errorf("save wallet %s: not locked in this transaction", k)
	}
	if staged != w {
		*staged = *w
	}
	t.dirty[walletRow(k)] = true
	return nil
}

func (t *tx) FindEntry(_ context.Context, kind models.EntryKind, causeRef string) (*models.LedgerEntry, error) {
	for i := range t.entries {
		if t.entries[i].Kind == kind && t.entries[i].CauseRef == causeRef {
			e := t.entries[i]
			return &e, nil
		}
	}

	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	t.observe(entryRow(kind, causeRef))
	idx, ok := t.s.entryIdx[entryKey{kind, causeRef}]
	if !ok {
		return nil, fmt.Errorf("entry %s/%s: %w", kind, causeRef, models.ErrNotFound)
	}
	e := t.s.entries[idx]
	return &e, nil
}

func (t *tx) AppendEntry(_ context.Context, e *models.LedgerEntry) error {
	for i := range t.entries {
		if t.entries[i].Kind == e.Kind && t.entries[i].CauseRef == e.CauseRef {
			return fmt.Errorf("entry %s/%s: %w", e.Kind, e.CauseRef, models.ErrCauseConflict)
		}
	}

	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	if _, ok := t.s.entryIdx[entryKey{e.Kind, e.CauseRef}]; ok {
		return fmt.Errorf("entry %s/%s: %w", e.Kind, e.CauseRef, models.ErrCauseConflict)
	}
	t.observe(entryRow(e.Kind, e.CauseRef))
	stamp(&e.CreatedAt)
	t.entries = append(t.entries, *e)
	return nil
}

// =========================
// Deposits
// =========================

func (t *tx) CreateDeposit(_ context.Context, d *models.DepositRequest) error {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	row := depositRow(d.ID)
	if _, ok := t.s.deposits[d.ID]; ok || t.deposits[d.ID] != nil {
		return fmt.Errorf("deposit %s already exists", d.ID)
	}
	t.lock(row)
	t.dirty[row] = true
	stamp(&d.CreatedAt)
	c := *d
	t.deposits[d.ID] = &c
	return nil
}

func (t *tx) LockDeposit(_ context.Context, id string) (*models.DepositRequest, error) {
	if d, ok := t.deposits[id]; ok {
		c := *d
		return &c, nil
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	t.lock(depositRow(id))
	d, ok := t.s.deposits[id]
	if !ok {
		return nil, fmt.Errorf("deposit %s: %w", id, models.ErrNotFound)
	}
	t.deposits[id] = &d
	c := d
	return &c, nil
}

func (t *tx) UpdateDeposit(_ context.Context, d *models.DepositRequest) error {
	if _, ok := t.deposits[d.ID]; !ok {
		return fmt.Errorf("update deposit %s: not locked in this transaction", d.ID)
	}
	c := *d
	t.deposits[d.ID] = &c
	t.dirty[depositRow(d.ID)] = true
	return nil
}

// =========================
// Withdrawals
// =========================

func (t *tx) CreateWithdrawal(_ context.Context, w *models.WithdrawalRequest) error {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	row := withdrawalRow(w.ID)
	if _, ok := t.s.withdrawals[w.ID]; ok || t.withdrawals[w.ID] != nil {
		return fmt.Errorf("withdrawal %s already exists", w.ID)
	}
	t.lock(row)
	t.dirty[row] = true
	stamp(&w.CreatedAt)
	c := *w
	t.withdrawals[w.ID] = &c
	return nil
}

func (t *tx) LockWithdrawal(_ context.Context, id string) (*models.WithdrawalRequest, error) {
	if w, ok := t.withdrawals[id]; ok {
		c := *w
		return &c, nil
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	t.lock(withdrawalRow(id))
	w, ok := t.s.withdrawals[id]
	if !ok {
		return nil, fmt.Errorf("withdrawal %s: %w", id, models.ErrNotFound)
	}
	t.withdrawals[id] = &w
	c := w
	return &c, nil
}

func (t *tx) UpdateWithdrawal(_ context.Context, w *models.WithdrawalRequest) error {
	if _, ok := t.withdrawals[w.ID]; !ok {
		return fmt.Errorf("update withdrawal %s: not locked in this transaction", w.ID)
	}
	c := *w
	t.withdrawals[w.ID] = &c
	t.dirty[withdrawalRow(w.ID)] = true
	return nil
}

// =========================
// Orders & disputes
// =========================

func (t *tx) CreateOrder(_ context.Context, o *models.Order) error {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	row := orderRow(o.ID)
	if _, ok := t.s.orders[o.ID]; ok || t.orders[o.ID] != nil {
		return fmt.Errorf("order %s already exists", o.ID)
	}
	t.lock(row)
	t.dirty[row] = true
	stamp(&o.CreatedAt)
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = o.CreatedAt
	}
	c := *o
	t.orders[o.ID] = &c
	return nil
}

func (t *tx) LockOrder(_ context.Context, id string) (*models.Order, error) {
	if o, ok := t.orders[id]; ok {
		c := *o
		return &c, nil
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	t.lock(orderRow(id))
	o, ok := t.s.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, models.ErrNotFound)
	}
	t.orders[id] = &o
	c := o
	return &c, nil
}

func (t *tx) UpdateOrder(_ context.Context, o *models.Order) error {
	if _, ok := t.orders[o.ID]; !ok {
		return fmt.Errorf("update order %s: not locked in this transaction", o.ID)
	}
	c := *o
	t.orders[o.ID] = &c
	t.dirty[orderRow(o.ID)] = true
	return nil
}

func (t *tx) CreateDispute(_ context.Context, d *models.Dispute) error {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	row := disputeRow(d.ID)
	if _, ok := t.s.disputes[d.ID]; ok || t.disputes[d.ID] != nil {
		return fmt.Errorf("dispute %s already exists", d.ID)
	}
	t.lock(row)
	t.dirty[row] = true
	stamp(&d.CreatedAt)
	c := *d
	t.disputes[d.ID] = &c
	return nil
}

func (t *tx) LockOpenDispute(_ context.Context, orderID string) (*models.Dispute, error) {
	for _, d := range t.disputes {
		if d.OrderID == orderID && d.Status == models.DisputeOpen {
			c := *d
			return &c, nil
		}
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	for id, d := range t.s.disputes {
		if d.OrderID != orderID || d.Status != models.DisputeOpen {
			continue
		}
		if _, staged := t.disputes[id]; staged {
			continue
		}
		t.lock(disputeRow(id))
		t.disputes[id] = &d
		c := d
		return &c, nil
	}
	return nil, fmt.Errorf("open dispute for order %s: %w", orderID, models.ErrNotFound)
}

func (t *tx) UpdateDispute(_ context.Context, d *models.Dispute) error {
	if _, ok := t.disputes[d.ID]; !ok {
		return fmt.Errorf("update dispute %s: not locked in this transaction", d.ID)
	}
	c := *d
	t.disputes[d.ID] = &c
	t.dirty[disputeRow(d.ID)] = true
	return nil
}

func (t *tx) CreateNotification(_ context.Context, n *models.Notification) error {
	stamp(&n.CreatedAt)
	t.notifications = append(t.notifications, *n)
	return nil
}
