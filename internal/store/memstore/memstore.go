// Package memstore is an in-process implementation of store.Store.
//
// Transactions stage their changes and record the version of every row they
// read. Commit validates those versions under the store mutex and applies the
// staged set in one step; a stale read aborts the attempt and fn is re-run.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/sudo-init-do/gamevault/internal/models"
	"github.com/sudo-init-do/gamevault/internal/store"
)

const defaultMaxAttempts = 100

type entryKey struct {
	kind  models.EntryKind
	cause string
}

type Store struct {
	mu sync.RWMutex

	wallets       map[models.WalletKey]models.Wallet
	entries       []models.LedgerEntry
	entryIdx      map[entryKey]int
	deposits      map[string]models.DepositRequest
	withdrawals   map[string]models.WithdrawalRequest
	orders        map[string]models.Order
	disputes      map[string]models.Dispute
	products      map[string]models.Product
	notifications []models.Notification
	noticeIDs     map[string]bool

	versions map[string]int64
	seq      int64

	maxAttempts int
}

type Option func(*Store)

// WithMaxAttempts bounds how many times a conflicting transaction is re-run.
func WithMaxAttempts(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		wallets:     make(map[models.WalletKey]models.Wallet),
		entryIdx:    make(map[entryKey]int),
		deposits:    make(map[string]models.DepositRequest),
		withdrawals: make(map[string]models.WithdrawalRequest),
		orders:      make(map[string]models.Order),
		disputes:    make(map[string]models.Dispute),
		products:    make(map[string]models.Product),
		noticeIDs:   make(map[string]bool),
		versions:    make(map[string]int64),
		maxAttempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var (
	_ store.Store         = (*Store)(nil)
	_ store.CatalogWriter = (*Store)(nil)
)

func (s *Store) Close() {}

// PutProduct upserts a catalog listing. Products are owned by the catalog,
// so there is no transactional write path for them.
func (s *Store) PutProduct(_ context.Context, p models.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
	return nil
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		t := newTx(s)
		err := fn(ctx, t)
		if err == nil {
			err = s.commit(t)
		} else if s.stale(t) {
			// fn decided on a snapshot that has since moved; its verdict is
			// void unless no attempts remain, so keep it matchable.
			err = fmt.Errorf("%w: %w", models.ErrConflict, err)
		}
		if err == nil {
			return nil
		}
		if !errors.Is(err, models.ErrConflict) || attempt >= s.maxAttempts {
			return err
		}
		runtime.Gosched()
	}
}

func (s *Store) stale(t *tx) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for row, v := range t.reads {
		if s.versions[row] != v {
			return true
		}
	}
	return false
}

func (s *Store) commit(t *tx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for row, v := range t.reads {
		if s.versions[row] != v {
			return fmt.Errorf("%w: %s", models.ErrConflict, row)
		}
	}

	for row := range t.locked {
		s.versions[row]++
	}
	for k, w := range t.wallets {
		if t.dirty[walletRow(k)] {
			s.wallets[k] = *w
		}
	}
	for _, e := range t.entries {
		s.seq++
		e.Seq = s.seq
		s.entryIdx[entryKey{e.Kind, e.CauseRef}] = len(s.entries)
		s.entries = append(s.entries, e)
		s.versions[entryRow(e.Kind, e.CauseRef)]++
	}
	for id, d := range t.deposits {
		if t.dirty[depositRow(id)] {
			s.deposits[id] = *d
		}
	}
	for id, w := range t.withdrawals {
		if t.dirty[withdrawalRow(id)] {
			s.withdrawals[id] = *w
		}
	}
	for id, o := range t.orders {
		if t.dirty[orderRow(id)] {
			s.orders[id] = *o
		}
	}
	for id, d := range t.disputes {
		if t.dirty[disputeRow(id)] {
			s.disputes[id] = *d
		}
	}
	for _, n := range t.notifications {
		if n.ID != "" && s.noticeIDs[n.ID] {
			continue
		}
		s.noticeIDs[n.ID] = true
		s.notifications = append(s.notifications, n)
	}
	return nil
}

// =========================
// Reader
// =========================

func (s *Store) GetWallet(_ context.Context, key models.WalletKey) (*models.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.wallets[key]
	if !ok {
		return nil, fmt.Errorf("wallet %s: %w", key, models.ErrNotFound)
	}
	return &w, nil
}

func (s *Store) ListWallets(_ context.Context) ([]models.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Wallet, 0, len(s.wallets))
	for _, w := range s.wallets {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key().Less(out[j].Key()) })
	return out, nil
}

func (s *Store) ListEntries(_ context.Context, key models.WalletKey, limit, offset int) ([]models.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.LedgerEntry
	skipped := 0
	for _, e := range s.entries {
		counter, _ := e.Counter()
		if e.Wallet() != key && counter != key {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) GetDeposit(_ context.Context, id string) (*models.DepositRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.deposits[id]
	if !ok {
		return nil, fmt.Errorf("deposit %s: %w", id, models.ErrNotFound)
	}
	return &d, nil
}

func (s *Store) ListDeposits(_ context.Context, status models.RequestStatus) ([]models.DepositRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.DepositRequest
	for _, d := range s.deposits {
		if status == "" || d.Status == status {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) GetWithdrawal(_ context.Context, id string) (*models.WithdrawalRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.withdrawals[id]
	if !ok {
		return nil, fmt.Errorf("withdrawal %s: %w", id, models.ErrNotFound)
	}
	return &w, nil
}

func (s *Store) ListWithdrawals(_ context.Context, status models.RequestStatus) ([]models.WithdrawalRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.WithdrawalRequest
	for _, w := range s.withdrawals {
		if status == "" || w.Status == status {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) GetOrder(_ context.Context, id string) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, models.ErrNotFound)
	}
	return &o, nil
}

func (s *Store) ListDisputes(_ context.Context, status models.DisputeStatus) ([]models.Dispute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Dispute
	for _, d := range s.disputes {
		if status == "" || d.Status == status {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return nil, fmt.Errorf("product %s: %w", id, models.ErrNotFound)
	}
	return &p, nil
}

func (s *Store) ListNotifications(_ context.Context, userID string) ([]models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Notification
	for i := len(s.notifications) - 1; i >= 0; i-- {
		if s.notifications[i].UserID == userID {
			out = append(out, s.notifications[i])
		}
	}
	return out, nil
}

func walletRow(k models.WalletKey) string          { return "wallet:" + k.String() }
func entryRow(k models.EntryKind, c string) string { return "entry:" + string(k) + ":" + c }
func depositRow(id string) string                  { return "deposit:" + id }
func withdrawalRow(id string) string               { return "withdrawal:" + id }
func orderRow(id string) string                    { return "order:" + id }
func disputeRow(id string) string                  { return "dispute:" + id }

func stamp(t *time.Time) {
	if t.IsZero() {
		*t = time.Now().UTC()
	}
}
