// Package store defines the persistence contract shared by the Postgres and
// in-memory account stores.
package store

import (
	"context"

	"github.com/sudo-init-do/gamevault/internal/models"
)

// Store is the account store. All balance-affecting writes go through WithTx.
//
// fn may be invoked more than once when the underlying store retries a
// transient conflict, so it must not perform external side effects.
type Store interface {
	Reader
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Close()
}

// CatalogWriter upserts product listings outside any ledger transaction.
type CatalogWriter interface {
	PutProduct(ctx context.Context, p models.Product) error
}

// Reader holds the unlocked, read-only queries.
type Reader interface {
	GetWallet(ctx context.Context, key models.WalletKey) (*models.Wallet, error)
	ListWallets(ctx context.Context) ([]models.Wallet, error)
	// ListEntries returns entries touching key, either as the primary wallet or
	// as a capture destination, oldest first. limit <= 0 means no limit.
	ListEntries(ctx context.Context, key models.WalletKey, limit, offset int) ([]models.LedgerEntry, error)

	GetDeposit(ctx context.Context, id string) (*models.DepositRequest, error)
	ListDeposits(ctx context.Context, status models.RequestStatus) ([]models.DepositRequest, error)
	GetWithdrawal(ctx context.Context, id string) (*models.WithdrawalRequest, error)
	ListWithdrawals(ctx context.Context, status models.RequestStatus) ([]models.WithdrawalRequest, error)

	GetOrder(ctx context.Context, id string) (*models.Order, error)
	ListDisputes(ctx context.Context, status models.DisputeStatus) ([]models.Dispute, error)

	GetProduct(ctx context.Context, id string) (*models.Product, error)
	ListNotifications(ctx context.Context, userID string) ([]models.Notification, error)
}

// Tx is a unit of work. Lock* methods return rows the caller may modify and
// write back with the matching Save/Update method before the tx commits.
type Tx interface {
	// LockWallets locks the wallets in the order given, creating zero-balance
	// wallets for keys that do not exist yet. Callers pass keys sorted.
	LockWallets(ctx context.Context, keys []models.WalletKey) (map[models.WalletKey]*models.Wallet, error)
	SaveWallet(ctx context.Context, w *models.Wallet) error
	FindEntry(ctx context.Context, kind models.EntryKind, causeRef string) (*models.LedgerEntry, error)
	AppendEntry(ctx context.Context, e *models.LedgerEntry) error

	CreateDeposit(ctx context.Context, d *models.DepositRequest) error
	LockDeposit(ctx context.Context, id string) (*models.DepositRequest, error)
	UpdateDeposit(ctx context.Context, d *models.DepositRequest) error

	CreateWithdrawal(ctx context.Context, w *models.WithdrawalRequest) error
	LockWithdrawal(ctx context.Context, id string) (*models.WithdrawalRequest, error)
	UpdateWithdrawal(ctx context.Context, w *models.WithdrawalRequest) error

	CreateOrder(ctx context.Context, o *models.Order) error
	LockOrder(ctx context.Context, id string) (*models.Order, error)
	UpdateOrder(ctx context.Context, o *models.Order) error

	CreateDispute(ctx context.Context, d *models.Dispute) error
	// LockOpenDispute returns models.ErrNotFound when the order has no open dispute.
	LockOpenDispute(ctx context.Context, orderID string) (*models.Dispute, error)
	UpdateDispute(ctx context.Context, d *models.Dispute) error

	CreateNotification(ctx context.Context, n *models.Notification) error
}
