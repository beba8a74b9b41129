package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// WalletKey identifies a wallet. There is at most one wallet per user and currency.
type WalletKey struct {
	UserID   string `json:"user_id"`
	Currency string `json:"currency"`
}

func (k WalletKey) String() string {
	return k.UserID + "/" + k.Currency
}

// Valid reports whether k names a user and a currency.
func (k WalletKey) Valid() bool {
	return k.UserID != "" && k.Currency != ""
}

// Less orders keys by user then currency. Locks are always taken in this order.
func (k WalletKey) Less(o WalletKey) bool {
	if k.UserID != o.UserID {
		return k.UserID < o.UserID
	}
	return k.Currency < o.Currency
}

type Wallet struct {
	UserID    string          `json:"user_id"`
	Currency  string          `json:"currency"`
	Available decimal.Decimal `json:"available_balance"`
	Escrow    decimal.Decimal `json:"escrow_balance"`
	Version   int64           `json:"version"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func NewWallet(key WalletKey, now time.Time) *Wallet {
	return &Wallet{
		UserID:    key.UserID,
		Currency:  key.Currency,
		Available: decimal.Zero,
		Escrow:    decimal.Zero,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (w Wallet) Key() WalletKey {
	return WalletKey{UserID: w.UserID, Currency: w.Currency}
}

// Total is available plus escrow.
func (w Wallet) Total() decimal.Decimal {
	return w.Available.Add(w.Escrow)
}

type EntryKind string

const (
	EntryCredit  EntryKind = "credit"
	EntryDebit   EntryKind = "debit"
	EntryHold    EntryKind = "hold"
	EntryRelease EntryKind = "release"
	EntryCapture EntryKind = "capture"
)

func (k EntryKind) Valid() bool {
	switch k {
	case EntryCredit, EntryDebit, EntryHold, EntryRelease, EntryCapture:
		return true
	}
	return false
}

// LedgerEntry is an immutable record of one balance mutation.
// CounterUserID and CounterAvailableAfter are set only for captures, where
// the counter wallet is the destination in the same currency.
type LedgerEntry struct {
	ID                    string              `json:"id"`
	Seq                   int64               `json:"seq"`
	Kind                  EntryKind           `json:"kind"`
	UserID                string              `json:"user_id"`
	Currency              string              `json:"currency"`
	CounterUserID         string              `json:"counter_user_id,omitempty"`
	Amount                decimal.Decimal     `json:"amount"`
	AvailableAfter        decimal.Decimal     `json:"available_after"`
	EscrowAfter           decimal.Decimal     `json:"escrow_after"`
	CounterAvailableAfter decimal.NullDecimal `json:"counter_available_after"`
	CauseRef              string              `json:"cause_ref"`
	CreatedAt             time.Time           `json:"created_at"`
}

func (e LedgerEntry) Wallet() WalletKey {
	return WalletKey{UserID: e.UserID, Currency: e.Currency}
}

// Counter returns the destination wallet of a capture.
func (e LedgerEntry) Counter() (WalletKey, bool) {
	if e.CounterUserID == "" {
		return WalletKey{}, false
	}
	return WalletKey{UserID: e.CounterUserID, Currency: e.Currency}, true
}
