package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// DepositRequest is a user's claim that money was paid outside the platform.
type DepositRequest struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	Currency      string          `json:"currency"`
	Amount        decimal.Decimal `json:"amount"`
	Proof         string          `json:"proof"`
	PaymentMethod string          `json:"payment_method"`
	Status        RequestStatus   `json:"status"`
	DecidedBy     string          `json:"decided_by,omitempty"`
	DecisionNote  string          `json:"decision_note,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	DecidedAt     *time.Time      `json:"decided_at,omitempty"`
}

func (d DepositRequest) Wallet() WalletKey {
	return WalletKey{UserID: d.UserID, Currency: d.Currency}
}

type WithdrawalRequest struct {
	ID           string          `json:"id"`
	UserID       string          `json:"user_id"`
	Currency     string          `json:"currency"`
	Amount       decimal.Decimal `json:"amount"`
	Destination  string          `json:"destination"`
	Status       RequestStatus   `json:"status"`
	DecidedBy    string          `json:"decided_by,omitempty"`
	DecisionNote string          `json:"decision_note,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	DecidedAt    *time.Time      `json:"decided_at,omitempty"`
}

func (w WithdrawalRequest) Wallet() WalletKey {
	return WalletKey{UserID: w.UserID, Currency: w.Currency}
}
