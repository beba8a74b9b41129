package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderState string

const (
	OrderCreated   OrderState = "created"
	OrderFunded    OrderState = "funded"
	OrderDelivered OrderState = "delivered"
	OrderCompleted OrderState = "completed"
	OrderCancelled OrderState = "cancelled"
	OrderDisputed  OrderState = "disputed"
	OrderRefunded  OrderState = "refunded"
)

func (s OrderState) Terminal() bool {
	return s == OrderCompleted || s == OrderCancelled || s == OrderRefunded
}

type Order struct {
	ID        string          `json:"id"`
	BuyerID   string          `json:"buyer_id"`
	SellerID  string          `json:"seller_id"`
	ProductID string          `json:"product_id"`
	Currency  string          `json:"currency"`
	Amount    decimal.Decimal `json:"amount"`
	State     OrderState      `json:"state"`
	ReviewID  string          `json:"review_id,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (o Order) BuyerWallet() WalletKey {
	return WalletKey{UserID: o.BuyerID, Currency: o.Currency}
}

func (o Order) SellerWallet() WalletKey {
	return WalletKey{UserID: o.SellerID, Currency: o.Currency}
}

// Party reports whether userID is the buyer or the seller.
func (o Order) Party(userID string) bool {
	return userID != "" && (userID == o.BuyerID || userID == o.SellerID)
}

type DisputeStatus string

const (
	DisputeOpen     DisputeStatus = "open"
	DisputeResolved DisputeStatus = "resolved"
)

type DisputeOutcome string

const (
	// OutcomeRelease pays the seller; OutcomeRefund returns funds to the buyer.
	OutcomeRelease DisputeOutcome = "release"
	OutcomeRefund  DisputeOutcome = "refund"
)

func (o DisputeOutcome) Valid() bool {
	return o == OutcomeRelease || o == OutcomeRefund
}

type Dispute struct {
	ID         string         `json:"id"`
	OrderID    string         `json:"order_id"`
	FilerID    string         `json:"filer_id"`
	Reason     string         `json:"reason"`
	Status     DisputeStatus  `json:"status"`
	Resolution DisputeOutcome `json:"resolution,omitempty"`
	Notes      string         `json:"notes,omitempty"`
	ResolvedBy string         `json:"resolved_by,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	ResolvedAt *time.Time     `json:"resolved_at,omitempty"`
}
