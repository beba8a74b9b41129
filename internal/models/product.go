package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is the marketplace's view of a catalog listing.
type Product struct {
	ID        string          `json:"id"`
	SellerID  string          `json:"seller_id"`
	Title     string          `json:"title"`
	Price     decimal.Decimal `json:"price"`
	Currency  string          `json:"currency"`
	Available bool            `json:"available"`
	// ExchangeRate converts Price into the seller's display currency. Settlement never uses it.
	ExchangeRate decimal.Decimal `json:"exchange_rate"`
}

// DisplayPrice is Price scaled by the seller's fixed exchange rate.
func (p Product) DisplayPrice() decimal.Decimal {
	if p.ExchangeRate.IsZero() {
		return p.Price
	}
	return p.Price.Mul(p.ExchangeRate).Round(2)
}

type Notification struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Type      string     `json:"type"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	Reference string     `json:"reference,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
}
