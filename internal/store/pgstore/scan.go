package pgstore

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/sudo-init-do/gamevault/internal/models"
)

// Amounts travel as text so NUMERIC precision survives the round trip.

type rowScanner interface {
	Scan(dest ...any) error
}

const walletColumns = `user_id, currency, available::text, escrow::text, version, created_at, updated_at`

func scanWallet(r rowScanner) (*models.Wallet, error) {
	var w models.Wallet
	var available, escrow string
	if err := r.Scan(&w.UserID, &w.Currency, &available, &escrow, &w.Version, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if w.Available, err = decimal.NewFromString(available); err != nil {
		return nil, fmt.Errorf("parse available: %w", err)
	}
	if w.Escrow, err = decimal.NewFromString(escrow); err != nil {
		return nil, fmt.Errorf("parse escrow: %w", err)
	}
	return &w, nil
}

const entryColumns = `seq, id, kind, user_id, currency, COALESCE(counter_user_id, ''), amount::text,
	available_after::text, escrow_after::text, counter_available_after::text, cause_ref, created_at`

func scanEntry(r rowScanner) (*models.LedgerEntry, error) {
	var e models.LedgerEntry
	var kind, amount, availableAfter, escrowAfter string
	var counterAfter *string
	if err := r.Scan(&e.Seq, &e.ID, &kind, &e.UserID, &e.Currency, &e.CounterUserID, &amount,
		&availableAfter, &escrowAfter, &counterAfter, &e.CauseRef, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.Kind = models.EntryKind(kind)
	var err error
	if e.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	if e.AvailableAfter, err = decimal.NewFromString(availableAfter); err != nil {
		return nil, fmt.Errorf("parse available_after: %w", err)
	}
	if e.EscrowAfter, err = decimal.NewFromString(escrowAfter); err != nil {
		return nil, fmt.Errorf("parse escrow_after: %w", err)
	}
	if counterAfter != nil {
		d, err := decimal.NewFromString(*counterAfter)
		if err != nil {
			return nil, fmt.Errorf("parse counter_available_after: %w", err)
		}
		e.CounterAvailableAfter = decimal.NewNullDecimal(d)
	}
	return &e, nil
}

const depositColumns = `id, user_id, currency, amount::text, proof, payment_method, status, decided_by, decision_note, created_at, decided_at`

func scanDeposit(r rowScanner) (*models.DepositRequest, error) {
	var d models.DepositRequest
	var amount, status string
	if err := r.Scan(&d.ID, &d.UserID, &d.Currency, &amount, &d.Proof, &d.PaymentMethod, &status,
		&d.DecidedBy, &d.DecisionNote, &d.CreatedAt, &d.DecidedAt); err != nil {
		return nil, err
	}
	d.Status = models.RequestStatus(status)
	var err error
	if d.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	return &d, nil
}

const withdrawalColumns = `id, user_id, currency, amount::text, destination, status, decided_by, decision_note, created_at, decided_at`

func scanWithdrawal(r rowScanner) (*models.WithdrawalRequest, error) {
	var w models.WithdrawalRequest
	var amount, status string
	if err := r.Scan(&w.ID, &w.UserID, &w.Currency, &amount, &w.Destination, &status,
		&w.DecidedBy, &w.DecisionNote, &w.CreatedAt, &w.DecidedAt); err != nil {
		return nil, err
	}
	w.Status = models.RequestStatus(status)
	var err error
	if w.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	return &w, nil
}

const orderColumns = `id, buyer_id, seller_id, product_id, currency, amount::text, state, review_id, created_at, updated_at`

func scanOrder(r rowScanner) (*models.Order, error) {
	var o models.Order
	var amount, state string
	if err := r.Scan(&o.ID, &o.BuyerID, &o.SellerID, &o.ProductID, &o.Currency, &amount, &state,
		&o.ReviewID, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	o.State = models.OrderState(state)
	var err error
	if o.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	return &o, nil
}

const disputeColumns = `id, order_id, filer_id, reason, status, resolution, notes, resolved_by, created_at, resolved_at`

func scanDispute(r rowScanner) (*models.Dispute, error) {
	var d models.Dispute
	var status, resolution string
	if err := r.Scan(&d.ID, &d.OrderID, &d.FilerID, &d.Reason, &status, &resolution, &d.Notes,
		&d.ResolvedBy, &d.CreatedAt, &d.ResolvedAt); err != nil {
		return nil, err
	}
	d.Status = models.DisputeStatus(status)
	d.Resolution = models.DisputeOutcome(resolution)
	return &d, nil
}

const productColumns = `id, seller_id, title, price::text, currency, available, exchange_rate::text`

func scanProduct(r rowScanner) (*models.Product, error) {
	var p models.Product
	var price, rate string
	if err := r.Scan(&p.ID, &p.SellerID, &p.Title, &price, &p.Currency, &p.Available, &rate); err != nil {
		return nil, err
	}
	var err error
	if p.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("parse price: %w", err)
	}
	if p.ExchangeRate, err = decimal.NewFromString(rate); err != nil {
		return nil, fmt.Errorf("parse exchange_rate: %w", err)
	}
	return &p, nil
}

func nullableDecimal(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.String()
	return &s
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
