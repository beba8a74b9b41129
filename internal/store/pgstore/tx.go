package pgstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/sudo-init-do/gamevault/internal/models"
	"github.com/sudo-init-do/gamevault/internal/store"
)

type pgTx struct {
	tx pgx.Tx
}

var _ store.Tx = (*pgTx)(nil)

// =========================
// Wallets & entries
// =========================

func (t *pgTx) LockWallets(ctx context.Context, keys []models.WalletKey) (map[models.WalletKey]*models.Wallet, error) {
	out := make(map[models.WalletKey]*models.Wallet, len(keys))
	for _, k := range keys {
		// Insert-if-missing first so FOR UPDATE always has a row to lock.
		if _, err := t.tx.Exec(ctx,
			`INSERT INTO wallets (user_id, currency) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			k.UserID, k.Currency); err != nil {
			return nil, fmt.Errorf("ensure wallet %s: %w", k, err)
		}
		w, err := scanWallet(t.tx.QueryRow(ctx,
			`SELECT `+walletColumns+` FROM wallets WHERE user_id = $1 AND currency = $2 FOR UPDATE`,
			k.UserID, k.Currency))
		if err != nil {
			return nil, fmt.Errorf("lock wallet %s: %w", k, err)
		}
		out[k] = w
	}
	return out, nil
}

func (t *pgTx) SaveWallet(ctx context.Context, w *models.Wallet) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE wallets SET available = $3, escrow = $4, version = $5, updated_at = $6
		 WHERE user_id = $1 AND currency = $2`,
		w.UserID, w.Currency, w.Available.String(), w.Escrow.String(), w.Version, w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save wallet %s: %w", w.Key(), err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("save wallet %s: %w", w.Key(), models.ErrNotFound)
	}
	return nil
}

func (t *pgTx) FindEntry(ctx context.Context, kind models.EntryKind, causeRef string) (*models.LedgerEntry, error) {
	e, err := scanEntry(t.tx.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries WHERE kind = $1 AND cause_ref = $2`,
		string(kind), causeRef))
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("entry %s/%s", kind, causeRef))
	}
	return e, nil
}

func (t *pgTx) AppendEntry(ctx context.Context, e *models.LedgerEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	err := t.tx.QueryRow(ctx,
		`INSERT INTO ledger_entries (id, kind, user_id, currency, counter_user_id, amount,
			available_after, escrow_after, counter_available_after, cause_ref, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING seq`,
		e.ID, string(e.Kind), e.UserID, e.Currency, nullableString(e.CounterUserID), e.Amount.String(),
		e.AvailableAfter.String(), e.EscrowAfter.String(), nullableDecimal(e.CounterAvailableAfter),
		e.CauseRef, e.CreatedAt,
	).Scan(&e.Seq)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("entry %s/%s: %w", e.Kind, e.CauseRef, models.ErrCauseConflict)
		}
		return fmt.Errorf("append entry: %w", err)
	}
	return nil
}

// =========================
// Deposits
// =========================

func (t *pgTx) CreateDeposit(ctx context.Context, d *models.DepositRequest) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO deposit_requests (id, user_id, currency, amount, proof, payment_method, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		d.ID, d.UserID, d.Currency, d.Amount.String(), d.Proof, d.PaymentMethod, string(d.Status), d.CreatedAt)
	if err != nil {
		return fmt.Errorf("create deposit: %w", err)
	}
	return nil
}

func (t *pgTx) LockDeposit(ctx context.Context, id string) (*models.DepositRequest, error) {
	d, err := scanDeposit(t.tx.QueryRow(ctx,
		`SELECT `+depositColumns+` FROM deposit_requests WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, notFound(err, "deposit "+id)
	}
	return d, nil
}

func (t *pgTx) UpdateDeposit(ctx context.Context, d *models.DepositRequest) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE deposit_requests SET status = $2, decided_by = $3, decision_note = $4, decided_at = $5 WHERE id = $1`,
		d.ID, string(d.Status), d.DecidedBy, d.DecisionNote, d.DecidedAt)
	if err != nil {
		return fmt.Errorf("update deposit: %w", err)
	}
	return nil
}

// =========================
// Withdrawals
// =========================

func (t *pgTx) CreateWithdrawal(ctx context.Context, w *models.WithdrawalRequest) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO withdrawal_requests (id, user_id, currency, amount, destination, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		w.ID, w.UserID, w.Currency, w.Amount.String(), w.Destination, string(w.Status), w.CreatedAt)
	if err != nil {
		return fmt.Errorf("create withdrawal: %w", err)
	}
	return nil
}

func (t *pgTx) LockWithdrawal(ctx context.Context, id string) (*models.WithdrawalRequest, error) {
	w, err := scanWithdrawal(t.tx.QueryRow(ctx,
		`SELECT `+withdrawalColumns+` FROM withdrawal_requests WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, notFound(err, "withdrawal "+id)
	}
	return w, nil
}

func (t *pgTx) UpdateWithdrawal(ctx context.Context, w *models.WithdrawalRequest) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE withdrawal_requests SET status = $2, decided_by = $3, decision_note = $4, decided_at = $5 WHERE id = $1`,
		w.ID, string(w.Status), w.DecidedBy, w.DecisionNote, w.DecidedAt)
	if err != nil {
		return fmt.Errorf("update withdrawal: %w", err)
	}
	return nil
}

// =========================
// Orders & disputes
// =========================

func (t *pgTx) CreateOrder(ctx context.Context, o *models.Order) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO orders (id, buyer_id, seller_id, product_id, currency, amount, state, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		o.ID, o.BuyerID, o.SellerID, o.ProductID, o.Currency, o.Amount.String(), string(o.State), o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

func (t *pgTx) LockOrder(ctx context.Context, id string) (*models.Order, error) {
	o, err := scanOrder(t.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, notFound(err, "order "+id)
	}
	return o, nil
}

func (t *pgTx) UpdateOrder(ctx context.Context, o *models.Order) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE orders SET state = $2, review_id = $3, updated_at = $4 WHERE id = $1`,
		o.ID, string(o.State), o.ReviewID, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	return nil
}

func (t *pgTx) CreateDispute(ctx context.Context, d *models.Dispute) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO disputes (id, order_id, filer_id, reason, status, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		d.ID, d.OrderID, d.FilerID, d.Reason, string(d.Status), d.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("open dispute for order %s: %w", d.OrderID, models.ErrInvalidTransition)
		}
		return fmt.Errorf("create dispute: %w", err)
	}
	return nil
}

func (t *pgTx) LockOpenDispute(ctx context.Context, orderID string) (*models.Dispute, error) {
	d, err := scanDispute(t.tx.QueryRow(ctx,
		`SELECT `+disputeColumns+` FROM disputes WHERE order_id = $1 AND status = 'open' FOR UPDATE`, orderID))
	if err != nil {
		return nil, notFound(err, "open dispute for order "+orderID)
	}
	return d, nil
}

func (t *pgTx) UpdateDispute(ctx context.Context, d *models.Dispute) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE disputes SET status = $2, resolution = $3, notes = $4, resolved_by = $5, resolved_at = $6 WHERE id = $1`,
		d.ID, string(d.Status), string(d.Resolution), d.Notes, d.ResolvedBy, d.ResolvedAt)
	if err != nil {
		return fmt.Errorf("update dispute: %w", err)
	}
	return nil
}

func (t *pgTx) CreateNotification(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	_, err := t.tx.Exec(ctx,
		`INSERT INTO notifications (id, user_id, type, title, body, reference, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO NOTHING`,
		n.ID, n.UserID, n.Type, n.Title, n.Body, n.Reference, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}
