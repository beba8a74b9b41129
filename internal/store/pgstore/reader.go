package pgstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/sudo-init-do/gamevault/internal/models"
)

func (s *Store) GetWallet(ctx context.Context, key models.WalletKey) (*models.Wallet, error) {
	w, err := scanWallet(s.pool.QueryRow(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE user_id = $1 AND currency = $2`,
		key.UserID, key.Currency))
	if err != nil {
		return nil, notFound(err, "wallet "+key.String())
	}
	return w, nil
}

func (s *Store) ListWallets(ctx context.Context) ([]models.Wallet, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+walletColumns+` FROM wallets ORDER BY user_id, currency`)
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	return collect(rows, scanWallet)
}

func (s *Store) ListEntries(ctx context.Context, key models.WalletKey, limit, offset int) ([]models.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries
		WHERE currency = $2 AND (user_id = $1 OR counter_user_id = $1)
		ORDER BY seq OFFSET $3`
	args := []any{key.UserID, key.Currency, offset}
	if limit > 0 {
		query += ` LIMIT $4`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	return collect(rows, scanEntry)
}

func (s *Store) GetDeposit(ctx context.Context, id string) (*models.DepositRequest, error) {
	d, err := scanDeposit(s.pool.QueryRow(ctx, `SELECT `+depositColumns+` FROM deposit_requests WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "deposit "+id)
	}
	return d, nil
}

func (s *Store) ListDeposits(ctx context.Context, status models.RequestStatus) ([]models.DepositRequest, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+depositColumns+` FROM deposit_requests WHERE ($1 = '' OR status = $1) ORDER BY created_at`,
		string(status))
	if err != nil {
		return nil, fmt.Errorf("list deposits: %w", err)
	}
	return collect(rows, scanDeposit)
}

func (s *Store) GetWithdrawal(ctx context.Context, id string) (*models.WithdrawalRequest, error) {
	w, err := scanWithdrawal(s.pool.QueryRow(ctx, `SELECT `+withdrawalColumns+` FROM withdrawal_requests WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "withdrawal "+id)
	}
	return w, nil
}

func (s *Store) ListWithdrawals(ctx context.Context, status models.RequestStatus) ([]models.WithdrawalRequest, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+withdrawalColumns+` FROM withdrawal_requests WHERE ($1 = '' OR status = $1) ORDER BY created_at`,
		string(status))
	if err != nil {
		return nil, fmt.Errorf("list withdrawals: %w", err)
	}
	return collect(rows, scanWithdrawal)
}

func (s *Store) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	o, err := scanOrder(s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "order "+id)
	}
	return o, nil
}

func (s *Store) ListDisputes(ctx context.Context, status models.DisputeStatus) ([]models.Dispute, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+disputeColumns+` FROM disputes WHERE ($1 = '' OR status = $1) ORDER BY created_at`,
		string(status))
	if err != nil {
		return nil, fmt.Errorf("list disputes: %w", err)
	}
	return collect(rows, scanDispute)
}

// GetProduct backs marketplace.Catalog for deployments that share the catalog database.
func (s *Store) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	p, err := scanProduct(s.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "product "+id)
	}
	return p, nil
}

// PutProduct upserts a catalog row.
func (s *Store) PutProduct(ctx context.Context, p models.Product) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO products (id, seller_id, title, price, currency, available, exchange_rate)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET seller_id = EXCLUDED.seller_id, title = EXCLUDED.title,
		   price = EXCLUDED.price, currency = EXCLUDED.currency, available = EXCLUDED.available,
		   exchange_rate = EXCLUDED.exchange_rate`,
		p.ID, p.SellerID, p.Title, p.Price.String(), p.Currency, p.Available, p.ExchangeRate.String())
	if err != nil {
		return fmt.Errorf("put product: %w", err)
	}
	return nil
}

func (s *Store) ListNotifications(ctx context.Context, userID string) ([]models.Notification, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, type, title, body, reference, created_at, read_at
		 FROM notifications WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return collect(rows, func(r rowScanner) (*models.Notification, error) {
		var n models.Notification
		if err := r.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Body, &n.Reference, &n.CreatedAt, &n.ReadAt); err != nil {
			return nil, err
		}
		return &n, nil
	})
}

func collect[T any](rows pgx.Rows, scan func(rowScanner) (*T, error)) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
