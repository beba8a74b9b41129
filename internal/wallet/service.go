// Package wallet runs the deposit and withdrawal approval workflows and
// serves wallet balances and history.
package wallet

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sudo-init-do/gamevault/internal/alerts"
	"github.com/sudo-init-do/gamevault/internal/authz"
	"github.com/sudo-init-do/gamevault/internal/ledger"
	"github.com/sudo-init-do/gamevault/internal/models"
	"github.com/sudo-init-do/gamevault/internal/store"
)

type Service struct {
	ledger   *ledger.Engine
	store    store.Store
	notifier alerts.Notifier
	log      *zap.Logger
	now      func() time.Time

	defaultCurrency string
}

type Option func(*Service)

// WithDefaultCurrency is used when a balance or history read names no currency.
func WithDefaultCurrency(c string) Option {
	return func(s *Service) { s.defaultCurrency = normalizeCurrency(c) }
}

func NewService(l *ledger.Engine, st store.Store, n alerts.Notifier, log *zap.Logger, opts ...Option) *Service {
	if n == nil {
		n = alerts.Nop{}
	}
	s := &Service{
		ledger:          l,
		store:           st,
		notifier:        n,
		log:             log.Named("wallet"),
		now:             func() time.Time { return time.Now().UTC() },
		defaultCurrency: "USD",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Balance returns the caller's wallet for display.
func (s *Service) Balance(ctx context.Context, p authz.Principal, currency string) (*models.Wallet, error) {
	if err := authz.Require(p, authz.SubmitDeposit); err != nil {
		return nil, err
	}
	return s.ledger.Wallet(ctx, models.WalletKey{UserID: p.Subject(), Currency: s.currency(currency)})
}

func (s *Service) History(ctx context.Context, p authz.Principal, currency string, limit, offset int) ([]models.LedgerEntry, error) {
	if err := authz.Require(p, authz.SubmitDeposit); err != nil {
		return nil, err
	}
	return s.ledger.Entries(ctx, models.WalletKey{UserID: p.Subject(), Currency: s.currency(currency)}, limit, offset)
}

// Reconcile reports drift between a wallet and its ledger. Admin only.
func (s *Service) Reconcile(ctx context.Context, p authz.Principal, key models.WalletKey) (*ledger.Drift, error) {
	if err := authz.Require(p, authz.ViewLedger); err != nil {
		return nil, err
	}
	key.Currency = normalizeCurrency(key.Currency)
	return s.ledger.Reconcile(ctx, key)
}

// notify is fire-and-forget; failures are logged only.
func (s *Service) notify(ctx context.Context, ev alerts.Event) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = s.now()
	}
	if err := s.notifier.Notify(ctx, ev); err != nil {
		s.log.Warn("notify failed", zap.String("type", string(ev.Type)), zap.String("reference", ev.Reference), zap.Error(err))
	}
}

func (s *Service) currency(c string) string {
	if c = normalizeCurrency(c); c == "" {
		return s.defaultCurrency
	}
	return c
}

func normalizeCurrency(c string) string {
	return strings.ToUpper(strings.TrimSpace(c))
}

func decision(d models.Decision) error {
	if d != models.DecisionApprove && d != models.DecisionReject {
		return fmt.Errorf("decision %q: %w", d, models.ErrInvalidTransition)
	}
	return nil
}
