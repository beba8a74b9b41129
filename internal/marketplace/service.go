// Package marketplace drives orders through checkout, escrow, delivery and
// settlement.
package marketplace

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sudo-init-do/gamevault/internal/alerts"
	"github.com/sudo-init-do/gamevault/internal/authz"
	"github.com/sudo-init-do/gamevault/internal/ledger"
	"github.com/sudo-init-do/gamevault/internal/models"
	"github.com/sudo-init-do/gamevault/internal/store"
)

// Catalog resolves a product listing at checkout.
type Catalog interface {
	ProductByID(ctx context.Context, id string) (*models.Product, error)
}

// StoreCatalog reads listings from the products table.
type StoreCatalog struct {
	Reader store.Reader
}

func (c StoreCatalog) ProductByID(ctx context.Context, id string) (*models.Product, error) {
	return c.Reader.GetProduct(ctx, id)
}

// Scheduler queues the delayed auto-confirmation of a delivered order.
type Scheduler interface {
	ScheduleAutoConfirm(ctx context.Context, orderID string, after time.Duration) error
}

type Service struct {
	ledger   *ledger.Engine
	store    store.Store
	catalog  Catalog
	notifier alerts.Notifier
	log      *zap.Logger
	now      func() time.Time

	scheduler   Scheduler
	confirmWait time.Duration
}

type Option func(*Service)

// WithAutoConfirm completes delivered orders after wait unless the buyer
// confirms or disputes first.
func WithAutoConfirm(s Scheduler, wait time.Duration) Option {
	return func(svc *Service) {
		svc.scheduler = s
		svc.confirmWait = wait
	}
}

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func NewService(l *ledger.Engine, st store.Store, catalog Catalog, n alerts.Notifier, log *zap.Logger, opts ...Option) *Service {
	if n == nil {
		n = alerts.Nop{}
	}
	s := &Service{
		ledger:   l,
		store:    st,
		catalog:  catalog,
		notifier: n,
		log:      log.Named("marketplace"),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns an order to one of its parties or an admin.
func (s *Service) Get(ctx context.Context, p authz.Principal, id string) (*models.Order, error) {
	if err := authz.Require(p, authz.Trade); err != nil {
		return nil, err
	}
	o, err := s.store.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireParty(p, o); err != nil {
		return nil, err
	}
	return o, nil
}

// requireParty allows the buyer, the seller and admins.
func requireParty(p authz.Principal, o *models.Order) error {
	if o.Party(p.Subject()) || authz.IsAdmin(p) {
		return nil
	}
	return fmt.Errorf("order %s: %w", o.ID, models.ErrForbidden)
}

func requireBuyer(p authz.Principal, o *models.Order) error {
	if p.Subject() == o.BuyerID || authz.IsAdmin(p) {
		return nil
	}
	return fmt.Errorf("order %s: only the buyer may do this: %w", o.ID, models.ErrForbidden)
}

func requireSeller(p authz.Principal, o *models.Order) error {
	if p.Subject() == o.SellerID || authz.IsAdmin(p) {
		return nil
	}
	return fmt.Errorf("order %s: only the seller may do this: %w", o.ID, models.ErrForbidden)
}

func (s *Service) notify(ctx context.Context, typ alerts.EventType, userID string, o *models.Order) {
	ev := alerts.Event{
		Type:       typ,
		UserID:     userID,
		Reference:  o.ID,
		Amount:     o.Amount.String(),
		Currency:   o.Currency,
		OccurredAt: s.now(),
	}
	if err := s.notifier.Notify(ctx, ev); err != nil {
		s.log.Warn("notify failed", zap.String("type", string(typ)), zap.String("order_id", o.ID), zap.Error(err))
	}
}
