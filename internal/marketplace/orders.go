package marketplace

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sudo-init-do/gamevault/internal/alerts"
	"github.com/sudo-init-do/gamevault/internal/authz"
	"github.com/sudo-init-do/gamevault/internal/ledger"
	"github.com/sudo-init-do/gamevault/internal/models"
	"github.com/sudo-init-do/gamevault/internal/store"
)

// errNotDelivered aborts an auto-confirm whose order moved on in the meantime.
var errNotDelivered = errors.New("order no longer delivered")

// =========================
// Checkout - buyer places and funds an order
// =========================

// Checkout creates an order for productID at its listed price and holds the
// buyer's funds. If the hold fails the order is still returned in the created
// state together with the error, and can be funded later with Fund.
func (s *Service) Checkout(ctx context.Context, p authz.Principal, productID string) (*models.Order, error) {
	if err := authz.Require(p, authz.Trade); err != nil {
		return nil, err
	}
	product, err := s.catalog.ProductByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !product.Available || !product.Price.IsPositive() {
		return nil, fmt.Errorf("product %s: %w", productID, models.ErrProductUnavailable)
	}
	if product.SellerID == p.Subject() {
		return nil, fmt.Errorf("buyer %s owns product %s: %w", p.Subject(), productID, models.ErrInvalidTransition)
	}

	now := s.now()
	o := &models.Order{
		ID:        uuid.NewString(),
		BuyerID:   p.Subject(),
		SellerID:  product.SellerID,
		ProductID: product.ID,
		Currency:  product.Currency,
		Amount:    product.Price,
		State:     models.OrderCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.CreateOrder(ctx, o)
	})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	s.log.Info("order created", zap.String("order_id", o.ID), zap.String("buyer_id", o.BuyerID), zap.String("product_id", o.ProductID))

	funded, err := s.fund(ctx, o.ID)
	if err != nil {
		return o, err
	}
	return funded, nil
}

// Fund retries the escrow hold for an order left in the created state.
func (s *Service) Fund(ctx context.Context, p authz.Principal, id string) (*models.Order, error) {
	if err := authz.Require(p, authz.Trade); err != nil {
		return nil, err
	}
	o, err := s.store.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireBuyer(p, o); err != nil {
		return nil, err
	}
	return s.fund(ctx, id)
}

func (s *Service) fund(ctx context.Context, id string) (*models.Order, error) {
	current, err := s.store.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}

	var out *models.Order
	err = s.ledger.Run(ctx, []models.WalletKey{current.BuyerWallet()}, func(ctx context.Context, ops *ledger.Ops) error {
		o, err := ops.Tx().LockOrder(ctx, id)
		if err != nil {
			return err
		}
		if err := advance(o, models.OrderFunded); err != nil {
			return err
		}
		if _, err := ops.Hold(ctx, o.BuyerWallet(), o.Amount, o.ID); err != nil {
			return err
		}
		o.UpdatedAt = s.now()
		if err := ops.Tx().UpdateOrder(ctx, o); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		s.log.Info("order funding failed", zap.String("order_id", id), zap.Error(err))
		return nil, err
	}

	s.log.Info("order funded", zap.String("order_id", id), zap.String("amount", out.Amount.String()))
	s.notify(ctx, alerts.EventOrderFunded, out.SellerID, out)
	return out, nil
}

// =========================
// Delivery
// =========================

// MarkDelivered records the seller's delivery and, when configured, schedules
// the automatic confirmation.
func (s *Service) MarkDelivered(ctx context.Context, p authz.Principal, id string) (*models.Order, error) {
	if err := authz.Require(p, authz.Trade); err != nil {
		return nil, err
	}

	var out *models.Order
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		o, err := tx.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		if err := requireSeller(p, o); err != nil {
			return err
		}
		if err := advance(o, models.OrderDelivered); err != nil {
			return err
		}
		o.UpdatedAt = s.now()
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("order delivered", zap.String("order_id", id))
	if s.scheduler != nil && s.confirmWait > 0 {
		if err := s.scheduler.ScheduleAutoConfirm(ctx, id, s.confirmWait); err != nil {
			s.log.Warn("schedule auto-confirm failed", zap.String("order_id", id), zap.Error(err))
		}
	}
	s.notify(ctx, alerts.EventOrderDelivered, out.BuyerID, out)
	return out, nil
}

// ConfirmDelivery pays the seller from the buyer's escrow.
func (s *Service) ConfirmDelivery(ctx context.Context, p authz.Principal, id string) (*models.Order, error) {
	if err := authz.Require(p, authz.Trade); err != nil {
		return nil, err
	}
	o, err := s.store.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireBuyer(p, o); err != nil {
		return nil, err
	}
	return s.complete(ctx, o, false)
}

// AutoConfirm completes a delivered order once the confirmation window has
// passed. Orders that were confirmed, disputed or otherwise moved on are left
// alone.
func (s *Service) AutoConfirm(ctx context.Context, id string) error {
	o, err := s.store.GetOrder(ctx, id)
	if err != nil {
		return err
	}
	if o.State != models.OrderDelivered {
		s.log.Info("auto-confirm skipped", zap.String("order_id", id), zap.String("state", string(o.State)))
		return nil
	}
	_, err = s.complete(ctx, o, true)
	if errors.Is(err, errNotDelivered) {
		s.log.Info("auto-confirm skipped", zap.String("order_id", id))
		return nil
	}
	return err
}

func (s *Service) complete(ctx context.Context, current *models.Order, auto bool) (*models.Order, error) {
	id := current.ID
	var out *models.Order
	err := s.ledger.Run(ctx, []models.WalletKey{current.BuyerWallet(), current.SellerWallet()}, func(ctx context.Context, ops *ledger.Ops) error {
		o, err := ops.Tx().LockOrder(ctx, id)
		if err != nil {
			return err
		}
		if auto && o.State != models.OrderDelivered {
			return errNotDelivered
		}
		if o.State != models.OrderDelivered {
			return fmt.Errorf("order %s %s -> %s: %w", o.ID, o.State, models.OrderCompleted, models.ErrInvalidTransition)
		}
		if err := advance(o, models.OrderCompleted); err != nil {
			return err
		}
		if _, err := ops.Capture(ctx, o.BuyerWallet(), o.SellerWallet(), o.Amount, o.ID); err != nil {
			return err
		}
		o.UpdatedAt = s.now()
		if err := ops.Tx().UpdateOrder(ctx, o); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("order completed", zap.String("order_id", id), zap.Bool("auto", auto))
	s.notify(ctx, alerts.EventOrderCompleted, out.SellerID, out)
	s.notify(ctx, alerts.EventOrderCompleted, out.BuyerID, out)
	return out, nil
}

// =========================
// Cancellation
// =========================

// Cancel aborts an order before delivery, returning escrowed funds to the buyer.
func (s *Service) Cancel(ctx context.Context, p authz.Principal, id string) (*models.Order, error) {
	if err := authz.Require(p, authz.Trade); err != nil {
		return nil, err
	}
	current, err := s.store.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireParty(p, current); err != nil {
		return nil, err
	}

	var out *models.Order
	err = s.ledger.Run(ctx, []models.WalletKey{current.BuyerWallet()}, func(ctx context.Context, ops *ledger.Ops) error {
		o, err := ops.Tx().LockOrder(ctx, id)
		if err != nil {
			return err
		}
		wasFunded := o.State == models.OrderFunded
		if err := advance(o, models.OrderCancelled); err != nil {
			return err
		}
		if wasFunded {
			if _, err := ops.Release(ctx, o.BuyerWallet(), o.Amount, o.ID); err != nil {
				return err
			}
		}
		o.UpdatedAt = s.now()
		if err := ops.Tx().UpdateOrder(ctx, o); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("order cancelled", zap.String("order_id", id), zap.String("by", p.Subject()))
	s.notify(ctx, alerts.EventOrderCancelled, out.BuyerID, out)
	s.notify(ctx, alerts.EventOrderCancelled, out.SellerID, out)
	return out, nil
}
