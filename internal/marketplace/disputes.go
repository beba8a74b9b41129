package marketplace

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sudo-init-do/gamevault/internal/alerts"
	"github.com/sudo-init-do/gamevault/internal/authz"
	"github.com/sudo-init-do/gamevault/internal/ledger"
	"github.com/sudo-init-do/gamevault/internal/models"
	"github.com/sudo-init-do/gamevault/internal/store"
)

// RaiseDispute lets the buyer or seller freeze a funded or delivered order
// until an admin resolves it.
func (s *Service) RaiseDispute(ctx context.Context, p authz.Principal, id, reason string) (*models.Dispute, error) {
	if err := authz.Require(p, authz.Trade); err != nil {
		return nil, err
	}

	var (
		order   *models.Order
		dispute *models.Dispute
	)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		o, err := tx.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		if !o.Party(p.Subject()) {
			return fmt.Errorf("order %s: not a participant: %w", id, models.ErrForbidden)
		}
		if err := advance(o, models.OrderDisputed); err != nil {
			return err
		}
		now := s.now()
		o.UpdatedAt = now
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		d := &models.Dispute{
			ID:        uuid.NewString(),
			OrderID:   o.ID,
			FilerID:   p.Subject(),
			Reason:    reason,
			Status:    models.DisputeOpen,
			CreatedAt: now,
		}
		if err := tx.CreateDispute(ctx, d); err != nil {
			return err
		}
		order, dispute = o, d
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("dispute opened", zap.String("order_id", id), zap.String("dispute_id", dispute.ID), zap.String("filer_id", dispute.FilerID))
	other := order.BuyerID
	if p.Subject() == order.BuyerID {
		other = order.SellerID
	}
	s.notify(ctx, alerts.EventOrderDisputed, other, order)
	return dispute, nil
}

// ResolveDispute settles a disputed order. OutcomeRelease pays the seller,
// OutcomeRefund returns the escrow to the buyer.
func (s *Service) ResolveDispute(ctx context.Context, p authz.Principal, id string, outcome models.DisputeOutcome, notes string) (*models.Order, error) {
	if err := authz.Require(p, authz.ResolveDispute); err != nil {
		return nil, err
	}
	if !outcome.Valid() {
		return nil, fmt.Errorf("outcome %q: %w", outcome, models.ErrInvalidTransition)
	}
	current, err := s.store.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}

	var out *models.Order
	err = s.ledger.Run(ctx, []models.WalletKey{current.BuyerWallet(), current.SellerWallet()}, func(ctx context.Context, ops *ledger.Ops) error {
		o, err := ops.Tx().LockOrder(ctx, id)
		if err != nil {
			return err
		}
		if o.State != models.OrderDisputed {
			return fmt.Errorf("order %s is %s: %w", id, o.State, models.ErrInvalidTransition)
		}
		d, err := ops.Tx().LockOpenDispute(ctx, id)
		if err != nil {
			return err
		}

		switch outcome {
		case models.OutcomeRelease:
			err = advance(o, models.OrderCompleted)
			if err == nil {
				_, err = ops.Capture(ctx, o.BuyerWallet(), o.SellerWallet(), o.Amount, o.ID)
			}
		case models.OutcomeRefund:
			err = advance(o, models.OrderRefunded)
			if err == nil {
				_, err = ops.Release(ctx, o.BuyerWallet(), o.Amount, o.ID)
			}
		}
		if err != nil {
			return err
		}

		now := s.now()
		o.UpdatedAt = now
		if err := ops.Tx().UpdateOrder(ctx, o); err != nil {
			return err
		}
		d.Status = models.DisputeResolved
		d.Resolution = outcome
		d.Notes = notes
		d.ResolvedBy = p.Subject()
		d.ResolvedAt = &now
		if err := ops.Tx().UpdateDispute(ctx, d); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("dispute resolved", zap.String("order_id", id), zap.String("outcome", string(outcome)), zap.String("admin_id", p.Subject()))
	typ := alerts.EventOrderCompleted
	if outcome == models.OutcomeRefund {
		typ = alerts.EventOrderRefunded
	}
	s.notify(ctx, typ, out.BuyerID, out)
	s.notify(ctx, typ, out.SellerID, out)
	return out, nil
}

func (s *Service) OpenDisputes(ctx context.Context, p authz.Principal) ([]models.Dispute, error) {
	if err := authz.Require(p, authz.ResolveDispute); err != nil {
		return nil, err
	}
	return s.store.ListDisputes(ctx, models.DisputeOpen)
}
