package marketplace

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sudo-init-do/gamevault/internal/authz"
	"github.com/sudo-init-do/gamevault/internal/models"
	"github.com/sudo-init-do/gamevault/internal/store"
)

// AttachReview links a review to a completed order. Only the buyer may do it,
// and only once.
func (s *Service) AttachReview(ctx context.Context, p authz.Principal, id, reviewID string) (*models.Order, error) {
	if err := authz.Require(p, authz.Trade); err != nil {
		return nil, err
	}
	if reviewID == "" {
		return nil, fmt.Errorf("empty review id: %w", models.ErrInvalidTransition)
	}

	var out *models.Order
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		o, err := tx.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		if p.Subject() != o.BuyerID {
			return fmt.Errorf("order %s: only the buyer may review: %w", id, models.ErrForbidden)
		}
		if o.State != models.OrderCompleted {
			return fmt.Errorf("order %s is %s, not completed: %w", id, o.State, models.ErrInvalidTransition)
		}
		if o.ReviewID != "" {
			return fmt.Errorf("order %s already reviewed: %w", id, models.ErrInvalidTransition)
		}
		o.ReviewID = reviewID
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
	s.log.Info("review attached", zap.String("order_id", id), zap.String("review_id", reviewID))
	return out, nil
}
