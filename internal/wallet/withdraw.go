package wallet

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sudo-init-do/gamevault/internal/alerts"
	"github.com/sudo-init-do/gamevault/internal/authz"
	"github.com/sudo-init-do/gamevault/internal/ledger"
	"github.com/sudo-init-do/gamevault/internal/models"
	"github.com/sudo-init-do/gamevault/internal/store"
	"github.com/sudo-init-do/gamevault/internal/utils"
)

type WithdrawalInput struct {
	Currency    string          `json:"currency" validate:"required,len=3,alpha"`
	Amount      decimal.Decimal `json:"amount"`
	Destination string          `json:"destination" validate:"required,max=512"`
}

// SubmitWithdrawal records a payout request. The balance is checked when an
// admin approves, not here.
func (s *Service) SubmitWithdrawal(ctx context.Context, p authz.Principal, in WithdrawalInput) (*models.WithdrawalRequest, error) {
	if err := authz.Require(p, authz.SubmitWithdrawal); err != nil {
		return nil, err
	}
	if err := utils.CheckAmount(in.Amount); err != nil {
		return nil, err
	}

	w := &models.WithdrawalRequest{
		ID:          uuid.NewString(),
		UserID:      p.Subject(),
		Currency:    normalizeCurrency(in.Currency),
		Amount:      in.Amount,
		Destination: in.Destination,
		Status:      models.RequestPending,
		CreatedAt:   s.now(),
	}
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.CreateWithdrawal(ctx, w)
	})
	if err != nil {
		return nil, fmt.Errorf("create withdrawal: %w", err)
	}
	s.log.Info("withdrawal submitted", zap.String("withdrawal_id", w.ID), zap.String("user_id", w.UserID), zap.String("amount", w.Amount.String()))
	return w, nil
}

func (s *Service) DecideWithdrawal(ctx context.Context, p authz.Principal, id string, dec models.Decision, note string) (*models.WithdrawalRequest, error) {
	if dec == models.DecisionApprove {
		return s.ApproveWithdrawal(ctx, p, id)
	}
	if err := decision(dec); err != nil {
		return nil, err
	}
	return s.RejectWithdrawal(ctx, p, id, note)
}

// ApproveWithdrawal debits the seller and marks the request approved
// atomically. If the balance no longer covers the amount the request stays
// pending and ErrInsufficientFunds is returned.
func (s *Service) ApproveWithdrawal(ctx context.Context, p authz.Principal, id string) (*models.WithdrawalRequest, error) {
	if err := authz.Require(p, authz.DecideWithdrawal); err != nil {
		return nil, err
	}
	current, err := s.store.GetWithdrawal(ctx, id)
	if err != nil {
		return nil, err
	}

	var out *models.WithdrawalRequest
	err = s.ledger.Run(ctx, []models.WalletKey{current.Wallet()}, func(ctx context.Context, ops *ledger.Ops) error {
		w, err := ops.Tx().LockWithdrawal(ctx, id)
		if err != nil {
			return err
		}
		if w.Status != models.RequestPending {
			return fmt.Errorf("withdrawal %s is %s: %w", id, w.Status, models.ErrAlreadyResolved)
		}
		if _, err := ops.Debit(ctx, w.Wallet(), w.Amount, w.ID); err != nil {
			return err
		}
		now := s.now()
		w.Status = models.RequestApproved
		w.DecidedBy = p.Subject()
		w.DecidedAt = &now
		if err := ops.Tx().UpdateWithdrawal(ctx, w); err != nil {
			return err
		}
		out = w
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("withdrawal approved", zap.String("withdrawal_id", id), zap.String("admin_id", p.Subject()))
	s.notify(ctx, alerts.Event{Type: alerts.EventWithdrawalApproved, UserID: out.UserID, Reference: out.ID,
		Amount: out.Amount.String(), Currency: out.Currency})
	return out, nil
}

func (s *Service) RejectWithdrawal(ctx context.Context, p authz.Principal, id, note string) (*models.WithdrawalRequest, error) {
	if err := authz.Require(p, authz.DecideWithdrawal); err != nil {
		return nil, err
	}

	var out *models.WithdrawalRequest
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		w, err := tx.LockWithdrawal(ctx, id)
		if err != nil {
			return err
		}
		if w.Status != models.RequestPending {
			return fmt.Errorf("withdrawal %s is %s: %w", id, w.Status, models.ErrAlreadyResolved)
		}
		now := s.now()
		w.Status = models.RequestRejected
		w.DecidedBy = p.Subject()
		w.DecisionNote = note
		w.DecidedAt = &now
		if err := tx.UpdateWithdrawal(ctx, w); err != nil {
			return err
		}
		out = w
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("withdrawal rejected", zap.String("withdrawal_id", id), zap.String("admin_id", p.Subject()))
	s.notify(ctx, alerts.Event{Type: alerts.EventWithdrawalRejected, UserID: out.UserID, Reference: out.ID,
		Amount: out.Amount.String(), Currency: out.Currency})
	return out, nil
}

func (s *Service) PendingWithdrawals(ctx context.Context, p authz.Principal) ([]models.WithdrawalRequest, error) {
	if err := authz.Require(p, authz.DecideWithdrawal); err != nil {
		return nil, err
	}
	return s.store.ListWithdrawals(ctx, models.RequestPending)
}
