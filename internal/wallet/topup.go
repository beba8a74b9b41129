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

type DepositInput struct {
	Currency      string          `json:"currency" validate:"required,len=3,alpha"`
	Amount        decimal.Decimal `json:"amount"`
	Proof         string          `json:"proof" validate:"required,max=512"`
	PaymentMethod string          `json:"payment_method" validate:"max=64"`
}

// SubmitDeposit records a pending deposit claim. No balance changes until an admin approves it.
func (s *Service) SubmitDeposit(ctx context.Context, p authz.Principal, in DepositInput) (*models.DepositRequest, error) {
	if err := authz.Require(p, authz.SubmitDeposit); err != nil {
		return nil, err
	}
	if err := utils.CheckAmount(in.Amount); err != nil {
		return nil, err
	}

	d := &models.DepositRequest{
		ID:            uuid.NewString(),
		UserID:        p.Subject(),
		Currency:      normalizeCurrency(in.Currency),
		Amount:        in.Amount,
		Proof:         in.Proof,
		PaymentMethod: in.PaymentMethod,
		Status:        models.RequestPending,
		CreatedAt:     s.now(),
	}
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.CreateDeposit(ctx, d)
	})
	if err != nil {
		return nil, fmt.Errorf("create deposit: %w", err)
	}
	s.log.Info("deposit submitted", zap.String("deposit_id", d.ID), zap.String("user_id", d.UserID), zap.String("amount", d.Amount.String()))
	return d, nil
}

// DecideDeposit approves or rejects a pending deposit.
func (s *Service) DecideDeposit(ctx context.Context, p authz.Principal, id string, dec models.Decision, note string) (*models.DepositRequest, error) {
	if dec == models.DecisionApprove {
		return s.ApproveDeposit(ctx, p, id)
	}
	if err := decision(dec); err != nil {
		return nil, err
	}
	return s.RejectDeposit(ctx, p, id, note)
}

// ApproveDeposit credits the wallet and marks the request approved in one
// transaction. The credit is keyed by the request id, so a retried approval
// can never credit twice.
func (s *Service) ApproveDeposit(ctx context.Context, p authz.Principal, id string) (*models.DepositRequest, error) {
	if err := authz.Require(p, authz.DecideDeposit); err != nil {
		return nil, err
	}
	current, err := s.store.GetDeposit(ctx, id)
	if err != nil {
		return nil, err
	}

	var out *models.DepositRequest
	err = s.ledger.Run(ctx, []models.WalletKey{current.Wallet()}, func(ctx context.Context, ops *ledger.Ops) error {
		d, err := ops.Tx().LockDeposit(ctx, id)
		if err != nil {
			return err
		}
		if d.Status != models.RequestPending {
			return fmt.Errorf("deposit %s is %s: %w", id, d.Status, models.ErrAlreadyResolved)
		}
		if _, err := ops.Credit(ctx, d.Wallet(), d.Amount, d.ID); err != nil {
			return err
		}
		now := s.now()
		d.Status = models.RequestApproved
		d.DecidedBy = p.Subject()
		d.DecidedAt = &now
		if err := ops.Tx().UpdateDeposit(ctx, d); err != nil {
			return err
		}
		out = d
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("deposit approved", zap.String("deposit_id", id), zap.String("admin_id", p.Subject()))
	s.notify(ctx, alerts.Event{Type: alerts.EventDepositApproved, UserID: out.UserID, Reference: out.ID,
		Amount: out.Amount.String(), Currency: out.Currency})
	return out, nil
}

func (s *Service) RejectDeposit(ctx context.Context, p authz.Principal, id, note string) (*models.DepositRequest, error) {
	if err := authz.Require(p, authz.DecideDeposit); err != nil {
		return nil, err
	}

	var out *models.DepositRequest
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		d, err := tx.LockDeposit(ctx, id)
		if err != nil {
			return err
		}
		if d.Status != models.RequestPending {
			return fmt.Errorf("deposit %s is %s: %w", id, d.Status, models.ErrAlreadyResolved)
		}
		now := s.now()
		d.Status = models.RequestRejected
		d.DecidedBy = p.Subject()
		d.DecisionNote = note
		d.DecidedAt = &now
		if err := tx.UpdateDeposit(ctx, d); err != nil {
			return err
		}
		out = d
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("deposit rejected", zap.String("deposit_id", id), zap.String("admin_id", p.Subject()))
	s.notify(ctx, alerts.Event{Type: alerts.EventDepositRejected, UserID: out.UserID, Reference: out.ID,
		Amount: out.Amount.String(), Currency: out.Currency})
	return out, nil
}

func (s *Service) PendingDeposits(ctx context.Context, p authz.Principal) ([]models.DepositRequest, error) {
	if err := authz.Require(p, authz.DecideDeposit); err != nil {
		return nil, err
	}
	return s.store.ListDeposits(ctx, models.RequestPending)
}
