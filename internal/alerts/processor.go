package alerts

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/sudo-init-do/gamevault/internal/models"
	"github.com/sudo-init-do/gamevault/internal/store"
)

// AutoConfirmer completes a delivered order on the buyer's behalf.
type AutoConfirmer interface {
	AutoConfirm(ctx context.Context, orderID string) error
}

// Processor handles the worker side of the settlement tasks.
type Processor struct {
	store     store.Store
	confirmer AutoConfirmer
	relay     Notifier
	log       *zap.Logger
}

// NewProcessor wires the task handlers. relay receives every notice after it
// is stored in-app; pass Nop when there is nothing to relay to.
func NewProcessor(st store.Store, confirmer AutoConfirmer, relay Notifier, log *zap.Logger) *Processor {
	if relay == nil {
		relay = Nop{}
	}
	return &Processor{store: st, confirmer: confirmer, relay: relay, log: log.Named("alerts")}
}

func (p *Processor) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskSettlementNotice, p.handleNotice)
	mux.HandleFunc(TaskAutoConfirm, p.handleAutoConfirm)
	return mux
}

// NewServer builds the asynq server for the worker process.
func NewServer(opt asynq.RedisConnOpt, concurrency int, log *zap.Logger) *asynq.Server {
	return asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			QueueSettlement:    6,
			QueueNotifications: 3,
		},
		Logger: log.Named("asynq").Sugar(),
	})
}

func (p *Processor) handleNotice(ctx context.Context, t *asynq.Task) error {
	var payload NoticePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode notice: %v: %w", err, asynq.SkipRetry)
	}
	ev := payload.Event

	n := &models.Notification{
		ID:        ev.NoticeID(),
		UserID:    ev.UserID,
		Type:      string(ev.Type),
		Title:     ev.Title(),
		Body:      ev.Body(),
		Reference: ev.Reference,
		CreatedAt: ev.OccurredAt,
	}
	err := p.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.CreateNotification(ctx, n)
	})
	if err != nil {
		p.log.Error("store notification failed", zap.String("type", string(ev.Type)), zap.Error(err))
		return err
	}

	if err := p.relay.Notify(ctx, ev); err != nil {
		p.log.Warn("relay notice failed", zap.String("type", string(ev.Type)), zap.Error(err))
	}
	p.log.Info("notice delivered", zap.String("type", string(ev.Type)), zap.String("user_id", ev.UserID), zap.String("reference", ev.Reference))
	return nil
}

func (p *Processor) handleAutoConfirm(ctx context.Context, t *asynq.Task) error {
	var payload AutoConfirmPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.OrderID == "" {
		return fmt.Errorf("decode auto confirm: %w", asynq.SkipRetry)
	}
	if err := p.confirmer.AutoConfirm(ctx, payload.OrderID); err != nil {
		p.log.Error("auto confirm failed", zap.String("order_id", payload.OrderID), zap.Error(err))
		return err
	}
	return nil
}
