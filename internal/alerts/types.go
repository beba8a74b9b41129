package alerts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Task types
const (
	TaskSettlementNotice = "settlement:notice"
	TaskAutoConfirm      = "order:auto_confirm"
)

// Queues
const (
	QueueSettlement    = "settlement"
	QueueNotifications = "notifications"
)

type EventType string

const (
	EventDepositApproved    EventType = "deposit.approved"
	EventDepositRejected    EventType = "deposit.rejected"
	EventWithdrawalApproved EventType = "withdrawal.approved"
	EventWithdrawalRejected EventType = "withdrawal.rejected"
	EventOrderFunded        EventType = "order.funded"
	EventOrderDelivered     EventType = "order.delivered"
	EventOrderCompleted     EventType = "order.completed"
	EventOrderCancelled     EventType = "order.cancelled"
	EventOrderDisputed      EventType = "order.disputed"
	EventOrderRefunded      EventType = "order.refunded"
)

// Event is a settlement outcome addressed to one user.
type Event struct {
	Type       EventType `json:"type"`
	UserID     string    `json:"user_id"`
	Reference  string    `json:"reference"`
	Amount     string    `json:"amount,omitempty"`
	Currency   string    `json:"currency,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// noticeNamespace seeds NoticeID.
var noticeNamespace = uuid.MustParse("5b7f2c1e-8a43-4c1d-9d5e-3f0a6b2e7c91")

// NoticeID is stable for a given event, so a task delivered twice stores
// one notification. A user gets each event type once per reference.
func (e Event) NoticeID() string {
	return uuid.NewSHA1(noticeNamespace, []byte(string(e.Type)+"|"+e.UserID+"|"+e.Reference)).String()
}

func (e Event) Title() string {
	switch e.Type {
	case EventDepositApproved:
		return "Deposit approved"
	case EventDepositRejected:
		return "Deposit rejected"
	case EventWithdrawalApproved:
		return "Withdrawal approved"
	case EventWithdrawalRejected:
		return "Withdrawal rejected"
	case EventOrderFunded:
		return "Order funded"
	case EventOrderDelivered:
		return "Order delivered"
	case EventOrderCompleted:
		return "Order completed"
	case EventOrderCancelled:
		return "Order cancelled"
	case EventOrderDisputed:
		return "Order disputed"
	case EventOrderRefunded:
		return "Order refunded"
	}
	return string(e.Type)
}

func (e Event) Body() string {
	if e.Amount == "" {
		return fmt.Sprintf("%s: %s.", e.Title(), e.Reference)
	}
	return fmt.Sprintf("%s: %s, amount %s %s.", e.Title(), e.Reference, e.Amount, e.Currency)
}

// NoticePayload is the body of a TaskSettlementNotice task.
type NoticePayload struct {
	Event Event `json:"event"`
}

// AutoConfirmPayload is the body of a TaskAutoConfirm task.
type AutoConfirmPayload struct {
	OrderID string `json:"order_id"`
}

// Notifier is the fire-and-forget notification channel. Callers log a
// returned error and carry on; settlement never depends on delivery.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

type Nop struct{}

func (Nop) Notify(context.Context, Event) error { return nil }

// Fanout sends every event to each notifier in turn.
type Fanout []Notifier

func (f Fanout) Notify(ctx context.Context, ev Event) error {
	var errs []error
	for _, n := range f {
		if err := n.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
