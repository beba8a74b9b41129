package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// Enqueuer is the part of *asynq.Client used here.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// TaskNotifier turns events into asynq tasks picked up by the worker.
type TaskNotifier struct {
	client Enqueuer
}

func NewTaskNotifier(client Enqueuer) *TaskNotifier {
	return &TaskNotifier{client: client}
}

func (n *TaskNotifier) Notify(ctx context.Context, ev Event) error {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	b, err := json.Marshal(NoticePayload{Event: ev})
	if err != nil {
		return fmt.Errorf("marshal notice: %w", err)
	}
	task := asynq.NewTask(TaskSettlementNotice, b)
	if _, err := n.client.EnqueueContext(ctx, task, asynq.Queue(QueueNotifications), asynq.MaxRetry(5)); err != nil {
		return fmt.Errorf("enqueue %s: %w", ev.Type, err)
	}
	return nil
}

// Scheduler enqueues the delayed buyer-confirmation timeout.
type Scheduler struct {
	client Enqueuer
}

func NewScheduler(client Enqueuer) *Scheduler {
	return &Scheduler{client: client}
}

// ScheduleAutoConfirm is safe to call more than once per order; the task id
// is derived from the order id so duplicates collapse.
func (s *Scheduler) ScheduleAutoConfirm(ctx context.Context, orderID string, after time.Duration) error {
	b, err := json.Marshal(AutoConfirmPayload{OrderID: orderID})
	if err != nil {
		return fmt.Errorf("marshal auto confirm: %w", err)
	}
	task := asynq.NewTask(TaskAutoConfirm, b)
	_, err = s.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueSettlement),
		asynq.ProcessIn(after),
		asynq.TaskID(AutoConfirmTaskID(orderID)),
		asynq.MaxRetry(10),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("schedule auto confirm for %s: %w", orderID, err)
	}
	return nil
}

func AutoConfirmTaskID(orderID string) string {
	return "auto-confirm:" + orderID
}
