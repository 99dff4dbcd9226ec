package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/hibiken/asynq"
	"github.com/proofline/booking/services/booking-service/internal/model"
)

// Dispatcher hands a notification off without waiting for delivery. Failures
// are logged, never returned.
type Dispatcher interface {
	Dispatch(ctx context.Context, n Notification)
}

// Inline delivers on a background goroutine with its own deadline, detached
// from the request context.
type Inline struct {
	notifier Notifier
	logger   *slog.Logger
	timeout  time.Duration
}

func NewInline(notifier Notifier, logger *slog.Logger, timeout time.Duration) *Inline {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Inline{notifier: notifier, logger: logger, timeout: timeout}
}

func (d *Inline) Dispatch(ctx context.Context, n Notification) {
	go func() {
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()
		if err := d.notifier.Notify(sendCtx, n); err != nil {
			d.logger.Warn("notification failed", "kind", "provisioning_failure", "booking_id", n.Booking.ID, "err", err)
		}
	}()
}

const (
	TypeBookingNotify = "booking:notify"
	QueueName         = "notifications"
)

type taskPayload struct {
	Kind         string             `json:"kind"`
	Organization model.Organization `json:"organization"`
	Booking      model.Booking      `json:"booking"`
}

// NewNotifyTask wraps n as an asynq task retried independently of the booking.
func NewNotifyTask(n Notification) (*asynq.Task, error) {
	b, err := json.Marshal(taskPayload{Kind: n.Kind, Organization: n.Organization, Booking: n.Booking})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeBookingNotify, b,
		asynq.Queue(QueueName),
		asynq.MaxRetry(5),
		asynq.Timeout(30*time.Second),
	), nil
}

// Queue enqueues notifications on Redis for the worker started by NewWorker.
type Queue struct {
	client *asynq.Client
	logger *slog.Logger
}

func NewQueue(client *asynq.Client, logger *slog.Logger) *Queue {
	return &Queue{client: client, logger: logger}
}

func (q *Queue) Dispatch(ctx context.Context, n Notification) {
	task, err := NewNotifyTask(n)
	if err != nil {
		q.logger.Error("notification task encode failed", "booking_id", n.Booking.ID, "err", err)
		return
	}
	info, err := q.client.EnqueueContext(ctx, task)
	if err != nil {
		q.logger.Warn("notification enqueue failed", "kind", "provisioning_failure", "booking_id", n.Booking.ID, "err", err)
		return
	}
	q.logger.Debug("notification enqueued", "booking_id", n.Booking.ID, "task_id", info.ID)
}

// HandleNotifyTask is the worker side of TypeBookingNotify.
func HandleNotifyTask(notifier Notifier, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var p taskPayload
		if err := json.Unmarshal(task.Payload(), &p); err != nil {
			logger.Error("invalid notification payload", "err", err)
			return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
		}
		n := Notification{Kind: p.Kind, Organization: p.Organization, Booking: p.Booking}
		if err := notifier.Notify(ctx, n); err != nil {
			logger.Warn("notification delivery failed", "booking_id", n.Booking.ID, "err", err)
			return err
		}
		return nil
	}
}

// NewWorker builds the asynq server and mux that drain the notification queue.
func NewWorker(redisOpt asynq.RedisConnOpt, notifier Notifier, logger *slog.Logger) (*asynq.Server, *asynq.ServeMux) {
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 4,
		Queues:      map[string]int{QueueName: 1},
		Logger:      asynqLogger{logger: logger},
	})
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeBookingNotify, HandleNotifyTask(notifier, logger))
	return srv, mux
}

// asynqLogger adapts slog to asynq.Logger.
type asynqLogger struct {
	logger *slog.Logger
}

func (l asynqLogger) Debug(args ...interface{}) { l.logger.Debug(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...interface{})  { l.logger.Info(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...interface{})  { l.logger.Warn(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...interface{}) { l.logger.Error(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...interface{}) {
	l.logger.Error(fmt.Sprint(args...))
	os.Exit(1)
}
