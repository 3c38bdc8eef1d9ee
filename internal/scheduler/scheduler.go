package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ctmsgb/booking-backend/internal/config"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/hibiken/asynqmon"
	"github.com/sirupsen/logrus"
)

const (
	// TypeExpireHold releases one booking's seats once its hold lapses
	TypeExpireHold = "booking:expire_hold"

	// MonitoringPath is where the asynqmon UI is mounted
	MonitoringPath = "/monitoring"
)

// ExpireHoldPayload is the task body of TypeExpireHold
type ExpireHoldPayload struct {
	BookingID uuid.UUID `json:"booking_id"`
}

// HoldExpirer expires a single booking if it is still eligible
type HoldExpirer interface {
	ExpireBooking(ctx context.Context, bookingID uuid.UUID) (bool, error)
}

func redisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}
}

// ============================================================================
// CLIENT
// ============================================================================

// Client enqueues delayed hold-expiry tasks
type Client struct {
	client *asynq.Client
	logger *logrus.Logger
}

// NewClient creates an asynq client on the configured Redis
func NewClient(cfg config.RedisConfig, logger *logrus.Logger) *Client {
	return &Client{client: asynq.NewClient(redisOpt(cfg)), logger: logger}
}

// ScheduleExpiry enqueues the expiry task to run at the hold deadline. The
// task ID is derived from the booking, so rescheduling the same booking is a no-op.
func (c *Client) ScheduleExpiry(ctx context.Context, bookingID uuid.UUID, at time.Time) error {
	payload, err := json.Marshal(ExpireHoldPayload{BookingID: bookingID})
	if err != nil {
		return fmt.Errorf("failed to encode expire hold payload: %w", err)
	}

	task := asynq.NewTask(TypeExpireHold, payload)
	info, err := c.client.EnqueueContext(ctx, task,
		asynq.ProcessAt(at),
		asynq.TaskID("expire-hold:"+bookingID.String()),
		asynq.MaxRetry(5),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to enqueue hold expiry: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"booking_id": bookingID,
		"task_id":    info.ID,
		"process_at": at,
	}).Debug("Hold expiry scheduled")
	return nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.client.Close()
}

// Noop never schedules anything. Used when Redis is not configured; the cron
// sweep still expires holds.
type Noop struct{}

func (Noop) ScheduleExpiry(context.Context, uuid.UUID, time.Time) error { return nil }

// ============================================================================
// WORKER
// ============================================================================

// Worker runs TypeExpireHold tasks
type Worker struct {
	srv     *asynq.Server
	expirer HoldExpirer
	logger  *logrus.Logger
}

// NewWorker creates an asynq server bound to expirer
func NewWorker(cfg config.RedisConfig, expirer HoldExpirer, logger *logrus.Logger) *Worker {
	srv := asynq.NewServer(redisOpt(cfg), asynq.Config{
		Concurrency: 5,
		Queues:      map[string]int{"default": 1},
		Logger:      logger,
	})
	return &Worker{srv: srv, expirer: expirer, logger: logger}
}

// Start begins processing in background goroutines
func (w *Worker) Start() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeExpireHold, w.HandleExpireHold)
	if err := w.srv.Start(mux); err != nil {
		return fmt.Errorf("failed to start task worker: %w", err)
	}
	w.logger.Info("Hold expiry worker started")
	return nil
}

// Shutdown waits for active tasks and stops the worker
func (w *Worker) Shutdown() {
	w.srv.Shutdown()
}

// HandleExpireHold expires the booking named in the task
func (w *Worker) HandleExpireHold(ctx context.Context, t *asynq.Task) error {
	var payload ExpireHoldPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid expire hold payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.BookingID == uuid.Nil {
		return fmt.Errorf("expire hold payload has no booking_id: %w", asynq.SkipRetry)
	}

	expired, err := w.expirer.ExpireBooking(ctx, payload.BookingID)
	if err != nil {
		w.logger.WithError(err).WithField("booking_id", payload.BookingID).Error("Failed to expire hold")
		return err
	}

	w.logger.WithFields(logrus.Fields{
		"booking_id": payload.BookingID,
		"expired":    expired,
	}).Info("Hold expiry task processed")
	return nil
}

// ============================================================================
// MONITORING
// ============================================================================

// MonitorHandler returns the asynqmon UI rooted at MonitoringPath
func MonitorHandler(cfg config.RedisConfig) *asynqmon.HTTPHandler {
	return asynqmon.New(asynqmon.Options{
		RootPath:     MonitoringPath,
		RedisConnOpt: redisOpt(cfg),
	})
}
