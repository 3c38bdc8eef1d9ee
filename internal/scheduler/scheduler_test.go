package scheduler

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExpirer struct {
	calls []uuid.UUID
	err   error
}

func (f *fakeExpirer) ExpireBooking(_ context.Context, id uuid.UUID) (bool, error) {
	f.calls = append(f.calls, id)
	return f.err == nil, f.err
}

func newTestWorker(expirer HoldExpirer) *Worker {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return &Worker{expirer: expirer, logger: logger}
}

func TestHandleExpireHold(t *testing.T) {
	t.Run("expires the booking in the payload", func(t *testing.T) {
		expirer := &fakeExpirer{}
		worker := newTestWorker(expirer)
		id := uuid.New()

		err := worker.HandleExpireHold(context.Background(),
			asynq.NewTask(TypeExpireHold, []byte(`{"booking_id":"`+id.String()+`"}`)))

		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{id}, expirer.calls)
	})

	t.Run("malformed payload is not retried", func(t *testing.T) {
		expirer := &fakeExpirer{}
		worker := newTestWorker(expirer)

		err := worker.HandleExpireHold(context.Background(), asynq.NewTask(TypeExpireHold, []byte(`{`)))

		assert.ErrorIs(t, err, asynq.SkipRetry)
		assert.Empty(t, expirer.calls)
	})

	t.Run("missing booking id is not retried", func(t *testing.T) {
		worker := newTestWorker(&fakeExpirer{})

		err := worker.HandleExpireHold(context.Background(), asynq.NewTask(TypeExpireHold, []byte(`{}`)))

		assert.ErrorIs(t, err, asynq.SkipRetry)
	})

	t.Run("expiry failure is retried", func(t *testing.T) {
		boom := errors.New("db down")
		worker := newTestWorker(&fakeExpirer{err: boom})

		err := worker.HandleExpireHold(context.Background(),
			asynq.NewTask(TypeExpireHold, []byte(`{"booking_id":"`+uuid.NewString()+`"}`)))

		assert.ErrorIs(t, err, boom)
		assert.NotErrorIs(t, err, asynq.SkipRetry)
	})
}

func TestNoopScheduler(t *testing.T) {
	assert.NoError(t, Noop{}.ScheduleExpiry(context.Background(), uuid.New(), time.Now()))
}
