package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

type countingSweeper struct {
	runs atomic.Int32
	err  error
}

func (s *countingSweeper) RunOnce(_ context.Context) (int, error) {
	s.runs.Add(1)
	return 2, s.err
}

func TestCronService_SweepRunsWithoutLocker(t *testing.T) {
	sweeper := &countingSweeper{}
	svc := NewCronService("*/30 * * * * *", sweeper, nil, testLogger())

	svc.sweepHoldsJob()
	sweeper.err = errors.New("db down")
	svc.sweepHoldsJob()

	assert.Equal(t, int32(2), sweeper.runs.Load())
}

func TestCronService_StartRejectsBadSpec(t *testing.T) {
	svc := NewCronService("every minute", &countingSweeper{}, nil, testLogger())

	assert.Error(t, svc.Start())
}

func TestCronService_StartAndStop(t *testing.T) {
	svc := NewCronService("0 0 3 * * *", &countingSweeper{}, nil, testLogger())

	assert.NoError(t, svc.Start())
	svc.Stop()
}
