package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const holdSweepLockName = "cron:hold-sweep"

// HoldSweeper expires one batch of lapsed holds
type HoldSweeper interface {
	RunOnce(ctx context.Context) (int, error)
}

// CronService manages scheduled background jobs
type CronService struct {
	cron    *cron.Cron
	spec    string
	sweeper HoldSweeper
	locker  *redsync.Redsync
	timeout time.Duration
	logger  *logrus.Logger
}

// NewCronService creates a new CronService. spec uses seconds precision.
// With a nil locker every instance sweeps; with one, a Redis mutex lets a
// single instance run each tick.
func NewCronService(spec string, sweeper HoldSweeper, locker *redsync.Redsync, logger *logrus.Logger) *CronService {
	return &CronService{
		cron:    cron.New(cron.WithSeconds()),
		spec:    spec,
		sweeper: sweeper,
		locker:  locker,
		timeout: 50 * time.Second,
		logger:  logger,
	}
}

// Start starts all cron jobs
func (s *CronService) Start() error {
	// second minute hour day month weekday
	if _, err := s.cron.AddFunc(s.spec, s.sweepHoldsJob); err != nil {
		return fmt.Errorf("failed to schedule hold sweep job: %w", err)
	}

	s.cron.Start()
	s.logger.WithField("spec", s.spec).Info("Cron service started, hold sweep scheduled")
	return nil
}

// Stop stops the scheduler and waits for a running job
func (s *CronService) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("Cron service stopped")
}

func (s *CronService) sweepHoldsJob() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if s.locker != nil {
		mutex := s.locker.NewMutex(holdSweepLockName,
			redsync.WithExpiry(s.timeout+5*time.Second),
			redsync.WithTries(1),
		)
		if err := mutex.LockContext(ctx); err != nil {
			s.logger.WithError(err).Debug("Hold sweep skipped, another instance holds the lock")
			return
		}
		defer func() {
			if _, err := mutex.UnlockContext(context.Background()); err != nil {
				s.logger.WithError(err).Warn("Failed to release hold sweep lock")
			}
		}()
	}

	expired, err := s.sweeper.RunOnce(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Hold sweep failed")
		return
	}
	if expired > 0 {
		s.logger.WithField("expired", expired).Info("Hold sweep completed")
	}
}
