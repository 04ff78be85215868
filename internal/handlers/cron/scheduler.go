package cron

import (
	"context"
	"time"

	"github.com/kevin07696/newebpay-service/internal/services/ports"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler runs the reconciliation sweep in-process on a cron schedule with seconds
type Scheduler struct {
	cron    *cron.Cron
	service ports.PaymentService
	logger  *zap.Logger
	timeout time.Duration
}

// NewScheduler registers the sweep under schedule, e.g. "0 */15 * * * *".
// Overlapping runs are skipped rather than queued.
func NewScheduler(service ports.PaymentService, schedule string, timeout time.Duration, logger *zap.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		service: service,
		logger:  logger,
		timeout: timeout,
	}

	if _, err := s.cron.AddFunc(schedule, s.runSweep); err != nil {
		return nil, err
	}
	return s, nil
}

// Start begins running jobs in the background
func (s *Scheduler) Start() {
	s.logger.Info("Reconcile scheduler started")
	s.cron.Start()
}

// Stop stops the scheduler and waits for a running sweep to finish or ctx to expire
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) runSweep() {
	s.logger.Info("[CRON] Starting refund reconciliation sweep")
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	result, err := s.service.ReconcileSweep(ctx)
	if err != nil {
		s.logger.Error("[CRON] Reconciliation sweep failed", zap.Error(err))
		return
	}
	s.logger.Info("[CRON] Reconciliation sweep finished",
		zap.Int("checked", result.Checked),
		zap.Int("marked_refunded", result.MarkedRefunded),
		zap.Int("failed", result.Failed),
	)
}
