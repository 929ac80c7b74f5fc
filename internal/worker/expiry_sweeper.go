package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/patient-queue-service/internal/observability"
	"github.com/spec-kit/patient-queue-service/internal/repository"
	"github.com/spec-kit/patient-queue-service/internal/service"
	"github.com/spec-kit/patient-queue-service/pkg/util"
)

// ExpirySweeper periodically expires overdue WAITING tickets. It races
// call-next by design; the ledger compare-and-swap decides every conflict,
// so a ticket called in the same instant it becomes overdue ends up served,
// not expired.
type ExpirySweeper struct {
	ledger    repository.Ledger
	scheduler *service.SchedulerService
	metrics   *observability.Metrics
	logger    *zap.Logger
	interval  time.Duration
	now       func() time.Time
}

// NewExpirySweeper constructs the sweeper.
func NewExpirySweeper(ledger repository.Ledger, scheduler *service.SchedulerService, metrics *observability.Metrics, logger *zap.Logger, interval time.Duration) *ExpirySweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &ExpirySweeper{
		ledger:    ledger,
		scheduler: scheduler,
		metrics:   metrics,
		logger:    logger,
		interval:  interval,
		now:       time.Now,
	}
}

// WithClock overrides the sweeper clock.
func (w *ExpirySweeper) WithClock(now func() time.Time) *ExpirySweeper {
	w.now = now
	return w
}

// Run executes sweeps on the configured interval until the context is
// cancelled. Cancellation is honored between cycles, never mid-ticket.
func (w *ExpirySweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("expiry sweeper started", zap.Duration("interval", w.interval))
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("expiry sweeper stopped")
			return
		case <-ticker.C:
			if _, err := w.Sweep(ctx); err != nil && ctx.Err() == nil {
				w.logger.Error("sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep expires every WAITING ticket whose deadline has passed and returns
// the number expired. Tickets called or expired between the listing and
// the swap lose their compare-and-swap and are skipped silently.
func (w *ExpirySweeper) Sweep(ctx context.Context) (int, error) {
	now := w.now()
	overdue, err := w.ledger.ListWaiting(ctx, repository.WaitingFilter{ExpiresBefore: &now})
	if err != nil {
		return 0, err
	}

	expired := 0
	for i := range overdue {
		_, err := w.scheduler.Expire(ctx, overdue[i].ID, "ttl_elapsed")
		if err != nil {
			if util.IsStaleTransition(err) {
				continue
			}
			return expired, err
		}
		expired++
	}

	w.metrics.RecordSweep(expired)
	if expired > 0 {
		w.logger.Info("sweep expired tickets", zap.Int("count", expired))
	}
	return expired, nil
}
