package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"watchpost/internal/config"
	"watchpost/internal/store"
)

// Runner owns the background maintenance jobs. Monitoring log history
// grows without bound otherwise; the sweep keeps it to the configured
// retention window.
type Runner struct {
	cron   *cron.Cron
	store  store.Storer
	logger *zap.Logger
	cfg    config.JobsConfig
}

// NewRunner creates a job runner.
func NewRunner(st store.Storer, logger *zap.Logger, cfg config.JobsConfig) *Runner {
	return &Runner{
		cron:   cron.New(),
		store:  st,
		logger: logger,
		cfg:    cfg,
	}
}

// Start registers and starts the background jobs. A zero retention
// setting disables the sweep entirely.
func (r *Runner) Start() error {
	if r.cfg.LogRetentionDays > 0 {
		if _, err := r.cron.AddFunc(r.cfg.RetentionCron, r.sweepOldLogs); err != nil {
			return err
		}
	}

	r.cron.Start()
	r.logger.Info("job runner started",
		zap.Int("log_retention_days", r.cfg.LogRetentionDays))
	return nil
}

// Stop stops the cron loop and waits for a running job to finish.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info("job runner stopped")
}

func (r *Runner) sweepOldLogs() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cutoff := time.Now().UTC().AddDate(0, 0, -r.cfg.LogRetentionDays)
	deleted, err := r.store.DeleteLogsBefore(ctx, cutoff)
	if err != nil {
		r.logger.Error("failed to sweep old monitoring logs", zap.Error(err))
		return
	}
	r.logger.Info("swept old monitoring logs",
		zap.Int64("deleted", deleted),
		zap.Time("cutoff", cutoff))
}
