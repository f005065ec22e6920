// Package retention periodically removes old uploads and results.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultSchedule is used when no schedule is configured.
const DefaultSchedule = "@hourly"

// Sweeper removes files older than a cutoff.
type Sweeper interface {
	Sweep(cutoff time.Time) (int, error)
}

// Recorder receives the number of files removed per run.
type Recorder interface {
	RecordSwept(n int)
}

// Options configures a Runner.
type Options struct {
	// MaxAge is how long a file is kept. Zero disables retention.
	MaxAge   time.Duration
	Schedule string
	Recorder Recorder
}

// Runner sweeps the store on a cron schedule.
type Runner struct {
	store    Sweeper
	maxAge   time.Duration
	schedule string
	recorder Recorder
	logger   *zap.Logger
	now      func() time.Time
}

// New validates the schedule and returns a Runner.
func New(store Sweeper, opts Options, logger *zap.Logger) (*Runner, error) {
	if opts.MaxAge < 0 {
		return nil, fmt.Errorf("retention: max age must not be negative, got %s", opts.MaxAge)
	}
	if opts.Schedule == "" {
		opts.Schedule = DefaultSchedule
	}
	if _, err := cron.ParseStandard(opts.Schedule); err != nil {
		return nil, fmt.Errorf("retention: invalid schedule %q: %w", opts.Schedule, err)
	}
	return &Runner{
		store:    store,
		maxAge:   opts.MaxAge,
		schedule: opts.Schedule,
		recorder: opts.Recorder,
		logger:   logger.With(zap.String("component", "retention")),
		now:      time.Now,
	}, nil
}

// Enabled reports whether a max age is configured.
func (r *Runner) Enabled() bool {
	return r.maxAge > 0
}

// SweepOnce removes everything older than the max age and returns the count.
func (r *Runner) SweepOnce() (int, error) {
	if !r.Enabled() {
		return 0, nil
	}
	cutoff := r.now().Add(-r.maxAge)
	removed, err := r.store.Sweep(cutoff)
	if removed > 0 && r.recorder != nil {
		r.recorder.RecordSwept(removed)
	}
	if err != nil {
		return removed, fmt.Errorf("retention: sweep failed: %w", err)
	}
	return removed, nil
}

// Run schedules SweepOnce and blocks until ctx is done. A disabled Runner
// just waits for ctx.
func (r *Runner) Run(ctx context.Context) error {
	if !r.Enabled() {
		r.logger.Info("retention disabled")
		<-ctx.Done()
		return nil
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(r.schedule, r.run); err != nil {
		return fmt.Errorf("retention: failed to schedule sweep: %w", err)
	}
	c.Start()
	r.logger.Info("retention scheduled",
		zap.String("schedule", r.schedule),
		zap.Duration("max_age", r.maxAge),
	)

	<-ctx.Done()
	<-c.Stop().Done()
	r.logger.Info("retention stopped")
	return nil
}

func (r *Runner) run() {
	removed, err := r.SweepOnce()
	if err != nil {
		r.logger.Warn("sweep finished with errors", zap.Int("removed", removed), zap.Error(err))
		return
	}
	r.logger.Info("sweep finished", zap.Int("removed", removed))
}
