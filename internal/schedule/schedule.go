package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultPriceRefresh runs the price refresh daily at 04:00.
const DefaultPriceRefresh = "0 4 * * *"

// Job is one scheduled unit of work. It receives the scheduler's context.
type Job func(ctx context.Context) error

// Scheduler runs jobs on cron specs. A job that is still running when its
// next tick arrives is skipped.
type Scheduler struct {
	cron *cron.Cron
	ctx  context.Context
	stop context.CancelFunc
}

func New(loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	logger := slogLogger{}
	ctx, stop := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		ctx:  ctx,
		stop: stop,
	}
}

// Add registers job under name with a standard five-field cron spec.
func (s *Scheduler) Add(name, spec string, job Job) error {
	_, err := s.cron.AddFunc(spec, func() {
		started := time.Now()
		slog.Info("scheduled job started", "job", name)
		if err := job(s.ctx); err != nil {
			slog.Error("scheduled job failed", "job", name, "error", err)
			return
		}
		slog.Info("scheduled job finished", "job", name, "duration", time.Since(started).Round(time.Millisecond))
	})
	if err != nil {
		return fmt.Errorf("schedule %s with %q: %w", name, spec, err)
	}
	return nil
}

// Next returns the next activation time of every registered job.
func (s *Scheduler) Next() []time.Time {
	entries := s.cron.Entries()
	out := make([]time.Time, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Next)
	}
	return out
}

// Run starts the scheduler and blocks until ctx is done. Running jobs see
// their context cancelled and are waited for before Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	for _, next := range s.Next() {
		slog.Info("next scheduled run", "at", next.Format(time.RFC3339))
	}

	<-ctx.Done()
	s.stop()
	<-s.cron.Stop().Done()
	return ctx.Err()
}

// Validate reports whether spec parses as a five-field cron spec.
func Validate(spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}
	return nil
}

// slogLogger adapts slog to cron.Logger.
type slogLogger struct{}

func (slogLogger) Info(msg string, keysAndValues ...interface{}) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (slogLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	slog.Error("cron: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
