package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/guarzo/pokepack/internal/cards"
	"github.com/guarzo/pokepack/internal/catalog"
	"github.com/guarzo/pokepack/internal/checkpoint"
	"github.com/guarzo/pokepack/internal/merge"
	"github.com/guarzo/pokepack/internal/model"
	"github.com/guarzo/pokepack/internal/progress"
)

const (
	ModeSequential = "sequential"
	ModeParallel   = "parallel"
	ModeRetry      = "retry"
)

// ErrNoPages is returned when the catalog reports no cards at all.
var ErrNoPages = errors.New("catalog reported no pages")

// ErrNothingFetched is returned when every page of a run failed. The
// canonical catalog is left as it was.
var ErrNothingFetched = errors.New("no cards fetched")

type Config struct {
	PageSize             int
	Concurrency          int
	CheckpointEvery      int
	RetryCheckpointEvery int
	PageDelay            time.Duration
	BatchDelay           time.Duration
	RetryPageDelay       time.Duration
	Retry                cards.RetryPolicy
	HeavyRetry           cards.RetryPolicy
}

func DefaultConfig() Config {
	return Config{
		PageSize:             cards.MaxPageSize,
		Concurrency:          5,
		CheckpointEvery:      10,
		RetryCheckpointEvery: 5,
		PageDelay:            time.Second,
		BatchDelay:           500 * time.Millisecond,
		RetryPageDelay:       2 * time.Second,
		Retry:                cards.DefaultRetry,
		HeavyRetry:           cards.HeavyRetry,
	}
}

// Report describes a finished or interrupted run.
type Report struct {
	Mode        string
	TotalPages  int
	Cards       int
	FailedPages []int
	Duration    time.Duration
}

// SuccessRate is the share of attempted pages that were fetched.
func (r Report) SuccessRate() float64 {
	if r.TotalPages == 0 {
		return 0
	}
	return float64(r.TotalPages-len(r.FailedPages)) / float64(r.TotalPages) * 100
}

// Runner drives the catalog fetch modes against one data directory.
type Runner struct {
	fetcher     cards.PageFetcher
	files       catalog.Files
	checkpoints *checkpoint.Store
	cfg         Config

	// Progress receives a progress bar when non-nil.
	Progress io.Writer
	now      func() time.Time
}

func NewRunner(fetcher cards.PageFetcher, dir string, cfg Config) *Runner {
	def := DefaultConfig()
	if cfg.PageSize <= 0 {
		cfg.PageSize = def.PageSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.CheckpointEvery <= 0 {
		cfg.CheckpointEvery = def.CheckpointEvery
	}
	if cfg.RetryCheckpointEvery <= 0 {
		cfg.RetryCheckpointEvery = def.RetryCheckpointEvery
	}
	if cfg.Retry.Attempts <= 0 {
		cfg.Retry = def.Retry
	}
	if cfg.HeavyRetry.Attempts <= 0 {
		cfg.HeavyRetry = def.HeavyRetry
	}
	return &Runner{
		fetcher:     fetcher,
		files:       catalog.Files{Dir: dir},
		checkpoints: checkpoint.New(dir),
		cfg:         cfg,
		now:         time.Now,
	}
}

func (r *Runner) totalPages(ctx context.Context) (int, error) {
	total, err := r.fetcher.TotalCount(ctx)
	if err != nil {
		return 0, err
	}
	pages := cards.TotalPages(total, r.cfg.PageSize)
	if pages == 0 {
		return 0, ErrNoPages
	}
	slog.Info("catalog size", "total_cards", total, "pages", pages, "page_size", cards.ClampPageSize(r.cfg.PageSize))
	return pages, nil
}

func (r *Runner) indicator(message string, total int) *progress.Indicator {
	return progress.NewIndicator(r.Progress, message, total, r.Progress != nil)
}

// finish replaces the canonical catalog with the run's cards and updates
// the failure ledger.
func (r *Runner) finish(report *Report, collected []model.Card) error {
	sort.Ints(report.FailedPages)
	if len(collected) == 0 {
		return ErrNothingFetched
	}

	unique, dups, missing := merge.Canonicalize(collected)
	if len(dups) > 0 || missing > 0 {
		slog.Info("canonicalized fetched cards", "duplicates", len(dups), "missing_id", missing)
	}
	summary, err := r.files.Save(unique, r.now())
	if err != nil {
		return fmt.Errorf("save catalog: %w", err)
	}
	report.Cards = len(unique)
	catalog.LogSummary(summary)

	if err := r.checkpoints.SaveFailures(report.Mode, report.FailedPages); err != nil {
		slog.Warn("could not update failure ledger", "error", err)
	}
	return nil
}

func logReport(report Report) {
	slog.Info("scrape finished",
		"mode", report.Mode,
		"pages", report.TotalPages,
		"cards", report.Cards,
		"failed_pages", len(report.FailedPages),
		"success_rate", fmt.Sprintf("%.1f%%", report.SuccessRate()),
		"duration", progress.FormatDuration(report.Duration))
	if len(report.FailedPages) > 0 {
		slog.Warn("pages failed after retries; run retry to fetch them", "pages", report.FailedPages)
	}
}

// Update backs up the canonical catalog, runs a sequential scrape and
// restores the backup when the scrape fails.
func (r *Runner) Update(ctx context.Context) (Report, error) {
	backedUp, err := r.files.Backup()
	if err != nil {
		return Report{Mode: ModeSequential}, err
	}
	if backedUp {
		slog.Info("catalog backed up", "path", r.files.BackupPath())
	}

	report, err := r.Sequential(ctx)
	if err == nil {
		return report, nil
	}
	if backedUp {
		if rerr := r.files.Restore(r.now()); rerr != nil {
			slog.Error("could not restore catalog backup", "error", rerr)
			return report, errors.Join(err, rerr)
		}
		slog.Info("catalog restored from backup")
	}
	return report, err
}
