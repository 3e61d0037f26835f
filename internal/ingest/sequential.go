package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/guarzo/pokepack/internal/cards"
	"github.com/guarzo/pokepack/internal/checkpoint"
	"github.com/guarzo/pokepack/internal/model"
	"github.com/guarzo/pokepack/internal/ratelimit"
)

func tempLabel(page int) string {
	return fmt.Sprintf("%s%d", checkpoint.PrefixTemp, page)
}

// Sequential fetches every page in order. Every CheckpointEvery pages the
// cards collected so far and a progress marker are persisted; a later call
// resumes after the last marked page. On success the canonical catalog is
// replaced and the marker removed.
//
// When ctx is cancelled the run stops between requests, leaves its
// checkpoint in place and returns ctx.Err().
func (r *Runner) Sequential(ctx context.Context) (Report, error) {
	started := r.now()
	report := Report{Mode: ModeSequential}

	pages, err := r.totalPages(ctx)
	if err != nil {
		return report, fmt.Errorf("sequential scrape: %w", err)
	}
	report.TotalPages = pages

	first, collected, failed := r.resume()
	lastLabel := ""
	if first > 1 {
		lastLabel = tempLabel(first - 1)
	}

	ind := r.indicator("Scraping pages", pages)
	ind.Start()
	ind.Update(first - 1)

	interrupted := func(err error) (Report, error) {
		ind.FinishWithError(err)
		report.FailedPages = failed
		report.Cards = len(collected)
		report.Duration = r.now().Sub(started)
		slog.Warn("scrape interrupted; rerun to resume from the last checkpoint",
			"cards", len(collected), "checkpoint", lastLabel)
		return report, err
	}

	for page := first; page <= pages; page++ {
		if err := ctx.Err(); err != nil {
			return interrupted(err)
		}

		got, err := cards.FetchWithRetry(ctx, r.fetcher, page, r.cfg.PageSize, r.cfg.Retry)
		if err != nil {
			if ctx.Err() != nil {
				return interrupted(ctx.Err())
			}
			slog.Error("page failed after retries", "page", page, "error", err)
			failed = append(failed, page)
			ind.Fail()
		} else {
			collected = append(collected, got...)
		}
		ind.Update(page)

		if page%r.cfg.CheckpointEvery == 0 && page < pages {
			label := tempLabel(page)
			if err := r.saveCheckpoint(collected, failed, page, label); err != nil {
				slog.Warn("checkpoint failed", "page", page, "error", err)
			} else {
				if lastLabel != "" {
					if err := r.checkpoints.Remove(lastLabel); err != nil {
						slog.Warn("could not remove checkpoint", "label", lastLabel, "error", err)
					}
				}
				lastLabel = label
			}
		}

		if page < pages {
			if err := ratelimit.Pause(ctx, r.cfg.PageDelay); err != nil {
				return interrupted(err)
			}
		}
	}
	ind.Finish()

	report.FailedPages = failed
	if err := r.finish(&report, collected); err != nil {
		return report, fmt.Errorf("sequential scrape: %w", err)
	}
	if lastLabel != "" {
		if err := r.checkpoints.Remove(lastLabel); err != nil {
			slog.Warn("could not remove checkpoint", "label", lastLabel, "error", err)
		}
	}
	if err := r.checkpoints.ClearProgress(); err != nil {
		slog.Warn("could not remove progress marker", "error", err)
	}

	report.Duration = r.now().Sub(started)
	logReport(report)
	return report, nil
}

func (r *Runner) saveCheckpoint(collected []model.Card, failed []int, page int, label string) error {
	if err := r.checkpoints.Checkpoint(collected, label); err != nil {
		return err
	}
	slog.Info("checkpoint saved", "page", page, "cards", len(collected))
	return r.checkpoints.SaveProgress(model.Progress{
		LastCompletedPage: page,
		TotalCards:        len(collected),
		FailedPages:       append([]int(nil), failed...),
	})
}

// resume returns the first page to fetch and the state carried over from a
// progress marker. Without a usable marker and checkpoint the run starts at
// page 1.
func (r *Runner) resume() (int, []model.Card, []int) {
	p, err := r.checkpoints.LoadProgress()
	if errors.Is(err, checkpoint.ErrNotFound) {
		return 1, nil, nil
	}
	if err != nil {
		slog.Warn("ignoring unreadable progress marker", "error", err)
		return 1, nil, nil
	}
	if p.LastCompletedPage <= 0 {
		return 1, nil, nil
	}

	seeded, err := r.checkpoints.LoadCheckpoint(tempLabel(p.LastCompletedPage))
	if err != nil {
		slog.Warn("progress marker has no matching checkpoint; starting from page 1",
			"last_completed_page", p.LastCompletedPage, "error", err)
		return 1, nil, nil
	}

	slog.Info("resuming scrape",
		"from_page", p.LastCompletedPage+1,
		"cards", len(seeded),
		"failed_pages", len(p.FailedPages))
	return p.LastCompletedPage + 1, seeded, append([]int(nil), p.FailedPages...)
}
