package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/guarzo/pokepack/internal/cards"
	"github.com/guarzo/pokepack/internal/checkpoint"
	"github.com/guarzo/pokepack/internal/model"
	"github.com/guarzo/pokepack/internal/ratelimit"
)

type pageResult struct {
	page  int
	cards []model.Card
	err   error
}

// fetchBatch requests pages first..last concurrently. A failed page never
// cancels its siblings; results come back in page order.
func (r *Runner) fetchBatch(ctx context.Context, first, last int, policy cards.RetryPolicy) []pageResult {
	results := make([]pageResult, last-first+1)

	var g errgroup.Group
	g.SetLimit(r.cfg.Concurrency)
	for i := range results {
		page := first + i
		g.Go(func() error {
			got, err := cards.FetchWithRetry(ctx, r.fetcher, page, r.cfg.PageSize, policy)
			results[i] = pageResult{page: page, cards: got, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Parallel fetches the catalog in batches of Concurrency pages. Batches run
// strictly in order and a snapshot checkpoint is written after each one.
func (r *Runner) Parallel(ctx context.Context) (Report, error) {
	started := r.now()
	report := Report{Mode: ModeParallel}

	pages, err := r.totalPages(ctx)
	if err != nil {
		return report, fmt.Errorf("parallel scrape: %w", err)
	}
	report.TotalPages = pages

	var collected []model.Card
	var failed []int
	lastLabel := ""

	ind := r.indicator("Scraping batches", pages)
	ind.Start()

	width := r.cfg.Concurrency
	for first := 1; first <= pages; first += width {
		last := min(first+width-1, pages)
		if err := ctx.Err(); err != nil {
			ind.FinishWithError(err)
			report.FailedPages = failed
			report.Cards = len(collected)
			report.Duration = r.now().Sub(started)
			return report, err
		}

		for _, res := range r.fetchBatch(ctx, first, last, r.cfg.Retry) {
			if res.err != nil {
				slog.Error("page failed after retries", "page", res.page, "error", res.err)
				failed = append(failed, res.page)
				ind.Fail()
				continue
			}
			collected = append(collected, res.cards...)
		}
		ind.Update(last)

		label := fmt.Sprintf("%s%d", checkpoint.PrefixTempBatch, last)
		if err := r.checkpoints.Checkpoint(collected, label); err != nil {
			slog.Warn("batch checkpoint failed", "batch_end", last, "error", err)
		} else {
			if lastLabel != "" {
				if err := r.checkpoints.Remove(lastLabel); err != nil {
					slog.Warn("could not remove checkpoint", "label", lastLabel, "error", err)
				}
			}
			lastLabel = label
		}
		slog.Debug("batch complete", "first", first, "last", last, "cards", len(collected))

		if last < pages {
			if err := ratelimit.Pause(ctx, r.cfg.BatchDelay); err != nil {
				ind.FinishWithError(err)
				report.FailedPages = failed
				report.Cards = len(collected)
				report.Duration = r.now().Sub(started)
				return report, err
			}
		}
	}
	ind.Finish()

	if ctx.Err() != nil {
		report.FailedPages = failed
		report.Cards = len(collected)
		return report, ctx.Err()
	}

	report.FailedPages = failed
	if err := r.finish(&report, collected); err != nil {
		return report, fmt.Errorf("parallel scrape: %w", err)
	}
	// Batch snapshots left by an interrupted run are superseded too.
	removed, err := r.checkpoints.RemoveMatching(checkpoint.PrefixTempBatch)
	if err != nil {
		slog.Warn("could not remove batch checkpoints", "error", err)
	}
	slog.Debug("batch checkpoints removed", "files", len(removed))

	report.Duration = r.now().Sub(started)
	logReport(report)
	return report, nil
}
