package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/guarzo/pokepack/internal/cards"
	"github.com/guarzo/pokepack/internal/checkpoint"
	"github.com/guarzo/pokepack/internal/merge"
	"github.com/guarzo/pokepack/internal/model"
	"github.com/guarzo/pokepack/internal/ratelimit"
)

// ErrNoFailedPages is returned by Retry when no pages were given and the
// failure ledger is empty.
var ErrNoFailedPages = errors.New("no failed pages to retry")

func retryLabel(n int) string {
	return fmt.Sprintf("%s%d", checkpoint.PrefixRetry, n)
}

// Retry re-fetches the given pages with the heavy retry policy and merges
// the recovered cards into the canonical catalog. With no pages it retries
// the pages recorded in the failure ledger. Report.Cards is the number of
// recovered cards.
func (r *Runner) Retry(ctx context.Context, pages []int) (Report, error) {
	started := r.now()
	report := Report{Mode: ModeRetry}

	if len(pages) == 0 {
		ledger, err := r.checkpoints.LoadFailures()
		if errors.Is(err, checkpoint.ErrNotFound) || (err == nil && len(ledger.FailedPages) == 0) {
			return report, ErrNoFailedPages
		}
		if err != nil {
			return report, fmt.Errorf("retry scrape: %w", err)
		}
		slog.Info("retrying pages from failure ledger", "mode", ledger.Mode, "pages", len(ledger.FailedPages))
		pages = ledger.FailedPages
	}
	pages = uniquePages(pages)
	report.TotalPages = len(pages)

	ind := r.indicator("Retrying failed pages", len(pages))
	ind.Start()

	var collected []model.Card
	var failed []int
	for i, page := range pages {
		if err := ctx.Err(); err != nil {
			ind.FinishWithError(err)
			report.Cards = len(collected)
			report.FailedPages = append(failed, pages[i:]...)
			return report, err
		}

		got, err := cards.FetchWithRetry(ctx, r.fetcher, page, r.cfg.PageSize, r.cfg.HeavyRetry)
		switch {
		case err != nil && ctx.Err() != nil:
			ind.FinishWithError(ctx.Err())
			report.Cards = len(collected)
			report.FailedPages = append(failed, pages[i:]...)
			return report, ctx.Err()
		case err != nil:
			slog.Error("page still failing", "page", page, "error", err)
			failed = append(failed, page)
			ind.Fail()
		default:
			slog.Info("recovered page", "page", page, "cards", len(got))
			collected = append(collected, got...)
		}
		ind.Update(i + 1)

		done := i + 1
		if done%r.cfg.RetryCheckpointEvery == 0 && done < len(pages) {
			if err := r.checkpoints.Checkpoint(collected, retryLabel(done)); err != nil {
				slog.Warn("retry checkpoint failed", "pages_done", done, "error", err)
			}
		}

		if done < len(pages) {
			if err := ratelimit.Pause(ctx, r.cfg.RetryPageDelay); err != nil {
				ind.FinishWithError(err)
				report.Cards = len(collected)
				report.FailedPages = append(failed, pages[i+1:]...)
				return report, err
			}
		}
	}
	ind.Finish()

	report.Cards = len(collected)
	report.FailedPages = failed

	if len(collected) > 0 {
		if err := r.checkpoints.Checkpoint(collected, retryLabel(len(pages))); err != nil {
			return report, fmt.Errorf("retry scrape: %w", err)
		}
		m := merge.New(r.files.Dir)
		m.Now = r.now
		if _, err := m.Merge(ctx); err != nil {
			return report, fmt.Errorf("retry scrape: merge recovered cards: %w", err)
		}
	}

	if err := r.checkpoints.SaveFailures(ModeRetry, failed); err != nil {
		slog.Warn("could not update failure ledger", "error", err)
	}

	report.Duration = r.now().Sub(started)
	logReport(report)
	return report, nil
}

func uniquePages(pages []int) []int {
	seen := make(map[int]bool, len(pages))
	out := make([]int, 0, len(pages))
	for _, p := range pages {
		if p > 0 && !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	sort.Ints(out)
	return out
}
