package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/guarzo/pokepack/internal/ingest"
	"github.com/guarzo/pokepack/internal/model"
	"github.com/guarzo/pokepack/internal/schedule"
	"github.com/guarzo/pokepack/internal/store"
)

// Globals are flags shared by every command.
type Globals struct {
	Config   string `help:"Path to a YAML config file (default: ./pokepack.yaml if present)" type:"path"`
	DataDir  string `help:"Directory holding cards.json and scrape checkpoints"`
	LogLevel string `help:"Log level (debug, info, warn, error)"`
	Quiet    bool   `short:"q" help:"Disable progress bars"`
}

// CLI represents the complete command structure for pokepack
type CLI struct {
	Globals

	Scrape  ScrapeCmd  `cmd:"" help:"Fetch the full card catalog and replace cards.json"`
	Update  UpdateCmd  `cmd:"" help:"Back up cards.json, scrape, and restore the backup on failure"`
	Retry   RetryCmd   `cmd:"" help:"Re-fetch pages that failed in an earlier scrape"`
	Merge   MergeCmd   `cmd:"" help:"Merge checkpoint and retry files into cards.json"`
	Prices  PricesCmd  `cmd:"" help:"Refresh card market prices"`
	Pull    PullCmd    `cmd:"" help:"Pull one random card"`
	Booster BoosterCmd `cmd:"" help:"Open a booster pack of random cards"`
	Search  SearchCmd  `cmd:"" help:"Find cards by name"`
	Filter  FilterCmd  `cmd:"" help:"List cards by rarity, set or type"`
	Stats   StatsCmd   `cmd:"" help:"Show catalog statistics"`
}

type ScrapeCmd struct {
	Mode string `help:"Fetch mode" enum:"sequential,parallel" default:"sequential"`
}

func (c *ScrapeCmd) Run(ctx context.Context, app *App) error {
	r := app.runner()
	var (
		report ingest.Report
		err    error
	)
	switch c.Mode {
	case ingest.ModeParallel:
		report, err = r.Parallel(ctx)
	default:
		report, err = r.Sequential(ctx)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(app.out, formatReport(report))
	return nil
}

type UpdateCmd struct{}

func (c *UpdateCmd) Run(ctx context.Context, app *App) error {
	report, err := app.runner().Update(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(app.out, formatReport(report))
	return nil
}

type RetryCmd struct {
	Pages []int `help:"Pages to retry (default: pages recorded by the last run)" sep:","`
}

func (c *RetryCmd) Run(ctx context.Context, app *App) error {
	report, err := app.runner().Retry(ctx, c.Pages)
	if errors.Is(err, ingest.ErrNoFailedPages) {
		fmt.Fprintln(app.out, "No failed pages to retry.")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(app.out, formatReport(report))
	return nil
}

type MergeCmd struct {
	Keep bool `help:"Keep the merged checkpoint files instead of deleting them"`
}

func (c *MergeCmd) Run(ctx context.Context, app *App) error {
	m := app.merger()
	m.Keep = c.Keep
	res, err := m.Merge(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(app.out, "Merged %d files into %d unique cards (%d duplicates, %d without id, %.2f MB)\n",
		len(res.ProcessedFiles), res.Cards, res.Duplicates, res.MissingID, res.SizeMB)
	if len(res.SkippedFiles) > 0 {
		fmt.Fprintf(app.out, "Skipped: %s\n", strings.Join(res.SkippedFiles, ", "))
	}
	return nil
}

type PricesCmd struct {
	Refresh  PricesRefreshCmd  `cmd:"" help:"Refresh prices for every card now"`
	Schedule PricesScheduleCmd `cmd:"" help:"Run the price refresh on a cron schedule until interrupted"`
}

type PricesRefreshCmd struct{}

func (c *PricesRefreshCmd) Run(ctx context.Context, app *App) error {
	r, err := app.refresher()
	if err != nil {
		return err
	}
	report, err := r.RefreshFile(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(app.out, "Updated prices for %d cards (%d failed) in %d batches\n",
		report.Updated, report.Failed, report.Batches)
	return nil
}

type PricesScheduleCmd struct {
	Cron string `help:"Five-field cron spec (default from config)"`
}

func (c *PricesScheduleCmd) Run(ctx context.Context, app *App) error {
	spec := c.Cron
	if spec == "" {
		spec = app.cfg.Prices.Schedule
	}
	r, err := app.refresher()
	if err != nil {
		return err
	}

	s := schedule.New(nil)
	err = s.Add("price-refresh", spec, func(ctx context.Context) error {
		_, err := r.RefreshFile(ctx)
		return err
	})
	if err != nil {
		return err
	}
	slog.Info("price refresh scheduled", "cron", spec)
	if err := s.Run(ctx); !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

type PullCmd struct {
	Weighted bool `help:"Weight the pull by card rarity" default:"true" negatable:""`
}

func (c *PullCmd) Run(app *App) error {
	s, err := app.store()
	if err != nil {
		return err
	}
	var card model.Card
	if c.Weighted {
		card, err = s.WeightedRandomCard()
	} else {
		card, err = s.RandomCard()
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(app.out, formatCard(card))
	return nil
}

type BoosterCmd struct {
	Size int `short:"n" help:"Cards per pack" default:"5"`
}

func (c *BoosterCmd) Run(app *App) error {
	s, err := app.store()
	if err != nil {
		return err
	}
	pack, err := s.Booster(c.Size)
	if err != nil {
		return err
	}

	var total float64
	for i, card := range pack {
		fmt.Fprintf(app.out, "%d. %s\n", i+1, formatCard(card))
		if p, ok := card.MarketPrice(); ok {
			total += p
		}
	}
	fmt.Fprintf(app.out, "Pack value: $%.2f\n", total)
	return nil
}

type SearchCmd struct {
	Query string `arg:"" help:"Card name or part of it"`
	Limit int    `help:"Maximum results" default:"10"`
}

func (c *SearchCmd) Run(app *App) error {
	s, err := app.store()
	if err != nil {
		return err
	}
	found, err := s.SearchName(c.Query, c.Limit)
	if err != nil {
		return err
	}
	printCards(app, found, fmt.Sprintf("No cards match %q.", c.Query))
	return nil
}

type FilterCmd struct {
	Rarity string `help:"Rarity substring" xor:"filter" required:""`
	Set    string `help:"Set name substring" xor:"filter" required:""`
	Type   string `help:"Energy type substring" xor:"filter" required:""`
	Limit  int    `help:"Maximum results (0 for all)" default:"25"`
}

func (c *FilterCmd) Run(app *App) error {
	s, err := app.store()
	if err != nil {
		return err
	}
	var found []model.Card
	switch {
	case c.Rarity != "":
		found, err = s.CardsByRarity(c.Rarity)
	case c.Set != "":
		found, err = s.CardsBySet(c.Set)
	default:
		found, err = s.CardsByType(c.Type)
	}
	if err != nil {
		return err
	}
	total := len(found)
	if c.Limit > 0 && len(found) > c.Limit {
		found = found[:c.Limit]
	}
	printCards(app, found, "No cards match.")
	if total > len(found) {
		fmt.Fprintf(app.out, "... and %d more\n", total-len(found))
	}
	return nil
}

type StatsCmd struct{}

func (c *StatsCmd) Run(app *App) error {
	s, err := app.store()
	if err != nil {
		return err
	}
	st, err := s.Stats()
	if err != nil {
		return err
	}
	fmt.Fprintf(app.out, "Cards: %d\nSets: %d\nLast updated: %s\n", st.TotalCards, st.Sets, st.LastUpdated)
	fmt.Fprintln(app.out, "Rarities:")
	for _, r := range st.Rarities() {
		fmt.Fprintf(app.out, "  %-20s %d\n", r, st.ByRarity[r])
	}
	fmt.Fprintln(app.out, "Types:")
	for _, t := range st.Types() {
		fmt.Fprintf(app.out, "  %-20s %d\n", t, st.ByType[t])
	}
	return nil
}

func printCards(app *App, found []model.Card, empty string) {
	if len(found) == 0 {
		fmt.Fprintln(app.out, empty)
		return
	}
	for _, c := range found {
		fmt.Fprintln(app.out, formatCard(c))
	}
}

func formatCard(c model.Card) string {
	parts := []string{fmt.Sprintf("%s (%s)", c.Name, c.ID)}
	if set := c.SetName(); set != "" {
		parts = append(parts, set)
	}
	rarity := c.Rarity
	if rarity == "" {
		rarity = store.Unknown
	}
	parts = append(parts, rarity)
	if p, ok := c.MarketPrice(); ok {
		parts = append(parts, fmt.Sprintf("$%.2f", p))
	}
	return strings.Join(parts, " | ")
}

func formatReport(r ingest.Report) string {
	msg := fmt.Sprintf("%s scrape: %d cards from %d pages (%.1f%% success) in %s",
		r.Mode, r.Cards, r.TotalPages, r.SuccessRate(), r.Duration.Round(time.Millisecond))
	if len(r.FailedPages) > 0 {
		pages := make([]string, len(r.FailedPages))
		for i, p := range r.FailedPages {
			pages[i] = fmt.Sprint(p)
		}
		msg += "\nFailed pages: " + strings.Join(pages, ",") + " (run `pokepack retry`)"
	}
	return msg
}
