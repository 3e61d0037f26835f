package prices

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/guarzo/pokepack/internal/catalog"
	"github.com/guarzo/pokepack/internal/model"
	"github.com/guarzo/pokepack/internal/progress"
	"github.com/guarzo/pokepack/internal/ratelimit"
)

// ErrNoNameMatch is returned when a name search has no exact match.
var ErrNoNameMatch = errors.New("no search result matches the card name")

// LookupError reports a card whose prices could not be refreshed. The card
// keeps its previous prices.
type LookupError struct {
	CardID string
	Name   string
	Cause  error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("prices for %s (%s): %v", e.CardID, e.Name, e.Cause)
}

func (e *LookupError) Unwrap() error {
	return e.Cause
}

// Source is the part of the price API the refresher uses.
type Source interface {
	CardPrices(ctx context.Context, id string) (map[string]model.PriceVariant, error)
	Search(ctx context.Context, name string) ([]SearchResult, error)
}

type Config struct {
	BatchSize   int
	LookupDelay time.Duration
	BatchDelay  time.Duration
	CacheSize   int
}

func DefaultConfig() Config {
	return Config{
		BatchSize:   50,
		LookupDelay: 100 * time.Millisecond,
		BatchDelay:  time.Second,
		CacheSize:   2048,
	}
}

type Report struct {
	Updated  int
	Failed   int
	Batches  int
	Duration time.Duration
}

// Refresher rewrites the price block of every card in the canonical catalog.
type Refresher struct {
	source Source
	files  catalog.Files
	cfg    Config
	// searches caches name search results by lower-cased name.
	searches *lru.Cache

	// Progress receives a progress bar when non-nil.
	Progress io.Writer
	now      func() time.Time
}

func NewRefresher(source Source, dir string, cfg Config) (*Refresher, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultConfig().CacheSize
	}
	cache, err := lru.New(cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create search cache: %w", err)
	}
	return &Refresher{
		source:   source,
		files:    catalog.Files{Dir: dir},
		cfg:      cfg,
		searches: cache,
		now:      time.Now,
	}, nil
}

// RefreshFile loads the canonical catalog and refreshes it.
func (r *Refresher) RefreshFile(ctx context.Context) (Report, error) {
	cards, err := r.files.Load()
	if err != nil {
		return Report{}, fmt.Errorf("load catalog for price refresh: %w", err)
	}
	if len(cards) == 0 {
		return Report{}, errors.New("catalog has no cards to price")
	}
	return r.RefreshAll(ctx, cards)
}

// RefreshAll updates cards in place, batch by batch, persisting the catalog
// and summary after every batch. Per-card failures are logged and counted.
func (r *Refresher) RefreshAll(ctx context.Context, cards []model.Card) (Report, error) {
	started := r.now()
	var report Report

	batches := (len(cards) + r.cfg.BatchSize - 1) / r.cfg.BatchSize
	slog.Info("refreshing prices", "cards", len(cards), "batches", batches)

	ind := progress.NewIndicator(r.Progress, "Refreshing prices", len(cards), r.Progress != nil)
	ind.Start()

	for start := 0; start < len(cards); start += r.cfg.BatchSize {
		end := min(start+r.cfg.BatchSize, len(cards))
		slog.Debug("price batch", "batch", report.Batches+1, "of", batches)

		for i := start; i < end; i++ {
			if err := ctx.Err(); err != nil {
				return r.abort(cards, report, started, ind, err)
			}

			variants, err := r.lookup(ctx, cards[i])
			if err != nil {
				if ctx.Err() != nil {
					return r.abort(cards, report, started, ind, ctx.Err())
				}
				slog.Warn("price lookup failed", "error", err)
				report.Failed++
				ind.Fail()
			} else {
				stamp := r.now().UTC()
				cards[i].TCGPlayer = &model.PriceInfo{Prices: variants, LastUpdated: &stamp}
				report.Updated++
			}
			ind.Update(i + 1)

			if err := ratelimit.Pause(ctx, r.cfg.LookupDelay); err != nil {
				return r.abort(cards, report, started, ind, err)
			}
		}

		report.Batches++
		if _, err := r.files.Save(cards, r.now()); err != nil {
			ind.FinishWithError(err)
			return report, fmt.Errorf("save prices after batch %d: %w", report.Batches, err)
		}
		slog.Info("price batch saved", "batch", report.Batches, "updated", report.Updated, "failed", report.Failed)

		if end < len(cards) {
			if err := ratelimit.Pause(ctx, r.cfg.BatchDelay); err != nil {
				ind.FinishWithError(err)
				report.Duration = r.now().Sub(started)
				return report, err
			}
		}
	}
	ind.Finish()

	report.Duration = r.now().Sub(started)
	slog.Info("price refresh complete",
		"updated", report.Updated,
		"failed", report.Failed,
		"duration", progress.FormatDuration(report.Duration))
	return report, nil
}

// abort persists the work done in the current batch and returns err.
func (r *Refresher) abort(cards []model.Card, report Report, started time.Time, ind *progress.Indicator, err error) (Report, error) {
	ind.FinishWithError(err)
	if _, serr := r.files.Save(cards, r.now()); serr != nil {
		slog.Error("could not save partial price refresh", "error", serr)
	}
	report.Duration = r.now().Sub(started)
	return report, err
}

// lookup tries the card id first and falls back to an exact name match.
func (r *Refresher) lookup(ctx context.Context, card model.Card) (map[string]model.PriceVariant, error) {
	variants, idErr := r.source.CardPrices(ctx, card.ID)
	if idErr == nil {
		return variants, nil
	}
	if card.Name == "" || ctx.Err() != nil {
		return nil, &LookupError{CardID: card.ID, Name: card.Name, Cause: idErr}
	}

	variants, nameErr := r.byName(ctx, card.Name)
	if nameErr != nil {
		return nil, &LookupError{CardID: card.ID, Name: card.Name, Cause: errors.Join(idErr, nameErr)}
	}
	return variants, nil
}

func (r *Refresher) byName(ctx context.Context, name string) (map[string]model.PriceVariant, error) {
	key := strings.ToLower(name)

	var results []SearchResult
	if cached, ok := r.searches.Get(key); ok {
		results = cached.([]SearchResult)
	} else {
		found, err := r.source.Search(ctx, name)
		if err != nil {
			return nil, err
		}
		r.searches.Add(key, found)
		results = found
	}

	for _, res := range results {
		if strings.EqualFold(res.Name, name) && res.Prices != nil {
			if variants := res.Prices.Variants(); len(variants) > 0 {
				return variants, nil
			}
			return nil, ErrNoPrices
		}
	}
	return nil, ErrNoNameMatch
}
