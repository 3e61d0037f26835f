package main

import (
	"io"
	"os"
	"path/filepath"

	"github.com/guarzo/pokepack/internal/cards"
	"github.com/guarzo/pokepack/internal/catalog"
	"github.com/guarzo/pokepack/internal/config"
	"github.com/guarzo/pokepack/internal/ingest"
	"github.com/guarzo/pokepack/internal/merge"
	"github.com/guarzo/pokepack/internal/prices"
	"github.com/guarzo/pokepack/internal/ratelimit"
	"github.com/guarzo/pokepack/internal/store"
)

// App wires configuration into the components each command needs.
type App struct {
	cfg      config.Config
	limiters *ratelimit.Limiters
	out      io.Writer
	progress bool
}

func newApp(g Globals, out io.Writer) (*App, error) {
	cfg, err := config.Load(g.Config)
	if err != nil {
		return nil, err
	}
	if g.DataDir != "" {
		cfg.DataDir = g.DataDir
	}
	if g.LogLevel != "" {
		cfg.LogLevel = g.LogLevel
	}
	limiters := ratelimit.NewDefaultLimiters()
	if cfg.Catalog.RequestEvery > 0 || cfg.Prices.RequestEvery > 0 {
		limiters = ratelimit.NewCustomLimiters(cfg.Catalog.RequestEvery, cfg.Prices.RequestEvery)
	}
	return &App{
		cfg:      cfg,
		limiters: limiters,
		out:      out,
		progress: !g.Quiet,
	}, nil
}

func (a *App) files() catalog.Files {
	return catalog.Files{Dir: a.cfg.DataDir}
}

func (a *App) progressWriter() io.Writer {
	if !a.progress {
		return nil
	}
	return os.Stderr
}

func (a *App) runner() *ingest.Runner {
	client := cards.NewPokeTCGIO(a.cfg.Catalog.BaseURL, a.cfg.Catalog.APIKey, a.limiters.Catalog)
	cfg := ingest.DefaultConfig()
	cfg.PageSize = a.cfg.Catalog.PageSize
	cfg.Concurrency = a.cfg.Catalog.Concurrency
	r := ingest.NewRunner(client, a.cfg.DataDir, cfg)
	r.Progress = a.progressWriter()
	return r
}

func (a *App) merger() *merge.Merger {
	return merge.New(a.cfg.DataDir)
}

func (a *App) refresher() (*prices.Refresher, error) {
	client := prices.NewClient(a.cfg.Prices.BaseURL, a.cfg.Prices.APIKey, a.limiters.Prices)
	cfg := prices.DefaultConfig()
	cfg.BatchSize = a.cfg.Prices.BatchSize
	r, err := prices.NewRefresher(client, a.cfg.DataDir, cfg)
	if err != nil {
		return nil, err
	}
	r.Progress = a.progressWriter()
	return r, nil
}

// store loads the canonical catalog into a card store.
func (a *App) store() (*store.Store, error) {
	s := store.New(filepath.Join(a.cfg.DataDir, catalog.FileName), store.WithWeights(a.cfg.Weights()))
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}
