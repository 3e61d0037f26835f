package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guarzo/pokepack/internal/cards"
	"github.com/guarzo/pokepack/internal/schedule"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, names := range envBindings {
		for _, name := range names {
			t.Setenv(name, "")
			os.Unsetenv(name)
		}
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, cards.DefaultBaseURL, cfg.Catalog.BaseURL)
	assert.Equal(t, cards.MaxPageSize, cfg.Catalog.PageSize)
	assert.Equal(t, 5, cfg.Catalog.Concurrency)
	assert.Equal(t, 300*time.Millisecond, cfg.Catalog.RequestEvery)
	assert.Equal(t, schedule.DefaultPriceRefresh, cfg.Prices.Schedule)
	assert.Equal(t, 50, cfg.Prices.BatchSize)
	assert.Empty(t, cfg.Catalog.APIKey)
	assert.Nil(t, cfg.RarityWeights)
}

func TestLoad_EnvAndDotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("PRICE_TRACKER_API_KEY=from-dotenv\n"), 0600))

	t.Setenv("POKEMON_TCG_API_KEY", "tcg-key")
	t.Setenv("POKEPACK_DATA_DIR", "/var/lib/pokepack")
	t.Setenv("POKEPACK_CATALOG_CONCURRENCY", "8")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "tcg-key", cfg.Catalog.APIKey)
	assert.Equal(t, "from-dotenv", cfg.Prices.APIKey)
	assert.Equal(t, "/var/lib/pokepack", cfg.DataDir)
	assert.Equal(t, 8, cfg.Catalog.Concurrency)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())
	path := filepath.Join(t.TempDir(), "pokepack.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
data_dir: /srv/cards
catalog:
  page_size: 100
prices:
  schedule: "30 2 * * 1"
rarity_weights:
  Common: 30
  Rare Holo VSTAR: 4
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/cards", cfg.DataDir)
	assert.Equal(t, 100, cfg.Catalog.PageSize)
	assert.Equal(t, "30 2 * * 1", cfg.Prices.Schedule)

	w := cfg.Weights()
	assert.Equal(t, 30.0, w.Weight("Common"))
	assert.Equal(t, 4.0, w.Weight("Rare Holo VSTAR"))
	assert.Equal(t, 20.0, w.Weight("Uncommon"), "untouched rarities keep their default")
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := Config{
		DataDir: "./data",
		Catalog: CatalogConfig{PageSize: 250, Concurrency: 5},
		Prices:  PricesConfig{Schedule: schedule.DefaultPriceRefresh},
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "empty data dir", mutate: func(c *Config) { c.DataDir = "" }},
		{name: "page size too large", mutate: func(c *Config) { c.Catalog.PageSize = 251 }},
		{name: "zero concurrency", mutate: func(c *Config) { c.Catalog.Concurrency = 0 }},
		{name: "bad schedule", mutate: func(c *Config) { c.Prices.Schedule = "daily" }},
		{name: "negative weight", mutate: func(c *Config) { c.RarityWeights = map[string]float64{"common": -1} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestSlogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, Config{LogLevel: in}.SlogLevel(), in)
	}
}
