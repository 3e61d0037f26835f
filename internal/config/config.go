package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/guarzo/pokepack/internal/cards"
	"github.com/guarzo/pokepack/internal/ingest"
	"github.com/guarzo/pokepack/internal/prices"
	"github.com/guarzo/pokepack/internal/schedule"
	"github.com/guarzo/pokepack/internal/store"
)

// Config holds every setting the commands need.
type Config struct {
	DataDir  string
	LogLevel string

	Catalog CatalogConfig
	Prices  PricesConfig

	// RarityWeights overrides the default pull weight table when non-empty.
	// Keys are matched case-insensitively.
	RarityWeights map[string]float64
}

type CatalogConfig struct {
	BaseURL     string
	APIKey      string
	PageSize    int
	Concurrency int
	// RequestEvery is the token refill interval of the request limiter.
	RequestEvery time.Duration
}

type PricesConfig struct {
	BaseURL      string
	APIKey       string
	Schedule     string
	BatchSize    int
	RequestEvery time.Duration
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", "./data")
	v.SetDefault("log_level", "info")

	v.SetDefault("catalog.base_url", cards.DefaultBaseURL)
	v.SetDefault("catalog.page_size", cards.MaxPageSize)
	v.SetDefault("catalog.concurrency", ingest.DefaultConfig().Concurrency)
	v.SetDefault("catalog.request_every", "300ms")

	v.SetDefault("prices.base_url", prices.DefaultBaseURL)
	v.SetDefault("prices.schedule", schedule.DefaultPriceRefresh)
	v.SetDefault("prices.batch_size", prices.DefaultConfig().BatchSize)
	v.SetDefault("prices.request_every", "500ms")
}

var envBindings = map[string][]string{
	"data_dir":        {"POKEPACK_DATA_DIR"},
	"log_level":       {"LOG_LEVEL", "POKEPACK_LOG_LEVEL"},
	"catalog.api_key": {"POKEMON_TCG_API_KEY", "POKEPACK_CATALOG_API_KEY"},
	"prices.api_key":  {"PRICE_TRACKER_API_KEY", "POKEPACK_PRICES_API_KEY"},
}

// Load reads .env (if present), then the optional YAML config file, then
// the environment. An empty path searches for pokepack.yaml in the working
// directory; a missing file is not an error.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("could not read .env file", "error", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("POKEPACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range envBindings {
		args := append([]string{key}, names...)
		if err := v.BindEnv(args...); err != nil {
			return Config{}, fmt.Errorf("bind env for %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("pokepack")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		slog.Debug("config file loaded", "path", v.ConfigFileUsed())
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		DataDir:  v.GetString("data_dir"),
		LogLevel: v.GetString("log_level"),
		Catalog: CatalogConfig{
			BaseURL:      v.GetString("catalog.base_url"),
			APIKey:       v.GetString("catalog.api_key"),
			PageSize:     v.GetInt("catalog.page_size"),
			Concurrency:  v.GetInt("catalog.concurrency"),
			RequestEvery: v.GetDuration("catalog.request_every"),
		},
		Prices: PricesConfig{
			BaseURL:      v.GetString("prices.base_url"),
			APIKey:       v.GetString("prices.api_key"),
			Schedule:     v.GetString("prices.schedule"),
			BatchSize:    v.GetInt("prices.batch_size"),
			RequestEvery: v.GetDuration("prices.request_every"),
		},
	}

	if raw := v.GetStringMap("rarity_weights"); len(raw) > 0 {
		cfg.RarityWeights = make(map[string]float64, len(raw))
		for rarity := range raw {
			cfg.RarityWeights[rarity] = v.GetFloat64("rarity_weights." + rarity)
		}
	}

	return cfg, cfg.Validate()
}

// Validate checks values that would otherwise fail deep inside a run.
func (c Config) Validate() error {
	var errs []error
	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir must not be empty"))
	}
	if c.Catalog.PageSize <= 0 || c.Catalog.PageSize > cards.MaxPageSize {
		errs = append(errs, fmt.Errorf("catalog.page_size must be between 1 and %d", cards.MaxPageSize))
	}
	if c.Catalog.Concurrency <= 0 {
		errs = append(errs, errors.New("catalog.concurrency must be positive"))
	}
	if err := schedule.Validate(c.Prices.Schedule); err != nil {
		errs = append(errs, err)
	}
	for rarity, w := range c.RarityWeights {
		if w < 0 {
			errs = append(errs, fmt.Errorf("rarity_weights.%s must not be negative", rarity))
		}
	}
	return errors.Join(errs...)
}

// Weights returns the pull weights, applying any configured overrides on
// top of the default table.
func (c Config) Weights() store.Weights {
	w := store.DefaultWeights()
	for rarity, weight := range c.RarityWeights {
		for known := range w.Table {
			if strings.EqualFold(known, rarity) {
				delete(w.Table, known)
			}
		}
		w.Table[rarity] = weight
	}
	return w
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
