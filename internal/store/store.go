package store

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sahilm/fuzzy"

	"github.com/guarzo/pokepack/internal/catalog"
	"github.com/guarzo/pokepack/internal/model"
)

var (
	// ErrNotLoaded means no usable catalog is in memory.
	ErrNotLoaded = errors.New("card catalog not loaded")
	// ErrEmptyCatalog means the catalog loaded but holds no cards.
	ErrEmptyCatalog = errors.New("card catalog is empty")
)

const (
	DefaultBoosterSize = 5
	Unknown            = "Unknown"
)

type Option func(*Store)

func WithWeights(w Weights) Option {
	return func(s *Store) { s.weights = w }
}

// WithRand replaces the random source; tests use it for reproducible draws.
func WithRand(r *rand.Rand) Option {
	return func(s *Store) { s.rng = r }
}

// Store is the in-memory card catalog behind the pull commands. It is safe
// for concurrent use once loaded.
type Store struct {
	path    string
	files   catalog.Files
	weights Weights

	mu      sync.RWMutex
	loaded  bool
	cards   []model.Card
	summary *model.Summary
	sampler sampler

	rngMu sync.Mutex
	rng   *rand.Rand
}

// New creates a store for the catalog at path. Call Load before querying.
func New(path string, opts ...Option) *Store {
	s := &Store{
		path:    path,
		files:   catalog.Files{Dir: filepath.Dir(path)},
		weights: DefaultWeights(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		seed := uint64(time.Now().UnixNano())
		s.rng = rand.New(rand.NewPCG(seed, seed>>1|1))
	}
	s.weights = s.weights.normalized()
	return s
}

// Load reads the catalog, and the summary when present. On failure the
// store reports ErrNotLoaded until a later Load succeeds.
func (s *Store) Load() error {
	cards, err := catalog.ReadCards(s.path)
	if err != nil {
		s.mu.Lock()
		s.loaded = false
		s.cards = nil
		s.summary = nil
		s.mu.Unlock()
		slog.Error("card catalog unavailable", "path", s.path, "error", err)
		return fmt.Errorf("%w: %v", ErrNotLoaded, err)
	}

	var summary *model.Summary
	if sum, err := s.files.LoadSummary(); err == nil {
		summary = &sum
	} else if !errors.Is(err, os.ErrNotExist) {
		slog.Warn("catalog summary unreadable", "path", s.files.SummaryPath(), "error", err)
	}

	s.mu.Lock()
	s.cards = cards
	s.summary = summary
	s.sampler = newSampler(cards, s.weights)
	s.loaded = true
	s.mu.Unlock()

	slog.Info("card catalog loaded", "cards", len(cards), "path", s.path)
	return nil
}

func (s *Store) intN(n int) int {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.rng.IntN(n)
}

func (s *Store) randFloat() float64 {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.rng.Float64()
}

// ready returns the loaded cards or the reason there are none.
func (s *Store) ready() ([]model.Card, error) {
	if !s.loaded {
		return nil, ErrNotLoaded
	}
	if len(s.cards) == 0 {
		return nil, ErrEmptyCatalog
	}
	return s.cards, nil
}

// RandomCard picks a card uniformly.
func (s *Store) RandomCard() (model.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cards, err := s.ready()
	if err != nil {
		return model.Card{}, err
	}
	return cards[s.intN(len(cards))], nil
}

// WeightedRandomCard picks a card with probability proportional to its
// rarity weight.
func (s *Store) WeightedRandomCard() (model.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cards, err := s.ready()
	if err != nil {
		return model.Card{}, err
	}
	if s.sampler.total <= 0 {
		return cards[s.intN(len(cards))], nil
	}
	return cards[s.sampler.pick(s.randFloat()*s.sampler.total)], nil
}

// Booster returns n independent uniform pulls.
func (s *Store) Booster(n int) ([]model.Card, error) {
	if n <= 0 {
		n = DefaultBoosterSize
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	cards, err := s.ready()
	if err != nil {
		return nil, err
	}
	pack := make([]model.Card, n)
	for i := range pack {
		pack[i] = cards[s.intN(len(cards))]
	}
	return pack, nil
}

func (s *Store) CardsByRarity(substr string) ([]model.Card, error) {
	return s.filter(substr, func(c model.Card) []string { return []string{c.Rarity} })
}

func (s *Store) CardsBySet(substr string) ([]model.Card, error) {
	return s.filter(substr, func(c model.Card) []string { return []string{c.SetName()} })
}

func (s *Store) CardsByType(substr string) ([]model.Card, error) {
	return s.filter(substr, func(c model.Card) []string { return c.Types })
}

// filter returns the cards for which any field value contains substr,
// ignoring case. No match is an empty result, not an error.
func (s *Store) filter(substr string, fields func(model.Card) []string) ([]model.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.loaded {
		return nil, ErrNotLoaded
	}
	needle := strings.ToLower(substr)
	out := []model.Card{}
	for _, c := range s.cards {
		for _, v := range fields(c) {
			if v != "" && strings.Contains(strings.ToLower(v), needle) {
				out = append(out, c)
				break
			}
		}
	}
	return out, nil
}

type Stats struct {
	TotalCards  int
	Sets        int
	ByRarity    map[string]int
	ByType      map[string]int
	LastUpdated string
}

// Rarities returns the rarity names in ByRarity, most common first.
func (st Stats) Rarities() []string {
	return rankedKeys(st.ByRarity)
}

func (st Stats) Types() []string {
	return rankedKeys(st.ByType)
}

// Stats computes live counts over the loaded catalog.
func (s *Store) Stats() (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.loaded {
		return Stats{}, ErrNotLoaded
	}

	st := Stats{
		TotalCards:  len(s.cards),
		ByRarity:    make(map[string]int),
		ByType:      make(map[string]int),
		LastUpdated: Unknown,
	}
	sets := make(map[string]struct{})
	for _, c := range s.cards {
		rarity := c.Rarity
		if rarity == "" {
			rarity = Unknown
		}
		st.ByRarity[rarity]++
		for _, t := range c.Types {
			st.ByType[t]++
		}
		if name := c.SetName(); name != "" {
			sets[name] = struct{}{}
		}
	}
	st.Sets = len(sets)
	if s.summary != nil && !s.summary.LastUpdated.IsZero() {
		st.LastUpdated = s.summary.LastUpdated.Format(time.RFC3339)
	}
	return st, nil
}

type nameSource []model.Card

func (n nameSource) String(i int) string { return n[i].Name }
func (n nameSource) Len() int            { return len(n) }

// SearchName returns up to limit cards whose name fuzzily matches query,
// best match first.
func (s *Store) SearchName(query string, limit int) ([]model.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.loaded {
		return nil, ErrNotLoaded
	}
	out := []model.Card{}
	if strings.TrimSpace(query) == "" {
		return out, nil
	}

	matches := fuzzy.FindFrom(query, nameSource(s.cards))
	for _, m := range matches {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, s.cards[m.Index])
	}
	return out, nil
}

func rankedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if m[keys[i]] != m[keys[j]] {
			return m[keys[i]] > m[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}
