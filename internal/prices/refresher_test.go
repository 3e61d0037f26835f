package prices

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guarzo/pokepack/internal/catalog"
	"github.com/guarzo/pokepack/internal/model"
	"github.com/guarzo/pokepack/internal/testutil"
)

type fakeSource struct {
	mu       sync.Mutex
	byID     map[string]float64
	byName   map[string][]SearchResult
	searches []string
	onLookup func(id string)
}

func (f *fakeSource) CardPrices(ctx context.Context, id string) (map[string]model.PriceVariant, error) {
	if f.onLookup != nil {
		f.onLookup(id)
	}
	p, ok := f.byID[id]
	if !ok {
		return nil, errors.New("status 404")
	}
	return map[string]model.PriceVariant{model.VariantNormal: {Market: &p}}, nil
}

func (f *fakeSource) Search(ctx context.Context, name string) ([]SearchResult, error) {
	f.mu.Lock()
	f.searches = append(f.searches, name)
	f.mu.Unlock()
	return f.byName[name], nil
}

func price(v float64) *float64 { return &v }

func quickConfig(batch int) Config {
	return Config{BatchSize: batch}
}

func TestRefresher_RefreshAll(t *testing.T) {
	dir := t.TempDir()
	stale := testutil.NewCard("old-1", "Stale", testutil.WithMarket(model.VariantHolofoil, 99))
	stale.TCGPlayer.URL = "https://prices.example/old-1"

	cards := []model.Card{
		testutil.NewCard("a1", "Bulbasaur", testutil.WithMarket(model.VariantHolofoil, 5)),
		testutil.NewCard("b2", "Ivysaur"),
		stale,
		testutil.NewCard("d4", "Venusaur"),
	}
	src := &fakeSource{
		byID: map[string]float64{"a1": 1.25},
		byName: map[string][]SearchResult{
			"Ivysaur": {
				{Name: "Ivysaur ex", Prices: &TrackerPrices{Normal: &Market{Market: price(10)}}},
				{Name: "IVYSAUR", Prices: &TrackerPrices{ReverseHolofoil: &Market{Market: price(2)}}},
			},
		},
	}

	r, err := NewRefresher(src, dir, quickConfig(3))
	require.NoError(t, err)
	fixed := time.Date(2026, 10, 19, 4, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return fixed }

	report, err := r.RefreshAll(context.Background(), cards)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Updated)
	assert.Equal(t, 2, report.Failed)
	assert.Equal(t, 2, report.Batches)

	// Replaced wholesale, old variants dropped
	require.NotNil(t, cards[0].TCGPlayer)
	assert.Len(t, cards[0].TCGPlayer.Prices, 1)
	assert.Equal(t, 1.25, *cards[0].TCGPlayer.Prices[model.VariantNormal].Market)
	assert.True(t, fixed.Equal(*cards[0].TCGPlayer.LastUpdated))

	// Name fallback picks the exact case-insensitive match
	assert.Equal(t, 2.0, *cards[1].TCGPlayer.Prices[model.VariantReverseHolofoil].Market)

	// Failures keep stale data
	assert.Equal(t, "https://prices.example/old-1", cards[2].TCGPlayer.URL)
	assert.Nil(t, cards[3].TCGPlayer)

	saved, err := catalog.Files{Dir: dir}.Load()
	require.NoError(t, err)
	assert.Equal(t, 1.25, *saved[0].TCGPlayer.Prices[model.VariantNormal].Market)

	summary, err := catalog.Files{Dir: dir}.LoadSummary()
	require.NoError(t, err)
	assert.Equal(t, 3, summary.CardsWithPrices)
}

func TestRefresher_SearchCache(t *testing.T) {
	cards := []model.Card{
		testutil.NewCard("x1", "Pikachu"),
		testutil.NewCard("x2", "pikachu"),
		testutil.NewCard("x3", "Pikachu"),
	}
	src := &fakeSource{byName: map[string][]SearchResult{
		"Pikachu": {{Name: "Pikachu", Prices: &TrackerPrices{Normal: &Market{Market: price(3)}}}},
	}}

	r, err := NewRefresher(src, t.TempDir(), quickConfig(50))
	require.NoError(t, err)
	report, err := r.RefreshAll(context.Background(), cards)
	require.NoError(t, err)

	assert.Equal(t, 3, report.Updated)
	assert.Equal(t, []string{"Pikachu"}, src.searches)
}

func TestRefresher_LookupErrorCarriesCard(t *testing.T) {
	r, err := NewRefresher(&fakeSource{}, t.TempDir(), quickConfig(1))
	require.NoError(t, err)

	_, err = r.lookup(context.Background(), testutil.NewCard("z9", "Missingno"))
	var le *LookupError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, "z9", le.CardID)
	assert.Equal(t, "Missingno", le.Name)
	assert.ErrorIs(t, err, ErrNoNameMatch)
}

func TestRefresher_CancelSavesProgress(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &fakeSource{
		byID: map[string]float64{"a1": 1, "b2": 2, "c3": 3},
		onLookup: func(id string) {
			if id == "b2" {
				cancel()
			}
		},
	}
	cards := []model.Card{
		testutil.NewCard("a1", "A"),
		testutil.NewCard("b2", "B"),
		testutil.NewCard("c3", "C"),
	}

	r, err := NewRefresher(src, dir, quickConfig(50))
	require.NoError(t, err)
	report, err := r.RefreshAll(ctx, cards)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, report.Updated)

	saved, err := catalog.Files{Dir: dir}.Load()
	require.NoError(t, err)
	assert.NotNil(t, saved[0].TCGPlayer)
	assert.Nil(t, saved[2].TCGPlayer)
}

func TestRefresher_RefreshFile(t *testing.T) {
	t.Run("missing catalog", func(t *testing.T) {
		r, err := NewRefresher(&fakeSource{}, t.TempDir(), quickConfig(5))
		require.NoError(t, err)
		_, err = r.RefreshFile(context.Background())
		assert.Error(t, err)
	})

	t.Run("refreshes catalog on disk", func(t *testing.T) {
		dir := t.TempDir()
		_, err := catalog.Files{Dir: dir}.Save([]model.Card{testutil.NewCard("a1", "A")}, time.Now())
		require.NoError(t, err)

		r, err := NewRefresher(&fakeSource{byID: map[string]float64{"a1": 7}}, dir, quickConfig(5))
		require.NoError(t, err)
		report, err := r.RefreshFile(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, report.Updated)

		saved, err := catalog.Files{Dir: dir}.Load()
		require.NoError(t, err)
		assert.Equal(t, 7.0, *saved[0].TCGPlayer.Prices[model.VariantNormal].Market)
	})
}
