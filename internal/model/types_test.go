package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const apiCard = `{
  "id": "base1-4",
  "name": "Charizard",
  "supertype": "Pokémon",
  "hp": "120",
  "attacks": [{"name": "Fire Spin", "damage": "100"}],
  "set": {"id": "base1", "name": "Base", "series": "Base", "releaseDate": "1999/01/09"},
  "number": "4",
  "rarity": "Rare Holo",
  "types": ["Fire"],
  "images": {"small": "https://images.pokemontcg.io/base1/4.png", "large": "https://images.pokemontcg.io/base1/4_hires.png"},
  "tcgplayer": {
    "url": "https://prices.pokemontcg.io/tcgplayer/base1-4",
    "updatedAt": "2026/10/01",
    "prices": {"holofoil": {"low": 300.0, "market": 412.5}}
  },
  "cardmarket": {"prices": {"trendPrice": 390.1}}
}`

func TestCard_UnmarshalKeepsUnknownFields(t *testing.T) {
	var c Card
	require.NoError(t, json.Unmarshal([]byte(apiCard), &c))

	assert.Equal(t, "base1-4", c.ID)
	assert.Equal(t, "Base", c.SetName())
	assert.Equal(t, []string{"Fire"}, c.Types)
	assert.True(t, c.HasImage())
	assert.True(t, c.HasPrices())

	for _, key := range []string{"supertype", "hp", "attacks", "cardmarket"} {
		assert.Contains(t, c.Extra, key)
	}
	assert.NotContains(t, c.Extra, "id")
	assert.NotContains(t, c.Extra, "tcgplayer")
}

func TestCard_RoundTrip(t *testing.T) {
	var c Card
	require.NoError(t, json.Unmarshal([]byte(apiCard), &c))

	out, err := json.Marshal(c)
	require.NoError(t, err)

	var want, got map[string]any
	require.NoError(t, json.Unmarshal([]byte(apiCard), &want))
	require.NoError(t, json.Unmarshal(out, &got))
	assert.Equal(t, want, got)
}

func TestCard_TypedFieldsWinOverExtra(t *testing.T) {
	c := Card{
		ID:    "a1",
		Name:  "New Name",
		Extra: map[string]json.RawMessage{"name": json.RawMessage(`"Stale"`), "hp": json.RawMessage(`"60"`)},
	}

	out, err := json.Marshal(c)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(out, &got))
	assert.Equal(t, "New Name", got["name"])
	assert.Equal(t, "60", got["hp"])
}

func TestCard_MarketPrice(t *testing.T) {
	price := func(v float64) *float64 { return &v }

	tests := []struct {
		name   string
		card   Card
		want   float64
		wantOK bool
	}{
		{name: "no price block", card: Card{}, wantOK: false},
		{
			name: "holofoil preferred",
			card: Card{TCGPlayer: &PriceInfo{Prices: map[string]PriceVariant{
				VariantNormal:   {Market: price(1)},
				VariantHolofoil: {Market: price(10)},
			}}},
			want: 10, wantOK: true,
		},
		{
			name: "normal before reverse",
			card: Card{TCGPlayer: &PriceInfo{Prices: map[string]PriceVariant{
				VariantReverseHolofoil: {Market: price(3)},
				VariantNormal:          {Market: price(2)},
			}}},
			want: 2, wantOK: true,
		},
		{
			name: "variant without market",
			card: Card{TCGPlayer: &PriceInfo{Prices: map[string]PriceVariant{
				VariantHolofoil: {Low: price(5)},
			}}},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.card.MarketPrice()
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
