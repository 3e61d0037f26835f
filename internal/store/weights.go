package store

import (
	"math"
	"sort"
	"strings"

	"github.com/guarzo/pokepack/internal/model"
)

// DefaultRarity is the weight used for cards with no or an unknown rarity.
const DefaultRarity = "Common"

// DefaultWeightTable is the relative pull weight of each rarity.
var DefaultWeightTable = map[string]float64{
	"Common":          25,
	"Uncommon":        20,
	"Rare":            10,
	"Rare Holo":       10,
	"Rare Holo EX":    10,
	"Rare Holo GX":    5,
	"Rare Holo V":     5,
	"Rare Holo VMAX":  3,
	"Rare Holo VSTAR": 2.5,
	"Rare Ultra":      5,
	"Rare Secret":     1.5,
	"Rare Rainbow":    1.5,
	"Rare Shiny":      1.5,
}

// Weights maps rarities to relative pull weights. Lookups ignore case.
type Weights struct {
	Table   map[string]float64
	Default string
}

func DefaultWeights() Weights {
	table := make(map[string]float64, len(DefaultWeightTable))
	for k, v := range DefaultWeightTable {
		table[k] = v
	}
	return Weights{Table: table, Default: DefaultRarity}
}

func (w Weights) normalized() Weights {
	out := Weights{Table: make(map[string]float64, len(w.Table)), Default: w.Default}
	for k, v := range w.Table {
		out.Table[strings.ToLower(strings.TrimSpace(k))] = v
	}
	if out.Default == "" {
		out.Default = DefaultRarity
	}
	return out
}

// Weight returns the weight for a rarity, falling back to the default
// rarity's weight.
func (w Weights) Weight(rarity string) float64 {
	n := w.normalized()
	return n.weight(rarity)
}

func (w Weights) weight(rarity string) float64 {
	if v, ok := w.Table[strings.ToLower(strings.TrimSpace(rarity))]; ok {
		return v
	}
	return w.Table[strings.ToLower(w.Default)]
}

// sampler draws card indexes with probability weight(card)/sum(weight) using
// a cumulative weight table and binary search. Cards with a zero or negative
// weight are never drawn.
type sampler struct {
	cumulative []float64
	total      float64
}

func newSampler(cards []model.Card, w Weights) sampler {
	s := sampler{cumulative: make([]float64, len(cards))}
	for i, c := range cards {
		if v := w.weight(c.Rarity); v > 0 {
			s.total += v
		}
		s.cumulative[i] = s.total
	}
	return s
}

// pick maps r in [0, total) to a card index.
func (s sampler) pick(r float64) int {
	if r >= s.total {
		r = math.Nextafter(s.total, 0)
	}
	return sort.Search(len(s.cumulative), func(i int) bool { return s.cumulative[i] > r })
}
