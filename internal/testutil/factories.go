package testutil

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/guarzo/pokepack/internal/model"
)

// CardOption customises a card built by NewCard
type CardOption func(*model.Card)

// NewCard builds a minimal catalog card
func NewCard(id, name string, opts ...CardOption) model.Card {
	c := model.Card{ID: id, Name: name}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

func WithSet(name string) CardOption {
	return func(c *model.Card) {
		c.Set = &model.Set{Name: name}
	}
}

func WithRarity(rarity string) CardOption {
	return func(c *model.Card) {
		c.Rarity = rarity
	}
}

func WithTypes(types ...string) CardOption {
	return func(c *model.Card) {
		c.Types = types
	}
}

func WithNumber(number string) CardOption {
	return func(c *model.Card) {
		c.Number = number
	}
}

func WithImages() CardOption {
	return func(c *model.Card) {
		c.Images = &model.Images{
			Small: fmt.Sprintf("https://images.test.local/%s.png", c.ID),
			Large: fmt.Sprintf("https://images.test.local/%s_hires.png", c.ID),
		}
	}
}

// WithMarket sets a market price for one variant
func WithMarket(variant string, market float64) CardOption {
	return func(c *model.Card) {
		if c.TCGPlayer == nil {
			c.TCGPlayer = &model.PriceInfo{Prices: map[string]model.PriceVariant{}}
		}
		m := market
		c.TCGPlayer.Prices[variant] = model.PriceVariant{Market: &m}
	}
}

// TestDataFactory provides methods for generating dynamic test data
type TestDataFactory struct {
	rand *rand.Rand
}

// NewTestDataFactory creates a new test data factory with a seeded random generator
func NewTestDataFactory(seed int64) *TestDataFactory {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &TestDataFactory{
		rand: rand.New(rand.NewSource(seed)),
	}
}

// GenerateTestCardNumber generates a random card number for testing
func (f *TestDataFactory) GenerateTestCardNumber() string {
	return fmt.Sprintf("%d", f.rand.Intn(300)+1)
}

// GenerateTestSetName generates a random test set name
func (f *TestDataFactory) GenerateTestSetName() string {
	sets := []string{"Test Base Set", "Test Jungle", "Test Fossil", "Test Rocket", "Test Gym"}
	return sets[f.rand.Intn(len(sets))]
}

// GenerateTestCardName generates a random test card name
func (f *TestDataFactory) GenerateTestCardName() string {
	names := []string{"Test Pikachu", "Test Charizard", "Test Blastoise", "Test Venusaur", "Test Mewtwo"}
	return names[f.rand.Intn(len(names))]
}

// GenerateTestRarity generates a rarity label; roughly one card in ten has none
func (f *TestDataFactory) GenerateTestRarity() string {
	rarities := []string{"", "Common", "Uncommon", "Rare", "Rare Holo", "Rare Holo V", "Rare Secret"}
	if f.rand.Intn(10) == 0 {
		return ""
	}
	return rarities[1+f.rand.Intn(len(rarities)-1)]
}

// GenerateTestType generates an energy type
func (f *TestDataFactory) GenerateTestType() string {
	types := []string{"Fire", "Water", "Grass", "Lightning", "Psychic", "Fighting", "Colorless"}
	return types[f.rand.Intn(len(types))]
}

// GenerateTestPrice generates a random market price in dollars
func (f *TestDataFactory) GenerateTestPrice() float64 {
	return float64(f.rand.Intn(50000)+5) / 100
}

// GenerateTestCard generates a card with a unique id derived from seq
func (f *TestDataFactory) GenerateTestCard(seq int) model.Card {
	opts := []CardOption{
		WithSet(f.GenerateTestSetName()),
		WithNumber(f.GenerateTestCardNumber()),
		WithTypes(f.GenerateTestType()),
	}
	if r := f.GenerateTestRarity(); r != "" {
		opts = append(opts, WithRarity(r))
	}
	if f.rand.Intn(2) == 0 {
		opts = append(opts, WithMarket(model.VariantNormal, f.GenerateTestPrice()))
	}
	return NewCard(fmt.Sprintf("test%d-%d", seq/100, seq%100), f.GenerateTestCardName(), opts...)
}

// GenerateTestCatalog generates n cards with unique ids
func (f *TestDataFactory) GenerateTestCatalog(n int) []model.Card {
	cards := make([]model.Card, n)
	for i := range cards {
		cards[i] = f.GenerateTestCard(i)
	}
	return cards
}
