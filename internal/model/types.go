package model

import (
	"encoding/json"
	"time"
)

// Price variant keys as delivered by the catalog's tcgplayer block.
const (
	VariantHolofoil             = "holofoil"
	VariantReverseHolofoil      = "reverseHolofoil"
	VariantNormal               = "normal"
	VariantFirstEditionHolofoil = "1stEditionHolofoil"
)

type Set struct {
	ID           string            `json:"id,omitempty"`
	Name         string            `json:"name"`
	Series       string            `json:"series,omitempty"`
	PrintedTotal int               `json:"printedTotal,omitempty"`
	Total        int               `json:"total,omitempty"`
	PtcgoCode    string            `json:"ptcgoCode,omitempty"`
	ReleaseDate  string            `json:"releaseDate,omitempty"`
	UpdatedAt    string            `json:"updatedAt,omitempty"`
	Legalities   map[string]string `json:"legalities,omitempty"`
	Images       map[string]string `json:"images,omitempty"`
}

type Images struct {
	Small string `json:"small,omitempty"`
	Large string `json:"large,omitempty"`
}

// Card is one catalog record. Only the fields the bot reasons about are
// typed; everything else the catalog delivers is kept in Extra and written
// back unchanged.
type Card struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Set       *Set       `json:"set,omitempty"`
	Number    string     `json:"number,omitempty"`
	Rarity    string     `json:"rarity,omitempty"`
	Types     []string   `json:"types,omitempty"`
	Images    *Images    `json:"images,omitempty"`
	TCGPlayer *PriceInfo `json:"tcgplayer,omitempty"` // may be nil

	Extra map[string]json.RawMessage `json:"-"`
}

// PriceInfo holds the named price variants for a card. UpdatedAt is the
// catalog's own stamp, LastUpdated is set by the price refresher.
type PriceInfo struct {
	URL         string                  `json:"url,omitempty"`
	UpdatedAt   string                  `json:"updatedAt,omitempty"`
	Prices      map[string]PriceVariant `json:"prices,omitempty"`
	LastUpdated *time.Time              `json:"lastUpdated,omitempty"`
}

type PriceVariant struct {
	Low       *float64 `json:"low,omitempty"`
	Mid       *float64 `json:"mid,omitempty"`
	High      *float64 `json:"high,omitempty"`
	Market    *float64 `json:"market,omitempty"`
	DirectLow *float64 `json:"directLow,omitempty"`
}

var knownCardFields = []string{"id", "name", "set", "number", "rarity", "types", "images", "tcgplayer"}

type cardAlias Card

func (c *Card) UnmarshalJSON(b []byte) error {
	var a cardAlias
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	for _, k := range knownCardFields {
		delete(raw, k)
	}
	if len(raw) > 0 {
		a.Extra = raw
	}
	*c = Card(a)
	return nil
}

func (c Card) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(cardAlias(c))
	if err != nil {
		return nil, err
	}
	if len(c.Extra) == 0 {
		return known, nil
	}

	fields := make(map[string]json.RawMessage, len(c.Extra)+len(knownCardFields))
	if err := json.Unmarshal(known, &fields); err != nil {
		return nil, err
	}
	for k, v := range c.Extra {
		if _, typed := fields[k]; !typed {
			fields[k] = v
		}
	}
	return json.Marshal(fields)
}

// SetName returns the set name or "" when the card has no set.
func (c Card) SetName() string {
	if c.Set == nil {
		return ""
	}
	return c.Set.Name
}

func (c Card) HasImage() bool {
	return c.Images != nil && (c.Images.Small != "" || c.Images.Large != "")
}

func (c Card) HasPrices() bool {
	return c.TCGPlayer != nil && len(c.TCGPlayer.Prices) > 0
}

// MarketPrice returns the preferred market price: holofoil, then normal,
// then reverse holofoil.
func (c Card) MarketPrice() (float64, bool) {
	if c.TCGPlayer == nil {
		return 0, false
	}
	for _, variant := range []string{VariantHolofoil, VariantNormal, VariantReverseHolofoil} {
		if p, ok := c.TCGPlayer.Prices[variant]; ok && p.Market != nil {
			return *p.Market, true
		}
	}
	return 0, false
}

// Summary is derived from a catalog; see catalog.Summarize.
type Summary struct {
	TotalCards      int       `json:"totalCards"`
	Sets            int       `json:"sets"`
	Rarities        []string  `json:"rarities"`
	Types           []string  `json:"types"`
	CardsWithImages int       `json:"cardsWithImages"`
	CardsWithPrices int       `json:"cardsWithPrices"`
	LastUpdated     time.Time `json:"lastUpdated"`
}

// Progress marks how far an interrupted sequential scrape got.
type Progress struct {
	LastCompletedPage int       `json:"lastCompletedPage"`
	TotalCards        int       `json:"totalCards"`
	FailedPages       []int     `json:"failedPages"`
	Timestamp         time.Time `json:"timestamp"`
}

// FailureLedger records pages that exhausted their retries in the last run.
type FailureLedger struct {
	Mode        string    `json:"mode"`
	FailedPages []int     `json:"failedPages"`
	Timestamp   time.Time `json:"timestamp"`
}
