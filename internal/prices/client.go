package prices

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/guarzo/pokepack/internal/httpx"
	"github.com/guarzo/pokepack/internal/model"
	"github.com/guarzo/pokepack/internal/ratelimit"
)

const DefaultBaseURL = "https://api.pokemonpricetracker.com/v1"

// ErrNoPrices is returned when a response carries no market price at all.
var ErrNoPrices = errors.New("no market prices in response")

type Market struct {
	Market *float64 `json:"market"`
}

// TrackerPrices is the price block returned by pokemonpricetracker.
type TrackerPrices struct {
	Holofoil        *Market `json:"holofoil"`
	ReverseHolofoil *Market `json:"reverseHolofoil"`
	Normal          *Market `json:"normal"`
	FirstEdition    *Market `json:"firstEdition"`
}

// Variants converts the block to catalog variants, keeping only variants
// that have a market price.
func (p *TrackerPrices) Variants() map[string]model.PriceVariant {
	out := make(map[string]model.PriceVariant)
	if p == nil {
		return out
	}
	add := func(key string, m *Market) {
		if m != nil && m.Market != nil {
			v := *m.Market
			out[key] = model.PriceVariant{Market: &v}
		}
	}
	add(model.VariantHolofoil, p.Holofoil)
	add(model.VariantReverseHolofoil, p.ReverseHolofoil)
	add(model.VariantNormal, p.Normal)
	add(model.VariantFirstEditionHolofoil, p.FirstEdition)
	return out
}

type cardResponse struct {
	Prices *TrackerPrices `json:"prices"`
}

type SearchResult struct {
	Name   string         `json:"name"`
	Prices *TrackerPrices `json:"prices"`
}

type searchResponse struct {
	Results []SearchResult `json:"results"`
}

// Client talks to the pokemonpricetracker API.
type Client struct {
	baseURL string
	client  *httpx.Client
}

// NewClient creates a price client. An empty baseURL selects the public
// API; the key is optional on the free tier.
func NewClient(baseURL, apiKey string, limiter *ratelimit.Limiter) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	header := http.Header{}
	if apiKey != "" {
		header.Set("Authorization", "Bearer "+apiKey)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  httpx.New("pokemonpricetracker", 10*time.Second, limiter, header),
	}
}

// CardPrices looks up the market prices of one card by catalog id.
func (c *Client) CardPrices(ctx context.Context, id string) (map[string]model.PriceVariant, error) {
	var resp cardResponse
	if err := c.client.GetJSON(ctx, c.baseURL+"/cards/"+url.PathEscape(id), 0, &resp); err != nil {
		return nil, fmt.Errorf("price lookup %s: %w", id, err)
	}
	variants := resp.Prices.Variants()
	if len(variants) == 0 {
		return nil, ErrNoPrices
	}
	return variants, nil
}

// Search returns every result the tracker has for a card name.
func (c *Client) Search(ctx context.Context, name string) ([]SearchResult, error) {
	var resp searchResponse
	u := c.baseURL + "/search?" + url.Values{"q": {name}}.Encode()
	if err := c.client.GetJSON(ctx, u, 0, &resp); err != nil {
		return nil, fmt.Errorf("price search %q: %w", name, err)
	}
	return resp.Results, nil
}
