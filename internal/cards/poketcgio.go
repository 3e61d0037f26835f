package cards

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/guarzo/pokepack/internal/httpx"
	"github.com/guarzo/pokepack/internal/model"
	"github.com/guarzo/pokepack/internal/ratelimit"
)

const (
	DefaultBaseURL = "https://api.pokemontcg.io/v2"
	// MaxPageSize is the largest pageSize the catalog accepts.
	MaxPageSize = 250
)

// FetchError reports a page that could not be fetched.
type FetchError struct {
	Page  int
	Cause error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch page %d: %v", e.Page, e.Cause)
}

func (e *FetchError) Unwrap() error {
	return e.Cause
}

// PageFetcher is the part of the catalog client the ingest runs depend on.
type PageFetcher interface {
	TotalCount(ctx context.Context) (int, error)
	FetchPage(ctx context.Context, page, pageSize int, timeout time.Duration) ([]model.Card, error)
}

type PokeTCGIO struct {
	baseURL string
	client  *httpx.Client
}

// NewPokeTCGIO creates a catalog client. An empty baseURL selects the public API.
func NewPokeTCGIO(baseURL, apiKey string, limiter *ratelimit.Limiter) *PokeTCGIO {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	header := http.Header{}
	if apiKey != "" {
		header.Set("X-Api-Key", apiKey)
	}
	return &PokeTCGIO{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  httpx.New("pokemontcg.io", 60*time.Second, limiter, header),
	}
}

type cardsResponse struct {
	Data       []model.Card `json:"data"`
	Page       int          `json:"page"`
	PageSize   int          `json:"pageSize"`
	Count      int          `json:"count"`
	TotalCount int          `json:"totalCount"`
}

func (p *PokeTCGIO) cardsURL(page, pageSize int) string {
	// GET /v2/cards?pageSize=250&page=N
	q := url.Values{}
	q.Set("pageSize", strconv.Itoa(pageSize))
	q.Set("page", strconv.Itoa(page))
	return p.baseURL + "/cards?" + q.Encode()
}

// TotalCount probes the catalog with a one-card page and returns totalCount.
func (p *PokeTCGIO) TotalCount(ctx context.Context) (int, error) {
	var resp cardsResponse
	if err := p.client.GetJSON(ctx, p.cardsURL(1, 1), 0, &resp); err != nil {
		return 0, fmt.Errorf("probe total count: %w", err)
	}
	return resp.TotalCount, nil
}

// FetchPage returns the cards of one page. pageSize is clamped to MaxPageSize.
func (p *PokeTCGIO) FetchPage(ctx context.Context, page, pageSize int, timeout time.Duration) ([]model.Card, error) {
	pageSize = ClampPageSize(pageSize)

	var resp cardsResponse
	if err := p.client.GetJSON(ctx, p.cardsURL(page, pageSize), timeout, &resp); err != nil {
		return nil, &FetchError{Page: page, Cause: err}
	}
	if resp.Data == nil {
		return nil, &FetchError{Page: page, Cause: errors.New("response has no data")}
	}
	return resp.Data, nil
}

func ClampPageSize(pageSize int) int {
	if pageSize <= 0 || pageSize > MaxPageSize {
		return MaxPageSize
	}
	return pageSize
}

// TotalPages returns ceil(total / pageSize).
func TotalPages(total, pageSize int) int {
	pageSize = ClampPageSize(pageSize)
	if total <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}
