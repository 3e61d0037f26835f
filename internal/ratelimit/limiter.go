package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Limiter is a named token bucket shared by every request sent to one API.
type Limiter struct {
	name    string
	limiter *rate.Limiter
}

// NewLimiter creates a token bucket limiter
// burst: maximum number of tokens in the bucket
// every: how often one token is added to the bucket
func NewLimiter(name string, burst int, every time.Duration) *Limiter {
	return &Limiter{
		name:    name,
		limiter: rate.NewLimiter(rate.Every(every), burst),
	}
}

// Wait blocks until a token is available or ctx is done.
// A nil limiter never blocks.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", l.name, err)
	}
	return nil
}

// Pause sleeps for a courtesy delay between requests. It returns early
// with ctx.Err() when ctx is done.
func Pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Limiters holds one limiter per upstream API
type Limiters struct {
	Catalog *Limiter
	Prices  *Limiter
}

const (
	// DefaultCatalogEvery keeps pokemontcg.io well under 20,000 requests per hour.
	DefaultCatalogEvery = 300 * time.Millisecond
	DefaultPricesEvery  = 500 * time.Millisecond
)

// NewDefaultLimiters creates rate limiters with sensible defaults for each API
func NewDefaultLimiters() *Limiters {
	return NewCustomLimiters(DefaultCatalogEvery, DefaultPricesEvery)
}

// NewCustomLimiters creates limiters with custom refill intervals. A
// non-positive interval selects the default for that API.
func NewCustomLimiters(catalogEvery, pricesEvery time.Duration) *Limiters {
	if catalogEvery <= 0 {
		catalogEvery = DefaultCatalogEvery
	}
	if pricesEvery <= 0 {
		pricesEvery = DefaultPricesEvery
	}
	return &Limiters{
		Catalog: NewLimiter("pokemontcg.io", 10, catalogEvery),
		Prices:  NewLimiter("pokemonpricetracker", 5, pricesEvery),
	}
}
