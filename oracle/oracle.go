// Package oracle provides the manual price oracle consumed by the lending
// engine. Quotes are posted by an operator and served read-only.
package oracle

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"lendex/market"
)

// ErrAssetUnlisted indicates no quote exists for the requested asset.
var ErrAssetUnlisted = errors.New("oracle: asset not listed")

// ErrQuoteStale indicates the quote exceeded the configured freshness window.
var ErrQuoteStale = errors.New("oracle: quote stale")

// Manual is an in-memory oracle keyed by asset identifier. A zero maxAge
// disables staleness checks.
type Manual struct {
	mu     sync.RWMutex
	quotes map[string]market.PriceQuote
	maxAge time.Duration
	nowFn  func() uint64
}

// NewManual constructs an empty oracle with the supplied freshness window.
func NewManual(maxAge time.Duration) *Manual {
	return &Manual{
		quotes: make(map[string]market.PriceQuote),
		maxAge: maxAge,
		nowFn:  func() uint64 { return uint64(time.Now().Unix()) },
	}
}

// SetNowFunc overrides the wall clock used for staleness checks.
func (o *Manual) SetNowFunc(now func() uint64) {
	if o == nil || now == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.nowFn = now
}

// SetPrice posts a quote for an asset at the current time.
func (o *Manual) SetPrice(asset string, priceMicroUSD uint64) error {
	asset = strings.TrimSpace(asset)
	if asset == "" {
		return fmt.Errorf("oracle: asset identifier required")
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.quotes[asset] = market.PriceQuote{
		PriceMicroUSD: priceMicroUSD,
		LastUpdated:   o.nowFn(),
	}
	return nil
}

// GetPrice resolves the latest quote for the asset. Satisfies
// market.PriceOracle.
func (o *Manual) GetPrice(asset string) (market.PriceQuote, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	quote, ok := o.quotes[strings.TrimSpace(asset)]
	if !ok {
		return market.PriceQuote{}, ErrAssetUnlisted
	}
	if o.maxAge > 0 {
		now := o.nowFn()
		if now > quote.LastUpdated && time.Duration(now-quote.LastUpdated)*time.Second > o.maxAge {
			return market.PriceQuote{}, ErrQuoteStale
		}
	}
	return quote, nil
}

// Assets lists the identifiers with posted quotes.
func (o *Manual) Assets() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]string, 0, len(o.quotes))
	for asset := range o.quotes {
		out = append(out, asset)
	}
	return out
}
