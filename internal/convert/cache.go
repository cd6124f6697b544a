// Package convert maps between platform units and broker deal units.
//
// IG quotes most CFD instruments in points and sizes deals in contracts,
// while the platform works in raw prices and quantities. Each epic gets a
// Conversion pair derived from its market details: PriceScale is the
// leading number of the instrument's onePipMeans text and SizeScale is
// its contract size.
package convert

import (
	"context"
	"log"
	"strconv"
	"strings"

	"ig-gateway/pkg/broker"
	"ig-gateway/pkg/cache"
	"ig-gateway/pkg/ig"
)

// Conversion scales platform units into broker deal units and back.
type Conversion struct {
	PriceScale float64
	SizeScale  float64
}

// Identity leaves values untouched. Used when market details are
// unavailable so callers never divide by zero.
var Identity = Conversion{PriceScale: 1, SizeScale: 1}

// PriceToBroker converts a platform price into broker points.
func (c Conversion) PriceToBroker(price float64) float64 {
	return price / c.PriceScale
}

// PriceFromBroker converts broker points into a platform price.
func (c Conversion) PriceFromBroker(points float64) float64 {
	return points * c.PriceScale
}

// SizeToBroker converts a platform quantity into deal contracts.
func (c Conversion) SizeToBroker(qty float64) float64 {
	return qty / c.SizeScale
}

// SizeFromBroker converts deal contracts into a platform quantity.
func (c Conversion) SizeFromBroker(size float64) float64 {
	return size * c.SizeScale
}

// MarketFetcher is the slice of the dealing client the cache needs.
type MarketFetcher interface {
	MarketDetails(ctx context.Context, epic string) (*ig.MarketDetails, error)
}

// Cache lazily fetches and retains one Conversion per epic.
type Cache struct {
	fetcher MarketFetcher
	gate    *broker.Gate
	entries *cache.Map[Conversion]
}

// NewCache creates a conversion cache. Fetches pass through the
// non-trading rate gate before hitting the REST API.
func NewCache(fetcher MarketFetcher, gate *broker.Gate) *Cache {
	return &Cache{
		fetcher: fetcher,
		gate:    gate,
		entries: cache.NewMap[Conversion](),
	}
}

// For returns the conversion for an epic, fetching market details on
// first use. Fetch failures return Identity without caching, so the next
// call retries.
func (c *Cache) For(ctx context.Context, epic string) Conversion {
	if conv, ok := c.entries.Get(epic); ok {
		return conv
	}

	if err := c.gate.Wait(ctx); err != nil {
		return Identity
	}
	details, err := c.fetcher.MarketDetails(ctx, epic)
	if err != nil {
		log.Printf("convert: market details for %s unavailable, using identity scales: %v", epic, err)
		return Identity
	}

	conv := FromInstrument(details.Instrument)
	c.entries.Set(epic, conv)
	return conv
}

// Invalidate drops a cached entry so the next For refetches.
func (c *Cache) Invalidate(epic string) {
	c.entries.Delete(epic)
}

// FromInstrument derives scales from an instrument description.
// Missing or unparsable fields default to 1.
func FromInstrument(inst ig.Instrument) Conversion {
	conv := Identity
	if scale, ok := leadingNumber(inst.OnePipMeans); ok && scale > 0 {
		conv.PriceScale = scale
	}
	if size, ok := leadingNumber(inst.ContractSize); ok && size > 0 {
		conv.SizeScale = size
	}
	return conv
}

// leadingNumber parses the numeric prefix of strings like
// "0.0001 USD/EUR" or "100000".
func leadingNumber(s string) (float64, bool) {
	fields := strings.Fields(strings.TrimSpace(s))
	if len(fields) == 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(fields[0], ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
