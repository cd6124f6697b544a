// Package history serves historical candles in platform units.
package history

import (
	"context"
	"fmt"
	"time"

	"ig-gateway/internal/convert"
	"ig-gateway/internal/symbols"
	"ig-gateway/pkg/broker"
	"ig-gateway/pkg/ig"
)

// Resolution is the platform-side bar resolution.
type Resolution string

const (
	ResolutionMinute Resolution = "MINUTE"
	ResolutionHour   Resolution = "HOUR"
	ResolutionDaily  Resolution = "DAILY"
)

// brokerResolution maps a platform resolution onto the price API's
// resolution strings. Tick and second data are not served historically.
func brokerResolution(r Resolution) (string, bool) {
	switch r {
	case ResolutionMinute:
		return "MINUTE", true
	case ResolutionHour:
		return "HOUR", true
	case ResolutionDaily:
		return "DAY", true
	default:
		return "", false
	}
}

// Bar is one bid/ask candle in platform prices.
type Bar struct {
	Time     time.Time
	BidOpen  float64
	BidHigh  float64
	BidLow   float64
	BidClose float64
	AskOpen  float64
	AskHigh  float64
	AskLow   float64
	AskClose float64
	Volume   float64
}

// PricesFetcher is the slice of the REST client the service needs.
type PricesFetcher interface {
	Prices(ctx context.Context, epic, resolution string, from, to time.Time) ([]ig.Candle, error)
}

// Service fetches candles and converts them out of broker points.
type Service struct {
	fetcher PricesFetcher
	mapper  *symbols.Mapper
	conv    *convert.Cache
	gate    *broker.Gate
}

// NewService builds a history service. Requests pass the non-trading
// rate gate.
func NewService(fetcher PricesFetcher, mapper *symbols.Mapper, conv *convert.Cache, gate *broker.Gate) *Service {
	return &Service{fetcher: fetcher, mapper: mapper, conv: conv, gate: gate}
}

const snapshotTimeLayout = "2006-01-02T15:04:05"

// Bars returns converted candles for a symbol. Unsupported resolutions
// and unmapped symbols return an error without touching the API.
func (s *Service) Bars(ctx context.Context, sym symbols.Symbol, res Resolution, from, to time.Time) ([]Bar, error) {
	brokerRes, ok := brokerResolution(res)
	if !ok {
		return nil, fmt.Errorf("history: resolution %s not available", res)
	}
	epic := s.mapper.ToEpic(sym)
	if epic == "" {
		return nil, fmt.Errorf("history: no instrument mapping for %s", sym.Ticker)
	}

	if err := s.gate.Wait(ctx); err != nil {
		return nil, err
	}
	candles, err := s.fetcher.Prices(ctx, epic, brokerRes, from, to)
	if err != nil {
		return nil, fmt.Errorf("history: fetch %s: %w", epic, err)
	}

	conv := s.conv.For(ctx, epic)
	bars := make([]Bar, 0, len(candles))
	for _, c := range candles {
		ts, err := time.Parse(snapshotTimeLayout, c.Time)
		if err != nil {
			continue
		}
		bars = append(bars, Bar{
			Time:     ts.UTC(),
			BidOpen:  conv.PriceFromBroker(c.OpenBid),
			BidHigh:  conv.PriceFromBroker(c.HighBid),
			BidLow:   conv.PriceFromBroker(c.LowBid),
			BidClose: conv.PriceFromBroker(c.CloseBid),
			AskOpen:  conv.PriceFromBroker(c.OpenAsk),
			AskHigh:  conv.PriceFromBroker(c.HighAsk),
			AskLow:   conv.PriceFromBroker(c.LowAsk),
			AskClose: conv.PriceFromBroker(c.CloseAsk),
			Volume:   c.Volume,
		})
	}
	return bars, nil
}
