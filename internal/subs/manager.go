// Package subs tracks market data subscriptions and fans converted
// quotes out to the rest of the gateway.
package subs

import (
	"context"
	"fmt"
	"log"
	"sync"

	"ig-gateway/internal/convert"
	"ig-gateway/internal/events"
	"ig-gateway/internal/symbols"
	"ig-gateway/pkg/stream"
)

// Subscriber can register one topic on a push session.
type Subscriber interface {
	Subscribe(topic string) error
}

// Streamer is the slice of the push client the manager drives.
type Streamer interface {
	Subscriber
	Unsubscribe(topic string) error
}

type quote struct {
	bid float64
	ask float64
}

// Manager owns the set of subscribed instruments. It remembers the
// symbol behind every subscribed epic so inbound ticks can be routed,
// converts broker points to platform prices and retains the last quote
// per ticker for market order protection.
type Manager struct {
	mu       sync.RWMutex
	stream   Streamer
	mapper   *symbols.Mapper
	conv     *convert.Cache
	bus      *events.Bus
	byEpic   map[string]symbols.Symbol
	byTicker map[string]string
	quotes   map[string]quote
}

// NewManager builds an empty subscription manager.
func NewManager(streamer Streamer, mapper *symbols.Mapper, conv *convert.Cache, bus *events.Bus) *Manager {
	return &Manager{
		stream:   streamer,
		mapper:   mapper,
		conv:     conv,
		bus:      bus,
		byEpic:   make(map[string]symbols.Symbol),
		byTicker: make(map[string]string),
		quotes:   make(map[string]quote),
	}
}

// Subscribe starts market data for a symbol. Idempotent.
func (m *Manager) Subscribe(sym symbols.Symbol) error {
	epic := m.mapper.ToEpic(sym)
	if epic == "" {
		return fmt.Errorf("subs: no instrument mapping for %s", sym.Ticker)
	}

	m.mu.Lock()
	if _, already := m.byTicker[sym.Ticker]; already {
		m.mu.Unlock()
		return nil
	}
	m.byEpic[epic] = sym
	m.byTicker[sym.Ticker] = epic
	m.mu.Unlock()

	if err := m.stream.Subscribe(stream.MarketTopic(epic)); err != nil {
		m.mu.Lock()
		delete(m.byEpic, epic)
		delete(m.byTicker, sym.Ticker)
		m.mu.Unlock()
		return fmt.Errorf("subs: subscribe %s: %w", epic, err)
	}
	return nil
}

// Unsubscribe stops market data for a symbol. Unknown symbols are a no-op.
func (m *Manager) Unsubscribe(sym symbols.Symbol) error {
	m.mu.Lock()
	epic, ok := m.byTicker[sym.Ticker]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	delete(m.byTicker, sym.Ticker)
	delete(m.byEpic, epic)
	delete(m.quotes, sym.Ticker)
	m.mu.Unlock()

	if err := m.stream.Unsubscribe(stream.MarketTopic(epic)); err != nil {
		return fmt.Errorf("subs: unsubscribe %s: %w", epic, err)
	}
	return nil
}

// SnapshotEpics returns the epics currently subscribed. The connection
// manager replays this set after a reconnect.
func (m *Manager) SnapshotEpics() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	epics := make([]string, 0, len(m.byEpic))
	for epic := range m.byEpic {
		epics = append(epics, epic)
	}
	return epics
}

// Resubscribe replays every tracked market topic, typically on a fresh
// transport after a reconnect.
func (m *Manager) Resubscribe(s Subscriber) error {
	for _, epic := range m.SnapshotEpics() {
		if err := s.Subscribe(stream.MarketTopic(epic)); err != nil {
			return fmt.Errorf("subs: resubscribe %s: %w", epic, err)
		}
	}
	return nil
}

// HandlePrice converts an inbound tick and publishes it as a quote.
// Ticks for epics nobody subscribed are dropped.
func (m *Manager) HandlePrice(ctx context.Context, u stream.PriceUpdate) {
	m.mu.RLock()
	sym, ok := m.byEpic[u.Epic]
	m.mu.RUnlock()
	if !ok {
		log.Printf("subs: tick for unsubscribed epic %s, dropping", u.Epic)
		return
	}

	conv := m.conv.For(ctx, u.Epic)
	bid := conv.PriceFromBroker(u.Bid)
	ask := conv.PriceFromBroker(u.Offer)

	m.mu.Lock()
	m.quotes[sym.Ticker] = quote{bid: bid, ask: ask}
	m.mu.Unlock()

	if m.bus != nil {
		m.bus.Publish(events.EventQuoteTick, events.QuoteTick{
			Symbol: sym.Ticker,
			Bid:    bid,
			Ask:    ask,
		})
	}
}

// LastQuote returns the most recent converted quote for a ticker.
func (m *Manager) LastQuote(ticker string) (bid, ask float64, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.quotes[ticker]
	return q.bid, q.ask, ok
}
