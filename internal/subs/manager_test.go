package subs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ig-gateway/internal/convert"
	"ig-gateway/internal/events"
	"ig-gateway/internal/symbols"
	"ig-gateway/pkg/broker"
	"ig-gateway/pkg/ig"
	"ig-gateway/pkg/stream"
)

type fakeStreamer struct {
	mu     sync.Mutex
	subs   []string
	unsubs []string
	err    error
}

func (f *fakeStreamer) Subscribe(topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.subs = append(f.subs, topic)
	return nil
}

func (f *fakeStreamer) Unsubscribe(topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubs = append(f.unsubs, topic)
	return nil
}

type fakeMarkets struct{}

func (fakeMarkets) MarketDetails(_ context.Context, _ string) (*ig.MarketDetails, error) {
	return &ig.MarketDetails{Instrument: ig.Instrument{
		OnePipMeans:  "0.0001 USD/EUR",
		ContractSize: "100000",
	}}, nil
}

func newTestManager(streamer Streamer, bus *events.Bus) *Manager {
	conv := convert.NewCache(fakeMarkets{}, broker.NewGate(60, time.Minute))
	return NewManager(streamer, symbols.NewMapper(), conv, bus)
}

func eurusd() symbols.Symbol {
	return symbols.Symbol{Ticker: "EURUSD", Class: symbols.ClassForex}
}

func TestSubscribeIsIdempotent(t *testing.T) {
	streamer := &fakeStreamer{}
	m := newTestManager(streamer, nil)

	if err := m.Subscribe(eurusd()); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := m.Subscribe(eurusd()); err != nil {
		t.Fatalf("second subscribe: %v", err)
	}
	if len(streamer.subs) != 1 || streamer.subs[0] != "MARKET:CS.D.EURUSD.CFD.IP" {
		t.Fatalf("subs=%v", streamer.subs)
	}
}

func TestSubscribeUnmappedSymbolFails(t *testing.T) {
	streamer := &fakeStreamer{}
	m := newTestManager(streamer, nil)

	err := m.Subscribe(symbols.Symbol{Ticker: "ZZZZ", Class: symbols.ClassShares})
	if err == nil {
		t.Fatal("expected error for unmapped symbol")
	}
	if len(streamer.subs) != 0 {
		t.Fatalf("subs=%v", streamer.subs)
	}
}

func TestSubscribeFailureRollsBackTracking(t *testing.T) {
	streamer := &fakeStreamer{err: errors.New("not connected")}
	m := newTestManager(streamer, nil)

	if err := m.Subscribe(eurusd()); err == nil {
		t.Fatal("expected error")
	}
	if epics := m.SnapshotEpics(); len(epics) != 0 {
		t.Fatalf("epics=%v after failed subscribe", epics)
	}

	// A retry after the transport recovers subscribes cleanly.
	streamer.err = nil
	if err := m.Subscribe(eurusd()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if epics := m.SnapshotEpics(); len(epics) != 1 {
		t.Fatalf("epics=%v", epics)
	}
}

func TestUnsubscribeClearsQuoteState(t *testing.T) {
	streamer := &fakeStreamer{}
	m := newTestManager(streamer, nil)

	if err := m.Subscribe(eurusd()); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	m.HandlePrice(context.Background(), stream.PriceUpdate{
		Epic: "CS.D.EURUSD.CFD.IP", Bid: 10848, Offer: 10850,
	})
	if _, _, ok := m.LastQuote("EURUSD"); !ok {
		t.Fatal("quote missing after tick")
	}

	if err := m.Unsubscribe(eurusd()); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	if _, _, ok := m.LastQuote("EURUSD"); ok {
		t.Fatal("quote survived unsubscribe")
	}
	if len(streamer.unsubs) != 1 {
		t.Fatalf("unsubs=%v", streamer.unsubs)
	}
	// Unsubscribing again is a no-op.
	if err := m.Unsubscribe(eurusd()); err != nil {
		t.Fatalf("second unsubscribe: %v", err)
	}
	if len(streamer.unsubs) != 1 {
		t.Fatalf("unsubs after no-op=%v", streamer.unsubs)
	}
}

func TestHandlePriceConvertsAndPublishes(t *testing.T) {
	streamer := &fakeStreamer{}
	bus := events.NewBus()
	m := newTestManager(streamer, bus)

	ticks, unsub := bus.Subscribe(events.EventQuoteTick, 4)
	defer unsub()

	if err := m.Subscribe(eurusd()); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	m.HandlePrice(context.Background(), stream.PriceUpdate{
		Epic: "CS.D.EURUSD.CFD.IP", Bid: 10848, Offer: 10850,
	})

	select {
	case payload := <-ticks:
		tick, ok := payload.(events.QuoteTick)
		if !ok {
			t.Fatalf("payload type %T", payload)
		}
		if tick.Symbol != "EURUSD" {
			t.Fatalf("tick symbol=%s", tick.Symbol)
		}
		if tick.Bid < 1.08479 || tick.Bid > 1.08481 || tick.Ask < 1.08499 || tick.Ask > 1.08501 {
			t.Fatalf("tick=%+v", tick)
		}
	case <-time.After(time.Second):
		t.Fatal("no tick published")
	}

	bid, ask, ok := m.LastQuote("EURUSD")
	if !ok || bid >= ask {
		t.Fatalf("last quote=%v/%v ok=%v", bid, ask, ok)
	}
}

func TestHandlePriceDropsUnknownEpic(t *testing.T) {
	streamer := &fakeStreamer{}
	bus := events.NewBus()
	m := newTestManager(streamer, bus)

	ticks, unsub := bus.Subscribe(events.EventQuoteTick, 4)
	defer unsub()

	m.HandlePrice(context.Background(), stream.PriceUpdate{
		Epic: "IX.D.DAX.CFD.IP", Bid: 17000, Offer: 17002,
	})

	select {
	case payload := <-ticks:
		t.Fatalf("unexpected tick %+v", payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestResubscribeReplaysFullSet(t *testing.T) {
	streamer := &fakeStreamer{}
	m := newTestManager(streamer, nil)

	if err := m.Subscribe(eurusd()); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := m.Subscribe(symbols.Symbol{Ticker: "FTSE100", Class: symbols.ClassIndex}); err != nil {
		t.Fatalf("subscribe index: %v", err)
	}

	fresh := &fakeStreamer{}
	if err := m.Resubscribe(fresh); err != nil {
		t.Fatalf("resubscribe: %v", err)
	}
	if len(fresh.subs) != 2 {
		t.Fatalf("resubscribed topics=%v", fresh.subs)
	}
	seen := map[string]bool{}
	for _, s := range fresh.subs {
		seen[s] = true
	}
	if !seen["MARKET:CS.D.EURUSD.CFD.IP"] || !seen["MARKET:IX.D.FTSE.CFD.IP"] {
		t.Fatalf("topics=%v", fresh.subs)
	}
}
