package orders

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ig-gateway/internal/convert"
	"ig-gateway/internal/symbols"
	"ig-gateway/pkg/broker"
	"ig-gateway/pkg/ig"
	"ig-gateway/pkg/stream"
)

type fakeDealer struct {
	mu          sync.Mutex
	otcReqs     []ig.OTCOrderRequest
	workingReqs []ig.WorkingOrderRequest
	updates     []ig.WorkingOrderUpdate
	deleted     []string
	placeErr    error
	nextRef     string
}

func (f *fakeDealer) PlaceOTCOrder(_ context.Context, req ig.OTCOrderRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.placeErr != nil {
		return "", f.placeErr
	}
	f.otcReqs = append(f.otcReqs, req)
	return f.nextRef, nil
}

func (f *fakeDealer) CreateWorkingOrder(_ context.Context, req ig.WorkingOrderRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.placeErr != nil {
		return "", f.placeErr
	}
	f.workingReqs = append(f.workingReqs, req)
	return f.nextRef, nil
}

func (f *fakeDealer) UpdateWorkingOrder(_ context.Context, _ string, req ig.WorkingOrderUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, req)
	return nil
}

func (f *fakeDealer) DeleteWorkingOrder(_ context.Context, dealID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, dealID)
	return nil
}

func (f *fakeDealer) Confirms(context.Context, string) (*ig.DealConfirmation, error) {
	return nil, errors.New("not confirmed yet")
}

type fakeMarkets struct{}

func (fakeMarkets) MarketDetails(_ context.Context, _ string) (*ig.MarketDetails, error) {
	return &ig.MarketDetails{Instrument: ig.Instrument{
		OnePipMeans:  "0.0001 USD/EUR",
		ContractSize: "100000",
	}}, nil
}

type fakeQuotes struct {
	bid, ask float64
	ok       bool
}

func (f fakeQuotes) LastQuote(string) (float64, float64, bool) { return f.bid, f.ask, f.ok }

type captureSink struct {
	mu     sync.Mutex
	events []OrderEvent
}

func (s *captureSink) OnOrderEvent(e OrderEvent) {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
}

func (s *captureSink) all() []OrderEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]OrderEvent(nil), s.events...)
}

func newTestController(dealer Dealer, quotes QuoteSource, sink EventSink) *Controller {
	return NewController(Config{
		Dealer:       dealer,
		Gates:        broker.NewGates(40, 60),
		Convert:      convert.NewCache(fakeMarkets{}, broker.NewGate(60, time.Minute)),
		Mapper:       symbols.NewMapper(),
		Quotes:       quotes,
		Sink:         sink,
		Currency:     "USD",
		ConfirmDelay: time.Hour, // keep the confirm poller out of tests
	})
}

func eurusd() symbols.Symbol {
	return symbols.Symbol{Ticker: "EURUSD", Class: symbols.ClassForex}
}

func TestPlaceMarketOrderFillLifecycle(t *testing.T) {
	dealer := &fakeDealer{nextRef: "REF1"}
	sink := &captureSink{}
	c := newTestController(dealer, fakeQuotes{bid: 1.0848, ask: 1.0850, ok: true}, sink)

	ok := c.Place(context.Background(), Order{
		ID:        "ord-1",
		Symbol:    eurusd(),
		Direction: broker.DirectionBuy,
		Kind:      broker.KindMarket,
		Quantity:  100000,
	})
	if !ok {
		t.Fatal("place returned false")
	}
	if len(dealer.otcReqs) != 1 {
		t.Fatalf("otc requests=%d", len(dealer.otcReqs))
	}
	// 100000 platform units over a 100000 contract is one contract.
	if got := dealer.otcReqs[0].Size; got != 1 {
		t.Fatalf("deal size=%v", got)
	}

	// Broker confirms the fill in points.
	c.applyTradeUpdate(stream.TradeUpdate{
		DealID:        "DI1",
		DealReference: "REF1",
		Status:        "OPEN",
		Level:         10850,
		Size:          1,
	})

	evs := sink.all()
	if len(evs) != 2 {
		t.Fatalf("events=%d: %+v", len(evs), evs)
	}
	if evs[0].Status != StatusSubmitted {
		t.Fatalf("first event %+v", evs[0])
	}
	fill := evs[1]
	if fill.Status != StatusFilled {
		t.Fatalf("fill event %+v", fill)
	}
	if fill.FillPrice < 1.08499 || fill.FillPrice > 1.08501 {
		t.Fatalf("fill price=%v", fill.FillPrice)
	}
	if fill.FillQty != 100000 {
		t.Fatalf("fill qty=%v", fill.FillQty)
	}
	if fill.Fee != 0 {
		t.Fatalf("forex fee=%v, expected spread-priced zero", fill.Fee)
	}
}

func TestPlaceUnmappedSymbolNeverHitsBroker(t *testing.T) {
	dealer := &fakeDealer{nextRef: "REF1"}
	sink := &captureSink{}
	c := newTestController(dealer, fakeQuotes{}, sink)

	ok := c.Place(context.Background(), Order{
		ID:        "ord-2",
		Symbol:    symbols.Symbol{Ticker: "ZZZZ", Class: symbols.ClassShares},
		Direction: broker.DirectionBuy,
		Kind:      broker.KindMarket,
		Quantity:  10,
	})
	if ok {
		t.Fatal("expected place to fail")
	}
	if len(dealer.otcReqs)+len(dealer.workingReqs) != 0 {
		t.Fatal("broker was called for an unmapped symbol")
	}
	evs := sink.all()
	if len(evs) != 1 || evs[0].Status != StatusInvalid {
		t.Fatalf("events=%+v", evs)
	}
}

func TestMarketOrderProtectionDistances(t *testing.T) {
	t.Run("with quote", func(t *testing.T) {
		dealer := &fakeDealer{nextRef: "REF1"}
		c := newTestController(dealer, fakeQuotes{bid: 1.0848, ask: 1.0850, ok: true}, &captureSink{})

		c.Place(context.Background(), Order{
			ID:        "ord-3",
			Symbol:    eurusd(),
			Direction: broker.DirectionBuy,
			Kind:      broker.KindMarket,
			Quantity:  100000,
			Tag:       "SL:1.0800;TP:1.0950",
		})

		req := dealer.otcReqs[0]
		// Entry 1.0850, SL 1.0800: 0.0050 over a 0.0001 pip is 50 points.
		if req.StopDistance < 49.99 || req.StopDistance > 50.01 {
			t.Fatalf("stop distance=%v", req.StopDistance)
		}
		if req.LimitDistance < 99.99 || req.LimitDistance > 100.01 {
			t.Fatalf("limit distance=%v", req.LimitDistance)
		}
	})

	t.Run("without quote drops protection", func(t *testing.T) {
		dealer := &fakeDealer{nextRef: "REF1"}
		c := newTestController(dealer, fakeQuotes{ok: false}, &captureSink{})

		c.Place(context.Background(), Order{
			ID:        "ord-4",
			Symbol:    eurusd(),
			Direction: broker.DirectionBuy,
			Kind:      broker.KindMarket,
			Quantity:  100000,
			Tag:       "SL:1.0800;TP:1.0950",
		})

		req := dealer.otcReqs[0]
		if req.StopDistance != 0 || req.LimitDistance != 0 {
			t.Fatalf("protection should be dropped, got stop=%v limit=%v", req.StopDistance, req.LimitDistance)
		}
	})
}

func TestWorkingOrderLifecycle(t *testing.T) {
	dealer := &fakeDealer{nextRef: "REF9"}
	sink := &captureSink{}
	c := newTestController(dealer, fakeQuotes{}, sink)

	ok := c.Place(context.Background(), Order{
		ID:        "ord-5",
		Symbol:    eurusd(),
		Direction: broker.DirectionBuy,
		Kind:      broker.KindLimit,
		Quantity:  200000,
		Limit:     1.0800,
	})
	if !ok {
		t.Fatal("place failed")
	}
	req := dealer.workingReqs[0]
	if req.Type != "LIMIT" {
		t.Fatalf("type=%s", req.Type)
	}
	if req.Level < 10799.99 || req.Level > 10800.01 {
		t.Fatalf("level=%v", req.Level)
	}
	if req.Size != 2 {
		t.Fatalf("size=%v", req.Size)
	}

	// OPEN on a working order only acknowledges the resting state.
	c.applyTradeUpdate(stream.TradeUpdate{
		DealID:        "DI9",
		DealReference: "REF9",
		Status:        "OPEN",
	})
	if got := c.OpenOrders(); len(got) != 1 || got[0].Status != StatusSubmitted {
		t.Fatalf("open orders=%+v", got)
	}

	// Amend now that the deal ID is known.
	if !c.Update(context.Background(), Order{
		ID:       "ord-5",
		Symbol:   eurusd(),
		Kind:     broker.KindLimit,
		Quantity: 200000,
		Limit:    1.0820,
	}) {
		t.Fatal("update failed")
	}
	if len(dealer.updates) != 1 {
		t.Fatalf("updates=%d", len(dealer.updates))
	}

	// Cancel makes the order terminal on acceptance; the broker's own
	// deletion push arrives later as a duplicate.
	if !c.Cancel(context.Background(), "ord-5") {
		t.Fatal("cancel failed")
	}
	if len(dealer.deleted) != 1 || dealer.deleted[0] != "DI9" {
		t.Fatalf("deleted=%v", dealer.deleted)
	}
	c.applyTradeUpdate(stream.TradeUpdate{DealID: "DI9", Status: "DELETED"})

	evs := sink.all()
	last := evs[len(evs)-1]
	if last.Status != StatusCanceled {
		t.Fatalf("last event=%+v", last)
	}
	if len(c.OpenOrders()) != 0 {
		t.Fatal("canceled order still open")
	}
}

func TestCancelIsTerminalWithoutPushEvent(t *testing.T) {
	dealer := &fakeDealer{nextRef: "REF8"}
	sink := &captureSink{}
	c := newTestController(dealer, fakeQuotes{}, sink)

	c.Place(context.Background(), Order{
		ID: "ord-10", Symbol: eurusd(),
		Direction: broker.DirectionBuy, Kind: broker.KindLimit,
		Quantity: 100000, Limit: 1.0800,
	})
	c.applyTradeUpdate(stream.TradeUpdate{DealID: "DI8", DealReference: "REF8", Status: "OPEN"})

	// The push link may be down when the cancel is accepted; no DELETED
	// event ever arrives.
	if !c.Cancel(context.Background(), "ord-10") {
		t.Fatal("cancel failed")
	}

	evs := sink.all()
	if last := evs[len(evs)-1]; last.Status != StatusCanceled {
		t.Fatalf("last event=%+v", last)
	}
	if len(c.OpenOrders()) != 0 {
		t.Fatal("canceled order still open")
	}
	if n := c.deals.size(); n != 0 {
		t.Fatalf("deal map still holds %d keys", n)
	}
}

func TestTerminalOrdersLeaveTrackedSet(t *testing.T) {
	dealer := &fakeDealer{nextRef: "REF5"}
	c := newTestController(dealer, fakeQuotes{bid: 1.0848, ask: 1.0850, ok: true}, &captureSink{})

	c.Place(context.Background(), Order{
		ID: "ord-11", Symbol: eurusd(),
		Direction: broker.DirectionBuy, Kind: broker.KindMarket,
		Quantity: 100000,
	})
	c.applyTradeUpdate(stream.TradeUpdate{
		DealID: "DI5", DealReference: "REF5", Status: "OPEN", Level: 10850, Size: 1,
	})

	c.mu.Lock()
	n := len(c.tracked)
	c.mu.Unlock()
	if n != 0 {
		t.Fatalf("tracked set holds %d filled orders", n)
	}
}

func TestUpdateRefusedBeforeConfirmation(t *testing.T) {
	dealer := &fakeDealer{nextRef: "REF2"}
	c := newTestController(dealer, fakeQuotes{}, &captureSink{})

	c.Place(context.Background(), Order{
		ID: "ord-6", Symbol: eurusd(),
		Direction: broker.DirectionBuy, Kind: broker.KindLimit,
		Quantity: 100000, Limit: 1.0800,
	})

	// No deal ID yet, so an amend has nothing to address.
	if c.Update(context.Background(), Order{ID: "ord-6", Kind: broker.KindLimit, Limit: 1.0810}) {
		t.Fatal("update should be refused before confirmation")
	}
	if c.Cancel(context.Background(), "ord-6") {
		t.Fatal("cancel should be refused before confirmation")
	}
}

func TestTerminalOrdersIgnoreLateUpdates(t *testing.T) {
	dealer := &fakeDealer{nextRef: "REF3"}
	sink := &captureSink{}
	c := newTestController(dealer, fakeQuotes{bid: 1.0848, ask: 1.0850, ok: true}, sink)

	c.Place(context.Background(), Order{
		ID: "ord-7", Symbol: eurusd(),
		Direction: broker.DirectionBuy, Kind: broker.KindMarket,
		Quantity: 100000,
	})
	c.applyTradeUpdate(stream.TradeUpdate{
		DealID: "DI3", DealReference: "REF3", Status: "OPEN", Level: 10850, Size: 1,
	})

	before := len(sink.all())

	// The mapping is gone after the terminal fill; late or duplicate
	// updates must not produce further transitions.
	c.applyTradeUpdate(stream.TradeUpdate{DealID: "DI3", Status: "DELETED"})
	c.applyTradeUpdate(stream.TradeUpdate{DealReference: "REF3", Status: "OPEN", Level: 10851, Size: 1})

	if after := len(sink.all()); after != before {
		t.Fatalf("events grew from %d to %d after terminal state", before, after)
	}
	if n := c.deals.size(); n != 0 {
		t.Fatalf("deal map still holds %d keys", n)
	}
}

func TestPartialFillsAccumulate(t *testing.T) {
	dealer := &fakeDealer{nextRef: "REF4"}
	sink := &captureSink{}
	c := newTestController(dealer, fakeQuotes{}, sink)

	c.Place(context.Background(), Order{
		ID: "ord-8", Symbol: eurusd(),
		Direction: broker.DirectionSell, Kind: broker.KindLimit,
		Quantity: 200000, Limit: 1.0900,
	})
	c.applyTradeUpdate(stream.TradeUpdate{DealID: "DI4", DealReference: "REF4", Status: "OPEN"})

	c.applyTradeUpdate(stream.TradeUpdate{DealID: "DI4", Status: "PARTIALLY_FILLED", Level: 10900, Size: 1})
	c.applyTradeUpdate(stream.TradeUpdate{DealID: "DI4", Status: "FILLED", Level: 10900, Size: 1})

	evs := sink.all()
	var partial, filled *OrderEvent
	for i := range evs {
		switch evs[i].Status {
		case StatusPartiallyFilled:
			partial = &evs[i]
		case StatusFilled:
			filled = &evs[i]
		}
	}
	if partial == nil || filled == nil {
		t.Fatalf("events=%+v", evs)
	}
	if partial.FillQty != 100000 || filled.FillQty != 100000 {
		t.Fatalf("partial qty=%v filled qty=%v", partial.FillQty, filled.FillQty)
	}
}

func TestBrokerErrorYieldsInvalid(t *testing.T) {
	dealer := &fakeDealer{placeErr: errors.New("MARKET_CLOSED")}
	sink := &captureSink{}
	c := newTestController(dealer, fakeQuotes{}, sink)

	if c.Place(context.Background(), Order{
		ID: "ord-9", Symbol: eurusd(),
		Direction: broker.DirectionBuy, Kind: broker.KindMarket, Quantity: 1000,
	}) {
		t.Fatal("place should fail")
	}
	evs := sink.all()
	if len(evs) != 1 || evs[0].Status != StatusInvalid || evs[0].Reason == "" {
		t.Fatalf("events=%+v", evs)
	}
}
