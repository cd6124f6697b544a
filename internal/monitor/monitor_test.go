package monitor

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"ig-gateway/internal/events"
	"ig-gateway/internal/orders"
)

type captureSink struct {
	mu   sync.Mutex
	msgs []string
}

func (s *captureSink) Send(message string) error {
	s.mu.Lock()
	s.msgs = append(s.msgs, message)
	s.mu.Unlock()
	return nil
}

func (s *captureSink) waitFor(t *testing.T, substr string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		for _, m := range s.msgs {
			if strings.Contains(m, substr) {
				s.mu.Unlock()
				return
			}
		}
		s.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no alert containing %q", substr)
}

func TestMonitorAlertsOnConnectionLoss(t *testing.T) {
	bus := events.NewBus()
	sink := &captureSink{}
	metrics := NewMetrics()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	(&Monitor{Bus: bus, Sink: sink, Metrics: metrics}).Start(ctx)

	time.Sleep(10 * time.Millisecond) // let the subscriber attach
	bus.Publish(events.EventConnectionLost, nil)

	sink.waitFor(t, "push link lost")
	if metrics.Snapshot().Reconnects != 1 {
		t.Fatalf("reconnects=%d", metrics.Snapshot().Reconnects)
	}
}

func TestMonitorAlertsOnRejectedOrder(t *testing.T) {
	bus := events.NewBus()
	sink := &captureSink{}
	metrics := NewMetrics()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	(&Monitor{Bus: bus, Sink: sink, Metrics: metrics}).Start(ctx)

	time.Sleep(10 * time.Millisecond)
	bus.Publish(events.EventOrderUpdate, orders.OrderEvent{
		OrderID: "ord-1",
		Status:  orders.StatusInvalid,
		Reason:  "INSUFFICIENT_FUNDS",
	})

	sink.waitFor(t, "INSUFFICIENT_FUNDS")
	snap := metrics.Snapshot()
	if snap.OrderEvents != 1 || snap.Rejections != 1 {
		t.Fatalf("snapshot=%+v", snap)
	}
}

func TestMonitorIgnoresHealthyOrderEvents(t *testing.T) {
	bus := events.NewBus()
	sink := &captureSink{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	(&Monitor{Bus: bus, Sink: sink}).Start(ctx)

	time.Sleep(10 * time.Millisecond)
	bus.Publish(events.EventOrderUpdate, orders.OrderEvent{
		OrderID: "ord-2",
		Status:  orders.StatusFilled,
	})
	time.Sleep(50 * time.Millisecond)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.msgs) != 0 {
		t.Fatalf("unexpected alerts: %v", sink.msgs)
	}
}

func TestMonitorCountsQuoteTicks(t *testing.T) {
	bus := events.NewBus()
	sink := &captureSink{}
	metrics := NewMetrics()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	(&Monitor{Bus: bus, Sink: sink, Metrics: metrics}).Start(ctx)

	time.Sleep(10 * time.Millisecond)
	bus.Publish(events.EventQuoteTick, events.QuoteTick{Symbol: "EURUSD", Bid: 1.0848, Ask: 1.0850})
	bus.Publish(events.EventQuoteTick, events.QuoteTick{Symbol: "EURUSD", Bid: 1.0849, Ask: 1.0851})

	deadline := time.Now().Add(2 * time.Second)
	for metrics.Snapshot().Ticks != 2 {
		if time.Now().After(deadline) {
			t.Fatalf("ticks=%d", metrics.Snapshot().Ticks)
		}
		time.Sleep(5 * time.Millisecond)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.msgs) != 0 {
		t.Fatalf("ticks should not alert: %v", sink.msgs)
	}
}

func TestLatencyHistogramStats(t *testing.T) {
	h := NewLatencyHistogram(10)
	for _, v := range []float64{5, 1, 9, 3, 7} {
		h.Record(v)
	}

	stats := h.Stats()
	if stats.Count != 5 || stats.Min != 1 || stats.Max != 9 {
		t.Fatalf("stats=%+v", stats)
	}
	if stats.Mean != 5 {
		t.Fatalf("mean=%v", stats.Mean)
	}
	if stats.P50 != 5 {
		t.Fatalf("p50=%v", stats.P50)
	}

	// Window slides once full.
	for i := 0; i < 10; i++ {
		h.Record(100)
	}
	stats = h.Stats()
	if stats.Count != 10 || stats.Min != 100 {
		t.Fatalf("stats after slide=%+v", stats)
	}
}
