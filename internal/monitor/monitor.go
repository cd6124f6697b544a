// Package monitor watches gateway events and raises operator alerts.
package monitor

import (
	"context"
	"fmt"
	"log"
	"time"

	"ig-gateway/internal/events"
	"ig-gateway/internal/orders"
)

// Monitor turns connection trouble and order rejections into alerts.
type Monitor struct {
	Bus     *events.Bus
	Sink    AlertSink
	Metrics *Metrics
}

// Start subscribes to the event bus and runs until the context ends.
func (m *Monitor) Start(ctx context.Context) {
	if m.Bus == nil || m.Sink == nil {
		log.Println("monitor not fully configured; skipping")
		return
	}

	lost, unsubLost := m.Bus.Subscribe(events.EventConnectionLost, 16)
	failed, unsubFailed := m.Bus.Subscribe(events.EventReconnectFailed, 16)
	restored, unsubRestored := m.Bus.Subscribe(events.EventReconnected, 16)
	updates, unsubUpdates := m.Bus.Subscribe(events.EventOrderUpdate, 64)
	ticks, unsubTicks := m.Bus.Subscribe(events.EventQuoteTick, 256)

	go func() {
		defer unsubLost()
		defer unsubFailed()
		defer unsubRestored()
		defer unsubUpdates()
		defer unsubTicks()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticks:
				if m.Metrics != nil {
					m.Metrics.TickObserved()
				}
			case <-lost:
				m.countReconnect()
				m.send("push link lost, reconnecting")
			case payload := <-failed:
				m.send(fmt.Sprintf("reconnect attempt failed: %v", payload))
			case payload := <-restored:
				m.send(fmt.Sprintf("link reestablished after %v attempt(s)", payload))
			case payload := <-updates:
				ev, ok := payload.(orders.OrderEvent)
				if !ok {
					continue
				}
				m.countOrder(ev)
				if ev.Status == orders.StatusInvalid {
					m.send(fmt.Sprintf("order %s rejected: %s", ev.OrderID, ev.Reason))
				}
			}
		}
	}()
}

func (m *Monitor) send(msg string) {
	stamped := "[" + time.Now().Format(time.RFC3339) + "] " + msg
	if err := m.Sink.Send(stamped); err != nil {
		log.Printf("monitor: alert delivery failed: %v", err)
	}
}

func (m *Monitor) countReconnect() {
	if m.Metrics != nil {
		m.Metrics.ReconnectObserved()
	}
}

func (m *Monitor) countOrder(ev orders.OrderEvent) {
	if m.Metrics == nil {
		return
	}
	m.Metrics.OrderEventObserved()
	if ev.Status == orders.StatusInvalid {
		m.Metrics.RejectionObserved()
	}
}
