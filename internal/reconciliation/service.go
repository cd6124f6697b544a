// Package reconciliation audits local order state against the broker.
//
// While the push link is down the broker can fill or delete resting
// orders without us seeing the trade events. After every reconnect, and
// periodically in between, the service compares the deals we track with
// the broker's working order list and flags the differences.
package reconciliation

import (
	"context"
	"log"
	"sync"
	"time"

	"ig-gateway/internal/events"
	"ig-gateway/pkg/broker"
	"ig-gateway/pkg/ig"
)

// BrokerClient is the slice of the REST client the service needs.
type BrokerClient interface {
	WorkingOrders(ctx context.Context) ([]ig.WorkingOrder, error)
}

// LocalOrders exposes the deals the order lane believes are resting.
type LocalOrders interface {
	OpenDeals() map[string]string // dealID -> orderID
}

// Report contains one reconciliation pass's findings.
type Report struct {
	Timestamp time.Time
	// Stale local orders: tracked here, unknown to the broker. Usually
	// filled or deleted while the link was down.
	Stale []StaleOrder
	// Orphan broker deals: resting at the broker, unknown here. Usually
	// placed outside the gateway.
	Orphans  []string
	HasDiffs bool
}

// StaleOrder is a local order the broker no longer knows.
type StaleOrder struct {
	OrderID string
	DealID  string
}

// Service runs reconciliation passes.
type Service struct {
	client   BrokerClient
	local    LocalOrders
	gate     *broker.Gate
	bus      *events.Bus
	interval time.Duration
	mu       sync.Mutex
}

// NewService creates a reconciliation service.
func NewService(client BrokerClient, local LocalOrders, gate *broker.Gate, bus *events.Bus, interval time.Duration) *Service {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Service{
		client:   client,
		local:    local,
		gate:     gate,
		bus:      bus,
		interval: interval,
	}
}

// Start runs periodic passes and an extra pass after every reconnect.
func (s *Service) Start(ctx context.Context) {
	var reconnects <-chan any
	cleanup := func() {}
	if s.bus != nil {
		reconnects, cleanup = s.bus.Subscribe(events.EventReconnected, 8)
	}

	ticker := time.NewTicker(s.interval)
	go func() {
		defer ticker.Stop()
		defer cleanup()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			case <-reconnects:
			}
			report, err := s.Reconcile(ctx)
			if err != nil {
				log.Printf("reconciliation: pass failed: %v", err)
				continue
			}
			s.handleReport(report)
		}
	}()

	log.Printf("reconciliation service started (interval: %v)", s.interval)
}

// Reconcile performs one comparison pass.
func (s *Service) Reconcile(ctx context.Context) (*Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.gate.Wait(ctx); err != nil {
		return nil, err
	}
	working, err := s.client.WorkingOrders(ctx)
	if err != nil {
		return nil, err
	}

	brokerDeals := make(map[string]bool, len(working))
	for _, w := range working {
		brokerDeals[w.DealID] = true
	}
	localDeals := s.local.OpenDeals()

	report := &Report{Timestamp: time.Now()}
	for dealID, orderID := range localDeals {
		if !brokerDeals[dealID] {
			report.Stale = append(report.Stale, StaleOrder{OrderID: orderID, DealID: dealID})
		}
	}
	for dealID := range brokerDeals {
		if _, known := localDeals[dealID]; !known {
			report.Orphans = append(report.Orphans, dealID)
		}
	}
	report.HasDiffs = len(report.Stale) > 0 || len(report.Orphans) > 0
	return report, nil
}

func (s *Service) handleReport(report *Report) {
	if !report.HasDiffs {
		return
	}
	for _, stale := range report.Stale {
		log.Printf("reconciliation: order %s (deal %s) missing at broker, state may lag",
			stale.OrderID, stale.DealID)
	}
	for _, orphan := range report.Orphans {
		log.Printf("reconciliation: broker deal %s not tracked locally", orphan)
	}
	if s.bus != nil {
		s.bus.Publish(events.EventAlert, report)
	}
}
