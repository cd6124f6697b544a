// Package balance tracks account funds and open positions.
package balance

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"ig-gateway/internal/convert"
	"ig-gateway/internal/events"
	"ig-gateway/internal/symbols"
	"ig-gateway/pkg/broker"
	"ig-gateway/pkg/ig"
	"ig-gateway/pkg/stream"
)

// AccountClient is the slice of the REST client the manager needs.
type AccountClient interface {
	Accounts(ctx context.Context) ([]ig.Account, error)
	Positions(ctx context.Context) ([]ig.OpenPosition, error)
}

// Balance represents account funds.
type Balance struct {
	Total      float64
	Available  float64
	ProfitLoss float64
	Currency   string
}

// Holding is one open position in platform units.
type Holding struct {
	Symbol   symbols.Symbol
	Quantity float64 // signed: negative for short
	AvgPrice float64
	Currency string
}

// Manager caches balance and positions, refreshed periodically over REST
// and nudged by pushed account updates between syncs.
type Manager struct {
	client       AccountClient
	gate         *broker.Gate
	mapper       *symbols.Mapper
	conv         *convert.Cache
	bus          *events.Bus
	accountID    string
	syncInterval time.Duration

	mu       sync.RWMutex
	balance  Balance
	lastSync time.Time
}

// NewManager creates a balance manager.
func NewManager(client AccountClient, gate *broker.Gate, mapper *symbols.Mapper, conv *convert.Cache, bus *events.Bus, accountID string, syncInterval time.Duration) *Manager {
	if syncInterval <= 0 {
		syncInterval = time.Minute
	}
	return &Manager{
		client:       client,
		gate:         gate,
		mapper:       mapper,
		conv:         conv,
		bus:          bus,
		accountID:    accountID,
		syncInterval: syncInterval,
	}
}

// Start begins periodic balance sync until the context ends.
func (m *Manager) Start(ctx context.Context) {
	if err := m.Sync(ctx); err != nil {
		log.Printf("balance: initial sync failed: %v", err)
	}

	ticker := time.NewTicker(m.syncInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := m.Sync(ctx); err != nil {
					log.Printf("balance: sync failed: %v", err)
				}
			}
		}
	}()
}

// Sync refreshes the cached balance from the accounts endpoint.
func (m *Manager) Sync(ctx context.Context) error {
	if err := m.gate.Wait(ctx); err != nil {
		return err
	}
	accounts, err := m.client.Accounts(ctx)
	if err != nil {
		return fmt.Errorf("balance: fetch accounts: %w", err)
	}

	for _, a := range accounts {
		if a.AccountID != m.accountID {
			continue
		}
		m.mu.Lock()
		m.balance = Balance{
			Total:      a.Balance.Balance,
			Available:  a.Balance.Available,
			ProfitLoss: a.Balance.ProfitLoss,
			Currency:   a.Currency,
		}
		m.lastSync = time.Now()
		m.mu.Unlock()
		m.publish()
		return nil
	}
	return fmt.Errorf("balance: account %s not in response", m.accountID)
}

// ApplyPushUpdate folds a pushed account update into the cache.
func (m *Manager) ApplyPushUpdate(u stream.AccountUpdate) {
	m.mu.Lock()
	m.balance.Total = u.Balance
	m.balance.Available = u.Available
	m.balance.ProfitLoss = u.ProfitLoss
	m.lastSync = time.Now()
	m.mu.Unlock()
	m.publish()
}

// Cash returns the cached balance and when it was last refreshed.
func (m *Manager) Cash() (Balance, time.Time) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balance, m.lastSync
}

// Holdings fetches open positions and converts them to platform units.
func (m *Manager) Holdings(ctx context.Context) ([]Holding, error) {
	if err := m.gate.Wait(ctx); err != nil {
		return nil, err
	}
	positions, err := m.client.Positions(ctx)
	if err != nil {
		return nil, fmt.Errorf("balance: fetch positions: %w", err)
	}

	holdings := make([]Holding, 0, len(positions))
	for _, p := range positions {
		sym := m.mapper.ToSymbol(p.Market.Epic, symbols.AssetClass(p.Market.InstrumentType))
		conv := m.conv.For(ctx, p.Market.Epic)

		qty := conv.SizeFromBroker(p.Position.Size)
		if p.Position.Direction == string(broker.DirectionSell) {
			qty = -qty
		}
		holdings = append(holdings, Holding{
			Symbol:   sym,
			Quantity: qty,
			AvgPrice: conv.PriceFromBroker(p.Position.Level),
			Currency: p.Position.Currency,
		})
	}
	return holdings, nil
}

func (m *Manager) publish() {
	if m.bus == nil {
		return
	}
	m.mu.RLock()
	b := m.balance
	m.mu.RUnlock()
	m.bus.Publish(events.EventAccountUpdate, events.AccountSnapshot{
		Balance:    b.Total,
		Available:  b.Available,
		ProfitLoss: b.ProfitLoss,
	})
}
