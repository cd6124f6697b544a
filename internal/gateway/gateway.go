// Package gateway is the host-facing facade. It wires the REST client,
// the push stream and the domain services into one Gateway value the
// host platform drives.
package gateway

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"ig-gateway/internal/balance"
	"ig-gateway/internal/connection"
	"ig-gateway/internal/convert"
	"ig-gateway/internal/events"
	"ig-gateway/internal/history"
	"ig-gateway/internal/orders"
	"ig-gateway/internal/reconciliation"
	"ig-gateway/internal/subs"
	"ig-gateway/internal/symbols"
	"ig-gateway/pkg/broker"
	"ig-gateway/pkg/config"
	"ig-gateway/pkg/ig"
	"ig-gateway/pkg/stream"
)

const (
	defaultDemoStream = "wss://demo-stream.ig.com/push"
	defaultLiveStream = "wss://stream.ig.com/push"
)

// Gateway exposes the broker adapter surface to the host platform.
type Gateway struct {
	cfg *config.Config

	rest    *ig.Client
	push    *stream.Client
	conn    *connection.Manager
	orders  *orders.Controller
	subs    *subs.Manager
	history *history.Service
	balance *balance.Manager
	recon   *reconciliation.Service
	mapper  *symbols.Mapper
	conv    *convert.Cache
	gates   *broker.Gates
	bus     *events.Bus

	mu      sync.Mutex
	cancel  context.CancelFunc
	started bool
}

// New assembles a gateway from configuration. The journal and sink may
// be nil; everything else is wired internally.
func New(cfg *config.Config, journal orders.Journal, sink orders.EventSink, bus *events.Bus) *Gateway {
	if bus == nil {
		bus = events.NewBus()
	}

	rest := ig.New(ig.Config{
		APIKey:     cfg.APIKey,
		Identifier: cfg.Identifier,
		Password:   cfg.Password,
		AccountID:  cfg.AccountID,
		Demo:       cfg.Demo,
	})

	endpoint := cfg.StreamEndpoint
	if endpoint == "" {
		endpoint = defaultLiveStream
		if cfg.Demo {
			endpoint = defaultDemoStream
		}
	}
	push := stream.NewClient(stream.Config{
		Endpoint:  endpoint,
		AccountID: cfg.AccountID,
	})

	gates := broker.NewGates(cfg.TradingRatePerMinute, cfg.NonTradingRatePerMinute)
	mapper := symbols.NewMapper()
	if cfg.SymbolMapPath != "" {
		if err := mapper.LoadFile(cfg.SymbolMapPath); err != nil {
			log.Printf("gateway: symbol map %s not loaded: %v", cfg.SymbolMapPath, err)
		}
	}
	conv := convert.NewCache(rest, gates.NonTrading)

	subsMgr := subs.NewManager(push, mapper, conv, bus)
	controller := orders.NewController(orders.Config{
		Dealer:       rest,
		Gates:        gates,
		Convert:      conv,
		Mapper:       mapper,
		Quotes:       subsMgr,
		Sink:         sink,
		Journal:      journal,
		Bus:          bus,
		Currency:     "USD",
		ConfirmDelay: cfg.ConfirmDelay,
	})
	balanceMgr := balance.NewManager(rest, gates.NonTrading, mapper, conv, bus, cfg.AccountID, time.Minute)

	conn := connection.NewManager(connection.Config{
		Auth:            rest,
		Link:            push,
		Bus:             bus,
		AccountID:       cfg.AccountID,
		MonitorInterval: cfg.MonitorInterval,
		BackoffBase:     cfg.ReconnectBase,
		BackoffMax:      cfg.ReconnectMax,
		ReplayMarkets: func(link connection.PushLink) error {
			return subsMgr.Resubscribe(link)
		},
	})

	return &Gateway{
		cfg:     cfg,
		rest:    rest,
		push:    push,
		conn:    conn,
		orders:  controller,
		subs:    subsMgr,
		history: history.NewService(rest, mapper, conv, gates.NonTrading),
		balance: balanceMgr,
		recon:   reconciliation.NewService(rest, controller, gates.NonTrading, bus, 5*time.Minute),
		mapper:  mapper,
		conv:    conv,
		gates:   gates,
		bus:     bus,
	}
}

// Bus exposes the internal event bus for additional consumers.
func (g *Gateway) Bus() *events.Bus { return g.bus }

// SetRestLatencyObserver forwards dealing API round-trip times, for
// the ops metrics.
func (g *Gateway) SetRestLatencyObserver(f func(time.Duration)) {
	g.rest.SetLatencyObserver(f)
}

// State reports the link state.
func (g *Gateway) State() connection.State { return g.conn.State() }

// Connected reports whether both channels of the link are usable.
func (g *Gateway) Connected() bool { return g.conn.State() == connection.StateConnected }

// Connect brings the link up and starts the event pumps. Idempotent.
func (g *Gateway) Connect(ctx context.Context) error {
	if err := g.conn.Connect(ctx); err != nil {
		return fmt.Errorf("gateway: connect: %w", err)
	}
	if s := g.conn.Session(); s != nil {
		g.orders.SetCurrency(s.Currency)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.started {
		return nil
	}
	pumpCtx, cancel := context.WithCancel(context.Background())
	g.cancel = cancel
	g.started = true

	g.orders.Start(pumpCtx)
	g.balance.Start(pumpCtx)
	g.recon.Start(pumpCtx)
	go g.pumpPrices(pumpCtx)
	go g.pumpTrades(pumpCtx)
	go g.pumpAccounts(pumpCtx)
	return nil
}

// Disconnect tears the link down and stops the pumps. Idempotent.
func (g *Gateway) Disconnect() {
	g.mu.Lock()
	cancel := g.cancel
	g.cancel = nil
	g.started = false
	g.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	g.conn.Disconnect()
}

// pumpPrices routes market ticks into the subscription manager. The
// stream channels survive reconnects, so one pump lives for the whole
// gateway lifetime.
func (g *Gateway) pumpPrices(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-g.push.Prices():
			g.subs.HandlePrice(ctx, u)
		}
	}
}

func (g *Gateway) pumpTrades(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-g.push.Trades():
			g.orders.HandleTradeUpdate(ctx, u)
		}
	}
}

func (g *Gateway) pumpAccounts(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-g.push.Accounts():
			g.balance.ApplyPushUpdate(u)
		}
	}
}

// PlaceOrder routes an order to the broker.
func (g *Gateway) PlaceOrder(ctx context.Context, o orders.Order) bool {
	return g.orders.Place(ctx, o)
}

// UpdateOrder amends a resting order.
func (g *Gateway) UpdateOrder(ctx context.Context, o orders.Order) bool {
	return g.orders.Update(ctx, o)
}

// CancelOrder deletes a resting order.
func (g *Gateway) CancelOrder(ctx context.Context, orderID string) bool {
	return g.orders.Cancel(ctx, orderID)
}

// OpenOrders lists non-terminal orders known to the gateway.
func (g *Gateway) OpenOrders() []orders.Order {
	return g.orders.OpenOrders()
}

// Holdings lists open positions in platform units.
func (g *Gateway) Holdings(ctx context.Context) ([]balance.Holding, error) {
	return g.balance.Holdings(ctx)
}

// CashBalance returns the cached account balance.
func (g *Gateway) CashBalance() (balance.Balance, time.Time) {
	return g.balance.Cash()
}

// History returns converted candles for a symbol.
func (g *Gateway) History(ctx context.Context, sym symbols.Symbol, res history.Resolution, from, to time.Time) ([]history.Bar, error) {
	return g.history.Bars(ctx, sym, res, from, to)
}

// Subscribe starts market data for a symbol.
func (g *Gateway) Subscribe(sym symbols.Symbol) error {
	return g.subs.Subscribe(sym)
}

// Unsubscribe stops market data for a symbol.
func (g *Gateway) Unsubscribe(sym symbols.Symbol) error {
	return g.subs.Unsubscribe(sym)
}

// LookupSymbols searches the instrument catalogue.
func (g *Gateway) LookupSymbols(ctx context.Context, term string) ([]ig.MarketSummary, error) {
	if err := g.gates.NonTrading.Wait(ctx); err != nil {
		return nil, err
	}
	return g.rest.SearchMarkets(ctx, term)
}

// AddMapping registers an explicit ticker/epic pair at runtime.
func (g *Gateway) AddMapping(ticker, epic string, class symbols.AssetClass) {
	g.mapper.AddMapping(ticker, epic, class)
}
