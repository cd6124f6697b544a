package orders

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"ig-gateway/internal/convert"
	"ig-gateway/internal/events"
	"ig-gateway/internal/symbols"
	"ig-gateway/pkg/broker"
	"ig-gateway/pkg/db"
	"ig-gateway/pkg/ig"
	"ig-gateway/pkg/stream"
)

// Dealer is the slice of the REST client the controller drives.
type Dealer interface {
	PlaceOTCOrder(ctx context.Context, req ig.OTCOrderRequest) (string, error)
	CreateWorkingOrder(ctx context.Context, req ig.WorkingOrderRequest) (string, error)
	UpdateWorkingOrder(ctx context.Context, dealID string, req ig.WorkingOrderUpdate) error
	DeleteWorkingOrder(ctx context.Context, dealID string) error
	Confirms(ctx context.Context, dealReference string) (*ig.DealConfirmation, error)
}

// QuoteSource supplies the latest quote for a platform ticker. Market
// orders need a reference price to turn SL/TP prices into distances.
type QuoteSource interface {
	LastQuote(ticker string) (bid, ask float64, ok bool)
}

// Journal persists order lifecycle rows. May be nil to disable.
type Journal interface {
	CreateOrder(ctx context.Context, o db.Order) error
	UpdateOrderStatus(ctx context.Context, orderID, status, dealID, reason string) error
	CreateFill(ctx context.Context, f db.Fill) error
}

// Config wires a Controller.
type Config struct {
	Dealer       Dealer
	Gates        *broker.Gates
	Convert      *convert.Cache
	Mapper       *symbols.Mapper
	Quotes       QuoteSource
	Sink         EventSink
	Journal      Journal
	Bus          *events.Bus
	Currency     string
	Expiry       string // "-" for CFD, "DFB" for spread bets
	ConfirmDelay time.Duration
	QueueSize    int
}

// tracked is the controller's private view of one in-flight order.
type tracked struct {
	order     Order
	epic      string
	dealRef   string
	dealID    string
	filledQty float64 // platform units
}

// Controller routes platform orders to the dealing API and applies the
// broker's responses. All state transitions, whether triggered by a
// local call or a pushed trade update, run under one mutex so events
// reach the sink serialized and in order.
type Controller struct {
	mu      sync.Mutex
	cfg     Config
	tracked map[string]*tracked
	deals   *dealMap
	queue   *tradeQueue
}

// NewController builds an idle controller. Call Start to begin draining
// pushed trade updates.
func NewController(cfg Config) *Controller {
	if cfg.Expiry == "" {
		cfg.Expiry = "-"
	}
	if cfg.ConfirmDelay <= 0 {
		cfg.ConfirmDelay = 1500 * time.Millisecond
	}
	return &Controller{
		cfg:     cfg,
		tracked: make(map[string]*tracked),
		deals:   newDealMap(),
		queue:   newTradeQueue(cfg.QueueSize),
	}
}

// Start launches the trade update drain goroutine.
func (c *Controller) Start(ctx context.Context) {
	go c.queue.drain(ctx, c.applyTradeUpdate)
}

// SetCurrency installs the account currency once the session is known.
func (c *Controller) SetCurrency(ccy string) {
	if ccy == "" {
		return
	}
	c.mu.Lock()
	c.cfg.Currency = ccy
	c.mu.Unlock()
}

func (c *Controller) currency() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.Currency
}

// HandleTradeUpdate enqueues a pushed trade update for serialized
// processing. Blocks if the queue is full rather than dropping.
func (c *Controller) HandleTradeUpdate(ctx context.Context, u stream.TradeUpdate) {
	c.queue.push(ctx, u)
}

// Place submits an order. Market orders go to the OTC endpoint, resting
// orders become working orders. Returns false when the order could not
// be submitted; an Invalid event explains why.
func (c *Controller) Place(ctx context.Context, o Order) bool {
	epic := c.cfg.Mapper.ToEpic(o.Symbol)
	if epic == "" {
		c.rejectLocal(o, "no instrument mapping for "+o.Symbol.Ticker)
		return false
	}

	if err := c.cfg.Gates.Trading.Wait(ctx); err != nil {
		c.rejectLocal(o, "rate gate: "+err.Error())
		return false
	}
	conv := c.cfg.Convert.For(ctx, epic)

	var (
		ref string
		err error
	)
	switch o.Kind {
	case broker.KindMarket:
		ref, err = c.placeMarket(ctx, o, epic, conv)
	case broker.KindLimit, broker.KindStop, broker.KindStopLimit:
		ref, err = c.placeWorking(ctx, o, epic, conv)
	default:
		c.rejectLocal(o, fmt.Sprintf("unsupported order kind %s", o.Kind))
		return false
	}
	if err != nil {
		c.rejectLocal(o, err.Error())
		return false
	}

	c.mu.Lock()
	o.Status = StatusSubmitted
	c.tracked[o.ID] = &tracked{order: o, epic: epic, dealRef: ref}
	c.deals.putRef(ref, o.ID)
	c.journalCreate(ctx, o, epic)
	c.emitLocked(OrderEvent{
		OrderID:    o.ID,
		Symbol:     o.Symbol,
		Status:     StatusSubmitted,
		OccurredAt: time.Now().UTC(),
	})
	c.mu.Unlock()

	go c.awaitConfirm(ref)
	return true
}

func (c *Controller) placeMarket(ctx context.Context, o Order, epic string, conv convert.Conversion) (string, error) {
	req := ig.OTCOrderRequest{
		Epic:         epic,
		Expiry:       c.cfg.Expiry,
		Direction:    o.Direction,
		Size:         conv.SizeToBroker(o.Quantity),
		OrderType:    "MARKET",
		ForceOpen:    true,
		CurrencyCode: c.currency(),
	}

	// SL/TP on a market order needs a reference price to become a
	// distance. Without a live quote the protection is dropped.
	if prot := ParseProtectionTag(o.Tag); prot.HasStop || prot.HasLimit {
		if entry, ok := c.marketEntry(o); ok {
			stopDist, limitDist := prot.Distances(entry)
			req.StopDistance = conv.PriceToBroker(stopDist)
			req.LimitDistance = conv.PriceToBroker(limitDist)
		} else {
			log.Printf("orders: no quote for %s, dropping SL/TP on market order %s", o.Symbol.Ticker, o.ID)
		}
	}

	return c.cfg.Dealer.PlaceOTCOrder(ctx, req)
}

// marketEntry picks the side of the spread a market order would cross.
func (c *Controller) marketEntry(o Order) (float64, bool) {
	if c.cfg.Quotes == nil {
		return 0, false
	}
	bid, ask, ok := c.cfg.Quotes.LastQuote(o.Symbol.Ticker)
	if !ok {
		return 0, false
	}
	if o.Direction == broker.DirectionBuy {
		return ask, true
	}
	return bid, true
}

func (c *Controller) placeWorking(ctx context.Context, o Order, epic string, conv convert.Conversion) (string, error) {
	level, woType := workingOrderLeg(o)
	req := ig.WorkingOrderRequest{
		Epic:         epic,
		Expiry:       c.cfg.Expiry,
		Direction:    o.Direction,
		Size:         conv.SizeToBroker(o.Quantity),
		Level:        conv.PriceToBroker(level),
		Type:         woType,
		TimeInForce:  "GOOD_TILL_CANCELLED",
		CurrencyCode: c.currency(),
	}

	if prot := ParseProtectionTag(o.Tag); prot.HasStop || prot.HasLimit {
		stopDist, limitDist := prot.Distances(level)
		req.StopDistance = conv.PriceToBroker(stopDist)
		req.LimitDistance = conv.PriceToBroker(limitDist)
	}

	return c.cfg.Dealer.CreateWorkingOrder(ctx, req)
}

// workingOrderLeg picks the broker order type and trigger level. The
// broker has no stop-limit type, so a stop-limit rests as a stop at its
// stop level.
func workingOrderLeg(o Order) (level float64, woType string) {
	switch o.Kind {
	case broker.KindLimit:
		return o.Limit, "LIMIT"
	case broker.KindStop, broker.KindStopLimit:
		return o.Stop, "STOP"
	default:
		return o.Limit, "LIMIT"
	}
}

// Update amends a resting order's trigger level and quantity. Fails when
// the order is unknown, terminal, or has no confirmed deal ID yet.
func (c *Controller) Update(ctx context.Context, o Order) bool {
	c.mu.Lock()
	t, ok := c.tracked[o.ID]
	if !ok || t.order.Status.Terminal() || t.dealID == "" {
		c.mu.Unlock()
		log.Printf("orders: update refused for %s (known=%v)", o.ID, ok)
		return false
	}
	epic := t.epic
	dealID := t.dealID
	c.mu.Unlock()

	if err := c.cfg.Gates.Trading.Wait(ctx); err != nil {
		return false
	}
	conv := c.cfg.Convert.For(ctx, epic)

	level, woType := workingOrderLeg(o)
	req := ig.WorkingOrderUpdate{
		Level:       conv.PriceToBroker(level),
		Type:        woType,
		TimeInForce: "GOOD_TILL_CANCELLED",
	}
	if prot := ParseProtectionTag(o.Tag); prot.HasStop || prot.HasLimit {
		stopDist, limitDist := prot.Distances(level)
		req.StopDistance = conv.PriceToBroker(stopDist)
		req.LimitDistance = conv.PriceToBroker(limitDist)
	}

	if err := c.cfg.Dealer.UpdateWorkingOrder(ctx, dealID, req); err != nil {
		log.Printf("orders: update %s failed: %v", o.ID, err)
		return false
	}

	c.mu.Lock()
	t.order.Limit = o.Limit
	t.order.Stop = o.Stop
	t.order.Quantity = o.Quantity
	t.order.Tag = o.Tag
	c.transitionLocked(ctx, t, StatusUpdateSubmitted, OrderEvent{})
	c.mu.Unlock()
	return true
}

// Cancel deletes a resting order at the broker. The accepted deletion
// is applied locally right away; the push link may be down, and a
// duplicate DELETED event later is ignored by the terminal guard.
func (c *Controller) Cancel(ctx context.Context, orderID string) bool {
	c.mu.Lock()
	t, ok := c.tracked[orderID]
	if !ok || t.order.Status.Terminal() || t.dealID == "" {
		c.mu.Unlock()
		return false
	}
	dealID := t.dealID
	c.mu.Unlock()

	if err := c.cfg.Gates.Trading.Wait(ctx); err != nil {
		return false
	}
	if err := c.cfg.Dealer.DeleteWorkingOrder(ctx, dealID); err != nil {
		log.Printf("orders: cancel %s failed: %v", orderID, err)
		return false
	}

	c.applyTradeUpdate(stream.TradeUpdate{DealID: dealID, Status: "DELETED"})
	return true
}

// OpenOrders snapshots all non-terminal orders.
func (c *Controller) OpenOrders() []Order {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Order
	for _, t := range c.tracked {
		if !t.order.Status.Terminal() {
			out = append(out, t.order)
		}
	}
	return out
}

// OpenDeals returns dealID -> orderID for confirmed, non-terminal
// orders. Reconciliation compares this against the broker's view.
func (c *Controller) OpenDeals() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string)
	for id, t := range c.tracked {
		if t.dealID != "" && !t.order.Status.Terminal() {
			out[t.dealID] = id
		}
	}
	return out
}

// awaitConfirm polls the confirms endpoint after the broker has had time
// to process the deal, then feeds the result through the same serialized
// lane as pushed updates.
func (c *Controller) awaitConfirm(ref string) {
	time.Sleep(c.cfg.ConfirmDelay)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := c.cfg.Gates.NonTrading.Wait(ctx); err != nil {
		return
	}
	conf, err := c.cfg.Dealer.Confirms(ctx, ref)
	if err != nil {
		log.Printf("orders: confirm %s failed: %v", ref, err)
		return
	}

	status := conf.Status
	if strings.EqualFold(conf.DealStatus, "REJECTED") {
		status = "REJECTED"
	}
	c.queue.push(ctx, stream.TradeUpdate{
		DealID:        conf.DealID,
		DealReference: conf.DealReference,
		Epic:          conf.Epic,
		Status:        status,
		Reason:        conf.Reason,
		Level:         conf.Level,
		Size:          conf.Size,
	})
}

// applyTradeUpdate is the single entry point for broker-side state: both
// pushed trade updates and polled confirmations land here, one at a time.
func (c *Controller) applyTradeUpdate(u stream.TradeUpdate) {
	c.mu.Lock()
	defer c.mu.Unlock()

	orderID, ok := c.deals.resolve(u.DealID, u.DealReference)
	if !ok {
		log.Printf("orders: update for unknown deal (id=%q ref=%q), ignoring", u.DealID, u.DealReference)
		return
	}
	t := c.tracked[orderID]
	if t == nil {
		return
	}
	if t.order.Status.Terminal() {
		return
	}

	// First update carrying the deal ID re-keys the mapping.
	if u.DealID != "" && t.dealID == "" {
		t.dealID = u.DealID
		c.deals.confirm(t.dealRef, u.DealID)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conv := c.cfg.Convert.For(ctx, t.epic)

	switch broker.ParseDealStatus(u.Status) {
	case broker.DealOpen:
		if t.order.Kind == broker.KindMarket {
			c.fillLocked(ctx, t, conv, u, true)
		} else if t.order.Status == StatusUpdateSubmitted {
			c.transitionLocked(ctx, t, StatusSubmitted, OrderEvent{})
		}
		// OPEN on a fresh working order just acknowledges Submitted.
	case broker.DealAmended:
		c.transitionLocked(ctx, t, StatusSubmitted, OrderEvent{})
	case broker.DealPartial:
		c.fillLocked(ctx, t, conv, u, false)
	case broker.DealFilled:
		c.fillLocked(ctx, t, conv, u, true)
	case broker.DealDeleted:
		c.transitionLocked(ctx, t, StatusCanceled, OrderEvent{Reason: u.Reason})
	case broker.DealRejected:
		c.transitionLocked(ctx, t, StatusInvalid, OrderEvent{Reason: u.Reason})
	default:
		log.Printf("orders: unhandled deal status %q for %s", u.Status, orderID)
	}
}

// fillLocked records an execution and moves the order to partially or
// fully filled. Caller holds c.mu.
func (c *Controller) fillLocked(ctx context.Context, t *tracked, conv convert.Conversion, u stream.TradeUpdate, final bool) {
	price := conv.PriceFromBroker(u.Level)
	qty := conv.SizeFromBroker(u.Size)
	if qty <= 0 {
		qty = t.order.Quantity - t.filledQty
	}
	t.filledQty += qty

	fee := CommissionFor(t.order.Symbol.Class, price, qty)

	status := StatusPartiallyFilled
	if final || t.filledQty >= t.order.Quantity {
		status = StatusFilled
	}

	if c.cfg.Journal != nil {
		fill := db.Fill{
			ID:          uuid.NewString(),
			OrderID:     t.order.ID,
			Epic:        t.epic,
			Direction:   string(t.order.Direction),
			Price:       price,
			Qty:         qty,
			Fee:         fee,
			FeeCurrency: c.cfg.Currency,
		}
		if err := c.cfg.Journal.CreateFill(ctx, fill); err != nil {
			log.Printf("orders: journal fill: %v", err)
		}
	}

	c.transitionLocked(ctx, t, status, OrderEvent{
		FillPrice: price,
		FillQty:   qty,
		Fee:       fee,
		FeeCcy:    c.cfg.Currency,
	})
}

// transitionLocked applies a status change, journals it and emits the
// event. Terminal orders leave the tracked set and the deal map so the
// controller does not grow over a long session. Caller holds c.mu.
func (c *Controller) transitionLocked(ctx context.Context, t *tracked, status Status, ev OrderEvent) {
	t.order.Status = status
	if status.Terminal() {
		delete(c.tracked, t.order.ID)
		c.deals.drop(t.order.ID)
	}

	if c.cfg.Journal != nil {
		if err := c.cfg.Journal.UpdateOrderStatus(ctx, t.order.ID, string(status), t.dealID, ev.Reason); err != nil {
			log.Printf("orders: journal status: %v", err)
		}
	}

	ev.OrderID = t.order.ID
	ev.Symbol = t.order.Symbol
	ev.Status = status
	ev.OccurredAt = time.Now().UTC()
	c.emitLocked(ev)
}

// rejectLocal emits an Invalid event for an order the broker never saw.
// The order is terminal from the start, so nothing is tracked.
func (c *Controller) rejectLocal(o Order, reason string) {
	log.Printf("orders: rejecting %s: %s", o.ID, reason)
	c.mu.Lock()
	c.emitLocked(OrderEvent{
		OrderID:    o.ID,
		Symbol:     o.Symbol,
		Status:     StatusInvalid,
		Reason:     reason,
		OccurredAt: time.Now().UTC(),
	})
	c.mu.Unlock()
}

func (c *Controller) emitLocked(ev OrderEvent) {
	if c.cfg.Sink != nil {
		c.cfg.Sink.OnOrderEvent(ev)
	}
	if c.cfg.Bus != nil {
		c.cfg.Bus.Publish(events.EventOrderUpdate, ev)
	}
}

func (c *Controller) journalCreate(ctx context.Context, o Order, epic string) {
	if c.cfg.Journal == nil {
		return
	}
	level := o.Limit
	if o.Kind == broker.KindStop || o.Kind == broker.KindStopLimit {
		level = o.Stop
	}
	row := db.Order{
		ID:        o.ID,
		Symbol:    o.Symbol.Ticker,
		Epic:      epic,
		Direction: string(o.Direction),
		Kind:      string(o.Kind),
		Quantity:  o.Quantity,
		Level:     level,
		Status:    string(StatusSubmitted),
	}
	if err := c.cfg.Journal.CreateOrder(ctx, row); err != nil {
		log.Printf("orders: journal create: %v", err)
	}
}
