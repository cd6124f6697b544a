// Package stream maintains the persistent push session to the broker.
//
// One websocket carries three topic families: MARKET:{epic} price ticks,
// TRADE:{accountID} order/position events and ACCOUNT:{accountID} balance
// updates. The client exposes each family on its own channel; channels are
// created once and survive reconnects, so consumers never need to re-wire.
package stream

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
)

// ErrNotConnected is returned when an operation needs a live push session.
var ErrNotConnected = errors.New("stream: not connected")

// Config carries the endpoint and the REST-issued session tokens.
type Config struct {
	Endpoint      string
	CST           string
	SecurityToken string
	AccountID     string
}

// Client is the push-session client.
type Client struct {
	cfg    Config
	dialer *websocket.Dialer

	mu        sync.Mutex // guards conn and writes
	conn      *websocket.Conn
	gen       uint64 // connection generation; stale readers exit quietly
	connected atomic.Bool

	prices   chan PriceUpdate
	trades   chan TradeUpdate
	accounts chan AccountUpdate
	errs     chan error
}

// NewClient builds a client for the given endpoint and tokens.
func NewClient(cfg Config) *Client {
	return &Client{
		cfg:      cfg,
		dialer:   websocket.DefaultDialer,
		prices:   make(chan PriceUpdate, 256),
		trades:   make(chan TradeUpdate, 64),
		accounts: make(chan AccountUpdate, 16),
		errs:     make(chan error, 8),
	}
}

// Prices delivers inbound market ticks.
func (c *Client) Prices() <-chan PriceUpdate { return c.prices }

// Trades delivers inbound order/position events.
func (c *Client) Trades() <-chan TradeUpdate { return c.trades }

// Accounts delivers inbound balance updates.
func (c *Client) Accounts() <-chan AccountUpdate { return c.accounts }

// Errors delivers transport failures observed by the read loop.
func (c *Client) Errors() <-chan error { return c.errs }

// Connected reports whether the push session is currently live.
func (c *Client) Connected() bool { return c.connected.Load() }

// SetTokens installs fresh session tokens before a reconnect. The REST
// session may have been re-issued while the push link was down.
func (c *Client) SetTokens(cst, securityToken string) {
	c.mu.Lock()
	c.cfg.CST = cst
	c.cfg.SecurityToken = securityToken
	c.mu.Unlock()
}

// Connect dials the push endpoint authenticated with the session tokens
// and starts the read loop. Safe to call again after a transport loss;
// subscriptions are NOT restored here, callers re-register the full set.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	header := http.Header{}
	header.Set("CST", c.cfg.CST)
	header.Set("X-SECURITY-TOKEN", c.cfg.SecurityToken)
	endpoint := c.cfg.Endpoint
	c.mu.Unlock()

	conn, _, err := c.dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn = conn
	c.gen++
	gen := c.gen
	c.mu.Unlock()
	c.connected.Store(true)

	go c.readLoop(conn, gen)
	return nil
}

// Close shuts the session down. Event channels stay open for reuse.
func (c *Client) Close() error {
	c.connected.Store(false)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	err := c.conn.Close()
	c.conn = nil
	return err
}

// Subscribe registers one topic on the live session.
func (c *Client) Subscribe(topic string) error {
	return c.writeControl("subscribe", topic)
}

// Unsubscribe deregisters one topic.
func (c *Client) Unsubscribe(topic string) error {
	return c.writeControl("unsubscribe", topic)
}

func (c *Client) writeControl(op, topic string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || !c.connected.Load() {
		return ErrNotConnected
	}
	return c.conn.WriteJSON(subscribeFrame{
		Op:    op,
		Topic: topic,
		CST:   c.cfg.CST,
		XST:   c.cfg.SecurityToken,
	})
}

func (c *Client) readLoop(conn *websocket.Conn, gen uint64) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			stale := gen != c.gen
			c.mu.Unlock()
			if stale {
				return
			}
			c.connected.Store(false)
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
				strings.Contains(err.Error(), "use of closed network connection") {
				return
			}
			select {
			case c.errs <- err:
			default:
			}
			return
		}
		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg []byte) {
	frame, err := decodeFrame(msg)
	if err != nil {
		log.Printf("stream: parse error: %v", err)
		return
	}

	switch frame.Type {
	case "PRICE":
		select {
		case c.prices <- PriceUpdate{Epic: frame.Epic, Bid: frame.Bid, Offer: frame.Offer}:
		default:
			// drop if the consumer is slow; the feed is latest-wins
		}
	case "TRADE":
		// Trade events must not be dropped; the channel is buffered and
		// drained by the single-writer order lane.
		c.trades <- TradeUpdate{
			DealID:        frame.DealID,
			DealReference: frame.DealReference,
			Epic:          frame.Epic,
			Status:        frame.Status,
			Reason:        frame.Reason,
			Level:         frame.Level,
			Size:          frame.Size,
		}
	case "ACCOUNT":
		select {
		case c.accounts <- AccountUpdate{
			Balance:    frame.Balance,
			Available:  frame.Available,
			ProfitLoss: frame.ProfitLoss,
		}:
		default:
		}
	case "HEARTBEAT":
		// keepalive only
	default:
		// unknown frame types are ignored
	}
}
