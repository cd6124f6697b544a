// Package ig implements the request/response side of the IG dealing API.
//
// All wire payloads are decoded into typed structs here; nothing outside
// this package inspects raw JSON.
package ig

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// DemoURL is the base URL for IG's demo environment.
	DemoURL = "https://demo-api.ig.com/gateway/deal"
	// LiveURL is the base URL for IG's live environment.
	LiveURL = "https://api.ig.com/gateway/deal"
)

// ErrAuthentication marks a login failure. It is fatal and never retried.
var ErrAuthentication = errors.New("ig: authentication failed")

// APIError is a non-2xx response from the dealing API.
type APIError struct {
	StatusCode int
	Code       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ig: api error status %d: %s", e.StatusCode, e.Code)
}

// Config holds IG credentials.
type Config struct {
	APIKey     string
	Identifier string
	Password   string
	AccountID  string
	Demo       bool
	Timeout    time.Duration
}

// Client is a stateless request/response client for the dealing API.
// Session tokens captured at login are attached to every later request.
type Client struct {
	cfg        Config
	baseURL    string
	httpClient *http.Client

	mu            sync.RWMutex
	cst           string
	securityToken string
	latency       func(time.Duration)
}

// New builds a client; Demo toggles the host.
func New(cfg Config) *Client {
	base := LiveURL
	if cfg.Demo {
		base = DemoURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:        cfg,
		baseURL:    base,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// SetBaseURL overrides the API host (tests).
func (c *Client) SetBaseURL(u string) { c.baseURL = u }

// SetLatencyObserver installs a callback that receives the round-trip
// duration of every completed dealing API request.
func (c *Client) SetLatencyObserver(f func(time.Duration)) {
	c.mu.Lock()
	c.latency = f
	c.mu.Unlock()
}

func (c *Client) observe(start time.Time) {
	c.mu.RLock()
	f := c.latency
	c.mu.RUnlock()
	if f != nil {
		f(time.Since(start))
	}
}

// Login authenticates and captures the session tokens.
func (c *Client) Login(ctx context.Context) (*Session, error) {
	payload, _ := json.Marshal(loginRequest{
		Identifier: c.cfg.Identifier,
		Password:   c.cfg.Password,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/session", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	c.setHeaders(req, 2, false)

	start := time.Now()
	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ig: login request: %w", err)
	}
	defer res.Body.Close()
	c.observe(start)

	body, _ := io.ReadAll(res.Body)
	if res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%w: %s", ErrAuthentication, errorCode(body))
	}
	if res.StatusCode >= 300 {
		return nil, &APIError{StatusCode: res.StatusCode, Code: errorCode(body)}
	}

	var lr loginResponse
	if err := json.Unmarshal(body, &lr); err != nil {
		return nil, fmt.Errorf("ig: decode login response: %w", err)
	}

	cst := res.Header.Get("CST")
	xst := res.Header.Get("X-SECURITY-TOKEN")
	if cst == "" || xst == "" {
		return nil, fmt.Errorf("%w: missing session tokens", ErrAuthentication)
	}

	c.mu.Lock()
	c.cst = cst
	c.securityToken = xst
	c.mu.Unlock()

	accountID := c.cfg.AccountID
	if accountID == "" {
		accountID = lr.CurrentAccountID
	}

	return &Session{
		CST:            cst,
		SecurityToken:  xst,
		AccountID:      accountID,
		Currency:       lr.CurrencyIsoCode,
		StreamEndpoint: lr.LightstreamerEndpoint,
	}, nil
}

// Logout tears down the REST session.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodDelete, "/session", 1, nil)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.cst = ""
	c.securityToken = ""
	c.mu.Unlock()
	return nil
}

// PlaceOTCOrder opens a market deal and returns the deal reference.
func (c *Client) PlaceOTCOrder(ctx context.Context, req OTCOrderRequest) (string, error) {
	body, err := c.do(ctx, http.MethodPost, "/positions/otc", 2, req)
	if err != nil {
		return "", err
	}
	var ref dealReferenceResponse
	if err := json.Unmarshal(body, &ref); err != nil {
		return "", fmt.Errorf("ig: decode deal reference: %w", err)
	}
	return ref.DealReference, nil
}

// CreateWorkingOrder places a resting limit/stop order and returns the deal reference.
func (c *Client) CreateWorkingOrder(ctx context.Context, req WorkingOrderRequest) (string, error) {
	body, err := c.do(ctx, http.MethodPost, "/workingorders/otc", 2, req)
	if err != nil {
		return "", err
	}
	var ref dealReferenceResponse
	if err := json.Unmarshal(body, &ref); err != nil {
		return "", fmt.Errorf("ig: decode deal reference: %w", err)
	}
	return ref.DealReference, nil
}

// UpdateWorkingOrder amends a resting order by deal id.
func (c *Client) UpdateWorkingOrder(ctx context.Context, dealID string, req WorkingOrderUpdate) error {
	_, err := c.do(ctx, http.MethodPut, "/workingorders/otc/"+url.PathEscape(dealID), 2, req)
	return err
}

// DeleteWorkingOrder cancels a resting order by deal id.
func (c *Client) DeleteWorkingOrder(ctx context.Context, dealID string) error {
	_, err := c.do(ctx, http.MethodDelete, "/workingorders/otc/"+url.PathEscape(dealID), 2, nil)
	return err
}

// Confirms fetches the asynchronous confirmation for a deal reference.
func (c *Client) Confirms(ctx context.Context, dealReference string) (*DealConfirmation, error) {
	body, err := c.do(ctx, http.MethodGet, "/confirms/"+url.PathEscape(dealReference), 1, nil)
	if err != nil {
		return nil, err
	}
	var conf DealConfirmation
	if err := json.Unmarshal(body, &conf); err != nil {
		return nil, fmt.Errorf("ig: decode confirmation: %w", err)
	}
	return &conf, nil
}

// Positions lists all open positions.
func (c *Client) Positions(ctx context.Context) ([]OpenPosition, error) {
	body, err := c.do(ctx, http.MethodGet, "/positions", 2, nil)
	if err != nil {
		return nil, err
	}
	var resp positionsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("ig: decode positions: %w", err)
	}
	out := make([]OpenPosition, 0, len(resp.Positions))
	for _, p := range resp.Positions {
		out = append(out, OpenPosition{Position: p.Position, Market: p.Market})
	}
	return out, nil
}

// WorkingOrders lists all resting orders.
func (c *Client) WorkingOrders(ctx context.Context) ([]WorkingOrder, error) {
	body, err := c.do(ctx, http.MethodGet, "/workingorders", 2, nil)
	if err != nil {
		return nil, err
	}
	var resp workingOrdersResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("ig: decode working orders: %w", err)
	}
	out := make([]WorkingOrder, 0, len(resp.WorkingOrders))
	for _, wo := range resp.WorkingOrders {
		order := wo.Data
		if order.Epic == "" {
			order.Epic = wo.Market.Epic
		}
		out = append(out, order)
	}
	return out, nil
}

// Accounts lists the accounts visible to the session.
func (c *Client) Accounts(ctx context.Context) ([]Account, error) {
	body, err := c.do(ctx, http.MethodGet, "/accounts", 1, nil)
	if err != nil {
		return nil, err
	}
	var resp accountsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("ig: decode accounts: %w", err)
	}
	return resp.Accounts, nil
}

// MarketDetails fetches instrument metadata for an epic.
func (c *Client) MarketDetails(ctx context.Context, epic string) (*MarketDetails, error) {
	body, err := c.do(ctx, http.MethodGet, "/markets/"+url.PathEscape(epic), 3, nil)
	if err != nil {
		return nil, err
	}
	var details MarketDetails
	if err := json.Unmarshal(body, &details); err != nil {
		return nil, fmt.Errorf("ig: decode market details: %w", err)
	}
	return &details, nil
}

// Prices fetches historical candles for an epic in broker points.
func (c *Client) Prices(ctx context.Context, epic, resolution string, from, to time.Time) ([]Candle, error) {
	q := url.Values{}
	q.Set("resolution", resolution)
	q.Set("from", from.UTC().Format("2006-01-02T15:04:05"))
	q.Set("to", to.UTC().Format("2006-01-02T15:04:05"))
	q.Set("pageSize", "0")

	body, err := c.do(ctx, http.MethodGet, "/prices/"+url.PathEscape(epic)+"?"+q.Encode(), 3, nil)
	if err != nil {
		return nil, err
	}
	var resp pricesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("ig: decode prices: %w", err)
	}

	candles := make([]Candle, 0, len(resp.Prices))
	for _, p := range resp.Prices {
		candles = append(candles, Candle{
			Time:     p.SnapshotTimeUTC,
			OpenBid:  p.OpenPrice.Bid,
			OpenAsk:  p.OpenPrice.Ask,
			HighBid:  p.HighPrice.Bid,
			HighAsk:  p.HighPrice.Ask,
			LowBid:   p.LowPrice.Bid,
			LowAsk:   p.LowPrice.Ask,
			CloseBid: p.ClosePrice.Bid,
			CloseAsk: p.ClosePrice.Ask,
			Volume:   p.LastTradedVolume,
		})
	}
	return candles, nil
}

// SearchMarkets finds instruments matching a free-text term.
func (c *Client) SearchMarkets(ctx context.Context, term string) ([]MarketSummary, error) {
	q := url.Values{}
	q.Set("searchTerm", term)
	body, err := c.do(ctx, http.MethodGet, "/markets?"+q.Encode(), 1, nil)
	if err != nil {
		return nil, err
	}
	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("ig: decode search results: %w", err)
	}
	return resp.Markets, nil
}

// do performs an authenticated request and returns the response body.
func (c *Client) do(ctx context.Context, method, path string, version int, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("ig: encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req, version, true)

	start := time.Now()
	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ig: %s %s: %w", method, path, err)
	}
	defer res.Body.Close()
	c.observe(start)

	raw, _ := io.ReadAll(res.Body)
	if res.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("%w: %s", ErrAuthentication, errorCode(raw))
	}
	if res.StatusCode >= 300 {
		return nil, &APIError{StatusCode: res.StatusCode, Code: errorCode(raw)}
	}
	return raw, nil
}

func (c *Client) setHeaders(req *http.Request, version int, auth bool) {
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	req.Header.Set("Accept", "application/json; charset=UTF-8")
	req.Header.Set("X-IG-API-KEY", c.cfg.APIKey)
	req.Header.Set("Version", strconv.Itoa(version))
	if auth {
		c.mu.RLock()
		req.Header.Set("CST", c.cst)
		req.Header.Set("X-SECURITY-TOKEN", c.securityToken)
		c.mu.RUnlock()
	}
}

func errorCode(body []byte) string {
	var e apiError
	if err := json.Unmarshal(body, &e); err == nil && e.ErrorCode != "" {
		return e.ErrorCode
	}
	return strings.TrimSpace(string(body))
}
