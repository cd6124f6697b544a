package broker

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Gate bounds outbound request rate over a rolling window.
// IG enforces separate per-minute allowances for trading and non-trading
// requests, so the gateway carries two independent gates.
type Gate struct {
	limiter *rate.Limiter
}

// NewGate builds a gate admitting capacity requests per window.
func NewGate(capacity int, window time.Duration) *Gate {
	if capacity <= 0 {
		capacity = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Gate{
		limiter: rate.NewLimiter(rate.Every(window/time.Duration(capacity)), capacity),
	}
}

// Wait blocks until a request slot is free or ctx is done.
func (g *Gate) Wait(ctx context.Context) error {
	return g.limiter.Wait(ctx)
}

// Allow reports whether a slot is free right now, consuming it if so.
func (g *Gate) Allow() bool {
	return g.limiter.Allow()
}

// Gates bundles the two request categories.
type Gates struct {
	Trading    *Gate
	NonTrading *Gate
}

// NewGates builds both gates from per-minute capacities.
func NewGates(tradingPerMinute, nonTradingPerMinute int) *Gates {
	return &Gates{
		Trading:    NewGate(tradingPerMinute, time.Minute),
		NonTrading: NewGate(nonTradingPerMinute, time.Minute),
	}
}
