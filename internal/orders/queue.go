package orders

import (
	"context"

	"ig-gateway/pkg/stream"
)

// tradeQueue buffers pushed trade updates for single-goroutine draining.
// Pushes block rather than drop; losing a trade update desynchronizes
// order state.
type tradeQueue struct {
	ch chan stream.TradeUpdate
}

func newTradeQueue(size int) *tradeQueue {
	if size <= 0 {
		size = 1024
	}
	return &tradeQueue{ch: make(chan stream.TradeUpdate, size)}
}

func (q *tradeQueue) push(ctx context.Context, u stream.TradeUpdate) {
	select {
	case q.ch <- u:
	case <-ctx.Done():
	}
}

// drain delivers updates to fn until the context ends.
func (q *tradeQueue) drain(ctx context.Context, fn func(stream.TradeUpdate)) {
	for {
		select {
		case u := <-q.ch:
			fn(u)
		case <-ctx.Done():
			return
		}
	}
}
