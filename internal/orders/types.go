// Package orders owns the order lifecycle between the platform and the
// dealing API: submission, amendment, cancellation, confirmation and the
// trade updates the broker pushes back.
package orders

import (
	"time"

	"ig-gateway/internal/symbols"
	"ig-gateway/pkg/broker"
)

// Status is the platform-side lifecycle state of an order.
type Status string

const (
	StatusCreated         Status = "CREATED"
	StatusSubmitted       Status = "SUBMITTED"
	StatusUpdateSubmitted Status = "UPDATE_SUBMITTED"
	StatusPartiallyFilled Status = "PARTIALLY_FILLED"
	StatusFilled          Status = "FILLED"
	StatusCanceled        Status = "CANCELED"
	StatusInvalid         Status = "INVALID"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusFilled || s == StatusCanceled || s == StatusInvalid
}

// Order is a platform order being routed through the gateway.
type Order struct {
	ID        string
	Symbol    symbols.Symbol
	Direction broker.Direction
	Kind      broker.OrderKind
	Quantity  float64 // platform units, always positive
	Limit     float64 // platform price, limit leg
	Stop      float64 // platform price, stop leg
	Tag       string  // free-form tag, may carry SL/TP instructions
	Status    Status
	CreatedAt time.Time
}

// OrderEvent reports a lifecycle transition to the host platform.
type OrderEvent struct {
	OrderID    string
	Symbol     symbols.Symbol
	Status     Status
	FillPrice  float64 // platform price, set on fills
	FillQty    float64 // platform units, set on fills
	Fee        float64
	FeeCcy     string
	Reason     string
	OccurredAt time.Time
}

// EventSink receives serialized order events. Calls never overlap.
type EventSink interface {
	OnOrderEvent(OrderEvent)
}

// SinkFunc adapts a function to an EventSink.
type SinkFunc func(OrderEvent)

func (f SinkFunc) OnOrderEvent(e OrderEvent) { f(e) }
