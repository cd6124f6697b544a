package db

import "time"

// Order is one journaled platform order.
type Order struct {
	ID        string
	Symbol    string
	Epic      string
	Direction string
	Kind      string
	Quantity  float64
	Level     float64
	Status    string
	DealID    string
	Reason    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Fill is one journaled execution against an order.
type Fill struct {
	ID          string
	OrderID     string
	Epic        string
	Direction   string
	Price       float64
	Qty         float64
	Fee         float64
	FeeCurrency string
	CreatedAt   time.Time
}
