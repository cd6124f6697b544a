package events

// Event enumerates high-level topics inside the gateway.
type Event string

const (
	EventQuoteTick       Event = "quote_tick"
	EventOrderUpdate     Event = "order_update"
	EventAccountUpdate   Event = "account_update"
	EventConnectionUp    Event = "connection.up"
	EventConnectionLost  Event = "connection.lost"
	EventReconnected     Event = "connection.reconnected"
	EventReconnectFailed Event = "connection.reconnect_failed"
	EventAlert           Event = "alert"
)

// QuoteTick is a converted best bid/ask quote for a platform symbol.
type QuoteTick struct {
	Symbol string
	Bid    float64
	Ask    float64
}

// AccountSnapshot carries current balance figures.
type AccountSnapshot struct {
	Balance    float64
	Available  float64
	ProfitLoss float64
}
