package broker

// Direction denotes deal direction on the wire.
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

// OrderKind denotes the order types the gateway supports.
type OrderKind string

const (
	KindMarket    OrderKind = "MARKET"
	KindLimit     OrderKind = "LIMIT"
	KindStop      OrderKind = "STOP"
	KindStopLimit OrderKind = "STOP_LIMIT"
)

// DealStatus normalizes broker status strings into a small set.
type DealStatus string

const (
	DealOpen     DealStatus = "OPEN"
	DealAmended  DealStatus = "AMENDED"
	DealDeleted  DealStatus = "DELETED"
	DealPartial  DealStatus = "PARTIALLY_FILLED"
	DealFilled   DealStatus = "FILLED"
	DealRejected DealStatus = "REJECTED"
	DealUnknown  DealStatus = "UNKNOWN"
)

// ParseDealStatus maps a raw broker status string to a DealStatus.
func ParseDealStatus(s string) DealStatus {
	switch s {
	case "OPEN", "OPENED":
		return DealOpen
	case "AMENDED", "UPDATED":
		return DealAmended
	case "DELETED", "CLOSED":
		return DealDeleted
	case "PARTIALLY_FILLED", "PARTIALLY_CLOSED":
		return DealPartial
	case "FILLED":
		return DealFilled
	case "REJECTED", "DECLINED":
		return DealRejected
	default:
		return DealUnknown
	}
}

// Terminal reports whether the status ends an order's life at the broker.
func (s DealStatus) Terminal() bool {
	return s == DealFilled || s == DealDeleted || s == DealRejected
}
