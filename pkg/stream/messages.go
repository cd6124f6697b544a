package stream

import (
	"encoding/json"
	"fmt"
)

// Topic name helpers. The push feed keys subscriptions by topic string.
func MarketTopic(epic string) string { return "MARKET:" + epic }
func TradeTopic(accountID string) string { return "TRADE:" + accountID }
func AccountTopic(accountID string) string { return "ACCOUNT:" + accountID }

// PriceUpdate is a best bid/offer tick for one instrument, in broker points.
type PriceUpdate struct {
	Epic  string
	Bid   float64
	Offer float64
}

// TradeUpdate is an order/position event from the trade topic.
type TradeUpdate struct {
	DealID        string
	DealReference string
	Epic          string
	Status        string
	Reason        string
	Level         float64
	Size          float64
}

// AccountUpdate carries balance figures from the account topic.
type AccountUpdate struct {
	Balance    float64
	Available  float64
	ProfitLoss float64
}

// pushFrame is the envelope of every inbound push message.
type pushFrame struct {
	Type string `json:"type"`

	// PRICE
	Epic  string  `json:"epic"`
	Bid   float64 `json:"bid"`
	Offer float64 `json:"offer"`

	// TRADE
	DealID        string  `json:"dealId"`
	DealReference string  `json:"dealReference"`
	Status        string  `json:"status"`
	Reason        string  `json:"reason"`
	Level         float64 `json:"level"`
	Size          float64 `json:"size"`

	// ACCOUNT
	Balance    float64 `json:"balance"`
	Available  float64 `json:"available"`
	ProfitLoss float64 `json:"profitLoss"`
}

// subscribeFrame is the outbound subscribe/unsubscribe control message.
type subscribeFrame struct {
	Op    string `json:"op"`
	Topic string `json:"topic"`
	CST   string `json:"cst,omitempty"`
	XST   string `json:"securityToken,omitempty"`
}

func decodeFrame(msg []byte) (pushFrame, error) {
	var f pushFrame
	if err := json.Unmarshal(msg, &f); err != nil {
		return pushFrame{}, fmt.Errorf("stream: decode frame: %w", err)
	}
	return f, nil
}
