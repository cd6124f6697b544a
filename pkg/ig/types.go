package ig

import "ig-gateway/pkg/broker"

// Session holds the tokens and endpoints issued at login.
type Session struct {
	CST            string
	SecurityToken  string
	AccountID      string
	Currency       string
	StreamEndpoint string
}

// loginRequest is the POST /session payload (version 2).
type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type loginResponse struct {
	CurrentAccountID      string `json:"currentAccountId"`
	CurrencyIsoCode       string `json:"currencyIsoCode"`
	LightstreamerEndpoint string `json:"lightstreamerEndpoint"`
}

// apiError is the error envelope IG returns on non-2xx responses.
type apiError struct {
	ErrorCode string `json:"errorCode"`
}

// OTCOrderRequest creates an immediate (market) position deal.
type OTCOrderRequest struct {
	Epic           string           `json:"epic"`
	Expiry         string           `json:"expiry"`
	Direction      broker.Direction `json:"direction"`
	Size           float64          `json:"size"`
	OrderType      string           `json:"orderType"`
	Level          float64          `json:"level,omitempty"`
	GuaranteedStop bool             `json:"guaranteedStop"`
	ForceOpen      bool             `json:"forceOpen"`
	CurrencyCode   string           `json:"currencyCode,omitempty"`
	LimitDistance  float64          `json:"limitDistance,omitempty"`
	StopDistance   float64          `json:"stopDistance,omitempty"`
}

// WorkingOrderRequest creates a resting limit/stop order.
type WorkingOrderRequest struct {
	Epic           string           `json:"epic"`
	Expiry         string           `json:"expiry"`
	Direction      broker.Direction `json:"direction"`
	Size           float64          `json:"size"`
	Level          float64          `json:"level"`
	Type           string           `json:"type"` // LIMIT or STOP
	TimeInForce    string           `json:"timeInForce"`
	GuaranteedStop bool             `json:"guaranteedStop"`
	CurrencyCode   string           `json:"currencyCode,omitempty"`
	LimitDistance  float64          `json:"limitDistance,omitempty"`
	StopDistance   float64          `json:"stopDistance,omitempty"`
}

// WorkingOrderUpdate amends the level of a resting order.
type WorkingOrderUpdate struct {
	Level         float64 `json:"level"`
	Type          string  `json:"type"`
	TimeInForce   string  `json:"timeInForce"`
	LimitDistance float64 `json:"limitDistance,omitempty"`
	StopDistance  float64 `json:"stopDistance,omitempty"`
}

type dealReferenceResponse struct {
	DealReference string `json:"dealReference"`
}

// DealConfirmation is the GET /confirms/{ref} response.
type DealConfirmation struct {
	DealReference string  `json:"dealReference"`
	DealID        string  `json:"dealId"`
	DealStatus    string  `json:"dealStatus"` // ACCEPTED or REJECTED
	Status        string  `json:"status"`     // OPEN, AMENDED, DELETED, ...
	Reason        string  `json:"reason"`
	Epic          string  `json:"epic"`
	Level         float64 `json:"level"`
	Size          float64 `json:"size"`
	Direction     string  `json:"direction"`
}

// Position is one open position with its market snapshot.
type Position struct {
	DealID       string  `json:"dealId"`
	Direction    string  `json:"direction"`
	Size         float64 `json:"size"`
	Level        float64 `json:"level"`
	Currency     string  `json:"currency"`
	ContractSize float64 `json:"contractSize"`
}

// PositionMarket is the market block attached to a position.
type PositionMarket struct {
	Epic           string  `json:"epic"`
	InstrumentName string  `json:"instrumentName"`
	InstrumentType string  `json:"instrumentType"`
	Bid            float64 `json:"bid"`
	Offer          float64 `json:"offer"`
}

type positionEntry struct {
	Position Position       `json:"position"`
	Market   PositionMarket `json:"market"`
}

type positionsResponse struct {
	Positions []positionEntry `json:"positions"`
}

// OpenPosition pairs a position with its market description.
type OpenPosition struct {
	Position Position
	Market   PositionMarket
}

// WorkingOrder is one resting order with its market snapshot.
type WorkingOrder struct {
	DealID       string  `json:"dealId"`
	Direction    string  `json:"direction"`
	Epic         string  `json:"epic"`
	OrderSize    float64 `json:"orderSize"`
	OrderLevel   float64 `json:"orderLevel"`
	OrderType    string  `json:"orderType"`
	TimeInForce  string  `json:"timeInForce"`
	CurrencyCode string  `json:"currencyCode"`
}

type workingOrderEntry struct {
	Data   WorkingOrder   `json:"workingOrderData"`
	Market PositionMarket `json:"marketData"`
}

type workingOrdersResponse struct {
	WorkingOrders []workingOrderEntry `json:"workingOrders"`
}

// AccountBalance is the balance block on GET /accounts.
type AccountBalance struct {
	Balance    float64 `json:"balance"`
	Deposit    float64 `json:"deposit"`
	ProfitLoss float64 `json:"profitLoss"`
	Available  float64 `json:"available"`
}

// Account describes one IG account.
type Account struct {
	AccountID   string         `json:"accountId"`
	AccountName string         `json:"accountName"`
	AccountType string         `json:"accountType"`
	Currency    string         `json:"currency"`
	Preferred   bool           `json:"preferred"`
	Balance     AccountBalance `json:"balance"`
}

type accountsResponse struct {
	Accounts []Account `json:"accounts"`
}

// Instrument is the instrument block of GET /markets/{epic}.
type Instrument struct {
	Epic         string  `json:"epic"`
	Name         string  `json:"name"`
	Type         string  `json:"type"` // CURRENCIES, SHARES, INDICES, ...
	ContractSize string  `json:"contractSize"`
	OnePipMeans  string  `json:"onePipMeans"` // e.g. "0.0001 USD/EUR"
	LotSize      float64 `json:"lotSize"`
}

// MarketSnapshot is the snapshot block of GET /markets/{epic}.
type MarketSnapshot struct {
	Bid           float64 `json:"bid"`
	Offer         float64 `json:"offer"`
	MarketStatus  string  `json:"marketStatus"`
	ScalingFactor float64 `json:"scalingFactor"`
}

// MarketDetails is the GET /markets/{epic} response.
type MarketDetails struct {
	Instrument Instrument     `json:"instrument"`
	Snapshot   MarketSnapshot `json:"snapshot"`
}

// MarketSummary is one hit from GET /markets?searchTerm=.
type MarketSummary struct {
	Epic           string  `json:"epic"`
	InstrumentName string  `json:"instrumentName"`
	InstrumentType string  `json:"instrumentType"`
	Expiry         string  `json:"expiry"`
	Bid            float64 `json:"bid"`
	Offer          float64 `json:"offer"`
}

type searchResponse struct {
	Markets []MarketSummary `json:"markets"`
}

// pricePoint is one side-pair level in a candle.
type pricePoint struct {
	Bid float64 `json:"bid"`
	Ask float64 `json:"ask"`
}

type apiCandle struct {
	SnapshotTimeUTC  string     `json:"snapshotTimeUTC"`
	OpenPrice        pricePoint `json:"openPrice"`
	ClosePrice       pricePoint `json:"closePrice"`
	HighPrice        pricePoint `json:"highPrice"`
	LowPrice         pricePoint `json:"lowPrice"`
	LastTradedVolume float64    `json:"lastTradedVolume"`
}

type pricesResponse struct {
	Prices []apiCandle `json:"prices"`
}

// Candle is a single bid/ask candlestick in broker points.
type Candle struct {
	Time     string
	OpenBid  float64
	OpenAsk  float64
	HighBid  float64
	HighAsk  float64
	LowBid   float64
	LowAsk   float64
	CloseBid float64
	CloseAsk float64
	Volume   float64
}
