package derive

import "encoding/json"

// Wire types for the exchange API. Decimal quantities arrive as
// strings and stay strings at this layer; unit conversion happens in
// the codec.

// rpcEnvelope is the response shape shared by every endpoint: exactly
// one of result or error is set.
type rpcEnvelope struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// RPCError is the exchange's structured error body.
type RPCError struct {
	Code    int64  `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Instrument is one tradeable market.
type Instrument struct {
	InstrumentName   string `json:"instrument_name"`
	BaseCurrency     string `json:"base_currency"`
	QuoteCurrency    string `json:"quote_currency"`
	InstrumentType   string `json:"instrument_type"`
	IsActive         bool   `json:"is_active"`
	TickSize         string `json:"tick_size"`
	MinimumAmount    string `json:"minimum_amount"`
	MaximumAmount    string `json:"maximum_amount"`
	AmountStep       string `json:"amount_step"`
	BaseAssetAddress string `json:"base_asset_address"`
	BaseAssetSubID   string `json:"base_asset_sub_id"`
}

// Ticker is current market data for one instrument, including the
// protocol identity (asset address, sub id) trade signing needs.
type Ticker struct {
	InstrumentName   string `json:"instrument_name"`
	InstrumentType   string `json:"instrument_type"`
	IsActive         bool   `json:"is_active"`
	BestBidPrice     string `json:"best_bid_price"`
	BestBidAmount    string `json:"best_bid_amount"`
	BestAskPrice     string `json:"best_ask_price"`
	BestAskAmount    string `json:"best_ask_amount"`
	MarkPrice        string `json:"mark_price"`
	IndexPrice       string `json:"index_price"`
	MinPrice         string `json:"min_price"`
	MaxPrice         string `json:"max_price"`
	TickSize         string `json:"tick_size"`
	AmountStep       string `json:"amount_step"`
	BaseAssetAddress string `json:"base_asset_address"`
	BaseAssetSubID   string `json:"base_asset_sub_id"`
}

// Orderbook levels are [price, amount] string pairs, best first.
type Orderbook struct {
	InstrumentName string      `json:"instrument_name"`
	Bids           [][2]string `json:"bids"`
	Asks           [][2]string `json:"asks"`
	Timestamp      int64       `json:"timestamp"`
}

// Position is one open position on the subaccount.
type Position struct {
	InstrumentName string `json:"instrument_name"`
	Amount         string `json:"amount"`
	AveragePrice   string `json:"average_price"`
	MarkPrice      string `json:"mark_price"`
	UnrealizedPnl  string `json:"unrealized_pnl"`
	RealizedPnl    string `json:"realized_pnl"`
}

// PositionsResult wraps the get_positions response.
type PositionsResult struct {
	Positions []Position `json:"positions"`
}

// Collateral is one collateral asset balance.
type Collateral struct {
	AssetName     string `json:"asset_name"`
	Amount        string `json:"amount"`
	MarkValue     string `json:"mark_value"`
	CurrentValue  string `json:"current_value"`
	InitialMargin string `json:"initial_margin"`
}

// CollateralsResult wraps the get_collaterals response.
type CollateralsResult struct {
	Collaterals []Collateral `json:"collaterals"`
}

// Order is an exchange-side order record.
type Order struct {
	OrderID           string `json:"order_id"`
	InstrumentName    string `json:"instrument_name"`
	Direction         string `json:"direction"`
	OrderType         string `json:"order_type"`
	OrderStatus       string `json:"order_status"`
	Amount            string `json:"amount"`
	FilledAmount      string `json:"filled_amount"`
	LimitPrice        string `json:"limit_price"`
	AveragePrice      string `json:"average_price"`
	TimeInForce       string `json:"time_in_force"`
	Label             string `json:"label"`
	CreationTimestamp int64  `json:"creation_timestamp"`
}

// OrdersResult wraps the get_open_orders response.
type OrdersResult struct {
	Orders []Order `json:"orders"`
}

// OrderResult wraps the order placement response.
type OrderResult struct {
	Order Order `json:"order"`
}

// CancelAllResult wraps the cancel_all response.
type CancelAllResult struct {
	CancelledOrders int `json:"cancelled_orders"`
}
