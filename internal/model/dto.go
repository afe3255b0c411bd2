package model

// Tool input and output shapes. Inputs carry gin binding tags; deep
// validation (enum values, positivity, fixed-point bounds) happens in
// the dispatcher before any signing or network work.

// GetInstrumentsRequest filters the instrument listing.
type GetInstrumentsRequest struct {
	Currency string `json:"currency" form:"currency"`
	Kind     string `json:"kind" form:"kind"`
}

// GetTickerRequest names one instrument.
type GetTickerRequest struct {
	InstrumentName string `json:"instrument_name" form:"instrument_name" binding:"required"`
}

// GetOrderbookRequest names one instrument with an optional depth.
type GetOrderbookRequest struct {
	InstrumentName string `json:"instrument_name" form:"instrument_name" binding:"required"`
	Depth          int    `json:"depth" form:"depth"`
}

// PlaceOrderRequest is the place_order tool input. Price and amount
// are decimal strings so callers keep full precision.
type PlaceOrderRequest struct {
	InstrumentName string `json:"instrument_name" binding:"required"`
	Side           string `json:"side" binding:"required"`
	OrderType      string `json:"order_type"` // defaults to limit
	Price          string `json:"price"`
	Amount         string `json:"amount" binding:"required"`
	TimeInForce    string `json:"time_in_force"`
	ReduceOnly     bool   `json:"reduce_only"`
	PostOnly       bool   `json:"post_only"`
	Label          string `json:"label"`
	ExpirySec      int64  `json:"signature_expiry_sec"`
}

// CancelOrderRequest cancels one order by id.
type CancelOrderRequest struct {
	OrderID string `json:"order_id" binding:"required"`
}

// CancelAllRequest cancels all open orders, optionally scoped to one
// instrument.
type CancelAllRequest struct {
	InstrumentName string `json:"instrument_name"`
}

// InstrumentSummary is a normalized instrument row preserving the
// declared market-data fields.
type InstrumentSummary struct {
	InstrumentName string `json:"instrument_name"`
	BaseCurrency   string `json:"base_currency"`
	QuoteCurrency  string `json:"quote_currency"`
	Kind           string `json:"kind"`
	IsActive       bool   `json:"is_active"`
	TickSize       string `json:"tick_size"`
	MinimumAmount  string `json:"minimum_amount"`
	AmountStep     string `json:"amount_step"`
}

type InstrumentsResponse struct {
	Count       int                 `json:"count"`
	Currency    string              `json:"currency"`
	Kind        string              `json:"kind"`
	Instruments []InstrumentSummary `json:"instruments"`
}

type TickerResponse struct {
	InstrumentName string `json:"instrument_name"`
	BestBidPrice   string `json:"best_bid_price"`
	BestBidAmount  string `json:"best_bid_amount"`
	BestAskPrice   string `json:"best_ask_price"`
	BestAskAmount  string `json:"best_ask_amount"`
	MarkPrice      string `json:"mark_price"`
	IndexPrice     string `json:"index_price"`
	TickSize       string `json:"tick_size"`
	AmountStep     string `json:"amount_step"`
}

type PriceLevel struct {
	Price  string `json:"price"`
	Amount string `json:"amount"`
}

type OrderbookResponse struct {
	InstrumentName string       `json:"instrument_name"`
	Bids           []PriceLevel `json:"bids"`
	Asks           []PriceLevel `json:"asks"`
	Timestamp      int64        `json:"timestamp"`
}

type PositionSummary struct {
	InstrumentName string `json:"instrument_name"`
	Side           string `json:"side"` // long or short
	Amount         string `json:"amount"`
	AveragePrice   string `json:"average_price"`
	UnrealizedPnl  string `json:"unrealized_pnl"`
	RealizedPnl    string `json:"realized_pnl"`
}

type PositionsResponse struct {
	Positions []PositionSummary `json:"positions"`
}

type OrderSummary struct {
	OrderID        string `json:"order_id"`
	InstrumentName string `json:"instrument_name"`
	Direction      string `json:"direction"`
	OrderType      string `json:"order_type"`
	Status         string `json:"status"`
	Amount         string `json:"amount"`
	FilledAmount   string `json:"filled_amount"`
	LimitPrice     string `json:"limit_price"`
	TimeInForce    string `json:"time_in_force"`
	Label          string `json:"label,omitempty"`
}

type OrdersResponse struct {
	Orders []OrderSummary `json:"orders"`
}

type BalanceEntry struct {
	Asset        string `json:"asset"`
	Amount       string `json:"amount"`
	CurrentValue string `json:"current_value"`
}

type BalanceResponse struct {
	Collaterals []BalanceEntry `json:"collaterals"`
}

type OrderConfirmation struct {
	Status string       `json:"status"`
	Order  OrderSummary `json:"order"`
}

type CancelConfirmation struct {
	Status  string `json:"status"`
	OrderID string `json:"order_id"`
}

type CancelAllConfirmation struct {
	Status    string `json:"status"`
	Cancelled int    `json:"cancelled"`
}
