package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/GoDerive/derivegate/internal/model"
	"github.com/GoDerive/derivegate/internal/pkg/apperrors"
	"github.com/GoDerive/derivegate/internal/pkg/metrics"
)

// The nine tool names exposed to calling agents.
const (
	ToolGetInstruments  = "get_instruments"
	ToolGetTicker       = "get_ticker"
	ToolGetOrderbook    = "get_orderbook"
	ToolGetPositions    = "get_positions"
	ToolGetOpenOrders   = "get_open_orders"
	ToolGetBalance      = "get_balance"
	ToolPlaceOrder      = "place_order"
	ToolCancelOrder     = "cancel_order"
	ToolCancelAllOrders = "cancel_all_orders"
)

// ToolNames lists every dispatchable tool in a stable order.
func ToolNames() []string {
	return []string{
		ToolGetInstruments,
		ToolGetTicker,
		ToolGetOrderbook,
		ToolGetPositions,
		ToolGetOpenOrders,
		ToolGetBalance,
		ToolPlaceOrder,
		ToolCancelOrder,
		ToolCancelAllOrders,
	}
}

// Dispatch routes a named tool call with raw JSON input to its
// implementation. Unknown names and malformed input fail as
// validation errors before any signing or network work.
func (s *TradingService) Dispatch(ctx context.Context, name string, input json.RawMessage) (result any, err error) {
	defer func() {
		status := "success"
		if err != nil {
			status = "failed"
		}
		metrics.ToolCallsTotal.WithLabelValues(name, status).Inc()
	}()

	if len(input) == 0 {
		input = json.RawMessage("{}")
	}

	switch name {
	case ToolGetInstruments:
		var req model.GetInstrumentsRequest
		if err := bindInput(input, &req); err != nil {
			return nil, err
		}
		return s.GetInstruments(ctx, req)
	case ToolGetTicker:
		var req model.GetTickerRequest
		if err := bindInput(input, &req); err != nil {
			return nil, err
		}
		return s.GetTicker(ctx, req)
	case ToolGetOrderbook:
		var req model.GetOrderbookRequest
		if err := bindInput(input, &req); err != nil {
			return nil, err
		}
		return s.GetOrderbook(ctx, req)
	case ToolGetPositions:
		return s.GetPositions(ctx)
	case ToolGetOpenOrders:
		return s.GetOpenOrders(ctx)
	case ToolGetBalance:
		return s.GetBalance(ctx)
	case ToolPlaceOrder:
		var req model.PlaceOrderRequest
		if err := bindInput(input, &req); err != nil {
			return nil, err
		}
		return s.PlaceOrder(ctx, req)
	case ToolCancelOrder:
		var req model.CancelOrderRequest
		if err := bindInput(input, &req); err != nil {
			return nil, err
		}
		if req.OrderID == "" {
			return nil, apperrors.NewValidation("order_id is required")
		}
		return s.CancelOrder(ctx, req)
	case ToolCancelAllOrders:
		var req model.CancelAllRequest
		if err := bindInput(input, &req); err != nil {
			return nil, err
		}
		return s.CancelAllOrders(ctx, req)
	default:
		return nil, apperrors.New(apperrors.ErrNotFound, fmt.Sprintf("unknown tool %q", name), nil)
	}
}

func bindInput(input json.RawMessage, dst any) error {
	if err := json.Unmarshal(input, dst); err != nil {
		return apperrors.NewValidation(fmt.Sprintf("malformed tool input: %v", err))
	}
	return nil
}
