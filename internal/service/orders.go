package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/GoDerive/derivegate/internal/codec"
	"github.com/GoDerive/derivegate/internal/derive"
	"github.com/GoDerive/derivegate/internal/model"
	"github.com/GoDerive/derivegate/internal/pkg/apperrors"
	"github.com/GoDerive/derivegate/internal/pkg/logger"
	"github.com/GoDerive/derivegate/internal/pkg/metrics"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// PlaceOrder validates the request, encodes and signs a trade action,
// and submits it. Validation failures never reach the signer or the
// network.
func (s *TradingService) PlaceOrder(ctx context.Context, req model.PlaceOrderRequest) (*model.OrderConfirmation, error) {
	params, err := orderParamsFromRequest(req)
	if err != nil {
		return nil, err
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	ticker, err := s.fetchTicker(ctx, params.InstrumentName)
	if err != nil {
		return nil, err
	}
	inst, err := instrumentInfo(ticker)
	if err != nil {
		return nil, err
	}

	price := params.Price
	if params.OrderType == codec.OrderTypeMarket {
		price, err = marketPrice(ticker, params.Side)
		if err != nil {
			return nil, err
		}
	}

	nonce := s.nonces.Next()
	action, _, err := s.codec.EncodeOrder(params, price, inst,
		s.session.SubaccountID(), common.HexToAddress(s.session.WalletAddress()), s.signer.Address(), nonce)
	if err != nil {
		return nil, err
	}

	signature, err := s.signer.Sign(action.Digest(s.codec.Table()))
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"instrument_name":      params.InstrumentName,
		"direction":            params.Side,
		"order_type":           params.OrderType,
		"mmp":                  false,
		"time_in_force":        params.TimeInForce,
		"reduce_only":          params.ReduceOnly,
		"post_only":            params.PostOnly,
		"subaccount_id":        action.SubaccountID,
		"nonce":                action.Nonce,
		"signer":               action.Signer.Hex(),
		"signature_expiry_sec": action.ExpirySec,
		"signature":            signature,
		"limit_price":          price.String(),
		"amount":               params.Amount.String(),
		"max_fee":              s.codec.MaxFee().String(),
	}
	if params.Label != "" {
		payload["label"] = params.Label
	}

	logger.Info("placing order",
		"instrument", params.InstrumentName,
		"side", params.Side,
		"type", params.OrderType,
		"amount", params.Amount.String(),
		"price", price.String(),
		"nonce", nonce)

	raw, err := s.postPrivate(ctx, "/private/order", payload)
	if err != nil {
		metrics.OrdersTotal.WithLabelValues("failed", params.Side).Inc()
		return nil, err
	}

	var result derive.OrderResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, apperrors.New(apperrors.ErrNetwork, "decode order result", err)
	}

	metrics.OrdersTotal.WithLabelValues("success", params.Side).Inc()
	return &model.OrderConfirmation{
		Status: "success",
		Order:  orderSummary(result.Order),
	}, nil
}

// CancelOrder cancels one open order by id.
func (s *TradingService) CancelOrder(ctx context.Context, req model.CancelOrderRequest) (*model.CancelConfirmation, error) {
	payload, err := s.codec.EncodeCancel(s.session.SubaccountID(), req.OrderID)
	if err != nil {
		return nil, err
	}

	if _, err := s.postPrivate(ctx, "/private/cancel", payload); err != nil {
		return nil, err
	}

	logger.Info("order cancelled", "order_id", req.OrderID)
	return &model.CancelConfirmation{Status: "success", OrderID: req.OrderID}, nil
}

// CancelAllOrders cancels every open order, optionally scoped to one
// instrument. One cancel-all payload goes out, never N singles.
func (s *TradingService) CancelAllOrders(ctx context.Context, req model.CancelAllRequest) (*model.CancelAllConfirmation, error) {
	payload := s.codec.EncodeCancelAll(s.session.SubaccountID(), req.InstrumentName)

	raw, err := s.postPrivate(ctx, "/private/cancel_all", payload)
	if err != nil {
		return nil, err
	}

	// The exchange returns either "ok" or a detail object.
	cancelled := 0
	var result derive.CancelAllResult
	if err := json.Unmarshal(raw, &result); err == nil {
		cancelled = result.CancelledOrders
	}

	logger.Info("cancel all submitted", "instrument", req.InstrumentName, "cancelled", cancelled)
	return &model.CancelAllConfirmation{Status: "success", Cancelled: cancelled}, nil
}

// orderParamsFromRequest parses the wire DTO into domain params,
// applying limit/gtc defaults the way callers expect.
func orderParamsFromRequest(req model.PlaceOrderRequest) (*codec.OrderParams, error) {
	params := &codec.OrderParams{
		InstrumentName: req.InstrumentName,
		Side:           req.Side,
		OrderType:      req.OrderType,
		TimeInForce:    req.TimeInForce,
		ReduceOnly:     req.ReduceOnly,
		PostOnly:       req.PostOnly,
		Label:          req.Label,
		ExpirySec:      req.ExpirySec,
	}
	if params.OrderType == "" {
		params.OrderType = codec.OrderTypeLimit
	}
	if params.TimeInForce == "" {
		params.TimeInForce = codec.TifGTC
	}

	if req.Amount == "" {
		return nil, apperrors.NewValidation("amount is required")
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return nil, apperrors.NewValidation(fmt.Sprintf("unparseable amount %q", req.Amount))
	}
	params.Amount = amount

	if req.Price != "" {
		price, err := decimal.NewFromString(req.Price)
		if err != nil {
			return nil, apperrors.NewValidation(fmt.Sprintf("unparseable price %q", req.Price))
		}
		params.Price = price
	}
	return params, nil
}

// marketPrice resolves the worst-case signed price for a market order:
// the opposing best quote, falling back to mark price on an empty
// book.
func marketPrice(ticker *derive.Ticker, side string) (decimal.Decimal, error) {
	quote := ticker.BestAskPrice
	if side == codec.SideSell {
		quote = ticker.BestBidPrice
	}

	price, err := decimal.NewFromString(quote)
	if err != nil || price.IsZero() {
		price, err = decimal.NewFromString(ticker.MarkPrice)
	}
	if err != nil || !price.IsPositive() {
		return decimal.Zero, apperrors.NewValidation(
			fmt.Sprintf("no market price available for %s", ticker.InstrumentName))
	}
	return price, nil
}
