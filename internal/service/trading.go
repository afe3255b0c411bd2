package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/url"
	"strconv"

	"github.com/GoDerive/derivegate/internal/codec"
	"github.com/GoDerive/derivegate/internal/derive"
	"github.com/GoDerive/derivegate/internal/manager"
	"github.com/GoDerive/derivegate/internal/model"
	"github.com/GoDerive/derivegate/internal/pkg/apperrors"
	"github.com/GoDerive/derivegate/internal/signer"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Exchange is the REST client surface the dispatcher consumes.
type Exchange interface {
	GetPublic(ctx context.Context, path string, query url.Values) (json.RawMessage, error)
	PostAuthenticated(ctx context.Context, path string, body any, headers map[string]string) (json.RawMessage, error)
}

// TradingService is the tool dispatcher: one entry point per exposed
// capability. Public tools never touch the signer or session manager;
// trading tools route through codec and signer before the REST client.
// It is the single translation point to the stable error shape - no
// raw transport error escapes unclassified.
type TradingService struct {
	client  Exchange
	session *manager.SessionManager
	nonces  *manager.NonceManager
	signer  *signer.Signer
	codec   *codec.Codec
}

func NewTradingService(client Exchange, session *manager.SessionManager, nonces *manager.NonceManager, sig *signer.Signer, cdc *codec.Codec) *TradingService {
	return &TradingService{
		client:  client,
		session: session,
		nonces:  nonces,
		signer:  sig,
		codec:   cdc,
	}
}

// --- Public tools (no auth) ---

func (s *TradingService) GetInstruments(ctx context.Context, req model.GetInstrumentsRequest) (*model.InstrumentsResponse, error) {
	if req.Currency == "" {
		req.Currency = "ETH"
	}
	if req.Kind == "" {
		req.Kind = "option"
	}
	kind, err := codec.KindConstant(req.Kind)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("currency", req.Currency)
	query.Set("instrument_type", kind)
	query.Set("expired", "false")

	raw, err := s.client.GetPublic(ctx, "/public/get_instruments", query)
	if err != nil {
		return nil, err
	}

	var instruments []derive.Instrument
	if err := json.Unmarshal(raw, &instruments); err != nil {
		return nil, apperrors.New(apperrors.ErrNetwork, "decode instruments result", err)
	}

	resp := &model.InstrumentsResponse{
		Count:       len(instruments),
		Currency:    req.Currency,
		Kind:        req.Kind,
		Instruments: make([]model.InstrumentSummary, 0, len(instruments)),
	}
	for _, inst := range instruments {
		resp.Instruments = append(resp.Instruments, model.InstrumentSummary{
			InstrumentName: inst.InstrumentName,
			BaseCurrency:   inst.BaseCurrency,
			QuoteCurrency:  inst.QuoteCurrency,
			Kind:           inst.InstrumentType,
			IsActive:       inst.IsActive,
			TickSize:       inst.TickSize,
			MinimumAmount:  inst.MinimumAmount,
			AmountStep:     inst.AmountStep,
		})
	}
	return resp, nil
}

func (s *TradingService) GetTicker(ctx context.Context, req model.GetTickerRequest) (*model.TickerResponse, error) {
	if req.InstrumentName == "" {
		return nil, apperrors.NewValidation("instrument_name is required")
	}
	ticker, err := s.fetchTicker(ctx, req.InstrumentName)
	if err != nil {
		return nil, err
	}
	return &model.TickerResponse{
		InstrumentName: ticker.InstrumentName,
		BestBidPrice:   ticker.BestBidPrice,
		BestBidAmount:  ticker.BestBidAmount,
		BestAskPrice:   ticker.BestAskPrice,
		BestAskAmount:  ticker.BestAskAmount,
		MarkPrice:      ticker.MarkPrice,
		IndexPrice:     ticker.IndexPrice,
		TickSize:       ticker.TickSize,
		AmountStep:     ticker.AmountStep,
	}, nil
}

func (s *TradingService) GetOrderbook(ctx context.Context, req model.GetOrderbookRequest) (*model.OrderbookResponse, error) {
	if req.InstrumentName == "" {
		return nil, apperrors.NewValidation("instrument_name is required")
	}
	if req.Depth < 0 {
		return nil, apperrors.NewValidation("depth must not be negative")
	}
	if req.Depth == 0 {
		req.Depth = 10
	}

	query := url.Values{}
	query.Set("instrument_name", req.InstrumentName)
	query.Set("depth", strconv.Itoa(req.Depth))

	raw, err := s.client.GetPublic(ctx, "/public/get_order_book", query)
	if err != nil {
		return nil, err
	}

	var book derive.Orderbook
	if err := json.Unmarshal(raw, &book); err != nil {
		return nil, apperrors.New(apperrors.ErrNetwork, "decode orderbook result", err)
	}

	resp := &model.OrderbookResponse{
		InstrumentName: req.InstrumentName,
		Bids:           make([]model.PriceLevel, 0, len(book.Bids)),
		Asks:           make([]model.PriceLevel, 0, len(book.Asks)),
		Timestamp:      book.Timestamp,
	}
	for _, level := range book.Bids {
		resp.Bids = append(resp.Bids, model.PriceLevel{Price: level[0], Amount: level[1]})
	}
	for _, level := range book.Asks {
		resp.Asks = append(resp.Asks, model.PriceLevel{Price: level[0], Amount: level[1]})
	}
	return resp, nil
}

// --- Authenticated read tools ---

func (s *TradingService) GetPositions(ctx context.Context) (*model.PositionsResponse, error) {
	raw, err := s.postPrivate(ctx, "/private/get_positions", s.subaccountBody())
	if err != nil {
		return nil, err
	}

	var result derive.PositionsResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, apperrors.New(apperrors.ErrNetwork, "decode positions result", err)
	}

	resp := &model.PositionsResponse{Positions: make([]model.PositionSummary, 0, len(result.Positions))}
	for _, p := range result.Positions {
		amount, err := decimal.NewFromString(p.Amount)
		if err != nil {
			return nil, apperrors.New(apperrors.ErrNetwork,
				fmt.Sprintf("unparseable position amount %q for %s", p.Amount, p.InstrumentName), err)
		}
		side := "long"
		if amount.IsNegative() {
			side = "short"
		}
		resp.Positions = append(resp.Positions, model.PositionSummary{
			InstrumentName: p.InstrumentName,
			Side:           side,
			Amount:         amount.Abs().String(),
			AveragePrice:   p.AveragePrice,
			UnrealizedPnl:  p.UnrealizedPnl,
			RealizedPnl:    p.RealizedPnl,
		})
	}
	return resp, nil
}

func (s *TradingService) GetOpenOrders(ctx context.Context) (*model.OrdersResponse, error) {
	raw, err := s.postPrivate(ctx, "/private/get_open_orders", s.subaccountBody())
	if err != nil {
		return nil, err
	}

	var result derive.OrdersResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, apperrors.New(apperrors.ErrNetwork, "decode open orders result", err)
	}

	resp := &model.OrdersResponse{Orders: make([]model.OrderSummary, 0, len(result.Orders))}
	for _, o := range result.Orders {
		resp.Orders = append(resp.Orders, orderSummary(o))
	}
	return resp, nil
}

func (s *TradingService) GetBalance(ctx context.Context) (*model.BalanceResponse, error) {
	raw, err := s.postPrivate(ctx, "/private/get_collaterals", s.subaccountBody())
	if err != nil {
		return nil, err
	}

	var result derive.CollateralsResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, apperrors.New(apperrors.ErrNetwork, "decode collaterals result", err)
	}

	resp := &model.BalanceResponse{Collaterals: make([]model.BalanceEntry, 0, len(result.Collaterals))}
	for _, c := range result.Collaterals {
		resp.Collaterals = append(resp.Collaterals, model.BalanceEntry{
			Asset:        c.AssetName,
			Amount:       c.Amount,
			CurrentValue: c.CurrentValue,
		})
	}
	return resp, nil
}

// --- Shared plumbing ---

func (s *TradingService) subaccountBody() map[string]any {
	return map[string]any{"subaccount_id": s.session.SubaccountID()}
}

// postPrivate runs one authenticated call with the single-retry auth
// policy: an auth rejection invalidates the session and triggers
// exactly one re-authentication; a second consecutive rejection is
// fatal for the call, never retried further.
func (s *TradingService) postPrivate(ctx context.Context, path string, body any) (json.RawMessage, error) {
	headers, err := s.session.Headers(ctx)
	if err != nil {
		return nil, err
	}

	raw, err := s.client.PostAuthenticated(ctx, path, body, headers)
	if err == nil || !apperrors.IsType(err, apperrors.ErrAuthRejected) {
		return raw, err
	}

	s.session.Invalidate()
	headers, err = s.session.Headers(ctx)
	if err != nil {
		return nil, err
	}

	raw, err = s.client.PostAuthenticated(ctx, path, body, headers)
	if err != nil && apperrors.IsType(err, apperrors.ErrAuthRejected) {
		return nil, apperrors.New(apperrors.ErrAuthFailed,
			"exchange rejected authentication after re-authenticating", err)
	}
	return raw, err
}

// fetchTicker pulls the current ticker. Trading calls re-fetch per
// call rather than caching, trading latency for freshness of the
// asset identity and quotes.
func (s *TradingService) fetchTicker(ctx context.Context, instrumentName string) (*derive.Ticker, error) {
	query := url.Values{}
	query.Set("instrument_name", instrumentName)

	raw, err := s.client.GetPublic(ctx, "/public/get_ticker", query)
	if err != nil {
		return nil, err
	}

	var ticker derive.Ticker
	if err := json.Unmarshal(raw, &ticker); err != nil {
		return nil, apperrors.New(apperrors.ErrNetwork, "decode ticker result", err)
	}
	if ticker.InstrumentName == "" {
		return nil, apperrors.New(apperrors.ErrNotFound,
			fmt.Sprintf("instrument %s not found", instrumentName), nil)
	}
	return &ticker, nil
}

// instrumentInfo extracts the protocol identity trade signing needs.
func instrumentInfo(ticker *derive.Ticker) (codec.InstrumentInfo, error) {
	if !common.IsHexAddress(ticker.BaseAssetAddress) {
		return codec.InstrumentInfo{}, apperrors.NewProtocolMismatch(
			fmt.Sprintf("ticker for %s carries no base asset address", ticker.InstrumentName))
	}
	subID := new(big.Int)
	if ticker.BaseAssetSubID != "" {
		if _, ok := subID.SetString(ticker.BaseAssetSubID, 0); !ok {
			return codec.InstrumentInfo{}, apperrors.NewProtocolMismatch(
				fmt.Sprintf("unparseable base asset sub id %q", ticker.BaseAssetSubID))
		}
	}
	return codec.InstrumentInfo{
		AssetAddress: common.HexToAddress(ticker.BaseAssetAddress),
		SubID:        subID,
	}, nil
}

func orderSummary(o derive.Order) model.OrderSummary {
	return model.OrderSummary{
		OrderID:        o.OrderID,
		InstrumentName: o.InstrumentName,
		Direction:      o.Direction,
		OrderType:      o.OrderType,
		Status:         o.OrderStatus,
		Amount:         o.Amount,
		FilledAmount:   o.FilledAmount,
		LimitPrice:     o.LimitPrice,
		TimeInForce:    o.TimeInForce,
		Label:          o.Label,
	}
}
