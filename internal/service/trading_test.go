package service

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/GoDerive/derivegate/internal/codec"
	"github.com/GoDerive/derivegate/internal/config"
	"github.com/GoDerive/derivegate/internal/derive"
	"github.com/GoDerive/derivegate/internal/manager"
	"github.com/GoDerive/derivegate/internal/model"
	"github.com/GoDerive/derivegate/internal/pkg/apperrors"
	"github.com/GoDerive/derivegate/internal/signer"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testWallet     = "0x1111111111111111111111111111111111111111"
	testSubaccount = int64(4242)
	testAsset      = "0xAf65752C4643E25C02F693f9D4FE19cF23a095E3"
)

var testTickerJSON = `{
	"instrument_name": "ETH-PERP",
	"instrument_type": "perp",
	"is_active": true,
	"best_bid_price": "2999.5",
	"best_bid_amount": "10",
	"best_ask_price": "3000.5",
	"best_ask_amount": "8",
	"mark_price": "3000",
	"index_price": "3000.1",
	"tick_size": "0.1",
	"amount_step": "0.01",
	"base_asset_address": "` + testAsset + `",
	"base_asset_sub_id": "0"
}`

// stubExchange is a scripted exchange server recording every request.
type stubExchange struct {
	t *testing.T

	mu       sync.Mutex
	requests []stubRequest

	// remaining 401s served by private endpoints other than the
	// session verify call
	authFailures int
	// when set, the session verify call itself is rejected
	rejectVerify bool

	tickerJSON    string
	orderJSON     string
	positionsJSON string
}

type stubRequest struct {
	Method string
	Path   string
	Body   []byte
}

func (s *stubExchange) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	s.mu.Lock()
	s.requests = append(s.requests, stubRequest{Method: r.Method, Path: r.URL.Path, Body: body})
	failAuth := false
	if r.URL.Path == "/private/get_subaccount" {
		failAuth = s.rejectVerify
	} else if s.authFailures > 0 && strings.HasPrefix(r.URL.Path, "/private/") {
		s.authFailures--
		failAuth = true
	}
	s.mu.Unlock()

	if failAuth {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"code":-32000,"message":"invalid signature"}}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/public/get_instruments":
		w.Write([]byte(`{"result":[
			{"instrument_name":"ETH-20260925-3000-C","base_currency":"ETH","quote_currency":"USDC","instrument_type":"option","is_active":true,"tick_size":"0.1","minimum_amount":"0.1","amount_step":"0.1"},
			{"instrument_name":"ETH-20260925-3200-P","base_currency":"ETH","quote_currency":"USDC","instrument_type":"option","is_active":true,"tick_size":"0.1","minimum_amount":"0.1","amount_step":"0.1"}
		]}`))
	case "/public/get_ticker":
		ticker := s.tickerJSON
		if ticker == "" {
			ticker = testTickerJSON
		}
		w.Write([]byte(`{"result":` + ticker + `}`))
	case "/public/get_order_book":
		w.Write([]byte(`{"result":{"instrument_name":"ETH-PERP","bids":[["2999.5","10"],["2999","5"]],"asks":[["3000.5","8"]],"timestamp":1756600000000}}`))
	case "/private/get_subaccount":
		w.Write([]byte(`{"result":{"subaccount_id":4242}}`))
	case "/private/order":
		order := s.orderJSON
		if order == "" {
			order = `{"order_id":"ord-123","instrument_name":"ETH-PERP","direction":"buy","order_type":"limit","order_status":"open","amount":"1","filled_amount":"0","limit_price":"3000","time_in_force":"gtc"}`
		}
		w.Write([]byte(`{"result":{"order":` + order + `}}`))
	case "/private/cancel":
		w.Write([]byte(`{"result":{"order_id":"ord-123","order_status":"cancelled"}}`))
	case "/private/cancel_all":
		w.Write([]byte(`{"result":{"cancelled_orders":3}}`))
	case "/private/get_positions":
		positions := s.positionsJSON
		if positions == "" {
			positions = `[
				{"instrument_name":"ETH-PERP","amount":"2","average_price":"2900","unrealized_pnl":"200","realized_pnl":"0"},
				{"instrument_name":"BTC-PERP","amount":"-0.5","average_price":"65000","unrealized_pnl":"-120","realized_pnl":"30"}
			]`
		}
		w.Write([]byte(`{"result":{"positions":` + positions + `}}`))
	case "/private/get_open_orders":
		w.Write([]byte(`{"result":{"orders":[{"order_id":"ord-9","instrument_name":"ETH-PERP","direction":"sell","order_type":"limit","order_status":"open","amount":"1","filled_amount":"0","limit_price":"3100","time_in_force":"gtc"}]}}`))
	case "/private/get_collaterals":
		w.Write([]byte(`{"result":{"collaterals":[{"asset_name":"USDC","amount":"10000","current_value":"10000"}]}}`))
	default:
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"code":404,"message":"unknown endpoint"}}`))
	}
}

func (s *stubExchange) calls(path string) []stubRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []stubRequest
	for _, r := range s.requests {
		if r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

type testHarness struct {
	stub    *stubExchange
	service *TradingService
	signer  *signer.Signer
	table   *codec.ProtocolTable
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()

	stub := &stubExchange{t: t}
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	sig, err := signer.NewSigner("0x" + hex.EncodeToString(crypto.FromECDSA(key)))
	require.NoError(t, err)

	table, err := codec.NewProtocolTable(config.ProtocolConfig{
		SchemaVersion:      "v2",
		DomainSeparator:    "0xd96e5f90797da7ec8dc4e276260c7f3f87fedf68775fbe1ef116e996fc60441b",
		ActionTypehash:     "0x4d7a9f27c403ff9c0f19bce61d76d82f9aa29f8d6d4b0c5474607d9770d1af17",
		TradeModuleAddress: "0xB8D20c2B7a1Ad2EE33Bc50eF10876eD3035b5e7b",
	})
	require.NoError(t, err)

	client := derive.NewClient(srv.URL, 5*time.Second, derive.WithRateLimit(1000, 1000))
	session := manager.NewSessionManager(sig, client, testWallet, testSubaccount)
	cdc := codec.New(table, decimal.NewFromInt(1000), 10*time.Minute)

	return &testHarness{
		stub:    stub,
		service: NewTradingService(client, session, manager.NewNonceManager(), sig, cdc),
		signer:  sig,
		table:   table,
	}
}

func TestGetInstruments_Defaults(t *testing.T) {
	h := newHarness(t)

	resp, err := h.service.GetInstruments(context.Background(), model.GetInstrumentsRequest{})
	require.NoError(t, err)

	calls := h.stub.calls("/public/get_instruments")
	require.Len(t, calls, 1)
	assert.Equal(t, http.MethodGet, calls[0].Method)

	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, "ETH", resp.Currency)
	assert.Equal(t, "option", resp.Kind)
	require.Len(t, resp.Instruments, 2)
	assert.Equal(t, "ETH-20260925-3000-C", resp.Instruments[0].InstrumentName, "exchange order preserved")
	assert.Equal(t, "ETH-20260925-3200-P", resp.Instruments[1].InstrumentName)
	assert.Equal(t, "USDC", resp.Instruments[0].QuoteCurrency)
	assert.Equal(t, "0.1", resp.Instruments[0].TickSize)
}

func TestGetInstruments_RejectsUnknownKind(t *testing.T) {
	h := newHarness(t)

	_, err := h.service.GetInstruments(context.Background(), model.GetInstrumentsRequest{Kind: "future"})
	assert.True(t, apperrors.IsType(err, apperrors.ErrValidation))
	assert.Empty(t, h.stub.calls("/public/get_instruments"), "invalid input never reaches the exchange")
}

func TestGetTicker_NotFound(t *testing.T) {
	h := newHarness(t)
	h.stub.tickerJSON = `{}`

	_, err := h.service.GetTicker(context.Background(), model.GetTickerRequest{InstrumentName: "ETH-NOPE"})
	assert.True(t, apperrors.IsType(err, apperrors.ErrNotFound))
}

func TestGetOrderbook(t *testing.T) {
	h := newHarness(t)

	resp, err := h.service.GetOrderbook(context.Background(), model.GetOrderbookRequest{InstrumentName: "ETH-PERP"})
	require.NoError(t, err)
	require.Len(t, resp.Bids, 2)
	require.Len(t, resp.Asks, 1)
	assert.Equal(t, model.PriceLevel{Price: "2999.5", Amount: "10"}, resp.Bids[0])
	assert.Equal(t, int64(1756600000000), resp.Timestamp)
}

func TestGetPositions_SideFromSign(t *testing.T) {
	h := newHarness(t)

	resp, err := h.service.GetPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, resp.Positions, 2)
	assert.Equal(t, "long", resp.Positions[0].Side)
	assert.Equal(t, "2", resp.Positions[0].Amount)
	assert.Equal(t, "short", resp.Positions[1].Side)
	assert.Equal(t, "0.5", resp.Positions[1].Amount, "amount reported unsigned")
}

func TestGetPositions_UnparseableAmount(t *testing.T) {
	h := newHarness(t)
	h.stub.positionsJSON = `[{"instrument_name":"ETH-PERP","amount":"n/a"}]`

	_, err := h.service.GetPositions(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrNetwork), "malformed exchange data never becomes a zero position")
}

func TestGetBalance(t *testing.T) {
	h := newHarness(t)

	resp, err := h.service.GetBalance(context.Background())
	require.NoError(t, err)
	require.Len(t, resp.Collaterals, 1)
	assert.Equal(t, "USDC", resp.Collaterals[0].Asset)
	assert.Equal(t, "10000", resp.Collaterals[0].Amount)
}

func TestPlaceOrder_LimitOrderFlow(t *testing.T) {
	h := newHarness(t)

	resp, err := h.service.PlaceOrder(context.Background(), model.PlaceOrderRequest{
		InstrumentName: "ETH-PERP",
		Side:           "buy",
		OrderType:      "limit",
		Price:          "3000",
		Amount:         "1",
	})
	require.NoError(t, err)
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, "ord-123", resp.Order.OrderID)

	calls := h.stub.calls("/private/order")
	require.Len(t, calls, 1)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(calls[0].Body, &payload))
	assert.Equal(t, "ETH-PERP", payload["instrument_name"])
	assert.Equal(t, "buy", payload["direction"])
	assert.Equal(t, "limit", payload["order_type"])
	assert.Equal(t, "gtc", payload["time_in_force"], "time in force defaults to gtc")
	assert.Equal(t, "3000", payload["limit_price"])
	assert.Equal(t, "1", payload["amount"])
	assert.Equal(t, "1000", payload["max_fee"])
	assert.Equal(t, float64(testSubaccount), payload["subaccount_id"])
	assert.Equal(t, h.signer.Address().Hex(), payload["signer"])
	assert.Equal(t, false, payload["mmp"])

	signature, _ := payload["signature"].(string)
	assert.Len(t, signature, 132)

	// The signature must recover to the session key over the digest of
	// the exact action the payload describes.
	nonce := uint64(payload["nonce"].(float64))
	expiry := int64(payload["signature_expiry_sec"].(float64))

	trade := &codec.TradeData{
		Asset:       common.HexToAddress(testAsset),
		SubID:       big.NewInt(0),
		LimitPrice:  mustFixed(t, "3000"),
		Amount:      mustFixed(t, "1"),
		MaxFee:      mustFixed(t, "1000"),
		RecipientID: testSubaccount,
		IsBid:       true,
	}
	action := &codec.Action{
		SubaccountID: testSubaccount,
		Nonce:        nonce,
		Module:       h.table.TradeModule,
		Data:         trade.Encode(),
		ExpirySec:    expiry,
		Owner:        common.HexToAddress(testWallet),
		Signer:       h.signer.Address(),
	}

	sigBytes, err := hex.DecodeString(signature[2:])
	require.NoError(t, err)
	sigBytes[64] -= 27
	pub, err := crypto.SigToPub(action.Digest(h.table), sigBytes)
	require.NoError(t, err)
	assert.Equal(t, h.signer.Address(), crypto.PubkeyToAddress(*pub))
}

func TestPlaceOrder_MarketOrderUsesOpposingQuote(t *testing.T) {
	h := newHarness(t)

	_, err := h.service.PlaceOrder(context.Background(), model.PlaceOrderRequest{
		InstrumentName: "ETH-PERP",
		Side:           "buy",
		OrderType:      "market",
		Amount:         "1",
	})
	require.NoError(t, err)

	calls := h.stub.calls("/private/order")
	require.Len(t, calls, 1)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(calls[0].Body, &payload))
	assert.Equal(t, "3000.5", payload["limit_price"], "buy signs against the best ask")
	assert.Equal(t, "market", payload["order_type"])
}

func TestPlaceOrder_MarketOrderFallsBackToMark(t *testing.T) {
	h := newHarness(t)
	h.stub.tickerJSON = `{
		"instrument_name": "ETH-PERP",
		"best_bid_price": "0",
		"best_ask_price": "0",
		"mark_price": "3000",
		"base_asset_address": "` + testAsset + `",
		"base_asset_sub_id": "0"
	}`

	_, err := h.service.PlaceOrder(context.Background(), model.PlaceOrderRequest{
		InstrumentName: "ETH-PERP",
		Side:           "sell",
		OrderType:      "market",
		Amount:         "1",
	})
	require.NoError(t, err)

	calls := h.stub.calls("/private/order")
	require.Len(t, calls, 1)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(calls[0].Body, &payload))
	assert.Equal(t, "3000", payload["limit_price"], "empty book falls back to mark price")
}

func TestPlaceOrder_MarketOrderWithPriceRejected(t *testing.T) {
	h := newHarness(t)

	_, err := h.service.PlaceOrder(context.Background(), model.PlaceOrderRequest{
		InstrumentName: "ETH-PERP",
		Side:           "buy",
		OrderType:      "market",
		Price:          "3000",
		Amount:         "1",
	})
	assert.True(t, apperrors.IsType(err, apperrors.ErrValidation))
	assert.Empty(t, h.stub.requests, "rejected before any exchange traffic")
}

func TestPlaceOrder_DistinctNonces(t *testing.T) {
	h := newHarness(t)

	req := model.PlaceOrderRequest{
		InstrumentName: "ETH-PERP",
		Side:           "buy",
		Price:          "3000",
		Amount:         "1",
	}
	_, err := h.service.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	_, err = h.service.PlaceOrder(context.Background(), req)
	require.NoError(t, err)

	calls := h.stub.calls("/private/order")
	require.Len(t, calls, 2)

	var p1, p2 map[string]any
	require.NoError(t, json.Unmarshal(calls[0].Body, &p1))
	require.NoError(t, json.Unmarshal(calls[1].Body, &p2))
	assert.NotEqual(t, p1["nonce"], p2["nonce"])
	assert.NotEqual(t, p1["signature"], p2["signature"])
}

func TestPostPrivate_SingleReauthOnRejection(t *testing.T) {
	h := newHarness(t)
	h.stub.authFailures = 1

	resp, err := h.service.GetPositions(context.Background())
	require.NoError(t, err)
	assert.Len(t, resp.Positions, 2)

	assert.Len(t, h.stub.calls("/private/get_positions"), 2, "one rejection, one retry")
	assert.Len(t, h.stub.calls("/private/get_subaccount"), 2, "session verified once per auth")
}

func TestPostPrivate_PersistentRejectionIsAuthFailed(t *testing.T) {
	h := newHarness(t)
	h.stub.authFailures = 10

	_, err := h.service.GetPositions(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrAuthFailed))

	assert.Len(t, h.stub.calls("/private/get_positions"), 2, "exactly one retry, never more")
}

func TestPostPrivate_VerifyRejectionIsAuthFailed(t *testing.T) {
	h := newHarness(t)
	h.stub.rejectVerify = true

	_, err := h.service.GetPositions(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrAuthFailed))
	assert.Empty(t, h.stub.calls("/private/get_positions"), "no private call without a verified session")
}

func TestCancelOrder(t *testing.T) {
	h := newHarness(t)

	resp, err := h.service.CancelOrder(context.Background(), model.CancelOrderRequest{OrderID: "ord-123"})
	require.NoError(t, err)
	assert.Equal(t, "ord-123", resp.OrderID)

	calls := h.stub.calls("/private/cancel")
	require.Len(t, calls, 1)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(calls[0].Body, &payload))
	assert.Equal(t, "ord-123", payload["order_id"])
	assert.Equal(t, float64(testSubaccount), payload["subaccount_id"])
}

func TestCancelOrder_RequiresID(t *testing.T) {
	h := newHarness(t)

	_, err := h.service.CancelOrder(context.Background(), model.CancelOrderRequest{})
	assert.True(t, apperrors.IsType(err, apperrors.ErrValidation))
	assert.Empty(t, h.stub.requests)
}

func TestCancelAllOrders_SinglePayload(t *testing.T) {
	h := newHarness(t)

	resp, err := h.service.CancelAllOrders(context.Background(), model.CancelAllRequest{})
	require.NoError(t, err)
	assert.Equal(t, 3, resp.Cancelled)

	calls := h.stub.calls("/private/cancel_all")
	require.Len(t, calls, 1, "one cancel-all request, never per-order fanout")
	assert.Empty(t, h.stub.calls("/private/cancel"))
}

func TestGetOpenOrders(t *testing.T) {
	h := newHarness(t)

	resp, err := h.service.GetOpenOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, resp.Orders, 1)
	assert.Equal(t, "ord-9", resp.Orders[0].OrderID)
	assert.Equal(t, "sell", resp.Orders[0].Direction)
}

func mustFixed(t *testing.T, s string) *big.Int {
	t.Helper()
	v, err := codec.ToFixed(decimal.RequireFromString(s))
	require.NoError(t, err)
	return v
}
