package handler

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/GoDerive/derivegate/internal/codec"
	"github.com/GoDerive/derivegate/internal/config"
	"github.com/GoDerive/derivegate/internal/derive"
	"github.com/GoDerive/derivegate/internal/manager"
	"github.com/GoDerive/derivegate/internal/middleware"
	"github.com/GoDerive/derivegate/internal/service"
	"github.com/GoDerive/derivegate/internal/signer"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeExchange serves the minimal scripted responses the routed tools
// need for a round trip.
func fakeExchange(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/public/get_instruments":
			w.Write([]byte(`{"result":[{"instrument_name":"ETH-PERP","base_currency":"ETH","quote_currency":"USDC","instrument_type":"perp","is_active":true,"tick_size":"0.1","minimum_amount":"0.01","amount_step":"0.01"}]}`))
		case "/public/get_ticker":
			w.Write([]byte(`{"result":{"instrument_name":"ETH-PERP","best_bid_price":"2999.5","best_ask_price":"3000.5","mark_price":"3000","tick_size":"0.1","amount_step":"0.01","base_asset_address":"0xAf65752C4643E25C02F693f9D4FE19cF23a095E3","base_asset_sub_id":"0"}}`))
		case "/private/get_subaccount":
			w.Write([]byte(`{"result":{"subaccount_id":4242}}`))
		case "/private/order":
			w.Write([]byte(`{"result":{"order":{"order_id":"ord-7","instrument_name":"ETH-PERP","direction":"buy","order_type":"limit","order_status":"open","amount":"1","filled_amount":"0","limit_price":"3000","time_in_force":"gtc"}}}`))
		case "/private/get_positions":
			w.Write([]byte(`{"result":{"positions":[]}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":{"code":404,"message":"unknown endpoint"}}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	srv := fakeExchange(t)

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
	session := manager.NewSessionManager(sig, client, "0x1111111111111111111111111111111111111111", 4242)
	cdc := codec.New(table, decimal.NewFromInt(1000), 10*time.Minute)
	svc := service.NewTradingService(client, session, manager.NewNonceManager(), sig, cdc)
	h := NewToolHandler(svc)

	router := gin.New()
	router.Use(middleware.ErrorHandler())

	v1 := router.Group("/api/v1")
	v1.GET("/tools", h.ListTools)
	v1.POST("/tools/:name", h.Dispatch)
	v1.GET("/instruments", h.GetInstruments)
	v1.GET("/instruments/:instrument/ticker", h.GetTicker)
	v1.GET("/instruments/:instrument/orderbook", h.GetOrderbook)
	v1.GET("/positions", h.GetPositions)
	v1.POST("/orders", h.PlaceOrder)
	v1.DELETE("/orders/:id", h.CancelOrder)
	return router
}

func TestListTools(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/tools", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Tools []string `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Tools, 9)
	assert.Contains(t, body.Tools, "place_order")
}

func TestDispatchRoute(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tools/get_ticker",
		strings.NewReader(`{"instrument_name":"ETH-PERP"}`))
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"instrument_name":"ETH-PERP"`)
}

func TestDispatchRoute_UnknownTool(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tools/rm_rf", strings.NewReader(`{}`))
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "NOT_FOUND", body.Code)
}

func TestGetInstrumentsRoute(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/instruments?currency=ETH&kind=perp", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ETH-PERP"`)
}

func TestPlaceOrderRoute_ValidationErrorShape(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders",
		strings.NewReader(`{"instrument_name":"ETH-PERP","side":"hold","amount":"1","price":"3000"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var body struct {
		Code       string `json:"code"`
		Message    string `json:"message"`
		Suggestion string `json:"suggestion"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "VALIDATION_ERROR", body.Code)
	assert.Contains(t, body.Message, "side")
}

func TestPlaceOrderRoute_Success(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders",
		strings.NewReader(`{"instrument_name":"ETH-PERP","side":"buy","price":"3000","amount":"1"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ord-7"`)
}

func TestCancelOrderRoute_ExchangeReject(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v1/orders/ord-404", nil))

	// The scripted exchange rejects the cancel; the structured
	// rejection comes back in the stable error shape.
	assert.Equal(t, http.StatusBadRequest, w.Code)
	var body struct {
		Code         string `json:"code"`
		ExchangeCode int64  `json:"exchange_code"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "VALIDATION_REJECTED", body.Code)
	assert.Equal(t, int64(404), body.ExchangeCode)
}
