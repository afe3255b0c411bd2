package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/GoDerive/derivegate/internal/model"
	"github.com/GoDerive/derivegate/internal/pkg/apperrors"
	"github.com/GoDerive/derivegate/internal/service"
	"github.com/gin-gonic/gin"
)

// ToolHandler maps HTTP routes onto the tool dispatcher. Market-data
// tools bind query parameters; trading tools bind JSON bodies.
type ToolHandler struct {
	svc *service.TradingService
}

func NewToolHandler(svc *service.TradingService) *ToolHandler {
	return &ToolHandler{svc: svc}
}

// Dispatch is the generic tool entry point: POST /tools/:name with the
// tool's JSON input as the body.
func (h *ToolHandler) Dispatch(c *gin.Context) {
	name := c.Param("name")

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.Error(apperrors.NewValidation("unreadable request body"))
		return
	}

	result, err := h.svc.Dispatch(c.Request.Context(), name, json.RawMessage(body))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ListTools returns the dispatchable tool names.
func (h *ToolHandler) ListTools(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tools": service.ToolNames()})
}

func (h *ToolHandler) GetInstruments(c *gin.Context) {
	var req model.GetInstrumentsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.Error(apperrors.NewValidation(err.Error()))
		return
	}

	resp, err := h.svc.GetInstruments(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ToolHandler) GetTicker(c *gin.Context) {
	req := model.GetTickerRequest{InstrumentName: c.Param("instrument")}

	resp, err := h.svc.GetTicker(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ToolHandler) GetOrderbook(c *gin.Context) {
	var req model.GetOrderbookRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.Error(apperrors.NewValidation(err.Error()))
		return
	}
	req.InstrumentName = c.Param("instrument")

	resp, err := h.svc.GetOrderbook(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ToolHandler) GetPositions(c *gin.Context) {
	resp, err := h.svc.GetPositions(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ToolHandler) GetOpenOrders(c *gin.Context) {
	resp, err := h.svc.GetOpenOrders(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ToolHandler) GetBalance(c *gin.Context) {
	resp, err := h.svc.GetBalance(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ToolHandler) PlaceOrder(c *gin.Context) {
	var req model.PlaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewValidation(err.Error()))
		return
	}

	resp, err := h.svc.PlaceOrder(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ToolHandler) CancelOrder(c *gin.Context) {
	orderID := c.Param("id")
	if orderID == "" {
		c.Error(apperrors.NewValidation("order id is required"))
		return
	}

	resp, err := h.svc.CancelOrder(c.Request.Context(), model.CancelOrderRequest{OrderID: orderID})
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ToolHandler) CancelAll(c *gin.Context) {
	req := model.CancelAllRequest{InstrumentName: c.Query("instrument_name")}

	resp, err := h.svc.CancelAllOrders(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
