package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GoDerive/derivegate/internal/codec"
	"github.com/GoDerive/derivegate/internal/config"
	"github.com/GoDerive/derivegate/internal/derive"
	"github.com/GoDerive/derivegate/internal/handler"
	"github.com/GoDerive/derivegate/internal/manager"
	"github.com/GoDerive/derivegate/internal/middleware"
	"github.com/GoDerive/derivegate/internal/pkg/logger"
	"github.com/GoDerive/derivegate/internal/service"
	"github.com/GoDerive/derivegate/internal/signer"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.Init(cfg.Log.Level)

	// 2. Credential boundary: read once, validate, fail fast.
	if err := cfg.Credentials.Validate(); err != nil {
		log.Fatalf("Credential check failed: %v", err)
	}

	// 3. Initialize Core Components
	sig, err := signer.NewSigner(cfg.Credentials.SessionKey)
	if err != nil {
		log.Fatalf("Failed to initialize signer: %v", err)
	}

	table, err := codec.NewProtocolTable(cfg.Protocol)
	if err != nil {
		log.Fatalf("Protocol constants check failed: %v", err)
	}

	maxFee, err := decimal.NewFromString(cfg.Order.MaxFee)
	if err != nil {
		log.Fatalf("Invalid order.max_fee: %v", err)
	}
	cdc := codec.New(table, maxFee, time.Duration(cfg.Order.SignatureExpirySeconds)*time.Second)

	client := derive.NewClient(
		cfg.Derive.RestURL,
		time.Duration(cfg.Derive.TimeoutSeconds)*time.Second,
		derive.WithRateLimit(cfg.Derive.RateLimit, cfg.Derive.RateBurst),
	)

	session := manager.NewSessionManager(sig, client, cfg.Credentials.WalletAddress, cfg.Credentials.SubaccountID)
	nonces := manager.NewNonceManager()

	tradingSvc := service.NewTradingService(client, session, nonces, sig, cdc)
	toolHandler := handler.NewToolHandler(tradingSvc)

	logger.Info("derivegate initialized",
		"network", cfg.Derive.Network,
		"wallet", cfg.Credentials.WalletAddress,
		"subaccount", cfg.Credentials.SubaccountID,
		"signer", sig.Address().Hex(),
		"protocol_schema", table.SchemaVersion)

	// 4. Setup Router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.MetricsMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "service": "derivegate"})
	})

	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	v1 := r.Group("/v1")
	{
		// Generic tool dispatch for agent shims
		v1.GET("/tools", toolHandler.ListTools)
		v1.POST("/tools/:name", toolHandler.Dispatch)

		// Market data (public)
		v1.GET("/instruments", toolHandler.GetInstruments)
		v1.GET("/instruments/:instrument/ticker", toolHandler.GetTicker)
		v1.GET("/instruments/:instrument/orderbook", toolHandler.GetOrderbook)

		// Account (authenticated)
		v1.GET("/positions", toolHandler.GetPositions)
		v1.GET("/orders/open", toolHandler.GetOpenOrders)
		v1.GET("/balance", toolHandler.GetBalance)

		// Trading (authenticated + signed)
		v1.POST("/orders", toolHandler.PlaceOrder)
		v1.DELETE("/orders/:id", toolHandler.CancelOrder)
		v1.DELETE("/orders", toolHandler.CancelAll)
	}

	// 5. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	go func() {
		logger.Info("derivegate started", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server listen failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown: ", err)
	}

	// Drop the session secret before exit.
	cfg.Credentials.Zero()
	logger.Info("server exiting")
}
