// Command inspector probes exchange connectivity: it lists a few
// instruments over REST and optionally watches live tickers over the
// websocket stream.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GoDerive/derivegate/internal/config"
	"github.com/GoDerive/derivegate/internal/derive"
	"github.com/GoDerive/derivegate/internal/manager"
	"github.com/GoDerive/derivegate/internal/market"
	"github.com/GoDerive/derivegate/internal/model"
	"github.com/GoDerive/derivegate/internal/service"
	"github.com/GoDerive/derivegate/internal/signer"
)

func main() {
	currency := flag.String("currency", "ETH", "base currency to list")
	kind := flag.String("kind", "option", "instrument kind: option, perp or spot")
	watch := flag.String("watch", "", "instrument name to watch over the websocket stream")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	client := derive.NewClient(cfg.Derive.RestURL, time.Duration(cfg.Derive.TimeoutSeconds)*time.Second)

	// The inspector only exercises the public path, so credentials are
	// optional: without them the service still serves market data.
	var session *manager.SessionManager
	if cfg.Credentials.Validate() == nil {
		sig, err := signer.NewSigner(cfg.Credentials.SessionKey)
		if err != nil {
			log.Fatalf("init signer: %v", err)
		}
		session = manager.NewSessionManager(sig, client, cfg.Credentials.WalletAddress, cfg.Credentials.SubaccountID)
	}

	svc := service.NewTradingService(client, session, manager.NewNonceManager(), nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	fmt.Printf("--- %s %s instruments (%s) ---\n", *currency, *kind, cfg.Derive.Network)
	resp, err := svc.GetInstruments(ctx, model.GetInstrumentsRequest{Currency: *currency, Kind: *kind})
	if err != nil {
		log.Fatalf("get instruments: %v", err)
	}
	for i, inst := range resp.Instruments {
		if i >= 10 {
			fmt.Printf("... and %d more\n", resp.Count-10)
			break
		}
		fmt.Printf("%-30s tick=%s min=%s\n", inst.InstrumentName, inst.TickSize, inst.MinimumAmount)
	}

	if *watch == "" {
		return
	}

	fmt.Printf("\n--- watching %s (ctrl-c to stop) ---\n", *watch)
	stream := market.NewTickerStream(cfg.Derive.WsURL, func(u market.TickerUpdate) {
		fmt.Printf("%s bid=%s ask=%s mark=%s\n", u.InstrumentName, u.BestBidPrice, u.BestAskPrice, u.MarkPrice)
	})
	stream.Subscribe([]string{*watch})
	stream.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	stream.Stop()
}
