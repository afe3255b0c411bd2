// Package market streams live ticker data over the exchange
// websocket. The gateway's tool path is HTTP-only; this stream backs
// the inspector's watch mode.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/GoDerive/derivegate/internal/pkg/logger"
	"github.com/gorilla/websocket"
)

const (
	ReconnBaseDelay = 1 * time.Second
	ReconnMaxDelay  = 30 * time.Second
	PingPeriod      = 15 * time.Second
)

// TickerUpdate is one ticker notification.
type TickerUpdate struct {
	InstrumentName string `json:"instrument_name"`
	BestBidPrice   string `json:"best_bid_price"`
	BestAskPrice   string `json:"best_ask_price"`
	MarkPrice      string `json:"mark_price"`
	IndexPrice     string `json:"index_price"`
	Timestamp      int64  `json:"timestamp"`
}

// TickerStream maintains a websocket subscription to ticker channels,
// reconnecting with capped backoff and resubscribing after each drop.
type TickerStream struct {
	url         string
	conn        *websocket.Conn
	mu          sync.RWMutex
	latest      map[string]TickerUpdate
	subs        []string
	onUpdate    func(TickerUpdate)
	ctx         context.Context
	cancel      context.CancelFunc
	isConnected bool
}

func NewTickerStream(url string, onUpdate func(TickerUpdate)) *TickerStream {
	ctx, cancel := context.WithCancel(context.Background())
	return &TickerStream{
		url:      url,
		latest:   make(map[string]TickerUpdate),
		onUpdate: onUpdate,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the connection loop in a background goroutine.
func (s *TickerStream) Start() {
	go s.runLoop()
}

func (s *TickerStream) Stop() {
	s.cancel()
	s.mu.Lock()
	if s.conn != nil {
		s.conn.Close()
	}
	s.mu.Unlock()
}

// Subscribe adds instruments to the subscription list and updates the
// connection if active.
func (s *TickerStream) Subscribe(instruments []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updates := false
	for _, name := range instruments {
		found := false
		for _, existing := range s.subs {
			if existing == name {
				found = true
				break
			}
		}
		if !found {
			s.subs = append(s.subs, name)
			updates = true
		}
	}

	if updates && s.isConnected {
		s.sendSubscribeLocked(instruments)
	}
}

// Latest returns the most recent update for an instrument.
func (s *TickerStream) Latest(instrument string) (TickerUpdate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.latest[instrument]
	return u, ok
}

func (s *TickerStream) runLoop() {
	delay := ReconnBaseDelay

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		if err := s.connect(); err != nil {
			logger.Error("ticker stream connect failed", "error", err, "retry_in", delay)
			time.Sleep(delay)
			delay *= 2
			if delay > ReconnMaxDelay {
				delay = ReconnMaxDelay
			}
			continue
		}

		delay = ReconnBaseDelay
		s.mu.Lock()
		s.isConnected = true
		allSubs := append([]string(nil), s.subs...)
		if len(allSubs) > 0 {
			s.sendSubscribeLocked(allSubs)
		}
		s.mu.Unlock()

		s.readLoop()

		s.mu.Lock()
		s.isConnected = false
		s.mu.Unlock()
	}
}

func (s *TickerStream) connect() error {
	conn, _, err := websocket.DefaultDialer.Dial(s.url, nil)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	readTimeout := PingPeriod + 10*time.Second
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	go func() {
		ticker := time.NewTicker(PingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.mu.Lock()
				if !s.isConnected || s.conn == nil {
					s.mu.Unlock()
					return
				}
				err := s.conn.WriteMessage(websocket.PingMessage, []byte{})
				s.mu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()

	return nil
}

// wsNotification is an incoming subscription message.
type wsNotification struct {
	Method string `json:"method"`
	Params struct {
		Channel string          `json:"channel"`
		Data    json.RawMessage `json:"data"`
	} `json:"params"`
}

func (s *TickerStream) readLoop() {
	defer s.conn.Close()

	readTimeout := PingPeriod + 10*time.Second

	for {
		s.conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			logger.Error("ticker stream read error", "error", err)
			return
		}

		var note wsNotification
		if err := json.Unmarshal(message, &note); err != nil {
			continue
		}
		if note.Method != "subscription" {
			continue
		}

		var payload struct {
			InstrumentTicker TickerUpdate `json:"instrument_ticker"`
			Timestamp        int64        `json:"timestamp"`
		}
		if err := json.Unmarshal(note.Params.Data, &payload); err != nil {
			continue
		}
		update := payload.InstrumentTicker
		if update.InstrumentName == "" {
			continue
		}
		update.Timestamp = payload.Timestamp

		s.mu.Lock()
		s.latest[update.InstrumentName] = update
		s.mu.Unlock()

		if s.onUpdate != nil {
			s.onUpdate(update)
		}
	}
}

// sendSubscribeLocked sends a subscribe frame. Caller holds the mutex.
func (s *TickerStream) sendSubscribeLocked(instruments []string) error {
	if s.conn == nil {
		return fmt.Errorf("no connection")
	}

	channels := make([]string, 0, len(instruments))
	for _, name := range instruments {
		channels = append(channels, fmt.Sprintf("ticker.%s.1000", name))
	}

	msg := map[string]any{
		"id":     time.Now().UnixMilli(),
		"method": "subscribe",
		"params": map[string]any{"channels": channels},
	}
	return s.conn.WriteJSON(msg)
}
