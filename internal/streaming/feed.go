package streaming

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
)

const (
	writeWait   = 10 * time.Second
	dialTimeout = 30 * time.Second

	baseReconnectDelay = time.Second
	maxReconnectDelay  = 60 * time.Second
)

// Feed maintains the single upstream websocket the hub multiplexes. It
// reconnects with exponential backoff and replays the hub's subscription
// union after every successful reconnect.
type Feed struct {
	url    string
	apiKey string
	hub    *Hub
	log    zerolog.Logger

	mu         sync.RWMutex
	conn       *websocket.Conn
	connCtx    context.Context
	cancelFunc context.CancelFunc
	connected  bool

	reconnecting bool
	stopChan     chan struct{}
	stopped      bool
}

// NewFeed creates the upstream client and attaches it to the hub.
func NewFeed(url, apiKey string, hub *Hub, log zerolog.Logger) *Feed {
	f := &Feed{
		url:      url,
		apiKey:   apiKey,
		hub:      hub,
		log:      log.With().Str("component", "price_feed").Logger(),
		stopChan: make(chan struct{}),
	}
	hub.SetUpstream(f)
	return f
}

// Start dials the upstream and begins the read loop. A failed initial dial
// is not fatal; the reconnect loop keeps trying in the background.
func (f *Feed) Start() error {
	if err := f.connect(); err != nil {
		f.log.Warn().Err(err).Msg("initial feed connection failed, will retry in background")
		go f.reconnectLoop()
		return err
	}

	f.mu.RLock()
	ctx := f.connCtx
	f.mu.RUnlock()
	go f.readMessages(ctx)
	return nil
}

// Stop closes the upstream connection and halts reconnection.
func (f *Feed) Stop() error {
	f.mu.Lock()
	if f.stopped {
		f.mu.Unlock()
		return nil
	}
	f.stopped = true
	f.mu.Unlock()

	close(f.stopChan)
	return f.disconnect()
}

// IsConnected reports whether the upstream socket is currently up.
func (f *Feed) IsConnected() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.connected
}

// Subscribe sends an upstream subscribe frame. Failures are tolerated: the
// post-reconnect resubscribe replays the full union anyway.
func (f *Feed) Subscribe(symbols []string) {
	if err := f.send(subscribeFrame{Action: "subscribe", Symbols: symbols}); err != nil {
		f.log.Warn().Err(err).Strs("symbols", symbols).Msg("subscribe frame failed")
	}
}

// Unsubscribe sends an upstream unsubscribe frame, best effort.
func (f *Feed) Unsubscribe(symbols []string) {
	if err := f.send(subscribeFrame{Action: "unsubscribe", Symbols: symbols}); err != nil {
		f.log.Warn().Err(err).Strs("symbols", symbols).Msg("unsubscribe frame failed")
	}
}

type subscribeFrame struct {
	Action  string   `json:"action"`
	Symbols []string `json:"symbols"`
}

// feedMessage is the upstream wire format: a price tick or a protocol-level
// error such as a refused symbol.
type feedMessage struct {
	Type          string  `json:"type"`
	Symbol        string  `json:"symbol"`
	Price         float64 `json:"price"`
	Size          float64 `json:"size"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"change_percent"`
	Timestamp     int64   `json:"timestamp"`
	Code          string  `json:"code"`
	Message       string  `json:"message"`
}

func (f *Feed) connect() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	wsURL := f.url
	if f.apiKey != "" {
		wsURL += "?token=" + f.apiKey
	}

	dialCtx, dialCancel := context.WithTimeout(context.Background(), dialTimeout)
	defer dialCancel()

	conn, _, err := websocket.Dial(dialCtx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("failed to dial price feed: %w", err)
	}

	connCtx, connCancel := context.WithCancel(context.Background())
	f.conn = conn
	f.connCtx = connCtx
	f.cancelFunc = connCancel
	f.connected = true

	// Replay the union so the upstream matches the hub's state.
	if union := f.hub.Union(); len(union) > 0 {
		if err := f.writeLocked(connCtx, subscribeFrame{Action: "subscribe", Symbols: union}); err != nil {
			connCancel()
			conn.Close(websocket.StatusNormalClosure, "resubscribe failed")
			f.conn = nil
			f.connCtx = nil
			f.cancelFunc = nil
			f.connected = false
			return fmt.Errorf("failed to resubscribe: %w", err)
		}
	}

	f.log.Info().Str("url", f.url).Msg("connected to price feed")
	return nil
}

func (f *Feed) disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.conn == nil {
		return nil
	}

	if f.cancelFunc != nil {
		f.cancelFunc()
		f.cancelFunc = nil
	}

	err := f.conn.Close(websocket.StatusNormalClosure, "")
	f.conn = nil
	f.connCtx = nil
	f.connected = false

	if err != nil {
		return fmt.Errorf("error closing price feed: %w", err)
	}
	return nil
}

func (f *Feed) send(frame subscribeFrame) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.conn == nil {
		return fmt.Errorf("feed not connected")
	}
	return f.writeLocked(f.connCtx, frame)
}

// writeLocked writes a frame on the current connection. Caller holds f.mu.
func (f *Feed) writeLocked(ctx context.Context, frame subscribeFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	writeCtx, cancel := context.WithTimeout(ctx, writeWait)
	defer cancel()
	return f.conn.Write(writeCtx, websocket.MessageText, data)
}

func (f *Feed) readMessages(ctx context.Context) {
	defer func() {
		f.mu.RLock()
		stopped := f.stopped
		f.mu.RUnlock()
		if !stopped {
			f.mu.Lock()
			f.connected = false
			f.mu.Unlock()
			go f.reconnectLoop()
		}
	}()

	for {
		select {
		case <-f.stopChan:
			return
		case <-ctx.Done():
			return
		default:
		}

		f.mu.RLock()
		conn := f.conn
		f.mu.RUnlock()
		if conn == nil {
			return
		}

		msgType, message, err := conn.Read(ctx)
		if err != nil {
			closeStatus := websocket.CloseStatus(err)
			if closeStatus == websocket.StatusNormalClosure || closeStatus == websocket.StatusGoingAway {
				f.log.Info().Int("status", int(closeStatus)).Msg("price feed closed normally")
			} else if ctx.Err() == nil {
				f.log.Error().Err(err).Msg("unexpected price feed read error")
			}
			return
		}
		if msgType != websocket.MessageText {
			continue
		}

		if err := f.handleMessage(message); err != nil {
			f.log.Error().Err(err).Str("message", string(message)).Msg("failed to handle feed message")
		}
	}
}

func (f *Feed) handleMessage(message []byte) error {
	var msg feedMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		return fmt.Errorf("failed to parse feed message: %w", err)
	}

	switch msg.Type {
	case "price":
		f.hub.OnPriceUpdate(PriceUpdate{
			Symbol:        msg.Symbol,
			Price:         msg.Price,
			Size:          msg.Size,
			Change:        msg.Change,
			ChangePercent: msg.ChangePercent,
			Timestamp:     time.UnixMilli(msg.Timestamp),
		})
	case "error":
		if msg.Code == "not_authorized" && msg.Symbol != "" {
			f.hub.OnSymbolDenied(msg.Symbol, msg.Message)
		} else {
			f.log.Warn().Str("code", msg.Code).Str("message", msg.Message).Msg("feed error message")
		}
	default:
		f.log.Debug().Str("type", msg.Type).Msg("ignoring feed message")
	}
	return nil
}

// reconnectLoop retries the connection with exponential backoff, starting
// at one second and capped at one minute.
func (f *Feed) reconnectLoop() {
	f.mu.Lock()
	if f.reconnecting || f.stopped {
		f.mu.Unlock()
		return
	}
	f.reconnecting = true
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.reconnecting = false
		f.mu.Unlock()
	}()

	attempt := 0
	for {
		select {
		case <-f.stopChan:
			return
		default:
		}

		attempt++
		delay := backoff(attempt)
		f.log.Info().Int("attempt", attempt).Dur("delay", delay).Msg("reconnecting to price feed")

		select {
		case <-time.After(delay):
		case <-f.stopChan:
			return
		}

		if err := f.connect(); err != nil {
			f.log.Error().Err(err).Int("attempt", attempt).Msg("feed reconnection failed")
			continue
		}

		f.log.Info().Int("attempt", attempt).Msg("price feed reconnected")

		f.mu.RLock()
		ctx := f.connCtx
		f.mu.RUnlock()
		go f.readMessages(ctx)
		return
	}
}

func backoff(attempt int) time.Duration {
	delay := float64(baseReconnectDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(maxReconnectDelay) {
		delay = float64(maxReconnectDelay)
	}
	return time.Duration(delay)
}
