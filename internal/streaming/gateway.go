// Package streaming multiplexes many client subscriptions onto a single
// upstream price feed. The upstream subscription set is always the union of
// client subscriptions, so adding a client never opens a second socket.
package streaming

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// PriceUpdate is one tick from the upstream feed.
type PriceUpdate struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	Size          float64   `json:"size"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"change_percent"`
	Timestamp     time.Time `json:"timestamp"`
}

// Notice informs clients about subscription-level events, such as a symbol
// the upstream refuses to serve.
type Notice struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
	Reason string `json:"reason"`
}

const NoticeSymbolUnavailable = "symbol_unavailable"

// Upstream is the feed side the hub drives. The hub only tells it which
// symbols changed; connection management stays inside the feed.
type Upstream interface {
	Subscribe(symbols []string)
	Unsubscribe(symbols []string)
}

// Client is one downstream consumer. Updates and notices are delivered on
// buffered channels; a slow client drops ticks instead of blocking the hub.
type Client struct {
	id      string
	updates chan PriceUpdate
	notices chan Notice
	symbols map[string]struct{}
}

// Updates is the client's price stream.
func (c *Client) Updates() <-chan PriceUpdate { return c.updates }

// Notices is the client's subscription-event stream.
func (c *Client) Notices() <-chan Notice { return c.notices }

// ID returns the identifier the client registered under.
func (c *Client) ID() string { return c.id }

const clientBuffer = 64

// Hub tracks per-client subscription sets and keeps the upstream
// subscription equal to their union.
type Hub struct {
	mu       sync.Mutex
	clients  map[string]*Client
	refs     map[string]int
	denied   map[string]string
	upstream Upstream
	log      zerolog.Logger
}

// NewHub creates a hub. upstream may be nil until SetUpstream is called,
// which lets the feed and hub reference each other.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		refs:    make(map[string]int),
		denied:  make(map[string]string),
		log:     log.With().Str("component", "streaming_hub").Logger(),
	}
}

// SetUpstream attaches the feed the hub forwards subscription changes to.
func (h *Hub) SetUpstream(u Upstream) {
	h.mu.Lock()
	h.upstream = u
	h.mu.Unlock()
}

// Register adds a client with no subscriptions. Registering an existing id
// replaces the previous client.
func (h *Hub) Register(id string) *Client {
	c := &Client{
		id:      id,
		updates: make(chan PriceUpdate, clientBuffer),
		notices: make(chan Notice, clientBuffer),
		symbols: make(map[string]struct{}),
	}

	h.mu.Lock()
	if old, ok := h.clients[id]; ok {
		h.dropLocked(old)
	}
	h.clients[id] = c
	h.mu.Unlock()
	return c
}

// Subscribe adds symbols to the client's set. Only symbols no other client
// holds are forwarded upstream. Symbols the upstream has refused this
// session are rejected immediately with a notice instead of being retried.
func (h *Hub) Subscribe(clientID string, symbols ...string) {
	h.mu.Lock()
	c, ok := h.clients[clientID]
	if !ok {
		h.mu.Unlock()
		return
	}

	var added []string
	for _, sym := range symbols {
		if reason, bad := h.denied[sym]; bad {
			sendNotice(c, Notice{Type: NoticeSymbolUnavailable, Symbol: sym, Reason: reason})
			continue
		}
		if _, has := c.symbols[sym]; has {
			continue
		}
		c.symbols[sym] = struct{}{}
		h.refs[sym]++
		if h.refs[sym] == 1 {
			added = append(added, sym)
		}
	}
	upstream := h.upstream
	h.mu.Unlock()

	if len(added) > 0 && upstream != nil {
		upstream.Subscribe(added)
	}
}

// Unsubscribe removes symbols from the client's set, dropping the upstream
// subscription only when the last interested client lets go.
func (h *Hub) Unsubscribe(clientID string, symbols ...string) {
	h.mu.Lock()
	c, ok := h.clients[clientID]
	if !ok {
		h.mu.Unlock()
		return
	}

	removed := h.releaseLocked(c, symbols)
	upstream := h.upstream
	h.mu.Unlock()

	if len(removed) > 0 && upstream != nil {
		upstream.Unsubscribe(removed)
	}
}

// Disconnect removes the client and releases all of its subscriptions.
func (h *Hub) Disconnect(clientID string) {
	h.mu.Lock()
	c, ok := h.clients[clientID]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, clientID)
	removed := h.dropLocked(c)
	upstream := h.upstream
	h.mu.Unlock()

	if len(removed) > 0 && upstream != nil {
		upstream.Unsubscribe(removed)
	}
}

// OnPriceUpdate fans a tick out to the clients subscribed to its symbol.
func (h *Hub) OnPriceUpdate(u PriceUpdate) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, c := range h.clients {
		if _, subscribed := c.symbols[u.Symbol]; !subscribed {
			continue
		}
		select {
		case c.updates <- u:
		default:
			h.log.Warn().Str("client", c.id).Str("symbol", u.Symbol).Msg("client buffer full, dropping tick")
		}
	}
}

// OnSymbolDenied marks a symbol as unavailable for the rest of the session,
// strips it from every client and notifies the affected ones. The hub never
// re-subscribes a denied symbol.
func (h *Hub) OnSymbolDenied(symbol, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.denied[symbol] = reason
	delete(h.refs, symbol)
	for _, c := range h.clients {
		if _, subscribed := c.symbols[symbol]; !subscribed {
			continue
		}
		delete(c.symbols, symbol)
		sendNotice(c, Notice{Type: NoticeSymbolUnavailable, Symbol: symbol, Reason: reason})
	}

	h.log.Warn().Str("symbol", symbol).Str("reason", reason).Msg("symbol denied by upstream")
}

// Union returns the current upstream subscription set; the feed replays it
// after every reconnect.
func (h *Hub) Union() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	symbols := make([]string, 0, len(h.refs))
	for sym := range h.refs {
		symbols = append(symbols, sym)
	}
	return symbols
}

// releaseLocked decrements refs for the client's symbols and reports the
// ones whose count dropped to zero. Caller holds h.mu.
func (h *Hub) releaseLocked(c *Client, symbols []string) []string {
	var removed []string
	for _, sym := range symbols {
		if _, has := c.symbols[sym]; !has {
			continue
		}
		delete(c.symbols, sym)
		h.refs[sym]--
		if h.refs[sym] <= 0 {
			delete(h.refs, sym)
			removed = append(removed, sym)
		}
	}
	return removed
}

func (h *Hub) dropLocked(c *Client) []string {
	symbols := make([]string, 0, len(c.symbols))
	for sym := range c.symbols {
		symbols = append(symbols, sym)
	}
	return h.releaseLocked(c, symbols)
}

func sendNotice(c *Client, n Notice) {
	select {
	case c.notices <- n:
	default:
	}
}
