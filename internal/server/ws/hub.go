package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/riskdesk/internal/domain"
	"github.com/alanyoungcy/riskdesk/internal/metrics"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum size of an incoming message.
	maxMessageSize = 4096

	// sendBufferSize is the channel buffer for outgoing messages per client.
	sendBufferSize = 256
)

// channels are the signal bus channels bridged to WebSocket clients.
var channels = []string{
	domain.ChannelPrices,
	domain.ChannelOrders,
	domain.ChannelAlerts,
}

// originChecker admits requests without an Origin header (non-browser
// clients) and browser requests whose origin is on the allow-list. An empty
// list or a "*" entry admits every origin.
func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, o := range allowed {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}

// Envelope is the frame pushed to clients.
type Envelope struct {
	Type    string          `json:"type"`
	Channel string          `json:"channel"`
	Payload json.RawMessage `json:"payload"`
}

// subscribeMsg is the JSON message a client sends to change its
// subscriptions. An AccountID restricts order and alert events to one
// account; an empty one removes the filter.
type subscribeMsg struct {
	Action    string   `json:"action"` // "subscribe" or "unsubscribe"
	Channels  []string `json:"channels"`
	AccountID *string  `json:"accountId"`
}

// client represents a single WebSocket connection.
type client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	mu      sync.RWMutex
	subs    map[string]bool
	account string
}

// Hub manages a set of connected WebSocket clients and broadcasts signal bus
// events to the clients subscribed to their channel.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan event
	register   chan *client
	unregister chan *client
	done       chan struct{}
	upgrader   websocket.Upgrader
	bus        domain.SignalBus
	metrics    *metrics.Metrics
	mu         sync.RWMutex
	logger     *slog.Logger
}

// event is a decoded bus message waiting to be routed.
type event struct {
	channel   string
	accountID string
	data      []byte
}

// NewHub creates a hub that bridges bus to connected WebSocket clients.
// Upgrades from browsers are accepted only from allowedOrigins.
func NewHub(bus domain.SignalBus, allowedOrigins []string, m *metrics.Metrics, logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan event, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		bus:     bus,
		metrics: m,
		logger:  logger,
	}
}

// Run starts the hub's main event loop. It handles client registration,
// unregistration, and message broadcasting until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	for _, ch := range channels {
		msgs, err := h.bus.Subscribe(ctx, ch)
		if err != nil {
			return err
		}
		h.logger.Info("ws: subscribed to channel", slog.String("channel", ch))
		go h.forward(ctx, ch, msgs)
	}

	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			h.metrics.WSClients(0)
			return nil

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.metrics.WSClients(n)
			h.logger.Info("ws: client connected", slog.Int("total_clients", n))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.metrics.WSClients(n)
			h.logger.Info("ws: client disconnected", slog.Int("total_clients", n))

		case evt := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				if !c.wants(evt) {
					continue
				}
				select {
				case c.send <- evt.data:
				default:
					h.logger.Warn("ws: dropping message for slow client",
						slog.String("channel", evt.channel),
					)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// forward wraps each bus message in an Envelope and queues it for broadcast.
func (h *Hub) forward(ctx context.Context, channel string, msgs <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgs:
			if !ok {
				h.logger.Warn("ws: channel subscription closed", slog.String("channel", channel))
				return
			}
			evt, err := envelope(channel, data)
			if err != nil {
				h.logger.Debug("ws: skipping undecodable message",
					slog.String("channel", channel),
					slog.String("error", err.Error()),
				)
				continue
			}
			select {
			case h.broadcast <- evt:
			case <-ctx.Done():
				return
			}
		}
	}
}

// envelope decodes the event name and account of a bus payload and builds
// the outgoing frame.
func envelope(channel string, data []byte) (event, error) {
	var head struct {
		Event     string `json:"event"`
		AccountID string `json:"account_id"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return event{}, err
	}
	typ := head.Event
	if typ == "" {
		typ = channel
	}
	frame, err := json.Marshal(Envelope{Type: typ, Channel: channel, Payload: data})
	if err != nil {
		return event{}, err
	}
	return event{channel: channel, accountID: head.AccountID, data: frame}, nil
}

// HandleWS upgrades an HTTP request to a WebSocket connection and registers
// the client with the hub. Clients start subscribed to every channel; the
// optional accountId query parameter sets the initial account filter.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:     h,
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		subs:    make(map[string]bool, len(channels)),
		account: r.URL.Query().Get("accountId"),
	}
	for _, ch := range channels {
		c.subs[ch] = true
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// ClientCount returns the number of currently connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// wants reports whether evt should be delivered to c. Prices go to every
// subscriber; account-scoped events honour the account filter.
func (c *client) wants(evt event) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.subs[evt.channel] {
		return false
	}
	return c.account == "" || evt.accountID == "" || evt.accountID == c.account
}

// readPump reads subscription changes from the connection until it closes.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close error", slog.String("error", err.Error()))
			}
			return
		}

		var sub subscribeMsg
		if err := json.Unmarshal(message, &sub); err == nil {
			c.handleSubscription(sub)
		}
	}
}

// handleSubscription processes subscribe/unsubscribe requests from the client.
func (c *client) handleSubscription(msg subscribeMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch msg.Action {
	case "subscribe":
		for _, ch := range msg.Channels {
			c.subs[ch] = true
		}
	case "unsubscribe":
		for _, ch := range msg.Channels {
			delete(c.subs, ch)
		}
	}
	if msg.AccountID != nil {
		c.account = *msg.AccountID
	}
}

// writePump pumps messages from the hub to the WebSocket connection as text
// frames and sends periodic pings for keepalive.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
