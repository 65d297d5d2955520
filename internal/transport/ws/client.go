// Package ws implements the gateway transport over a websocket carrying
// JSON command/response envelopes and push events.
package ws

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rickgao/ibgw/internal/model"
	"github.com/rickgao/ibgw/internal/transport"
)

// Client is a websocket-backed transport for one gateway session.
type Client struct {
	cfg    Config
	logger *slog.Logger

	conn *websocket.Conn

	// Write serialization
	writeMu sync.Mutex

	// Push events to the dispatch loop. Closed when the read loop exits.
	events chan transport.Event
	done   chan struct{}

	// State
	mu         sync.RWMutex
	connected  bool
	closed     bool
	lastPingAt time.Time

	// Command/response correlation
	pendingMu sync.Mutex
	pending   map[string]chan Response
}

var _ transport.Transport = (*Client)(nil)

// New creates an unopened websocket transport.
func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.Path == "" {
		cfg.Path = def.Path
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = def.HandshakeTimeout
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.PingInterval == 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.PingTimeout == 0 {
		cfg.PingTimeout = def.PingTimeout
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = def.BufferSize
	}

	return &Client{
		cfg:     cfg,
		logger:  logger,
		events:  make(chan transport.Event, cfg.BufferSize),
		done:    make(chan struct{}),
		pending: make(map[string]chan Response),
	}
}

// Factory returns a transport.Factory producing a fresh Client per session.
func Factory(cfg Config, logger *slog.Logger) transport.Factory {
	return func() transport.Transport {
		return New(cfg, logger)
	}
}

// Open dials the gateway and authenticates with the client identity.
// Authentication rejection fails the open; the connection is torn down.
func (c *Client) Open(ctx context.Context, host string, port int, clientID int) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return transport.ErrAlreadyClosed
	}
	if c.connected {
		c.mu.Unlock()
		return fmt.Errorf("transport already open")
	}
	c.mu.Unlock()

	url := fmt.Sprintf("ws://%s:%d%s", host, port, c.cfg.Path)
	header := http.Header{}
	header.Set("Accept", "application/json")

	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.lastPingAt = time.Now()
	c.mu.Unlock()

	// Server pings reset staleness; answer with a pong.
	conn.SetPingHandler(func(data string) error {
		c.mu.Lock()
		c.lastPingAt = time.Now()
		c.mu.Unlock()

		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(time.Second),
		)
	})

	conn.SetPongHandler(func(string) error {
		c.mu.Lock()
		c.lastPingAt = time.Now()
		c.mu.Unlock()
		return nil
	})

	go c.readLoop()
	go c.heartbeatLoop()

	// Identify this session before any other command is accepted.
	if _, err := c.request(ctx, "auth", AuthParams{ClientID: clientID}); err != nil {
		c.Close()
		return fmt.Errorf("authenticate client %d: %w", clientID, err)
	}

	c.logger.Debug("gateway transport open", "url", url, "client_id", clientID)
	return nil
}

// Close shuts the transport down. Idempotent. No disconnect event is
// emitted for an explicit close; the events channel is simply closed.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.connected = false
	conn := c.conn
	c.mu.Unlock()

	close(c.done)

	if conn != nil {
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		return conn.Close()
	}

	// Never dialed: the read loop will not run, so release consumers here.
	close(c.events)
	return nil
}

// Events returns the push-event stream.
func (c *Client) Events() <-chan transport.Event {
	return c.events
}

// RequestMarketData subscribes to the instrument's market-data stream and
// returns the gateway's opaque subscription token.
func (c *Client) RequestMarketData(inst model.Instrument) (string, error) {
	resp, err := c.request(context.Background(), "subscribe", SubscribeParams{
		Symbol:   inst.Symbol,
		SecType:  inst.SecType,
		Exchange: inst.Exchange,
		Currency: inst.Currency,
	})
	if err != nil {
		return "", err
	}

	var msg SubscribedMsg
	if err := json.Unmarshal(resp.Msg, &msg); err != nil {
		return "", fmt.Errorf("decode subscribe response: %w", err)
	}
	if msg.Token == "" {
		return "", fmt.Errorf("subscribe response missing token")
	}
	return msg.Token, nil
}

// CancelMarketData cancels a market-data subscription by token.
func (c *Client) CancelMarketData(token string) error {
	_, err := c.request(context.Background(), "unsubscribe", UnsubscribeParams{Token: token})
	return err
}

// SubmitOrder sends a new order and returns the broker-assigned id.
// A synchronous gateway rejection is returned as an error.
func (c *Client) SubmitOrder(req transport.OrderRequest) (int64, error) {
	resp, err := c.request(context.Background(), "order", OrderParams{
		Symbol:     req.Instrument.Symbol,
		SecType:    req.Instrument.SecType,
		Exchange:   req.Instrument.Exchange,
		Currency:   req.Instrument.Currency,
		Side:       string(req.Side),
		Type:       string(req.Type),
		Quantity:   req.Quantity,
		LimitPrice: req.LimitPrice,
	})
	if err != nil {
		return 0, err
	}

	var msg OrderAcceptedMsg
	if err := json.Unmarshal(resp.Msg, &msg); err != nil {
		return 0, fmt.Errorf("decode order response: %w", err)
	}
	if msg.OrderID == 0 {
		return 0, fmt.Errorf("order response missing order_id")
	}
	return msg.OrderID, nil
}

// CancelOrder requests cancellation of a working order.
func (c *Client) CancelOrder(orderID int64) error {
	_, err := c.request(context.Background(), "cancel_order", CancelOrderParams{OrderID: orderID})
	return err
}

// request sends a command and waits for its correlated response.
func (c *Client) request(ctx context.Context, cmd string, params interface{}) (Response, error) {
	c.mu.RLock()
	if !c.connected {
		c.mu.RUnlock()
		return Response{}, transport.ErrNotConnected
	}
	c.mu.RUnlock()

	id := uuid.NewString()
	respCh := make(chan Response, 1)

	c.pendingMu.Lock()
	c.pending[id] = respCh
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	data, err := json.Marshal(Command{ID: id, Cmd: cmd, Params: params})
	if err != nil {
		return Response{}, fmt.Errorf("encode %s command: %w", cmd, err)
	}
	if err := c.send(data); err != nil {
		return Response{}, err
	}

	select {
	case <-ctx.Done():
		return Response{}, ctx.Err()
	case <-c.done:
		return Response{}, transport.ErrNotConnected
	case <-time.After(c.cfg.RequestTimeout):
		return Response{}, fmt.Errorf("%s: %w", cmd, transport.ErrTimeout)
	case resp := <-respCh:
		if resp.Type == "error" {
			var errMsg ErrorMsg
			json.Unmarshal(resp.Msg, &errMsg)
			return Response{}, fmt.Errorf("%s rejected: %s: %s", cmd, errMsg.Code, errMsg.Message)
		}
		return resp, nil
	}
}

// send writes one frame under the write lock.
func (c *Client) send(data []byte) error {
	c.mu.RLock()
	if !c.connected {
		c.mu.RUnlock()
		return transport.ErrNotConnected
	}
	conn := c.conn
	c.mu.RUnlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop reads frames until the connection dies, routing command responses
// to waiting callers and push messages to the events channel.
func (c *Client) readLoop() {
	defer close(c.events)

	for {
		select {
		case <-c.done:
			return
		default:
		}

		_, data, err := c.conn.ReadMessage()
		receivedAt := time.Now()

		if err != nil {
			c.mu.Lock()
			c.connected = false
			wasClosed := c.closed
			c.mu.Unlock()

			if !wasClosed {
				c.logger.Warn("gateway connection lost", "error", err)
				c.emit(transport.Event{Kind: transport.KindDisconnect})
			}
			return
		}

		if resp, ok := tryParseResponse(data); ok {
			c.routeResponse(resp)
			continue
		}

		var env dataMessage
		if err := json.Unmarshal(data, &env); err != nil {
			c.logger.Warn("unparseable gateway message", "error", err)
			continue
		}

		switch env.Type {
		case "ticker":
			var wire tickerWire
			if err := json.Unmarshal(env.Msg, &wire); err != nil {
				c.logger.Warn("bad ticker message", "error", err)
				continue
			}
			c.emit(transport.Event{
				Kind: transport.KindTicker,
				Ticker: &transport.TickerEvent{
					Instrument: wire.instrument(),
					Fields:     wire.fields(),
					ReceivedAt: receivedAt,
				},
			})

		case "order_status":
			var wire orderStatusWire
			if err := json.Unmarshal(env.Msg, &wire); err != nil {
				c.logger.Warn("bad order_status message", "error", err)
				continue
			}
			c.emit(transport.Event{
				Kind: transport.KindOrderStatus,
				OrderStatus: &transport.OrderStatusEvent{
					OrderID:      wire.OrderID,
					Status:       model.OrderStatus(wire.Status),
					FilledQty:    wire.FilledQty,
					AvgFillPrice: wire.AvgFillPrice,
				},
			})

		default:
			c.logger.Debug("skipping gateway message", "type", env.Type)
		}
	}
}

// emit pushes an event without blocking the read loop.
func (c *Client) emit(ev transport.Event) {
	select {
	case c.events <- ev:
	default:
		c.logger.Warn("event buffer full, dropping event", "kind", ev.Kind)
	}
}

// tryParseResponse attempts to parse a frame as a command response.
func tryParseResponse(data []byte) (Response, bool) {
	if !bytes.Contains(data, []byte(`"id":`)) {
		return Response{}, false
	}

	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return Response{}, false
	}

	switch resp.Type {
	case "ok", "error":
		return resp, true
	}
	return Response{}, false
}

// routeResponse delivers a response to the goroutine waiting on its id.
func (c *Client) routeResponse(resp Response) {
	c.pendingMu.Lock()
	ch, ok := c.pending[resp.ID]
	if ok {
		delete(c.pending, resp.ID)
	}
	c.pendingMu.Unlock()

	if ok {
		select {
		case ch <- resp:
		default:
		}
	}
}

// heartbeatLoop sends keepalive pings and tears the connection down when the
// gateway has gone silent past the ping timeout.
func (c *Client) heartbeatLoop() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.RLock()
			conn := c.conn
			lastPing := c.lastPingAt
			c.mu.RUnlock()

			if conn == nil {
				return
			}

			deadline := time.Now().Add(c.cfg.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				c.logger.Debug("failed to send ping", "error", err)
			}

			if time.Since(lastPing) > c.cfg.PingTimeout {
				c.logger.Warn("gateway silent past ping timeout, closing",
					"last_ping", lastPing,
					"timeout", c.cfg.PingTimeout,
				)
				// Forces the read loop onto its error path, which emits
				// the disconnect event.
				conn.Close()
				return
			}
		}
	}
}
