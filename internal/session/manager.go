package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/ibgw/internal/dispatch"
	"github.com/rickgao/ibgw/internal/model"
	"github.com/rickgao/ibgw/internal/orders"
	"github.com/rickgao/ibgw/internal/ticker"
	"github.com/rickgao/ibgw/internal/transport"
)

// Errors
var (
	ErrAlreadyConnected = errors.New("already connected")
	ErrNotConnected     = errors.New("not connected")
)

// State is the session connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

// Manager orchestrates one session to the brokerage gateway. Command
// operations may be called concurrently; their effects arrive back through
// the dispatch goroutine, which is the only writer of subscription and order
// state.
type Manager struct {
	dial   transport.Factory
	logger *slog.Logger

	registry   *ticker.Registry
	tracker    *orders.Tracker
	dispatcher *dispatch.Dispatcher

	mu           sync.Mutex
	state        State
	lastErr      error
	tr           transport.Transport
	notified     bool // disconnect handlers fired for the current session
	dispatchDone chan struct{}
}

// New creates a disconnected manager. dial produces a fresh transport for
// each connection attempt.
func New(dial transport.Factory, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	registry := ticker.NewRegistry(logger)
	tracker := orders.NewTracker(logger)

	return &Manager{
		dial:       dial,
		logger:     logger,
		registry:   registry,
		tracker:    tracker,
		dispatcher: dispatch.New(registry, tracker, logger),
		state:      StateDisconnected,
	}
}

// Connect establishes and authenticates a session, then starts the dispatch
// goroutine. Fails with ErrAlreadyConnected if a session is active (or being
// established). A transport failure within the timeout returns the session
// to disconnected and surfaces the error; there is no internal retry.
func (m *Manager) Connect(ctx context.Context, host string, port int, clientID int, timeout time.Duration) error {
	m.mu.Lock()
	if m.state != StateDisconnected {
		m.mu.Unlock()
		return ErrAlreadyConnected
	}
	m.state = StateConnecting
	m.mu.Unlock()

	m.logger.Info("connecting", "host", host, "port", port, "client_id", clientID)

	dialCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tr := m.dial()
	if err := tr.Open(dialCtx, host, port, clientID); err != nil {
		m.mu.Lock()
		m.state = StateDisconnected
		m.lastErr = err
		m.mu.Unlock()
		m.logger.Warn("connect failed", "host", host, "port", port, "error", err)
		return fmt.Errorf("connect %s:%d: %w", host, port, err)
	}

	done := make(chan struct{})

	m.mu.Lock()
	m.tr = tr
	m.state = StateConnected
	m.lastErr = nil
	m.notified = false
	m.dispatchDone = done
	m.mu.Unlock()

	go func() {
		defer close(done)
		m.dispatcher.Run(tr.Events(), m.handleTransportDown)
	}()

	m.logger.Info("connected", "host", host, "port", port, "client_id", clientID)
	return nil
}

// Disconnect tears the session down: cancels all active subscriptions,
// closes the transport, waits for the dispatch goroutine to drain, and
// notifies disconnect handlers exactly once before returning. Idempotent.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	if m.state != StateConnected {
		m.mu.Unlock()
		return nil
	}
	tr := m.tr
	done := m.dispatchDone
	m.mu.Unlock()

	m.registry.CancelAll(tr)
	tr.Close()
	if done != nil {
		<-done
	}

	// The dispatch goroutine normally runs the teardown when the event
	// stream closes; this covers the case where it never started.
	m.handleTransportDown()
	return nil
}

// handleTransportDown finalizes a teardown, solicited or not: state becomes
// disconnected, subscriptions are invalidated but retained, orders keep
// their last known status, and disconnect handlers fire exactly once.
func (m *Manager) handleTransportDown() {
	m.mu.Lock()
	if m.notified {
		m.mu.Unlock()
		return
	}
	m.notified = true
	m.state = StateDisconnected
	m.tr = nil
	m.mu.Unlock()

	m.registry.InvalidateAll()
	m.logger.Info("session disconnected")
	m.dispatcher.NotifyDisconnect()
}

// State returns the current session state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LastError returns the error from the most recent failed connect.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// conn returns the active transport, or ErrNotConnected. A session still
// connecting does not accept commands.
func (m *Manager) conn() (transport.Transport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateConnected || m.tr == nil {
		return nil, ErrNotConnected
	}
	return m.tr, nil
}

// Subscribe requests streaming market data for the instrument. Idempotent
// per instrument identity.
func (m *Manager) Subscribe(inst model.Instrument) (ticker.Subscription, error) {
	tr, err := m.conn()
	if err != nil {
		return ticker.Subscription{}, err
	}
	return m.registry.Subscribe(tr, inst)
}

// CancelMarketData cancels the instrument's subscription. No-op if not
// subscribed.
func (m *Manager) CancelMarketData(inst model.Instrument) error {
	tr, err := m.conn()
	if err != nil {
		return err
	}
	return m.registry.Cancel(tr, inst)
}

// Snapshot returns the current subscription view for the instrument.
func (m *Manager) Snapshot(inst model.Instrument) (ticker.Subscription, bool) {
	return m.registry.Get(inst)
}

// Subscriptions returns all registry entries, including invalidated ones.
func (m *Manager) Subscriptions() []ticker.Subscription {
	return m.registry.All()
}

// ClearMarketData drops every registry entry, including invalidated ones
// retained after a disconnect.
func (m *Manager) ClearMarketData() {
	m.registry.Clear()
}

// PlaceOrder validates and submits an order, returning its Submitted
// snapshot with the broker-assigned id.
func (m *Manager) PlaceOrder(inst model.Instrument, side model.Side, qty int64, typ model.OrderType, limitPrice float64) (model.Order, error) {
	tr, err := m.conn()
	if err != nil {
		return model.Order{}, err
	}
	return m.tracker.Place(tr, inst, side, qty, typ, limitPrice)
}

// CancelOrder requests cancellation of a working order; the Cancelled
// transition arrives later as a status event.
func (m *Manager) CancelOrder(id int64) error {
	tr, err := m.conn()
	if err != nil {
		return err
	}
	return m.tracker.Cancel(tr, id)
}

// AwaitTerminal blocks until the order is terminal or the timeout elapses,
// returning the current snapshot either way.
func (m *Manager) AwaitTerminal(id int64, timeout time.Duration) (model.Order, error) {
	return m.tracker.AwaitTerminal(id, timeout)
}

// Order returns a snapshot of a tracked order.
func (m *Manager) Order(id int64) (model.Order, bool) {
	return m.tracker.Get(id)
}

// Orders returns snapshots of all tracked orders.
func (m *Manager) Orders() []model.Order {
	return m.tracker.All()
}

// OnTicker registers a market-data handler, invoked in registration order
// on the dispatch goroutine.
func (m *Manager) OnTicker(h dispatch.TickerHandler) {
	m.dispatcher.OnTicker(h)
}

// OnOrderStatus registers an order lifecycle handler.
func (m *Manager) OnOrderStatus(h dispatch.OrderStatusHandler) {
	m.dispatcher.OnOrderStatus(h)
}

// OnDisconnect registers a disconnect handler.
func (m *Manager) OnDisconnect(h dispatch.DisconnectHandler) {
	m.dispatcher.OnDisconnect(h)
}

// DispatchStats returns the dispatcher's counters.
func (m *Manager) DispatchStats() dispatch.Stats {
	return m.dispatcher.Stats()
}
