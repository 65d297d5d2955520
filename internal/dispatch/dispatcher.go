package dispatch

import (
	"log/slog"
	"sync"

	"github.com/rickgao/ibgw/internal/model"
	"github.com/rickgao/ibgw/internal/orders"
	"github.com/rickgao/ibgw/internal/ticker"
	"github.com/rickgao/ibgw/internal/transport"
)

// TickerHandler observes merged market-data updates.
type TickerHandler func(sub ticker.Subscription)

// OrderStatusHandler observes applied order transitions.
type OrderStatusHandler func(order model.Order)

// DisconnectHandler observes session loss, solicited or not.
type DisconnectHandler func()

// Stats counts dispatcher activity.
type Stats struct {
	Received      int64 // events taken off the transport stream
	Dispatched    int64 // events that updated state and reached handlers
	Dropped       int64 // stale, unknown, or illegal events discarded
	HandlerPanics int64 // recovered handler panics
}

// Dispatcher classifies inbound gateway events, applies them to the registry
// and tracker, and invokes registered handlers with value copies of the
// updated entities.
type Dispatcher struct {
	registry *ticker.Registry
	tracker  *orders.Tracker
	logger   *slog.Logger

	mu                 sync.Mutex
	tickerHandlers     []TickerHandler
	orderHandlers      []OrderStatusHandler
	disconnectHandlers []DisconnectHandler
	stats              Stats
}

// New creates a dispatcher bound to the session's registry and tracker.
func New(registry *ticker.Registry, tracker *orders.Tracker, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		registry: registry,
		tracker:  tracker,
		logger:   logger,
	}
}

// OnTicker registers a market-data handler. Handlers run in registration
// order on the dispatch goroutine.
func (d *Dispatcher) OnTicker(h TickerHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tickerHandlers = append(d.tickerHandlers, h)
}

// OnOrderStatus registers an order lifecycle handler.
func (d *Dispatcher) OnOrderStatus(h OrderStatusHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.orderHandlers = append(d.orderHandlers, h)
}

// OnDisconnect registers a disconnect handler.
func (d *Dispatcher) OnDisconnect(h DisconnectHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.disconnectHandlers = append(d.disconnectHandlers, h)
}

// Run drains events until the channel closes. A disconnect event (or the
// closure itself, for an explicit shutdown) invokes onDown once and ends the
// loop. Internal update failures never stop the loop.
func (d *Dispatcher) Run(events <-chan transport.Event, onDown func()) {
	for ev := range events {
		d.mu.Lock()
		d.stats.Received++
		d.mu.Unlock()

		switch ev.Kind {
		case transport.KindTicker:
			d.handleTicker(ev.Ticker)

		case transport.KindOrderStatus:
			d.handleOrderStatus(ev.OrderStatus)

		case transport.KindDisconnect:
			onDown()
			return

		default:
			d.logger.Warn("unknown event kind, dropping", "kind", int(ev.Kind))
			d.drop()
		}
	}

	// Stream closed without a disconnect event: explicit teardown.
	onDown()
}

func (d *Dispatcher) handleTicker(ev *transport.TickerEvent) {
	if ev == nil {
		d.drop()
		return
	}

	sub, ok := d.registry.Update(ev.Instrument, ev.Fields, ev.ReceivedAt)
	if !ok {
		d.drop()
		return
	}

	d.mu.Lock()
	handlers := make([]TickerHandler, len(d.tickerHandlers))
	copy(handlers, d.tickerHandlers)
	d.stats.Dispatched++
	d.mu.Unlock()

	for _, h := range handlers {
		d.safeInvoke("ticker", func() { h(sub) })
	}
}

func (d *Dispatcher) handleOrderStatus(ev *transport.OrderStatusEvent) {
	if ev == nil {
		d.drop()
		return
	}

	order, ok := d.tracker.ApplyStatus(ev.OrderID, ev.Status, ev.FilledQty, ev.AvgFillPrice)
	if !ok {
		d.drop()
		return
	}

	d.mu.Lock()
	handlers := make([]OrderStatusHandler, len(d.orderHandlers))
	copy(handlers, d.orderHandlers)
	d.stats.Dispatched++
	d.mu.Unlock()

	for _, h := range handlers {
		d.safeInvoke("order_status", func() { h(order) })
	}
}

// NotifyDisconnect invokes all disconnect handlers in registration order.
// The session calls this exactly once per connection teardown.
func (d *Dispatcher) NotifyDisconnect() {
	d.mu.Lock()
	handlers := make([]DisconnectHandler, len(d.disconnectHandlers))
	copy(handlers, d.disconnectHandlers)
	d.mu.Unlock()

	for _, h := range handlers {
		d.safeInvoke("disconnect", func() { h() })
	}
}

// safeInvoke runs one handler, converting a panic into a diagnostic so the
// remaining handlers and the dispatch loop keep going.
func (d *Dispatcher) safeInvoke(category string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.mu.Lock()
			d.stats.HandlerPanics++
			d.mu.Unlock()
			d.logger.Error("handler panic recovered", "category", category, "panic", r)
		}
	}()
	fn()
}

func (d *Dispatcher) drop() {
	d.mu.Lock()
	d.stats.Dropped++
	d.mu.Unlock()
}

// Stats returns a copy of the dispatch counters.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}
