package orders

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/ibgw/internal/model"
	"github.com/rickgao/ibgw/internal/transport"
)

// Errors
var (
	ErrInvalidOrderParams = errors.New("invalid order parameters")
	ErrUnknownOrder       = errors.New("order not found")
	ErrNotCancellable     = errors.New("order not cancellable")
	ErrNotTerminal        = errors.New("order not in a terminal state")
)

// legalNext lists the statuses reachable from each non-terminal status.
// A fill may arrive before the acknowledgment, so Submitted admits fills
// directly; PartiallyFilled repeats for incremental fills. Terminal statuses
// admit nothing.
var legalNext = map[model.OrderStatus][]model.OrderStatus{
	model.StatusSubmitted: {
		model.StatusAcknowledged,
		model.StatusRejected,
		model.StatusPartiallyFilled,
		model.StatusFilled,
	},
	model.StatusAcknowledged: {
		model.StatusPartiallyFilled,
		model.StatusFilled,
		model.StatusCancelled,
	},
	model.StatusPartiallyFilled: {
		model.StatusPartiallyFilled,
		model.StatusFilled,
		model.StatusCancelled,
	},
}

func legalTransition(from, to model.OrderStatus) bool {
	for _, s := range legalNext[from] {
		if s == to {
			return true
		}
	}
	return false
}

// OrderConn is the slice of the transport the tracker needs.
type OrderConn interface {
	SubmitOrder(req transport.OrderRequest) (orderID int64, err error)
	CancelOrder(orderID int64) error
}

// trackedOrder pairs the order state with a channel closed on its terminal
// transition, waking AwaitTerminal callers.
type trackedOrder struct {
	order model.Order
	done  chan struct{}
}

// Tracker holds all orders submitted through the session, keyed by the
// broker-assigned id. Status writes come only from the dispatch goroutine
// via ApplyStatus; reads and command operations may run concurrently.
type Tracker struct {
	mu     sync.Mutex
	orders map[int64]*trackedOrder
	logger *slog.Logger
}

// NewTracker creates an empty tracker.
func NewTracker(logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		orders: make(map[int64]*trackedOrder),
		logger: logger,
	}
}

// Place validates and submits a new order, returning its Submitted snapshot.
// A synchronous gateway rejection is surfaced as a submission error and
// nothing is tracked.
func (t *Tracker) Place(conn OrderConn, inst model.Instrument, side model.Side, qty int64, typ model.OrderType, limitPrice float64) (model.Order, error) {
	if !side.Valid() {
		return model.Order{}, fmt.Errorf("%w: side %q", ErrInvalidOrderParams, side)
	}
	if !typ.Valid() {
		return model.Order{}, fmt.Errorf("%w: order type %q", ErrInvalidOrderParams, typ)
	}
	if qty <= 0 {
		return model.Order{}, fmt.Errorf("%w: quantity %d", ErrInvalidOrderParams, qty)
	}
	if typ == model.OrderTypeLimit && limitPrice <= 0 {
		return model.Order{}, fmt.Errorf("%w: limit price %v", ErrInvalidOrderParams, limitPrice)
	}

	id, err := conn.SubmitOrder(transport.OrderRequest{
		Instrument: inst,
		Side:       side,
		Type:       typ,
		Quantity:   qty,
		LimitPrice: limitPrice,
	})
	if err != nil {
		return model.Order{}, fmt.Errorf("submit order: %w", err)
	}

	to := &trackedOrder{
		order: model.Order{
			ID:         id,
			Instrument: inst,
			Side:       side,
			Type:       typ,
			Quantity:   qty,
			LimitPrice: limitPrice,
			Status:     model.StatusSubmitted,
		},
		done: make(chan struct{}),
	}

	t.mu.Lock()
	t.orders[id] = to
	t.mu.Unlock()

	t.logger.Info("order submitted",
		"order_id", id,
		"instrument", inst.String(),
		"side", side,
		"qty", qty,
		"type", typ,
	)
	return to.order, nil
}

// ApplyStatus applies a gateway status event. Called only from the dispatch
// goroutine. Events for unknown ids (prior session, not ours) and illegal
// transitions (out-of-order or duplicate delivery) are logged and discarded;
// the second return is false. A terminal transition wakes waiters.
func (t *Tracker) ApplyStatus(id int64, status model.OrderStatus, filledQty int64, avgFillPrice float64) (model.Order, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	to, ok := t.orders[id]
	if !ok {
		t.logger.Debug("status for unknown order, dropping", "order_id", id, "status", status)
		return model.Order{}, false
	}

	if !legalTransition(to.order.Status, status) {
		t.logger.Warn("illegal order transition, dropping",
			"order_id", id,
			"from", to.order.Status,
			"to", status,
		)
		return model.Order{}, false
	}

	to.order.Status = status
	to.order.FilledQty = filledQty
	to.order.AvgFillPrice = avgFillPrice

	if status.IsTerminal() {
		close(to.done)
	}
	return to.order, true
}

// Cancel issues a cancellation request for a working order. Only orders in
// Acknowledged or PartiallyFilled are cancellable; the Cancelled transition
// arrives later as a status event, never synchronously from this call.
func (t *Tracker) Cancel(conn OrderConn, id int64) error {
	t.mu.Lock()
	to, ok := t.orders[id]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("%w: id %d", ErrUnknownOrder, id)
	}
	status := to.order.Status
	t.mu.Unlock()

	switch status {
	case model.StatusAcknowledged, model.StatusPartiallyFilled:
	default:
		return fmt.Errorf("%w: order %d is %s", ErrNotCancellable, id, status)
	}

	if err := conn.CancelOrder(id); err != nil {
		return fmt.Errorf("cancel order %d: %w", id, err)
	}
	t.logger.Info("cancel requested", "order_id", id)
	return nil
}

// AwaitTerminal blocks until the order reaches a terminal status or the
// timeout elapses, then returns the current snapshot. Timing out is not an
// error; the caller inspects Status.IsTerminal(). A zero or negative timeout
// returns the current state immediately.
func (t *Tracker) AwaitTerminal(id int64, timeout time.Duration) (model.Order, error) {
	t.mu.Lock()
	to, ok := t.orders[id]
	if !ok {
		t.mu.Unlock()
		return model.Order{}, fmt.Errorf("%w: id %d", ErrUnknownOrder, id)
	}
	done := to.done
	t.mu.Unlock()

	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()

		select {
		case <-done:
		case <-timer.C:
		}
	}

	t.mu.Lock()
	out := to.order
	t.mu.Unlock()
	return out, nil
}

// Get returns a value snapshot of the order.
func (t *Tracker) Get(id int64) (model.Order, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	to, ok := t.orders[id]
	if !ok {
		return model.Order{}, false
	}
	return to.order, true
}

// All returns value snapshots of every tracked order.
func (t *Tracker) All() []model.Order {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]model.Order, 0, len(t.orders))
	for _, to := range t.orders {
		out = append(out, to.order)
	}
	return out
}

// Forget discards a terminal order. Orders still in flight stay tracked.
func (t *Tracker) Forget(id int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	to, ok := t.orders[id]
	if !ok {
		return fmt.Errorf("%w: id %d", ErrUnknownOrder, id)
	}
	if !to.order.Status.IsTerminal() {
		return fmt.Errorf("%w: order %d is %s", ErrNotTerminal, id, to.order.Status)
	}
	delete(t.orders, id)
	return nil
}
