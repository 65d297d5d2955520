package transport

import (
	"context"
	"errors"
	"time"

	"github.com/rickgao/ibgw/internal/model"
)

// Errors
var (
	ErrNotConnected  = errors.New("not connected")
	ErrTimeout       = errors.New("operation timeout")
	ErrAlreadyClosed = errors.New("already closed")
)

// Transport is one session's wire to the brokerage gateway.
//
// Open authenticates with the gateway using the given client identity; the
// identity must be unique per concurrent session against the same gateway.
// After a successful Open the Events channel yields push events until the
// transport shuts down, at which point the channel is closed. A failure
// detected by the transport itself emits exactly one disconnect event before
// closing the channel; an explicit Close does not.
type Transport interface {
	Open(ctx context.Context, host string, port int, clientID int) error
	Close() error

	RequestMarketData(inst model.Instrument) (token string, err error)
	CancelMarketData(token string) error

	SubmitOrder(req OrderRequest) (orderID int64, err error)
	CancelOrder(orderID int64) error

	Events() <-chan Event
}

// Factory produces a fresh Transport for each session attempt.
type Factory func() Transport

// OrderRequest is a new-order submission.
type OrderRequest struct {
	Instrument model.Instrument
	Side       model.Side
	Type       model.OrderType
	Quantity   int64
	LimitPrice float64
}

// EventKind classifies a push event.
type EventKind int

const (
	KindTicker EventKind = iota + 1
	KindOrderStatus
	KindDisconnect
)

// String returns the kind name for logging.
func (k EventKind) String() string {
	switch k {
	case KindTicker:
		return "ticker"
	case KindOrderStatus:
		return "order_status"
	case KindDisconnect:
		return "disconnect"
	default:
		return "unknown"
	}
}

// Event is one tagged push event from the gateway. Exactly one of the
// payload pointers matching Kind is non-nil; disconnect has no payload.
type Event struct {
	Kind        EventKind
	Ticker      *TickerEvent
	OrderStatus *OrderStatusEvent
}

// TickerEvent is a (possibly partial) market-data update.
type TickerEvent struct {
	Instrument model.Instrument
	Fields     model.TickerFields
	ReceivedAt time.Time // local timestamp when the transport read the event
}

// OrderStatusEvent is an asynchronous order lifecycle update.
type OrderStatusEvent struct {
	OrderID      int64
	Status       model.OrderStatus
	FilledQty    int64
	AvgFillPrice float64
}
