package model

// Side is the order direction.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Valid reports whether s is a known side.
func (s Side) Valid() bool { return s == SideBuy || s == SideSell }

// OrderType selects order pricing semantics.
type OrderType string

const (
	OrderTypeMarket OrderType = "MKT"
	OrderTypeLimit  OrderType = "LMT"
)

// Valid reports whether t is a known order type.
func (t OrderType) Valid() bool { return t == OrderTypeMarket || t == OrderTypeLimit }

// OrderStatus is the lifecycle state of an order.
//
// Legal transitions:
//
//	Submitted       → Acknowledged, Rejected, PartiallyFilled, Filled
//	Acknowledged    → PartiallyFilled, Filled, Cancelled
//	PartiallyFilled → PartiallyFilled, Filled, Cancelled
//
// Rejected, Filled, and Cancelled are terminal.
type OrderStatus string

const (
	StatusSubmitted       OrderStatus = "Submitted"
	StatusAcknowledged    OrderStatus = "Acknowledged"
	StatusRejected        OrderStatus = "Rejected"
	StatusPartiallyFilled OrderStatus = "PartiallyFilled"
	StatusFilled          OrderStatus = "Filled"
	StatusCancelled       OrderStatus = "Cancelled"
)

// IsTerminal reports whether no further transition can occur.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case StatusRejected, StatusFilled, StatusCancelled:
		return true
	default:
		return false
	}
}

// Order is a value snapshot of a tracked order. Handlers and callers receive
// copies; the tracker's internal state is only mutated by gateway status
// events arriving through the dispatch loop.
type Order struct {
	ID         int64 // broker-assigned, set after successful submission
	Instrument Instrument
	Side       Side
	Type       OrderType
	Quantity   int64
	LimitPrice float64 // limit orders only

	Status       OrderStatus
	FilledQty    int64
	AvgFillPrice float64
}
