package ws

import (
	"encoding/json"
	"time"

	"github.com/rickgao/ibgw/internal/model"
)

// Command is a request sent to the gateway. IDs are uuid strings so
// responses can be correlated to waiting callers.
type Command struct {
	ID     string      `json:"id"`
	Cmd    string      `json:"cmd"` // "auth", "subscribe", "unsubscribe", "order", "cancel_order"
	Params interface{} `json:"params,omitempty"`
}

// AuthParams carries the client identity for the session handshake.
type AuthParams struct {
	ClientID int `json:"client_id"`
}

// SubscribeParams requests a market-data stream for one instrument.
type SubscribeParams struct {
	Symbol   string `json:"symbol"`
	SecType  string `json:"sec_type"`
	Exchange string `json:"exchange"`
	Currency string `json:"currency"`
}

// UnsubscribeParams cancels a market-data stream by its token.
type UnsubscribeParams struct {
	Token string `json:"token"`
}

// OrderParams submits a new order.
type OrderParams struct {
	Symbol     string  `json:"symbol"`
	SecType    string  `json:"sec_type"`
	Exchange   string  `json:"exchange"`
	Currency   string  `json:"currency"`
	Side       string  `json:"side"`
	Type       string  `json:"type"`
	Quantity   int64   `json:"quantity"`
	LimitPrice float64 `json:"limit_price,omitempty"`
}

// CancelOrderParams cancels a working order by broker id.
type CancelOrderParams struct {
	OrderID int64 `json:"order_id"`
}

// Response is a command response from the gateway.
type Response struct {
	ID   string          `json:"id"`
	Type string          `json:"type"` // "ok" or "error"
	Msg  json.RawMessage `json:"msg"`
}

// ErrorMsg is the payload of an "error" response.
type ErrorMsg struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SubscribedMsg is the payload of an "ok" response to subscribe.
type SubscribedMsg struct {
	Token string `json:"token"`
}

// OrderAcceptedMsg is the payload of an "ok" response to order.
type OrderAcceptedMsg struct {
	OrderID int64 `json:"order_id"`
}

// dataMessage is a push message envelope from the gateway.
type dataMessage struct {
	Type string          `json:"type"` // "ticker" or "order_status"
	Msg  json.RawMessage `json:"msg"`
}

// tickerWire is the wire format of a ticker push. Absent fields mean the
// gateway sent a partial tick; pointers preserve that distinction.
type tickerWire struct {
	Symbol   string   `json:"symbol"`
	SecType  string   `json:"sec_type"`
	Exchange string   `json:"exchange"`
	Currency string   `json:"currency"`
	Bid      *float64 `json:"bid,omitempty"`
	Ask      *float64 `json:"ask,omitempty"`
	Last     *float64 `json:"last,omitempty"`
	Volume   *float64 `json:"volume,omitempty"`
	High     *float64 `json:"high,omitempty"`
	Low      *float64 `json:"low,omitempty"`
}

func (w tickerWire) instrument() model.Instrument {
	return model.Instrument{
		Symbol:   w.Symbol,
		SecType:  w.SecType,
		Exchange: w.Exchange,
		Currency: w.Currency,
	}
}

func (w tickerWire) fields() model.TickerFields {
	return model.TickerFields{
		Bid:    w.Bid,
		Ask:    w.Ask,
		Last:   w.Last,
		Volume: w.Volume,
		High:   w.High,
		Low:    w.Low,
	}
}

// orderStatusWire is the wire format of an order_status push.
type orderStatusWire struct {
	OrderID      int64   `json:"order_id"`
	Status       string  `json:"status"`
	FilledQty    int64   `json:"filled"`
	AvgFillPrice float64 `json:"avg_fill_price"`
}

// Config configures the websocket transport.
type Config struct {
	Path             string        // URL path on the gateway, e.g. "/v1/stream"
	HandshakeTimeout time.Duration // dial + auth deadline components
	RequestTimeout   time.Duration // max wait for a command response
	WriteTimeout     time.Duration // write deadline per frame
	PingInterval     time.Duration // keepalive ping cadence
	PingTimeout      time.Duration // max silence before the connection is stale
	BufferSize       int           // event channel capacity
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Path:             "/v1/stream",
		HandshakeTimeout: 10 * time.Second,
		RequestTimeout:   10 * time.Second,
		WriteTimeout:     5 * time.Second,
		PingInterval:     15 * time.Second,
		PingTimeout:      60 * time.Second,
		BufferSize:       4096,
	}
}
