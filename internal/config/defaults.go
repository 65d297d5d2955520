package config

import "time"

// Default values for optional configuration fields. The gateway defaults
// target a locally running paper-trading gateway.
const (
	DefaultHost           = "127.0.0.1"
	DefaultPort           = 4002
	DefaultClientID       = 1
	DefaultOrderClientID  = 2
	DefaultConnectTimeout = 10 * time.Second
	DefaultRequestTimeout = 10 * time.Second
	DefaultPingInterval   = 15 * time.Second
	DefaultPingTimeout    = 60 * time.Second
	DefaultBufferSize     = 4096
	DefaultOrderSymbol    = "AAPL"
	DefaultOrderAction    = "BUY"
	DefaultOrderQuantity  = 10
	DefaultOrderPrice     = 150.00
	DefaultAwaitTimeout   = 30 * time.Second
)

func (c *Config) applyDefaults() {
	if c.Gateway.Host == "" {
		c.Gateway.Host = DefaultHost
	}
	if c.Gateway.Port == 0 {
		c.Gateway.Port = DefaultPort
	}
	if c.Gateway.ClientID == 0 {
		c.Gateway.ClientID = DefaultClientID
	}
	if c.Gateway.ConnectTimeout == 0 {
		c.Gateway.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Gateway.RequestTimeout == 0 {
		c.Gateway.RequestTimeout = DefaultRequestTimeout
	}
	if c.Gateway.PingInterval == 0 {
		c.Gateway.PingInterval = DefaultPingInterval
	}
	if c.Gateway.PingTimeout == 0 {
		c.Gateway.PingTimeout = DefaultPingTimeout
	}
	if c.Gateway.BufferSize == 0 {
		c.Gateway.BufferSize = DefaultBufferSize
	}

	if len(c.Stream.Symbols) == 0 {
		c.Stream.Symbols = []string{"AAPL", "MSFT", "AMZN"}
	}

	if c.Order.ClientID == 0 {
		c.Order.ClientID = DefaultOrderClientID
	}
	if c.Order.Symbol == "" {
		c.Order.Symbol = DefaultOrderSymbol
	}
	if c.Order.Action == "" {
		c.Order.Action = DefaultOrderAction
	}
	if c.Order.Quantity == 0 {
		c.Order.Quantity = DefaultOrderQuantity
	}
	if c.Order.LimitPrice == 0 {
		c.Order.LimitPrice = DefaultOrderPrice
	}
	if c.Order.AwaitTimeout == 0 {
		c.Order.AwaitTimeout = DefaultAwaitTimeout
	}
}
