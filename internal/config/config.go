// Package config loads YAML configuration for the gateway client commands.
package config

import "time"

// Config is the root configuration.
type Config struct {
	Gateway GatewayConfig `yaml:"gateway"`
	Stream  StreamConfig  `yaml:"stream"`
	Order   OrderConfig   `yaml:"order"`
}

// GatewayConfig holds connection settings for the brokerage gateway.
type GatewayConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	ClientID       int           `yaml:"client_id"` // unique per concurrent session
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	PingTimeout    time.Duration `yaml:"ping_timeout"`
	BufferSize     int           `yaml:"buffer_size"` // event channel capacity
}

// StreamConfig holds market-data settings for cmd/monitor.
type StreamConfig struct {
	Symbols []string `yaml:"symbols"`
}

// OrderConfig holds the test order for cmd/ordertest.
type OrderConfig struct {
	ClientID     int           `yaml:"client_id"` // separate identity for order sessions
	Symbol       string        `yaml:"symbol"`
	Action       string        `yaml:"action"` // BUY or SELL
	Quantity     int64         `yaml:"quantity"`
	LimitPrice   float64       `yaml:"limit_price"`
	AwaitTimeout time.Duration `yaml:"await_timeout"`
}
