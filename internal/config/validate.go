package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Gateway.Host == "" {
		return errors.New("gateway.host is required")
	}
	if c.Gateway.Port < 1 || c.Gateway.Port > 65535 {
		return fmt.Errorf("gateway.port must be between 1 and 65535, got %d", c.Gateway.Port)
	}
	if c.Gateway.ClientID < 1 {
		return errors.New("gateway.client_id must be >= 1")
	}
	if c.Gateway.BufferSize < 1 {
		return errors.New("gateway.buffer_size must be >= 1")
	}

	for _, sym := range c.Stream.Symbols {
		if sym == "" {
			return errors.New("stream.symbols must not contain empty symbols")
		}
	}

	if c.Order.ClientID < 1 {
		return errors.New("order.client_id must be >= 1")
	}
	if c.Order.ClientID == c.Gateway.ClientID {
		return fmt.Errorf("order.client_id (%d) must differ from gateway.client_id: identities must be unique per concurrent session", c.Order.ClientID)
	}
	if c.Order.Action != "BUY" && c.Order.Action != "SELL" {
		return fmt.Errorf("order.action must be BUY or SELL, got %q", c.Order.Action)
	}
	if c.Order.Quantity < 1 {
		return errors.New("order.quantity must be >= 1")
	}
	if c.Order.LimitPrice <= 0 {
		return errors.New("order.limit_price must be > 0")
	}

	return nil
}
