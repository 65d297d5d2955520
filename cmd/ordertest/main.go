// ordertest connects to the brokerage gateway with the order client
// identity, places the configured limit order, and waits for a terminal
// status, logging every lifecycle transition along the way.
// Usage: go run ./cmd/ordertest --config configs/client.yaml
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/rickgao/ibgw/internal/config"
	"github.com/rickgao/ibgw/internal/model"
	"github.com/rickgao/ibgw/internal/session"
	"github.com/rickgao/ibgw/internal/transport/ws"
	"github.com/rickgao/ibgw/internal/version"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults apply when empty)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadAndValidate(*configPath)
		if err != nil {
			logger.Error("failed to load config", "error", err)
			os.Exit(1)
		}
	} else {
		cfg = config.Default()
	}

	logger.Info("ordertest starting", "version", version.String())

	mgr := session.New(ws.Factory(ws.Config{
		HandshakeTimeout: cfg.Gateway.ConnectTimeout,
		RequestTimeout:   cfg.Gateway.RequestTimeout,
		PingInterval:     cfg.Gateway.PingInterval,
		PingTimeout:      cfg.Gateway.PingTimeout,
		BufferSize:       cfg.Gateway.BufferSize,
	}, logger), logger)

	mgr.OnOrderStatus(func(o model.Order) {
		logger.Info("order status",
			"order_id", o.ID,
			"status", o.Status,
			"filled", o.FilledQty,
			"avg_fill_price", o.AvgFillPrice,
		)
	})
	mgr.OnDisconnect(func() {
		logger.Warn("gateway session lost")
	})

	ctx := context.Background()
	if err := mgr.Connect(ctx, cfg.Gateway.Host, cfg.Gateway.Port, cfg.Order.ClientID, cfg.Gateway.ConnectTimeout); err != nil {
		logger.Error("connect failed", "error", err)
		os.Exit(1)
	}
	defer mgr.Disconnect()

	inst := model.Stock(cfg.Order.Symbol)
	order, err := mgr.PlaceOrder(inst, model.Side(cfg.Order.Action), cfg.Order.Quantity, model.OrderTypeLimit, cfg.Order.LimitPrice)
	if err != nil {
		logger.Error("place order failed", "error", err)
		os.Exit(1)
	}

	logger.Info("order placed",
		"order_id", order.ID,
		"instrument", inst.String(),
		"side", order.Side,
		"qty", order.Quantity,
		"limit_price", order.LimitPrice,
	)

	final, err := mgr.AwaitTerminal(order.ID, cfg.Order.AwaitTimeout)
	if err != nil {
		logger.Error("await terminal failed", "error", err)
		os.Exit(1)
	}

	if final.Status.IsTerminal() {
		logger.Info("order reached terminal state",
			"order_id", final.ID,
			"status", final.Status,
			"filled", final.FilledQty,
			"avg_fill_price", final.AvgFillPrice,
		)
	} else {
		logger.Warn("order still working after timeout",
			"order_id", final.ID,
			"status", final.Status,
			"filled", final.FilledQty,
		)
	}
}
