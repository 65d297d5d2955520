// monitor connects to the brokerage gateway and streams market-data updates
// for the configured symbols to the log until interrupted.
// Usage: go run ./cmd/monitor --config configs/client.yaml
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/rickgao/ibgw/internal/config"
	"github.com/rickgao/ibgw/internal/model"
	"github.com/rickgao/ibgw/internal/session"
	"github.com/rickgao/ibgw/internal/ticker"
	"github.com/rickgao/ibgw/internal/transport/ws"
	"github.com/rickgao/ibgw/internal/version"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults apply when empty)")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
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

	logger.Info("monitor starting", "version", version.String())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	mgr := session.New(ws.Factory(ws.Config{
		HandshakeTimeout: cfg.Gateway.ConnectTimeout,
		RequestTimeout:   cfg.Gateway.RequestTimeout,
		PingInterval:     cfg.Gateway.PingInterval,
		PingTimeout:      cfg.Gateway.PingTimeout,
		BufferSize:       cfg.Gateway.BufferSize,
	}, logger), logger)

	// Log every merged tick.
	mgr.OnTicker(func(sub ticker.Subscription) {
		logger.Info("market data",
			"symbol", sub.Instrument.Symbol,
			"bid", sub.Snapshot.Bid,
			"ask", sub.Snapshot.Ask,
			"last", sub.Snapshot.Last,
			"volume", sub.Snapshot.Volume,
			"high", sub.Snapshot.High,
			"low", sub.Snapshot.Low,
		)
	})

	disconnected := make(chan struct{})
	mgr.OnDisconnect(func() {
		logger.Warn("gateway session lost")
		close(disconnected)
	})

	if err := mgr.Connect(ctx, cfg.Gateway.Host, cfg.Gateway.Port, cfg.Gateway.ClientID, cfg.Gateway.ConnectTimeout); err != nil {
		logger.Error("connect failed", "error", err)
		os.Exit(1)
	}

	for _, sym := range cfg.Stream.Symbols {
		inst := model.Stock(sym)
		if _, err := mgr.Subscribe(inst); err != nil {
			logger.Error("subscribe failed", "instrument", inst.String(), "error", err)
			continue
		}
		logger.Info("subscribed", "instrument", inst.String())
	}

	logger.Info("monitoring market data (ctrl-c to exit)")

	select {
	case <-ctx.Done():
	case <-disconnected:
	}

	if err := mgr.Disconnect(); err != nil {
		logger.Error("disconnect failed", "error", err)
	}

	stats := mgr.DispatchStats()
	logger.Info("monitor stopped",
		"events_received", stats.Received,
		"events_dispatched", stats.Dispatched,
		"events_dropped", stats.Dropped,
	)
}
