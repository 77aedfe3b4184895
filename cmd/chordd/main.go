// Command chordd runs one ring node: the TCP transport for peer RPCs and
// an optional HTTP monitoring API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gaaliciA1990/Distributed-Systems/internal/api"
	"github.com/gaaliciA1990/Distributed-Systems/internal/chord"
	"github.com/gaaliciA1990/Distributed-Systems/internal/config"
	"github.com/gaaliciA1990/Distributed-Systems/internal/transport"
	"github.com/gaaliciA1990/Distributed-Systems/pkg"
)

func main() {
	host := flag.String("host", "127.0.0.1", "Host address to advertise and bind")
	port := flag.Int("port", 7000, "Port for ring RPC traffic")
	apiPort := flag.Int("api-port", 0, "Port for the HTTP monitoring API (0 disables)")
	bootstrap := flag.String("bootstrap", "", "Existing member (host:port) to join; empty creates a new ring")
	stabilize := flag.Duration("stabilize-interval", 500*time.Millisecond, "Successor verification interval")
	fixFingers := flag.Duration("fix-fingers-interval", 100*time.Millisecond, "Finger refresh interval")
	rpcTimeout := flag.Duration("rpc-timeout", 3*time.Second, "Per-RPC timeout")
	logLevel := flag.String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	logFormat := flag.String("log-format", "console", "Log format (json, console)")
	logFile := flag.String("log-file", "", "Rotated log file path (empty logs to stdout only)")
	flag.Parse()

	cfg := config.DefaultConfig()
	cfg.Host = *host
	cfg.Port = *port
	cfg.APIPort = *apiPort
	cfg.Bootstrap = *bootstrap
	cfg.StabilizeInterval = *stabilize
	cfg.FixFingersInterval = *fixFingers
	cfg.RPCTimeout = *rpcTimeout
	cfg.LogLevel = *logLevel
	cfg.LogFormat = *logFormat
	cfg.LogFile = *logFile

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	loggerConfig := pkg.DefaultLoggerConfig()
	loggerConfig.Level = cfg.LogLevel
	loggerConfig.Format = cfg.LogFormat
	loggerConfig.FilePath = cfg.LogFile

	logger, err := pkg.NewLogger(loggerConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}

	logger.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Int("api_port", cfg.APIPort).
		Msg("starting node")

	node, err := chord.NewChordNode(cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to create node")
		os.Exit(1)
	}

	client := transport.NewClient(cfg, logger)
	node.SetRemote(client)

	var hub *api.WebSocketHub
	if cfg.APIPort != 0 {
		hub = api.NewWebSocketHub(logger)
		node.SetEvents(hub)
	}

	server := transport.NewServer(node, cfg, logger)

	// A joiner imports its key range before it starts answering peers, so
	// no request can observe it half-owned. The listener therefore comes
	// up only after Create or Join finished.
	if cfg.Bootstrap == "" {
		if err := node.Create(); err != nil {
			logger.Error().Err(err).Msg("failed to create ring")
			os.Exit(1)
		}
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		err := node.Join(ctx, cfg.Bootstrap)
		cancel()
		if err != nil {
			logger.Error().Err(err).Msg("failed to join ring")
			node.Shutdown()
			os.Exit(1)
		}
	}

	if err := server.Start(cfg.Address()); err != nil {
		logger.Error().Err(err).Msg("failed to start transport")
		node.Shutdown()
		os.Exit(1)
	}

	var apiServer *api.Server
	if cfg.APIPort != 0 {
		apiServer, err = api.NewServer(node, client, hub, logger)
		if err != nil {
			logger.Error().Err(err).Msg("failed to create http api")
			cleanup(node, server, nil, logger)
			os.Exit(1)
		}
		if err := apiServer.Start(cfg.APIPort); err != nil {
			logger.Error().Err(err).Msg("failed to start http api")
			cleanup(node, server, nil, logger)
			os.Exit(1)
		}
	}

	logger.Info().
		Str("address", cfg.Address()).
		Msg("node is ready")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info().
		Str("signal", sig.String()).
		Msg("received shutdown signal")

	cleanup(node, server, apiServer, logger)
	logger.Info().Msg("node shutdown complete")
}

func cleanup(node *chord.ChordNode, server *transport.Server, apiServer *api.Server, logger *pkg.Logger) {
	if apiServer != nil {
		if err := apiServer.Stop(); err != nil {
			logger.Error().Err(err).Msg("error stopping http api")
		}
	}
	if err := server.Stop(); err != nil {
		logger.Error().Err(err).Msg("error stopping transport")
	}
	if err := node.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("error shutting down node")
	}
}
