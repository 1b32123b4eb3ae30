// Package main runs a self-contained demonstration of the bridge protocol:
// two endpoints wired over an in-process transport pair exchange a ready
// signal, a request/response round trip, and a shared-state convergence
// round, logging every step.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/saquib34/react-iframe-bridge/bridge"
	"github.com/saquib34/react-iframe-bridge/config"
	"github.com/saquib34/react-iframe-bridge/envelope"
	"github.com/saquib34/react-iframe-bridge/sharedstate"
	"github.com/saquib34/react-iframe-bridge/transport"
)

const (
	hostOrigin  = "https://host.example.com"
	frameOrigin = "https://frame.example.com"
)

func main() {
	if err := run(); err != nil {
		slog.Error("demo failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	ctx := context.Background()

	hostEnd, frameEnd := transport.NewPair(hostOrigin, frameOrigin)

	host, err := startEndpoint(ctx, hostOrigin, frameOrigin, hostEnd, logger)
	if err != nil {
		return err
	}
	defer func() { _ = host.Stop(5 * time.Second) }()

	frame, err := startEndpoint(ctx, frameOrigin, hostOrigin, frameEnd, logger)
	if err != nil {
		return err
	}
	defer func() { _ = frame.Stop(5 * time.Second) }()

	// The host learns when the embedded side comes up.
	host.Subscribe(envelope.TypeReady, func(payload any, _ *envelope.Message) {
		ready, err := envelope.DecodePayload[envelope.ReadyPayload](payload)
		if err != nil {
			logger.Warn("undecodable ready payload", "error", err)
			return
		}
		logger.Info("peer ready", "peer_origin", ready.Origin)
	})

	// The frame answers pings.
	frame.Subscribe("PING", func(payload any, msg *envelope.Message) {
		logger.Info("ping received", "payload", payload)
		if err := frame.Respond(msg, true, map[string]any{"pong": payload}, ""); err != nil {
			logger.Error("pong failed", "error", err)
		}
	})

	if err := frame.SignalReady(); err != nil {
		return fmt.Errorf("signal ready: %w", err)
	}

	answer, err := host.Request(ctx, "PING", "hello from the host")
	if err != nil {
		return fmt.Errorf("ping round trip: %w", err)
	}
	logger.Info("pong received", "payload", answer)

	return runSharedState(ctx, host, frame, logger)
}

func startEndpoint(ctx context.Context, origin, peer string,
	tr transport.Transport, logger *slog.Logger) (*bridge.Bridge, error) {
	cfg := config.DefaultConfig()
	cfg.Origin = origin
	cfg.TargetOrigin = peer
	cfg.AllowedOrigins = []string{peer}
	cfg.Communication.Debug = true

	b := bridge.New(cfg, tr, bridge.WithLogger(logger))
	if err := b.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize %s: %w", origin, err)
	}
	if err := b.Start(ctx); err != nil {
		return nil, fmt.Errorf("start %s: %w", origin, err)
	}
	return b, nil
}

func runSharedState(ctx context.Context, host, frame *bridge.Bridge, logger *slog.Logger) error {
	hostTheme := sharedstate.NewSync("theme", "light", host, logger)
	frameTheme := sharedstate.NewSync("theme", "light", frame, logger)
	if err := hostTheme.Start(ctx); err != nil {
		return err
	}
	defer hostTheme.Stop()
	if err := frameTheme.Start(ctx); err != nil {
		return err
	}
	defer frameTheme.Stop()

	if err := hostTheme.Set("dark"); err != nil {
		return fmt.Errorf("set theme: %w", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for frameTheme.Get() != "dark" {
		if time.Now().After(deadline) {
			return fmt.Errorf("shared state never converged: frame sees %q", frameTheme.Get())
		}
		time.Sleep(10 * time.Millisecond)
	}
	logger.Info("shared state converged",
		"host_theme", hostTheme.Get(), "frame_theme", frameTheme.Get())
	return nil
}
