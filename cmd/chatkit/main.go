// Package main implements a terminal chat client for exercising a
// ChatKit deployment: it joins one room, prints messages, typing
// indicators and presence changes, and sends each line read from
// stdin.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/chatkit"
	"github.com/c360/chatkit/config"
	"github.com/c360/chatkit/errors"
	"github.com/c360/chatkit/message"
	"github.com/c360/chatkit/metric"
	"github.com/c360/chatkit/presence"
	"github.com/c360/chatkit/room"
)

const appName = "chatkit"

func main() {
	if err := run(); err != nil {
		slog.Error("chat client failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "", "path to YAML configuration")
		roomName   = flag.String("room", "general", "room to join")
		clientID   = flag.String("client-id", "", "identity to publish under")
		logLevel   = flag.String("log-level", "info", "log level (debug, info, warn, error)")
	)
	flag.Parse()

	logger, err := newLogger(*logLevel)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	cfg := config.Default()
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
		if err != nil {
			return err
		}
	}
	if *clientID != "" {
		cfg.ClientID = *clientID
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := metric.NewMetrics()
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return err
	}

	client, err := chatkit.NewClient(ctx, cfg,
		chatkit.WithLogger(logger),
		chatkit.WithMetrics(metrics),
	)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := client.Close(shutdownCtx); err != nil {
			logger.Error("shutdown failed", "error", err)
		}
	}()

	r, err := client.Room(*roomName)
	if err != nil {
		return err
	}

	r.OnStatusChange(func(change room.StatusChange) {
		logger.Info("room status changed",
			"room", *roomName, "previous", change.Previous, "current", change.Current)
	})
	r.OnDiscontinuity(func(reason *errors.ErrorInfo) {
		logger.Warn("room discontinuity", "room", *roomName, "reason", reason)
	})

	r.Messages().OnSnapshot(func(msgs []*message.Message) {
		if len(msgs) == 0 {
			return
		}
		last := msgs[len(msgs)-1]
		switch last.Action {
		case message.ActionDeleted:
			fmt.Printf("[%s] <%s> (deleted)\n", *roomName, last.ClientID)
		default:
			fmt.Printf("[%s] <%s> %s\n", *roomName, last.ClientID, last.Text)
		}
	})
	r.Typing().OnChange(func(typers []string) {
		if len(typers) > 0 {
			fmt.Printf("[%s] typing: %v\n", *roomName, typers)
		}
	})
	r.Presence().OnChange(func(members []presence.Member) {
		fmt.Printf("[%s] present: %d\n", *roomName, len(members))
	})

	if err := r.Attach(ctx); err != nil {
		return err
	}
	if err := r.Presence().Enter(ctx, nil); err != nil {
		return err
	}
	logger.Info("joined room", "room", *roomName, "client_id", client.ClientID())

	go readInput(ctx, r, logger)

	<-ctx.Done()
	return nil
}

func readInput(ctx context.Context, r *chatkit.ChatRoom, logger *slog.Logger) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if _, err := r.Messages().Send(ctx, line, nil); err != nil {
			logger.Error("send failed", "error", err)
		}
	}
}

func newLogger(level string) (*slog.Logger, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})).
		With("app", appName), nil
}
