package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/rickgao/imlink/internal/client"
	"github.com/rickgao/imlink/internal/config"
	"github.com/rickgao/imlink/internal/database"
	"github.com/rickgao/imlink/internal/event"
	"github.com/rickgao/imlink/internal/journal"
	"github.com/rickgao/imlink/internal/metrics"
	"github.com/rickgao/imlink/internal/protocol"
	"github.com/rickgao/imlink/internal/version"
)

func main() {
	configPath := flag.String("config", "imlink.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	logger.Info("starting imlink",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
		"url", cfg.Server.URL,
		"uid", cfg.Auth.UID,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	var m *metrics.Metrics
	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		m = metrics.New()
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, m.Handler())
		metricsServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler: mux,
		}
		go func() {
			logger.Info("starting metrics server", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
			if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server error", "error", err)
			}
		}()
	}

	c, err := client.Init(*cfg, client.WithLogger(logger), client.WithMetrics(m))
	if err != nil {
		logger.Error("failed to create client", "error", err)
		os.Exit(1)
	}
	defer client.Shutdown()

	if cfg.Journal.Enabled {
		logger.Info("connecting to database",
			"host", cfg.Journal.Database.Host,
			"port", cfg.Journal.Database.Port,
			"database", cfg.Journal.Database.Name,
		)
		pool, err := database.Connect(ctx, cfg.Journal.Database)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		if err := journal.EnsureSchema(ctx, pool); err != nil {
			logger.Error("failed to prepare journal schema", "error", err)
			os.Exit(1)
		}

		j := journal.New(journal.Config{
			BatchSize:     cfg.Journal.BatchSize,
			FlushInterval: cfg.Journal.FlushInterval,
		}, pool, cfg.Auth.UID, cfg.Auth.DeviceID, logger.With("component", "journal"))
		j.Attach(c.Bus())
		if err := j.Start(ctx); err != nil {
			logger.Error("failed to start journal", "error", err)
			os.Exit(1)
		}
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer stopCancel()
			j.Stop(stopCtx)
		}()
	}

	printEvents(c)

	if err := c.Connect(ctx); err != nil {
		logger.Error("failed to connect", "error", err)
		os.Exit(1)
	}

	go readInput(ctx, c, logger)

	<-ctx.Done()

	logger.Info("shutting down...")
	c.Disconnect()

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		metricsServer.Shutdown(shutdownCtx)
	}

	logger.Info("imlink stopped")
}

// printEvents writes session events to stdout.
func printEvents(c *client.Client) {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()

	c.Subscribe(client.EventConnect, event.On(func(r protocol.ConnectResult) {
		fmt.Printf("%s time_diff=%dms\n", green("connected"), r.TimeDiff)
	}))
	c.Subscribe(client.EventDisconnect, event.On(func(d client.DisconnectInfo) {
		fmt.Printf("%s code=%d reason=%q\n", yellow("disconnected"), d.Code, d.Reason)
	}))
	c.Subscribe(client.EventReconnecting, event.On(func(r client.ReconnectInfo) {
		fmt.Printf("%s attempt=%d delay=%s\n", yellow("reconnecting"), r.Attempt, r.Delay)
	}))
	c.Subscribe(client.EventError, event.On(func(e client.ErrorInfo) {
		fmt.Printf("%s [%d] %s\n", red("error"), e.Code, e.Message)
	}))
	c.Subscribe(client.EventMessage, event.On(func(msg protocol.Message) {
		fmt.Printf("%s %s/%s seq=%d %s\n", cyan(msg.FromUID), msg.ChannelType, msg.ChannelID, msg.MessageSeq, msg.Payload)
	}))
	c.Subscribe(client.EventSendAck, event.On(func(a client.SendAck) {
		fmt.Printf("%s %s id=%s seq=%d\n", green("sent"), a.ChannelID, a.MessageID, a.MessageSeq)
	}))
}

// readInput sends each "channel_id text" line from stdin as a person
// channel text message.
func readInput(ctx context.Context, c *client.Client, logger *slog.Logger) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		req, err := parseInput(line)
		if err != nil {
			logger.Warn("bad input", "error", err)
			continue
		}
		if _, err := c.Send(ctx, req); err != nil {
			logger.Warn("send failed", "channel_id", req.ChannelID, "error", err)
		}
	}
}

// parseInput turns "channel_id text" into a text message request.
func parseInput(line string) (client.SendRequest, error) {
	channelID, text, ok := strings.Cut(strings.TrimSpace(line), " ")
	if !ok || channelID == "" || strings.TrimSpace(text) == "" {
		return client.SendRequest{}, errors.New("expected: <channel_id> <text>")
	}

	payload, err := json.Marshal(map[string]any{"type": 1, "content": strings.TrimSpace(text)})
	if err != nil {
		return client.SendRequest{}, fmt.Errorf("encode payload: %w", err)
	}
	return client.SendRequest{
		ChannelID:   channelID,
		ChannelType: protocol.ChannelPerson,
		Payload:     payload,
	}, nil
}
