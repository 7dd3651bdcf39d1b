package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"personal/discord_client/src/client"
	"personal/discord_client/src/config"
	"personal/discord_client/src/gateway"
	"personal/discord_client/src/logger"
	"personal/discord_client/src/observability"
	"personal/discord_client/src/rest"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	version    = "dev"
)

func main() {
	os.Exit(start())
}

// start returns the process exit code once every deferred cleanup has run.
func start() int {
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		return 1
	}

	log, closer, err := logger.Setup(cfg.Logging)
	if err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		return 1
	}
	if closer != nil {
		defer closer.Close()
	}
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("Bot stopped", "error", err)
		return 1
	}
	return 0
}

func run(cfg *config.Config, log *slog.Logger) error {
	otelProvider, err := observability.Setup(cfg.Metrics, cfg.Tracing, version)
	if err != nil {
		return fmt.Errorf("failed to initialize observability: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := otelProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Failed to shutdown observability", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b := &bot{prefix: cfg.Prefix, log: log}
	c, err := client.New(ctx, cfg, client.Options{Handlers: b.handlers()}, log)
	if err != nil {
		return err
	}
	defer c.Close()
	b.client = c

	var metricsServer *observability.MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = observability.NewMetricsServer(cfg.Metrics.Port, cfg.Metrics.Path, otelProvider, c.Healthy, log)
		go func() {
			if err := metricsServer.Start(); err != nil {
				log.Error("Metrics server failed", "error", err)
			}
		}()
	}

	err = c.Run(ctx)

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error("Metrics server forced to shutdown", "error", err)
		}
	}

	if errors.Is(err, context.Canceled) {
		log.Info("Shutting down, session kept for resume")
		return nil
	}
	return err
}

// bot answers a few prefix commands.
type bot struct {
	prefix string
	client *client.Client
	log    *slog.Logger
}

func (b *bot) handlers() gateway.Handlers {
	return gateway.Handlers{
		Ready: func(r *gateway.Ready) {
			b.log.Info("Logged in", "user", r.User.Username, "guilds", len(r.Guilds))
		},
		MessageCreate: b.onMessage,
	}
}

func (b *bot) onMessage(ev *gateway.MessageCreate) {
	m := ev.Message
	if m.Author == nil || m.Author.Bot || !strings.HasPrefix(m.Content, b.prefix) {
		return
	}

	command := strings.Fields(strings.TrimPrefix(m.Content, b.prefix))
	if len(command) == 0 {
		return
	}

	var reply string
	switch command[0] {
	case "ping":
		latency, err := b.client.Latency()
		if err != nil {
			reply = "Pong!"
		} else {
			reply = fmt.Sprintf("Pong! %d ms", latency.Milliseconds())
		}
	case "whoami":
		reply = fmt.Sprintf("You are %s (%s)", m.Author.DisplayName(), m.Author.ID)
	case "stats":
		s := b.client.Cache().Stats()
		reply = fmt.Sprintf("Cached: %d users, %d emoji, %d messages", s.Users, s.Emojis, s.Messages)
	default:
		return
	}

	// Handlers run on the gateway loop; the REST call must not hold it up.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := b.client.Reply(ctx, m, reply); err != nil {
			if rest.IsRateLimited(err) {
				b.log.Warn("Reply dropped, rate limited", "channel_id", m.ChannelID)
				return
			}
			b.log.Error("Failed to reply", "channel_id", m.ChannelID, "error", err)
		}
	}()
}
