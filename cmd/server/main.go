package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pointbot/internal/bot"
	"github.com/pointbot/internal/config"
	"github.com/pointbot/internal/cooldown"
	"github.com/pointbot/internal/handler"
	"github.com/pointbot/internal/kafka"
	"github.com/pointbot/internal/postgres"
	"github.com/pointbot/internal/service"
	"github.com/pointbot/internal/sqlite"
	"github.com/pointbot/internal/telegram"
	"github.com/pointbot/internal/websocket"
	"github.com/pointbot/internal/worker"
)

// pointStore is what the server needs from a storage backend
type pointStore interface {
	service.PointStore
	handler.Store
	RunMigrations(ctx context.Context) error
	Close() error
}

// source is a running message source
type source interface {
	Stop() error
}

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath, true)
	if err != nil {
		fatal(slog.Default(), "failed to load config", err)
	}

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Log.SlogLevel(),
	}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		fatal(logger, "invalid configuration", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openStore(cfg, logger)
	if err != nil {
		fatal(logger, "failed to open point store", err)
	}

	if err := store.RunMigrations(ctx); err != nil {
		_ = store.Close()
		fatal(logger, "failed to run migrations", err)
	}

	// Initialize WebSocket hub
	wsHub := websocket.NewHub(logger)
	go wsHub.Run()

	// Initialize services
	tracker := cooldown.NewTracker()
	engine := service.NewAwardEngine(store, tracker, cfg.Award, cfg.Messages, logger)
	engine.SetListener(wsHub)
	reporter := service.NewReporter(store, cfg.Award, logger)
	dispatcher := bot.NewDispatcher(engine, reporter, cfg.Award.LeaderboardLimit, logger)

	logger.Info("award rules",
		"min_chars", cfg.Award.MinChars,
		"cooldown", cfg.Award.Cooldown(),
		"storage_driver", cfg.Storage.Driver,
	)

	// Serve probes before the sources connect
	httpHandler := handler.NewHandler(reporter, store, tracker, wsHub, logger)
	httpHandler.SetAllowedOrigins(cfg.Server.AllowedOrigins)

	server, addr, err := serveHTTP(cfg.Server, httpHandler.Router(), logger)
	if err != nil {
		fatal(logger, "failed to start HTTP server", err)
	}
	logger.Info("HTTP server listening", "addr", addr.String())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Start message sources
	var sources []source

	if cfg.Telegram.Enabled {
		poller, err := telegram.NewPoller(&cfg.Telegram, dispatcher, logger)
		if err != nil {
			fatal(logger, "failed to connect to Telegram", err)
		}
		if err := poller.Start(ctx); err != nil {
			fatal(logger, "failed to start Telegram poller", err)
		}
		sources = append(sources, poller)
	}

	var replyPublisher *kafka.ReplyPublisher
	if cfg.Kafka.Enabled {
		var replier bot.Replier
		if cfg.Kafka.ReplyTopic != "" {
			replyPublisher, err = kafka.NewReplyPublisher(cfg.Kafka.Brokers, cfg.Kafka.ReplyTopic, logger)
			if err != nil {
				fatal(logger, "failed to create Kafka reply publisher", err)
			}
			replier = replyPublisher
		}

		consumer, err := kafka.NewConsumer(&cfg.Kafka, dispatcher, replier, logger)
		if err != nil {
			fatal(logger, "failed to create Kafka consumer", err)
		}

		startCtx, startCancel := context.WithTimeout(ctx, 30*time.Second)
		err = consumer.Start(startCtx)
		startCancel()
		if err != nil {
			fatal(logger, "failed to start Kafka consumer", err)
		}
		sources = append(sources, consumer)
	}

	// Start cooldown pruning
	pruneWorker := worker.NewPruneWorker(tracker, &cfg.Prune, cfg.Award.Cooldown(), logger)
	if cfg.Prune.Enabled {
		if err := pruneWorker.Start(ctx); err != nil {
			fatal(logger, "failed to start prune worker", err)
		}
	}

	// Wait for interrupt signal
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Sources first so no event is mid-flight when the store closes
	for _, s := range sources {
		if err := s.Stop(); err != nil {
			logger.Error("failed to stop message source", "error", err)
		}
	}
	if replyPublisher != nil {
		if err := replyPublisher.Close(); err != nil {
			logger.Error("failed to close reply publisher", "error", err)
		}
	}

	if err := pruneWorker.Stop(); err != nil {
		logger.Error("failed to stop prune worker", "error", err)
	}

	wsHub.Stop()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	if err := store.Close(); err != nil {
		logger.Error("failed to close point store", "error", err)
	}

	logger.Info("server stopped")
}

// serveHTTP binds the listener before returning so probes answer while the
// message sources are still connecting.
func serveHTTP(cfg config.ServerConfig, h http.Handler, logger *slog.Logger) (*http.Server, net.Addr, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return nil, nil, fmt.Errorf("listening on port %d: %w", cfg.Port, err)
	}

	server := &http.Server{
		Handler:      h,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal(logger, "HTTP server error", err)
		}
	}()
	return server, ln.Addr(), nil
}

func openStore(cfg *config.Config, logger *slog.Logger) (pointStore, error) {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
		repo, err := postgres.NewRepository(&cfg.Postgres, logger)
		if err != nil {
			return nil, err
		}
		return repo, nil
	default:
		logger.Info("opening SQLite database", "path", cfg.Storage.Path)
		repo, err := sqlite.NewRepository(&cfg.Storage, logger)
		if err != nil {
			return nil, err
		}
		return repo, nil
	}
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}
