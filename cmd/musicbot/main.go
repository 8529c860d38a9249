// Command musicbot runs the music store support bot HTTP server.
//
// Configuration is taken from the environment:
//
//	MUSICBOT_ADDR          listen address (default ":8080")
//	MUSICBOT_STORE         checkpoint store: memory, sqlite, redis, mysql (default "memory")
//	MUSICBOT_SQLITE_PATH   sqlite store path (default "musicbot_threads.db")
//	MUSICBOT_REDIS_ADDR    redis address for the redis store
//	MUSICBOT_MYSQL_DSN     mysql DSN for the mysql store
//	MUSICBOT_CATALOG_PATH  music catalogue database path (default "musicbot_catalog.db")
//	MUSICBOT_PROVIDER      chat model provider: openai, anthropic, google (default: none)
//	OPENAI_API_KEY, ANTHROPIC_API_KEY, GOOGLE_API_KEY
//
// Without a provider the bot runs fully offline on its deterministic
// classifiers and catalogue lookups.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/dshills/convograph/bot"
	"github.com/dshills/convograph/bot/model"
	"github.com/dshills/convograph/bot/model/anthropic"
	"github.com/dshills/convograph/bot/model/google"
	"github.com/dshills/convograph/bot/model/openai"
	"github.com/dshills/convograph/bot/tools"
	"github.com/dshills/convograph/graph"
	"github.com/dshills/convograph/graph/emit"
	"github.com/dshills/convograph/graph/store"
	"github.com/dshills/convograph/server"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	if err := run(logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	catalog, err := tools.OpenCatalog(envOr("MUSICBOT_CATALOG_PATH", "musicbot_catalog.db"))
	if err != nil {
		return fmt.Errorf("open catalogue: %w", err)
	}
	defer catalog.Close()

	chatModel, closeModel, err := newChatModel(ctx, logger)
	if err != nil {
		return err
	}
	if closeModel != nil {
		defer closeModel()
	}

	st, err := newStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	g, err := bot.NewAppGraph(bot.Config{
		Catalog:     catalog,
		Verifier:    tools.NewVerifier(os.Getenv("MUSICBOT_RANDOM_CODES") == "true"),
		LyricSearch: tools.NewLyricSearch(nil),
		VideoSearch: tools.NewVideoSearch(),
		Gateway:     tools.NewPaymentGateway(0),
		ChatModel:   chatModel,
	})
	if err != nil {
		return fmt.Errorf("build graph: %w", err)
	}

	registry := prometheus.NewRegistry()
	engine := graph.New(g, bot.Reduce, st, emit.NewLogEmitter(os.Stdout, true), graph.Options{
		MaxSteps: 64,
		Metrics:  graph.NewMetrics(registry),
	})

	addr := envOr("MUSICBOT_ADDR", ":8080")
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.New(engine, logger, registry).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func newStore() (store.Store[bot.AppState], error) {
	switch backend := envOr("MUSICBOT_STORE", "memory"); backend {
	case "memory":
		return store.NewMemStore[bot.AppState](), nil
	case "sqlite":
		return store.NewSQLiteStore[bot.AppState](envOr("MUSICBOT_SQLITE_PATH", "musicbot_threads.db"))
	case "redis":
		addr := os.Getenv("MUSICBOT_REDIS_ADDR")
		if addr == "" {
			return nil, errors.New("MUSICBOT_REDIS_ADDR is required for the redis store")
		}
		client := redis.NewClient(&redis.Options{Addr: addr})
		return store.NewRedisStore[bot.AppState](client, "musicbot"), nil
	case "mysql":
		dsn := os.Getenv("MUSICBOT_MYSQL_DSN")
		if dsn == "" {
			return nil, errors.New("MUSICBOT_MYSQL_DSN is required for the mysql store")
		}
		return store.NewMySQLStore[bot.AppState](dsn)
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}

func newChatModel(ctx context.Context, logger *slog.Logger) (model.ChatModel, func() error, error) {
	switch provider := os.Getenv("MUSICBOT_PROVIDER"); provider {
	case "":
		logger.Info("no chat model configured, running offline")
		return nil, nil, nil
	case "openai":
		key := os.Getenv("OPENAI_API_KEY")
		if key == "" {
			return nil, nil, errors.New("OPENAI_API_KEY is required for the openai provider")
		}
		return openai.NewChatModel(key, envOr("MUSICBOT_MODEL", openai.DefaultModel)), nil, nil
	case "anthropic":
		key := os.Getenv("ANTHROPIC_API_KEY")
		if key == "" {
			return nil, nil, errors.New("ANTHROPIC_API_KEY is required for the anthropic provider")
		}
		return anthropic.NewChatModel(key, envOr("MUSICBOT_MODEL", anthropic.DefaultModel)), nil, nil
	case "google":
		key := os.Getenv("GOOGLE_API_KEY")
		if key == "" {
			return nil, nil, errors.New("GOOGLE_API_KEY is required for the google provider")
		}
		m, err := google.NewChatModel(ctx, key, envOr("MUSICBOT_MODEL", google.DefaultModel))
		if err != nil {
			return nil, nil, err
		}
		return m, m.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown provider %q", provider)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
