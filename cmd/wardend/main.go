// Command wardend serves the warden session API.
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

	"github.com/aadithya-v/warden"
	"github.com/aadithya-v/warden/httpapi"
	"github.com/aadithya-v/warden/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("wardend failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	sessions, users, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Store, err)
	}

	manager, err := warden.New(warden.Config{
		Policy:            cfg.Policy,
		Store:             sessions,
		Users:             users,
		Logger:            logger,
		GeoIPDatabasePath: cfg.GeoIPPath,
	})
	if err != nil {
		sessions.Close()
		return err
	}
	defer manager.Close()

	janitor, err := manager.StartCleanup(ctx)
	if err != nil {
		return err
	}

	if cfg.InternalKey == "" {
		logger.Warn("WARDEN_INTERNAL_KEY is not set; internal and admin routes are disabled")
	}

	server := &http.Server{
		Addr: cfg.Addr,
		Handler: httpapi.New(httpapi.Options{
			Manager:     manager,
			InternalKey: cfg.InternalKey,
			Logger:      logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	logger.Info("wardend started",
		"addr", cfg.Addr,
		"store", cfg.Store,
		"env", cfg.Env,
	)

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	janitor.Stop()

	logger.Info("wardend stopped cleanly")
	return nil
}

// openStore opens the configured backend. The SQL and Redis stores double as
// the user directory; the memory store accepts every positive user ID.
func openStore(ctx context.Context, cfg config) (store.SessionStore, warden.UserDirectory, error) {
	switch cfg.Store {
	case "sqlite":
		s, err := store.NewSQLite(cfg.SQLitePath)
		return s, s, err
	case "mysql":
		s, err := store.NewMySQLFromDSN(cfg.MySQLDSN)
		return s, s, err
	case "postgres":
		s, err := store.NewPostgresFromDSN(ctx, cfg.PostgresDSN)
		return s, s, err
	case "redis":
		s, err := store.NewRedisFromConfig(store.RedisConfig{URL: cfg.RedisURL})
		return s, s, err
	case "memory":
		users := warden.UserDirectoryFunc(func(_ context.Context, userID int64) (bool, error) {
			return userID > 0, nil
		})
		return store.NewMemorySessionStore(), users, nil
	}
	return nil, nil, fmt.Errorf("unknown store %q", cfg.Store)
}
