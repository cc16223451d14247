package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"roster/internal/api"
	"roster/internal/config"
	"roster/internal/logging"
	"roster/internal/memstore"
	"roster/internal/pg"
	"roster/internal/registry"
	"roster/internal/roster"
	"roster/internal/seed"
	"roster/internal/store"
)

func main() {
	// best-effort: real env wins over .env
	_ = godotenv.Load()

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	log, err := logging.New(logging.Config{Level: cfg.LogLevel, Dev: cfg.LogDev})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	reg := registry.Default()

	st, closeStore, err := openStore(ctx, cfg, reg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	svcs, err := roster.New(st, reg, log.Named("service"))
	if err != nil {
		return err
	}

	if cfg.Seed {
		ds, err := seed.Load(cfg.SeedFile)
		if err != nil {
			return err
		}
		if _, err := seed.Apply(ctx, svcs.Teams, ds, log.Named("seed")); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
	}

	if cfg.Env != config.EnvDevelopment {
		gin.SetMode(gin.ReleaseMode)
	}
	handler, err := api.NewRouter(svcs, reg, log.Named("http"), api.Options{
		Dev:         cfg.Dev(),
		CORSOrigins: cfg.CORSOrigins,
		RateLimit:   cfg.RateLimit,
		RateBurst:   cfg.RateBurst,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	log.Info("goodbye")
	return nil
}

// openStore picks Postgres when a URL is configured, the in-memory store
// otherwise. The returned func releases the connection pool.
func openStore(ctx context.Context, cfg config.Config, reg *registry.Registry, log *zap.Logger) (store.Store, func(), error) {
	if cfg.DBURL == "" {
		log.Warn("no database url; using in-memory store")
		return memstore.New(reg), func() {}, nil
	}

	db, err := pg.Open(ctx, cfg.DBDriver, cfg.DBURL)
	if err != nil {
		return nil, nil, err
	}
	if cfg.EnsureSchema {
		if err := pg.EnsureSchema(ctx, db, reg, log.Named("schema")); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("ensure schema: %w", err)
		}
	}
	log.Info("connected to postgres", zap.String("driver", cfg.DBDriver))
	return pg.New(db, reg), func() { _ = db.Close() }, nil
}
