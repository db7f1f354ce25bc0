package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"shopcalls/internal/app"
	"shopcalls/internal/config"
	"shopcalls/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// a missing .env is normal outside local development
	_ = godotenv.Load()

	root := NewRootCommand(ctx, loadApp)
	if err := root.ExecuteContext(ctx); err != nil {
		slog.Error("callsync failed", "err", err)
		stop()
		os.Exit(1)
	}
}

// loadApp is only called by commands that need storage or providers.
func loadApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)
	return app.New(ctx, cfg, log)
}
