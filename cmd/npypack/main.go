package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ngnhng/npymsgpack/internal/app"
	"github.com/ngnhng/npymsgpack/internal/config"
	"github.com/ngnhng/npymsgpack/internal/logger"
)

func main() {
	publish := flag.Bool("publish", false, "publish the packed arrays to NATS_SUBJECT")
	subscribe := flag.Bool("subscribe", false, "log arrays received on NATS_SUBJECT until interrupted")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	l, err := logger.NewLogger(ctx, cfg)
	if err != nil {
		slog.Error("failed to build logger", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(l.Slogger)

	runErr := app.Run(ctx, cfg, l.Slogger, app.Options{Publish: *publish, Subscribe: *subscribe})
	if err := l.Shutdown(context.Background()); err != nil {
		slog.Warn("failed to flush logs", "error", err)
	}
	if runErr != nil {
		slog.Error("npypack exited with error", "error", runErr)
		os.Exit(1)
	}
}
