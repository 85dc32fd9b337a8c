package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/Tyrowin/countsync/internal/logging"
	"github.com/Tyrowin/countsync/internal/metrics"
	"github.com/Tyrowin/countsync/internal/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Local .env is optional.
	_ = godotenv.Load()

	cfg := server.NewConfigFromEnv()
	logger := logging.New(cfg.Env, os.Stdout)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	m := metrics.New()
	hub := server.NewHub(*cfg, logger, m)
	httpServer := server.CreateServer(cfg.Port, server.SetupRoutes(hub, m, *cfg, logger))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.StartServer(httpServer, logger)
	})
	g.Go(func() error {
		<-ctx.Done()
		// Hijacked WebSocket connections are not tracked by http.Server, so
		// the hub closes them itself.
		httpErr := server.ShutdownServer(httpServer, shutdownTimeout, logger)
		if err := hub.Shutdown(shutdownTimeout); err != nil {
			return err
		}
		return httpErr
	})

	if err := g.Wait(); err != nil {
		logger.Error("server.exit", "err", err)
		os.Exit(1)
	}
}
