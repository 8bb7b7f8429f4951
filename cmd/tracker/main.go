package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"tracker/internal/config"
	"tracker/internal/events"
	"tracker/internal/server"
	"tracker/internal/storage/sqlite"
	"tracker/internal/tracker"
	"tracker/internal/util"
)

func main() {
	configFlag := flag.String("config", util.EnvOrDefault("TRACKER_CONFIG", "config.yaml"), "Path to YAML config file")
	addrFlag := flag.String("addr", "", "HTTP listen address (overrides config)")
	dbFlag := flag.String("db", "", "Path to sqlite database file (overrides config)")
	staticFlag := flag.String("static", "", "Directory with built frontend (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	cfg.Addr = util.FirstNonEmpty(*addrFlag, cfg.Addr)
	cfg.DBPath = util.FirstNonEmpty(*dbFlag, cfg.DBPath)
	cfg.StaticDir = util.FirstNonEmpty(*staticFlag, cfg.StaticDir)

	logger := cfg.Logger()
	logger.Info("project tracker starting", slog.String("db", cfg.DBPath), slog.String("level", cfg.Level().String()))

	store, err := sqlite.Open(cfg.DBPath, logger)
	if err != nil {
		logger.Error("unable to open database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer store.Close()

	hub := events.NewHub(cfg.EventBuffer, logger)
	engine := tracker.New(store, logger, tracker.WithPublisher(hub))
	srv := server.New(engine, hub, logger, server.Options{
		StaticDir: cfg.StaticDir,
		JWTSecret: cfg.JWTSecret,
		DB:        store,
	})

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: srv.Engine(),
	}

	go func() {
		logger.Info("starting server", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped unexpectedly", slog.String("error", err.Error()))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("failed to shutdown server", slog.String("error", err.Error()))
	}

	logger.Info("server stopped")
}
