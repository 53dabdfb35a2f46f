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

	"hardcover_rss/config"
	redisClient "hardcover_rss/data/redis"
	"hardcover_rss/internal/feed"
	"hardcover_rss/internal/fetcher"
	"hardcover_rss/internal/scheduler"
	"hardcover_rss/internal/service/feedService"
	"hardcover_rss/internal/store"
	"hardcover_rss/internal/transport/rest"
)

func main() {
	cfg := config.MustLoad()

	setupLogger(cfg)

	slog.Debug("config", slog.Any("cfg", cfg))

	rdb := redisClient.MustInitRedis(cfg)
	defer rdb.Close()

	redisStore := store.NewRedisStore(rdb)

	hardcoverFetcher := fetcher.New(cfg)

	feedSvc := feedService.New(cfg, redisStore, hardcoverFetcher)

	feedGenerator := feed.NewGenerator(cfg)

	sched := scheduler.New(cfg, feedSvc)
	sched.Start()
	defer sched.Stop()

	controller := rest.NewController(cfg, feedSvc, feedGenerator, sched)

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Http.Host, cfg.Http.Port),
		Handler: controller.Router(),
	}

	go func() {
		slog.Info("http server listening", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", slog.String("err", err.Error()))
			os.Exit(1)
		}
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	<-interrupt

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Http.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", slog.String("err", err.Error()))
	}
}

func setupLogger(cfg *config.Config) {
	var logLevel slog.Level

	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(log)
}
