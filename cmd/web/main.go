package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"thirdcoast.systems/scanwatch/cmd/web/internal/feedhub"
	"thirdcoast.systems/scanwatch/cmd/web/internal/web"
	"thirdcoast.systems/scanwatch/internal/application"
	"thirdcoast.systems/scanwatch/internal/config"
	"thirdcoast.systems/scanwatch/internal/feed"
	"thirdcoast.systems/scanwatch/internal/rollover"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conf, err := config.LoadConfig(ctx)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	application.SetupLogging(conf.LogLevel, conf.LogFormat, "web")
	slog.Info("Starting web service")

	dbc, err := application.OpenStore(ctx, *conf)
	if err != nil {
		slog.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer dbc.Close()
	if err := dbc.CheckSchema(ctx); err != nil {
		slog.Error("store schema check failed", "error", err)
		os.Exit(1)
	}

	loc, err := conf.Location()
	if err != nil {
		slog.Error("invalid time zone", "error", err)
		os.Exit(1)
	}
	sched, err := rollover.NewScheduler(loc, nil)
	if err != nil {
		slog.Error("failed to create rollover scheduler", "error", err)
		os.Exit(1)
	}

	hub := feedhub.NewHub()
	poller := feed.NewPoller(dbc, hub, sched, feed.Config{
		Interval:          conf.Feed.Interval,
		HeartbeatInterval: conf.Feed.HeartbeatInterval,
		BatchLimit:        conf.Feed.BatchLimit,
	})
	sched.OnRollover(poller.HandleRollover)
	if err := poller.Init(ctx); err != nil {
		slog.Error("failed to initialise feed watermark", "error", err)
		os.Exit(1)
	}

	e, err := web.NewWebserver(ctx, web.Options{
		Store:          dbc,
		Scopes:         sched,
		Poller:         poller,
		Hub:            hub,
		RecordingsRoot: conf.Recordings.Root,
		AllowedOrigins: conf.CorsAllowedOrigins,
	})
	if err != nil {
		slog.Error("failed to create webserver", "error", err)
		os.Exit(1)
	}

	addr := ":" + strconv.Itoa(conf.WebServerPort)
	wake := make(chan struct{}, 1)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := sched.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		dbc.Listen(gctx, wake)
		return nil
	})
	g.Go(func() error {
		poller.Run(gctx, wake)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		slog.Info("Listening", "addr", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("web service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("web service stopped")
}
