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

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"
	"thirdcoast.systems/scanwatch/internal/application"
	"thirdcoast.systems/scanwatch/internal/config"
	"thirdcoast.systems/scanwatch/internal/enrich"
	"thirdcoast.systems/scanwatch/internal/ingest"
	"thirdcoast.systems/scanwatch/internal/metrics"
	"thirdcoast.systems/scanwatch/internal/recording"
	"thirdcoast.systems/scanwatch/internal/rollover"
	"thirdcoast.systems/scanwatch/internal/watcher"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conf, err := config.LoadConfig(ctx)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	application.SetupLogging(conf.LogLevel, conf.LogFormat, "scanner")
	slog.Info("Starting scanner service", "root", conf.Recordings.Root, "layout", conf.Recordings.Layout)

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
	sched.OnRollover(func(_ context.Context, prev, next *rollover.Scope) {
		slog.Info("ingest scope replaced", "from", prev.Bucket, "to", next.Bucket,
			"previous_started", humanize.Time(prev.Start), "cached_identities", humanize.Comma(int64(prev.Len())))
	})

	collab, err := buildCollaborators(conf.Services)
	if err != nil {
		slog.Error("failed to configure collaborators", "error", err)
		os.Exit(1)
	}

	queue := enrich.NewQueue(conf.Pipeline.EnrichQueue)
	pipeline, err := enrich.New(dbc, collab, queue)
	if err != nil {
		slog.Error("failed to create enrichment pipeline", "error", err)
		os.Exit(1)
	}

	ingestor := ingest.New(dbc, sched, queue, conf.Recordings.Root, loc)
	w := watcher.New(watcher.Config{
		Root:         conf.Recordings.Root,
		Layout:       conf.Recordings.Layout,
		Extensions:   conf.Recordings.Extensions,
		Location:     loc,
		ScanInterval: conf.Recordings.ScanInterval,
		StableWindow: conf.Recordings.StableWindow,
		StablePoll:   conf.Recordings.StablePoll,
		MaxWait:      conf.Recordings.StableMaxWait,
		CheckWorkers: conf.Recordings.CheckWorkers,
	})

	g, gctx := errgroup.WithContext(ctx)

	// Rows left mid-pipeline by a previous run are picked up from yesterday
	// on, so a crash shortly after midnight is still recovered.
	stopRecovery, err := pipeline.ScheduleRecovery(gctx, conf.Pipeline.RecoverySchedule, loc, func() string {
		return recording.BucketOf(time.Now().AddDate(0, 0, -1), loc)
	})
	if err != nil {
		slog.Error("failed to schedule recovery", "error", err)
		os.Exit(1)
	}
	defer stopRecovery()

	ready := make(chan watcher.Ready, conf.Pipeline.IngestWorkers*4)

	g.Go(func() error {
		if err := sched.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return w.Run(gctx, ready)
	})
	g.Go(func() error {
		ingestor.Run(gctx, ready, conf.Pipeline.IngestWorkers)
		return nil
	})
	g.Go(func() error {
		pipeline.Run(gctx, conf.Pipeline.EnrichWorkers)
		return nil
	})

	metricsSrv := &http.Server{
		Addr:              ":" + strconv.Itoa(conf.MetricsPort),
		Handler:           metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	g.Go(func() error {
		slog.Info("Metrics listening", "addr", metricsSrv.Addr)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("scanner service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Scanner service stopping")
}
