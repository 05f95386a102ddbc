// Package ingest turns ready recordings into stub rows and hands new rows to
// enrichment.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"thirdcoast.systems/scanwatch/internal/incident"
	"thirdcoast.systems/scanwatch/internal/metrics"
	"thirdcoast.systems/scanwatch/internal/recording"
	"thirdcoast.systems/scanwatch/internal/rollover"
	"thirdcoast.systems/scanwatch/internal/watcher"
)

type Store interface {
	CreateStub(ctx context.Context, stub incident.Stub) (int64, bool, error)
}

type ScopeSource interface {
	Current() *rollover.Scope
}

// Enqueuer accepts ids of freshly created rows. Enqueue must not block for
// long; a row it drops is picked up by recovery.
type Enqueuer interface {
	Enqueue(id int64) bool
}

type Result struct {
	ID      int64
	Bucket  string
	Skipped bool
}

type Ingestor struct {
	store  Store
	scopes ScopeSource
	queue  Enqueuer
	root   string
	loc    *time.Location
}

func New(store Store, scopes ScopeSource, queue Enqueuer, root string, loc *time.Location) *Ingestor {
	if loc == nil {
		loc = time.Local
	}
	return &Ingestor{store: store, scopes: scopes, queue: queue, root: root, loc: loc}
}

// Ingest records r. A recording already known for its day bucket is
// reported as skipped with the id of the existing row.
func (in *Ingestor) Ingest(ctx context.Context, r watcher.Ready) (Result, error) {
	identity, err := recording.Identity(in.root, r.Path)
	if err != nil {
		return Result{}, fmt.Errorf("identity %s: %w", r.Path, err)
	}
	bucket := recording.DayBucket(r.Path, r.DiscoveredAt, in.loc)

	scope := in.scopes.Current()
	if id, ok := scope.Lookup(bucket, identity); ok {
		metrics.StubsTotal.WithLabelValues("cached").Inc()
		return Result{ID: id, Bucket: bucket, Skipped: true}, nil
	}

	name := filepath.Base(r.Path)
	stub := incident.Stub{
		FileIdentity: identity,
		DayBucket:    bucket,
		FilePath:     r.Path,
		FileName:     name,
		CaptureTime:  recording.CaptureTime(r.Path, r.ModTime, in.loc),
		Attributes:   recording.ParseAttributes(name),
	}

	id, created, err := in.store.CreateStub(ctx, stub)
	if err != nil {
		metrics.StubsTotal.WithLabelValues("error").Inc()
		return Result{}, err
	}
	scope.Remember(bucket, identity, id)

	if !created {
		metrics.StubsTotal.WithLabelValues("duplicate").Inc()
		return Result{ID: id, Bucket: bucket, Skipped: true}, nil
	}

	metrics.StubsTotal.WithLabelValues("created").Inc()
	slog.Info("incident stub created", "id", id, "bucket", bucket, "file", name)
	if in.queue != nil && !in.queue.Enqueue(id) {
		slog.Warn("enrichment queue full, leaving row for recovery", "id", id)
	}
	return Result{ID: id, Bucket: bucket}, nil
}

// Run consumes ready recordings with the given number of workers until src
// is closed or ctx is done.
func (in *Ingestor) Run(ctx context.Context, src <-chan watcher.Ready, workers int) {
	if workers <= 0 {
		workers = 1
	}
	var wg sync.WaitGroup
	slog.Info("Ingest workers started", "workers", workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			in.worker(ctx, src)
		}()
	}
	wg.Wait()
}

func (in *Ingestor) worker(ctx context.Context, src <-chan watcher.Ready) {
	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-src:
			if !ok {
				return
			}
			if _, err := in.Ingest(ctx, r); err != nil {
				slog.Error("ingest failed", "path", r.Path, "error", err)
			}
		}
	}
}
