// Package enrich runs the enrichment stages over incident rows until each
// row is terminal.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"thirdcoast.systems/scanwatch/internal/db"
	"thirdcoast.systems/scanwatch/internal/geo"
	"thirdcoast.systems/scanwatch/internal/incident"
	"thirdcoast.systems/scanwatch/internal/metrics"
	"thirdcoast.systems/scanwatch/internal/transcribe"
)

type Store interface {
	GetByID(ctx context.Context, id int64) (*incident.Incident, error)
	UpdateFields(ctx context.Context, id int64, g incident.Group) (bool, error)
	CommitEmpty(ctx context.Context, id int64, stage incident.Stage) (bool, error)
	RecordFailure(ctx context.Context, id int64, stage incident.Stage, cause error) (bool, error)
	ListIncomplete(ctx context.Context, sinceBucket string, afterID int64, limit int) ([]incident.Incident, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, path string) (transcribe.Result, error)
}

type Classifier interface {
	Classify(ctx context.Context, transcript string) (string, error)
}

type Extractor interface {
	Extract(ctx context.Context, transcript string) (string, error)
}

type Geocoder interface {
	Geocode(ctx context.Context, address string) (*geo.Location, error)
}

type Imagery interface {
	Link(lat, lng float64) string
}

type ParcelLookup interface {
	Lookup(ctx context.Context, lat, lng float64) (*geo.Parcel, error)
}

// ProbeFunc returns the audio duration in seconds.
type ProbeFunc func(ctx context.Context, path string) (float64, error)

// Collaborators are the external services each stage calls.
type Collaborators struct {
	Transcriber Transcriber
	Classifier  Classifier
	Extractor   Extractor
	Geocoder    Geocoder
	Imagery     Imagery
	Parcels     ParcelLookup
	Probe       ProbeFunc
}

func (c Collaborators) validate() error {
	switch {
	case c.Transcriber == nil:
		return errors.New("enrich: transcriber is required")
	case c.Classifier == nil:
		return errors.New("enrich: classifier is required")
	case c.Extractor == nil:
		return errors.New("enrich: extractor is required")
	case c.Geocoder == nil:
		return errors.New("enrich: geocoder is required")
	case c.Imagery == nil:
		return errors.New("enrich: imagery is required")
	case c.Parcels == nil:
		return errors.New("enrich: parcel lookup is required")
	}
	return nil
}

type Pipeline struct {
	store  Store
	c      Collaborators
	queue  *Queue
	stages map[incident.Stage]stageFunc

	mu       sync.Mutex
	inFlight map[int64]struct{}
}

func New(store Store, c Collaborators, queue *Queue) (*Pipeline, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	if queue == nil {
		queue = NewQueue(0)
	}
	p := &Pipeline{
		store:    store,
		c:        c,
		queue:    queue,
		inFlight: make(map[int64]struct{}),
	}
	p.stages = p.stageFuncs()
	return p, nil
}

func (p *Pipeline) Queue() *Queue { return p.queue }

// Enqueue implements ingest.Enqueuer.
func (p *Pipeline) Enqueue(id int64) bool { return p.queue.Enqueue(id) }

func (p *Pipeline) acquire(id int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.inFlight[id]; ok {
		return false
	}
	p.inFlight[id] = struct{}{}
	return true
}

func (p *Pipeline) release(id int64) {
	p.mu.Lock()
	delete(p.inFlight, id)
	p.mu.Unlock()
}

// Enrich drives one row to a terminal state. Every stage whose inputs are
// ready runs concurrently; the row is reloaded after each wave and the
// loop ends once nothing is runnable.
func (p *Pipeline) Enrich(ctx context.Context, id int64) error {
	if !p.acquire(id) {
		slog.Debug("incident already being enriched", "id", id)
		return nil
	}
	defer p.release(id)

	for {
		inc, err := p.store.GetByID(ctx, id)
		if err != nil {
			return fmt.Errorf("load incident %d: %w", id, err)
		}
		runnable := inc.Runnable()
		if len(runnable) == 0 {
			slog.Debug("incident terminal", "id", id, "status", inc.Status())
			return nil
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, s := range runnable {
			g.Go(func() error {
				return p.runStage(gctx, *inc, s)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
}

// runStage calls the collaborator for s and commits what it produced.
// Collaborator errors are recorded on the row; only store errors are
// returned.
func (p *Pipeline) runStage(ctx context.Context, inc incident.Incident, s incident.Stage) error {
	start := time.Now()
	out := p.stages[s](ctx, inc)
	metrics.StageDuration.WithLabelValues(s.String()).Observe(time.Since(start).Seconds())

	if ctx.Err() != nil {
		return ctx.Err()
	}

	var (
		applied bool
		err     error
		result  string
	)
	switch {
	case out.err != nil:
		slog.Warn("enrichment stage failed", "id", inc.ID, "stage", s, "error", out.err)
		applied, err = p.store.RecordFailure(ctx, inc.ID, s, out.err)
		result = "failed"
	case out.group == nil:
		applied, err = p.store.CommitEmpty(ctx, inc.ID, s)
		result = "empty"
	default:
		applied, err = p.store.UpdateFields(ctx, inc.ID, out.group)
		result = "ok"
		if errors.Is(err, db.ErrInvalidGroup) || errors.Is(err, db.ErrForeignColumn) {
			slog.Warn("enrichment stage produced an invalid group", "id", inc.ID, "stage", s, "error", err)
			applied, err = p.store.RecordFailure(ctx, inc.ID, s, err)
			result = "failed"
		}
	}
	if err != nil {
		return fmt.Errorf("commit %s for incident %d: %w", s, inc.ID, err)
	}
	if !applied {
		result = "duplicate"
	}
	metrics.StageTotal.WithLabelValues(s.String(), result).Inc()
	return nil
}

// Run starts workers that enrich ids from the queue until ctx is done.
func (p *Pipeline) Run(ctx context.Context, workers int) {
	if workers <= 0 {
		workers = 1
	}
	var wg sync.WaitGroup
	slog.Info("Enrich workers started", "workers", workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				id, ok := p.queue.Next(ctx)
				if !ok {
					return
				}
				if err := p.Enrich(ctx, id); err != nil && ctx.Err() == nil {
					if errors.Is(err, db.ErrNotFound) {
						slog.Warn("queued incident no longer exists", "id", id)
						continue
					}
					slog.Error("enrichment failed", "id", id, "error", err)
				}
			}
		}()
	}
	wg.Wait()
}

// Recover re-enqueues rows from sinceBucket onward that still have a
// runnable stage, such as rows interrupted by a crash between stages. It
// stops early when the queue is full and returns how many it enqueued.
func (p *Pipeline) Recover(ctx context.Context, sinceBucket string) (int, error) {
	const page = 200
	var (
		afterID int64
		n       int
	)
	for {
		incs, err := p.store.ListIncomplete(ctx, sinceBucket, afterID, page)
		if err != nil {
			return n, fmt.Errorf("list incomplete: %w", err)
		}
		for i := range incs {
			inc := &incs[i]
			afterID = inc.ID
			if inc.Terminal() {
				continue
			}
			p.mu.Lock()
			_, busy := p.inFlight[inc.ID]
			p.mu.Unlock()
			if busy {
				continue
			}
			if !p.queue.Enqueue(inc.ID) {
				slog.Warn("recovery stopped, enrichment queue full", "enqueued", n)
				return n, nil
			}
			n++
		}
		if len(incs) < page {
			break
		}
	}
	if n > 0 {
		slog.Info("recovered incomplete incidents", "count", n, "since", sinceBucket)
	}
	return n, nil
}
