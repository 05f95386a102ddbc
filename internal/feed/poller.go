// Package feed turns store writes into ordered batches for live viewers.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"thirdcoast.systems/scanwatch/internal/incident"
	"thirdcoast.systems/scanwatch/internal/metrics"
	"thirdcoast.systems/scanwatch/internal/rollover"
)

type Kind string

const (
	KindIncidents Kind = "incidents"
	KindUpdates   Kind = "updates"
	KindHeartbeat Kind = "heartbeat"
	KindResync    Kind = "resync"
)

// Batch is one unit of the change feed. Incidents are in id order for
// KindIncidents and KindResync. Watermark is the highest id the batch
// covers; viewers resume from it after a gap.
type Batch struct {
	Kind      Kind      `json:"kind"`
	Bucket    string    `json:"bucket"`
	Watermark int64     `json:"watermark"`
	UpdateSeq int64     `json:"update_seq,omitempty"`
	Incidents []View    `json:"incidents,omitempty"`
	At        time.Time `json:"at"`
}

type Store interface {
	ChangesSince(ctx context.Context, watermark int64, bucket string, limit int) ([]incident.Incident, error)
	UpdatesSince(ctx context.Context, seq int64, bucket string, limit int) ([]incident.Incident, int64, error)
	MaxID(ctx context.Context, bucket string) (int64, error)
	MaxUpdateSeq(ctx context.Context) (int64, error)
}

// Publisher fans batches out to subscribers.
type Publisher interface {
	Publish(b Batch)
	Subscribers() int
}

type ScopeSource interface {
	Current() *rollover.Scope
}

type Config struct {
	Interval          time.Duration
	HeartbeatInterval time.Duration
	BatchLimit        int
	Now               func() time.Time
}

func (c *Config) setDefaults() {
	if c.Interval <= 0 {
		c.Interval = 2 * time.Second
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 15 * time.Second
	}
	if c.BatchLimit <= 0 {
		c.BatchLimit = 200
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Poller owns the per-process watermarks. Only the poll loop advances
// them.
type Poller struct {
	store  Store
	pub    Publisher
	scopes ScopeSource
	cfg    Config

	mu            sync.Mutex
	bucket        string
	watermark     int64
	updateSeq     int64
	lastHeartbeat time.Time
}

func NewPoller(store Store, pub Publisher, scopes ScopeSource, cfg Config) *Poller {
	cfg.setDefaults()
	return &Poller{store: store, pub: pub, scopes: scopes, cfg: cfg}
}

// Init sets the watermarks to the current store maxima so a fresh process
// does not replay the day to its first subscriber.
func (p *Poller) Init(ctx context.Context) error {
	bucket := p.scopes.Current().Bucket
	maxID, err := p.store.MaxID(ctx, bucket)
	if err != nil {
		return fmt.Errorf("feed init: %w", err)
	}
	seq, err := p.store.MaxUpdateSeq(ctx)
	if err != nil {
		return fmt.Errorf("feed init: %w", err)
	}

	p.mu.Lock()
	p.bucket, p.watermark, p.updateSeq = bucket, maxID, seq
	p.lastHeartbeat = p.cfg.Now()
	p.mu.Unlock()
	slog.Info("feed watermark initialised", "bucket", bucket, "watermark", maxID, "update_seq", seq)
	return nil
}

// HandleRollover is a rollover.Hook: the new day starts from watermark 0.
func (p *Poller) HandleRollover(_ context.Context, _ *rollover.Scope, next *rollover.Scope) {
	p.mu.Lock()
	p.bucket = next.Bucket
	p.watermark = 0
	p.mu.Unlock()
	slog.Info("feed watermark reset", "bucket", next.Bucket)
}

// Watermark returns the current bucket and id watermark.
func (p *Poller) Watermark() (string, int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bucket, p.watermark
}

// Tick runs one poll. With no subscribers it does nothing.
func (p *Poller) Tick(ctx context.Context) error {
	if p.pub.Subscribers() == 0 {
		return nil
	}

	p.mu.Lock()
	bucket, watermark, seq := p.bucket, p.watermark, p.updateSeq
	p.mu.Unlock()

	published := false
	for {
		rows, err := p.store.ChangesSince(ctx, watermark, bucket, p.cfg.BatchLimit)
		if err != nil {
			return fmt.Errorf("changes since %d: %w", watermark, err)
		}
		if len(rows) == 0 {
			break
		}
		watermark = rows[len(rows)-1].ID
		p.publish(Batch{Kind: KindIncidents, Bucket: bucket, Watermark: watermark, Incidents: Views(rows)})
		published = true
		if len(rows) < p.cfg.BatchLimit {
			break
		}
	}

	for {
		rows, next, err := p.store.UpdatesSince(ctx, seq, bucket, p.cfg.BatchLimit)
		if err != nil {
			return fmt.Errorf("updates since %d: %w", seq, err)
		}
		if next <= seq {
			break
		}
		seq = next
		if len(rows) > 0 {
			p.publish(Batch{Kind: KindUpdates, Bucket: bucket, Watermark: watermark, UpdateSeq: seq, Incidents: Views(rows)})
			published = true
		}
	}

	now := p.cfg.Now()
	p.mu.Lock()
	// A rollover during the poll wins; its watermark belongs to the new day.
	if p.bucket == bucket {
		p.watermark = watermark
	}
	p.updateSeq = seq
	heartbeat := !published && now.Sub(p.lastHeartbeat) >= p.cfg.HeartbeatInterval
	if published || heartbeat {
		p.lastHeartbeat = now
	}
	current := p.watermark
	p.mu.Unlock()

	if heartbeat {
		p.publish(Batch{Kind: KindHeartbeat, Bucket: bucket, Watermark: current, UpdateSeq: seq})
	}
	return nil
}

func (p *Poller) publish(b Batch) {
	b.At = p.cfg.Now()
	metrics.FeedBatches.WithLabelValues(string(b.Kind)).Inc()
	p.pub.Publish(b)
}

// Run polls every Interval, or sooner when wake fires, until ctx is done.
func (p *Poller) Run(ctx context.Context, wake <-chan struct{}) {
	t := time.NewTicker(p.cfg.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		case <-wake:
		}
		if err := p.Tick(ctx); err != nil && ctx.Err() == nil {
			slog.Error("feed poll failed", "error", err)
		}
	}
}

// Resync returns every row of bucket above since, the same rows the live
// path would have delivered. An empty bucket means the current one.
func (p *Poller) Resync(ctx context.Context, bucket string, since int64) (Batch, error) {
	if bucket == "" {
		bucket = p.scopes.Current().Bucket
	}
	b := Batch{Kind: KindResync, Bucket: bucket, Watermark: since, Incidents: []View{}}
	for {
		rows, err := p.store.ChangesSince(ctx, b.Watermark, bucket, p.cfg.BatchLimit)
		if err != nil {
			return Batch{}, fmt.Errorf("resync since %d: %w", since, err)
		}
		b.Incidents = append(b.Incidents, Views(rows)...)
		if len(rows) > 0 {
			b.Watermark = rows[len(rows)-1].ID
		}
		if len(rows) < p.cfg.BatchLimit {
			break
		}
	}
	b.At = p.cfg.Now()
	return b, nil
}
