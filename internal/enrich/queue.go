package enrich

import (
	"context"

	"thirdcoast.systems/scanwatch/internal/metrics"
)

// Queue carries incident ids from ingestion and recovery to the enrich
// workers.
type Queue struct {
	ch chan int64
}

func NewQueue(size int) *Queue {
	if size <= 0 {
		size = 256
	}
	return &Queue{ch: make(chan int64, size)}
}

// Enqueue adds id without blocking. It reports false when the queue is
// full; the row stays non-terminal and the next recovery sweep finds it.
func (q *Queue) Enqueue(id int64) bool {
	select {
	case q.ch <- id:
		metrics.EnrichQueueDepth.Set(float64(len(q.ch)))
		return true
	default:
		return false
	}
}

// Next blocks until an id is available or ctx is done.
func (q *Queue) Next(ctx context.Context) (int64, bool) {
	select {
	case <-ctx.Done():
		return 0, false
	case id := <-q.ch:
		metrics.EnrichQueueDepth.Set(float64(len(q.ch)))
		return id, true
	}
}

func (q *Queue) Len() int { return len(q.ch) }
