package feedhub

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"thirdcoast.systems/scanwatch/internal/feed"
	"thirdcoast.systems/scanwatch/internal/metrics"
)

const (
	// Hard caps to keep the web process responsive even if someone opens
	// a silly number of tabs.
	maxStreamsPerClient = 20
	maxTotalStreams     = 200

	subscriberBuffer = 16
)

// Subscription is one live viewer. Batches arrive on C; when the viewer
// falls behind, batches are dropped and Lagged reports true until the
// viewer has caught up through a resync.
type Subscription struct {
	ID     string
	Client string
	C      <-chan feed.Batch

	ch     chan feed.Batch
	lagged atomic.Bool
}

// TakeLagged reports whether batches were dropped since the last call and
// clears the flag.
func (s *Subscription) TakeLagged() bool {
	return s.lagged.Swap(false)
}

// Hub fans feed batches out to subscribers without ever blocking the
// poller.
type Hub struct {
	mu        sync.Mutex
	subs      map[string]*Subscription
	perClient map[string]int
}

func NewHub() *Hub {
	return &Hub{
		subs:      make(map[string]*Subscription),
		perClient: make(map[string]int),
	}
}

// Subscribe registers a viewer identified by client (usually the remote
// address). It returns false when a cap is reached.
func (h *Hub) Subscribe(client string) (*Subscription, func(), bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.subs) >= maxTotalStreams || h.perClient[client] >= maxStreamsPerClient {
		return nil, nil, false
	}

	ch := make(chan feed.Batch, subscriberBuffer)
	sub := &Subscription{ID: uuid.NewString(), Client: client, C: ch, ch: ch}
	h.subs[sub.ID] = sub
	h.perClient[client]++
	metrics.FeedSubscribers.Set(float64(len(h.subs)))

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs, sub.ID)
			if h.perClient[client]--; h.perClient[client] <= 0 {
				delete(h.perClient, client)
			}
			metrics.FeedSubscribers.Set(float64(len(h.subs)))
		})
	}
	return sub, unsubscribe, true
}

// Subscribers implements feed.Publisher.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Publish implements feed.Publisher. Subscribers are snapshotted under the
// lock and sent to outside it; a full buffer marks the subscriber lagged.
func (h *Hub) Publish(b feed.Batch) {
	h.mu.Lock()
	snapshot := make([]*Subscription, 0, len(h.subs))
	for _, s := range h.subs {
		snapshot = append(snapshot, s)
	}
	h.mu.Unlock()

	for _, s := range snapshot {
		select {
		case s.ch <- b:
		default:
			if !s.lagged.Swap(true) {
				metrics.FeedLagged.Inc()
			}
		}
	}
}
