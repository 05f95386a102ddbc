package ingest

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"thirdcoast.systems/scanwatch/internal/db"
	"thirdcoast.systems/scanwatch/internal/rollover"
	"thirdcoast.systems/scanwatch/internal/watcher"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }
func (c fixedClock) After(time.Duration) <-chan time.Time { return make(chan time.Time) }

type recordingQueue struct {
	mu  sync.Mutex
	ids []int64
}

func (q *recordingQueue) Enqueue(id int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ids = append(q.ids, id)
	return true
}

func setup(t *testing.T) (*Ingestor, *db.DatabaseConnection, *rollover.Scheduler, *recordingQueue, string) {
	t.Helper()
	ctx := context.Background()
	dbc, err := db.OpenSQLite(ctx, filepath.Join(t.TempDir(), "incidents.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = dbc.Close() })
	require.NoError(t, dbc.Migrate(ctx))

	sched, err := rollover.NewScheduler(time.UTC, fixedClock{now: time.Date(2026, 10, 19, 14, 0, 0, 0, time.UTC)})
	require.NoError(t, err)

	q := &recordingQueue{}
	root := filepath.Join(t.TempDir(), "recordings")
	return New(dbc, sched, q, root, time.UTC), dbc, sched, q, root
}

func TestIngest_CreatesStubAndEnqueues(t *testing.T) {
	ctx := context.Background()
	in, dbc, _, q, root := setup(t)

	r := watcher.Ready{
		Path:         filepath.Join(root, "10-19-26", "Newton; Newton Police; Dispatch; FM; 482.9625; 1; #1201.mp3"),
		Size:         1024,
		ModTime:      time.Date(2026, 10, 19, 13, 59, 50, 0, time.UTC),
		DiscoveredAt: time.Date(2026, 10, 19, 14, 0, 0, 0, time.UTC),
	}
	res, err := in.Ingest(ctx, r)
	require.NoError(t, err)
	require.False(t, res.Skipped)
	require.Equal(t, "2026-10-19", res.Bucket)
	require.Equal(t, []int64{res.ID}, q.ids)

	inc, err := dbc.GetByID(ctx, res.ID)
	require.NoError(t, err)
	require.Equal(t, "13:59:50", inc.CaptureTime)
	require.Equal(t, "Newton Police", inc.Attributes.Department)
	require.Equal(t, "1201", inc.Attributes.Talkgroup)
	require.Equal(t, r.Path, inc.FilePath)

	again, err := in.Ingest(ctx, r)
	require.NoError(t, err)
	require.True(t, again.Skipped)
	require.Equal(t, res.ID, again.ID)
	require.Len(t, q.ids, 1)
}

func TestIngest_DuplicateAcrossRestartUsesStore(t *testing.T) {
	ctx := context.Background()
	in, dbc, _, q, root := setup(t)

	r := watcher.Ready{Path: filepath.Join(root, "a.mp3"), ModTime: time.Now(), DiscoveredAt: time.Date(2026, 10, 19, 14, 0, 0, 0, time.UTC)}
	first, err := in.Ingest(ctx, r)
	require.NoError(t, err)

	// A fresh scheduler has an empty cache, like a restarted process.
	sched, err := rollover.NewScheduler(time.UTC, fixedClock{now: time.Date(2026, 10, 19, 15, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	restarted := New(dbc, sched, q, root, time.UTC)

	second, err := restarted.Ingest(ctx, r)
	require.NoError(t, err)
	require.True(t, second.Skipped)
	require.Equal(t, first.ID, second.ID)
	require.Len(t, q.ids, 1)
}

func TestIngest_ConcurrentDuplicates(t *testing.T) {
	ctx := context.Background()
	_, dbc, _, q, root := setup(t)

	r := watcher.Ready{Path: filepath.Join(root, "race.mp3"), ModTime: time.Now(), DiscoveredAt: time.Date(2026, 10, 19, 14, 0, 0, 0, time.UTC)}

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		// Separate scopes so the cache cannot hide the race from the store.
		sched, err := rollover.NewScheduler(time.UTC, fixedClock{now: time.Date(2026, 10, 19, 14, 0, 0, 0, time.UTC)})
		require.NoError(t, err)
		in := New(dbc, sched, q, root, time.UTC)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := in.Ingest(ctx, r)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	require.Len(t, q.ids, 1)
}

func TestIngest_OutsideRoot(t *testing.T) {
	in, _, _, _, _ := setup(t)
	_, err := in.Ingest(context.Background(), watcher.Ready{Path: "/elsewhere/x.mp3"})
	require.Error(t, err)
}

func TestRun_DrainsChannel(t *testing.T) {
	in, dbc, _, q, root := setup(t)
	src := make(chan watcher.Ready, 3)
	for _, n := range []string{"a.mp3", "b.mp3", "c.mp3"} {
		src <- watcher.Ready{Path: filepath.Join(root, n), ModTime: time.Now(), DiscoveredAt: time.Date(2026, 10, 19, 14, 0, 0, 0, time.UTC)}
	}
	close(src)

	in.Run(context.Background(), src, 2)
	require.Len(t, q.ids, 3)

	rows, err := dbc.ChangesSince(context.Background(), 0, "2026-10-19", 10)
	require.NoError(t, err)
	require.Len(t, rows, 3)
}
