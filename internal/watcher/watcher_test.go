package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fastConfig(root string) Config {
	return Config{
		Root:         root,
		Location:     time.UTC,
		ScanInterval: 20 * time.Millisecond,
		StableWindow: 120 * time.Millisecond,
		StablePoll:   20 * time.Millisecond,
		MaxWait:      5 * time.Second,
		CheckWorkers: 2,
	}
}

func runWatcher(t *testing.T, cfg Config) <-chan Ready {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan Ready, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = New(cfg).Run(ctx, out)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return out
}

func expectReady(t *testing.T, out <-chan Ready) Ready {
	t.Helper()
	select {
	case r := <-out:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("no recording became ready")
	}
	return Ready{}
}

func expectNothing(t *testing.T, out <-chan Ready, d time.Duration) {
	t.Helper()
	select {
	case r := <-out:
		t.Fatalf("unexpected ready: %s", r.Path)
	case <-time.After(d):
	}
}

func TestWatcher_EmitsStableFileOnce(t *testing.T) {
	root := t.TempDir()
	out := runWatcher(t, fastConfig(root))

	p := filepath.Join(root, "Newton;Police;Dispatch.mp3")
	require.NoError(t, os.WriteFile(p, []byte("frame"), 0o644))

	r := expectReady(t, out)
	require.Equal(t, p, r.Path)
	require.Equal(t, int64(5), r.Size)
	require.False(t, r.DiscoveredAt.IsZero())

	// Touching the file after emission must not emit it again.
	require.NoError(t, os.WriteFile(p, []byte("frame-more"), 0o644))
	expectNothing(t, out, 400*time.Millisecond)
}

func TestWatcher_WaitsForGrowingFile(t *testing.T) {
	root := t.TempDir()
	out := runWatcher(t, fastConfig(root))

	p := filepath.Join(root, "growing.mp3")
	f, err := os.Create(p)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := f.Write([]byte("0123456789"))
		require.NoError(t, err)
		time.Sleep(50 * time.Millisecond)
	}
	require.NoError(t, f.Close())

	r := expectReady(t, out)
	require.Equal(t, int64(50), r.Size)
}

func TestWatcher_SkipsTemporaryAndForeignFiles(t *testing.T) {
	root := t.TempDir()
	out := runWatcher(t, fastConfig(root))

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.mp3.part"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".hidden.mp3"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644))
	expectNothing(t, out, 400*time.Millisecond)
}

func TestWatcher_SiblingsAreIndependent(t *testing.T) {
	root := t.TempDir()
	out := runWatcher(t, fastConfig(root))

	slow := filepath.Join(root, "slow.mp3")
	fast := filepath.Join(root, "fast.mp3")
	require.NoError(t, os.WriteFile(slow, []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(fast, []byte("b"), 0o644))

	stop := make(chan struct{})
	go func() {
		tick := time.NewTicker(30 * time.Millisecond)
		defer tick.Stop()
		n := 0
		for {
			select {
			case <-stop:
				return
			case <-tick.C:
				n++
				_ = os.WriteFile(slow, make([]byte, n+1), 0o644)
			}
		}
	}()
	defer close(stop)

	r := expectReady(t, out)
	require.Equal(t, fast, r.Path)
}

func TestWatcher_DailyLayoutActiveDirs(t *testing.T) {
	root := t.TempDir()
	now := time.Date(2026, 10, 19, 0, 0, 30, 0, time.UTC)
	for _, d := range []string{"10-19-26", "10-18-26", "10-17-26"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, d), 0o755))
	}

	cfg := fastConfig(root)
	cfg.Layout = LayoutDaily
	cfg.Now = func() time.Time { return now }
	w := New(cfg)

	require.Equal(t, []string{
		filepath.Join(root, "10-19-26"),
		filepath.Join(root, "10-18-26"),
	}, w.activeDirs())

	out := runWatcher(t, cfg)
	require.NoError(t, os.WriteFile(filepath.Join(root, "10-17-26", "old.mp3"), []byte("x"), 0o644))
	late := filepath.Join(root, "10-18-26", "late.mp3")
	require.NoError(t, os.WriteFile(late, []byte("x"), 0o644))

	r := expectReady(t, out)
	require.Equal(t, late, r.Path)
	expectNothing(t, out, 300*time.Millisecond)
}

func TestWatcher_FileVanishingMidCheckIsRetried(t *testing.T) {
	root := t.TempDir()
	cfg := fastConfig(root)
	cfg.StableWindow = 250 * time.Millisecond
	out := runWatcher(t, cfg)

	p := filepath.Join(root, "renamed-into-place.mp3")
	require.NoError(t, os.WriteFile(p, []byte("a"), 0o644))
	time.Sleep(60 * time.Millisecond)
	require.NoError(t, os.Remove(p))
	time.Sleep(60 * time.Millisecond)
	require.NoError(t, os.WriteFile(p, []byte("ab"), 0o644))

	r := expectReady(t, out)
	require.Equal(t, p, r.Path)
	require.Equal(t, int64(2), r.Size)
	expectNothing(t, out, 400*time.Millisecond)
}

func TestWatcher_GivesUpAfterMaxWaitThenPicksUpLater(t *testing.T) {
	root := t.TempDir()
	cfg := fastConfig(root)
	cfg.MaxWait = 300 * time.Millisecond
	out := runWatcher(t, cfg)

	p := filepath.Join(root, "restless.mp3")
	const writes = 25
	done := make(chan struct{})
	go func() {
		defer close(done)
		for n := 1; n <= writes; n++ {
			_ = os.WriteFile(p, make([]byte, n), 0o644)
			time.Sleep(30 * time.Millisecond)
		}
	}()

	// The writer outlives MaxWait, so the first check is abandoned and the
	// file is only reported by a later scan.
	<-done
	r := expectReady(t, out)
	require.Equal(t, p, r.Path)
	require.Equal(t, int64(writes), r.Size)
	expectNothing(t, out, 400*time.Millisecond)
}

func TestScan_FailedWalkKeepsEmitted(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "recordings")
	require.NoError(t, os.Mkdir(root, 0o755))
	p := filepath.Join(root, "a.mp3")
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))

	w := New(fastConfig(root))
	w.seen[p] = stateEmitted
	ctx := context.Background()

	// Root briefly unavailable, as during a remount.
	away := filepath.Join(parent, "away")
	require.NoError(t, os.Rename(root, away))
	w.scan(ctx, w.activeDirs())
	require.Equal(t, stateEmitted, w.seen[p])

	require.NoError(t, os.Rename(away, root))
	w.scan(ctx, w.activeDirs())
	require.Equal(t, stateEmitted, w.seen[p])
	require.Empty(t, w.checks)

	require.NoError(t, os.Remove(p))
	w.scan(ctx, w.activeDirs())
	require.NotContains(t, w.seen, p)
}

func TestScan_ForgetsRolledOverDays(t *testing.T) {
	root := t.TempDir()
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	cfg := fastConfig(root)
	cfg.Layout = LayoutDaily
	cfg.Now = func() time.Time { return now }
	w := New(cfg)

	kept := filepath.Join(root, "10-18-26", "kept.mp3")
	require.NoError(t, os.MkdirAll(filepath.Dir(kept), 0o755))
	require.NoError(t, os.WriteFile(kept, []byte("x"), 0o644))
	old := filepath.Join(root, "10-17-26", "old.mp3")

	w.seen[kept] = stateEmitted
	w.seen[old] = stateEmitted
	w.scan(context.Background(), w.activeDirs())

	require.Equal(t, stateEmitted, w.seen[kept])
	require.NotContains(t, w.seen, old)
	require.Empty(t, w.checks)
}
