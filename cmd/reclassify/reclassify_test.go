package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"thirdcoast.systems/scanwatch/internal/config"
	"thirdcoast.systems/scanwatch/internal/db"
	"thirdcoast.systems/scanwatch/internal/incident"
)

func ptr[T any](v T) *T { return &v }

type scriptedClassifier struct {
	labels map[string]string
	err    error
	calls  int
}

func (c *scriptedClassifier) Classify(_ context.Context, transcript string) (string, error) {
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	if l, ok := c.labels[transcript]; ok {
		return l, nil
	}
	return incident.LabelUnknown, nil
}

const (
	fireText    = "engine three respond to a reported structure fire on Walnut Street"
	medicalText = "ambulance needed for an unconscious male at the library"
	vagueText   = "all units be advised radio check at the top of the hour"
)

func seedStore(t *testing.T) *db.DatabaseConnection {
	t.Helper()
	ctx := context.Background()
	dbc, err := db.OpenSQLite(ctx, filepath.Join(t.TempDir(), "incidents.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = dbc.Close() })
	require.NoError(t, dbc.Migrate(ctx))

	rows := []struct {
		name, bucket, text string
	}{
		{"a.mp3", "2026-10-18", fireText},
		{"b.mp3", "2026-10-19", "copy that"},
		{"c.mp3", "2026-10-19", medicalText},
		{"d.mp3", "2026-10-19", vagueText},
		{"e.mp3", "2026-10-19", ""},
	}
	for _, r := range rows {
		id, _, err := dbc.CreateStub(ctx, incident.Stub{
			FileIdentity: r.name,
			DayBucket:    r.bucket,
			FilePath:     "/recordings/" + r.name,
			FileName:     r.name,
			CaptureTime:  "10:00:00",
		})
		require.NoError(t, err)
		if r.text == "" {
			continue
		}
		ok, err := dbc.UpdateFields(ctx, id, incident.TranscriptGroup{Text: r.text, Confidence: ptr(0.9)})
		require.NoError(t, err)
		require.True(t, ok)
	}
	return dbc
}

func labelOf(t *testing.T, dbc *db.DatabaseConnection, id int64) string {
	t.Helper()
	inc, err := dbc.GetByID(context.Background(), id)
	require.NoError(t, err)
	return inc.Label
}

func TestReclassify(t *testing.T) {
	ctx := context.Background()
	dbc := seedStore(t)
	cls := &scriptedClassifier{labels: map[string]string{
		fireText:    "structure fire",
		medicalText: "Medical",
	}}

	var out bytes.Buffer
	s, err := reclassify(ctx, dbc, cls, options{BatchSize: 2}, &out)
	require.NoError(t, err)
	require.Equal(t, summary{Scanned: 4, Skipped: 1, Relabelled: 2, Unchanged: 1}, s)
	require.Equal(t, 3, cls.calls)
	require.Equal(t, "Structure Fire", labelOf(t, dbc, 1))
	require.Equal(t, "Medical", labelOf(t, dbc, 3))
	require.Equal(t, incident.LabelUnknown, labelOf(t, dbc, 4))
	require.Contains(t, out.String(), "#1 2026-10-18: relabelled Structure Fire")

	// Labelled rows drop out of the candidate set.
	s, err = reclassify(ctx, dbc, cls, options{}, &out)
	require.NoError(t, err)
	require.Equal(t, 2, s.Scanned)
	require.Zero(t, s.Relabelled)
}

func TestReclassify_DryRunAndBucket(t *testing.T) {
	ctx := context.Background()
	dbc := seedStore(t)
	cls := &scriptedClassifier{labels: map[string]string{fireText: "Structure Fire", medicalText: "Medical"}}

	var out bytes.Buffer
	s, err := reclassify(ctx, dbc, cls, options{Bucket: "2026-10-19", DryRun: true}, &out)
	require.NoError(t, err)
	require.Equal(t, summary{Scanned: 3, Skipped: 1, Relabelled: 1, Unchanged: 1}, s)
	require.Equal(t, "#3 2026-10-19: would relabel Medical\n", out.String())
	require.Equal(t, incident.LabelUnknown, labelOf(t, dbc, 3))
}

func TestReclassify_LimitAndFailures(t *testing.T) {
	ctx := context.Background()
	dbc := seedStore(t)

	s, err := reclassify(ctx, dbc, &scriptedClassifier{err: errors.New("model offline")}, options{}, &bytes.Buffer{})
	require.NoError(t, err)
	require.Equal(t, summary{Scanned: 4, Skipped: 1, Failed: 3}, s)

	s, err = reclassify(ctx, dbc, &scriptedClassifier{}, options{Limit: 2}, &bytes.Buffer{})
	require.NoError(t, err)
	require.Equal(t, 2, s.Scanned)
}

func TestResolveBucket(t *testing.T) {
	conf := &config.Config{Recordings: config.Recordings{Timezone: "UTC"}}

	b, err := resolveBucket("", conf)
	require.NoError(t, err)
	require.Empty(t, b)

	b, err = resolveBucket("2026-10-19", conf)
	require.NoError(t, err)
	require.Equal(t, "2026-10-19", b)

	b, err = resolveBucket("today", conf)
	require.NoError(t, err)
	require.Len(t, b, len("2006-01-02"))

	_, err = resolveBucket("10-19-26", conf)
	require.Error(t, err)
}

func TestRootCmdFlags(t *testing.T) {
	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--bucket", "today", "--batch-size", "10", "--dry-run"}))
	dry, err := cmd.Flags().GetBool("dry-run")
	require.NoError(t, err)
	require.True(t, dry)
	size, err := cmd.Flags().GetInt("batch-size")
	require.NoError(t, err)
	require.Equal(t, 10, size)
}
