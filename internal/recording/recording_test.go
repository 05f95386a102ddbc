package recording

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestIdentity_StableAcrossSpellings(t *testing.T) {
	root := filepath.Join(t.TempDir(), "rec")
	p := filepath.Join(root, "10-19-26", "a.mp3")

	a, err := Identity(root, p)
	require.NoError(t, err)
	b, err := Identity(root+string(filepath.Separator), filepath.Join(root, "10-19-26", ".", "a.mp3"))
	require.NoError(t, err)
	require.Equal(t, a, b)

	id, err := uuid.Parse(a)
	require.NoError(t, err)
	require.Equal(t, uuid.Version(5), id.Version())

	other, err := Identity(root, filepath.Join(root, "10-19-26", "b.mp3"))
	require.NoError(t, err)
	require.NotEqual(t, a, other)
}

func TestIdentity_OutsideRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "rec")
	_, err := Identity(root, filepath.Join(filepath.Dir(root), "elsewhere.mp3"))
	require.ErrorIs(t, err, ErrOutsideRoot)

	_, err = Identity(root, root)
	require.ErrorIs(t, err, ErrOutsideRoot)
}

func TestDayBucket(t *testing.T) {
	loc := time.UTC
	discovered := time.Date(2026, 10, 19, 23, 59, 58, 0, loc)

	cases := []struct {
		name string
		path string
		want string
	}{
		{"daily folder", "/rec/10-18-26/Newton;Police;Dispatch.mp3", "2026-10-18"},
		{"nested daily folder", "/rec/10-17-26/sub/x.mp3", "2026-10-17"},
		{"dated file name", "/rec/10-16-26 08-15-00 - Newton - Fire.mp3", "2026-10-16"},
		{"discovery time", "/rec/Newton;Police;Dispatch.mp3", "2026-10-19"},
		{"folder wins over name", "/rec/10-15-26/10-14-26 08-15-00.mp3", "2026-10-15"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, DayBucket(filepath.FromSlash(tc.path), discovered, loc))
		})
	}
}

func TestDayBucket_UsesConfiguredZone(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata not available")
	}
	// 02:30 UTC on the 20th is still the 19th in New York.
	discovered := time.Date(2026, 10, 20, 2, 30, 0, 0, time.UTC)
	require.Equal(t, "2026-10-19", DayBucket("/rec/x.mp3", discovered, ny))
	require.Equal(t, "2026-10-20", DayBucket("/rec/x.mp3", discovered, time.UTC))
}

func TestCaptureTime(t *testing.T) {
	mod := time.Date(2026, 10, 19, 9, 41, 7, 0, time.UTC)
	require.Equal(t, "14:03:22", CaptureTime("/rec/10-19-26 14-03-22 - Newton - Police.mp3", mod, time.UTC))
	require.Equal(t, "09:41:07", CaptureTime("/rec/Newton;Police.mp3", mod, time.UTC))
}

func TestParseAttributes(t *testing.T) {
	a := ParseAttributes("/rec/10-19-26/Newton; Newton Police; Dispatch; FM; 482.9625; 2; #1201.mp3")
	require.Equal(t, "Newton", a.System)
	require.Equal(t, "Newton Police", a.Department)
	require.Equal(t, "Dispatch", a.Channel)
	require.Equal(t, "FM", a.Modulation)
	require.Equal(t, "482.9625", a.Frequency)
	require.Equal(t, "1201", a.Talkgroup)

	short := ParseAttributes("Newton;Fire.mp3")
	require.Equal(t, "Newton", short.System)
	require.Equal(t, "Fire", short.Department)
	require.Empty(t, short.Channel)
	require.Empty(t, short.Talkgroup)

	dated := ParseAttributes("10-19-26 14-03-22 - Newton - Fire Ground.mp3")
	require.Equal(t, "Newton", dated.System)
	require.Equal(t, "Fire Ground", dated.Department)

	require.Empty(t, ParseAttributes("random.mp3").System)
}

func TestFilters(t *testing.T) {
	require.True(t, HasRecordingExt("a.MP3", nil))
	require.False(t, HasRecordingExt("a.wav", nil))
	require.True(t, HasRecordingExt("a.wav", []string{"mp3", ".wav"}))

	require.True(t, IsTemporary("/rec/.hidden.mp3"))
	require.True(t, IsTemporary("/rec/a.mp3.part"))
	require.True(t, IsTemporary("/rec/a.mp3.tmp"))
	require.False(t, IsTemporary("/rec/a.mp3"))
}
