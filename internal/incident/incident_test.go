package incident

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestStageNames_Distinct(t *testing.T) {
	seen := map[string]bool{}
	for _, s := range AllStages {
		name := s.String()
		require.NotEmpty(t, name)
		require.False(t, seen[name], name)
		seen[name] = true
	}
}

func TestNormalizeLabel(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"Medical":               "Medical",
		"medical":               "Medical",
		"  STRUCTURE FIRE ":     "Structure Fire",
		"mva":                   "Motor Vehicle Accident",
		"Larceny":               "Theft/Burglary",
		"panic alarm":           "Alarm (Burglar/Panic)",
		"fire":                  "Structure Fire",
		"Other/Unknown":         LabelUnknown,
		"Unknown":               LabelUnknown,
		"":                      LabelUnknown,
		"alien abduction":       LabelUnknown,
		"alarm (burglar/panic)": "Alarm (Burglar/Panic)",
	}
	for in, want := range cases {
		in, want := in, want
		t.Run(in, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, want, NormalizeLabel(in))
		})
	}
}

func TestIsHighPriority(t *testing.T) {
	require.True(t, IsHighPriority("Medical"))
	require.True(t, IsHighPriority("Hazmat"))
	require.False(t, IsHighPriority("Traffic Stop"))
	require.False(t, IsHighPriority(LabelUnknown))
}

func TestIncident_FreshStubOnlyTranscribeRunnable(t *testing.T) {
	inc := &Incident{Transcript: TranscriptPending, Label: LabelUnknown}
	require.Equal(t, []Stage{StageTranscribe}, inc.Runnable())
	require.False(t, inc.Terminal())
	require.Equal(t, StatusPending, inc.Status())
}

func TestIncident_UsableTranscriptUnlocksClassifyAndExtract(t *testing.T) {
	inc := &Incident{Transcript: TranscriptPending, Label: LabelUnknown}
	inc.Apply(StageTranscribe, TranscriptGroup{Text: "units responding", Confidence: ptr(0.91)}, false)

	require.Equal(t, []Stage{StageClassify, StageExtractLocation}, inc.Runnable())
	require.Equal(t, "units responding", inc.Content())
	require.InDelta(t, 0.91, *inc.Confidence, 1e-9)
}

func TestIncident_NoAddressIsTerminalPartial(t *testing.T) {
	inc := &Incident{Transcript: TranscriptPending, Label: LabelUnknown}
	inc.Apply(StageTranscribe, TranscriptGroup{Text: "units responding", Confidence: ptr(0.91)}, false)
	inc.Apply(StageClassify, ClassificationGroup{Label: "Medical"}, false)
	inc.Apply(StageExtractLocation, nil, false)

	require.True(t, inc.Terminal())
	require.Equal(t, StatusPartial, inc.Status())
	require.Equal(t, "skipped", inc.StageStatus(StageGeocode))
	require.Equal(t, "done", inc.StageStatus(StageClassify))
	require.Nil(t, inc.Address)
}

func TestIncident_EmptyOrFailedTranscriptIsTerminalByOmission(t *testing.T) {
	for _, text := range []string{TranscriptEmpty, TranscriptFailed} {
		inc := &Incident{Transcript: TranscriptPending, Label: LabelUnknown}
		inc.Apply(StageTranscribe, TranscriptGroup{Text: text}, text == TranscriptFailed)
		require.True(t, inc.Terminal(), text)
		require.Equal(t, StatusPartial, inc.Status(), text)
	}
}

func TestIncident_FullChainIsComplete(t *testing.T) {
	inc := &Incident{Transcript: TranscriptPending, Label: LabelUnknown}
	inc.Apply(StageTranscribe, TranscriptGroup{Text: "fire alarm at 12 Main Street", Confidence: ptr(0.8)}, false)
	inc.Apply(StageClassify, ClassificationGroup{Label: "Fire Alarm"}, false)
	inc.Apply(StageExtractLocation, LocationGroup{Address: "12 Main Street"}, false)
	require.Equal(t, []Stage{StageGeocode}, inc.Runnable())

	inc.Apply(StageGeocode, GeocodeGroup{FormattedAddress: "12 Main St, Newton, MA", Latitude: 42.33, Longitude: -71.2}, false)
	require.Equal(t, []Stage{StageImagery, StageParcel}, inc.Runnable())

	inc.Apply(StageImagery, ImageryGroup{Link: "https://example.com/sv"}, false)
	inc.Apply(StageParcel, ParcelGroup{Owner: ptr("CITY OF NEWTON")}, false)

	require.Equal(t, Complete, inc.State)
	require.Equal(t, StatusComplete, inc.Status())
	require.Nil(t, inc.ParcelValue)
}

func TestParcelGroup_PartialColumns(t *testing.T) {
	require.Empty(t, ParcelGroup{}.Columns())
	cols := ParcelGroup{Value: ptr(int64(750000))}.Columns()
	require.Len(t, cols, 1)
	require.Equal(t, "parcel_value", cols[0].Name)
}

func TestOwnedColumns_CoverGroupColumns(t *testing.T) {
	groups := []Group{
		TranscriptGroup{Text: "x"},
		ClassificationGroup{Label: "Medical"},
		LocationGroup{Address: "1 Elm St"},
		GeocodeGroup{FormattedAddress: "x", MapLink: "https://x", Latitude: 1, Longitude: 1},
		ImageryGroup{Link: "https://x"},
		ParcelGroup{Owner: ptr("a"), Value: ptr(int64(1))},
	}
	for _, g := range groups {
		owned := OwnedColumns[g.Stage()]
		for _, c := range g.Columns() {
			require.Contains(t, owned, c.Name, g.Stage().String())
		}
	}
}
