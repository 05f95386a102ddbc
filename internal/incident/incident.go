// Package incident holds the record produced for every scanner recording and
// the rules for how enrichment stages fill it in.
package incident

import (
	"strings"
	"time"
)

// Transcript sentinels. A transcript column is never NULL.
const (
	TranscriptPending = "[PLACEHOLDER]"
	TranscriptEmpty   = "[EMPTY_TRANSCRIPT]"
	TranscriptFailed  = "[TRANSCRIPTION_FAILED]"
)

// Status values returned by Incident.Status.
const (
	StatusPending  = "pending"
	StatusPartial  = "partial"
	StatusComplete = "complete"
)

// Attributes is the metadata the recorder encodes in the file name. It is
// written once at stub creation and never touched by enrichment.
type Attributes struct {
	System     string `json:"system"`
	Department string `json:"department"`
	Channel    string `json:"channel"`
	Modulation string `json:"modulation"`
	Frequency  string `json:"frequency"`
	Talkgroup  string `json:"talkgroup"`
}

// Stub is everything known about a recording at discovery time.
type Stub struct {
	FileIdentity string `validate:"required"`
	DayBucket    string `validate:"required,datetime=2006-01-02"`
	FilePath     string `validate:"required"`
	FileName     string `validate:"required"`
	CaptureTime  string `validate:"required,datetime=15:04:05"`
	Attributes   Attributes
}

// Incident is one row of the store.
type Incident struct {
	ID           int64      `json:"id"`
	FileIdentity string     `json:"file_identity"`
	DayBucket    string     `json:"day_bucket"`
	FilePath     string     `json:"-"`
	FileName     string     `json:"file_name"`
	CaptureTime  string     `json:"capture_time"`
	Attributes   Attributes `json:"attributes"`

	Transcript string   `json:"transcript"`
	Confidence *float64 `json:"confidence"`
	Label      string   `json:"label"`

	Address          *string  `json:"address"`
	FormattedAddress *string  `json:"formatted_address"`
	MapLink          *string  `json:"map_link"`
	Latitude         *float64 `json:"latitude"`
	Longitude        *float64 `json:"longitude"`
	ImageryLink      *string  `json:"imagery_link"`

	ParcelOwner *string `json:"parcel_owner"`
	ParcelValue *int64  `json:"parcel_value"`

	State  Stages `json:"-"`
	Failed Stages `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasUsableTranscript reports whether the transcript carries text the
// downstream stages can work with.
func (inc *Incident) HasUsableTranscript() bool {
	if !inc.State.Has(StageTranscribe) {
		return false
	}
	t := strings.TrimSpace(inc.Transcript)
	switch t {
	case "", TranscriptPending, TranscriptEmpty, TranscriptFailed:
		return false
	}
	return true
}

// HasCoordinates reports whether the geocode stage produced a point.
func (inc *Incident) HasCoordinates() bool {
	return inc.Latitude != nil && inc.Longitude != nil
}

// Ready reports whether stage s has its dependencies satisfied: every
// required stage committed and the data it needs present.
func (inc *Incident) Ready(s Stage) bool {
	if !inc.State.HasAll(s.Requires()) {
		return false
	}
	switch s {
	case StageTranscribe:
		return true
	case StageClassify, StageExtractLocation:
		return inc.HasUsableTranscript()
	case StageGeocode:
		return inc.Address != nil && strings.TrimSpace(*inc.Address) != ""
	case StageImagery, StageParcel:
		return inc.HasCoordinates()
	}
	return false
}

// Runnable lists the stages that are ready and not yet committed.
func (inc *Incident) Runnable() []Stage {
	var out []Stage
	for _, s := range AllStages {
		if !inc.State.Has(s) && inc.Ready(s) {
			out = append(out, s)
		}
	}
	return out
}

// Terminal reports whether every stage whose dependency was satisfied has
// committed. Stages whose dependency never arrived are terminal by omission.
func (inc *Incident) Terminal() bool {
	return len(inc.Runnable()) == 0
}

// Status summarises the row for viewers.
func (inc *Incident) Status() string {
	if !inc.Terminal() {
		return StatusPending
	}
	if inc.Failed != 0 || inc.State != Complete {
		return StatusPartial
	}
	return StatusComplete
}

// StageStatus reports pending, done, failed or skipped for one stage.
func (inc *Incident) StageStatus(s Stage) string {
	switch {
	case inc.Failed.Has(s):
		return "failed"
	case inc.State.Has(s):
		return "done"
	case inc.Terminal():
		return "skipped"
	default:
		return "pending"
	}
}

// Content is the transcript text as shown to viewers.
func (inc *Incident) Content() string {
	t := strings.TrimSpace(inc.Transcript)
	switch {
	case t == "" || t == TranscriptEmpty:
		return "[No audio content detected]"
	case strings.HasPrefix(t, TranscriptPending):
		return "[Processing audio...]"
	case t == TranscriptFailed:
		return "[Transcription failed]"
	}
	return t
}

// Apply copies the values of a committed group onto the in-memory row and
// marks the stage done.
func (inc *Incident) Apply(stage Stage, g Group, failed bool) {
	if g != nil {
		g.apply(inc)
	}
	inc.State = inc.State.With(stage)
	if failed {
		inc.Failed = inc.Failed.With(stage)
	}
}
