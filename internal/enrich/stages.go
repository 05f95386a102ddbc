package enrich

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"thirdcoast.systems/scanwatch/internal/incident"
	"thirdcoast.systems/scanwatch/pkg/ffmpeg"
)

// outcome is what one stage produced. A nil group with a nil err commits
// the stage with no fields.
type outcome struct {
	group incident.Group
	err   error
}

type stageFunc func(ctx context.Context, inc incident.Incident) outcome

func (p *Pipeline) stageFuncs() map[incident.Stage]stageFunc {
	return map[incident.Stage]stageFunc{
		incident.StageTranscribe:      p.transcribe,
		incident.StageClassify:        p.classify,
		incident.StageExtractLocation: p.extractLocation,
		incident.StageGeocode:         p.geocode,
		incident.StageImagery:         p.imagery,
		incident.StageParcel:          p.parcel,
	}
}

func (p *Pipeline) transcribe(ctx context.Context, inc incident.Incident) outcome {
	if p.c.Probe != nil {
		d, err := p.c.Probe(ctx, inc.FilePath)
		switch {
		case err == nil && d <= 0:
			slog.Info("recording has no audio", "id", inc.ID, "file", inc.FileName)
			return outcome{group: incident.TranscriptGroup{Text: incident.TranscriptEmpty}}
		case err != nil && !errors.Is(err, ffmpeg.ErrProbeUnavailable):
			slog.Debug("probe failed, transcribing anyway", "id", inc.ID, "error", err)
		}
	}

	res, err := p.c.Transcriber.Transcribe(ctx, inc.FilePath)
	if err != nil {
		return outcome{err: err}
	}
	text := strings.TrimSpace(res.Text)
	if text == "" {
		text = incident.TranscriptEmpty
	}
	return outcome{group: incident.TranscriptGroup{Text: text, Confidence: res.Confidence}}
}

func (p *Pipeline) classify(ctx context.Context, inc incident.Incident) outcome {
	label, err := p.c.Classifier.Classify(ctx, inc.Transcript)
	if err != nil {
		return outcome{err: err}
	}
	return outcome{group: incident.ClassificationGroup{Label: incident.NormalizeLabel(label)}}
}

func (p *Pipeline) extractLocation(ctx context.Context, inc incident.Incident) outcome {
	addr, err := p.c.Extractor.Extract(ctx, inc.Transcript)
	if err != nil {
		return outcome{err: err}
	}
	if addr = strings.TrimSpace(addr); addr == "" {
		return outcome{}
	}
	if r := []rune(addr); len(r) > 200 {
		addr = string(r[:200])
	}
	return outcome{group: incident.LocationGroup{Address: addr}}
}

func (p *Pipeline) geocode(ctx context.Context, inc incident.Incident) outcome {
	loc, err := p.c.Geocoder.Geocode(ctx, *inc.Address)
	if err != nil || loc == nil {
		return outcome{err: err}
	}
	return outcome{group: incident.GeocodeGroup{
		FormattedAddress: loc.FormattedAddress,
		MapLink:          loc.MapLink,
		Latitude:         loc.Latitude,
		Longitude:        loc.Longitude,
	}}
}

func (p *Pipeline) imagery(_ context.Context, inc incident.Incident) outcome {
	link := p.c.Imagery.Link(*inc.Latitude, *inc.Longitude)
	if link == "" {
		return outcome{}
	}
	return outcome{group: incident.ImageryGroup{Link: link}}
}

func (p *Pipeline) parcel(ctx context.Context, inc incident.Incident) outcome {
	parcel, err := p.c.Parcels.Lookup(ctx, *inc.Latitude, *inc.Longitude)
	if err != nil || parcel.Empty() {
		return outcome{err: err}
	}
	return outcome{group: incident.ParcelGroup{Owner: parcel.Owner, Value: parcel.Value}}
}
