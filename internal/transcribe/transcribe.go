// Package transcribe turns a recording into text.
package transcribe

import (
	"context"
	"fmt"

	"thirdcoast.systems/scanwatch/internal/config"
	"thirdcoast.systems/scanwatch/pkg/utils/format"
)

// Transcriber converts the audio at path into text. Confidence is in [0,1]
// and nil when the backend does not report one.
type Transcriber interface {
	Transcribe(ctx context.Context, path string) (Result, error)
}

type Result struct {
	Text       string
	Confidence *float64
}

func clean(s string) string { return format.PlainText(s) }

// New returns the backend selected by TRANSCRIBER.
func New(svc config.Services) (Transcriber, error) {
	switch svc.Transcriber {
	case "", "whisper":
		return NewWhisper(WhisperConfigFromEnv()), nil
	case "deepgram":
		return NewDeepgram(DeepgramOptions{
			BaseURL:           svc.DeepgramURL,
			APIKey:            svc.DeepgramAPIKey,
			Timeout:           svc.HTTPTimeout,
			RequestsPerSecond: svc.RequestsPerSec,
		}), nil
	}
	return nil, fmt.Errorf("transcribe: unknown backend %q", svc.Transcriber)
}
