package transcribe

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"thirdcoast.systems/scanwatch/internal/httpclient"
)

type DeepgramOptions struct {
	BaseURL           string
	APIKey            string
	Model             string
	Timeout           time.Duration
	RequestsPerSecond float64
}

// Deepgram posts the audio bytes to the prerecorded listen endpoint.
type Deepgram struct {
	endpoint string
	client   *httpclient.Client
}

func NewDeepgram(opts DeepgramOptions) *Deepgram {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.deepgram.com"
	}
	if opts.Model == "" {
		opts.Model = "nova-3"
	}
	q := url.Values{}
	q.Set("model", opts.Model)
	q.Set("smart_format", "true")

	h := http.Header{}
	h.Set("Authorization", "Token "+opts.APIKey)

	return &Deepgram{
		endpoint: strings.TrimRight(opts.BaseURL, "/") + "/v1/listen?" + q.Encode(),
		client: httpclient.New(httpclient.Options{
			Service:           "deepgram",
			Timeout:           opts.Timeout,
			RequestsPerSecond: opts.RequestsPerSecond,
			MaxElapsed:        30 * time.Second,
			Header:            h,
		}),
	}
}

type deepgramResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

func (d *Deepgram) Transcribe(ctx context.Context, path string) (Result, error) {
	audio, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("deepgram: read audio: %w", err)
	}

	var resp deepgramResponse
	if err := d.client.Do(ctx, http.MethodPost, d.endpoint, audio, contentType(path), &resp); err != nil {
		return Result{}, err
	}
	if len(resp.Results.Channels) == 0 || len(resp.Results.Channels[0].Alternatives) == 0 {
		return Result{}, nil
	}
	alt := resp.Results.Channels[0].Alternatives[0]
	conf := alt.Confidence
	return Result{Text: clean(alt.Transcript), Confidence: &conf}, nil
}

func contentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return "audio/wav"
	case ".m4a":
		return "audio/mp4"
	case ".ogg":
		return "audio/ogg"
	}
	return "audio/mpeg"
}
