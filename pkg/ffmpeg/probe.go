// Package ffmpeg wraps ffprobe for inspecting scanner recordings.
package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
)

// ProbeBinary is the ffprobe executable looked up on PATH.
var ProbeBinary = "ffprobe"

// ErrProbeUnavailable is returned when ffprobe is not installed.
var ErrProbeUnavailable = errors.New("ffprobe not found")

// ProbeResult contains audio file metadata.
type ProbeResult struct {
	// Audio properties
	AudioCodec      string // Audio codec name (mp3, aac, etc.)
	AudioChannels   int    // Number of audio channels
	AudioSampleRate int    // Audio sample rate in Hz

	// File properties
	Duration   float64 // Duration in seconds
	Bitrate    int64   // Total bitrate in bits per second
	Size       int64   // File size in bytes
	FormatName string  // Container format (mp3, wav, etc.)

	AudioStreams int
}

// ffprobeOutput matches ffprobe JSON output structure.
type ffprobeOutput struct {
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
		Size       string `json:"size"`
		BitRate    string `json:"bit_rate"`
	} `json:"format"`
	Streams []struct {
		CodecType  string `json:"codec_type"`
		CodecName  string `json:"codec_name"`
		SampleRate string `json:"sample_rate"`
		Channels   int    `json:"channels"`
		Duration   string `json:"duration"`
	} `json:"streams"`
}

// Probe runs ffprobe on a file and returns metadata.
func Probe(ctx context.Context, path string) (*ProbeResult, error) {
	bin, err := exec.LookPath(ProbeBinary)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProbeUnavailable, err)
	}

	args := []string{
		"-hide_banner",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}
	cmd := exec.CommandContext(ctx, bin, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe: %w: %s", err, stderr.String())
	}
	return parseProbe(stdout.Bytes())
}

func parseProbe(raw []byte) (*ProbeResult, error) {
	var output ffprobeOutput
	if err := json.Unmarshal(raw, &output); err != nil {
		return nil, fmt.Errorf("ffprobe: failed to parse output: %w", err)
	}

	result := &ProbeResult{FormatName: output.Format.FormatName}
	if output.Format.Duration != "" {
		result.Duration, _ = strconv.ParseFloat(output.Format.Duration, 64)
	}
	if output.Format.BitRate != "" {
		result.Bitrate, _ = strconv.ParseInt(output.Format.BitRate, 10, 64)
	}
	if output.Format.Size != "" {
		result.Size, _ = strconv.ParseInt(output.Format.Size, 10, 64)
	}

	for _, stream := range output.Streams {
		if stream.CodecType != "audio" {
			continue
		}
		result.AudioStreams++
		// Only take first audio stream metadata
		if result.AudioCodec != "" {
			continue
		}
		result.AudioCodec = stream.CodecName
		result.AudioChannels = stream.Channels
		if stream.SampleRate != "" {
			result.AudioSampleRate, _ = strconv.Atoi(stream.SampleRate)
		}
		if result.Duration == 0 && stream.Duration != "" {
			result.Duration, _ = strconv.ParseFloat(stream.Duration, 64)
		}
	}
	return result, nil
}

// ProbeDuration returns the playable audio length of path. A file without
// an audio stream reports 0 even when the container carries a duration.
func ProbeDuration(ctx context.Context, path string) (float64, error) {
	result, err := Probe(ctx, path)
	if err != nil {
		return 0, err
	}
	return result.AudioDuration(), nil
}

func (r *ProbeResult) AudioDuration() float64 {
	if !r.HasAudio() {
		return 0
	}
	return r.Duration
}

// HasAudio reports whether the probe found a non-empty audio stream.
func (r *ProbeResult) HasAudio() bool {
	return r != nil && r.AudioStreams > 0 && r.Duration > 0
}
