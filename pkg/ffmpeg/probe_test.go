package ffmpeg

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseProbe_MP3(t *testing.T) {
	raw := []byte(`{
		"streams": [
			{"codec_type": "audio", "codec_name": "mp3", "sample_rate": "22050", "channels": 1, "duration": "7.314286"}
		],
		"format": {"format_name": "mp3", "duration": "7.314286", "size": "58880", "bit_rate": "64399"}
	}`)

	res, err := parseProbe(raw)
	require.NoError(t, err)
	require.Equal(t, "mp3", res.AudioCodec)
	require.Equal(t, 22050, res.AudioSampleRate)
	require.Equal(t, 1, res.AudioChannels)
	require.InDelta(t, 7.314286, res.Duration, 1e-6)
	require.Equal(t, int64(58880), res.Size)
	require.True(t, res.HasAudio())
	require.InDelta(t, 7.314286, res.AudioDuration(), 1e-6)
}

func TestParseProbe_Empty(t *testing.T) {
	res, err := parseProbe([]byte(`{"streams": [], "format": {"format_name": "mp3"}}`))
	require.NoError(t, err)
	require.False(t, res.HasAudio())
	require.Zero(t, res.AudioDuration())

	// An ID3-only file: the container has a length but nothing to play.
	res, err = parseProbe([]byte(`{"streams": [{"codec_type": "video", "codec_name": "mjpeg"}], "format": {"format_name": "mp3", "duration": "4.0"}}`))
	require.NoError(t, err)
	require.Zero(t, res.AudioDuration())

	_, err = parseProbe([]byte(`not json`))
	require.Error(t, err)
}

func TestParseProbe_StreamDurationFallback(t *testing.T) {
	res, err := parseProbe([]byte(`{"streams": [{"codec_type": "audio", "codec_name": "pcm_s16le", "duration": "2.5"}], "format": {}}`))
	require.NoError(t, err)
	require.InDelta(t, 2.5, res.Duration, 1e-9)
}
