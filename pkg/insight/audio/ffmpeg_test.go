package audio

import (
	"context"
	"encoding/binary"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/himanishpuri/AudioInsight/pkg/insight/audio/audiotest"
)

func TestParseProbe(t *testing.T) {
	out := []byte(`{
		"format": {"format_name": "wav"},
		"streams": [
			{"codec_type": "video", "codec_name": "png"},
			{"codec_type": "audio", "codec_name": "pcm_s16le", "sample_rate": "44100", "channels": 2}
		]
	}`)

	info, err := parseProbe(out)
	if err != nil {
		t.Fatalf("parseProbe failed: %v", err)
	}
	if info.SampleRate != 44100 || info.Channels != 2 || info.Codec != "pcm_s16le" || info.FormatName != "wav" {
		t.Errorf("Unexpected stream info: %+v", info)
	}
}

func TestParseProbeErrors(t *testing.T) {
	tests := []struct {
		name string
		out  string
	}{
		{"not json", "nope"},
		{"no audio stream", `{"streams": [{"codec_type": "video"}]}`},
		{"bad sample rate", `{"streams": [{"codec_type": "audio", "sample_rate": "N/A"}]}`},
		{"zero sample rate", `{"streams": [{"codec_type": "audio", "sample_rate": "0"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseProbe([]byte(tt.out)); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestFloat32LEToFloat64(t *testing.T) {
	values := []float32{0, 0.5, -1, 0.25}
	buf := make([]byte, len(values)*4+3) // trailing partial sample is ignored
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}

	got := float32LEToFloat64(buf)
	if len(got) != len(values) {
		t.Fatalf("Expected %d samples, got %d", len(values), len(got))
	}
	for i, v := range values {
		if got[i] != float64(v) {
			t.Errorf("Sample %d: expected %f, got %f", i, v, got[i])
		}
	}
}

func TestFFmpegDecoderMissingBinary(t *testing.T) {
	dir := t.TempDir()
	dec := &FFmpegDecoder{
		FFmpegBin:  filepath.Join(dir, "no-such-ffmpeg"),
		FFprobeBin: filepath.Join(dir, "no-such-ffprobe"),
		TempDir:    dir,
		Timeout:    5 * time.Second,
	}

	if _, err := dec.Decode(context.Background(), []byte("RIFF")); err == nil {
		t.Fatal("Expected error when ffprobe is missing")
	}

	// The spooled upload must not be left behind.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected temp dir to be empty, found %d entries", len(entries))
	}
}

func TestFFmpegDecoderEmptyInput(t *testing.T) {
	if _, err := NewFFmpegDecoder().Decode(context.Background(), nil); err != ErrEmptyInput {
		t.Errorf("Expected ErrEmptyInput, got %v", err)
	}
}

func TestFFmpegDecoderWAV(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not installed")
	}

	const sr = 16000
	left := audiotest.Constant(0.5, sr)
	right := audiotest.Constant(0.25, sr)
	data := audiotest.EncodeWAV(t, audiotest.Interleave(left, right), sr, 2)

	dec := NewFFmpegDecoder()
	dec.TempDir = t.TempDir()
	wf, err := dec.Decode(context.Background(), data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if wf.SampleRate != sr {
		t.Errorf("Expected native sample rate %d, got %d", sr, wf.SampleRate)
	}
	if wf.Channels != 2 {
		t.Errorf("Expected source channels 2, got %d", wf.Channels)
	}
	if math.Abs(wf.Duration()-1.0) > 0.01 {
		t.Errorf("Expected ~1s, got %f", wf.Duration())
	}
}
