package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/himanishpuri/AudioInsight/pkg/utils"
)

const defaultDecodeTimeout = 60 * time.Second

// FFmpegDecoder decodes anything ffmpeg understands. The upload is spooled to
// a temp file so containers that need seeking (mp4/m4a) work.
type FFmpegDecoder struct {
	FFmpegBin  string
	FFprobeBin string
	TempDir    string
	Timeout    time.Duration
}

func NewFFmpegDecoder() *FFmpegDecoder {
	return &FFmpegDecoder{
		FFmpegBin:  "ffmpeg",
		FFprobeBin: "ffprobe",
		TempDir:    os.TempDir(),
		Timeout:    defaultDecodeTimeout,
	}
}

func (d *FFmpegDecoder) Name() string { return "ffmpeg" }

func (d *FFmpegDecoder) Decode(ctx context.Context, data []byte) (*Waveform, error) {
	if len(data) == 0 {
		return nil, ErrEmptyInput
	}

	timeout := d.Timeout
	if timeout <= 0 {
		timeout = defaultDecodeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	path, err := d.spool(data)
	if err != nil {
		return nil, err
	}
	defer os.Remove(path)

	probe, err := d.probe(ctx, path)
	if err != nil {
		return nil, err
	}

	samples, err := d.decodePCM(ctx, path, probe.SampleRate)
	if err != nil {
		return nil, err
	}

	return &Waveform{
		Samples:    samples,
		SampleRate: probe.SampleRate,
		Channels:   probe.Channels,
	}, nil
}

func (d *FFmpegDecoder) spool(data []byte) (string, error) {
	if err := utils.MakeDir(d.TempDir); err != nil {
		return "", fmt.Errorf("creating temp dir: %w", err)
	}

	f, err := os.CreateTemp(d.TempDir, "upload-*")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("writing temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("closing temp file: %w", err)
	}
	return f.Name(), nil
}

// StreamInfo is the subset of ffprobe output the decoder needs.
type StreamInfo struct {
	FormatName string
	Codec      string
	SampleRate int
	Channels   int
}

type ffprobeOutput struct {
	Format struct {
		FormatName string `json:"format_name"`
	} `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeStream struct {
	CodecType  string `json:"codec_type"`
	CodecName  string `json:"codec_name"`
	SampleRate string `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

func (p *ffprobeOutput) firstAudioStream() *ffprobeStream {
	for i := range p.Streams {
		if p.Streams[i].CodecType == "audio" {
			return &p.Streams[i]
		}
	}
	return nil
}

func (d *FFmpegDecoder) probe(ctx context.Context, path string) (*StreamInfo, error) {
	cmd := exec.CommandContext(
		ctx,
		d.FFprobeBin,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	return parseProbe(out)
}

func parseProbe(out []byte) (*StreamInfo, error) {
	var probe ffprobeOutput
	if err := json.Unmarshal(out, &probe); err != nil {
		return nil, fmt.Errorf("parsing ffprobe JSON: %w", err)
	}

	stream := probe.firstAudioStream()
	if stream == nil {
		return nil, errors.New("no audio stream found")
	}

	sampleRate, err := strconv.Atoi(stream.SampleRate)
	if err != nil || sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %q", stream.SampleRate)
	}

	return &StreamInfo{
		FormatName: probe.Format.FormatName,
		Codec:      stream.CodecName,
		SampleRate: sampleRate,
		Channels:   stream.Channels,
	}, nil
}

// decodePCM downmixes to mono at the native rate and reads raw float32 PCM
// from ffmpeg's stdout.
func (d *FFmpegDecoder) decodePCM(ctx context.Context, path string, sampleRate int) ([]float64, error) {
	cmd := exec.CommandContext(
		ctx,
		d.FFmpegBin,
		"-v", "error",
		"-i", path,
		"-vn",
		"-f", "f32le",
		"-acodec", "pcm_f32le",
		"-ac", "1",
		"-ar", strconv.Itoa(sampleRate),
		"-",
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("ffmpeg failed: %v (%s)", err, bytes.TrimSpace(stderr.Bytes()))
	}

	samples := float32LEToFloat64(stdout.Bytes())
	if len(samples) == 0 {
		return nil, ErrNoSamples
	}
	return samples, nil
}

func float32LEToFloat64(data []byte) []float64 {
	n := len(data) / 4
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:])))
	}
	return out
}
