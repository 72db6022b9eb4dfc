package insight

import (
	"os"
	"time"

	"github.com/himanishpuri/AudioInsight/pkg/insight/audio"
)

// DefaultMaxDuration is the longest upload, in seconds, that is analyzed.
const DefaultMaxDuration = 300.0

type Config struct {
	MaxDuration   float64
	FFmpegBin     string
	FFprobeBin    string
	TempDir       string
	DecodeTimeout time.Duration
	Decoders      []audio.Decoder
	Logger        Logger
	Recorder      Recorder
}

type Option func(*Config)

func WithMaxDuration(seconds float64) Option {
	return func(c *Config) {
		c.MaxDuration = seconds
	}
}

func WithFFmpeg(ffmpegBin, ffprobeBin string) Option {
	return func(c *Config) {
		c.FFmpegBin = ffmpegBin
		c.FFprobeBin = ffprobeBin
	}
}

func WithTempDir(dir string) Option {
	return func(c *Config) {
		c.TempDir = dir
	}
}

func WithDecodeTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.DecodeTimeout = d
	}
}

// WithDecoders replaces the default ffmpeg-then-native chain. Decoders are
// tried in the order given.
func WithDecoders(decoders ...audio.Decoder) Option {
	return func(c *Config) {
		c.Decoders = decoders
	}
}

func WithLogger(log Logger) Option {
	return func(c *Config) {
		c.Logger = log
	}
}

func WithRecorder(rec Recorder) Option {
	return func(c *Config) {
		c.Recorder = rec
	}
}

func defaultConfig() *Config {
	return &Config{
		MaxDuration: DefaultMaxDuration,
		FFmpegBin:   "ffmpeg",
		FFprobeBin:  "ffprobe",
		TempDir:     os.TempDir(),
	}
}

// defaultDecoders is ffmpeg first, keeping the native sample rate, then the
// pure-Go decoders.
func (c *Config) defaultDecoders() []audio.Decoder {
	ff := audio.NewFFmpegDecoder()
	ff.FFmpegBin = c.FFmpegBin
	ff.FFprobeBin = c.FFprobeBin
	ff.TempDir = c.TempDir
	if c.DecodeTimeout > 0 {
		ff.Timeout = c.DecodeTimeout
	}
	return []audio.Decoder{ff, audio.NewNativeDecoder()}
}
