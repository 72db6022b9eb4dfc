package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"

	"github.com/himanishpuri/AudioInsight/pkg/insight"
	"github.com/himanishpuri/AudioInsight/pkg/insight/audio"
	"github.com/himanishpuri/AudioInsight/pkg/logger"
)

// globalOptions apply to every command.
type globalOptions struct {
	tempDir     string
	ffmpegBin   string
	ffprobeBin  string
	maxDuration float64
	logLevel    string
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	var opts globalOptions
	fs := pflag.NewFlagSet("audioinsight", pflag.ContinueOnError)
	fs.SetInterspersed(false)
	fs.StringVar(&opts.tempDir, "temp", getEnvOrDefault("AUDIOINSIGHT_ANALYSIS_TEMP_DIR", os.TempDir()), "Directory for spooled audio")
	fs.StringVar(&opts.ffmpegBin, "ffmpeg", getEnvOrDefault("AUDIOINSIGHT_ANALYSIS_FFMPEG_BIN", "ffmpeg"), "Path to the ffmpeg binary")
	fs.StringVar(&opts.ffprobeBin, "ffprobe", getEnvOrDefault("AUDIOINSIGHT_ANALYSIS_FFPROBE_BIN", "ffprobe"), "Path to the ffprobe binary")
	fs.Float64Var(&opts.maxDuration, "max-duration", insight.DefaultMaxDuration, "Longest accepted audio, in seconds")
	fs.StringVar(&opts.logLevel, "log-level", getEnvOrDefault("LOG_LEVEL", "warn"), "Log level: debug, info, warn, error")
	fs.Usage = func() { printUsage(stdout) }
	if err := fs.Parse(args); err != nil {
		return err
	}

	logger.GetLogger().SetLevel(logger.ParseLevel(opts.logLevel))

	if fs.NArg() < 1 {
		printUsage(stdout)
		return errors.New("no command given")
	}

	command, rest := fs.Arg(0), fs.Args()[1:]
	logger.GetLogger().Debugf("Executing command: %s", command)

	switch command {
	case "analyze":
		return handleAnalyze(opts, rest, stdout)
	case "spectrogram":
		return handleSpectrogram(opts, rest, stdout)
	case "help":
		printUsage(stdout)
		return nil
	default:
		printUsage(stdout)
		return fmt.Errorf("unknown command: %s", command)
	}
}

func (o globalOptions) decoders() []audio.Decoder {
	ff := audio.NewFFmpegDecoder()
	ff.FFmpegBin = o.ffmpegBin
	ff.FFprobeBin = o.ffprobeBin
	ff.TempDir = o.tempDir
	return []audio.Decoder{ff, audio.NewNativeDecoder()}
}

func handleAnalyze(opts globalOptions, args []string, stdout io.Writer) error {
	fs := pflag.NewFlagSet("analyze", pflag.ContinueOnError)
	genre := fs.String("genre", "Unknown", "Genre label echoed in the result")
	daw := fs.String("daw", "Unknown", "DAW label echoed in the result")
	asJSON := fs.Bool("json", false, "Print the result as JSON")
	specPath := fs.String("spectrogram", "", "Also render a spectrogram PNG to this path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: audioinsight analyze <audio_file> [--genre G] [--daw D] [--json] [--spectrogram out.png]")
	}
	audioPath := fs.Arg(0)

	data, err := os.ReadFile(audioPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", audioPath, err)
	}

	svc, err := insight.NewService(
		insight.WithMaxDuration(opts.maxDuration),
		insight.WithDecoders(opts.decoders()...),
	)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	res, err := svc.Analyze(ctx, &insight.Request{
		Data:     data,
		Filename: filepath.Base(audioPath),
		Genre:    *genre,
		DAW:      *daw,
	})
	if err != nil {
		var f *insight.Failure
		if errors.As(err, &f) {
			if *asJSON {
				return writeJSON(stdout, map[string]string{"error": f.Message()})
			}
			return errors.New(f.Message())
		}
		return err
	}

	if *specPath != "" {
		if err := renderFile(ctx, opts, data, *specPath, defaultSpecWidth, defaultSpecHeight); err != nil {
			return err
		}
		if !*asJSON {
			fmt.Fprintf(stdout, "🖼  Spectrogram saved to %s\n", *specPath)
		}
	}

	if *asJSON {
		return writeJSON(stdout, res)
	}

	fmt.Fprintf(stdout, "\n✅ %s\n", filepath.Base(audioPath))
	fmt.Fprintf(stdout, "   Duration:          %.2f s\n", res.DurationSec)
	fmt.Fprintf(stdout, "   RMS level:         %.4f\n", res.RMSLevel)
	fmt.Fprintf(stdout, "   Tempo:             %.2f BPM\n", res.TempoBPM)
	fmt.Fprintf(stdout, "   Spectral centroid: %.2f Hz\n", res.SpectralCentroid)
	fmt.Fprintf(stdout, "   Genre:             %s\n", res.Genre)
	fmt.Fprintf(stdout, "   DAW:               %s\n", res.DAW)
	return nil
}

func handleSpectrogram(opts globalOptions, args []string, stdout io.Writer) error {
	fs := pflag.NewFlagSet("spectrogram", pflag.ContinueOnError)
	out := fs.StringP("output", "o", "", "Output PNG path (default: <audio_file>.png)")
	width := fs.Int("width", defaultSpecWidth, "Image width in pixels")
	height := fs.Int("height", defaultSpecHeight, "Image height in pixels (frequency bins)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: audioinsight spectrogram <audio_file> [-o out.png] [--width W] [--height H]")
	}
	audioPath := fs.Arg(0)
	if *out == "" {
		*out = audioPath + ".png"
	}

	data, err := os.ReadFile(audioPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", audioPath, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := renderFile(ctx, opts, data, *out, *width, *height); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "✅ Saved spectrogram to %s\n", *out)
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "AudioInsight - audio descriptor CLI")
	fmt.Fprintln(w, "\nGlobal Options:")
	fmt.Fprintln(w, "  --temp <dir>           Directory for spooled audio (env: AUDIOINSIGHT_ANALYSIS_TEMP_DIR)")
	fmt.Fprintln(w, "  --ffmpeg <path>        ffmpeg binary (env: AUDIOINSIGHT_ANALYSIS_FFMPEG_BIN, default: ffmpeg)")
	fmt.Fprintln(w, "  --ffprobe <path>       ffprobe binary (env: AUDIOINSIGHT_ANALYSIS_FFPROBE_BIN, default: ffprobe)")
	fmt.Fprintln(w, "  --max-duration <sec>   Longest accepted audio (default: 300)")
	fmt.Fprintln(w, "  --log-level <level>    debug, info, warn, error (env: LOG_LEVEL, default: warn)")
	fmt.Fprintln(w, "\nUsage:")
	fmt.Fprintln(w, "  audioinsight [global-options] analyze <audio_file> [--genre G] [--daw D] [--json] [--spectrogram out.png]")
	fmt.Fprintln(w, "  audioinsight [global-options] spectrogram <audio_file> [-o out.png] [--width W] [--height H]")
	fmt.Fprintln(w, "\nExamples:")
	fmt.Fprintln(w, "  audioinsight analyze mix.wav --genre House --daw \"Ableton Live\"")
	fmt.Fprintln(w, "  audioinsight --max-duration 600 analyze set.mp3 --json")
	fmt.Fprintln(w, "  audioinsight spectrogram mix.wav -o mix.png")
}
