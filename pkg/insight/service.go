package insight

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime/debug"
	"time"

	"github.com/himanishpuri/AudioInsight/pkg/insight/audio"
	"github.com/himanishpuri/AudioInsight/pkg/insight/features"
	"github.com/himanishpuri/AudioInsight/pkg/logger"
)

// analyzer is the default implementation of the Service interface. It holds
// only read-only configuration, so one instance serves concurrent requests.
type analyzer struct {
	decoder *audio.Chain
	log     Logger
	rec     Recorder
	config  *Config
}

func NewService(opts ...Option) (Service, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.MaxDuration <= 0 {
		return nil, fmt.Errorf("max duration must be positive, got %g", cfg.MaxDuration)
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger()
	}
	if cfg.Recorder == nil {
		cfg.Recorder = nopRecorder{}
	}
	if len(cfg.Decoders) == 0 {
		cfg.Decoders = cfg.defaultDecoders()
	}

	return &analyzer{
		decoder: audio.NewChain(cfg.Decoders...),
		log:     cfg.Logger,
		rec:     cfg.Recorder,
		config:  cfg,
	}, nil
}

// Analyze decodes req.Data and computes its descriptors. Every failure,
// including a panic inside the analysis routines, comes back as a *Failure.
func (a *analyzer) Analyze(ctx context.Context, req *Request) (res *Result, err error) {
	log := LoggerFrom(ctx, a.log)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Panic during analysis: %v\n%s", r, debug.Stack())
			res = nil
			err = &Failure{Kind: UnexpectedFailure, Err: fmt.Errorf("panic: %v", r)}
		}
		a.rec.ObserveAnalysis(outcome(err), time.Since(start))
	}()

	if req == nil {
		return nil, &Failure{Kind: UnexpectedFailure, Err: errors.New("nil request")}
	}

	log.Infof("Analyzing %q (content-type=%q, %d bytes, detected=%s)",
		req.Filename, req.ContentType, len(req.Data), audio.DetectFormat(req.Data))

	wf, err := a.decoder.DecodeObserved(ctx, req.Data, func(name string, err error) {
		a.rec.ObserveDecode(name, err == nil)
		if err != nil {
			log.Warnf("Decoder %s failed: %v", name, err)
			return
		}
		log.Infof("Decoded with %s", name)
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &Failure{Kind: UnexpectedFailure, Err: ctxErr}
		}
		log.Warnf("Could not decode %q: %v", req.Filename, err)
		return nil, &Failure{Kind: DecodeFailure, Err: err}
	}

	duration := wf.Duration()
	log.Infof("Decoded %d samples at %d Hz from %d channel(s): %.2fs",
		len(wf.Samples), wf.SampleRate, wf.Channels, duration)

	if duration > a.config.MaxDuration {
		log.Warnf("Rejecting %q: %.2fs exceeds %gs limit", req.Filename, duration, a.config.MaxDuration)
		return nil, &Failure{
			Kind:        DurationExceeded,
			Err:         fmt.Errorf("duration %.2fs exceeds %gs", duration, a.config.MaxDuration),
			MaxDuration: a.config.MaxDuration,
		}
	}
	a.rec.ObserveAudioDuration(duration)

	res, err = Describe(wf)
	if err != nil {
		log.Errorf("Analysis of %q failed: %v", req.Filename, err)
		return nil, &Failure{Kind: AnalysisFailure, Err: err}
	}
	res.Genre = req.Genre
	res.DAW = req.DAW

	log.Infof("Result for %q: duration=%.2fs rms=%.4f tempo=%.2f bpm centroid=%.2f Hz (%s)",
		req.Filename, res.DurationSec, res.RMSLevel, res.TempoBPM, res.SpectralCentroid,
		time.Since(start).Round(time.Millisecond))
	return res, nil
}

// Describe computes the rounded descriptor set for a decoded waveform. The
// labels are left empty and no duration limit is applied.
func Describe(wf *audio.Waveform) (*Result, error) {
	rms, err := features.RMS(wf.Samples, features.FrameLength, features.HopLength)
	if err != nil {
		return nil, fmt.Errorf("rms: %w", err)
	}

	tempo, _, err := features.BeatTrack(wf.Samples, wf.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("tempo: %w", err)
	}

	centroid, err := features.SpectralCentroid(wf.Samples, wf.SampleRate, features.FrameLength, features.HopLength)
	if err != nil {
		return nil, fmt.Errorf("spectral centroid: %w", err)
	}

	descriptors := []struct {
		name  string
		value float64
	}{
		{"rms", rms},
		{"tempo", tempo},
		{"centroid", centroid},
	}
	for _, d := range descriptors {
		if math.IsNaN(d.value) || math.IsInf(d.value, 0) {
			return nil, fmt.Errorf("%s is not finite", d.name)
		}
	}

	return &Result{
		DurationSec:      Round(wf.Duration(), 2),
		RMSLevel:         Round(rms, 4),
		TempoBPM:         Round(tempo, 2),
		SpectralCentroid: Round(centroid, 2),
	}, nil
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind.String()
	}
	return UnexpectedFailure.String()
}
