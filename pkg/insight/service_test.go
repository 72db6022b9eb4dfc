package insight

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/himanishpuri/AudioInsight/pkg/insight/audio"
	"github.com/himanishpuri/AudioInsight/pkg/insight/audio/audiotest"
	"github.com/himanishpuri/AudioInsight/pkg/logger"
)

func quietLogger() *logger.Logger {
	return logger.New(logger.Config{Level: logger.FATAL, Output: io.Discard})
}

// newTestService uses only the pure-Go decoders so tests do not need ffmpeg.
func newTestService(t *testing.T, opts ...Option) Service {
	t.Helper()
	base := []Option{
		WithDecoders(audio.NewNativeDecoder()),
		WithLogger(quietLogger()),
	}
	svc, err := NewService(append(base, opts...)...)
	if err != nil {
		t.Fatalf("Failed to create service: %v", err)
	}
	return svc
}

type panicDecoder struct{}

func (panicDecoder) Name() string { return "panic" }

func (panicDecoder) Decode(context.Context, []byte) (*audio.Waveform, error) {
	panic("boom")
}

type fakeRecorder struct {
	mu       sync.Mutex
	decodes  []string
	outcomes []string
	audio    []float64
}

func (r *fakeRecorder) ObserveDecode(decoder string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decodes = append(r.decodes, fmt.Sprintf("%s:%t", decoder, ok))
}

func (r *fakeRecorder) ObserveAnalysis(outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func (r *fakeRecorder) ObserveAudioDuration(seconds float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audio = append(r.audio, seconds)
}

func failureKind(t *testing.T, err error) *Failure {
	t.Helper()
	var f *Failure
	if !errors.As(err, &f) {
		t.Fatalf("Expected *Failure, got %T: %v", err, err)
	}
	return f
}

func TestAnalyzeMonoWAV(t *testing.T) {
	const sr = 22050
	data := audiotest.EncodeWAV(t, audiotest.Sine(440, 0.5, sr, sr*2), sr, 1)

	res, err := newTestService(t).Analyze(context.Background(), &Request{
		Data:     data,
		Filename: "sine.wav",
		Genre:    "Ambient",
		DAW:      "Ableton Live",
	})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if res.DurationSec != 2.0 {
		t.Errorf("Expected duration 2.00, got %v", res.DurationSec)
	}
	if res.RMSLevel < 0.34 || res.RMSLevel > 0.36 {
		t.Errorf("Expected RMS near 0.3536, got %v", res.RMSLevel)
	}
	if res.SpectralCentroid < 400 || res.SpectralCentroid > 480 {
		t.Errorf("Expected centroid near 440 Hz, got %v", res.SpectralCentroid)
	}
	if res.TempoBPM < 0 {
		t.Errorf("Tempo must not be negative, got %v", res.TempoBPM)
	}
	if res.Genre != "Ambient" || res.DAW != "Ableton Live" {
		t.Errorf("Labels not passed through: %q / %q", res.Genre, res.DAW)
	}
}

func TestAnalyzeRounding(t *testing.T) {
	res, err := newTestService(t).Analyze(context.Background(), &Request{
		Data: audiotest.EncodeWAV(t, audiotest.Sine(1000, 0.3, 8000, 12345), 8000, 1),
	})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	checks := []struct {
		name   string
		v      float64
		places int
	}{
		{"duration", res.DurationSec, 2},
		{"rms", res.RMSLevel, 4},
		{"tempo", res.TempoBPM, 2},
		{"centroid", res.SpectralCentroid, 2},
	}
	for _, c := range checks {
		if Round(c.v, c.places) != c.v {
			t.Errorf("%s not rounded to %d places: %v", c.name, c.places, c.v)
		}
	}
	if res.DurationSec != 1.54 {
		t.Errorf("Expected 12345/8000 rounded to 1.54, got %v", res.DurationSec)
	}
}

func TestAnalyzeStereoRMSIsChannelAverage(t *testing.T) {
	const sr = 16000
	left := audiotest.Constant(0.5, sr)
	right := audiotest.Constant(0.25, sr)
	data := audiotest.EncodeWAV(t, audiotest.Interleave(left, right), sr, 2)

	res, err := newTestService(t).Analyze(context.Background(), &Request{Data: data})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if res.RMSLevel != 0.375 {
		t.Errorf("Expected RMS 0.375 (mean of 0.5 and 0.25), got %v", res.RMSLevel)
	}
}

func TestAnalyzeDurationLimit(t *testing.T) {
	// A low sample rate keeps a five-minute fixture small.
	const sr = 100

	tests := []struct {
		name    string
		samples int
		wantErr bool
	}{
		{"exactly at limit", 300 * sr, false},
		{"just over limit", 300*sr + 2, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := audiotest.EncodeWAV(t, audiotest.Sine(10, 0.5, sr, tt.samples), sr, 1)
			res, err := newTestService(t).Analyze(context.Background(), &Request{Data: data})

			if !tt.wantErr {
				if err != nil {
					t.Fatalf("Analyze failed: %v", err)
				}
				if res.DurationSec != 300 {
					t.Errorf("Expected duration 300, got %v", res.DurationSec)
				}
				return
			}

			if res != nil {
				t.Errorf("Expected no result, got %+v", res)
			}
			f := failureKind(t, err)
			if f.Kind != DurationExceeded {
				t.Errorf("Expected DurationExceeded, got %v", f.Kind)
			}
			if want := "Audio file is too long. Maximum duration is 5 minutes."; f.Message() != want {
				t.Errorf("Expected message %q, got %q", want, f.Message())
			}
		})
	}
}

func TestAnalyzeCustomDurationLimit(t *testing.T) {
	data := audiotest.EncodeWAV(t, audiotest.Sine(440, 0.5, 8000, 12000), 8000, 1)
	svc := newTestService(t, WithMaxDuration(1))

	_, err := svc.Analyze(context.Background(), &Request{Data: data})
	f := failureKind(t, err)
	if f.Kind != DurationExceeded || f.MaxDuration != 1 {
		t.Errorf("Expected DurationExceeded at 1s, got %+v", f)
	}
	if !strings.Contains(f.Message(), "1 second") {
		t.Errorf("Expected limit in message, got %q", f.Message())
	}
}

func TestAnalyzeDecodeFailure(t *testing.T) {
	inputs := map[string][]byte{
		"text":      []byte("this is not audio, just a renamed text file"),
		"truncated": audiotest.EncodeWAV(t, audiotest.Constant(0.1, 1000), 8000, 1)[:30],
		"empty":     nil,
	}

	for name, data := range inputs {
		t.Run(name, func(t *testing.T) {
			res, err := newTestService(t).Analyze(context.Background(), &Request{Data: data, Filename: "song.wav"})
			if res != nil {
				t.Errorf("Expected no result, got %+v", res)
			}
			f := failureKind(t, err)
			if f.Kind != DecodeFailure {
				t.Errorf("Expected DecodeFailure, got %v (%v)", f.Kind, err)
			}
			if f.Message() != MsgDecodeFailure {
				t.Errorf("Unexpected message %q", f.Message())
			}
			if strings.Contains(f.Message(), "riff") || strings.Contains(f.Message(), "native") {
				t.Errorf("Message leaks decoder detail: %q", f.Message())
			}
		})
	}
}

func TestAnalyzeFallsBackToSecondDecoder(t *testing.T) {
	rec := &fakeRecorder{}
	missing := audio.NewFFmpegDecoder()
	missing.FFprobeBin = "/nonexistent/ffprobe"
	missing.FFmpegBin = "/nonexistent/ffmpeg"
	missing.TempDir = t.TempDir()

	svc := newTestService(t, WithDecoders(missing, audio.NewNativeDecoder()), WithRecorder(rec))
	data := audiotest.EncodeWAV(t, audiotest.Sine(440, 0.5, 8000, 8000), 8000, 1)

	if _, err := svc.Analyze(context.Background(), &Request{Data: data}); err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	want := []string{"ffmpeg:false", "native:true"}
	if len(rec.decodes) != len(want) {
		t.Fatalf("Expected decode attempts %v, got %v", want, rec.decodes)
	}
	for i := range want {
		if rec.decodes[i] != want[i] {
			t.Errorf("Attempt %d: expected %s, got %s", i, want[i], rec.decodes[i])
		}
	}
	if len(rec.outcomes) != 1 || rec.outcomes[0] != "ok" {
		t.Errorf("Expected one ok outcome, got %v", rec.outcomes)
	}
	if len(rec.audio) != 1 || rec.audio[0] != 1 {
		t.Errorf("Expected audio duration 1s recorded, got %v", rec.audio)
	}
}

func TestAnalyzeRecoversFromPanic(t *testing.T) {
	rec := &fakeRecorder{}
	svc := newTestService(t, WithDecoders(panicDecoder{}), WithRecorder(rec))

	res, err := svc.Analyze(context.Background(), &Request{Data: []byte("x")})
	if res != nil {
		t.Errorf("Expected no result, got %+v", res)
	}
	f := failureKind(t, err)
	if f.Kind != UnexpectedFailure {
		t.Errorf("Expected UnexpectedFailure, got %v", f.Kind)
	}
	if f.Message() != MsgServerError {
		t.Errorf("Expected generic message, got %q", f.Message())
	}
	if len(rec.outcomes) != 1 || rec.outcomes[0] != "unexpected_failure" {
		t.Errorf("Expected unexpected_failure outcome, got %v", rec.outcomes)
	}
}

func TestAnalyzeCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	data := audiotest.EncodeWAV(t, audiotest.Sine(440, 0.5, 8000, 8000), 8000, 1)
	_, err := newTestService(t).Analyze(ctx, &Request{Data: data})
	if f := failureKind(t, err); f.Kind != UnexpectedFailure {
		t.Errorf("Expected UnexpectedFailure, got %v", f.Kind)
	}
}

func TestAnalyzeNilRequest(t *testing.T) {
	_, err := newTestService(t).Analyze(context.Background(), nil)
	if f := failureKind(t, err); f.Kind != UnexpectedFailure {
		t.Errorf("Expected UnexpectedFailure, got %v", f.Kind)
	}
}

func TestAnalyzeIsIdempotent(t *testing.T) {
	const sr = 22050
	data := audiotest.EncodeWAV(t, audiotest.ClickTrain(sr, 10240, sr*4), sr, 1)
	svc := newTestService(t)

	req := &Request{Data: data, Genre: "Techno", DAW: "Bitwig"}
	first, err := svc.Analyze(context.Background(), req)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	second, err := svc.Analyze(context.Background(), req)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if *first != *second {
		t.Errorf("Results differ between runs: %+v vs %+v", first, second)
	}
}

func TestAnalyzeLabelPassthrough(t *testing.T) {
	data := audiotest.EncodeWAV(t, audiotest.Sine(440, 0.5, 8000, 4000), 8000, 1)
	svc := newTestService(t)

	labels := []struct{ genre, daw string }{
		{"", ""},
		{"Unknown", "Unknown"},
		{"  Lo-Fi / Chillhop  ", "FL Studio 21 ☕"},
	}
	for _, l := range labels {
		res, err := svc.Analyze(context.Background(), &Request{Data: data, Genre: l.genre, DAW: l.daw})
		if err != nil {
			t.Fatalf("Analyze failed: %v", err)
		}
		if res.Genre != l.genre || res.DAW != l.daw {
			t.Errorf("Expected %q/%q, got %q/%q", l.genre, l.daw, res.Genre, res.DAW)
		}
	}
}

func TestAnalyzeConcurrentRequestsDoNotMix(t *testing.T) {
	const sr = 8000
	svc := newTestService(t)
	freqs := []float64{200, 500, 900, 1500, 2500, 3500}

	reqs := make([]*Request, len(freqs))
	want := make([]*Result, len(freqs))
	for i, f := range freqs {
		reqs[i] = &Request{
			Data:  audiotest.EncodeWAV(t, audiotest.Sine(f, 0.1*float64(i+1), sr, sr+i*1000), sr, 1),
			Genre: fmt.Sprintf("genre-%d", i),
			DAW:   fmt.Sprintf("daw-%d", i),
		}
		res, err := svc.Analyze(context.Background(), reqs[i])
		if err != nil {
			t.Fatalf("Analyze failed: %v", err)
		}
		want[i] = res
	}

	var wg sync.WaitGroup
	got := make([]*Result, len(reqs))
	errs := make([]error, len(reqs))
	for round := 0; round < 3; round++ {
		for i := range reqs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				got[i], errs[i] = svc.Analyze(context.Background(), reqs[i])
			}(i)
		}
		wg.Wait()

		for i := range reqs {
			if errs[i] != nil {
				t.Fatalf("Request %d failed: %v", i, errs[i])
			}
			if *got[i] != *want[i] {
				t.Errorf("Request %d: expected %+v, got %+v", i, want[i], got[i])
			}
		}
	}
}

func TestAnalyzeUsesContextLogger(t *testing.T) {
	var buf bytes.Buffer
	reqLog := logger.New(logger.Config{Level: logger.DEBUG, Output: &buf, Prefix: "req=abc"})
	ctx := ContextWithLogger(context.Background(), reqLog)

	data := audiotest.EncodeWAV(t, audiotest.Sine(440, 0.5, 8000, 4000), 8000, 1)
	if _, err := newTestService(t).Analyze(ctx, &Request{Data: data, Filename: "a.wav"}); err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "req=abc") || !strings.Contains(out, "Decoded with native") {
		t.Errorf("Expected request-scoped decode log, got:\n%s", out)
	}
}

func TestAnalyzeFloatWAV(t *testing.T) {
	const sr = 44100
	data := audiotest.EncodeFloatWAV(t, audiotest.Sine(440, 0.5, sr, sr), sr, 1)

	res, err := newTestService(t).Analyze(context.Background(), &Request{Data: data, Filename: "mixdown.wav"})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if res.DurationSec != 1.0 {
		t.Errorf("Expected duration 1.0, got %v", res.DurationSec)
	}
	if res.RMSLevel < 0.34 || res.RMSLevel > 0.36 {
		t.Errorf("Expected RMS near 0.354, got %v", res.RMSLevel)
	}
}

func TestDescribeNamesFirstNonFiniteDescriptor(t *testing.T) {
	samples := audiotest.Sine(440, 0.5, 8000, 8000)
	samples[100] = math.NaN()
	wf := &audio.Waveform{Samples: samples, SampleRate: 8000, Channels: 1}

	for i := 0; i < 20; i++ {
		_, err := Describe(wf)
		if err == nil {
			t.Fatal("Expected an error for a NaN sample")
		}
		if err.Error() != "rms is not finite" {
			t.Fatalf("Run %d: expected the rms descriptor to be reported, got %q", i, err)
		}
	}
}

func TestNewServiceRejectsBadLimit(t *testing.T) {
	if _, err := NewService(WithMaxDuration(0)); err == nil {
		t.Error("Expected error for zero max duration")
	}
}

func TestFailureMessages(t *testing.T) {
	tests := []struct {
		f    *Failure
		want string
	}{
		{&Failure{Kind: DecodeFailure}, MsgDecodeFailure},
		{&Failure{Kind: DurationExceeded, MaxDuration: 300}, "Audio file is too long. Maximum duration is 5 minutes."},
		{&Failure{Kind: DurationExceeded, MaxDuration: 60}, "Audio file is too long. Maximum duration is 1 minute."},
		{&Failure{Kind: DurationExceeded, MaxDuration: 90}, "Audio file is too long. Maximum duration is 90 seconds."},
		{&Failure{Kind: AnalysisFailure, Err: errors.New("index out of range")}, MsgServerError},
		{&Failure{Kind: UnexpectedFailure}, MsgServerError},
	}

	for _, tt := range tests {
		if got := tt.f.Message(); got != tt.want {
			t.Errorf("%v: expected %q, got %q", tt.f.Kind, tt.want, got)
		}
	}
}

func TestRound(t *testing.T) {
	tests := []struct {
		v      float64
		places int
		want   float64
	}{
		{1.23456, 2, 1.23},
		{1.23456, 4, 1.2346},
		{129.19921875, 2, 129.2},
		{0.375, 4, 0.375},
		{-2.46, 1, -2.5},
	}
	for _, tt := range tests {
		if got := Round(tt.v, tt.places); got != tt.want {
			t.Errorf("Round(%v, %d) = %v, want %v", tt.v, tt.places, got, tt.want)
		}
	}
}
