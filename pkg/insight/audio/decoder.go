package audio

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyInput        = errors.New("empty audio input")
	ErrNoSamples         = errors.New("no audio samples decoded")
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrNoDecoder         = errors.New("no decoders configured")
)

// Waveform is a decoded mono signal. Samples are normalized to [-1, 1].
type Waveform struct {
	Samples    []float64
	SampleRate int
	Channels   int    // channel count of the source before mono folding
	Decoder    string // name of the decoder that produced it
}

// Duration returns the signal length in seconds.
func (w *Waveform) Duration() float64 {
	if w == nil || w.SampleRate <= 0 {
		return 0
	}
	return float64(len(w.Samples)) / float64(w.SampleRate)
}

func (w *Waveform) validate() error {
	if w.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate: %d", w.SampleRate)
	}
	if len(w.Samples) == 0 {
		return ErrNoSamples
	}
	return nil
}

// Decoder turns an encoded audio buffer into a mono waveform at the
// buffer's native sample rate.
type Decoder interface {
	Name() string
	Decode(ctx context.Context, data []byte) (*Waveform, error)
}

// AttemptFunc observes each decode attempt made by a Chain. err is nil for
// the attempt that succeeded.
type AttemptFunc func(decoder string, err error)

// DecodeError is returned by Chain when every strategy failed.
type DecodeError struct {
	Tried []string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("all decoders failed (%s): %v", strings.Join(e.Tried, ", "), e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Chain tries its decoders in order and returns the first waveform produced.
// Every decoder receives the full, unread buffer.
type Chain struct {
	decoders []Decoder
}

func NewChain(decoders ...Decoder) *Chain {
	return &Chain{decoders: decoders}
}

func (c *Chain) Name() string {
	names := make([]string, len(c.decoders))
	for i, d := range c.decoders {
		names[i] = d.Name()
	}
	return "chain(" + strings.Join(names, ",") + ")"
}

func (c *Chain) Decode(ctx context.Context, data []byte) (*Waveform, error) {
	return c.DecodeObserved(ctx, data, nil)
}

// DecodeObserved is Decode with a per-attempt callback, used to log which
// path a request took.
func (c *Chain) DecodeObserved(ctx context.Context, data []byte, observe AttemptFunc) (*Waveform, error) {
	if len(c.decoders) == 0 {
		return nil, ErrNoDecoder
	}
	if len(data) == 0 {
		return nil, &DecodeError{Err: ErrEmptyInput}
	}

	var errs []error
	tried := make([]string, 0, len(c.decoders))
	for _, d := range c.decoders {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		tried = append(tried, d.Name())
		wf, err := d.Decode(ctx, data)
		if err == nil {
			err = wf.validate()
		}
		if observe != nil {
			observe(d.Name(), err)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d.Name(), err))
			continue
		}

		if wf.Decoder == "" {
			wf.Decoder = d.Name()
		}
		return wf, nil
	}

	return nil, &DecodeError{Tried: tried, Err: errors.Join(errs...)}
}

// FoldToMono averages interleaved multi-channel samples frame by frame.
// A trailing partial frame is dropped. Mono input is returned unchanged.
func FoldToMono(interleaved []float64, channels int) []float64 {
	if channels <= 1 {
		return interleaved
	}

	frames := len(interleaved) / channels
	mono := make([]float64, frames)
	inv := 1.0 / float64(channels)
	for i := 0; i < frames; i++ {
		sum := 0.0
		base := i * channels
		for c := 0; c < channels; c++ {
			sum += interleaved[base+c]
		}
		mono[i] = sum * inv
	}
	return mono
}
