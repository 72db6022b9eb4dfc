// Package audiotest builds synthetic signals and encoded audio buffers for tests.
package audiotest

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Sine returns n samples of a sine wave at freq Hz.
func Sine(freq, amplitude float64, sampleRate, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return out
}

// Constant returns n samples of a fixed value.
func Constant(value float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = value
	}
	return out
}

// ClickTrain places a short 1 kHz burst every period samples.
func ClickTrain(sampleRate, period, n int) []float64 {
	const burst = 256
	out := make([]float64, n)
	for start := 0; start < n; start += period {
		for j := 0; j < burst && start+j < n; j++ {
			out[start+j] = 0.8 * math.Sin(2*math.Pi*1000*float64(j)/float64(sampleRate))
		}
	}
	return out
}

// Interleave zips per-channel slices of equal length into frame order.
func Interleave(channels ...[]float64) []float64 {
	if len(channels) == 0 {
		return nil
	}
	n := len(channels[0])
	out := make([]float64, 0, n*len(channels))
	for i := 0; i < n; i++ {
		for _, ch := range channels {
			out = append(out, ch[i])
		}
	}
	return out
}

// EncodeWAV renders interleaved samples as a 16-bit PCM WAV file and returns its bytes.
func EncodeWAV(tb testing.TB, interleaved []float64, sampleRate, channels int) []byte {
	tb.Helper()

	data := make([]int, len(interleaved))
	for i, v := range interleaved {
		s := math.Round(v * 32768)
		if s > 32767 {
			s = 32767
		}
		if s < -32768 {
			s = -32768
		}
		data[i] = int(s)
	}
	return encode(tb, data, sampleRate, 16, channels, 1)
}

// EncodeFloatWAV renders interleaved samples as a 32-bit IEEE float WAV
// (format code 3) and returns its bytes.
func EncodeFloatWAV(tb testing.TB, interleaved []float64, sampleRate, channels int) []byte {
	tb.Helper()

	// The encoder writes 32-bit words verbatim, so carry the float bits through int32.
	data := make([]int, len(interleaved))
	for i, v := range interleaved {
		data[i] = int(int32(math.Float32bits(float32(v))))
	}
	return encode(tb, data, sampleRate, 32, channels, 3)
}

func encode(tb testing.TB, data []int, sampleRate, bitDepth, channels, format int) []byte {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "fixture.wav")
	f, err := os.Create(path)
	if err != nil {
		tb.Fatalf("Failed to create fixture: %v", err)
	}

	enc := wav.NewEncoder(f, sampleRate, bitDepth, channels, format)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(buf); err != nil {
		f.Close()
		tb.Fatalf("Failed to encode fixture: %v", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		tb.Fatalf("Failed to finalize fixture: %v", err)
	}
	if err := f.Close(); err != nil {
		tb.Fatalf("Failed to close fixture: %v", err)
	}

	out, err := os.ReadFile(path)
	if err != nil {
		tb.Fatalf("Failed to read fixture: %v", err)
	}
	return out
}
