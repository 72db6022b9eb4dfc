package features

import (
	"errors"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

// Frame layout shared by every descriptor. Frames are not centered: the first
// frame starts at sample 0 and no padding is added past the end, except that a
// signal shorter than one frame is analysed as a single frame.
const (
	FrameLength = 2048
	HopLength   = 512
)

var (
	ErrEmptySignal   = errors.New("empty signal")
	ErrBadFrameSetup = errors.New("frame length and hop must be positive")
)

// Hann returns a Hann window of length n.
func Hann(n int) []float64 {
	return window.Hann(n)
}

// FrameCount is the number of analysis frames for a signal of n samples.
// It is 0 for an empty signal or a non-positive frame setup.
func FrameCount(n, frameLength, hopLength int) int {
	if n <= 0 || frameLength <= 0 || hopLength <= 0 {
		return 0
	}
	if n <= frameLength {
		return 1
	}
	return 1 + (n-frameLength)/hopLength
}

// MagnitudeSpectrum converts a complex spectrum into magnitudes for bins
// 0..n/2 inclusive.
func MagnitudeSpectrum(spectrum []complex128) []float64 {
	half := len(spectrum)/2 + 1
	if half > len(spectrum) {
		half = len(spectrum)
	}
	mag := make([]float64, half)
	for i := 0; i < half; i++ {
		mag[i] = cmplx.Abs(spectrum[i])
	}
	return mag
}

// walkSpectra windows each frame, runs the FFT and hands the magnitude
// spectrum to fn. The mag slice is reused between calls.
func walkSpectra(samples []float64, frameLength, hopLength int, win []float64, fn func(t int, mag []float64)) error {
	if frameLength <= 0 || hopLength <= 0 {
		return ErrBadFrameSetup
	}
	if len(win) != frameLength {
		return errors.New("window length must equal frame length")
	}
	if len(samples) == 0 {
		return ErrEmptySignal
	}

	frames := FrameCount(len(samples), frameLength, hopLength)
	frame := make([]float64, frameLength)
	mag := make([]float64, frameLength/2+1)

	for t := 0; t < frames; t++ {
		start := t * hopLength
		for i := range frame {
			if start+i < len(samples) {
				frame[i] = samples[start+i] * win[i]
			} else {
				frame[i] = 0
			}
		}

		spec := fft.FFTReal(frame)
		for k := range mag {
			mag[k] = cmplx.Abs(spec[k])
		}
		fn(t, mag)
	}
	return nil
}

// STFT computes a time-major magnitude spectrogram: spectrogram[frame][bin].
func STFT(samples []float64, frameLength, hopLength int, win []float64) ([][]float64, error) {
	spectrogram := make([][]float64, 0, FrameCount(len(samples), frameLength, hopLength))
	err := walkSpectra(samples, frameLength, hopLength, win, func(_ int, mag []float64) {
		row := make([]float64, len(mag))
		copy(row, mag)
		spectrogram = append(spectrogram, row)
	})
	if err != nil {
		return nil, err
	}
	return spectrogram, nil
}
