package features

import (
	"math"
)

// FrameRMS returns the root-mean-square of each analysis frame. A signal
// shorter than one frame yields a single value over the whole signal.
func FrameRMS(samples []float64, frameLength, hopLength int) ([]float64, error) {
	if frameLength <= 0 || hopLength <= 0 {
		return nil, ErrBadFrameSetup
	}
	if len(samples) == 0 {
		return nil, ErrEmptySignal
	}

	frames := FrameCount(len(samples), frameLength, hopLength)
	out := make([]float64, frames)
	for t := 0; t < frames; t++ {
		start := t * hopLength
		end := start + frameLength
		if end > len(samples) {
			end = len(samples)
		}
		sum := 0.0
		for _, v := range samples[start:end] {
			sum += v * v
		}
		out[t] = math.Sqrt(sum / float64(end-start))
	}
	return out, nil
}

// RMS is the mean of the per-frame RMS values.
func RMS(samples []float64, frameLength, hopLength int) (float64, error) {
	frames, err := FrameRMS(samples, frameLength, hopLength)
	if err != nil {
		return 0, err
	}
	return mean(frames), nil
}

// SpectralCentroid is the mean over frames of each frame's magnitude-weighted
// mean frequency, in Hz. Silent frames contribute 0.
func SpectralCentroid(samples []float64, sampleRate, frameLength, hopLength int) (float64, error) {
	if sampleRate <= 0 {
		return 0, ErrBadSampleRate
	}
	if frameLength <= 0 || hopLength <= 0 {
		return 0, ErrBadFrameSetup
	}

	binHz := float64(sampleRate) / float64(frameLength)
	sum := 0.0
	count := 0
	err := walkSpectra(samples, frameLength, hopLength, Hann(frameLength), func(_ int, mag []float64) {
		sum += frameCentroid(mag, binHz)
		count++
	})
	if err != nil {
		return 0, err
	}
	return sum / float64(count), nil
}

func frameCentroid(mag []float64, binHz float64) float64 {
	weighted := 0.0
	total := 0.0
	for k, m := range mag {
		weighted += float64(k) * binHz * m
		total += m
	}
	if total <= 0 {
		return 0
	}
	return weighted / total
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
