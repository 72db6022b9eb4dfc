package features

import (
	"errors"
	"math"
	"sort"
)

const (
	minTempoBPM = 30.0
	maxTempoBPM = 320.0

	// Log-normal tempo prior: centered at 120 BPM, one octave wide.
	priorBPM     = 120.0
	priorOctaves = 1.0

	beatTightness = 100.0

	dbFloor = -80.0
)

var ErrBadSampleRate = errors.New("sample rate must be positive")

// OnsetEnvelope measures spectral flux: the half-wave rectified increase in
// log power between consecutive frames, averaged over frequency bins.
// env[0] is always 0.
func OnsetEnvelope(samples []float64, sampleRate, frameLength, hopLength int) ([]float64, error) {
	if sampleRate <= 0 {
		return nil, ErrBadSampleRate
	}
	if frameLength <= 0 || hopLength <= 0 {
		return nil, ErrBadFrameSetup
	}

	bins := frameLength/2 + 1
	prev := make([]float64, bins)
	cur := make([]float64, bins)
	env := make([]float64, 0, FrameCount(len(samples), frameLength, hopLength))

	err := walkSpectra(samples, frameLength, hopLength, Hann(frameLength), func(t int, mag []float64) {
		for k, m := range mag {
			cur[k] = powerToDB(m * m)
		}
		if t == 0 {
			env = append(env, 0)
		} else {
			flux := 0.0
			for k := range cur {
				if d := cur[k] - prev[k]; d > 0 {
					flux += d
				}
			}
			env = append(env, flux/float64(bins))
		}
		prev, cur = cur, prev
	})
	if err != nil {
		return nil, err
	}
	return env, nil
}

func powerToDB(p float64) float64 {
	db := 10 * math.Log10(math.Max(p, 1e-10))
	if db < dbFloor {
		return dbFloor
	}
	return db
}

// EstimateTempo picks the autocorrelation lag of the onset envelope that
// scores best under the tempo prior and returns it as beats per minute.
// A flat envelope has no tempo and returns 0.
func EstimateTempo(env []float64, sampleRate, hopLength int) float64 {
	if len(env) < 2 || sampleRate <= 0 || hopLength <= 0 {
		return 0
	}

	fps := float64(sampleRate) / float64(hopLength)
	minLag := int(math.Floor(fps * 60 / maxTempoBPM))
	if minLag < 1 {
		minLag = 1
	}
	maxLag := int(math.Ceil(fps * 60 / minTempoBPM))
	if maxLag > len(env)-1 {
		maxLag = len(env) - 1
	}

	bestLag := 0
	bestScore := 0.0
	for lag := minLag; lag <= maxLag; lag++ {
		ac := 0.0
		for i := 0; i+lag < len(env); i++ {
			ac += env[i] * env[i+lag]
		}
		bpm := 60 * fps / float64(lag)
		z := math.Log2(bpm/priorBPM) / priorOctaves
		score := ac * math.Exp(-0.5*z*z)
		if score > bestScore {
			bestScore = score
			bestLag = lag
		}
	}

	if bestLag == 0 {
		return 0
	}
	return 60 * fps / float64(bestLag)
}

// TrackBeats places beats on the onset envelope by dynamic programming,
// trading onset strength against deviation from the beat period. It returns
// ascending frame indices.
func TrackBeats(env []float64, bpm float64, sampleRate, hopLength int) []int {
	if len(env) == 0 || bpm <= 0 || sampleRate <= 0 || hopLength <= 0 {
		return nil
	}

	sd := stddev(env)
	if sd == 0 {
		return nil
	}

	period := 60 * float64(sampleRate) / float64(hopLength) / bpm
	local := localScore(env, sd, period)

	n := len(env)
	cum := make([]float64, n)
	back := make([]int, n)
	lo := int(math.Round(2 * period))
	hi := int(math.Round(period / 2))
	if hi < 1 {
		hi = 1
	}

	for i := 0; i < n; i++ {
		back[i] = -1
		best := math.Inf(-1)
		for j := i - lo; j <= i-hi; j++ {
			if j < 0 {
				continue
			}
			d := math.Log(float64(i-j) / period)
			score := cum[j] - beatTightness*d*d
			if score > best {
				best = score
				back[i] = j
			}
		}
		cum[i] = local[i]
		if back[i] >= 0 {
			cum[i] += best
		}
	}

	last := lastBeat(cum)
	if last < 0 {
		return nil
	}

	var beats []int
	for b := last; b >= 0; b = back[b] {
		beats = append(beats, b)
	}
	sort.Ints(beats)
	return beats
}

// localScore smooths the normalized envelope with a Gaussian a little
// narrower than one beat period.
func localScore(env []float64, sd, period float64) []float64 {
	half := int(math.Round(period))
	kernel := make([]float64, 2*half+1)
	for j := -half; j <= half; j++ {
		x := float64(j) * 32 / period
		kernel[j+half] = math.Exp(-0.5 * x * x)
	}

	out := make([]float64, len(env))
	for i := range env {
		sum := 0.0
		for j := -half; j <= half; j++ {
			if k := i + j; k >= 0 && k < len(env) {
				sum += env[k] / sd * kernel[j+half]
			}
		}
		out[i] = sum
	}
	return out
}

// lastBeat is the latest local maximum of the cumulative score that reaches
// half the median of all local maxima.
func lastBeat(cum []float64) int {
	var peaks []int
	for i := range cum {
		left := i == 0 || cum[i] > cum[i-1]
		right := i == len(cum)-1 || cum[i] >= cum[i+1]
		if left && right {
			peaks = append(peaks, i)
		}
	}
	if len(peaks) == 0 {
		return -1
	}

	vals := make([]float64, len(peaks))
	for i, p := range peaks {
		vals[i] = cum[p]
	}
	sort.Float64s(vals)
	threshold := 0.5 * vals[len(vals)/2]

	for i := len(peaks) - 1; i >= 0; i-- {
		if cum[peaks[i]] >= threshold {
			return peaks[i]
		}
	}
	return peaks[len(peaks)-1]
}

// BeatTrack estimates tempo and beat positions for a mono signal using the
// default frame layout.
func BeatTrack(samples []float64, sampleRate int) (float64, []int, error) {
	env, err := OnsetEnvelope(samples, sampleRate, FrameLength, HopLength)
	if err != nil {
		return 0, nil, err
	}
	bpm := EstimateTempo(env, sampleRate, HopLength)
	return bpm, TrackBeats(env, bpm, sampleRate, HopLength), nil
}

func stddev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mu := mean(values)
	sum := 0.0
	for _, v := range values {
		d := v - mu
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)))
}
