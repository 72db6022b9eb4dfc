package insight

import (
	"fmt"
	"math"
)

// Result is the descriptor set returned for one analyzed upload. Genre and
// DAW are the caller's labels, echoed back unchanged.
type Result struct {
	DurationSec      float64 `json:"duration_sec"`
	RMSLevel         float64 `json:"rms_level"`
	TempoBPM         float64 `json:"tempo_bpm"`
	SpectralCentroid float64 `json:"spectral_centroid"`
	Genre            string  `json:"genre"`
	DAW              string  `json:"daw"`
}

// Request is one upload to analyze. Data is the whole encoded file.
type Request struct {
	Data        []byte
	Filename    string
	ContentType string
	Genre       string
	DAW         string
}

// Kind classifies why an analysis did not produce a Result.
type Kind int

const (
	UnexpectedFailure Kind = iota
	DecodeFailure
	DurationExceeded
	AnalysisFailure
)

func (k Kind) String() string {
	switch k {
	case DecodeFailure:
		return "decode_failure"
	case DurationExceeded:
		return "duration_exceeded"
	case AnalysisFailure:
		return "analysis_failure"
	default:
		return "unexpected_failure"
	}
}

const (
	MsgDecodeFailure = "Could not decode audio file. Please try a different format (WAV recommended, MP3 also works)."
	MsgServerError   = "Server error while analyzing audio. Please try again later."
)

// Failure is the error returned by Analyze for every outcome other than
// success. Err carries the internal detail and is for logs only.
type Failure struct {
	Kind Kind
	Err  error

	// MaxDuration is the limit in seconds, set for DurationExceeded.
	MaxDuration float64
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return f.Kind.String()
	}
	return fmt.Sprintf("%s: %v", f.Kind, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Message is the text safe to show to the caller.
func (f *Failure) Message() string {
	switch f.Kind {
	case DecodeFailure:
		return MsgDecodeFailure
	case DurationExceeded:
		return "Audio file is too long. Maximum duration is " + formatLimit(f.MaxDuration) + "."
	default:
		return MsgServerError
	}
}

func formatLimit(seconds float64) string {
	if seconds >= 60 && math.Mod(seconds, 60) == 0 {
		minutes := int(seconds / 60)
		if minutes == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", minutes)
	}
	if seconds == 1 {
		return "1 second"
	}
	return fmt.Sprintf("%g seconds", seconds)
}

// Round rounds v to the given number of decimal places.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
