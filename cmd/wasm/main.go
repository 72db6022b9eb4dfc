//go:build js && wasm

package main

import (
	"fmt"
	"syscall/js"

	"github.com/himanishpuri/AudioInsight/pkg/insight"
	"github.com/himanishpuri/AudioInsight/pkg/insight/audio"
)

// Error codes returned to JavaScript
const (
	ErrorNone = iota
	ErrorInvalidArgs
	ErrorTooLong
	ErrorAnalysis
)

// analyzeSamples computes descriptors for decoded PCM from the browser.
// Arguments: audioArray, sampleRate, channels[, genre, daw].
// Returns: {error: number, data: object | string}
func analyzeSamples(this js.Value, args []js.Value) (out any) {
	defer func() {
		if r := recover(); r != nil {
			out = makeErrorResponse(ErrorAnalysis, insight.MsgServerError)
		}
	}()

	if len(args) < 3 {
		return makeErrorResponse(ErrorInvalidArgs, "Expected at least 3 arguments: audioArray, sampleRate, channels")
	}

	audioDataJS := args[0]
	sampleRateJS := args[1]
	channelsJS := args[2]

	if audioDataJS.Type() != js.TypeObject {
		return makeErrorResponse(ErrorInvalidArgs, "audioArray must be an Array or Float32Array")
	}
	if sampleRateJS.Type() != js.TypeNumber {
		return makeErrorResponse(ErrorInvalidArgs, "sampleRate must be a number")
	}
	if channelsJS.Type() != js.TypeNumber {
		return makeErrorResponse(ErrorInvalidArgs, "channels must be a number")
	}

	sampleRate := sampleRateJS.Int()
	channels := channelsJS.Int()
	if sampleRate <= 0 {
		return makeErrorResponse(ErrorInvalidArgs, fmt.Sprintf("Invalid sample rate: %d", sampleRate))
	}
	if channels < 1 {
		return makeErrorResponse(ErrorInvalidArgs, fmt.Sprintf("Invalid channel count: %d", channels))
	}

	length := audioDataJS.Length()
	if length == 0 {
		return makeErrorResponse(ErrorInvalidArgs, "audioArray is empty")
	}

	// Check the limit before copying five-plus minutes of samples.
	if seconds := float64(length/channels) / float64(sampleRate); seconds > insight.DefaultMaxDuration {
		f := &insight.Failure{Kind: insight.DurationExceeded, MaxDuration: insight.DefaultMaxDuration}
		return makeErrorResponse(ErrorTooLong, f.Message())
	}

	samples := make([]float64, length)
	for i := 0; i < length; i++ {
		val := audioDataJS.Index(i)
		if val.Type() != js.TypeNumber {
			return makeErrorResponse(ErrorInvalidArgs, fmt.Sprintf("audioArray element %d is not a number", i))
		}
		samples[i] = val.Float()
	}

	wf := &audio.Waveform{
		Samples:    audio.FoldToMono(samples, channels),
		SampleRate: sampleRate,
		Channels:   channels,
		Decoder:    "browser",
	}
	if len(wf.Samples) == 0 {
		return makeErrorResponse(ErrorInvalidArgs, "audioArray holds no complete frame")
	}

	res, err := insight.Describe(wf)
	if err != nil {
		console := js.Global().Get("console")
		if !console.IsUndefined() {
			console.Call("error", fmt.Sprintf("analysis failed: %v", err))
		}
		return makeErrorResponse(ErrorAnalysis, insight.MsgServerError)
	}
	res.Genre = optionalString(args, 3, "Unknown")
	res.DAW = optionalString(args, 4, "Unknown")

	data := js.Global().Get("Object").New()
	data.Set("duration_sec", res.DurationSec)
	data.Set("rms_level", res.RMSLevel)
	data.Set("tempo_bpm", res.TempoBPM)
	data.Set("spectral_centroid", res.SpectralCentroid)
	data.Set("genre", res.Genre)
	data.Set("daw", res.DAW)

	result := js.Global().Get("Object").New()
	result.Set("error", ErrorNone)
	result.Set("data", data)
	return result
}

func optionalString(args []js.Value, i int, fallback string) string {
	if len(args) <= i || args[i].Type() != js.TypeString {
		return fallback
	}
	return args[i].String()
}

func makeErrorResponse(errorCode int, message string) js.Value {
	result := js.Global().Get("Object").New()
	result.Set("error", errorCode)
	result.Set("data", message)
	return result
}

func main() {
	console := js.Global().Get("console")
	if !console.IsUndefined() {
		console.Call("log", "🔧 AudioInsight WASM module initializing...")
	}

	done := make(chan struct{})

	js.Global().Set("analyzeSamples", js.FuncOf(analyzeSamples))

	window := js.Global().Get("window")
	if !window.IsUndefined() {
		eventInit := js.Global().Get("Object").New()
		event := js.Global().Get("CustomEvent").New("wasmReady", eventInit)
		window.Call("dispatchEvent", event)
	} else if !console.IsUndefined() {
		console.Call("error", "❌ window object is undefined!")
	}

	if !console.IsUndefined() {
		console.Call("log", "✅ AudioInsight WASM module loaded and ready")
	}

	<-done
}
