package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"path/filepath"

	"github.com/eligwz/spectrogram"

	"github.com/himanishpuri/AudioInsight/pkg/insight/audio"
	"github.com/himanishpuri/AudioInsight/pkg/utils"
)

const (
	defaultSpecWidth  = 2048
	defaultSpecHeight = 512
)

// renderFile decodes data with the configured decoders and writes its
// spectrogram as a PNG.
func renderFile(ctx context.Context, opts globalOptions, data []byte, outPath string, width, height int) error {
	wf, err := audio.NewChain(opts.decoders()...).Decode(ctx, data)
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return renderSpectrogram(wf, outPath, width, height)
}

func renderSpectrogram(wf *audio.Waveform, outPath string, width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid image size %dx%d", width, height)
	}
	if wf == nil || len(wf.Samples) == 0 {
		return errors.New("no samples to render")
	}
	if err := utils.MakeDir(filepath.Dir(outPath)); err != nil {
		return err
	}

	img := spectrogram.NewImage128(image.Rect(0, 0, width, height))
	black := spectrogram.ParseColor("000000")
	draw.Draw(img, img.Bounds(), image.NewUniform(black), image.Point{}, draw.Src)

	// Hamming window, FFT, linear magnitude.
	spectrogram.Drawfft(
		img,
		wf.Samples,
		uint32(wf.SampleRate),
		uint32(height),
		false,
		false,
		true,
		false,
	)

	if err := spectrogram.SavePng(img, outPath); err != nil {
		return fmt.Errorf("save %s: %w", outPath, err)
	}
	return nil
}
