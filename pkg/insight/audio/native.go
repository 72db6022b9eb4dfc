package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/gabriel-vasile/mimetype"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/riff"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
)

const (
	wavFormatPCM        = 1
	wavFormatIEEEFloat  = 3
	wavFormatExtensible = 0xFFFE
)

// NativeDecoder decodes WAV, MP3 and Ogg Vorbis in-process. It does not
// resample; the waveform keeps the container's sample rate.
type NativeDecoder struct{}

func NewNativeDecoder() *NativeDecoder {
	return &NativeDecoder{}
}

func (d *NativeDecoder) Name() string { return "native" }

func (d *NativeDecoder) Decode(ctx context.Context, data []byte) (*Waveform, error) {
	if len(data) == 0 {
		return nil, ErrEmptyInput
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mtype := mimetype.Detect(data)
	switch {
	case isMIME(mtype, "audio/wav"):
		return decodeWAV(data)
	case isMIME(mtype, "audio/mpeg"):
		return decodeMP3(data)
	case isMIME(mtype, "audio/ogg", "application/ogg"):
		return decodeOggVorbis(data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, mtype.String())
	}
}

// DetectFormat reports the sniffed MIME type of an upload, for logging.
func DetectFormat(data []byte) string {
	return mimetype.Detect(data).String()
}

func isMIME(m *mimetype.MIME, want ...string) bool {
	for ; m != nil; m = m.Parent() {
		for _, w := range want {
			if m.Is(w) {
				return true
			}
		}
	}
	return false
}

func decodeWAV(data []byte) (*Waveform, error) {
	layout, err := readWAVLayout(data)
	if err != nil {
		return nil, err
	}

	switch layout.format {
	case wavFormatPCM:
		return decodeIntWAV(data)
	case wavFormatIEEEFloat:
		return decodeFloatWAV(layout)
	default:
		return nil, fmt.Errorf("%w: WAV audio format %d", ErrUnsupportedFormat, layout.format)
	}
}

// wavLayout is the part of a WAV file the float path needs. format is the
// resolved format code, so an extensible file reports its subformat.
type wavLayout struct {
	format     uint16
	channels   int
	sampleRate int
	bitDepth   int
	data       []byte
}

// readWAVLayout walks the RIFF chunks once and keeps the fmt fields and the
// raw data chunk.
func readWAVLayout(data []byte) (*wavLayout, error) {
	p := riff.New(bytes.NewReader(data))
	if err := p.ParseHeaders(); err != nil {
		return nil, fmt.Errorf("reading RIFF header: %w", err)
	}
	if p.Format != riff.WavFormatID {
		return nil, fmt.Errorf("%w: RIFF form %q", ErrUnsupportedFormat, p.Format[:])
	}

	var layout wavLayout
	haveFmt := false
	for !haveFmt || layout.data == nil {
		ch, err := p.NextChunk()
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading RIFF chunk: %w", err)
		}

		switch ch.ID {
		case riff.FmtID:
			body := make([]byte, ch.Size)
			if _, err := io.ReadFull(ch, body); err != nil {
				return nil, fmt.Errorf("reading fmt chunk: %w", err)
			}
			if err := layout.parseFmt(body); err != nil {
				return nil, err
			}
			haveFmt = true
		case riff.DataFormatID:
			body, err := io.ReadAll(io.LimitReader(ch, int64(ch.Size)))
			if err != nil {
				return nil, fmt.Errorf("reading data chunk: %w", err)
			}
			layout.data = body
		default:
			ch.Drain()
		}
	}

	if !haveFmt {
		return nil, errors.New("invalid WAV file: missing fmt chunk")
	}
	if layout.data == nil {
		return nil, ErrNoSamples
	}
	return &layout, nil
}

func (l *wavLayout) parseFmt(body []byte) error {
	if len(body) < 16 {
		return fmt.Errorf("invalid WAV file: fmt chunk is %d bytes", len(body))
	}
	le := binary.LittleEndian
	l.format = le.Uint16(body[0:])
	l.channels = int(le.Uint16(body[2:]))
	l.sampleRate = int(le.Uint32(body[4:]))
	l.bitDepth = int(le.Uint16(body[14:]))

	// The extensible subformat GUID starts with the real format code.
	if l.format == wavFormatExtensible {
		if len(body) < 26 {
			return errors.New("invalid WAV file: extensible fmt chunk without subformat")
		}
		l.format = le.Uint16(body[24:])
	}
	return nil
}

func decodeIntWAV(data []byte) (*Waveform, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, errors.New("invalid WAV file")
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("reading PCM buffer: %w", err)
	}
	if buf == nil || buf.Format == nil {
		return nil, ErrNoSamples
	}

	channels := buf.Format.NumChannels
	interleaved := intBufferToFloat64(buf, int(dec.BitDepth))

	return &Waveform{
		Samples:    FoldToMono(interleaved, channels),
		SampleRate: buf.Format.SampleRate,
		Channels:   channels,
	}, nil
}

// decodeFloatWAV reads 32- or 64-bit IEEE float samples. A trailing partial
// frame is dropped.
func decodeFloatWAV(l *wavLayout) (*Waveform, error) {
	if l.channels < 1 || l.sampleRate <= 0 {
		return nil, fmt.Errorf("invalid WAV file: %d channels at %d Hz", l.channels, l.sampleRate)
	}

	width := l.bitDepth / 8
	if width != 4 && width != 8 {
		return nil, fmt.Errorf("%w: %d-bit float WAV", ErrUnsupportedFormat, l.bitDepth)
	}

	frames := len(l.data) / (width * l.channels)
	if frames == 0 {
		return nil, ErrNoSamples
	}

	le := binary.LittleEndian
	interleaved := make([]float64, frames*l.channels)
	for i := range interleaved {
		b := l.data[i*width:]
		if width == 4 {
			interleaved[i] = float64(math.Float32frombits(le.Uint32(b)))
		} else {
			interleaved[i] = math.Float64frombits(le.Uint64(b))
		}
	}

	return &Waveform{
		Samples:    FoldToMono(interleaved, l.channels),
		SampleRate: l.sampleRate,
		Channels:   l.channels,
	}, nil
}

// intBufferToFloat64 normalizes integer PCM to [-1, 1]. 8-bit WAV is unsigned.
func intBufferToFloat64(buf *goaudio.IntBuffer, bitDepth int) []float64 {
	out := make([]float64, len(buf.Data))
	if bitDepth == 8 {
		for i, v := range buf.Data {
			out[i] = float64(v-128) / 128.0
		}
		return out
	}

	if bitDepth <= 0 {
		bitDepth = 16
	}
	scale := 1.0 / float64(int64(1)<<uint(bitDepth-1))
	for i, v := range buf.Data {
		out[i] = float64(v) * scale
	}
	return out
}

// decodeMP3 always yields 16-bit little-endian stereo from go-mp3.
func decodeMP3(data []byte) (*Waveform, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("opening MP3 stream: %w", err)
	}

	pcm, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("decoding MP3 frames: %w", err)
	}

	const channels = 2
	const scale = 1.0 / 32768.0
	n := len(pcm) / 2
	interleaved := make([]float64, n)
	for i := 0; i < n; i++ {
		interleaved[i] = float64(int16(binary.LittleEndian.Uint16(pcm[2*i:]))) * scale
	}

	return &Waveform{
		Samples:    FoldToMono(interleaved, channels),
		SampleRate: dec.SampleRate(),
		Channels:   channels,
	}, nil
}

func decodeOggVorbis(data []byte) (*Waveform, error) {
	samples, format, err := oggvorbis.ReadAll(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding Ogg Vorbis: %w", err)
	}

	interleaved := make([]float64, len(samples))
	for i, s := range samples {
		interleaved[i] = float64(s)
	}

	return &Waveform{
		Samples:    FoldToMono(interleaved, format.Channels),
		SampleRate: format.SampleRate,
		Channels:   format.Channels,
	}, nil
}
