// Package audioconv implements the Whisper-input conversion pipeline:
// downmix to mono, linear resample to 16 kHz, and integer-to-float casting.
// These are pure functions applied only at transcription time against
// extracted chunks; capture itself preserves native format verbatim.
package audioconv

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/rbright/scout/internal/audio"
)

// ErrChannelsZero is returned when a conversion input reports zero channels.
var ErrChannelsZero = errors.New("audioconv: channels must be greater than zero")

// ErrEmptyInput is returned when a conversion input has zero samples.
var ErrEmptyInput = errors.New("audioconv: input has zero samples")

const whisperSampleRate = 16000

// ToF32Mono decodes interleaved native-format bytes, downmixes to mono, and
// casts to float32 in [-1, 1]. It does not resample.
func ToF32Mono(raw []byte, format audio.NativeFormat) ([]float32, error) {
	if format.Channels <= 0 {
		return nil, ErrChannelsZero
	}
	frameBytes := format.BytesPerFrame()
	if frameBytes == 0 || len(raw) < frameBytes {
		return nil, ErrEmptyInput
	}

	frames := len(raw) / frameBytes
	mono := make([]float32, frames)

	readSample := func(off int) float32 {
		switch format.SampleFmt {
		case audio.SampleFormatI16:
			v := int16(binary.LittleEndian.Uint16(raw[off : off+2]))
			return float32(v) / 32768.0
		case audio.SampleFormatI24:
			b0, b1, b2 := raw[off], raw[off+1], raw[off+2]
			v := int32(b0) | int32(b1)<<8 | int32(b2)<<16
			if v&0x800000 != 0 {
				v |= ^int32(0xFFFFFF)
			}
			return float32(v) / 8388608.0
		case audio.SampleFormatF32:
			bits := binary.LittleEndian.Uint32(raw[off : off+4])
			return math.Float32frombits(bits)
		default:
			return 0
		}
	}

	width := format.SampleFmt.BytesPerSample()
	for i := 0; i < frames; i++ {
		base := i * frameBytes
		var sum float32
		for ch := 0; ch < format.Channels; ch++ {
			sum += readSample(base + ch*width)
		}
		mono[i] = sum / float32(format.Channels)
	}
	return mono, nil
}

// Resample16k linearly resamples mono float32 samples from srcRate to
// 16000 Hz. Output length is floor(len(input) * 16000 / srcRate); each
// output index i maps to src = i*srcRate/16000, linearly interpolated
// between floor(src) and ceil(src), clamped at the input's endpoint.
func Resample16k(input []float32, srcRate int) ([]float32, error) {
	if len(input) == 0 {
		return nil, ErrEmptyInput
	}
	if srcRate == whisperSampleRate {
		out := make([]float32, len(input))
		copy(out, input)
		return out, nil
	}

	outLen := len(input) * whisperSampleRate / srcRate
	out := make([]float32, outLen)
	last := len(input) - 1

	for i := 0; i < outLen; i++ {
		src := float64(i) * float64(srcRate) / float64(whisperSampleRate)
		lo := int(math.Floor(src))
		hi := lo + 1
		if lo > last {
			lo = last
		}
		if hi > last {
			hi = last
		}
		frac := float32(src - math.Floor(src))
		out[i] = input[lo] + frac*(input[hi]-input[lo])
	}
	return out, nil
}

// ForWhisper runs the full pipeline: downmix, resample to 16 kHz, and cast
// to float32 in [-1, 1]. This is the only conversion path that touches
// capture audio; it runs exclusively at transcription time.
func ForWhisper(raw []byte, format audio.NativeFormat) ([]float32, error) {
	mono, err := ToF32Mono(raw, format)
	if err != nil {
		return nil, err
	}
	return Resample16k(mono, format.SampleRate)
}
