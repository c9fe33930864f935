package audio

import "fmt"

// SampleFormat identifies the on-the-wire sample encoding of a native
// capture stream.
type SampleFormat string

const (
	SampleFormatI16 SampleFormat = "i16"
	SampleFormatI24 SampleFormat = "i24"
	SampleFormatF32 SampleFormat = "f32"
)

// BytesPerSample returns the storage width of one interleaved sample.
func (f SampleFormat) BytesPerSample() int {
	switch f {
	case SampleFormatI16:
		return 2
	case SampleFormatI24:
		return 3
	case SampleFormatF32:
		return 4
	default:
		return 0
	}
}

// NativeFormat is the sample rate, channel count, and sample encoding
// negotiated with an input device at capture start. It is fixed for the
// lifetime of a recording session.
type NativeFormat struct {
	SampleRate int
	Channels   int
	SampleFmt  SampleFormat
}

// BytesPerFrame returns the interleaved frame width (all channels) in bytes.
func (f NativeFormat) BytesPerFrame() int {
	return f.Channels * f.SampleFmt.BytesPerSample()
}

// Validate reports whether the format is self-consistent.
func (f NativeFormat) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("native format: sample rate must be positive, got %d", f.SampleRate)
	}
	if f.Channels <= 0 || f.Channels > 8 {
		return fmt.Errorf("native format: channels must be in [1,8], got %d", f.Channels)
	}
	if f.SampleFmt.BytesPerSample() == 0 {
		return fmt.Errorf("native format: unsupported sample format %q", f.SampleFmt)
	}
	return nil
}

func (f NativeFormat) String() string {
	return fmt.Sprintf("%dHz/%dch/%s", f.SampleRate, f.Channels, f.SampleFmt)
}
