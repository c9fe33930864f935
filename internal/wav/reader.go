package wav

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/rbright/scout/internal/audio"
)

// Reader provides random-access, absolute-sample-indexed reads over an
// on-disk WAV file, used by transcribe_file and by the Classic/Chunked
// strategies when operating on a finished recording rather than a live ring
// buffer.
type Reader struct {
	file       *os.File
	format     audio.NativeFormat
	dataOffset int64
	dataBytes  int64
}

// OpenReader parses path's RIFF/WAVE header and returns a Reader positioned
// at the start of the data chunk. Only uncompressed PCM-int (format tag 1)
// and IEEE-float (format tag 3) files are supported, matching what Writer
// ever produces.
func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("wav: open %s: %w", path, err)
	}

	header := make([]byte, headerSize)
	if _, err := f.ReadAt(header, 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("wav: read header %s: %w", path, err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		f.Close()
		return nil, fmt.Errorf("wav: %s is not a RIFF/WAVE file", path)
	}
	if string(header[12:16]) != "fmt " {
		f.Close()
		return nil, fmt.Errorf("wav: %s: expected fmt chunk immediately after RIFF header", path)
	}

	formatTag := binary.LittleEndian.Uint16(header[20:22])
	channels := int(binary.LittleEndian.Uint16(header[22:24]))
	sampleRate := int(binary.LittleEndian.Uint32(header[24:28]))
	bitsPerSample := binary.LittleEndian.Uint16(header[34:36])

	sampleFmt, err := sampleFormatFor(formatTag, bitsPerSample)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("wav: %s: %w", path, err)
	}
	if string(header[36:40]) != "data" {
		f.Close()
		return nil, fmt.Errorf("wav: %s: expected data chunk immediately after fmt chunk", path)
	}
	dataBytes := int64(binary.LittleEndian.Uint32(header[40:44]))

	return &Reader{
		file:       f,
		format:     audio.NativeFormat{SampleRate: sampleRate, Channels: channels, SampleFmt: sampleFmt},
		dataOffset: headerSize,
		dataBytes:  dataBytes,
	}, nil
}

func sampleFormatFor(formatTag uint16, bitsPerSample uint16) (audio.SampleFormat, error) {
	switch {
	case formatTag == formatTagPCM && bitsPerSample == 16:
		return audio.SampleFormatI16, nil
	case formatTag == formatTagPCM && bitsPerSample == 24:
		return audio.SampleFormatI24, nil
	case formatTag == formatTagFloat && bitsPerSample == 32:
		return audio.SampleFormatF32, nil
	default:
		return "", fmt.Errorf("unsupported format tag %d / %d-bit", formatTag, bitsPerSample)
	}
}

// Format returns the file's native sample format.
func (r *Reader) Format() audio.NativeFormat {
	return r.format
}

// TotalSamples returns the interleaved sample count (frames * channels) in
// the data chunk.
func (r *Reader) TotalSamples() int64 {
	bps := int64(r.format.SampleFmt.BytesPerSample())
	if bps == 0 {
		return 0
	}
	return r.dataBytes / bps
}

// ReadAll returns the entire data chunk's raw interleaved bytes.
func (r *Reader) ReadAll() ([]byte, error) {
	return r.ReadRange(0, r.TotalSamples())
}

// ReadRange returns the raw interleaved bytes for the absolute sample range
// [start, end). end is clamped to TotalSamples.
func (r *Reader) ReadRange(start, end int64) ([]byte, error) {
	total := r.TotalSamples()
	if end > total {
		end = total
	}
	if start < 0 || start > end {
		return nil, fmt.Errorf("wav: read range [%d,%d) invalid for %d total samples", start, end, total)
	}

	bps := int64(r.format.SampleFmt.BytesPerSample())
	buf := make([]byte, (end-start)*bps)
	if len(buf) == 0 {
		return buf, nil
	}
	if _, err := r.file.ReadAt(buf, r.dataOffset+start*bps); err != nil {
		return nil, fmt.Errorf("wav: read range: %w", err)
	}
	return buf, nil
}

// Close releases the underlying file handle.
func (r *Reader) Close() error {
	return r.file.Close()
}
