// Package wav streams captured audio to a RIFF/WAVE file in the device's
// native format. A header with placeholder sizes is reserved on Open;
// Append writes interleaved native-format samples as they arrive; Close
// patches the RIFF and data chunk sizes so the file is valid without ever
// buffering the whole recording in memory.
package wav

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/rbright/scout/internal/audio"
)

const headerSize = 44

// formatTagPCM and formatTagFloat are the WAVE fmt chunk's wFormatTag values.
const (
	formatTagPCM   = 1
	formatTagFloat = 3
)

// Writer appends native-format frames to a file and finalizes a valid WAV
// header on Close. It is owned exclusively by one writer goroutine per
// session; no other code may touch the file while it is open.
type Writer struct {
	file           *os.File
	format         audio.NativeFormat
	samplesWritten int64
}

// Open creates path, reserves a placeholder RIFF/WAVE header, and returns a
// Writer ready to accept Append calls.
func Open(path string, format audio.NativeFormat) (*Writer, error) {
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("wav: open %s: %w", path, err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("wav: create %s: %w", path, err)
	}

	w := &Writer{file: f, format: format}
	if err := w.writeHeader(0); err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	return w, nil
}

// Append writes raw interleaved samples in the writer's native format.
func (w *Writer) Append(raw []byte) error {
	frameBytes := w.format.BytesPerFrame()
	if frameBytes == 0 || len(raw)%frameBytes != 0 {
		return fmt.Errorf("wav: append: %d bytes is not a multiple of frame size %d", len(raw), frameBytes)
	}
	if _, err := w.file.Write(raw); err != nil {
		return fmt.Errorf("wav: append: %w", err)
	}
	w.samplesWritten += int64(len(raw) / w.format.SampleFmt.BytesPerSample())
	return nil
}

// SamplesWritten reports the cumulative per-channel-interleaved sample
// count appended so far (i.e. frames * channels).
func (w *Writer) SamplesWritten() int64 {
	return w.samplesWritten
}

// Close patches the RIFF and data chunk sizes and closes the file. Close is
// idempotent; calling it more than once returns nil after the first call.
func (w *Writer) Close() error {
	if w.file == nil {
		return nil
	}
	dataBytes := w.samplesWritten * int64(w.format.SampleFmt.BytesPerSample())
	if err := w.writeHeader(dataBytes); err != nil {
		w.file.Close()
		w.file = nil
		return err
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// Abort closes and deletes the file without finalizing a valid header, for
// the cancellation path where no transcript is produced.
func (w *Writer) Abort(path string) error {
	if w.file != nil {
		w.file.Close()
		w.file = nil
	}
	return os.Remove(path)
}

func (w *Writer) writeHeader(dataBytes int64) error {
	formatTag := uint16(formatTagPCM)
	if w.format.SampleFmt == audio.SampleFormatF32 {
		formatTag = formatTagFloat
	}
	bitsPerSample := uint16(w.format.SampleFmt.BytesPerSample() * 8)
	byteRate := uint32(w.format.SampleRate * w.format.BytesPerFrame())
	blockAlign := uint16(w.format.BytesPerFrame())

	header := make([]byte, headerSize)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+dataBytes))
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], formatTag)
	binary.LittleEndian.PutUint16(header[22:24], uint16(w.format.Channels))
	binary.LittleEndian.PutUint32(header[24:28], uint32(w.format.SampleRate))
	binary.LittleEndian.PutUint32(header[28:32], byteRate)
	binary.LittleEndian.PutUint16(header[32:34], blockAlign)
	binary.LittleEndian.PutUint16(header[34:36], bitsPerSample)
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(dataBytes))

	if _, err := w.file.WriteAt(header, 0); err != nil {
		return fmt.Errorf("wav: write header: %w", err)
	}
	return nil
}
