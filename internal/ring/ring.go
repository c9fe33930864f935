// Package ring implements the bounded single-producer/single-consumer
// retention buffer: the last N seconds of captured audio, addressed by
// absolute (cumulative, never-rewound) sample index. One writer goroutine
// calls Append; one scheduler goroutine calls Extract concurrently. The
// lock is held only across pointer/bounds bookkeeping and the bulk copy of
// a requested window, matching the "lock held only for pointer updates"
// discipline the spec permits instead of a full seqlock.
package ring

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rbright/scout/internal/audio"
	"github.com/rbright/scout/internal/wav"
)

// ErrOutOfRange is returned when a requested window has already aged out of
// the retention window, or has not been written yet.
var ErrOutOfRange = errors.New("ring: requested range is out of retention window")

// ErrWouldBlock is returned by Extract when the writer holds the lock; the
// scheduler is expected to retry on its next poll tick.
var ErrWouldBlock = errors.New("ring: buffer lock contended")

// MinRetentionSeconds is the floor for configured ring buffer retention.
const MinRetentionSeconds = 30

// DefaultRetentionSeconds is the spec default of five minutes.
const DefaultRetentionSeconds = 300

// Buffer is a bounded circular store of samples in a NativeFormat,
// addressed by absolute scalar-sample index (channel-interleaved, so a
// stereo frame advances the index by two).
type Buffer struct {
	format audio.NativeFormat

	mu             sync.Mutex
	data           []byte // circular store, len = capacitySamples * sampleWidth
	capacitySamples int64
	writtenSamples int64 // cumulative, monotonic, never rewound
	flushedSamples int64 // cursor for FlushTo
}

// New allocates a ring buffer sized to retentionSeconds of audio at format's
// rate and channel count, per spec: capacity_samples >= sample_rate *
// channels * retentionSeconds.
func New(format audio.NativeFormat, retentionSeconds int) (*Buffer, error) {
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("ring: %w", err)
	}
	if retentionSeconds < MinRetentionSeconds {
		retentionSeconds = MinRetentionSeconds
	}
	capacitySamples := int64(format.SampleRate) * int64(format.Channels) * int64(retentionSeconds)
	width := format.SampleFmt.BytesPerSample()

	return &Buffer{
		format:          format,
		data:            make([]byte, capacitySamples*int64(width)),
		capacitySamples: capacitySamples,
	}, nil
}

// Format returns the buffer's native format.
func (b *Buffer) Format() audio.NativeFormat {
	return b.format
}

// Written returns the cumulative number of samples appended so far.
func (b *Buffer) Written() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.writtenSamples
}

// Append writes raw interleaved samples, dropping the oldest samples on
// overflow. It is the sole producer-side entry point and must be called
// from exactly one goroutine.
func (b *Buffer) Append(raw []byte) {
	width := b.format.SampleFmt.BytesPerSample()
	if width == 0 || len(raw)%width != 0 {
		return
	}
	n := int64(len(raw) / width)
	if n == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	cap64 := b.capacitySamples
	if n >= cap64 {
		// The incoming batch alone exceeds capacity; keep only its tail.
		// Advance past the dropped head first so the tail lands at the slots
		// of its own absolute sample indices.
		tailStart := (n - cap64) * int64(width)
		b.writtenSamples += n - cap64
		b.writeCircular(raw[tailStart:])
		b.writtenSamples += cap64
		return
	}

	b.writeCircular(raw)
	b.writtenSamples += n
}

// writeCircular copies raw into the circular store starting at the current
// write cursor. Must be called with mu held.
func (b *Buffer) writeCircular(raw []byte) {
	width := b.format.SampleFmt.BytesPerSample()
	cursor := (b.writtenSamples % b.capacitySamples) * int64(width)
	total := int64(len(raw))
	bufLen := int64(len(b.data))

	first := bufLen - cursor
	if first >= total {
		copy(b.data[cursor:cursor+total], raw)
		return
	}
	copy(b.data[cursor:], raw[:first])
	copy(b.data[0:], raw[first:])
}

// Extract returns the raw bytes for the absolute sample range [start, end),
// restricted to what is still retained. It returns ErrOutOfRange if the
// range has entirely aged out or has not yet been written, and
// ErrWouldBlock if the writer currently holds the lock.
func (b *Buffer) Extract(start, end int64) ([]byte, error) {
	if !b.mu.TryLock() {
		return nil, ErrWouldBlock
	}
	defer b.mu.Unlock()

	if end <= start {
		return nil, fmt.Errorf("%w: end %d <= start %d", ErrOutOfRange, end, start)
	}
	oldestRetained := b.writtenSamples - b.capacitySamples
	if oldestRetained < 0 {
		oldestRetained = 0
	}
	if end <= oldestRetained || end > b.writtenSamples {
		return nil, fmt.Errorf("%w: [%d,%d) vs retained [%d,%d)", ErrOutOfRange, start, end, oldestRetained, b.writtenSamples)
	}
	if start < oldestRetained {
		start = oldestRetained
	}

	width := b.format.SampleFmt.BytesPerSample()
	count := end - start
	out := make([]byte, count*int64(width))

	cursor := (start % b.capacitySamples) * int64(width)
	bufLen := int64(len(b.data))
	total := count * int64(width)

	first := bufLen - cursor
	if first >= total {
		copy(out, b.data[cursor:cursor+total])
	} else {
		copy(out, b.data[cursor:])
		copy(out[first:], b.data[0:total-first])
	}
	return out, nil
}

// FlushTo appends all samples written since the last FlushTo call to w.
func (b *Buffer) FlushTo(w *wav.Writer) error {
	b.mu.Lock()
	from := b.flushedSamples
	to := b.writtenSamples
	b.flushedSamples = to
	b.mu.Unlock()

	if to <= from {
		return nil
	}
	oldestRetained := to - b.capacitySamples
	if oldestRetained < 0 {
		oldestRetained = 0
	}
	if from < oldestRetained {
		from = oldestRetained
	}
	if from >= to {
		return nil
	}

	raw, err := b.Extract(from, to)
	if err != nil {
		return fmt.Errorf("ring: flush: %w", err)
	}
	return w.Append(raw)
}
