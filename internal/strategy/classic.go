package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/rbright/scout/internal/audio"
	"github.com/rbright/scout/internal/chunker"
)

// Classic implements spec §4.7.1: no chunking. The entire recording is
// converted and transcribed in a single call on Finalize. Used when total
// duration is under the chunking threshold, or when chunking.force_strategy
// selects it.
type Classic struct {
	format     audio.NativeFormat
	transcribe TranscribeFunc
	source     func() ([]byte, error)
	wavPath    string
	modelName  string
}

// NewClassic constructs a Classic strategy. source supplies the full raw
// native-format PCM for the session (or file) at Finalize time — a live
// session passes a closure reading the ring buffer's full retained range; a
// file-transcription job passes a closure reading the WAV's data chunk.
func NewClassic(format audio.NativeFormat, transcribe TranscribeFunc, source func() ([]byte, error), wavPath, modelName string) *Classic {
	return &Classic{format: format, transcribe: transcribe, source: source, wavPath: wavPath, modelName: modelName}
}

// OnChunk is a no-op: Classic sessions are never wired to a live scheduler.
func (c *Classic) OnChunk(chunker.Chunk, []byte) {}

// OnPartial is a no-op: Classic produces only a final transcript.
func (c *Classic) OnPartial(func(string)) {}

// Finalize reads, converts, and transcribes the full recording in one call.
func (c *Classic) Finalize(_ context.Context) (Transcript, error) {
	start := time.Now()

	raw, err := c.source()
	if err != nil {
		return Transcript{}, fmt.Errorf("strategy: classic: read source: %w", err)
	}

	samples, err := convertChunk(raw, c.format)
	if err != nil {
		return Transcript{}, fmt.Errorf("strategy: classic: convert: %w", err)
	}

	result, err := c.transcribe(samples)
	if err != nil {
		return Transcript{}, fmt.Errorf("strategy: classic: transcribe: %w", err)
	}

	return Transcript{
		Text:       result.Text,
		DurationMs: time.Since(start).Milliseconds(),
		Model:      c.modelName,
		ChunkTexts: []string{result.Text},
		WAVPath:    c.wavPath,
	}, nil
}
