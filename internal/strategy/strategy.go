// Package strategy implements the transcription strategy (C7): three
// polymorphic implementations — Classic, RingBufferChunked, Progressive —
// of one Strategy interface, selected per spec §4.7.4's duration/model-count
// table. Fast-tier work is bounded-concurrent and its partial text is
// delivered strictly in chunk order; Progressive's Refine-tier work runs
// concurrently and is cancelled outright (not awaited) when the session
// stops, per spec §4.7.3's critical latency decision.
package strategy

import (
	"context"
	"strings"
	"sync"

	"github.com/rbright/scout/internal/audio"
	"github.com/rbright/scout/internal/audioconv"
	"github.com/rbright/scout/internal/chunker"
	"github.com/rbright/scout/internal/transcriber"
)

// maxWorkersPerTier bounds concurrent in-flight transcriptions per tier, per
// spec §5 ("N strategy-worker tasks (bounded <= 2 per tier)").
const maxWorkersPerTier = 2

// gapMarker replaces a chunk's contribution when its transcription failed,
// per spec §7 ("final text marks the gap as …").
const gapMarker = "…"

// TranscribeFunc runs one model call over mono 16 kHz float32 samples.
type TranscribeFunc func(samples []float32) (transcriber.Result, error)

// Transcript is the Strategy's terminal output.
type Transcript struct {
	Text       string
	DurationMs int64
	Model      string
	ChunkTexts []string
	WAVPath    string
}

// Strategy is the polymorphic interface the Session/Workflow drives. OnChunk
// returns immediately; transcription runs on an internal worker. OnPartial
// registers a callback invoked each time Fast-tier text advances. Finalize
// is called once, on stop, and returns the best assembled transcript.
type Strategy interface {
	OnChunk(chunk chunker.Chunk, raw []byte)
	OnPartial(callback func(text string))
	Finalize(ctx context.Context) (Transcript, error)
}

// sequencer assembles a tier's chunk results into a single ordered string,
// buffering out-of-order completions until the contiguous prefix is ready.
// This is what gives Fast-tier partials their "strictly increasing chunk
// order" guarantee even though transcription runs on bounded worker pools.
type sequencer struct {
	mu        sync.Mutex
	next      int
	pending   map[int]string
	ordered   []string
	onAdvance func([]string)
}

func newSequencer() *sequencer {
	return &sequencer{pending: make(map[int]string)}
}

// complete records index's text and drains any now-contiguous prefix,
// invoking onAdvance with the full ordered slice so far.
func (s *sequencer) complete(index int, text string) {
	s.mu.Lock()
	s.pending[index] = text
	for {
		t, ok := s.pending[s.next]
		if !ok {
			break
		}
		s.ordered = append(s.ordered, t)
		delete(s.pending, s.next)
		s.next++
	}
	snapshot := append([]string(nil), s.ordered...)
	cb := s.onAdvance
	s.mu.Unlock()

	if cb != nil {
		cb(snapshot)
	}
}

// snapshot returns the contiguous ordered texts assembled so far.
func (s *sequencer) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ordered...)
}

// setOnAdvance installs the callback invoked after each complete().
func (s *sequencer) setOnAdvance(cb func([]string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onAdvance = cb
}

// convertChunk runs the C1 Whisper-input pipeline over one raw native-format
// chunk, shared by all three strategies.
func convertChunk(raw []byte, format audio.NativeFormat) ([]float32, error) {
	return audioconv.ForWhisper(raw, format)
}

// joinChunkTexts concatenates per-chunk texts with a single space between
// non-empty entries, matching the teacher's transcript.Assemble join style.
func joinChunkTexts(texts []string) string {
	var sb strings.Builder
	for _, t := range texts {
		if t == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(t)
	}
	return sb.String()
}
