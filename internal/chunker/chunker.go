// Package chunker implements the chunk scheduler (C6): it polls a ring
// buffer's cumulative write cursor on a fixed cadence and emits Fast- and
// Refine-tier chunks as absolute sample ranges become available, tracking
// each tier's cursor independently.
package chunker

import (
	"context"
	"time"
)

// Tier identifies which transcription strategy tier a Chunk belongs to.
type Tier string

const (
	TierFast   Tier = "fast"
	TierRefine Tier = "refine"
)

// Chunk is one contiguous, absolute-indexed sample range extracted from the
// ring buffer for a single transcription call.
type Chunk struct {
	SessionID   string
	Index       int
	StartSample int64
	EndSample   int64
	Tier        Tier
}

// Source is the subset of ring.Buffer the scheduler depends on.
type Source interface {
	Written() int64
}

// DefaultPollInterval is the spec's default poll cadence.
const DefaultPollInterval = 100 * time.Millisecond

// Config sizes the two tiers' chunk windows, in samples (already scaled by
// channel count — one "sample" here is one interleaved scalar, matching
// ring.Buffer's indexing).
type Config struct {
	SessionID          string
	FastChunkSamples   int64
	RefineChunkSamples int64
	PollInterval       time.Duration
}

// Scheduler owns the two independent monotonic cursors (lastFast,
// lastRefine) described in spec §4.6. It polls Source.Written() on a ticker
// and emits chunks on Chunks() in strictly increasing start-sample order
// within a tier; no ordering is guaranteed across tiers.
type Scheduler struct {
	cfg    Config
	source Source

	fastIndex   int
	refineIndex int
	lastFast    int64
	lastRefine  int64

	chunks chan Chunk
}

// New constructs a Scheduler over source with cfg's chunk sizes. Zero or
// negative chunk sizes disable that tier entirely (used for single-model
// Ring-Buffer-Chunked sessions, which only ever emit Fast chunks).
func New(source Source, cfg Config) *Scheduler {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &Scheduler{
		cfg:    cfg,
		source: source,
		chunks: make(chan Chunk, 8),
	}
}

// Chunks returns the channel chunks are emitted on. The scheduler closes it
// when Run returns.
func (s *Scheduler) Chunks() <-chan Chunk {
	return s.chunks
}

// Run polls Source until ctx is cancelled, emitting chunks as they become
// available. On cancellation it flushes one trailing Fast chunk covering
// any remaining unprocessed samples (spec §4.6 step 3), then closes Chunks.
func (s *Scheduler) Run(ctx context.Context) {
	defer close(s.chunks)

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.flushTrailing()
			return
		case <-ticker.C:
			s.poll()
		}
	}
}

// poll emits any chunks now available for either tier. It is also exported
// indirectly via Run but kept separate so tests can drive it deterministically
// without a real ticker.
func (s *Scheduler) poll() {
	written := s.source.Written()

	if s.cfg.FastChunkSamples > 0 {
		for written-s.lastFast >= s.cfg.FastChunkSamples {
			s.emit(TierFast, s.lastFast, s.lastFast+s.cfg.FastChunkSamples, &s.fastIndex)
			s.lastFast += s.cfg.FastChunkSamples
		}
	}

	if s.cfg.RefineChunkSamples > 0 {
		for written-s.lastRefine >= s.cfg.RefineChunkSamples {
			s.emit(TierRefine, s.lastRefine, s.lastRefine+s.cfg.RefineChunkSamples, &s.refineIndex)
			s.lastRefine += s.cfg.RefineChunkSamples
		}
	}
}

// Poll is the exported, synchronous form of poll used by callers (e.g. the
// file-transcription path for chunking strategies, or tests) driving the scheduler without
// a background Run goroutine.
func (s *Scheduler) Poll() {
	s.poll()
}

// flushTrailing emits a final partial Fast chunk covering any samples
// written since the last Fast chunk boundary, per spec §4.6 step 3.
func (s *Scheduler) flushTrailing() {
	written := s.source.Written()
	if written > s.lastFast {
		s.emit(TierFast, s.lastFast, written, &s.fastIndex)
		s.lastFast = written
	}
}

// FlushTrailing is the exported form used by callers finalizing outside of
// Run's own ctx-cancellation path (e.g. when stop is driven synchronously).
func (s *Scheduler) FlushTrailing() {
	s.flushTrailing()
}

func (s *Scheduler) emit(tier Tier, start, end int64, index *int) {
	chunk := Chunk{
		SessionID:   s.cfg.SessionID,
		Index:       *index,
		StartSample: start,
		EndSample:   end,
		Tier:        tier,
	}
	*index++
	s.chunks <- chunk
}
