package strategy

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rbright/scout/internal/audio"
	"github.com/rbright/scout/internal/chunker"
)

// fastQueueDepth bounds how many Fast chunks may be buffered ahead of the
// bounded worker pool before OnChunk itself blocks. Chunks arrive roughly
// every fast_chunk_seconds, far slower than the queue can drain in normal
// operation, so this is generous headroom rather than a tight budget.
const fastQueueDepth = 16

// RingBufferChunked implements spec §4.7.2: Fast chunks only, single model.
// Partial text is the in-order concatenation of completed chunk texts;
// final text is the same, available the moment the last chunk returns.
type RingBufferChunked struct {
	format     audio.NativeFormat
	transcribe TranscribeFunc
	wavPath    string
	modelName  string
	logger     *slog.Logger

	seq  *sequencer
	pool *workerPool

	mu        sync.Mutex
	onPartial func(string)
}

// NewRingBufferChunked constructs a Chunked strategy whose Fast-tier worker
// pool's lifetime is bound to ctx.
func NewRingBufferChunked(ctx context.Context, format audio.NativeFormat, transcribe TranscribeFunc, wavPath, modelName string, logger *slog.Logger) *RingBufferChunked {
	c := &RingBufferChunked{
		format:     format,
		transcribe: transcribe,
		wavPath:    wavPath,
		modelName:  modelName,
		logger:     logger,
		seq:        newSequencer(),
		pool:       newWorkerPool(ctx, maxWorkersPerTier, fastQueueDepth),
	}
	c.seq.setOnAdvance(func(ordered []string) {
		c.mu.Lock()
		cb := c.onPartial
		c.mu.Unlock()
		if cb != nil {
			cb(joinChunkTexts(ordered))
		}
	})
	return c
}

// OnChunk submits chunk's transcription to the bounded Fast worker pool and
// returns immediately. A misrouted Refine chunk is ignored — this strategy
// is only selected when no Refine model is configured.
func (c *RingBufferChunked) OnChunk(chunk chunker.Chunk, raw []byte) {
	if chunk.Tier != chunker.TierFast {
		return
	}
	index := chunk.Index
	c.pool.submit(func(context.Context) {
		samples, err := convertChunk(raw, c.format)
		if err != nil {
			c.logWarn(index, err)
			c.seq.complete(index, gapMarker)
			return
		}
		result, err := c.transcribe(samples)
		if err != nil {
			c.logWarn(index, err)
			c.seq.complete(index, gapMarker)
			return
		}
		c.seq.complete(index, result.Text)
	})
}

// OnPartial registers callback to be invoked with the current ordered
// concatenation each time it advances.
func (c *RingBufferChunked) OnPartial(callback func(string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onPartial = callback
}

// Finalize drains the Fast-tier pool and returns the in-order concatenation
// as the final transcript.
func (c *RingBufferChunked) Finalize(_ context.Context) (Transcript, error) {
	start := time.Now()
	c.pool.drain()

	texts := c.seq.snapshot()
	return Transcript{
		Text:       joinChunkTexts(texts),
		DurationMs: time.Since(start).Milliseconds(),
		Model:      c.modelName,
		ChunkTexts: texts,
		WAVPath:    c.wavPath,
	}, nil
}

func (c *RingBufferChunked) logWarn(index int, err error) {
	if c.logger == nil {
		return
	}
	c.logger.Warn("chunk transcription failed", "chunk_index", index, "error", err.Error())
}
