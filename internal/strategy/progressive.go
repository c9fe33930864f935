package strategy

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rbright/scout/internal/audio"
	"github.com/rbright/scout/internal/chunker"
)

const (
	fastTierQueueDepth   = 16
	refineTierQueueDepth = 8
)

type sampleRange struct {
	start int64
	end   int64
}

func (r sampleRange) overlaps(o sampleRange) bool {
	lo := r.start
	if o.start > lo {
		lo = o.start
	}
	hi := r.end
	if o.end < hi {
		hi = o.end
	}
	return lo < hi
}

type refineResult struct {
	index int
	rng   sampleRange
	text  string
}

// Progressive implements spec §4.7.3: Fast and Refine chunks transcribed
// concurrently by two distinct models. Partial text is always the Fast-tier
// concatenation. On Finalize, the Refine pool is cancelled outright (pending
// work discarded, never awaited) and only Refine chunks that had already
// completed are candidates for the merge rule.
type Progressive struct {
	format         audio.NativeFormat
	transcribeFast TranscribeFunc
	transcribeRef  TranscribeFunc
	wavPath        string
	fastModel      string
	refineModel    string
	mergeRefine    bool
	logger         *slog.Logger

	fastSeq  *sequencer
	fastPool *workerPool

	refinePool *workerPool

	mu         sync.Mutex
	onPartial  func(string)
	fastRanges map[int]sampleRange
	refineDone []refineResult
}

// NewProgressive constructs a Progressive strategy. transcribeFast and
// transcribeRef run the Fast-tier and Refine-tier models respectively; both
// pools' lifetimes are bound to ctx. mergeRefine is config's
// chunking.merge_refine (spec §9 Open Question 1): when false, Finalize
// always returns the Fast-tier text and completed Refine chunks are
// discarded rather than merged.
func NewProgressive(ctx context.Context, format audio.NativeFormat, transcribeFast, transcribeRef TranscribeFunc, wavPath, fastModel, refineModel string, mergeRefine bool, logger *slog.Logger) *Progressive {
	p := &Progressive{
		format:         format,
		transcribeFast: transcribeFast,
		transcribeRef:  transcribeRef,
		wavPath:        wavPath,
		fastModel:      fastModel,
		refineModel:    refineModel,
		mergeRefine:    mergeRefine,
		logger:         logger,
		fastSeq:        newSequencer(),
		fastPool:       newWorkerPool(ctx, maxWorkersPerTier, fastTierQueueDepth),
		refinePool:     newWorkerPool(ctx, maxWorkersPerTier, refineTierQueueDepth),
		fastRanges:     make(map[int]sampleRange),
	}
	p.fastSeq.setOnAdvance(func(ordered []string) {
		p.mu.Lock()
		cb := p.onPartial
		p.mu.Unlock()
		if cb != nil {
			cb(joinChunkTexts(ordered))
		}
	})
	return p
}

// OnChunk records the chunk's sample range synchronously (before dispatch,
// to avoid a race with Finalize's overlap computation) and submits its
// transcription to the appropriate tier's worker pool.
func (p *Progressive) OnChunk(chunk chunker.Chunk, raw []byte) {
	rng := sampleRange{start: chunk.StartSample, end: chunk.EndSample}
	index := chunk.Index

	switch chunk.Tier {
	case chunker.TierFast:
		p.mu.Lock()
		p.fastRanges[index] = rng
		p.mu.Unlock()

		p.fastPool.submit(func(context.Context) {
			text := p.runModel(p.transcribeFast, raw, index, "fast")
			p.fastSeq.complete(index, text)
		})
	case chunker.TierRefine:
		p.refinePool.submit(func(context.Context) {
			text := p.runModel(p.transcribeRef, raw, index, "refine")
			p.mu.Lock()
			p.refineDone = append(p.refineDone, refineResult{index: index, rng: rng, text: text})
			p.mu.Unlock()
		})
	}
}

func (p *Progressive) runModel(transcribe TranscribeFunc, raw []byte, index int, tier string) string {
	samples, err := convertChunk(raw, p.format)
	if err != nil {
		p.logWarn(tier, index, err)
		return gapMarker
	}
	result, err := transcribe(samples)
	if err != nil {
		p.logWarn(tier, index, err)
		return gapMarker
	}
	return result.Text
}

// OnPartial registers callback to be invoked with the current Fast-tier
// ordered concatenation each time it advances.
func (p *Progressive) OnPartial(callback func(string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onPartial = callback
}

// Finalize drains the Fast tier (waiting for its trailing chunk), cancels
// the Refine tier without awaiting it, then merges any Refine chunks that
// had already completed into the Fast text per the merge rule.
func (p *Progressive) Finalize(_ context.Context) (Transcript, error) {
	start := time.Now()

	p.fastPool.drain()
	p.refinePool.cancelAndDetach()

	p.mu.Lock()
	fastTexts := p.fastSeq.snapshot()
	fastRanges := make(map[int]sampleRange, len(p.fastRanges))
	for k, v := range p.fastRanges {
		fastRanges[k] = v
	}
	refineDone := append([]refineResult(nil), p.refineDone...)
	p.mu.Unlock()

	merged := append([]string(nil), fastTexts...)
	model := p.fastModel
	if p.mergeRefine {
		for _, rr := range refineDone {
			overlapping := overlappingFastIndices(fastRanges, rr.rng, len(fastTexts))
			if len(overlapping) == 0 {
				continue
			}
			groupText := joinChunkTexts(selectTexts(fastTexts, overlapping))
			if !preferRefine(groupText, rr.text) {
				continue
			}
			merged[overlapping[0]] = rr.text
			for _, idx := range overlapping[1:] {
				merged[idx] = ""
			}
			model = p.refineModel
		}
	}

	return Transcript{
		Text:       joinChunkTexts(merged),
		DurationMs: time.Since(start).Milliseconds(),
		Model:      model,
		ChunkTexts: merged,
		WAVPath:    p.wavPath,
	}, nil
}

func overlappingFastIndices(ranges map[int]sampleRange, target sampleRange, count int) []int {
	var out []int
	for i := 0; i < count; i++ {
		rng, ok := ranges[i]
		if !ok {
			continue
		}
		if rng.overlaps(target) {
			out = append(out, i)
		}
	}
	return out
}

func selectTexts(texts []string, indices []int) []string {
	out := make([]string, 0, len(indices))
	for _, i := range indices {
		out = append(out, texts[i])
	}
	return out
}

func (p *Progressive) logWarn(tier string, index int, err error) {
	if p.logger == nil {
		return
	}
	p.logger.Warn("chunk transcription failed", "tier", tier, "chunk_index", index, "error", err.Error())
}
