package strategy

import (
	"context"
	"log/slog"
	"strings"

	"github.com/rbright/scout/internal/audio"
)

// Models describes the transcription models available for a session, as
// resolved by config and the model cache before Select is called.
type Models struct {
	FastPath   string
	FastName   string
	RefinePath string
	RefineName string
}

// HasRefine reports whether a distinct Refine-tier model is configured.
func (m Models) HasRefine() bool {
	return m.RefinePath != "" && m.RefinePath != m.FastPath
}

// Force strategy names recognized in config's chunking.force_strategy key
// (spec §6); "" / "auto" defer to the duration/model-count table.
const (
	ForceAuto        = ""
	ForceClassic     = "classic"
	ForceChunked     = "chunked"
	ForceProgressive = "progressive"
)

// normalizeForce lower-cases and trims a configured force_strategy value so
// callers can compare against the Force* constants directly.
func normalizeForce(forceStrategy string) string {
	return strings.ToLower(strings.TrimSpace(forceStrategy))
}

// Select picks a Strategy per spec §4.7.4: Classic when the recording is
// shorter than chunking_threshold_seconds, Chunked when one model covers a
// longer recording, Progressive when two
// distinct models are both available for a longer recording. forceStrategy
// (config's chunking.force_strategy) overrides the table outright, except
// that a forced "progressive" without a distinct Refine model still falls
// back to the table — Progressive cannot run without a second model.
func Select(
	ctx context.Context,
	totalSamples int64,
	thresholdSamples int64,
	forceStrategy string,
	mergeRefine bool,
	models Models,
	format audio.NativeFormat,
	transcribeFast, transcribeRefine TranscribeFunc,
	source func() ([]byte, error),
	wavPath string,
	logger *slog.Logger,
) Strategy {
	switch normalizeForce(forceStrategy) {
	case ForceClassic:
		return NewClassic(format, transcribeFast, source, wavPath, models.FastName)
	case ForceChunked:
		return NewRingBufferChunked(ctx, format, transcribeFast, wavPath, models.FastName, logger)
	case ForceProgressive:
		if models.HasRefine() {
			return NewProgressive(ctx, format, transcribeFast, transcribeRefine, wavPath, models.FastName, models.RefineName, mergeRefine, logger)
		}
	}

	switch {
	case totalSamples < thresholdSamples:
		return NewClassic(format, transcribeFast, source, wavPath, models.FastName)
	case !models.HasRefine():
		return NewRingBufferChunked(ctx, format, transcribeFast, wavPath, models.FastName, logger)
	default:
		return NewProgressive(ctx, format, transcribeFast, transcribeRefine, wavPath, models.FastName, models.RefineName, mergeRefine, logger)
	}
}

// SelectLive picks a Strategy for a live recording session, where total
// duration isn't known up front. It is called once, at Recording start
// (§4.8's "Starting → Recording" transition), using only model count: a
// live session always chunks once two models are present, and otherwise
// falls back to Chunked (never Classic, since a live session's final
// duration can't be bounded ahead of time — a forced "classic" is therefore
// not honorable here and falls back to the same model-count rule).
func SelectLive(
	ctx context.Context,
	forceStrategy string,
	mergeRefine bool,
	models Models,
	format audio.NativeFormat,
	transcribeFast, transcribeRefine TranscribeFunc,
	wavPath string,
	logger *slog.Logger,
) Strategy {
	switch normalizeForce(forceStrategy) {
	case ForceChunked:
		return NewRingBufferChunked(ctx, format, transcribeFast, wavPath, models.FastName, logger)
	case ForceProgressive:
		if models.HasRefine() {
			return NewProgressive(ctx, format, transcribeFast, transcribeRefine, wavPath, models.FastName, models.RefineName, mergeRefine, logger)
		}
	}

	if models.HasRefine() {
		return NewProgressive(ctx, format, transcribeFast, transcribeRefine, wavPath, models.FastName, models.RefineName, mergeRefine, logger)
	}
	return NewRingBufferChunked(ctx, format, transcribeFast, wavPath, models.FastName, logger)
}
