// Package pipeline wires the local capture/ring/chunk/strategy components
// (C3-C7) into the session.Transcriber contract the Controller drives.
package pipeline

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rbright/scout/internal/audio"
	"github.com/rbright/scout/internal/chunker"
	"github.com/rbright/scout/internal/config"
	"github.com/rbright/scout/internal/modelstore"
	"github.com/rbright/scout/internal/ring"
	"github.com/rbright/scout/internal/session"
	"github.com/rbright/scout/internal/strategy"
	"github.com/rbright/scout/internal/transcriber"
	"github.com/rbright/scout/internal/transcript"
	"github.com/rbright/scout/internal/wav"
)

// blankAudioMarker is whisper.cpp's marker for a chunk it judged silent; a
// final transcript exactly matching it bypasses transcript.Assemble
// entirely, per spec §4.5's as-is surfacing guarantee.
const blankAudioMarker = "[BLANK_AUDIO]"

// nativeCaptureFormat is the format scout requests from PulseAudio at
// capture start. The jfreymuth/pulse binding this package depends on has no
// call that reports a source's own negotiated rate ahead of opening the
// stream, so rather than guess scout asks for a fixed, high-fidelity format
// and treats it as the session's native format end to end (spec's
// NativeFormat is "fixed for the lifetime of a recording session", which
// this still satisfies — it is just scout's choice rather than the device's
// report). PulseAudio resamples/converts server-side to satisfy the request.
func nativeCaptureFormat() audio.NativeFormat {
	return NativeCaptureFormat()
}

// NativeCaptureFormat is the fixed format Start requests from PulseAudio,
// exported so the `level` command can sample the device the same way a
// recording session would without standing up a full Transcriber.
func NativeCaptureFormat() audio.NativeFormat {
	return audio.NativeFormat{SampleRate: 48000, Channels: 2, SampleFmt: audio.SampleFormatF32}
}

// extractRetries/extractRetryDelay bound how long the chunk consumer waits
// out ring buffer lock contention before giving up on one chunk.
const (
	extractRetries    = 5
	extractRetryDelay = 5 * time.Millisecond
)

// Transcriber owns one end-to-end capture -> ring buffer -> chunk scheduler
// -> strategy pipeline instance for a single recording session.
type Transcriber struct {
	cfg    config.Config
	logger *slog.Logger
	cache  *transcriber.Cache

	mu      sync.Mutex
	started bool

	selection audio.Selection
	capture   *audio.Capture
	format    audio.NativeFormat

	ringBuf   *ring.Buffer
	wavWriter *wav.Writer
	wavPath   string

	scheduler   *chunker.Scheduler
	schedCancel context.CancelFunc
	strat       strategy.Strategy

	writerDone   chan struct{}
	consumerDone chan struct{}

	onPartial func(string)
}

// NewTranscriber constructs a pipeline transcriber from runtime config. The
// model cache it owns is bounded to two entries (Fast + Refine tier), per
// spec §4.5, and is reused across the lifetime of the process so a toggle
// off/on cycle doesn't reload an unevicted model.
func NewTranscriber(cfg config.Config, logger *slog.Logger) *Transcriber {
	return &Transcriber{cfg: cfg, logger: logger, cache: transcriber.NewCache(2)}
}

// Start resolves device and model selection, opens the capture stream, and
// boots the ring buffer writer, WAV writer, chunk scheduler, and strategy.
func (t *Transcriber) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.started {
		return fmt.Errorf("transcriber already started")
	}

	selection, err := audio.SelectDevice(ctx, t.cfg.Audio.Input, t.cfg.Audio.Fallback)
	if err != nil {
		return err
	}
	if selection.Warning != "" {
		t.logWarn(selection.Warning)
	}

	models, transcribeFast, transcribeRefine, err := t.resolveModels()
	if err != nil {
		return err
	}

	format := nativeCaptureFormat()

	capture, err := audio.StartCapture(ctx, selection.Device, format)
	if err != nil {
		return err
	}

	ringBuf, err := ring.New(format, t.cfg.RingBufferSeconds)
	if err != nil {
		_ = capture.Stop()
		return err
	}

	wavPath, err := t.recordingPath()
	if err != nil {
		_ = capture.Stop()
		return err
	}
	wavWriter, err := wav.Open(wavPath, format)
	if err != nil {
		_ = capture.Stop()
		return err
	}

	schedCtx, schedCancel := context.WithCancel(context.Background())

	strat := strategy.SelectLive(schedCtx, t.cfg.Chunking.ForceStrategy, t.cfg.Chunking.MergeRefine, models, format, transcribeFast, transcribeRefine, wavPath, t.logger)
	strat.OnPartial(t.emitPartial)

	fastChunkSamples := secondsToSamples(t.cfg.Chunking.FastSeconds, format)
	var refineChunkSamples int64
	if models.HasRefine() {
		refineChunkSamples = secondsToSamples(t.cfg.Chunking.RefineSeconds, format)
	}

	scheduler := chunker.New(ringBuf, chunker.Config{
		SessionID:          newSessionID(),
		FastChunkSamples:   fastChunkSamples,
		RefineChunkSamples: refineChunkSamples,
	})

	writerDone := make(chan struct{})
	consumerDone := make(chan struct{})

	go t.writerLoop(capture.Chunks(), ringBuf, wavWriter, writerDone)
	go t.chunkConsumerLoop(scheduler, ringBuf, strat, consumerDone)
	go scheduler.Run(schedCtx)

	t.selection = selection
	t.capture = capture
	t.format = format
	t.ringBuf = ringBuf
	t.wavWriter = wavWriter
	t.wavPath = wavPath
	t.scheduler = scheduler
	t.schedCancel = schedCancel
	t.strat = strat
	t.writerDone = writerDone
	t.consumerDone = consumerDone
	t.started = true
	return nil
}

// resolveModels resolves and loads the Fast- and (if configured) Refine-tier
// models through the shared cache, returning the strategy.Models descriptor
// and two TranscribeFunc closures bound to the loaded instances.
func (t *Transcriber) resolveModels() (strategy.Models, strategy.TranscribeFunc, strategy.TranscribeFunc, error) {
	accel := transcriber.Accelerator(t.cfg.Models.Accelerator)
	options := transcriber.Options{
		Accelerator:  accel,
		LanguageHint: t.cfg.Models.LanguageHint,
		BeamSize:     t.cfg.Models.BeamSize,
	}

	fastPath, err := modelstore.Resolve(t.cfg.Models.FastPath)
	if err != nil {
		return strategy.Models{}, nil, nil, fmt.Errorf("resolve fast model: %w", err)
	}
	fastModel, err := t.cache.GetOrLoad(fastPath, accel, func() (*transcriber.Transcriber, error) {
		return transcriber.Load(fastPath, options)
	})
	if err != nil {
		return strategy.Models{}, nil, nil, fmt.Errorf("load fast model: %w", err)
	}

	models := strategy.Models{FastPath: fastPath, FastName: filepath.Base(fastPath)}
	transcribeFast := func(samples []float32) (transcriber.Result, error) {
		return fastModel.Transcribe(samples)
	}

	if strings.TrimSpace(t.cfg.Models.RefinePath) == "" {
		return models, transcribeFast, nil, nil
	}

	refinePath, err := modelstore.Resolve(t.cfg.Models.RefinePath)
	if err != nil {
		return strategy.Models{}, nil, nil, fmt.Errorf("resolve refine model: %w", err)
	}
	refineModel, err := t.cache.GetOrLoad(refinePath, accel, func() (*transcriber.Transcriber, error) {
		return transcriber.Load(refinePath, options)
	})
	if err != nil {
		return strategy.Models{}, nil, nil, fmt.Errorf("load refine model: %w", err)
	}

	models.RefinePath = refinePath
	models.RefineName = filepath.Base(refinePath)
	transcribeRefine := func(samples []float32) (transcriber.Result, error) {
		return refineModel.Transcribe(samples)
	}

	return models, transcribeFast, transcribeRefine, nil
}

// StopAndTranscribe stops capture, drains the ring buffer writer and chunk
// consumer, finalizes the strategy, and closes the WAV file.
func (t *Transcriber) StopAndTranscribe(ctx context.Context) (session.StopResult, error) {
	t.mu.Lock()
	if !t.started {
		t.mu.Unlock()
		return session.StopResult{}, session.ErrPipelineUnavailable
	}
	capture := t.capture
	wavWriter := t.wavWriter
	wavPath := t.wavPath
	schedCancel := t.schedCancel
	strat := t.strat
	writerDone := t.writerDone
	consumerDone := t.consumerDone
	selection := t.selection
	format := t.format
	t.started = false
	t.mu.Unlock()

	start := time.Now()

	_ = capture.Stop()
	<-writerDone

	schedCancel()
	<-consumerDone

	result, finalizeErr := strat.Finalize(ctx)
	closeErr := wavWriter.Close()

	t.writeDebugAudio(capture.RawPCM(), format)

	stopResult := session.StopResult{
		AudioDevice:    describeDevice(selection.Device),
		BytesCaptured:  capture.BytesCaptured(),
		DroppedSamples: capture.DroppedSamples(),
		WAVPath:        wavPath,
	}

	if finalizeErr != nil {
		return stopResult, fmt.Errorf("finalize transcript: %w", finalizeErr)
	}
	if closeErr != nil {
		t.logWarn(fmt.Sprintf("close wav file: %v", closeErr))
	}

	stopResult.Transcript = t.normalizeTranscript(result)
	stopResult.TranscribeLatency = time.Since(start)
	stopResult.Model = result.Model
	return stopResult, nil
}

// Cancel stops capture and the scheduler immediately and discards the WAV
// file, per spec §4.8's Recording/Stopping -> Cancelling transition.
func (t *Transcriber) Cancel(_ context.Context) error {
	t.mu.Lock()
	if !t.started {
		t.mu.Unlock()
		return nil
	}
	capture := t.capture
	wavWriter := t.wavWriter
	wavPath := t.wavPath
	schedCancel := t.schedCancel
	writerDone := t.writerDone
	consumerDone := t.consumerDone
	t.started = false
	t.mu.Unlock()

	_ = capture.Stop()
	<-writerDone
	schedCancel()
	<-consumerDone

	if err := wavWriter.Abort(wavPath); err != nil {
		t.logWarn(fmt.Sprintf("abort wav file: %v", err))
	}
	return nil
}

// TranscribeFile runs the full selection/strategy pipeline (C7) over an
// already-recorded WAV file, used by the `transcribe <path>` command. Unlike
// a live session it has no ring buffer or real-time scheduler: the file's
// total sample count is known up front, so the scheduler is driven
// synchronously over a fixed-size source instead of polling a growing one.
func (t *Transcriber) TranscribeFile(ctx context.Context, path string) (session.StopResult, error) {
	reader, err := wav.OpenReader(path)
	if err != nil {
		return session.StopResult{}, fmt.Errorf("open wav file: %w", err)
	}
	defer reader.Close()

	format := reader.Format()
	totalSamples := reader.TotalSamples()

	models, transcribeFast, transcribeRefine, err := t.resolveModels()
	if err != nil {
		return session.StopResult{}, err
	}

	fastChunkSamples := secondsToSamples(t.cfg.Chunking.FastSeconds, format)
	thresholdSamples := secondsToSamples(t.cfg.Chunking.ThresholdSeconds, format)
	var refineChunkSamples int64
	if models.HasRefine() {
		refineChunkSamples = secondsToSamples(t.cfg.Chunking.RefineSeconds, format)
	}

	strat := strategy.Select(ctx, totalSamples, thresholdSamples, t.cfg.Chunking.ForceStrategy, t.cfg.Chunking.MergeRefine, models, format, transcribeFast, transcribeRefine, reader.ReadAll, path, t.logger)

	if err := t.driveFileChunks(reader, strat, totalSamples, fastChunkSamples, refineChunkSamples); err != nil {
		return session.StopResult{}, err
	}

	start := time.Now()
	result, err := strat.Finalize(ctx)
	if err != nil {
		return session.StopResult{}, fmt.Errorf("finalize transcript: %w", err)
	}

	return session.StopResult{
		Transcript:        t.normalizeTranscript(result),
		BytesCaptured:     totalSamples * int64(format.SampleFmt.BytesPerSample()),
		TranscribeLatency: time.Since(start),
		Model:             result.Model,
		WAVPath:           path,
	}, nil
}

// normalizeTranscript assembles a strategy's per-chunk texts into the final
// committed transcript, applying config's sentence-case/trailing-space
// formatting (internal/transcript, cfg.Transcript). A result whose text is
// empty or exactly the blank-audio marker is passed through untouched, per
// spec §4.5's "text == \"\" and/or text == \"[BLANK_AUDIO]\" ... MUST be
// surfaced as-is" guarantee.
func (t *Transcriber) normalizeTranscript(result strategy.Transcript) string {
	trimmed := strings.TrimSpace(result.Text)
	if trimmed == "" || trimmed == blankAudioMarker {
		return result.Text
	}

	segments := result.ChunkTexts
	if len(segments) == 0 {
		segments = []string{result.Text}
	}
	return transcript.Assemble(segments, transcript.Options{
		TrailingSpace:       t.cfg.Transcript.TrailingSpace,
		CapitalizeSentences: t.cfg.Transcript.CapitalizeSentences,
	})
}

// driveFileChunks feeds a file-transcription strategy its chunks when the
// strategy selected is a chunking one (Ring-Buffer-Chunked or Progressive).
// It is a no-op for Classic, whose Finalize reads the whole file itself —
// checked by type rather than by duration, since force_strategy or a
// threshold distinct from the Fast chunk size can select Classic or a
// chunking strategy independent of how totalSamples compares to
// fastChunkSamples.
func (t *Transcriber) driveFileChunks(reader *wav.Reader, strat strategy.Strategy, totalSamples, fastChunkSamples, refineChunkSamples int64) error {
	if _, ok := strat.(*strategy.Classic); ok {
		return nil
	}
	if fastChunkSamples <= 0 || totalSamples < fastChunkSamples {
		return nil
	}

	scheduler := chunker.New(fixedSource{total: totalSamples}, chunker.Config{
		SessionID:          newSessionID(),
		FastChunkSamples:   fastChunkSamples,
		RefineChunkSamples: refineChunkSamples,
	})

	fastCount := int(totalSamples / fastChunkSamples)
	if totalSamples%fastChunkSamples != 0 {
		fastCount++
	}
	var refineCount int
	if refineChunkSamples > 0 {
		refineCount = int(totalSamples / refineChunkSamples)
	}

	go func() {
		scheduler.Poll()
		scheduler.FlushTrailing()
	}()

	for i := 0; i < fastCount+refineCount; i++ {
		chunk := <-scheduler.Chunks()
		raw, err := reader.ReadRange(chunk.StartSample, chunk.EndSample)
		if err != nil {
			return fmt.Errorf("read chunk %d (%s): %w", chunk.Index, chunk.Tier, err)
		}
		strat.OnChunk(chunk, raw)
	}
	return nil
}

// fixedSource reports a constant, already-fully-written sample count,
// letting the chunk scheduler be driven synchronously over a finished file
// instead of polling a live, growing ring buffer.
type fixedSource struct{ total int64 }

func (f fixedSource) Written() int64 { return f.total }

// OnPartial registers callback to receive Fast-tier partial text as it
// advances. It may be called before or after Start.
func (t *Transcriber) OnPartial(callback func(string)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onPartial = callback
}

// emitPartial is passed to the active strategy as its own OnPartial sink.
func (t *Transcriber) emitPartial(text string) {
	t.mu.Lock()
	cb := t.onPartial
	t.mu.Unlock()
	if cb != nil {
		cb(text)
	}
}

// writerLoop is the ring buffer's sole producer goroutine (C3/C4 handoff):
// it drains capture chunks into the ring buffer and mirrors them to the WAV
// file, exiting once capture.Chunks() closes on Stop.
func (t *Transcriber) writerLoop(chunks <-chan []byte, ringBuf *ring.Buffer, wavWriter *wav.Writer, done chan struct{}) {
	defer close(done)

	for chunk := range chunks {
		if len(chunk) == 0 {
			continue
		}
		ringBuf.Append(chunk)
		if err := ringBuf.FlushTo(wavWriter); err != nil {
			t.logWarn(fmt.Sprintf("wav flush failed: %v", err))
		}
	}
}

// chunkConsumerLoop is the chunk scheduler's sole consumer: it extracts each
// emitted chunk's sample range from the ring buffer and dispatches it to the
// active strategy, exiting once the scheduler closes its Chunks channel.
func (t *Transcriber) chunkConsumerLoop(scheduler *chunker.Scheduler, ringBuf *ring.Buffer, strat strategy.Strategy, done chan struct{}) {
	defer close(done)

	for chunk := range scheduler.Chunks() {
		raw, err := extractWithRetry(ringBuf, chunk.StartSample, chunk.EndSample)
		if err != nil {
			t.logWarn(fmt.Sprintf("chunk %d (%s) extract failed: %v", chunk.Index, chunk.Tier, err))
			continue
		}
		strat.OnChunk(chunk, raw)
	}
}

// extractWithRetry retries a ring buffer extraction a bounded number of
// times when the writer goroutine holds the lock (ring.ErrWouldBlock),
// matching spec §4.6's "scheduler retries next poll tick" contract.
func extractWithRetry(ringBuf *ring.Buffer, start, end int64) ([]byte, error) {
	var lastErr error
	for i := 0; i < extractRetries; i++ {
		raw, err := ringBuf.Extract(start, end)
		if err == nil {
			return raw, nil
		}
		if !errors.Is(err, ring.ErrWouldBlock) {
			return nil, err
		}
		lastErr = err
		time.Sleep(extractRetryDelay)
	}
	return nil, lastErr
}

// secondsToSamples converts a chunk duration in seconds to ring-buffer
// sample units (channel-interleaved scalars, matching chunker.Config).
func secondsToSamples(seconds float64, format audio.NativeFormat) int64 {
	return int64(seconds * float64(format.SampleRate) * float64(format.Channels))
}

// recordingPath builds the per-session WAV output path under the
// configured (or default) recordings directory, per spec's
// recording_YYYYMMDD_HHMMSS.wav naming.
func (t *Transcriber) recordingPath() (string, error) {
	dir := strings.TrimSpace(t.cfg.Recordings.Dir)
	if dir == "" {
		stateDir, err := resolveStateDir()
		if err != nil {
			return "", fmt.Errorf("resolve recordings dir: %w", err)
		}
		dir = filepath.Join(stateDir, "scout", "recordings")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create recordings dir: %w", err)
	}
	name := fmt.Sprintf("recording_%s.wav", time.Now().Format("20060102_150405"))
	return filepath.Join(dir, name), nil
}

// newSessionID returns a short random hex identifier for one recording
// session, used only to label chunks for logging; it is not persisted.
func newSessionID() string {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return fmt.Sprintf("sess-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf[:])
}

// describeDevice formats device metadata for logs/session results.
func describeDevice(device audio.Device) string {
	description := strings.TrimSpace(device.Description)
	id := strings.TrimSpace(device.ID)
	if description == "" {
		return id
	}
	if id == "" {
		return description
	}
	return fmt.Sprintf("%s (%s)", description, id)
}

// logWarn emits warning-level logs when logger is configured.
func (t *Transcriber) logWarn(message string) {
	if t.logger == nil {
		return
	}
	t.logger.Warn(message)
}

// resolveStateDir returns XDG_STATE_HOME, falling back to ~/.local/state,
// matching internal/logging's own resolution.
func resolveStateDir() (string, error) {
	if xdg := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); xdg != "" {
		return xdg, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory for state: %w", err)
	}
	return filepath.Join(home, ".local", "state"), nil
}

// writeDebugAudio writes a second copy of the session's raw native-format
// PCM under the debug artifact directory when debug.audio_dump is enabled,
// independent of the main recordings WAV, for capture-fidelity
// troubleshooting without touching the primary output file.
func (t *Transcriber) writeDebugAudio(rawPCM []byte, format audio.NativeFormat) {
	if !t.cfg.Debug.EnableAudioDump || len(rawPCM) == 0 {
		return
	}

	path, err := t.createDebugPath("audio", "wav")
	if err != nil {
		t.logWarn(fmt.Sprintf("unable to create debug audio dump: %v", err))
		return
	}

	w, err := wav.Open(path, format)
	if err != nil {
		t.logWarn(fmt.Sprintf("unable to open debug audio dump: %v", err))
		return
	}
	if err := w.Append(rawPCM); err != nil {
		t.logWarn(fmt.Sprintf("unable to write debug audio dump: %v", err))
	}
	if err := w.Close(); err != nil {
		t.logWarn(fmt.Sprintf("unable to close debug audio dump: %v", err))
	}
}

// createDebugPath builds a timestamped path under state/scout/debug,
// creating the directory if needed.
func (t *Transcriber) createDebugPath(prefix, extension string) (string, error) {
	stateDir, err := resolveStateDir()
	if err != nil {
		return "", err
	}
	debugDir := filepath.Join(stateDir, "scout", "debug")
	if err := os.MkdirAll(debugDir, 0o700); err != nil {
		return "", fmt.Errorf("create debug dir: %w", err)
	}

	timestamp := time.Now().Format("20060102-150405.000")
	return filepath.Join(debugDir, fmt.Sprintf("%s-%s.%s", prefix, timestamp, extension)), nil
}
