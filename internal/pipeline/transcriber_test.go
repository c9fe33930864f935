package pipeline

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rbright/scout/internal/audio"
	"github.com/rbright/scout/internal/chunker"
	"github.com/rbright/scout/internal/config"
	"github.com/rbright/scout/internal/ring"
	"github.com/rbright/scout/internal/session"
	"github.com/rbright/scout/internal/strategy"
	"github.com/rbright/scout/internal/wav"
	"github.com/stretchr/testify/require"
)

func testFormat() audio.NativeFormat {
	return audio.NativeFormat{SampleRate: 16000, Channels: 1, SampleFmt: audio.SampleFormatF32}
}

func f32Bytes(n int) []byte {
	out := make([]byte, n*4)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint32(out[i*4:], uint32(i))
	}
	return out
}

func TestDescribeDevice(t *testing.T) {
	require.Equal(t, "Elgato (alsa_input.wave3)", describeDevice(audio.Device{Description: "Elgato", ID: "alsa_input.wave3"}))
	require.Equal(t, "Elgato", describeDevice(audio.Device{Description: "Elgato"}))
	require.Equal(t, "alsa_input.wave3", describeDevice(audio.Device{ID: "alsa_input.wave3"}))
}

func TestResolveStateDirUsesXDGStateHome(t *testing.T) {
	xdgStateHome := t.TempDir()
	t.Setenv("XDG_STATE_HOME", xdgStateHome)
	t.Setenv("HOME", t.TempDir())

	dir, err := resolveStateDir()
	require.NoError(t, err)
	require.Equal(t, xdgStateHome, dir)
}

func TestResolveStateDirFallsBackToHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("XDG_STATE_HOME", "")
	t.Setenv("HOME", home)

	dir, err := resolveStateDir()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, ".local", "state"), dir)
}

func TestSecondsToSamplesScalesByRateAndChannels(t *testing.T) {
	format := audio.NativeFormat{SampleRate: 16000, Channels: 2, SampleFmt: audio.SampleFormatF32}
	require.Equal(t, int64(16000*2*5), secondsToSamples(5, format))
}

func TestNewSessionIDIsNonEmptyAndVaries(t *testing.T) {
	a := newSessionID()
	b := newSessionID()
	require.NotEmpty(t, a)
	require.NotEmpty(t, b)
	require.NotEqual(t, a, b)
}

func TestRecordingPathUsesConfiguredDir(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Recordings.Dir = dir

	transcriber := NewTranscriber(cfg, nil)
	path, err := transcriber.recordingPath()
	require.NoError(t, err)
	require.Equal(t, dir, filepath.Dir(path))
	require.Contains(t, filepath.Base(path), "recording_")
	require.Equal(t, ".wav", filepath.Ext(path))
}

func TestRecordingPathDefaultsUnderStateDir(t *testing.T) {
	xdgStateHome := t.TempDir()
	t.Setenv("XDG_STATE_HOME", xdgStateHome)

	transcriber := NewTranscriber(config.Default(), nil)
	path, err := transcriber.recordingPath()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(xdgStateHome, "scout", "recordings"), filepath.Dir(path))
}

func TestCreateDebugPathCreatesDebugDir(t *testing.T) {
	xdgStateHome := t.TempDir()
	t.Setenv("XDG_STATE_HOME", xdgStateHome)

	transcriber := NewTranscriber(config.Default(), nil)
	path, err := transcriber.createDebugPath("audio", "wav")
	require.NoError(t, err)
	require.DirExists(t, filepath.Join(xdgStateHome, "scout", "debug"))
	require.Contains(t, filepath.Base(path), "audio-")
	require.Equal(t, ".wav", filepath.Ext(path))
}

func TestWriteDebugAudioCreatesWavWhenEnabled(t *testing.T) {
	xdgStateHome := t.TempDir()
	t.Setenv("XDG_STATE_HOME", xdgStateHome)

	cfg := config.Default()
	cfg.Debug.EnableAudioDump = true
	transcriber := NewTranscriber(cfg, nil)

	transcriber.writeDebugAudio(f32Bytes(8), testFormat())

	matches, err := filepath.Glob(filepath.Join(xdgStateHome, "scout", "debug", "audio-*.wav"))
	require.NoError(t, err)
	require.NotEmpty(t, matches)

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	require.Equal(t, "RIFF", string(data[0:4]))
}

func TestWriteDebugAudioSkippedWhenDisabled(t *testing.T) {
	xdgStateHome := t.TempDir()
	t.Setenv("XDG_STATE_HOME", xdgStateHome)

	cfg := config.Default()
	cfg.Debug.EnableAudioDump = false
	transcriber := NewTranscriber(cfg, nil)

	transcriber.writeDebugAudio(f32Bytes(8), testFormat())

	matches, err := filepath.Glob(filepath.Join(xdgStateHome, "scout", "debug", "audio-*.wav"))
	require.NoError(t, err)
	require.Empty(t, matches)
}

func TestStartFailsWhenAlreadyStarted(t *testing.T) {
	transcriber := NewTranscriber(config.Default(), nil)
	transcriber.started = true

	err := transcriber.Start(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "already started")
}

func TestStopAndTranscribeUnavailableWhenNotStarted(t *testing.T) {
	result, err := NewTranscriber(config.Default(), nil).StopAndTranscribe(context.Background())
	require.ErrorIs(t, err, session.ErrPipelineUnavailable)
	require.Equal(t, session.StopResult{}, result)
}

func TestCancelWithoutInitializedPipelineIsNoop(t *testing.T) {
	transcriber := NewTranscriber(config.Default(), nil)
	require.NoError(t, transcriber.Cancel(context.Background()))
}

func TestOnPartialForwardsToRegisteredCallback(t *testing.T) {
	transcriber := NewTranscriber(config.Default(), nil)

	var got string
	transcriber.OnPartial(func(text string) { got = text })
	transcriber.emitPartial("hello world")

	require.Equal(t, "hello world", got)
}

func TestOnPartialNoopWhenUnset(t *testing.T) {
	transcriber := NewTranscriber(config.Default(), nil)
	require.NotPanics(t, func() { transcriber.emitPartial("hello") })
}

func TestNormalizeTranscriptAppliesAssembleOptions(t *testing.T) {
	cfg := config.Default()
	cfg.Transcript.TrailingSpace = true
	cfg.Transcript.CapitalizeSentences = true
	transcriber := NewTranscriber(cfg, nil)

	got := transcriber.normalizeTranscript(strategy.Transcript{
		Text:       "hello world. it works",
		ChunkTexts: []string{"hello world.", "it works"},
	})
	require.Equal(t, "Hello world. It works ", got)
}

func TestNormalizeTranscriptRespectsDisabledOptions(t *testing.T) {
	cfg := config.Default()
	cfg.Transcript.TrailingSpace = false
	cfg.Transcript.CapitalizeSentences = false
	transcriber := NewTranscriber(cfg, nil)

	got := transcriber.normalizeTranscript(strategy.Transcript{
		Text:       "hello world",
		ChunkTexts: []string{"hello world"},
	})
	require.Equal(t, "hello world", got)
}

func TestNormalizeTranscriptPassesThroughBlankAudioMarker(t *testing.T) {
	transcriber := NewTranscriber(config.Default(), nil)

	got := transcriber.normalizeTranscript(strategy.Transcript{
		Text:       "[BLANK_AUDIO]",
		ChunkTexts: []string{"[BLANK_AUDIO]"},
	})
	require.Equal(t, "[BLANK_AUDIO]", got)
}

func TestNormalizeTranscriptPassesThroughEmptyText(t *testing.T) {
	transcriber := NewTranscriber(config.Default(), nil)

	got := transcriber.normalizeTranscript(strategy.Transcript{Text: ""})
	require.Equal(t, "", got)
}

func TestExtractWithRetryReturnsUncontendedRange(t *testing.T) {
	ringBuf, err := ring.New(testFormat(), ring.MinRetentionSeconds)
	require.NoError(t, err)
	ringBuf.Append(f32Bytes(100))

	raw, err := extractWithRetry(ringBuf, 0, 100)
	require.NoError(t, err)
	require.Len(t, raw, 400)
}

func TestExtractWithRetryPropagatesOutOfRange(t *testing.T) {
	ringBuf, err := ring.New(testFormat(), ring.MinRetentionSeconds)
	require.NoError(t, err)
	ringBuf.Append(f32Bytes(10))

	_, err = extractWithRetry(ringBuf, 0, 10000)
	require.ErrorIs(t, err, ring.ErrOutOfRange)
}

// fakeStrategy records every chunk dispatched by chunkConsumerLoop.
type fakeStrategy struct {
	mu     sync.Mutex
	chunks []chunker.Chunk
}

func newFakeStrategy() *fakeStrategy {
	return &fakeStrategy{}
}

func (f *fakeStrategy) OnChunk(chunk chunker.Chunk, _ []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chunks = append(f.chunks, chunk)
}
func (f *fakeStrategy) OnPartial(func(string)) {}
func (f *fakeStrategy) Finalize(context.Context) (strategy.Transcript, error) {
	return strategy.Transcript{}, nil
}

func (f *fakeStrategy) snapshot() []chunker.Chunk {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]chunker.Chunk, len(f.chunks))
	copy(out, f.chunks)
	return out
}

func TestWriterLoopAppendsToRingAndFlushesWav(t *testing.T) {
	format := testFormat()
	ringBuf, err := ring.New(format, ring.MinRetentionSeconds)
	require.NoError(t, err)

	wavPath := filepath.Join(t.TempDir(), "out.wav")
	writer, err := wav.Open(wavPath, format)
	require.NoError(t, err)

	chunks := make(chan []byte, 2)
	chunks <- f32Bytes(10)
	chunks <- f32Bytes(5)
	close(chunks)

	transcriber := NewTranscriber(config.Default(), nil)
	done := make(chan struct{})
	transcriber.writerLoop(chunks, ringBuf, writer, done)
	<-done

	require.Equal(t, int64(15), ringBuf.Written())
	require.NoError(t, writer.Close())

	data, err := os.ReadFile(wavPath)
	require.NoError(t, err)
	require.Equal(t, int64(15*4), int64(binary.LittleEndian.Uint32(data[40:44])))
}

func TestChunkConsumerLoopDispatchesEmittedChunks(t *testing.T) {
	format := testFormat()
	ringBuf, err := ring.New(format, ring.MinRetentionSeconds)
	require.NoError(t, err)
	ringBuf.Append(f32Bytes(20))

	scheduler := chunker.New(ringBuf, chunker.Config{
		SessionID:        "test",
		FastChunkSamples: 10,
		PollInterval:     time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go scheduler.Run(ctx)

	strat := newFakeStrategy()
	transcriber := NewTranscriber(config.Default(), nil)
	done := make(chan struct{})
	go transcriber.chunkConsumerLoop(scheduler, ringBuf, strat, done)

	require.Eventually(t, func() bool {
		return len(strat.snapshot()) >= 2
	}, time.Second, time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("chunkConsumerLoop did not exit after scheduler stopped")
	}

	chunks := strat.snapshot()
	require.Equal(t, int64(0), chunks[0].StartSample)
	require.Equal(t, int64(10), chunks[0].EndSample)
}
