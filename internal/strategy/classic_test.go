package strategy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rbright/scout/internal/audio"
	"github.com/rbright/scout/internal/chunker"
	"github.com/rbright/scout/internal/transcriber"
)

func testFormat() audio.NativeFormat {
	return audio.NativeFormat{SampleRate: 16000, Channels: 1, SampleFmt: audio.SampleFormatI16}
}

func TestClassic_Finalize_TranscribesWholeSource(t *testing.T) {
	raw := make([]byte, 16000*2) // 1 second of 16-bit silence
	transcribe := func(samples []float32) (transcriber.Result, error) {
		return transcriber.Result{Text: "hello world"}, nil
	}
	source := func() ([]byte, error) { return raw, nil }

	c := NewClassic(testFormat(), transcribe, source, "/tmp/session.wav", "fast.bin")
	got, err := c.Finalize(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "hello world", got.Text)
	assert.Equal(t, []string{"hello world"}, got.ChunkTexts)
	assert.Equal(t, "/tmp/session.wav", got.WAVPath)
	assert.Equal(t, "fast.bin", got.Model)
}

func TestClassic_Finalize_PropagatesSourceError(t *testing.T) {
	wantErr := errors.New("disk read failed")
	source := func() ([]byte, error) { return nil, wantErr }

	c := NewClassic(testFormat(), nil, source, "", "fast.bin")
	_, err := c.Finalize(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, wantErr)
}

func TestClassic_Finalize_PropagatesTranscribeError(t *testing.T) {
	wantErr := errors.New("model call failed")
	raw := make([]byte, 1600)
	transcribe := func(samples []float32) (transcriber.Result, error) {
		return transcriber.Result{}, wantErr
	}
	source := func() ([]byte, error) { return raw, nil }

	c := NewClassic(testFormat(), transcribe, source, "", "fast.bin")
	_, err := c.Finalize(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, wantErr)
}

func TestClassic_OnChunkAndOnPartialAreNoOps(t *testing.T) {
	c := NewClassic(testFormat(), nil, func() ([]byte, error) { return nil, nil }, "", "")
	assert.NotPanics(t, func() {
		c.OnChunk(chunker.Chunk{Index: 0, StartSample: 0, EndSample: 100, Tier: chunker.TierFast}, nil)
		c.OnPartial(func(string) {})
	})
}
