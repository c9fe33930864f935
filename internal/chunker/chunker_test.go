package chunker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	written int64
}

func (f *fakeSource) Written() int64 { return f.written }

func TestScheduler_EmitsFastChunksInOrder(t *testing.T) {
	source := &fakeSource{}
	s := New(source, Config{SessionID: "s1", FastChunkSamples: 100})

	source.written = 250
	s.Poll()

	var got []Chunk
	for len(s.chunks) > 0 {
		got = append(got, <-s.chunks)
	}

	require.Len(t, got, 2)
	assert.Equal(t, Chunk{SessionID: "s1", Index: 0, StartSample: 0, EndSample: 100, Tier: TierFast}, got[0])
	assert.Equal(t, Chunk{SessionID: "s1", Index: 1, StartSample: 100, EndSample: 200, Tier: TierFast}, got[1])
}

func TestScheduler_FastAndRefineCursorsAreIndependent(t *testing.T) {
	source := &fakeSource{}
	s := New(source, Config{SessionID: "s1", FastChunkSamples: 50, RefineChunkSamples: 120})

	source.written = 130
	s.Poll()

	var fast, refine int
	for len(s.chunks) > 0 {
		c := <-s.chunks
		if c.Tier == TierFast {
			fast++
		} else {
			refine++
		}
	}

	assert.Equal(t, 2, fast)   // [0,50) [50,100)
	assert.Equal(t, 1, refine) // [0,120)
}

func TestScheduler_FlushTrailingCoversRemainder(t *testing.T) {
	source := &fakeSource{}
	s := New(source, Config{SessionID: "s1", FastChunkSamples: 100})

	source.written = 260
	s.Poll() // emits [0,100) [100,200)

	for len(s.chunks) > 0 {
		<-s.chunks
	}

	s.FlushTrailing()
	require.Len(t, s.chunks, 1)
	trailing := <-s.chunks
	assert.Equal(t, int64(200), trailing.StartSample)
	assert.Equal(t, int64(260), trailing.EndSample)
}

func TestScheduler_FlushTrailingNoOpWhenNothingPending(t *testing.T) {
	source := &fakeSource{}
	s := New(source, Config{SessionID: "s1", FastChunkSamples: 100})

	source.written = 100
	s.Poll()
	for len(s.chunks) > 0 {
		<-s.chunks
	}

	s.FlushTrailing()
	assert.Len(t, s.chunks, 0)
}

func TestScheduler_ZeroRefineSamplesDisablesRefineTier(t *testing.T) {
	source := &fakeSource{}
	s := New(source, Config{SessionID: "s1", FastChunkSamples: 10})

	source.written = 80
	s.Poll()

	for len(s.chunks) > 0 {
		c := <-s.chunks
		assert.Equal(t, TierFast, c.Tier)
	}
}
