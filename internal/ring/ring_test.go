package ring

import (
	"encoding/binary"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rbright/scout/internal/audio"
	"github.com/rbright/scout/internal/wav"
	"github.com/stretchr/testify/require"
)

func testFormat() audio.NativeFormat {
	return audio.NativeFormat{SampleRate: 16000, Channels: 1, SampleFmt: audio.SampleFormatF32}
}

func f32Bytes(values ...uint32) []byte {
	out := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[i*4:], v)
	}
	return out
}

func TestNewEnforcesMinRetention(t *testing.T) {
	buf, err := New(testFormat(), 1)
	require.NoError(t, err)
	require.Equal(t, int64(MinRetentionSeconds*16000), buf.capacitySamples)
}

func TestNewRejectsInvalidFormat(t *testing.T) {
	_, err := New(audio.NativeFormat{}, MinRetentionSeconds)
	require.Error(t, err)
}

func TestAppendAndExtractRoundTrip(t *testing.T) {
	buf, err := New(testFormat(), MinRetentionSeconds)
	require.NoError(t, err)

	buf.Append(f32Bytes(1, 2, 3, 4))
	require.Equal(t, int64(4), buf.Written())

	out, err := buf.Extract(0, 4)
	require.NoError(t, err)
	require.Equal(t, f32Bytes(1, 2, 3, 4), out)
}

func TestExtractOutOfRangeWhenNotYetWritten(t *testing.T) {
	buf, err := New(testFormat(), MinRetentionSeconds)
	require.NoError(t, err)
	buf.Append(f32Bytes(1, 2))

	_, err = buf.Extract(0, 10)
	require.ErrorIs(t, err, ErrOutOfRange)
}

func TestExtractOutOfRangeWhenAgedOut(t *testing.T) {
	format := testFormat()
	buf, err := New(format, MinRetentionSeconds)
	require.NoError(t, err)

	capacity := buf.capacitySamples
	overflow := make([]uint32, capacity+100)
	for i := range overflow {
		overflow[i] = uint32(i)
	}
	buf.Append(f32Bytes(overflow...))

	_, err = buf.Extract(0, 10)
	require.ErrorIs(t, err, ErrOutOfRange)

	out, err := buf.Extract(capacity, capacity+10)
	require.NoError(t, err)
	require.Len(t, out, 40)
}

func TestAppendWrapsAroundCircularBuffer(t *testing.T) {
	format := testFormat()
	buf, err := New(format, MinRetentionSeconds)
	require.NoError(t, err)

	capacity := buf.capacitySamples
	first := make([]uint32, capacity-2)
	for i := range first {
		first[i] = uint32(i)
	}
	buf.Append(f32Bytes(first...))
	buf.Append(f32Bytes(100, 101, 102, 103))

	out, err := buf.Extract(capacity-2, capacity+2)
	require.NoError(t, err)
	require.Equal(t, f32Bytes(100, 101, 102, 103), out)
}

func TestExtractReturnsWouldBlockUnderWriterContention(t *testing.T) {
	buf, err := New(testFormat(), MinRetentionSeconds)
	require.NoError(t, err)
	buf.Append(f32Bytes(1, 2, 3, 4))

	buf.mu.Lock()
	defer buf.mu.Unlock()

	_, err = buf.Extract(0, 4)
	require.ErrorIs(t, err, ErrWouldBlock)
}

func TestFlushToWritesIncrementalWindows(t *testing.T) {
	format := testFormat()
	buf, err := New(format, MinRetentionSeconds)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "out.wav")
	writer, err := wav.Open(path, format)
	require.NoError(t, err)

	buf.Append(f32Bytes(1, 2, 3, 4))
	require.NoError(t, buf.FlushTo(writer))
	buf.Append(f32Bytes(5, 6))
	require.NoError(t, buf.FlushTo(writer))

	require.NoError(t, writer.Close())
	require.Equal(t, int64(6), writer.SamplesWritten())
}

func TestFlushToNoopWhenNothingNew(t *testing.T) {
	format := testFormat()
	buf, err := New(format, MinRetentionSeconds)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "out.wav")
	writer, err := wav.Open(path, format)
	require.NoError(t, err)
	defer writer.Close()

	require.NoError(t, buf.FlushTo(writer))
	require.Equal(t, int64(0), writer.SamplesWritten())
}

func TestConcurrentAppendAndExtractDoesNotRace(t *testing.T) {
	buf, err := New(testFormat(), MinRetentionSeconds)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			buf.Append(f32Bytes(uint32(i)))
		}
	}()

	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			written := buf.Written()
			if written > 1 {
				_, _ = buf.Extract(written-1, written)
			}
		}
	}()

	wg.Wait()
	require.Equal(t, int64(200), buf.Written())
}
