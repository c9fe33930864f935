// Package audio handles device discovery, selection, and native-format PCM
// capture streams. Capture never resamples or downmixes; it hands callers
// whatever the device's NativeFormat is, and the one-shot conversion to
// Whisper's expected mono 16kHz float32 happens later, in audioconv, only
// at transcription time.
package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

// chunkMillis is the target fragment duration handed to onPCM callers; it
// is independent of the negotiated sample rate or format.
const chunkMillis = 20

// Device describes one Pulse input source surfaced to scout.
type Device struct {
	ID          string
	Description string
	State       string
	Available   bool
	Muted       bool
	Default     bool
}

// Selection is the resolved capture source plus optional fallback warning context.
type Selection struct {
	Device   Device
	Warning  string
	Fallback bool
}

// ListDevices returns available Pulse input sources with default/availability metadata.
func ListDevices(_ context.Context) ([]Device, error) {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName("scout"),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return nil, fmt.Errorf("connect pulse server: %w", err)
	}
	defer client.Close()

	defaultSource, err := client.DefaultSource()
	if err != nil {
		return nil, fmt.Errorf("read default source: %w", err)
	}
	defaultID := defaultSource.ID()

	var sourceInfos pulseproto.GetSourceInfoListReply
	if err := client.RawRequest(&pulseproto.GetSourceInfoList{}, &sourceInfos); err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}

	devices := make([]Device, 0, len(sourceInfos))
	for _, source := range sourceInfos {
		if source == nil {
			continue
		}
		devices = append(devices, Device{
			ID:          source.SourceName,
			Description: source.Device,
			State:       sourceStateString(source.State),
			Available:   sourceAvailable(source),
			Muted:       source.Mute,
			Default:     source.SourceName == defaultID,
		})
	}
	return devices, nil
}

// SelectDevice resolves audio.input/audio.fallback preferences against live devices.
func SelectDevice(ctx context.Context, input string, fallback string) (Selection, error) {
	devices, err := ListDevices(ctx)
	if err != nil {
		return Selection{}, err
	}
	return selectDeviceFromList(devices, input, fallback)
}

// selectDeviceFromList applies selection policy to a pre-fetched device list.
func selectDeviceFromList(devices []Device, input string, fallback string) (Selection, error) {
	if len(devices) == 0 {
		return Selection{}, errors.New("no audio input devices found")
	}

	var (
		defaultDevice *Device
		byInput       *Device
		byFallback    *Device
	)

	input = strings.TrimSpace(strings.ToLower(input))
	fallback = strings.TrimSpace(strings.ToLower(fallback))

	for i := range devices {
		dev := &devices[i]
		if dev.Default {
			defaultDevice = dev
		}
		if byInput == nil && input != "" && input != "default" && deviceMatches(*dev, input) {
			byInput = dev
		}
		if byFallback == nil && fallback != "" && fallback != "default" && deviceMatches(*dev, fallback) {
			byFallback = dev
		}
	}

	chooseDefault := func() (*Device, error) {
		if defaultDevice == nil {
			return nil, errors.New("default audio source is unavailable")
		}
		return defaultDevice, nil
	}

	selectPrimary := func() (*Device, error) {
		if input == "" || input == "default" {
			return chooseDefault()
		}
		if byInput != nil {
			return byInput, nil
		}
		return nil, fmt.Errorf("audio.input %q did not match any device", input)
	}

	primary, err := selectPrimary()
	if err != nil {
		return Selection{}, err
	}
	if primary.Available && !primary.Muted {
		return Selection{Device: *primary}, nil
	}

	primaryReason := "unavailable"
	if primary.Muted {
		primaryReason = "muted"
	}

	fallbackDevice := primary
	if fallback != "" && fallback != "default" {
		if byFallback == nil {
			return Selection{}, fmt.Errorf("primary input %q is %s and fallback %q not found", primary.ID, primaryReason, fallback)
		}
		fallbackDevice = byFallback
	} else {
		d, derr := chooseDefault()
		if derr != nil {
			return Selection{}, fmt.Errorf("primary input %q is %s and no usable fallback: %w", primary.ID, primaryReason, derr)
		}
		fallbackDevice = d
	}

	if !fallbackDevice.Available {
		return Selection{}, fmt.Errorf("audio fallback device %q is not available", fallbackDevice.ID)
	}
	if fallbackDevice.Muted {
		return Selection{}, fmt.Errorf("audio fallback device %q is muted", fallbackDevice.ID)
	}

	return Selection{
		Device:   *fallbackDevice,
		Warning:  fmt.Sprintf("audio.input %q is %s; falling back to %q", primary.ID, primaryReason, fallbackDevice.ID),
		Fallback: primary.ID != fallbackDevice.ID,
	}, nil
}

// deviceMatches reports whether a search term matches a device id or description.
func deviceMatches(device Device, term string) bool {
	if term == "" {
		return false
	}
	id := strings.ToLower(device.ID)
	desc := strings.ToLower(device.Description)
	return strings.Contains(id, term) || strings.Contains(desc, term)
}

// Capture streams native-format PCM chunks from one selected Pulse source.
type Capture struct {
	device Device
	format NativeFormat

	client *pulse.Client
	stream *pulse.RecordStream

	chunks       chan []byte
	stopCh       chan struct{}
	chunkBytes   int
	droppedChunks atomic.Int64

	mu      sync.Mutex
	pending []byte
	rawPCM  []byte
	stopped bool

	inflight sync.WaitGroup
	bytes    atomic.Int64
	level    atomic.Uint32 // float32 bits, most recent chunk's peak sample magnitude in [0,1]
}

// StartCapture opens a record stream at format's sample rate, channel
// count, and sample encoding. The caller chooses the format (the session
// pipeline passes a fixed one) and PulseAudio converts on the server side;
// the device's own native rate is not queried.
func StartCapture(ctx context.Context, selected Device, format NativeFormat) (*Capture, error) {
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("start capture: %w", err)
	}
	if format.SampleFmt == SampleFormatI24 {
		return nil, fmt.Errorf("start capture: sample format %q is not supported by the pulse record stream", format.SampleFmt)
	}

	client, err := pulse.NewClient(
		pulse.ClientApplicationName("scout"),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return nil, fmt.Errorf("connect pulse server: %w", err)
	}

	source, err := client.SourceByID(selected.ID)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("resolve source %q: %w", selected.ID, err)
	}

	chunkBytes := format.BytesPerFrame() * format.SampleRate * chunkMillis / 1000
	if chunkBytes <= 0 {
		chunkBytes = format.BytesPerFrame()
	}

	capture := &Capture{
		device:     selected,
		format:     format,
		client:     client,
		chunks:     make(chan []byte, 128),
		stopCh:     make(chan struct{}),
		chunkBytes: chunkBytes,
	}

	pulseFormat, recordOpts := pulseRecordOptions(format)
	writer := pulse.NewWriter(writerFunc(capture.onPCM), pulseFormat)
	opts := append([]pulse.RecordOption{
		pulse.RecordSource(source),
		pulse.RecordSampleRate(uint32(format.SampleRate)),
		pulse.RecordBufferFragmentSize(uint32(chunkBytes)),
		pulse.RecordMediaName("scout dictation"),
	}, recordOpts...)

	stream, err := client.NewRecord(writer, opts...)
	if err != nil {
		capture.Close()
		return nil, fmt.Errorf("create pulse record stream: %w", err)
	}

	capture.stream = stream
	stream.Start()

	go func() {
		<-ctx.Done()
		_ = capture.Stop()
	}()

	return capture, nil
}

// pulseRecordOptions maps a NativeFormat to the jfreymuth/pulse wire format
// and channel option. Only mono and stereo are negotiated with the server;
// higher channel counts are a future extension.
func pulseRecordOptions(format NativeFormat) (pulseproto.SampleFormat, []pulse.RecordOption) {
	var wireFormat pulseproto.SampleFormat
	switch format.SampleFmt {
	case SampleFormatF32:
		wireFormat = pulseproto.FormatFloat32LE
	default:
		wireFormat = pulseproto.FormatInt16LE
	}

	if format.Channels <= 1 {
		return wireFormat, []pulse.RecordOption{pulse.RecordMono}
	}
	return wireFormat, []pulse.RecordOption{pulse.RecordStereo}
}

// Device returns capture metadata for logging and diagnostics.
func (c *Capture) Device() Device {
	return c.device
}

// Format returns the negotiated native capture format.
func (c *Capture) Format() NativeFormat {
	return c.format
}

// DroppedChunks reports how many fragments were discarded because the ring
// buffer consumer could not keep up with realtime capture.
func (c *Capture) DroppedChunks() int64 {
	return c.droppedChunks.Load()
}

// DroppedSamples reports how many interleaved samples were discarded, by
// converting DroppedChunks' fragment count through the fixed chunk size.
func (c *Capture) DroppedSamples() int64 {
	width := c.format.SampleFmt.BytesPerSample()
	if width == 0 {
		return 0
	}
	return c.droppedChunks.Load() * int64(c.chunkBytes/width)
}

// Level returns the most recent chunk's peak normalized sample magnitude,
// in [0, 1], for get_current_audio_level.
func (c *Capture) Level() float32 {
	return math.Float32frombits(c.level.Load())
}

// Chunks returns the PCM stream as fixed-size byte slices.
func (c *Capture) Chunks() <-chan []byte {
	return c.chunks
}

// BytesCaptured reports total bytes accepted from Pulse.
func (c *Capture) BytesCaptured() int64 {
	return c.bytes.Load()
}

// RawPCM returns a snapshot of all captured raw PCM bytes.
func (c *Capture) RawPCM() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]byte, len(c.rawPCM))
	copy(out, c.rawPCM)
	return out
}

// Stop halts the stream, flushes residual PCM, and closes Chunks exactly once.
func (c *Capture) Stop() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	close(c.stopCh)
	c.mu.Unlock()

	if c.stream != nil {
		c.stream.Stop()
		c.stream.Close()
	}
	if c.client != nil {
		c.client.Close()
	}

	c.inflight.Wait()

	c.mu.Lock()
	pending := append([]byte(nil), c.pending...)
	c.pending = nil
	c.mu.Unlock()

	if len(pending) > 0 {
		chunk := make([]byte, len(pending))
		copy(chunk, pending)
		select {
		case c.chunks <- chunk:
		default:
		}
	}

	close(c.chunks)
	return nil
}

// Close is a convenience alias for Stop.
func (c *Capture) Close() {
	_ = c.Stop()
}

// onPCM receives raw Pulse frames and emits chunkBytes-sized slices to c.chunks.
func (c *Capture) onPCM(buffer []byte) (int, error) {
	if len(buffer) == 0 {
		return 0, nil
	}

	select {
	case <-c.stopCh:
		return 0, io.EOF
	default:
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return 0, io.EOF
	}
	// Guard Add under the same mutex as c.stopped to avoid Add/Wait races.
	c.inflight.Add(1)

	c.rawPCM = append(c.rawPCM, buffer...)
	c.pending = append(c.pending, buffer...)

	chunkBytes := c.chunkBytes
	chunks := make([][]byte, 0, len(c.pending)/chunkBytes)
	for len(c.pending) >= chunkBytes {
		chunk := make([]byte, chunkBytes)
		copy(chunk, c.pending[:chunkBytes])
		c.pending = c.pending[chunkBytes:]
		chunks = append(chunks, chunk)
	}
	c.mu.Unlock()
	defer c.inflight.Done()

	c.bytes.Add(int64(len(buffer)))

	for _, chunk := range chunks {
		c.updateLevel(chunk)

		select {
		case <-c.stopCh:
			return 0, io.EOF
		case c.chunks <- chunk:
		default:
			// Realtime callback: never block on a slow consumer. Drop and
			// count instead, surfaced to the operator as dropped_samples.
			c.droppedChunks.Add(1)
		}
	}

	return len(buffer), nil
}

// updateLevel computes the chunk's peak normalized sample magnitude and
// stores it for Level. It never blocks and never allocates
// beyond the read already performed by the caller.
func (c *Capture) updateLevel(chunk []byte) {
	width := c.format.SampleFmt.BytesPerSample()
	if width == 0 || len(chunk) < width {
		return
	}

	var peak float32
	for off := 0; off+width <= len(chunk); off += width {
		var v float32
		switch c.format.SampleFmt {
		case SampleFormatF32:
			bits := uint32(chunk[off]) | uint32(chunk[off+1])<<8 | uint32(chunk[off+2])<<16 | uint32(chunk[off+3])<<24
			v = math.Float32frombits(bits)
		default:
			raw := int16(uint16(chunk[off]) | uint16(chunk[off+1])<<8)
			v = float32(raw) / 32768.0
		}
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	c.level.Store(math.Float32bits(peak))
}

// writerFunc adapts a function to io.Writer for pulse.NewWriter.
type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) {
	return f(b)
}

// sourceStateString maps Pulse source state constants to human-readable values.
func sourceStateString(state uint32) string {
	switch state {
	case 0:
		return "running"
	case 1:
		return "idle"
	case 2:
		return "suspended"
	default:
		return fmt.Sprintf("unknown(%d)", state)
	}
}

// sourceAvailable maps Pulse source port availability to a simple boolean.
func sourceAvailable(source *pulseproto.GetSourceInfoReply) bool {
	if source == nil {
		return false
	}
	if len(source.Ports) == 0 {
		return true
	}
	for _, port := range source.Ports {
		if port.Name != source.ActivePortName {
			continue
		}
		// PulseAudio values: unknown=0, no=1, yes=2.
		return port.Available == 0 || port.Available == 2
	}
	return true
}
