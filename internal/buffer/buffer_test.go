package buffer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	mu       sync.Mutex
	segments [][]byte
	channels []int
	err      error
}

func (s *captureSink) Encode(channel int, pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	s.segments = append(s.segments, cp)
	s.channels = append(s.channels, channel)
	return nil
}

type sinkRecorder struct {
	warnings []string
	failures []error
}

func (r *sinkRecorder) OnWarning(message string) { r.warnings = append(r.warnings, message) }
func (r *sinkRecorder) OnFailure(err error)      { r.failures = append(r.failures, err) }

// newTestGenerator uses a one second window at 4 Hz: a segment is exactly
// 4 samples / 8 PCM bytes.
func newTestGenerator(sink *captureSink, errs *sinkRecorder) *Generator {
	return NewGenerator(sink, errs, 3, 4, 2, WithSegmentDuration(time.Second))
}

func TestGeneratorEmitsCompleteSegments(t *testing.T) {
	sink := &captureSink{}
	errs := &sinkRecorder{}
	g := newTestGenerator(sink, errs)
	require.NoError(t, g.Init())

	g.Consume([]float32{0.5, -0.5})
	assert.Empty(t, sink.segments, "partial segment must not be emitted")

	g.Consume([]float32{1.0, -1.0})
	require.Len(t, sink.segments, 1)
	assert.Equal(t, []int{3}, sink.channels, "segment carries the channel index")

	seg := sink.segments[0]
	require.Len(t, seg, 8)
	want := []int16{16384, -16384, 32767, -32767}
	for i, w := range want {
		got := int16(binary.LittleEndian.Uint16(seg[i*2:]))
		assert.Equal(t, w, got, "sample %d", i)
	}
	assert.Empty(t, errs.warnings)
}

func TestGeneratorStopFlushesTail(t *testing.T) {
	sink := &captureSink{}
	g := newTestGenerator(sink, &sinkRecorder{})
	require.NoError(t, g.Init())

	g.Consume([]float32{0.25})
	require.Empty(t, sink.segments)

	g.Stop()
	require.Len(t, sink.segments, 1)
	assert.Len(t, sink.segments[0], 2, "tail flush carries the partial segment")
}

func TestGeneratorStopIsIdempotent(t *testing.T) {
	sink := &captureSink{}
	g := newTestGenerator(sink, &sinkRecorder{})
	require.NoError(t, g.Init())

	g.Consume([]float32{0.25})
	g.Stop()
	g.Stop()
	assert.Len(t, sink.segments, 1, "second stop must not flush again")
}

func TestGeneratorDropsSamplesWhenStopped(t *testing.T) {
	sink := &captureSink{}
	g := newTestGenerator(sink, &sinkRecorder{})
	require.NoError(t, g.Init())
	g.Stop()

	g.Consume([]float32{1, 1, 1, 1})
	assert.Empty(t, sink.segments, "stopped generator consumes nothing")
}

func TestGeneratorReinitResumesAfterStop(t *testing.T) {
	sink := &captureSink{}
	g := newTestGenerator(sink, &sinkRecorder{})
	require.NoError(t, g.Init())
	g.Stop()

	require.NoError(t, g.Init())
	g.Consume([]float32{1, 1, 1, 1})
	assert.Len(t, sink.segments, 1)
}

func TestGeneratorInitValidation(t *testing.T) {
	errs := &sinkRecorder{}

	g := NewGenerator(nil, errs, 0, 48000, 1024)
	require.Error(t, g.Init(), "nil encoder sink must fail init")

	g = NewGenerator(&captureSink{}, errs, 0, 0, 1024)
	require.Error(t, g.Init(), "invalid sample rate must fail init")
}

func TestGeneratorConsumeBeforeInitIsNoop(t *testing.T) {
	sink := &captureSink{}
	g := newTestGenerator(sink, &sinkRecorder{})

	g.Consume([]float32{1, 1, 1, 1})
	assert.Empty(t, sink.segments)
}

func TestGeneratorEncodeErrorStopsForwarding(t *testing.T) {
	sink := &captureSink{err: errors.New("uploader down")}
	errs := &sinkRecorder{}
	g := newTestGenerator(sink, errs)
	require.NoError(t, g.Init())

	// The encoder reports its own failures; the generator must not duplicate
	// them through the error sink.
	g.Consume([]float32{1, 1, 1, 1})
	assert.Empty(t, errs.failures)
	assert.Empty(t, errs.warnings)
}

// gatedSink blocks the first Encode until released, so a Stop can be raced
// against an in-flight delivery.
type gatedSink struct {
	mu      sync.Mutex
	lengths []int
	entered chan struct{}
	release chan struct{}
	gated   bool
}

func (s *gatedSink) Encode(_ int, pcm []byte) error {
	s.mu.Lock()
	first := !s.gated
	s.gated = true
	s.mu.Unlock()
	if first {
		close(s.entered)
		<-s.release
	}
	s.mu.Lock()
	s.lengths = append(s.lengths, len(pcm))
	s.mu.Unlock()
	return nil
}

func TestStopDuringDeliveryKeepsSegmentOrder(t *testing.T) {
	sink := &gatedSink{entered: make(chan struct{}), release: make(chan struct{})}
	g := NewGenerator(sink, &sinkRecorder{}, 0, 4, 2, WithSegmentDuration(time.Second))
	require.NoError(t, g.Init())

	// One full 8-byte segment plus a 2-byte tail left in the buffer.
	done := make(chan struct{})
	go func() {
		g.Consume([]float32{1, 1, 1, 1, 1})
		close(done)
	}()

	<-sink.entered
	g.Stop()
	close(sink.release)
	<-done

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Equal(t, []int{8, 2}, sink.lengths, "tail must follow the in-flight segment")
}

func TestRegistryLifecycle(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.BufferExists(0))

	require.Error(t, r.InitBuffer(0), "init of a missing buffer must fail")

	sink := &captureSink{}
	g := newTestGenerator(sink, &sinkRecorder{})
	r.SetBuffer(g, 0)
	assert.True(t, r.BufferExists(0))
	require.NoError(t, r.InitBuffer(0))

	g.Consume([]float32{0.25})
	r.StopBuffer(0)
	assert.Len(t, sink.segments, 1, "registry stop flushed the buffer")

	// Unknown channels are ignored.
	r.StopBuffer(7)
}

func TestRegistryStopAll(t *testing.T) {
	r := NewRegistry()
	sinks := make([]*captureSink, 3)
	for i := range sinks {
		sinks[i] = &captureSink{}
		g := NewGenerator(sinks[i], &sinkRecorder{}, i, 4, 2, WithSegmentDuration(time.Second))
		require.NoError(t, g.Init())
		g.Consume([]float32{0.5})
		r.SetBuffer(g, i)
	}

	r.StopAll()
	for i, s := range sinks {
		assert.Len(t, s.segments, 1, fmt.Sprintf("buffer %d flushed", i))
	}
}
