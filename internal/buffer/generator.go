package buffer

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/smallnest/ringbuffer"
)

const defaultSegmentDuration = 3 * time.Second

// SegmentSink receives complete per-channel PCM segments. The shared encoder
// handle implements it.
type SegmentSink interface {
	Encode(channel int, pcm []byte) error
}

// ErrorSink receives a generator's own errors. The session coordinator
// implements it; generators never report across the coordinator boundary any
// other way.
type ErrorSink interface {
	OnWarning(message string)
	OnFailure(err error)
}

// Option configures a Generator.
type Option func(*Generator)

// WithSegmentDuration overrides the accumulation window per segment.
func WithSegmentDuration(d time.Duration) Option {
	return func(g *Generator) {
		if d > 0 {
			g.segmentDuration = d
		}
	}
}

// Generator accumulates one channel's samples into encodable segments and
// forwards each complete segment to the shared encoder handle.
type Generator struct {
	sink            SegmentSink
	errs            ErrorSink
	channel         int
	sampleRate      int
	bufferSize      int
	segmentDuration time.Duration
	segmentBytes    int

	mu          sync.Mutex
	rb          *ringbuffer.RingBuffer
	initialized bool
	stopped     bool
	delivering  bool
	pendingTail []byte
}

// NewGenerator creates a segment generator for one channel, bound to the
// shared encoder handle and the coordinator's error sink.
func NewGenerator(sink SegmentSink, errs ErrorSink, channel, sampleRate, bufferSize int, opts ...Option) *Generator {
	g := &Generator{
		sink:            sink,
		errs:            errs,
		channel:         channel,
		sampleRate:      sampleRate,
		bufferSize:      bufferSize,
		segmentDuration: defaultSegmentDuration,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Init prepares the generator for sample flow. It fails if the generator was
// misconfigured; re-initializing a stopped generator resets its accumulation.
func (g *Generator) Init() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.sink == nil {
		return fmt.Errorf("channel %d: no encoder bound", g.channel)
	}
	if g.sampleRate <= 0 {
		return fmt.Errorf("channel %d: invalid sample rate %d", g.channel, g.sampleRate)
	}

	// 16-bit PCM, mono per channel.
	g.segmentBytes = int(float64(g.sampleRate)*g.segmentDuration.Seconds()) * 2
	if g.segmentBytes <= 0 {
		return fmt.Errorf("channel %d: invalid segment size", g.channel)
	}

	if g.rb == nil {
		g.rb = ringbuffer.New(g.segmentBytes * 2)
		if g.rb == nil {
			return fmt.Errorf("channel %d: ring buffer allocation failed", g.channel)
		}
	} else {
		g.rb.Reset()
	}

	g.initialized = true
	g.stopped = false
	slog.Debug("segment generator initialized", "channel", g.channel, "segment_bytes", g.segmentBytes)
	return nil
}

// Consume accepts one processing block of samples. Complete segments are
// drained and handed to the encoder; encoder failures are already reported to
// the coordinator by the encoder itself.
func (g *Generator) Consume(samples []float32) {
	g.mu.Lock()
	if !g.initialized || g.stopped {
		g.mu.Unlock()
		return
	}

	pcm := pcm16LE(samples)
	if _, err := g.rb.Write(pcm); err != nil {
		g.mu.Unlock()
		g.errs.OnWarning(fmt.Sprintf("channel %d buffer overflow, samples dropped: %v", g.channel, err))
		return
	}

	var segments [][]byte
	for g.rb.Length() >= g.segmentBytes {
		seg := make([]byte, g.segmentBytes)
		if _, err := g.rb.Read(seg); err != nil {
			g.mu.Unlock()
			g.errs.OnWarning(fmt.Sprintf("channel %d buffer drain failed: %v", g.channel, err))
			return
		}
		segments = append(segments, seg)
	}
	if len(segments) == 0 {
		g.mu.Unlock()
		return
	}
	// Deliveries run outside the lock; the flag lets a racing Stop queue its
	// tail behind the segments in flight instead of flushing it ahead of them.
	g.delivering = true
	g.mu.Unlock()

	for _, seg := range segments {
		if err := g.sink.Encode(g.channel, seg); err != nil {
			slog.Debug("segment encode rejected", "channel", g.channel, "error", err)
			break
		}
	}

	g.mu.Lock()
	g.delivering = false
	tail := g.pendingTail
	g.pendingTail = nil
	g.mu.Unlock()

	if len(tail) > 0 {
		if err := g.sink.Encode(g.channel, tail); err != nil {
			slog.Debug("final segment encode rejected", "channel", g.channel, "error", err)
		}
	}
}

// Stop flushes any partial segment and idles the generator. Idempotent; a
// later Init resumes it.
func (g *Generator) Stop() {
	g.mu.Lock()
	if g.stopped || !g.initialized {
		g.stopped = true
		g.mu.Unlock()
		return
	}
	g.stopped = true

	var tail []byte
	if n := g.rb.Length(); n > 0 {
		tail = make([]byte, n)
		if _, err := g.rb.Read(tail); err != nil {
			tail = nil
		}
	}
	if len(tail) > 0 && g.delivering {
		// A full segment is still in flight; the tail must follow it.
		g.pendingTail = tail
		g.mu.Unlock()
		return
	}
	g.mu.Unlock()

	if len(tail) > 0 {
		if err := g.sink.Encode(g.channel, tail); err != nil {
			slog.Debug("final segment encode rejected", "channel", g.channel, "error", err)
		}
	}
	slog.Debug("segment generator stopped", "channel", g.channel)
}

// pcm16LE converts float32 samples in [-1, 1] to 16-bit little-endian PCM.
func pcm16LE(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		v := int16(math.Round(float64(s) * math.MaxInt16))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}
