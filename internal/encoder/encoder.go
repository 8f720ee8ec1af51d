package encoder

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/audiolibrelab/livecapture/internal/metrics"
	"github.com/audiolibrelab/livecapture/internal/uploader"
)

const bitDepth = 16

// SegmentUploader is the encoder's view of the shared uploader handle.
type SegmentUploader interface {
	Upload(seg uploader.Segment) error
}

// FailureSink receives unrecoverable encoder/uploader errors. The session
// coordinator implements it.
type FailureSink interface {
	OnFailure(err error)
}

// Option configures an Encoder.
type Option func(*Encoder)

// WithSessionID stamps uploaded segments with the owning session's identifier.
func WithSessionID(id string) Option {
	return func(e *Encoder) { e.sessionID = id }
}

// Encoder wraps per-channel PCM segments into WAV and hands them to the
// uploader. It is created once per session and shared across all channels;
// only the session coordinator may stop it.
type Encoder struct {
	up         SegmentUploader
	fail       FailureSink
	sampleRate int
	sessionID  string

	mu       sync.Mutex
	channels int
	stopped  bool
	sequence map[int]uint64
}

// New creates an encoder bound to the uploader handle and failure sink.
func New(up SegmentUploader, fail FailureSink, sampleRate int, opts ...Option) *Encoder {
	e := &Encoder{
		up:         up,
		fail:       fail,
		sampleRate: sampleRate,
		sequence:   make(map[int]uint64),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetChannels reconfigures the total channel count carried by the session.
func (e *Encoder) SetChannels(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.channels = n
	slog.Debug("encoder channel count set", "channels", n)
}

// Channels reports the configured channel count.
func (e *Encoder) Channels() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.channels
}

// Encode wraps one channel's 16-bit LE PCM segment into WAV and uploads it.
// Upload failures are unrecoverable and are reported to the failure sink. A
// stopped encoder is implicitly reactivated by new channel activity.
func (e *Encoder) Encode(channel int, pcm []byte) error {
	e.mu.Lock()
	if e.stopped {
		e.stopped = false
		slog.Debug("encoder reactivated by channel activity")
	}
	seq := e.sequence[channel]
	e.sequence[channel]++
	e.mu.Unlock()

	data, err := encodeWAV(pcm, e.sampleRate)
	if err != nil {
		err = fmt.Errorf("encode channel %d segment %d: %w", channel, seq, err)
		e.fail.OnFailure(err)
		return err
	}
	metrics.SegmentsEncoded.WithLabelValues(strconv.Itoa(channel)).Inc()

	seg := uploader.Segment{
		SessionID:  e.sessionID,
		Channel:    channel,
		Sequence:   seq,
		Format:     "wav",
		SampleRate: e.sampleRate,
		Data:       data,
	}
	if err := e.up.Upload(seg); err != nil {
		e.fail.OnFailure(err)
		return err
	}
	return nil
}

// Stop idles the encoder. Teardown only, never destruction; segment sequence
// numbers survive so a resumed session keeps a monotonic stream per channel.
func (e *Encoder) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return
	}
	e.stopped = true
	slog.Debug("encoder stopped")
}

// encodeWAV wraps mono 16-bit LE PCM into a WAV container.
func encodeWAV(pcm []byte, sampleRate int) ([]byte, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("odd PCM byte length %d", len(pcm))
	}

	samples := make([]int, len(pcm)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}

	var buf writeSeekBuffer
	enc := wav.NewEncoder(&buf, sampleRate, bitDepth, 1, 1)
	if err := enc.Write(&audio.IntBuffer{
		Data:   samples,
		Format: &audio.Format{SampleRate: sampleRate, NumChannels: 1},
	}); err != nil {
		return nil, fmt.Errorf("write WAV data: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("finalize WAV: %w", err)
	}
	return buf.Bytes(), nil
}
