package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/audiolibrelab/livecapture/internal/buffer"
	"github.com/audiolibrelab/livecapture/internal/device"
	"github.com/audiolibrelab/livecapture/internal/metrics"
)

// WarningSink receives recoverable notices from the coordinator and its
// collaborators.
type WarningSink interface {
	OnWarning(message string)
}

// FailureSink receives unrecoverable failures.
type FailureSink interface {
	OnFailure(err error)
}

// AudioEngine is the coordinator's view of the audio engine.
type AudioEngine interface {
	SampleRate() int
	ProcessorBufferSize() int
	Resume()
	HandleInputStream(ctx context.Context, s device.Stream) (int, error)
	StopAll()
	SetChannelConsumer(i int, c func(samples []float32))
	MuteOutputForInput(i, o int)
	UnmuteOutputForInput(i, o int)
	RecordChannel(i int)
	StopRecordChannel(i int)
	RecordingChannelCount() int
	InputChannelCount() int
	OutputChannelCount() int
}

// BufferRegistry is the coordinator's view of the per-channel buffer registry.
type BufferRegistry interface {
	BufferExists(i int) bool
	SetBuffer(b buffer.Buffer, i int)
	InitBuffer(i int) error
	StopBuffer(i int)
	StopAll()
}

// EncoderHandle is the shared, lazily created encoder. Only the coordinator
// may stop it.
type EncoderHandle interface {
	Encode(channel int, pcm []byte) error
	SetChannels(n int)
	Stop()
}

// UploaderHandle is the shared, lazily created uploader. Only the coordinator
// may stop it.
type UploaderHandle interface {
	SetChannels(n int)
	Stop()
}

// HandleFactory builds the encoder/uploader pair exactly once per session.
// The coordinator passes itself as both sinks.
type HandleFactory func(sessionID string, sampleRate int, warn WarningSink, fail FailureSink) (EncoderHandle, UploaderHandle)

// BufferFactory builds one channel's segment buffer generator.
type BufferFactory func(enc EncoderHandle, errs buffer.ErrorSink, channel, sampleRate, bufferSize int) buffer.Buffer

// handleState tracks the shared encoder/uploader slot. The pair exists iff
// the state is not absent; it is recreated never, only stopped and implicitly
// resumed by channel activity.
type handleState int

const (
	handlesAbsent handleState = iota
	handlesActive
	handlesStopped
)

// DeviceInformation is a synchronous snapshot of the negotiated device.
type DeviceInformation struct {
	ID             string `json:"id"`
	Label          string `json:"label"`
	InputChannels  int    `json:"input_channels"`
	OutputChannels int    `json:"output_channels"`
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithBufferFactory overrides how per-channel buffers are built. Used by tests.
func WithBufferFactory(f BufferFactory) Option {
	return func(c *Coordinator) { c.newBuffer = f }
}

// Coordinator is the single authority for starting, stopping and recovering a
// capture session. It owns the resource-lifetime invariants: the
// encoder/uploader pair exists exactly once per session, per-channel buffers
// are created lazily and torn down only globally, and the shared handles stop
// exactly when the recording-active count reaches zero.
type Coordinator struct {
	id         string
	dev        device.Gateway
	eng        AudioEngine
	bufs       BufferRegistry
	warn       WarningSink
	fail       FailureSink
	newHandles HandleFactory
	newBuffer  BufferFactory

	mu      sync.Mutex
	handles handleState
	enc     EncoderHandle
	upl     UploaderHandle
}

// New creates a coordinator. The device gateway, engine and registry are
// constructed eagerly by the caller; encoder, uploader and channel buffers
// are materialized lazily on demand.
func New(dev device.Gateway, eng AudioEngine, bufs BufferRegistry, warn WarningSink, fail FailureSink, handles HandleFactory, opts ...Option) *Coordinator {
	c := &Coordinator{
		id:         uuid.NewString(),
		dev:        dev,
		eng:        eng,
		bufs:       bufs,
		warn:       warn,
		fail:       fail,
		newHandles: handles,
		newBuffer:  defaultBufferFactory,
	}
	if c.warn == nil {
		c.warn = noopSink{}
	}
	if c.fail == nil {
		c.fail = noopSink{}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func defaultBufferFactory(enc EncoderHandle, errs buffer.ErrorSink, channel, sampleRate, bufferSize int) buffer.Buffer {
	return buffer.NewGenerator(enc, errs, channel, sampleRate, bufferSize)
}

// ID returns the session identifier.
func (c *Coordinator) ID() string {
	return c.id
}

// Init resumes the audio engine and creates the encoder/uploader pair exactly
// once. Idempotent; never fails — downstream problems surface through the
// sinks when the handles are first exercised.
func (c *Coordinator) Init() {
	c.eng.Resume()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handles != handlesAbsent {
		return
	}
	c.enc, c.upl = c.newHandles(c.id, c.eng.SampleRate(), c, c)
	c.handles = handlesActive
	slog.Info("session handles created", "session", c.id, "sample_rate", c.eng.SampleRate())
}

// StartCapture acquires the device, negotiates the channel count and lazily
// materializes per-channel buffers. Returns the negotiated channel count, or
// 0 with a warning when capture could not start. Re-entrant while already
// capturing: a repeated call can grow the channel set.
func (c *Coordinator) StartCapture(ctx context.Context) int {
	c.Init()

	switch st := c.dev.CurrentStatus(); st.State {
	case device.StateStopped, device.StateNotGranted:
		// Recoverable. Reload outcome surfaces on the next status check only.
		c.dev.TryReload()
	case device.StateOK:
	default:
		c.OnWarning(fmt.Sprintf("input device unavailable: %v", st.Cause))
		return 0
	}

	stream, err := c.dev.RequestAccess(ctx)
	if err != nil || stream == nil {
		if err != nil {
			slog.Debug("device access request failed", "session", c.id, "error", err)
		}
		c.OnWarning("No stream available")
		return 0
	}

	channels, err := c.eng.HandleInputStream(ctx, stream)
	if err != nil || channels == 0 {
		if err != nil {
			slog.Debug("stream negotiation failed", "session", c.id, "error", err)
		}
		c.OnWarning("No channels available")
		return 0
	}

	c.createBuffers(channels)
	slog.Info("capture started", "session", c.id, "channels", channels)
	return channels
}

// createBuffers lazily creates a segment buffer generator for every channel
// index that has none yet, then reconfigures the encoder/uploader channel
// count — always, so repeated captures can grow the channel set.
func (c *Coordinator) createBuffers(channels int) {
	c.mu.Lock()
	enc, upl := c.enc, c.upl
	exists := c.handles != handlesAbsent
	c.mu.Unlock()

	for i := 0; i < channels; i++ {
		if !exists || c.bufs.BufferExists(i) {
			continue
		}
		b := c.newBuffer(enc, c, i, c.eng.SampleRate(), c.eng.ProcessorBufferSize())
		c.bufs.SetBuffer(b, i)
		c.eng.SetChannelConsumer(i, b.Consume)
	}

	if exists {
		enc.SetChannels(channels)
		upl.SetChannels(channels)
	}
}

// StopCapture stops all engine activity, all registered buffers and the
// device gateway. Unconditional and idempotent. The encoder/uploader handles
// are deliberately left running: they are released only when the recording
// count reaches zero, so a paused session can keep encoding buffered
// segments.
func (c *Coordinator) StopCapture() {
	c.eng.StopAll()
	c.bufs.StopAll()
	c.dev.Stop()
	slog.Info("capture stopped", "session", c.id)
}

// RecordInputChannel initializes channel i's buffer and marks it
// recording-active. A failure rolls the channel back to its stopped state and
// surfaces as a warning; one channel failing to record must not abort the
// session.
func (c *Coordinator) RecordInputChannel(i int) {
	if err := c.bufs.InitBuffer(i); err != nil {
		c.StopRecordInputChannel(i)
		c.OnWarning(fmt.Sprintf("cannot record channel %d: %v", i, err))
		return
	}
	c.eng.RecordChannel(i)

	c.mu.Lock()
	if c.handles == handlesStopped {
		c.handles = handlesActive
	}
	c.mu.Unlock()

	metrics.RecordingChannels.Set(float64(c.eng.RecordingChannelCount()))
	slog.Debug("channel recording", "session", c.id, "channel", i)
}

// StopRecordInputChannel stops channel i's buffer and clears its
// recording-active flag, unconditionally. When the last active channel stops,
// the shared encoder and uploader are stopped exactly once.
func (c *Coordinator) StopRecordInputChannel(i int) {
	c.bufs.StopBuffer(i)
	c.eng.StopRecordChannel(i)
	metrics.RecordingChannels.Set(float64(c.eng.RecordingChannelCount()))

	if c.eng.RecordingChannelCount() == 0 {
		c.stopHandles()
	}
}

// stopHandles stops the shared encoder/uploader pair once per active period.
func (c *Coordinator) stopHandles() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handles != handlesActive {
		return
	}
	c.enc.Stop()
	c.upl.Stop()
	c.handles = handlesStopped
	slog.Debug("session handles stopped", "session", c.id)
}

// MuteOutputChannelForInputChannel mutes the monitor route input→output.
// Pure pass-through; the coordinator keeps no routing state.
func (c *Coordinator) MuteOutputChannelForInputChannel(input, output int) {
	c.eng.MuteOutputForInput(input, output)
}

// UnmuteOutputChannelForInputChannel restores the monitor route input→output.
func (c *Coordinator) UnmuteOutputChannelForInputChannel(input, output int) {
	c.eng.UnmuteOutputForInput(input, output)
}

// InputDeviceInformation returns a synchronous snapshot of the device and the
// negotiated channel counts. Pure read.
func (c *Coordinator) InputDeviceInformation() DeviceInformation {
	return DeviceInformation{
		ID:             c.dev.ID(),
		Label:          c.dev.Label(),
		InputChannels:  c.eng.InputChannelCount(),
		OutputChannels: c.eng.OutputChannelCount(),
	}
}

// RecordingChannelCount reports the engine's active-recording count.
func (c *Coordinator) RecordingChannelCount() int {
	return c.eng.RecordingChannelCount()
}

// OnWarning forwards a collaborator warning to the owning context. Does not
// alter coordinator state.
func (c *Coordinator) OnWarning(message string) {
	metrics.Warnings.Inc()
	slog.Warn("session warning", "session", c.id, "message", message)
	c.warn.OnWarning(message)
}

// OnFailure handles an unrecoverable downstream failure: forward it, then
// tear down all engine activity and buffers. The shared handles stop only if
// no channel is still flagged recording; the device gateway stays up so the
// owner can decide whether to restart capture.
func (c *Coordinator) OnFailure(err error) {
	metrics.Failures.Inc()
	slog.Error("session failure", "session", c.id, "error", err)
	c.fail.OnFailure(err)

	c.eng.StopAll()
	c.bufs.StopAll()
	if c.eng.RecordingChannelCount() == 0 {
		c.stopHandles()
	}
}

type noopSink struct{}

func (noopSink) OnWarning(string) {}
func (noopSink) OnFailure(error)  {}
