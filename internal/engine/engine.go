package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/audiolibrelab/livecapture/internal/device"
)

// Consumer receives one channel's worth of samples from the engine pump.
type Consumer = func(samples []float32)

// Engine turns a raw interleaved input stream into per-channel sample flow.
// It owns mute routing and the per-channel recording-active flags; the
// recording count is the session coordinator's teardown trigger.
type Engine struct {
	sampleRate     int
	bufferSize     int
	outputChannels int

	mu            sync.Mutex
	running       bool
	stream        device.Stream
	inputChannels int
	recording     map[int]bool
	muted         map[route]bool
	consumers     map[int]Consumer
	pumpStop      chan struct{}
	pumpDone      chan struct{}
}

type route struct {
	input  int
	output int
}

// New creates an engine for the given sample rate and processor buffer size.
func New(sampleRate, bufferSize, outputChannels int) *Engine {
	return &Engine{
		sampleRate:     sampleRate,
		bufferSize:     bufferSize,
		outputChannels: outputChannels,
		recording:      make(map[int]bool),
		muted:          make(map[route]bool),
		consumers:      make(map[int]Consumer),
	}
}

func (e *Engine) SampleRate() int          { return e.sampleRate }
func (e *Engine) ProcessorBufferSize() int { return e.bufferSize }

// Resume starts the engine. No-op if already running.
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return
	}
	e.running = true
	slog.Debug("audio engine resumed")
}

// HandleInputStream adopts the stream and negotiates the channel count.
// A previously adopted stream is released first, so repeated capture starts
// always pump from the newest stream.
func (e *Engine) HandleInputStream(ctx context.Context, s device.Stream) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil {
		return 0, fmt.Errorf("nil input stream")
	}

	channels := s.Channels()
	if channels <= 0 {
		return 0, nil
	}

	e.mu.Lock()
	e.stopPumpLocked()
	prev := e.stream
	e.stream = s
	e.inputChannels = channels
	e.pumpStop = make(chan struct{})
	e.pumpDone = make(chan struct{})
	go e.pump(s, channels, e.pumpStop, e.pumpDone)
	e.mu.Unlock()

	if prev != nil {
		if err := prev.Close(); err != nil {
			slog.Debug("previous input stream close failed", "error", err)
		}
	}

	slog.Debug("input stream adopted", "channels", channels)
	return channels, nil
}

// pump reads interleaved frames and fans samples out to per-channel consumers.
func (e *Engine) pump(s device.Stream, channels int, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	interleaved := make([]float32, e.bufferSize*channels)
	deinterleaved := make([][]float32, channels)
	for i := range deinterleaved {
		deinterleaved[i] = make([]float32, e.bufferSize)
	}

	for {
		select {
		case <-stop:
			return
		default:
		}

		n, err := s.Read(interleaved)
		if err != nil {
			select {
			case <-stop:
				// Stop raced with a blocking read; the error is expected.
			default:
				if errors.Is(err, io.EOF) {
					slog.Debug("input stream ended")
				} else {
					slog.Warn("input stream read failed, pump exiting", "error", err)
				}
			}
			return
		}

		frames := n / channels
		for ch := 0; ch < channels; ch++ {
			for f := 0; f < frames; f++ {
				deinterleaved[ch][f] = interleaved[f*channels+ch]
			}
		}

		e.mu.Lock()
		running := e.running
		targets := make(map[int]Consumer, channels)
		for ch := 0; ch < channels; ch++ {
			if e.recording[ch] && e.consumers[ch] != nil {
				targets[ch] = e.consumers[ch]
			}
		}
		e.mu.Unlock()

		if !running {
			continue
		}
		for ch, consume := range targets {
			consume(deinterleaved[ch][:frames])
		}
	}
}

// StopAll stops the pump and releases the stream. Recording-active flags are
// deliberately left intact: the recording count keeps gating the shared
// encoder/uploader teardown until channels are stopped individually.
func (e *Engine) StopAll() {
	e.mu.Lock()
	e.stopPumpLocked()
	stream := e.stream
	e.stream = nil
	e.mu.Unlock()

	if stream != nil {
		if err := stream.Close(); err != nil {
			slog.Debug("input stream close failed", "error", err)
		}
	}
	slog.Debug("audio engine stopped")
}

func (e *Engine) stopPumpLocked() {
	if e.pumpStop != nil {
		close(e.pumpStop)
		e.pumpStop = nil
		e.pumpDone = nil
	}
}

// SetChannelConsumer registers the per-channel sample consumer. A nil
// consumer detaches the channel.
func (e *Engine) SetChannelConsumer(i int, c Consumer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if c == nil {
		delete(e.consumers, i)
		return
	}
	e.consumers[i] = c
}

// RecordChannel marks channel i recording-active.
func (e *Engine) RecordChannel(i int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recording[i] = true
}

// StopRecordChannel clears channel i's recording-active flag. Idempotent.
func (e *Engine) StopRecordChannel(i int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.recording, i)
}

// RecordingChannelCount reports the number of recording-active channels.
func (e *Engine) RecordingChannelCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.recording)
}

// MuteOutputForInput mutes the monitor route from input channel i to output
// channel o in the routing table.
func (e *Engine) MuteOutputForInput(i, o int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.muted[route{input: i, output: o}] = true
}

// UnmuteOutputForInput restores the monitor route from input i to output o.
func (e *Engine) UnmuteOutputForInput(i, o int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.muted, route{input: i, output: o})
}

// OutputMutedForInput reports whether the input→output monitor route is muted.
func (e *Engine) OutputMutedForInput(i, o int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.muted[route{input: i, output: o}]
}

// InputChannelCount reports the negotiated input channel count.
func (e *Engine) InputChannelCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inputChannels
}

// OutputChannelCount reports the configured monitor output channel count.
func (e *Engine) OutputChannelCount() int {
	return e.outputChannels
}
