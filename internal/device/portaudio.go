package device

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// PortAudioGateway implements Gateway on top of the PortAudio library.
type PortAudioGateway struct {
	sampleRate int
	bufferSize int

	mu          sync.Mutex
	initialized bool
	status      Status
	stream      *paStream
	info        *portaudio.DeviceInfo
}

// NewPortAudioGateway creates a gateway for the host's default input device.
func NewPortAudioGateway(sampleRate, bufferSize int) *PortAudioGateway {
	return &PortAudioGateway{
		sampleRate: sampleRate,
		bufferSize: bufferSize,
		status:     Status{State: StateStopped},
	}
}

// CurrentStatus reports the device condition.
func (g *PortAudioGateway) CurrentStatus() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.status
}

// TryReload re-initializes the PortAudio subsystem. The result is reflected in
// the status read by the next CurrentStatus call.
func (g *PortAudioGateway) TryReload() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.initialized {
		if err := portaudio.Terminate(); err != nil {
			slog.Debug("portaudio terminate during reload failed", "error", err)
		}
		g.initialized = false
	}

	if err := portaudio.Initialize(); err != nil {
		g.status = Status{State: StateError, Cause: fmt.Errorf("portaudio initialize: %w", err)}
		return
	}
	g.initialized = true

	info, err := portaudio.DefaultInputDevice()
	if err != nil {
		g.status = Status{State: StateNotGranted, Cause: err}
		return
	}

	g.info = info
	g.status = Status{State: StateOK}
	slog.Debug("input device reloaded", "device", info.Name, "max_input_channels", info.MaxInputChannels)
}

// RequestAccess opens and starts the input stream on the default device.
func (g *PortAudioGateway) RequestAccess(ctx context.Context) (Stream, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !g.initialized {
		if err := portaudio.Initialize(); err != nil {
			g.status = Status{State: StateError, Cause: err}
			return nil, fmt.Errorf("portaudio initialize: %w", err)
		}
		g.initialized = true
	}

	if g.info == nil {
		info, err := portaudio.DefaultInputDevice()
		if err != nil {
			g.status = Status{State: StateNotGranted, Cause: err}
			return nil, fmt.Errorf("no default input device: %w", err)
		}
		g.info = info
	}

	channels := g.info.MaxInputChannels
	if channels < 1 {
		g.status = Status{State: StateError, Cause: fmt.Errorf("device %q has no input channels", g.info.Name)}
		return nil, nil
	}

	// A repeated access request supersedes the previous stream; release the
	// hardware handle before opening the new one.
	if g.stream != nil {
		if err := g.stream.Close(); err != nil {
			slog.Debug("previous input stream close failed", "error", err)
		}
		g.stream = nil
	}

	buf := make([]float32, g.bufferSize*channels)
	raw, err := portaudio.OpenDefaultStream(channels, 0, float64(g.sampleRate), g.bufferSize, buf)
	if err != nil {
		g.status = Status{State: StateError, Cause: err}
		return nil, fmt.Errorf("open input stream: %w", err)
	}
	if err := raw.Start(); err != nil {
		raw.Close()
		g.status = Status{State: StateError, Cause: err}
		return nil, fmt.Errorf("start input stream: %w", err)
	}

	g.stream = &paStream{stream: raw, buf: buf, channels: channels}
	g.status = Status{State: StateOK}
	slog.Info("input stream acquired", "device", g.info.Name, "channels", channels, "sample_rate", g.sampleRate)

	return g.stream, nil
}

// Stop releases the stream handle and marks the device stopped.
func (g *PortAudioGateway) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.stream != nil {
		if err := g.stream.Close(); err != nil {
			slog.Debug("input stream close failed", "error", err)
		}
		g.stream = nil
	}
	g.status = Status{State: StateStopped}
}

// ID returns a stable identifier for the device.
func (g *PortAudioGateway) ID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.info == nil {
		return ""
	}
	if g.info.HostApi != nil {
		return fmt.Sprintf("%s/%s", g.info.HostApi.Name, g.info.Name)
	}
	return g.info.Name
}

// Label returns the human readable device name.
func (g *PortAudioGateway) Label() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.info == nil {
		return ""
	}
	return g.info.Name
}

// paStream adapts a blocking-mode PortAudio stream to the Stream interface.
type paStream struct {
	stream   *portaudio.Stream
	buf      []float32
	channels int

	mu     sync.Mutex
	closed bool
}

func (s *paStream) Channels() int {
	return s.channels
}

func (s *paStream) Read(p []float32) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, fmt.Errorf("stream closed")
	}
	if err := s.stream.Read(); err != nil {
		return 0, fmt.Errorf("read input stream: %w", err)
	}
	n := copy(p, s.buf)
	return n, nil
}

func (s *paStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.stream.Stop(); err != nil {
		slog.Debug("input stream stop failed", "error", err)
	}
	return s.stream.Close()
}

// ListInputDevices enumerates input-capable devices known to PortAudio.
func ListInputDevices() ([]*portaudio.DeviceInfo, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio initialize: %w", err)
	}
	defer portaudio.Terminate() //nolint:errcheck // enumeration only

	all, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}

	var inputs []*portaudio.DeviceInfo
	for _, d := range all {
		if d.MaxInputChannels > 0 {
			inputs = append(inputs, d)
		}
	}
	return inputs, nil
}
