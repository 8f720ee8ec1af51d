package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/audiolibrelab/livecapture/internal/buffer"
	"github.com/audiolibrelab/livecapture/internal/config"
	"github.com/audiolibrelab/livecapture/internal/device"
	"github.com/audiolibrelab/livecapture/internal/encoder"
	"github.com/audiolibrelab/livecapture/internal/engine"
	"github.com/audiolibrelab/livecapture/internal/session"
	"github.com/audiolibrelab/livecapture/internal/uploader"
)

// newCoordinator assembles a session coordinator from the resolved config.
func newCoordinator(cfg *config.Config, warn session.WarningSink, fail session.FailureSink) (*session.Coordinator, error) {
	gw := device.NewGateway(cfg.Audio.Backend, cfg.Audio.SampleRate, cfg.Audio.BufferSize)
	eng := engine.New(cfg.Audio.SampleRate, cfg.Audio.BufferSize, cfg.Audio.OutputChannels)
	reg := buffer.NewRegistry()

	var transport uploader.Transport
	switch cfg.Uploader.Transport {
	case "nats":
		t, err := uploader.NewNATSTransport(cfg.Uploader.NATSURL, cfg.Uploader.Subject)
		if err != nil {
			return nil, fmt.Errorf("failed to create NATS transport: %w", err)
		}
		transport = t
	case "http":
		transport = uploader.NewHTTPTransport(cfg.Uploader.Endpoint)
	default:
		return nil, fmt.Errorf("unsupported uploader transport %q", cfg.Uploader.Transport)
	}

	segmentDuration := time.Duration(cfg.Encoder.SegmentSeconds) * time.Second

	handles := func(sessionID string, sampleRate int, w session.WarningSink, f session.FailureSink) (session.EncoderHandle, session.UploaderHandle) {
		up := uploader.New(transport, w, cfg.Uploader.RetryInterval)
		enc := encoder.New(up, f, sampleRate, encoder.WithSessionID(sessionID))
		return enc, up
	}

	buffers := func(enc session.EncoderHandle, errs buffer.ErrorSink, channel, sampleRate, bufferSize int) buffer.Buffer {
		return buffer.NewGenerator(enc, errs, channel, sampleRate, bufferSize, buffer.WithSegmentDuration(segmentDuration))
	}

	return session.New(gw, eng, reg, warn, fail, handles, session.WithBufferFactory(buffers)), nil
}

// logSink surfaces session notices on the CLI via slog.
type logSink struct{}

func (logSink) OnWarning(message string) {
	slog.Warn("session warning", "message", message)
}

func (logSink) OnFailure(err error) {
	slog.Error("session failure", "error", err)
}
