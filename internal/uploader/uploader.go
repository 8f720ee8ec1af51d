package uploader

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/audiolibrelab/livecapture/internal/metrics"
)

const (
	defaultMaxAttempts = 3

	// defaultSendTimeout bounds a single transport send. Deliberately
	// independent of the retry interval: the back-off between attempts must
	// not cap how long one attempt may take.
	defaultSendTimeout = 30 * time.Second
)

// Segment is one encoded audio segment ready for upload.
type Segment struct {
	SessionID  string `json:"session_id"`
	Channel    int    `json:"channel"`
	Sequence   uint64 `json:"sequence"`
	Format     string `json:"format"`
	SampleRate int    `json:"sample_rate"`
	Data       []byte `json:"data"`
}

// WarningSink receives non-fatal upload notices. The session coordinator
// implements it.
type WarningSink interface {
	OnWarning(message string)
}

// Transport sends one segment to the remote collector.
type Transport interface {
	Send(ctx context.Context, seg Segment) error
	Close() error
}

// Uploader delivers encoded segments over a transport, retrying transient
// failures at the configured interval. It is shared across all channels; only
// the session coordinator may stop it.
type Uploader struct {
	transport     Transport
	warn          WarningSink
	retryInterval time.Duration
	sendTimeout   time.Duration
	maxAttempts   int

	mu       sync.Mutex
	channels int
	stopped  bool
}

// New creates an uploader over the given transport.
func New(t Transport, warn WarningSink, retryInterval time.Duration) *Uploader {
	if retryInterval <= 0 {
		retryInterval = time.Second
	}
	return &Uploader{
		transport:     t,
		warn:          warn,
		retryInterval: retryInterval,
		sendTimeout:   defaultSendTimeout,
		maxAttempts:   defaultMaxAttempts,
	}
}

// SetChannels reconfigures the total channel count carried by the session.
func (u *Uploader) SetChannels(n int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.channels = n
	slog.Debug("uploader channel count set", "channels", n)
}

// Channels reports the configured channel count.
func (u *Uploader) Channels() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.channels
}

// Upload sends one segment, retrying transient failures. A stopped uploader
// is implicitly reactivated by new channel activity; there is no explicit
// restart path separate from the session.
func (u *Uploader) Upload(seg Segment) error {
	u.mu.Lock()
	if u.stopped {
		u.stopped = false
		slog.Debug("uploader reactivated by channel activity")
	}
	u.mu.Unlock()

	var lastErr error
	for attempt := 1; attempt <= u.maxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), u.sendTimeout)
		err := u.transport.Send(ctx, seg)
		cancel()
		if err == nil {
			metrics.SegmentsUploaded.Inc()
			return nil
		}
		lastErr = err

		if attempt < u.maxAttempts {
			metrics.UploadRetries.Inc()
			if u.warn != nil {
				u.warn.OnWarning(fmt.Sprintf("upload of channel %d segment %d failed (attempt %d/%d): %v",
					seg.Channel, seg.Sequence, attempt, u.maxAttempts, err))
			}
			time.Sleep(u.retryInterval)
		}
	}
	return fmt.Errorf("upload of channel %d segment %d failed after %d attempts: %w",
		seg.Channel, seg.Sequence, u.maxAttempts, lastErr)
}

// Stop idles the uploader. Teardown only; the transport stays usable so the
// session can resume without reconstruction.
func (u *Uploader) Stop() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.stopped {
		return
	}
	u.stopped = true
	slog.Debug("uploader stopped")
}

// Close releases the transport. Called once, when the session itself is done.
func (u *Uploader) Close() error {
	return u.transport.Close()
}
