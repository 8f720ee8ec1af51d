package device

import "context"

// State classifies the health of the input device.
type State int

const (
	// StateOK means the device is healthy and ready for access requests.
	StateOK State = iota
	// StateStopped means the device was stopped and needs a reload before use.
	StateStopped
	// StateNotGranted means permission to the device was lost or never granted.
	StateNotGranted
	// StateError covers any other device condition; Status.Cause carries the detail.
	StateError
)

func (s State) String() string {
	switch s {
	case StateOK:
		return "ok"
	case StateStopped:
		return "stopped"
	case StateNotGranted:
		return "not-granted"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Status is a snapshot of the device condition. Cause is set only for StateError
// and is forwarded verbatim to the session's warning sink.
type Status struct {
	State State
	Cause error
}

// Stream is a live input sample source. Read fills the given slice with
// interleaved float32 samples and returns the number of samples written.
type Stream interface {
	Channels() int
	Read(p []float32) (int, error)
	Close() error
}

// Gateway owns device acquisition, permission state and the stream handle.
// The session coordinator is its only consumer.
type Gateway interface {
	// CurrentStatus reports the device condition without side effects.
	CurrentStatus() Status

	// TryReload attempts to recover a stopped or not-granted device. Success or
	// failure surfaces only on the next CurrentStatus call, never synchronously.
	TryReload()

	// RequestAccess acquires the input stream. May block on host-mediated,
	// potentially user-gated negotiation. A nil stream means no device access.
	RequestAccess(ctx context.Context) (Stream, error)

	// Stop releases the stream. The gateway can be reloaded and reused afterwards.
	Stop()

	ID() string
	Label() string
}
