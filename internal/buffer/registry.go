package buffer

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Buffer is the registry's view of a per-channel segment generator.
type Buffer interface {
	Init() error
	Stop()
	Consume(samples []float32)
}

// Registry owns per-channel buffer lifecycle: existence, init and stop.
// Buffers are created at most once per capture session and removed only via
// global teardown by the coordinator.
type Registry struct {
	mu      sync.Mutex
	buffers map[int]Buffer
}

// NewRegistry creates an empty buffer registry.
func NewRegistry() *Registry {
	return &Registry{buffers: make(map[int]Buffer)}
}

// BufferExists reports whether channel i has a registered buffer.
func (r *Registry) BufferExists(i int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.buffers[i]
	return ok
}

// SetBuffer registers the buffer for channel i.
func (r *Registry) SetBuffer(b Buffer, i int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buffers[i] = b
	slog.Debug("channel buffer registered", "channel", i)
}

// InitBuffer initializes channel i's buffer. Fails if no buffer was created
// for that channel or the buffer itself is misconfigured.
func (r *Registry) InitBuffer(i int) error {
	r.mu.Lock()
	b, ok := r.buffers[i]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("no buffer for channel %d", i)
	}
	return b.Init()
}

// StopBuffer stops channel i's buffer. No-op for unknown channels.
func (r *Registry) StopBuffer(i int) {
	r.mu.Lock()
	b, ok := r.buffers[i]
	r.mu.Unlock()
	if ok {
		b.Stop()
	}
}

// StopAll stops every registered buffer in channel order.
func (r *Registry) StopAll() {
	r.mu.Lock()
	channels := make([]int, 0, len(r.buffers))
	for i := range r.buffers {
		channels = append(channels, i)
	}
	sort.Ints(channels)
	buffers := make([]Buffer, len(channels))
	for idx, i := range channels {
		buffers[idx] = r.buffers[i]
	}
	r.mu.Unlock()

	for _, b := range buffers {
		b.Stop()
	}
}
