package engine

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"
)

// scriptedStream replays fixed interleaved blocks, then reports EOF.
type scriptedStream struct {
	mu       sync.Mutex
	channels int
	blocks   [][]float32
	closed   bool
}

func (s *scriptedStream) Channels() int { return s.channels }

func (s *scriptedStream) Read(p []float32) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || len(s.blocks) == 0 {
		return 0, io.EOF
	}
	block := s.blocks[0]
	s.blocks = s.blocks[1:]
	return copy(p, block), nil
}

func (s *scriptedStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func collectChannel(e *Engine, ch int) (<-chan []float32, func()) {
	out := make(chan []float32, 16)
	e.SetChannelConsumer(ch, func(samples []float32) {
		cp := make([]float32, len(samples))
		copy(cp, samples)
		out <- cp
	})
	return out, func() { e.SetChannelConsumer(ch, nil) }
}

func waitSamples(t *testing.T, out <-chan []float32) []float32 {
	t.Helper()
	select {
	case s := <-out:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for samples")
		return nil
	}
}

func TestHandleInputStreamNegotiatesChannels(t *testing.T) {
	e := New(48000, 4, 2)
	s := &scriptedStream{channels: 3}

	n, err := e.HandleInputStream(context.Background(), s)
	if err != nil {
		t.Fatalf("HandleInputStream failed: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 channels, got %d", n)
	}
	if e.InputChannelCount() != 3 {
		t.Errorf("expected input channel count 3, got %d", e.InputChannelCount())
	}
	e.StopAll()
}

func TestHandleInputStreamZeroChannels(t *testing.T) {
	e := New(48000, 4, 2)
	n, err := e.HandleInputStream(context.Background(), &scriptedStream{channels: 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 channels, got %d", n)
	}
}

func TestHandleInputStreamClosesPreviousStream(t *testing.T) {
	e := New(48000, 4, 2)

	s1 := &scriptedStream{channels: 2}
	if _, err := e.HandleInputStream(context.Background(), s1); err != nil {
		t.Fatalf("HandleInputStream failed: %v", err)
	}

	s2 := &scriptedStream{channels: 4}
	if _, err := e.HandleInputStream(context.Background(), s2); err != nil {
		t.Fatalf("HandleInputStream failed: %v", err)
	}
	defer e.StopAll()

	s1.mu.Lock()
	closed := s1.closed
	s1.mu.Unlock()
	if !closed {
		t.Error("previous stream must be closed when a new stream is adopted")
	}
	if e.InputChannelCount() != 4 {
		t.Errorf("expected input channel count 4, got %d", e.InputChannelCount())
	}
}

func TestPumpDeinterleavesPerChannel(t *testing.T) {
	e := New(48000, 2, 2)
	e.Resume()

	left, stopLeft := collectChannel(e, 0)
	defer stopLeft()
	right, stopRight := collectChannel(e, 1)
	defer stopRight()
	e.RecordChannel(0)
	e.RecordChannel(1)

	// Two frames per block: [L0 R0 L1 R1].
	s := &scriptedStream{channels: 2, blocks: [][]float32{{0.1, 0.2, 0.3, 0.4}}}
	if _, err := e.HandleInputStream(context.Background(), s); err != nil {
		t.Fatalf("HandleInputStream failed: %v", err)
	}
	defer e.StopAll()

	gotLeft := waitSamples(t, left)
	gotRight := waitSamples(t, right)

	wantLeft := []float32{0.1, 0.3}
	wantRight := []float32{0.2, 0.4}
	for i := range wantLeft {
		if gotLeft[i] != wantLeft[i] {
			t.Errorf("left[%d] = %v, want %v", i, gotLeft[i], wantLeft[i])
		}
		if gotRight[i] != wantRight[i] {
			t.Errorf("right[%d] = %v, want %v", i, gotRight[i], wantRight[i])
		}
	}
}

func TestPumpSkipsNonRecordingChannels(t *testing.T) {
	e := New(48000, 2, 2)
	e.Resume()

	out, stop := collectChannel(e, 1)
	defer stop()
	e.RecordChannel(0) // channel 1 not recording

	s := &scriptedStream{channels: 2, blocks: [][]float32{{1, 1, 1, 1}}}
	if _, err := e.HandleInputStream(context.Background(), s); err != nil {
		t.Fatalf("HandleInputStream failed: %v", err)
	}
	defer e.StopAll()

	select {
	case <-out:
		t.Error("received samples for a channel that is not recording")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestStopAllPreservesRecordingFlags(t *testing.T) {
	e := New(48000, 4, 2)
	e.Resume()
	e.RecordChannel(0)
	e.RecordChannel(2)

	if _, err := e.HandleInputStream(context.Background(), &scriptedStream{channels: 3}); err != nil {
		t.Fatalf("HandleInputStream failed: %v", err)
	}
	e.StopAll()

	if got := e.RecordingChannelCount(); got != 2 {
		t.Errorf("recording count after StopAll = %d, want 2 (flags must survive teardown)", got)
	}

	e.StopRecordChannel(0)
	e.StopRecordChannel(2)
	if got := e.RecordingChannelCount(); got != 0 {
		t.Errorf("recording count = %d, want 0", got)
	}
}

func TestStopRecordChannelIsIdempotent(t *testing.T) {
	e := New(48000, 4, 2)
	e.RecordChannel(1)
	e.StopRecordChannel(1)
	e.StopRecordChannel(1)
	if got := e.RecordingChannelCount(); got != 0 {
		t.Errorf("recording count = %d, want 0", got)
	}
}

func TestMuteRouting(t *testing.T) {
	e := New(48000, 4, 2)

	e.MuteOutputForInput(0, 1)
	if !e.OutputMutedForInput(0, 1) {
		t.Error("route 0→1 should be muted")
	}
	if e.OutputMutedForInput(1, 0) {
		t.Error("route 1→0 should not be muted")
	}

	e.UnmuteOutputForInput(0, 1)
	if e.OutputMutedForInput(0, 1) {
		t.Error("route 0→1 should be unmuted")
	}
}
