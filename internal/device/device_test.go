package device

import "testing"

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateOK, "ok"},
		{StateStopped, "stopped"},
		{StateNotGranted, "not-granted"},
		{StateError, "error"},
		{State(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestDetermineBackend(t *testing.T) {
	tests := []struct {
		name string
		want BackendType
	}{
		{"portaudio", BackendTypePortAudio},
		{"PortAudio", BackendTypePortAudio},
		{"auto", BackendTypePortAudio},
		{"", BackendTypePortAudio},
		{"bogus", BackendTypePortAudio},
	}
	for _, tt := range tests {
		if got := determineBackend(tt.name); got != tt.want {
			t.Errorf("determineBackend(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestAvailableBackends(t *testing.T) {
	backends := AvailableBackends()
	if len(backends) == 0 {
		t.Fatal("expected at least one backend")
	}
	if backends[0] != BackendTypePortAudio {
		t.Errorf("expected portaudio backend, got %q", backends[0])
	}
}
