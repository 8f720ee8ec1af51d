package device

import "strings"

// BackendType identifies the device backend implementation.
type BackendType string

const (
	BackendTypePortAudio BackendType = "portaudio"
	BackendTypeAuto      BackendType = "auto"
)

// NewGateway creates a gateway using the appropriate backend for the
// configured name. PortAudio is currently the only production backend.
func NewGateway(backend string, sampleRate, bufferSize int) Gateway {
	switch determineBackend(backend) {
	case BackendTypePortAudio:
		return NewPortAudioGateway(sampleRate, bufferSize)
	default:
		return NewPortAudioGateway(sampleRate, bufferSize)
	}
}

func determineBackend(backend string) BackendType {
	switch strings.ToLower(backend) {
	case "portaudio":
		return BackendTypePortAudio
	case "auto", "":
		return BackendTypePortAudio
	}
	return BackendTypePortAudio
}

// AvailableBackends returns the device backends usable on this system.
func AvailableBackends() []BackendType {
	return []BackendType{BackendTypePortAudio}
}
