package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/audiolibrelab/livecapture/internal/config"
	"github.com/audiolibrelab/livecapture/internal/session"
)

// Controller is the server's view of the session coordinator.
type Controller interface {
	ID() string
	Init()
	StartCapture(ctx context.Context) int
	StopCapture()
	RecordInputChannel(i int)
	StopRecordInputChannel(i int)
	MuteOutputChannelForInputChannel(input, output int)
	UnmuteOutputChannelForInputChannel(input, output int)
	InputDeviceInformation() session.DeviceInformation
	RecordingChannelCount() int
}

// Notices collects coordinator warnings and failures for status reporting.
// It implements the coordinator's sink interfaces.
type Notices struct {
	mu          sync.RWMutex
	lastWarning string
	lastFailure string
	warnedAt    time.Time
	failedAt    time.Time
}

func (n *Notices) OnWarning(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.lastWarning = message
	n.warnedAt = time.Now()
}

func (n *Notices) OnFailure(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.lastFailure = err.Error()
	n.failedAt = time.Now()
}

// LastWarning returns the most recent warning message, if any.
func (n *Notices) LastWarning() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.lastWarning
}

// LastFailure returns the most recent failure message, if any.
func (n *Notices) LastFailure() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.lastFailure
}

// Clear drops collected notices. Called when a new capture attempt starts.
func (n *Notices) Clear() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.lastWarning = ""
	n.lastFailure = ""
}

// Server is the HTTP control plane for a capture session.
type Server struct {
	coord   Controller
	notices *Notices
	cfg     *config.Config
	port    string
}

// StatusResponse is the JSON payload of the status endpoint.
type StatusResponse struct {
	Session           string                    `json:"session"`
	RecordingChannels int                       `json:"recording_channels"`
	Device            session.DeviceInformation `json:"device"`
	LastWarning       string                    `json:"last_warning,omitempty"`
	LastFailure       string                    `json:"last_failure,omitempty"`
}

// StartResponse is the JSON payload of the capture start endpoint.
type StartResponse struct {
	Channels int    `json:"channels"`
	Warning  string `json:"warning,omitempty"`
}

// New creates a control server for an assembled coordinator.
func New(coord Controller, notices *Notices, cfg *config.Config, port string) *Server {
	if port == "" {
		port = cfg.Server.Port
	}
	return &Server{coord: coord, notices: notices, cfg: cfg, port: port}
}

// Start runs the HTTP server. Blocks until the listener fails.
func (s *Server) Start() error {
	slog.Info("control server listening", "port", s.port, "session", s.coord.ID())
	return http.ListenAndServe(":"+s.port, s.Handler())
}

// Handler builds the route table. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/capture/start", s.handleCaptureStart)
	mux.HandleFunc("POST /api/capture/stop", s.handleCaptureStop)
	mux.HandleFunc("POST /api/channels/{channel}/record", s.channelAction(s.coord.RecordInputChannel))
	mux.HandleFunc("POST /api/channels/{channel}/stop", s.channelAction(s.coord.StopRecordInputChannel))
	mux.HandleFunc("POST /api/channels/{channel}/mute", s.routeAction(s.coord.MuteOutputChannelForInputChannel))
	mux.HandleFunc("POST /api/channels/{channel}/unmute", s.routeAction(s.coord.UnmuteOutputChannelForInputChannel))
	mux.HandleFunc("GET /api/device", s.handleDevice)
	mux.Handle("GET /metrics", promhttp.Handler())

	return mux
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		Session:           s.coord.ID(),
		RecordingChannels: s.coord.RecordingChannelCount(),
		Device:            s.coord.InputDeviceInformation(),
		LastWarning:       s.notices.LastWarning(),
		LastFailure:       s.notices.LastFailure(),
	})
}

func (s *Server) handleCaptureStart(w http.ResponseWriter, r *http.Request) {
	s.notices.Clear()
	channels := s.coord.StartCapture(r.Context())
	resp := StartResponse{Channels: channels}
	status := http.StatusOK
	if channels == 0 {
		resp.Warning = s.notices.LastWarning()
		status = http.StatusConflict
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleCaptureStop(w http.ResponseWriter, r *http.Request) {
	s.coord.StopCapture()
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func (s *Server) handleDevice(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.coord.InputDeviceInformation())
}

// channelAction adapts a single-channel coordinator method to a handler.
func (s *Server) channelAction(action func(int)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ch, err := strconv.Atoi(r.PathValue("channel"))
		if err != nil || ch < 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid channel %q", r.PathValue("channel")))
			return
		}
		action(ch)
		writeJSON(w, http.StatusOK, map[string]any{
			"channel":            ch,
			"recording_channels": s.coord.RecordingChannelCount(),
			"warning":            s.notices.LastWarning(),
		})
	}
}

// routeAction adapts a mute/unmute method; the output channel comes from the
// query string and defaults to 0.
func (s *Server) routeAction(action func(input, output int)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in, err := strconv.Atoi(r.PathValue("channel"))
		if err != nil || in < 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid channel %q", r.PathValue("channel")))
			return
		}
		out := 0
		if q := r.URL.Query().Get("output"); q != "" {
			out, err = strconv.Atoi(q)
			if err != nil || out < 0 {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid output channel %q", q))
				return
			}
		}
		action(in, out)
		writeJSON(w, http.StatusOK, map[string]int{"input": in, "output": out})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
