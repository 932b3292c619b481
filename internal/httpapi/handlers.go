package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"wanderfield/simcore/internal/logging"
)

// ReadinessProvider exposes bridge state required for readiness checks.
type ReadinessProvider interface {
	SnapshotSessionCounts() (active, pending int)
	StartupError() error
	Uptime() time.Duration
}

// SessionStatus reports one live session's tick and delivery counters.
type SessionStatus struct {
	ID            string  `json:"id"`
	Ticks         uint64  `json:"ticks"`
	AverageTickMs float64 `json:"average_tick_ms"`
	MaxTickMs     float64 `json:"max_tick_ms"`
	TickOverruns  int     `json:"tick_overruns"`
	FramesSent    uint64  `json:"frames_sent"`
	FramesDropped uint64  `json:"frames_dropped"`
	InputDropped  uint64  `json:"input_dropped"`
}

// CaptureStatus reports capture storage usage for the status endpoint.
type CaptureStatus struct {
	Bundles   int    `json:"bundles"`
	Bytes     int64  `json:"bytes"`
	LastSweep string `json:"last_sweep,omitempty"`
}

// Status is the operational snapshot rendered by /statusz.
type Status struct {
	UptimeSeconds float64         `json:"uptime_seconds"`
	Sessions      []SessionStatus `json:"sessions"`
	Capture       *CaptureStatus  `json:"capture,omitempty"`
}

// StatusFunc assembles the current operational snapshot.
type StatusFunc func() Status

// CaptureFlusher forces buffered capture data onto disk.
type CaptureFlusher interface {
	FlushCaptures(ctx context.Context) ([]string, error)
}

// CaptureFlusherFunc adapts a function into a CaptureFlusher.
type CaptureFlusherFunc func(ctx context.Context) ([]string, error)

// FlushCaptures implements CaptureFlusher.
func (f CaptureFlusherFunc) FlushCaptures(ctx context.Context) ([]string, error) { return f(ctx) }

// RateLimiter gates how frequently sensitive operations may be invoked.
type RateLimiter interface {
	Allow() bool
}

// Options configures the HandlerSet.
type Options struct {
	Logger      *logging.Logger
	Readiness   ReadinessProvider
	Status      StatusFunc
	Capture     CaptureFlusher
	AdminToken  string
	RateLimiter RateLimiter
	TimeSource  func() time.Time
}

// HandlerSet bundles the operational handlers of the bridge.
type HandlerSet struct {
	logger      *logging.Logger
	readiness   ReadinessProvider
	status      StatusFunc
	capture     CaptureFlusher
	adminToken  string
	rateLimiter RateLimiter
	now         func() time.Time
}

// NewHandlerSet constructs a HandlerSet using the provided options.
func NewHandlerSet(opts Options) *HandlerSet {
	logger := opts.Logger
	if logger == nil {
		logger = logging.L()
	}
	now := opts.TimeSource
	if now == nil {
		now = time.Now
	}
	return &HandlerSet{
		logger:      logger,
		readiness:   opts.Readiness,
		status:      opts.Status,
		capture:     opts.Capture,
		adminToken:  strings.TrimSpace(opts.AdminToken),
		rateLimiter: opts.RateLimiter,
		now:         now,
	}
}

// Register attaches all handlers to the provided mux.
func (h *HandlerSet) Register(mux *http.ServeMux) {
	if mux == nil {
		return
	}
	mux.HandleFunc("/healthz", h.HealthHandler())
	mux.HandleFunc("/readyz", h.ReadinessHandler())
	mux.HandleFunc("/statusz", h.StatusHandler())
	mux.HandleFunc("/capture/flush", h.CaptureFlushHandler())
}

// HealthHandler reports that the HTTP server is reachable.
func (h *HandlerSet) HealthHandler() http.HandlerFunc {
	type response struct {
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, response{
			Status:    "alive",
			Timestamp: h.now().UTC().Format(time.RFC3339Nano),
		})
	}
}

// ReadinessHandler reports bridge readiness, including session counts and
// startup status.
func (h *HandlerSet) ReadinessHandler() http.HandlerFunc {
	type response struct {
		Status          string  `json:"status"`
		Message         string  `json:"message,omitempty"`
		UptimeSeconds   float64 `json:"uptime_seconds"`
		Sessions        int     `json:"sessions"`
		PendingSessions int     `json:"pending_sessions"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		resp := response{Status: "ok"}
		if h.readiness != nil {
			active, pending := h.readiness.SnapshotSessionCounts()
			resp.Sessions = active
			resp.PendingSessions = pending
			resp.UptimeSeconds = h.readiness.Uptime().Seconds()
			if err := h.readiness.StartupError(); err != nil {
				status = http.StatusServiceUnavailable
				resp.Status = "error"
				resp.Message = err.Error()
			}
		}
		writeJSON(w, status, resp)
	}
}

// StatusHandler renders the per-session tick and delivery counters as JSON.
func (h *HandlerSet) StatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var status Status
		if h.status != nil {
			status = h.status()
		}
		if status.UptimeSeconds == 0 && h.readiness != nil {
			status.UptimeSeconds = h.readiness.Uptime().Seconds()
		}
		if status.Sessions == nil {
			//1.- An empty list reads better than null in the rendered document.
			status.Sessions = []SessionStatus{}
		}
		writeJSON(w, http.StatusOK, status)
	}
}

// CaptureFlushHandler authorises and triggers an on-demand capture flush.
func (h *HandlerSet) CaptureFlushHandler() http.HandlerFunc {
	type response struct {
		Status  string   `json:"status"`
		Bundles []string `json:"bundles,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := h.logger.With(
			logging.String("handler", "capture_flush"),
			logging.String("remote_addr", r.RemoteAddr),
		)
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if h.adminToken == "" {
			reqLogger.Warn("capture flush denied: admin auth disabled")
			http.Error(w, "admin authentication not configured", http.StatusForbidden)
			return
		}
		if !h.authorise(r) {
			reqLogger.Warn("capture flush denied: unauthorized request")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if h.rateLimiter != nil && !h.rateLimiter.Allow() {
			reqLogger.Warn("capture flush denied: rate limit exceeded")
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		if h.capture == nil {
			reqLogger.Warn("capture flush denied: capture disabled")
			http.Error(w, "capture is unavailable", http.StatusServiceUnavailable)
			return
		}
		bundles, err := h.capture.FlushCaptures(r.Context())
		if err != nil {
			reqLogger.Error("capture flush failed", logging.Error(err))
			http.Error(w, "failed to flush captures", http.StatusInternalServerError)
			return
		}
		reqLogger.Info("capture flush triggered", logging.Int("bundles", len(bundles)))
		writeJSON(w, http.StatusAccepted, response{Status: "accepted", Bundles: bundles})
	}
}

func (h *HandlerSet) authorise(r *http.Request) bool {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	var token string
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		token = strings.TrimSpace(header[7:])
	} else if header != "" {
		token = header
	}
	if token == "" {
		token = strings.TrimSpace(r.Header.Get("X-Admin-Token"))
	}
	if token == "" {
		token = strings.TrimSpace(r.URL.Query().Get("token"))
	}
	if token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.adminToken)) == 1
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}
