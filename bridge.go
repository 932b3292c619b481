package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"wanderfield/simcore/internal/capture"
	"wanderfield/simcore/internal/config"
	"wanderfield/simcore/internal/httpapi"
	"wanderfield/simcore/internal/input"
	"wanderfield/simcore/internal/logging"
	"wanderfield/simcore/internal/networking"
	"wanderfield/simcore/internal/simulation"
	"wanderfield/simcore/internal/world"
)

const (
	// viewerSubscriber names the event stream subscription feeding the socket.
	viewerSubscriber = "viewer"
	// sendQueueDepth bounds how many encoded messages may wait on a slow socket.
	sendQueueDepth = 64
	// eventQueueDepth bounds the per-viewer event subscription buffer.
	eventQueueDepth = 64
	// writeTimeout caps a single WebSocket write before the socket is abandoned.
	writeTimeout = 10 * time.Second
	// intentMaxAge rejects intents whose client timestamp lags too far behind.
	intentMaxAge = 2 * time.Second
	// intentMinInterval throttles how quickly one session may submit intents.
	intentMinInterval = 5 * time.Millisecond
)

// Server bridges WebSocket viewers onto isolated simulation sessions. Each
// accepted connection runs its own world; the server owns only the shared
// admission, validation and delivery machinery around them.
type Server struct {
	cfg *config.Config
	log *logging.Logger
	def *world.Definition

	upgrader websocket.Upgrader
	wsAuth   websocketAuthenticator

	registry  *SessionRegistry
	validator *input.Validator
	gate      *input.Gate
	regulator *networking.Regulator
	delivery  *networking.DeliveryMetrics
	cleaner   *capture.Cleaner

	clock   func() time.Time
	started time.Time

	baseCtx    context.Context
	cancelBase context.CancelFunc

	ready      chan struct{}
	warmupOnce sync.Once
	conns      sync.WaitGroup
	visitorSeq atomic.Uint64

	mu         sync.Mutex
	startupErr error
	closed     bool
}

// ServerOption customises server construction.
type ServerOption func(*Server)

// WithServerClock overrides the time source used for session bookkeeping.
func WithServerClock(clock func() time.Time) ServerOption {
	return func(s *Server) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithFrameRegulator replaces the frame budget regulator, primarily for tests.
func WithFrameRegulator(regulator *networking.Regulator) ServerOption {
	return func(s *Server) {
		s.regulator = regulator
	}
}

// NewServer wires the shared machinery around per-viewer sessions.
func NewServer(cfg *config.Config, def *world.Definition, logger *logging.Logger, opts ...ServerOption) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}
	if logger == nil {
		logger = logging.L()
	}
	if def == nil {
		def = world.Default()
	}

	s := &Server{
		cfg:      cfg,
		log:      logger,
		def:      def,
		wsAuth:   allowAllAuthenticator{},
		registry: newSessionRegistry(cfg.MaxSessions),
		delivery: networking.NewDeliveryMetrics(),
		clock:    time.Now,
		ready:    make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	//1.- Derived pieces wait until options ran so an injected clock reaches them.
	s.started = s.clock()
	s.validator = input.NewValidator(input.DefaultConstraints, logger,
		input.WithValidatorClock(input.ClockFunc(s.clock)))
	s.gate = input.NewGate(input.Config{MaxAge: intentMaxAge, MinInterval: intentMinInterval},
		logger, input.WithClock(input.ClockFunc(s.clock)))
	if s.regulator == nil && cfg.FrameBudgetBps > 0 {
		s.regulator = networking.NewRegulator(float64(cfg.FrameBudgetBps), s.clock)
	}
	if cfg.AuthSecret != "" {
		authenticator, err := newHMACWebsocketAuthenticator(cfg.AuthSecret)
		if err != nil {
			return nil, fmt.Errorf("configure websocket auth: %w", err)
		}
		s.wsAuth = authenticator
	}
	if cfg.CaptureEnabled() {
		s.cleaner = capture.NewCleaner(cfg.CaptureDir, capture.Policy{
			MaxSessions: cfg.CaptureMaxSessions,
			MaxAge:      cfg.CaptureMaxAge,
		}, logger)
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	s.baseCtx, s.cancelBase = context.WithCancel(context.Background())
	return s, nil
}

// Start launches the warmup probe and background maintenance. The server keeps
// running until ctx is cancelled or Close is called.
func (s *Server) Start(ctx context.Context) {
	if s == nil {
		return
	}
	go s.warmup()
	if s.cleaner != nil {
		go s.cleaner.Run(s.baseCtx, time.Hour)
	}
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.baseCtx.Done():
		}
	}()
}

// warmup builds the world definition once so a broken definition is reported
// at startup instead of on the first join.
func (s *Server) warmup() {
	s.warmupOnce.Do(func() {
		_, err := world.Build(s.def, s.log)
		s.mu.Lock()
		s.startupErr = err
		s.mu.Unlock()
		if err != nil {
			s.log.Error("world definition rejected", logging.Error(err))
		} else {
			s.log.Info("world ready", logging.String("world", s.def.Name))
		}
		close(s.ready)
	})
}

// Ready reports whether the warmup probe finished successfully.
func (s *Server) Ready() bool {
	if s == nil {
		return false
	}
	select {
	case <-s.ready:
		return s.StartupError() == nil
	default:
		return false
	}
}

// StartupError exposes the warmup result for readiness probes.
func (s *Server) StartupError() error {
	if s == nil {
		return errors.New("server not constructed")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startupErr
}

// SnapshotSessionCounts reports active and pending session totals.
func (s *Server) SnapshotSessionCounts() (active, pending int) {
	if s == nil {
		return 0, 0
	}
	return s.registry.Counts()
}

// Uptime reports how long the server has been running.
func (s *Server) Uptime() time.Duration {
	if s == nil {
		return 0
	}
	return s.clock().Sub(s.started)
}

// Status assembles the operational snapshot served at /statusz.
func (s *Server) Status() httpapi.Status {
	status := httpapi.Status{UptimeSeconds: s.Uptime().Seconds()}
	deliveries := s.delivery.Snapshot()
	drops := s.gate.Metrics()
	for _, slot := range s.registry.Slots() {
		sess := slot.session
		stats := sess.Stats()
		entry := httpapi.SessionStatus{
			ID:            sess.ID(),
			Ticks:         sess.Ticks(),
			AverageTickMs: float64(stats.Average) / float64(time.Millisecond),
			MaxTickMs:     float64(stats.Max) / float64(time.Millisecond),
			TickOverruns:  stats.Overruns,
		}
		if sample, ok := deliveries[sess.ID()]; ok {
			entry.FramesSent = sample.Sent
			entry.FramesDropped = sample.DroppedTotal()
		}
		if counters, ok := drops[sess.ID()]; ok {
			entry.InputDropped = counters.Sequence + counters.Stale + counters.RateLimited
		}
		status.Sessions = append(status.Sessions, entry)
	}
	if s.cleaner != nil {
		stats := s.cleaner.Stats()
		storage := &httpapi.CaptureStatus{Bundles: stats.Sessions, Bytes: stats.Bytes}
		if !stats.LastSweep.IsZero() {
			storage.LastSweep = stats.LastSweep.Format(time.RFC3339Nano)
		}
		status.Capture = storage
	}
	return status
}

// FlushCaptures forces every live recorder to persist buffered data and
// returns the bundle directories that were touched.
func (s *Server) FlushCaptures(ctx context.Context) ([]string, error) {
	var dirs []string
	var firstErr error
	for _, slot := range s.registry.Slots() {
		if slot.recorder == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return dirs, err
		}
		if err := slot.recorder.Flush(); err != nil && firstErr == nil {
			firstErr = err
		}
		dirs = append(dirs, slot.recorder.Directory())
	}
	return dirs, firstErr
}

// checkOrigin admits browser connections from the configured origin list. An
// empty list admits everything, matching local development defaults.
func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if strings.EqualFold(origin, allowed) {
			return true
		}
	}
	return false
}

// newSessionID derives a unique session identifier from the authenticated
// subject, or a generic visitor tag when the server runs open.
func (s *Server) newSessionID(subject string) string {
	base := strings.TrimSpace(subject)
	if base == "" {
		base = "visitor"
	}
	return fmt.Sprintf("%s-%04d", base, s.visitorSeq.Add(1))
}

// handleViewerSocket admits one viewer: readiness, auth and capacity are
// checked before the HTTP connection is upgraded.
func (s *Server) handleViewerSocket(w http.ResponseWriter, r *http.Request) {
	if err := s.StartupError(); err != nil {
		http.Error(w, "simulation unavailable", http.StatusServiceUnavailable)
		return
	}
	if !s.Ready() {
		http.Error(w, "simulation warming up", http.StatusServiceUnavailable)
		return
	}

	subject, err := s.wsAuth.Authenticate(r)
	if err != nil {
		s.log.Debug("viewer authentication failed", logging.Error(err),
			logging.String("remote_addr", r.RemoteAddr))
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	sessionID := s.newSessionID(subject)
	if err := s.registry.Reserve(sessionID); err != nil {
		s.log.Warn("viewer admission rejected", logging.Error(err),
			logging.String("session_id", sessionID))
		http.Error(w, "session capacity reached", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.registry.Abort(sessionID)
		s.log.Warn("websocket upgrade failed", logging.Error(err),
			logging.String("session_id", sessionID))
		return
	}

	s.serveSession(conn, sessionID, subject)
}

// serveSession owns one viewer connection end to end: it builds the isolated
// session, starts the pumps and blocks on the read loop until the viewer
// leaves or is ejected.
func (s *Server) serveSession(conn *websocket.Conn, sessionID, subject string) {
	logger := s.log.With(logging.String("session_id", sessionID))
	ctx, cancel := context.WithCancel(s.baseCtx)
	box := newOutbox(sendQueueDepth)

	//1.- The frame callback reads this variable; it is assigned before Start.
	var recorder *capture.Recorder
	sess, err := simulation.NewSession(simulation.Config{
		ID:         sessionID,
		Definition: s.def,
		TickHz:     s.cfg.TickHz,
		FrameHz:    s.cfg.FrameHz,
		Logger:     s.log,
		OnFrame: func(frame simulation.Frame) {
			s.deliverFrame(sessionID, frame, box, recorder)
		},
		Now: s.clock,
	})
	if err != nil {
		cancel()
		s.registry.Abort(sessionID)
		logger.Error("session build failed", logging.Error(err))
		message := websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "session unavailable")
		_ = conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(time.Second))
		conn.Close()
		return
	}

	if s.cfg.CaptureEnabled() {
		rec, err := capture.NewRecorder(capture.Options{
			Root:    s.cfg.CaptureDir,
			Session: sess,
			Logger:  s.log,
			Clock:   s.clock,
		})
		if err != nil {
			logger.Warn("session capture unavailable", logging.Error(err))
		} else if err := rec.Start(ctx); err != nil {
			logger.Warn("session capture unavailable", logging.Error(err))
			_ = rec.Close()
		} else {
			recorder = rec
		}
	}

	slot := &sessionSlot{
		session:  sess,
		recorder: recorder,
		subject:  subject,
		joined:   s.clock(),
		close: func() {
			box.Close()
			conn.Close()
		},
	}
	s.registry.Commit(sessionID, slot)

	s.conns.Add(1)
	defer s.conns.Done()
	defer func() {
		cancel()
		box.Close()
		conn.Close()
		//2.- Whoever removes the slot tears it down; Close may win this race.
		if removed := s.registry.Remove(sessionID); removed != nil {
			s.teardownSlot(removed)
		}
		logger.Info("viewer left", logging.Uint64("ticks", sess.Ticks()))
	}()

	welcome := welcomeMessage{
		Type:          messageTypeWelcome,
		SchemaVersion: wireSchemaVersion,
		SessionID:     sessionID,
		World:         s.def.Name,
		TickHz:        sess.TickHz(),
		FrameHz:       sess.FrameHz(),
	}
	if scene := sess.Scene(); scene != nil {
		welcome.Spawn = [3]float64{scene.Spawn.X(), scene.Spawn.Y(), scene.Spawn.Z()}
	}
	if payload, err := json.Marshal(welcome); err != nil {
		logger.Warn("welcome encode failed", logging.Error(err))
	} else {
		box.Enqueue(payload)
	}

	sub, err := sess.Events().Subscribe(ctx, viewerSubscriber, eventQueueDepth)
	if err != nil {
		logger.Warn("event subscription failed", logging.Error(err))
	} else {
		defer sub.Close()
		go s.forwardEvents(sub, box, logger)
	}

	go s.writePump(conn, box, logger)
	sess.Start(ctx)
	logger.Info("viewer joined", logging.String("subject", subject))

	s.readPump(conn, sessionID, sess.Input(), logger)
}

// teardownSlot stops one session and releases everything keyed to it.
func (s *Server) teardownSlot(slot *sessionSlot) {
	if slot == nil {
		return
	}
	if slot.close != nil {
		slot.close()
	}
	if slot.session != nil {
		slot.session.Stop()
		id := slot.session.ID()
		s.gate.Forget(id)
		s.validator.Forget(id)
		s.regulator.Forget(id)
		s.delivery.Forget(id)
	}
	if slot.recorder != nil {
		if err := slot.recorder.Close(); err != nil {
			s.log.Warn("capture close failed", logging.Error(err))
		}
	}
}

// Close stops every live session and waits for connection handlers to drain.
func (s *Server) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancelBase()
	for _, slot := range s.registry.Drain() {
		s.teardownSlot(slot)
	}
	s.conns.Wait()
	s.log.Info("simulation server closed")
}

// pongWait derives the read deadline from the ping cadence.
func (s *Server) pongWait() time.Duration {
	interval := s.cfg.PingInterval
	if interval <= 0 {
		interval = config.DefaultPingInterval
	}
	return 2 * interval
}

// readPump consumes intents until the socket drops or the viewer earns a
// disconnect. Socket deadlines use wall time even when the simulation clock
// is injected.
func (s *Server) readPump(conn *websocket.Conn, sessionID string, state *input.State, logger *logging.Logger) {
	conn.SetReadLimit(s.cfg.MaxPayloadBytes)
	_ = conn.SetReadDeadline(time.Now().Add(s.pongWait()))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.pongWait()))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("viewer socket closed", logging.Error(err))
			}
			return
		}

		payload, err := decodeIntentPayload(raw)
		if err == nil {
			err = validateIntentPayload(payload)
		}
		if err != nil {
			logger.Debug("dropping malformed intent", logging.Error(err))
			continue
		}

		disconnect, procErr := s.processIntent(sessionID, payload, state, logger)
		if procErr != nil && disconnect {
			logger.Warn("disconnecting abusive viewer", logging.Error(procErr))
			message := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "input rejected")
			_ = conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(time.Second))
			return
		}
	}
}

// writePump owns every data write on the socket. Frames, events and the
// welcome message all funnel through the outbox; pings interleave on a timer.
func (s *Server) writePump(conn *websocket.Conn, box *outbox, logger *logging.Logger) {
	interval := s.cfg.PingInterval
	if interval <= 0 {
		interval = config.DefaultPingInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer conn.Close()

	for {
		select {
		case payload := <-box.Messages():
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				logger.Debug("viewer write failed", logging.Error(err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logger.Debug("viewer ping failed", logging.Error(err))
				return
			}
		case <-box.Done():
			//1.- Drain queued payloads so the close frame is the last message.
			for {
				select {
				case payload := <-box.Messages():
					_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
					if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
						return
					}
				default:
					message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
					_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
					_ = conn.WriteMessage(websocket.CloseMessage, message)
					return
				}
			}
		}
	}
}
