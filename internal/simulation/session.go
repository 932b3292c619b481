package simulation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"wanderfield/simcore/internal/camera"
	"wanderfield/simcore/internal/character"
	"wanderfield/simcore/internal/events"
	"wanderfield/simcore/internal/input"
	"wanderfield/simcore/internal/interact"
	"wanderfield/simcore/internal/logging"
	"wanderfield/simcore/internal/world"
)

// stepCap bounds how much wall-clock time a single tick may simulate, in
// seconds. Longer stalls lose time instead of spiralling.
const stepCap = 0.1

// Config bundles what a session needs before it can run.
type Config struct {
	ID         string
	Definition *world.Definition
	TickHz     int
	FrameHz    int
	Logger     *logging.Logger
	// OnFrame receives frame snapshots on the loop goroutine; implementations
	// must not block.
	OnFrame func(Frame)
	Now     func() time.Time
}

// Session owns one visitor's isolated world: physics, character, camera and
// targeting state advanced by a private fixed-step loop. Nothing in a session
// is shared with other sessions.
type Session struct {
	id     string
	logger *logging.Logger
	now    func() time.Time

	scene      *world.Scene
	controller *character.Controller
	rig        *camera.Rig
	targeter   *interact.Targeter
	inputs     *input.State
	stream     *events.Stream
	monitor    *Monitor
	loop       *Loop

	tickHz      int
	frameHz     int
	fixedDt     float64
	maxSubsteps int
	frameEvery  uint64
	onFrame     func(Frame)

	ticks atomic.Uint64

	mu        sync.Mutex
	lastFrame Frame
	hasFrame  bool
	started   bool
}

// NewSession assembles a fresh world, character, camera rig, targeter and
// event stream for one visitor.
func NewSession(cfg Config) (*Session, error) {
	if cfg.ID == "" {
		return nil, errors.New("session id is required")
	}
	if cfg.TickHz <= 0 {
		cfg.TickHz = 60
	}
	if cfg.FrameHz <= 0 || cfg.FrameHz > cfg.TickHz {
		cfg.FrameHz = cfg.TickHz
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.L()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	logger := cfg.Logger.With(logging.String("session_id", cfg.ID))
	scene, err := world.Build(cfg.Definition, logger)
	if err != nil {
		return nil, fmt.Errorf("build world: %w", err)
	}

	s := &Session{
		id:          cfg.ID,
		logger:      logger,
		now:         cfg.Now,
		scene:       scene,
		inputs:      input.NewState(),
		stream:      events.NewStream(events.Config{}),
		tickHz:      cfg.TickHz,
		frameHz:     cfg.FrameHz,
		fixedDt:     1 / float64(cfg.TickHz),
		maxSubsteps: int(math.Ceil(stepCap * float64(cfg.TickHz))),
		frameEvery:  uint64(cfg.TickHz / cfg.FrameHz),
		onFrame:     cfg.OnFrame,
	}
	if s.frameEvery < 1 {
		s.frameEvery = 1
	}
	s.monitor = NewMonitor(time.Duration(float64(time.Second) / float64(cfg.TickHz)))
	s.controller = character.NewController(scene.World, scene.Spawn, scene.Floor,
		character.WithOnRespawn(s.handleRespawn))
	s.rig = camera.NewRig()
	s.targeter = interact.NewTargeter(interact.Options{
		Now: s.now,
		Events: interact.Events{
			Hover:         s.handleHover,
			Unhover:       s.handleUnhover,
			TargetChanged: s.handleTargetChange,
			NearbyChanged: s.handleNearbyChange,
			Interact:      s.handleInteract,
		},
	})
	s.targeter.SetInteractables(scene.Interactables())
	s.loop = NewLoop(float64(cfg.TickHz), s.Advance)
	return s, nil
}

// Start launches the private tick loop. Repeated calls are no-ops.
func (s *Session) Start(ctx context.Context) {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	s.loop.Start(ctx)
	s.logger.Info("session started",
		logging.Int("tick_hz", s.tickHz),
		logging.Int("frame_hz", s.frameHz))
}

// Stop halts the tick loop and waits for the current tick to finish.
func (s *Session) Stop() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	s.loop.Stop()
	stats := s.monitor.Snapshot()
	s.logger.Info("session stopped",
		logging.Uint64("ticks", s.ticks.Load()),
		logging.Duration("avg_tick", stats.Average),
		logging.Int("tick_overruns", stats.Overruns))
}

// Advance runs exactly one tick: drain input, step physics, move the
// character, follow with the camera, retarget, then maybe emit a frame. The
// loop calls this; tests and headless tools may drive it directly.
func (s *Session) Advance(elapsed time.Duration) {
	if s == nil {
		return
	}
	began := s.now()

	sample := s.inputs.Drain()
	//1.- Camera input lands first so movement uses the yaw the player sees.
	s.rig.Apply(sample)

	//2.- Physics, character, camera follow, targeting, in that order.
	s.scene.World.Step(s.fixedDt, elapsed.Seconds(), s.maxSubsteps)
	s.controller.Apply(sample, s.rig.Yaw())
	s.rig.Update(s.controller.Position())
	s.targeter.Update(s.controller.Position(), s.controller.Forward())
	for i := 0; i < sample.Interacts; i++ {
		s.targeter.TryInteract()
	}

	//3.- Frames go out on the configured cadence, not every tick.
	tick := s.ticks.Add(1)
	if tick%s.frameEvery == 0 {
		frame := s.snapshot(tick)
		s.mu.Lock()
		s.lastFrame = frame
		s.hasFrame = true
		s.mu.Unlock()
		if s.onFrame != nil {
			s.onFrame(frame)
		}
	}

	s.monitor.Observe(s.now().Sub(began))
}

func (s *Session) snapshot(tick uint64) Frame {
	pose := s.controller.Pose()
	cam := s.rig.Pose()
	frame := Frame{
		Tick:  tick,
		SimMS: float64(tick) * s.fixedDt * 1000,
		Character: CharacterFrame{
			Position: vec3(pose.Position),
			Velocity: vec3(pose.Velocity),
			Yaw:      pose.Yaw,
			Grounded: pose.Grounded,
		},
		Camera: CameraFrame{
			Position: vec3(cam.Position),
			LookAt:   vec3(cam.LookAt),
			Yaw:      cam.Yaw,
			Pitch:    cam.Pitch,
			Distance: cam.Distance,
			Aspect:   cam.Aspect,
			Overview: cam.Overview,
		},
		HasNearby:   s.targeter.HasNearby(),
		Interacting: s.targeter.Interacting(),
	}
	if target := s.targeter.CurrentTarget(); target != nil {
		frame.TargetID = target.ID()
	}
	return frame
}

func (s *Session) handleHover(item interact.Interactable) {
	if _, err := s.stream.PublishHover(targetPayload(item)); err != nil {
		s.logger.Warn("hover event dropped", logging.Error(err))
	}
}

func (s *Session) handleUnhover(item interact.Interactable) {
	if _, err := s.stream.PublishUnhover(targetPayload(item)); err != nil {
		s.logger.Warn("unhover event dropped", logging.Error(err))
	}
}

func (s *Session) handleTargetChange(item interact.Interactable) {
	var payload *events.TargetPayload
	if item != nil {
		p := targetPayload(item)
		payload = &p
	}
	if _, err := s.stream.PublishTarget(payload); err != nil {
		s.logger.Warn("target event dropped", logging.Error(err))
	}
}

func (s *Session) handleNearbyChange(items []interact.Interactable) {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID())
	}
	if _, err := s.stream.PublishNearby(ids); err != nil {
		s.logger.Warn("nearby event dropped", logging.Error(err))
	}
}

func (s *Session) handleInteract(payload interact.Payload) {
	if target := payload.Metadata.PortalTarget; target != nil {
		//1.- Move the character first so the teleport event carries the arrival point.
		s.controller.Teleport(mgl64.Vec3{target[0], target[1], target[2]})
		if _, err := s.stream.PublishTeleport(*target, payload.Metadata.PortalID); err != nil {
			s.logger.Warn("teleport event dropped", logging.Error(err))
		}
		s.logger.Info("portal traversed",
			logging.String("portal_id", payload.Metadata.PortalID),
			logging.String("marker_id", payload.TargetID))
		return
	}
	if _, err := s.stream.PublishInteract(events.TargetPayload{MarkerID: payload.TargetID, Metadata: payload.Metadata}); err != nil {
		s.logger.Warn("interact event dropped", logging.Error(err))
	}
}

func (s *Session) handleRespawn(position mgl64.Vec3) {
	if _, err := s.stream.PublishRespawn(vec3(position)); err != nil {
		s.logger.Warn("respawn event dropped", logging.Error(err))
	}
	s.logger.Info("respawned below floor")
}

func targetPayload(item interact.Interactable) events.TargetPayload {
	return events.TargetPayload{MarkerID: item.ID(), Metadata: item.Metadata()}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	if s == nil {
		return ""
	}
	return s.id
}

// Input exposes the shared input state intent handlers write into.
func (s *Session) Input() *input.State {
	if s == nil {
		return nil
	}
	return s.inputs
}

// Events exposes the session's ordered event stream.
func (s *Session) Events() *events.Stream {
	if s == nil {
		return nil
	}
	return s.stream
}

// Scene exposes the assembled world.
func (s *Session) Scene() *world.Scene {
	if s == nil {
		return nil
	}
	return s.scene
}

// TickHz reports the normalised simulation rate.
func (s *Session) TickHz() int {
	if s == nil {
		return 0
	}
	return s.tickHz
}

// FrameHz reports the normalised frame streaming rate.
func (s *Session) FrameHz() int {
	if s == nil {
		return 0
	}
	return s.frameHz
}

// Stats reports tick timing statistics.
func (s *Session) Stats() TickStats {
	if s == nil {
		return TickStats{}
	}
	return s.monitor.Snapshot()
}

// Ticks reports how many ticks have run.
func (s *Session) Ticks() uint64 {
	if s == nil {
		return 0
	}
	return s.ticks.Load()
}

// LastFrame returns the most recent frame snapshot, if any tick produced one.
func (s *Session) LastFrame() (Frame, bool) {
	if s == nil {
		return Frame{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFrame, s.hasFrame
}
