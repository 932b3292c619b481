package input

import "sync"

// Viewport carries the client's render surface dimensions.
type Viewport struct {
	Width  int
	Height int
}

// Sample is one tick's worth of drained input. Held state reports its current
// value; accumulated one-shot state is consumed by the drain.
type Sample struct {
	MoveX           float64
	MoveZ           float64
	JumpHeld        bool
	Interacts       int
	OverviewToggles int
	DragYaw         float64
	DragPitch       float64
	ZoomNotches     int
	Viewport        *Viewport
}

// Moving reports whether the sample carries any horizontal movement.
func (s Sample) Moving() bool {
	return s.MoveX != 0 || s.MoveZ != 0
}

// State accumulates control input between simulation ticks. The connection
// goroutine writes as intents arrive; the session goroutine drains once per
// tick. Key and analog channels merge additively so keyboard and stick can
// steer together.
type State struct {
	mu sync.Mutex

	forward bool
	back    bool
	left    bool
	right   bool
	analogX float64
	analogZ float64

	jumpHeld        bool
	interacts       int
	overviewToggles int
	dragYaw         float64
	dragPitch       float64
	zoomNotches     int
	viewport        *Viewport
}

// NewState returns an empty input state.
func NewState() *State {
	return &State{}
}

// SetMoveKeys records the current digital movement key state.
func (s *State) SetMoveKeys(forward, back, left, right bool) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.forward, s.back, s.left, s.right = forward, back, left, right
	s.mu.Unlock()
}

// SetAnalog records the current analog stick position, clamped to [-1, 1].
func (s *State) SetAnalog(x, z float64) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.analogX = clampUnit(x)
	s.analogZ = clampUnit(z)
	s.mu.Unlock()
}

// SetJumpHeld records whether the jump control is currently held.
func (s *State) SetJumpHeld(held bool) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.jumpHeld = held
	s.mu.Unlock()
}

// QueueInteract accumulates one interact press for the next tick.
func (s *State) QueueInteract() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.interacts++
	s.mu.Unlock()
}

// QueueOverviewToggle accumulates one overview toggle for the next tick.
func (s *State) QueueOverviewToggle() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.overviewToggles++
	s.mu.Unlock()
}

// AddDrag accumulates pointer drag deltas in radians.
func (s *State) AddDrag(yaw, pitch float64) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.dragYaw += yaw
	s.dragPitch += pitch
	s.mu.Unlock()
}

// AddZoom accumulates wheel notches; positive zooms out.
func (s *State) AddZoom(notches int) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.zoomNotches += notches
	s.mu.Unlock()
}

// SetViewport records the latest client surface size.
func (s *State) SetViewport(width, height int) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.viewport = &Viewport{Width: width, Height: height}
	s.mu.Unlock()
}

// Drain returns the merged sample for this tick and clears the one-shot
// accumulators. Held keys, analog position, and jump survive the drain.
func (s *State) Drain() Sample {
	if s == nil {
		return Sample{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sample := Sample{
		MoveX:           clampUnit(axis(s.right, s.left) + s.analogX),
		MoveZ:           clampUnit(axis(s.forward, s.back) + s.analogZ),
		JumpHeld:        s.jumpHeld,
		Interacts:       s.interacts,
		OverviewToggles: s.overviewToggles,
		DragYaw:         s.dragYaw,
		DragPitch:       s.dragPitch,
		ZoomNotches:     s.zoomNotches,
		Viewport:        s.viewport,
	}

	s.interacts = 0
	s.overviewToggles = 0
	s.dragYaw = 0
	s.dragPitch = 0
	s.zoomNotches = 0
	s.viewport = nil
	return sample
}

// Reset clears every channel, held state included.
func (s *State) Reset() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.forward, s.back, s.left, s.right = false, false, false, false
	s.analogX, s.analogZ = 0, 0
	s.jumpHeld = false
	s.interacts = 0
	s.overviewToggles = 0
	s.dragYaw, s.dragPitch = 0, 0
	s.zoomNotches = 0
	s.viewport = nil
	s.mu.Unlock()
}

func axis(positive, negative bool) float64 {
	value := 0.0
	if positive {
		value++
	}
	if negative {
		value--
	}
	return value
}

func clampUnit(value float64) float64 {
	if value < -1 {
		return -1
	}
	if value > 1 {
		return 1
	}
	return value
}
