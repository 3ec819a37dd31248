package input

import (
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl32"
)

// DefaultMovePulse is how long one movement key press stays held. Terminals
// only report key repeats, so a press is stretched until the next repeat.
const DefaultMovePulse = 180 * time.Millisecond

// Sampler collects key and mouse events between steps and hands out one
// Snapshot per step.
type Sampler struct {
	movePulse time.Duration
	now       func() time.Time

	mu           sync.Mutex
	current      Snapshot
	forwardUntil time.Time
	backUntil    time.Time
	leftUntil    time.Time
	rightUntil   time.Time
}

func NewSampler(movePulse time.Duration) *Sampler {
	if movePulse <= 0 {
		movePulse = DefaultMovePulse
	}
	return &Sampler{movePulse: movePulse, now: time.Now}
}

// PulseForward holds forward for one pulse and releases back.
func (s *Sampler) PulseForward() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current.Forward = true
	s.forwardUntil = s.now().Add(s.movePulse)
	s.current.Back = false
	s.backUntil = time.Time{}
}

func (s *Sampler) PulseBack() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current.Back = true
	s.backUntil = s.now().Add(s.movePulse)
	s.current.Forward = false
	s.forwardUntil = time.Time{}
}

func (s *Sampler) PulseLeft() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current.Left = true
	s.leftUntil = s.now().Add(s.movePulse)
	s.current.Right = false
	s.rightUntil = time.Time{}
}

func (s *Sampler) PulseRight() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current.Right = true
	s.rightUntil = s.now().Add(s.movePulse)
	s.current.Left = false
	s.leftUntil = time.Time{}
}

// AddMouse accumulates mouse motion until the next Sample.
func (s *Sampler) AddMouse(dx, dy float32) {
	s.mu.Lock()
	s.current.MouseDelta = s.current.MouseDelta.Add(mgl32.Vec2{dx, dy})
	s.mu.Unlock()
}

func (s *Sampler) ToggleDash() bool {
	return s.toggle(func(in *Snapshot) *bool { return &in.Dash })
}

func (s *Sampler) ToggleJump() bool {
	return s.toggle(func(in *Snapshot) *bool { return &in.Jump })
}

func (s *Sampler) TogglePunch() bool {
	return s.toggle(func(in *Snapshot) *bool { return &in.Punch })
}

func (s *Sampler) toggle(field func(*Snapshot) *bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := field(&s.current)
	*f = !*f
	return *f
}

// Clear releases everything.
func (s *Sampler) Clear() {
	s.mu.Lock()
	s.current = Snapshot{}
	s.forwardUntil = time.Time{}
	s.backUntil = time.Time{}
	s.leftUntil = time.Time{}
	s.rightUntil = time.Time{}
	s.mu.Unlock()
}

// Sample returns the input for this step and starts a new mouse delta.
func (s *Sampler) Sample() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expirePulsesLocked(s.now())
	out := s.current
	s.current.MouseDelta = mgl32.Vec2{}
	return out
}

// Peek returns the held state without consuming the mouse delta.
func (s *Sampler) Peek() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expirePulsesLocked(s.now())
	return s.current
}

func (s *Sampler) expirePulsesLocked(now time.Time) {
	if !s.forwardUntil.IsZero() && !now.Before(s.forwardUntil) {
		s.current.Forward = false
		s.forwardUntil = time.Time{}
	}
	if !s.backUntil.IsZero() && !now.Before(s.backUntil) {
		s.current.Back = false
		s.backUntil = time.Time{}
	}
	if !s.leftUntil.IsZero() && !now.Before(s.leftUntil) {
		s.current.Left = false
		s.leftUntil = time.Time{}
	}
	if !s.rightUntil.IsZero() && !now.Before(s.rightUntil) {
		s.current.Right = false
		s.rightUntil = time.Time{}
	}
}
