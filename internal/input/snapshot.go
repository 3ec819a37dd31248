package input

import "github.com/go-gl/mathgl/mgl32"

// Action flag bits as carried on the wire.
const (
	FlagDash  uint8 = 1 << 0
	FlagJump  uint8 = 1 << 1
	FlagPunch uint8 = 1 << 2
)

// Snapshot is one step of input for one character. Movement keys are held
// state; MouseDelta is the motion since the previous step.
type Snapshot struct {
	Forward bool
	Back    bool
	Left    bool
	Right   bool

	Dash  bool
	Jump  bool
	Punch bool

	MouseDelta mgl32.Vec2
}

// Direction packs the movement keys into the wire vector: X is forward minus
// back, Y is right minus left.
func (s Snapshot) Direction() mgl32.Vec2 {
	var d mgl32.Vec2
	if s.Forward {
		d[0]++
	}
	if s.Back {
		d[0]--
	}
	if s.Right {
		d[1]++
	}
	if s.Left {
		d[1]--
	}
	return d
}

func (s Snapshot) Flags() uint8 {
	var f uint8
	if s.Dash {
		f |= FlagDash
	}
	if s.Jump {
		f |= FlagJump
	}
	if s.Punch {
		f |= FlagPunch
	}
	return f
}

// FromWire rebuilds a snapshot from a received direction vector. Each axis
// is rounded to the nearest of -1, 0, 1; opposing keys that cancelled on the
// client stay released.
func FromWire(dir, mouseDelta mgl32.Vec2, flags uint8) Snapshot {
	x, y := axis(dir.X()), axis(dir.Y())
	return Snapshot{
		Forward:    x > 0,
		Back:       x < 0,
		Right:      y > 0,
		Left:       y < 0,
		Dash:       flags&FlagDash != 0,
		Jump:       flags&FlagJump != 0,
		Punch:      flags&FlagPunch != 0,
		MouseDelta: mouseDelta,
	}
}

func axis(v float32) int {
	switch {
	case v >= 0.5:
		return 1
	case v <= -0.5:
		return -1
	default:
		// NaN lands here too.
		return 0
	}
}
