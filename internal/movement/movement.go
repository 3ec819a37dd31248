package movement

import (
	"errors"
	"fmt"

	"github.com/Versifine/mecharig/internal/entity"
	"github.com/Versifine/mecharig/internal/input"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

const (
	DefaultSpeed            = 0.1
	DefaultYawSensitivity   = 0.01
	DefaultRenormalizeEvery = 64
)

var ErrInvalidTuning = errors.New("invalid movement tuning")

type Tuning struct {
	// Speed is the distance covered per step along each held axis.
	Speed          float32
	YawSensitivity float32
	// RenormalizeEvery is the number of heading updates between
	// renormalizations. Zero disables it.
	RenormalizeEvery int
}

func DefaultTuning() Tuning {
	return Tuning{
		Speed:            DefaultSpeed,
		YawSensitivity:   DefaultYawSensitivity,
		RenormalizeEvery: DefaultRenormalizeEvery,
	}
}

func (t Tuning) Validate() error {
	if !finite(t.Speed) || t.Speed < 0 {
		return fmt.Errorf("%w: speed %v", ErrInvalidTuning, t.Speed)
	}
	if !finite(t.YawSensitivity) {
		return fmt.Errorf("%w: yaw sensitivity %v", ErrInvalidTuning, t.YawSensitivity)
	}
	if t.RenormalizeEvery < 0 {
		return fmt.Errorf("%w: renormalize every %d", ErrInvalidTuning, t.RenormalizeEvery)
	}
	return nil
}

// Intent is the decoded movement direction. Each axis is -1, 0 or 1.
type Intent struct {
	Forward float32
	Strafe  float32
}

// Decode turns held keys into an intent. Opposing keys cancel out.
func Decode(s input.Snapshot) Intent {
	var in Intent
	if s.Forward {
		in.Forward++
	}
	if s.Back {
		in.Forward--
	}
	if s.Right {
		in.Strafe++
	}
	if s.Left {
		in.Strafe--
	}
	return in
}

func (in Intent) IsZero() bool {
	return in.Forward == 0 && in.Strafe == 0
}

// Body is a moving character: its transform plus the bookkeeping needed to
// keep the heading a unit quaternion over long sessions.
type Body struct {
	entity.Transform
	turns int
}

func NewBody() *Body {
	return &Body{Transform: entity.NewTransform()}
}

// Turns is the number of heading updates applied so far.
func (b *Body) Turns() int {
	return b.turns
}

// Turn yaws the heading about world up by dx scaled by the yaw sensitivity.
// Products of unit quaternions drift; the heading is renormalized every
// RenormalizeEvery turns. Zero or non-finite dx leaves the heading untouched.
func (t Tuning) Turn(b *Body, dx float32) {
	if dx == 0 || !finite(dx) {
		return
	}
	b.Heading = b.Heading.Mul(mgl32.QuatRotate(dx*t.YawSensitivity, entity.WorldUp))
	b.turns++
	if t.RenormalizeEvery > 0 && b.turns%t.RenormalizeEvery == 0 {
		b.Heading = b.Heading.Normalize()
	}
}

// Advance moves the body along its current forward and right axes. Diagonal
// intent is not normalized, matching the per-axis speed.
func (t Tuning) Advance(b *Body, in Intent) {
	if in.IsZero() {
		return
	}
	dir := b.Forward().Mul(in.Forward).Add(b.Right().Mul(in.Strafe))
	b.Position = b.Position.Add(dir.Mul(t.Speed))
}

// Step applies one snapshot: heading first, then position using the new
// heading. It returns the decoded intent.
func (t Tuning) Step(b *Body, s input.Snapshot) Intent {
	t.Turn(b, s.MouseDelta.X())
	in := Decode(s)
	t.Advance(b, in)
	return in
}

func finite(f float32) bool {
	return !math32.IsNaN(f) && !math32.IsInf(f, 0)
}
