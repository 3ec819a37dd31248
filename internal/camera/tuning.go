package camera

import (
	"fmt"

	"github.com/chewxy/math32"
)

// Tuning holds the rig constants. Angles are radians, distances world units.
type Tuning struct {
	Sensitivity   float32
	PitchMargin   float32
	HeightOffset  float32
	LateralOffset float32
	FarDistance   float32
	NearDistance  float32
}

func DefaultTuning() Tuning {
	return Tuning{
		Sensitivity:   0.01,
		PitchMargin:   0.1,
		HeightOffset:  7,
		LateralOffset: 2,
		FarDistance:   30,
		NearDistance:  10,
	}
}

func (t Tuning) Validate() error {
	if t.PitchMargin <= 0 || t.PitchMargin >= math32.Pi/2 {
		return fmt.Errorf("%w: pitch margin %v outside (0, pi/2)", ErrInvalidTuning, t.PitchMargin)
	}
	if t.FarDistance <= 0 || t.NearDistance <= 0 {
		return fmt.Errorf("%w: distances must be positive (far=%v near=%v)", ErrInvalidTuning, t.FarDistance, t.NearDistance)
	}
	if math32.IsNaN(t.Sensitivity) || math32.IsInf(t.Sensitivity, 0) {
		return fmt.Errorf("%w: sensitivity %v", ErrInvalidTuning, t.Sensitivity)
	}
	return nil
}

// Limits returns the allowed vertical angle range.
func (t Tuning) Limits() (lo, hi float32) {
	return -math32.Pi/2 + t.PitchMargin, math32.Pi/2 - t.PitchMargin
}

// Clamp bounds a vertical angle to Limits.
func (t Tuning) Clamp(angle float32) float32 {
	lo, hi := t.Limits()
	if angle < lo {
		return lo
	}
	if angle > hi {
		return hi
	}
	return angle
}
