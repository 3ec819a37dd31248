package movement

import (
	"github.com/Versifine/mecharig/internal/anim"
	"github.com/Versifine/mecharig/internal/input"
)

// Classify derives the single motion event of a step. Jump wins over Punch,
// Punch over Dash and Dash over Walk. Events the profile has no column for
// are passed over, so a basic profile sees a jumping walker as walking.
func Classify(s input.Snapshot, p anim.Profile) anim.MotionEvent {
	candidates := []struct {
		evt    anim.MotionEvent
		active bool
	}{
		{anim.Jump, s.Jump},
		{anim.Punch, s.Punch},
		{anim.Dash, s.Dash},
		{anim.Walk, !Decode(s).IsZero()},
	}
	for _, c := range candidates {
		if c.active && p.Supports(c.evt) {
			return c.evt
		}
	}
	return anim.Stop
}
