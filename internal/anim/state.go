package anim

import (
	"fmt"
	"strings"
)

// MotionState is the discrete animation mode a character is in.
type MotionState uint8

const (
	Idle MotionState = iota
	Walking
	Dashing
	Punching
	Jumping

	stateCount
)

// noState marks an undefined cell in a transition table.
const noState MotionState = 0xFF

var stateNames = [stateCount]string{
	Idle:     "idle",
	Walking:  "walking",
	Dashing:  "dashing",
	Punching: "punching",
	Jumping:  "jumping",
}

func (s MotionState) Valid() bool {
	return s < stateCount
}

func (s MotionState) String() string {
	if !s.Valid() {
		return fmt.Sprintf("state(%d)", uint8(s))
	}
	return stateNames[s]
}

// ParseMotionState maps a config key such as "walking" to its state.
func ParseMotionState(name string) (MotionState, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range stateNames {
		if n == name {
			return MotionState(i), nil
		}
	}
	return noState, fmt.Errorf("%w: %q", ErrUnknownState, name)
}

// MotionEvent is the per-step classification of input fed to the machine.
type MotionEvent uint8

const (
	Stop MotionEvent = iota
	Walk
	Dash
	Punch
	Jump

	eventCount
)

var eventNames = [eventCount]string{
	Stop:  "stop",
	Walk:  "walk",
	Dash:  "dash",
	Punch: "punch",
	Jump:  "jump",
}

func (e MotionEvent) Valid() bool {
	return e < eventCount
}

func (e MotionEvent) String() string {
	if !e.Valid() {
		return fmt.Sprintf("event(%d)", uint8(e))
	}
	return eventNames[e]
}

// AllStates lists every state of the canonical profile in declaration order.
func AllStates() []MotionState {
	return []MotionState{Idle, Walking, Dashing, Punching, Jumping}
}

// AllEvents lists every event of the canonical profile in declaration order.
func AllEvents() []MotionEvent {
	return []MotionEvent{Stop, Walk, Dash, Punch, Jump}
}
