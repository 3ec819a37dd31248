package anim

import "fmt"

const (
	ProfileCanonical = "canonical"
	ProfileBasic     = "basic"
)

// Table holds the next state for every (state, event) cell. Cells outside the
// owning profile hold noState.
type Table [stateCount][eventCount]MotionState

func emptyTable() Table {
	var t Table
	for s := range t {
		for e := range t[s] {
			t[s][e] = noState
		}
	}
	return t
}

// canonicalTable is the five state profile. The Jumping row is sticky: only
// Walk and Dash leave it.
var canonicalTable = Table{
	Idle:     {Stop: Idle, Walk: Walking, Dash: Dashing, Punch: Punching, Jump: Jumping},
	Walking:  {Stop: Idle, Walk: Walking, Dash: Dashing, Punch: Punching, Jump: Jumping},
	Dashing:  {Stop: Idle, Walk: Walking, Dash: Dashing, Punch: Punching, Jump: Jumping},
	Punching: {Stop: Idle, Walk: Walking, Dash: Dashing, Punch: Punching, Jump: Jumping},
	Jumping:  {Stop: Jumping, Walk: Walking, Dash: Dashing, Punch: Jumping, Jump: Jumping},
}

// restrict copies the cells of t whose row and column are both kept.
func (t Table) restrict(states []MotionState, events []MotionEvent) Table {
	out := emptyTable()
	for _, s := range states {
		for _, e := range events {
			out[s][e] = t[s][e]
		}
	}
	return out
}

// Profile is a transition table plus its loop policy.
type Profile struct {
	name      string
	idleLoops bool
	states    []MotionState
	events    []MotionEvent
	table     Table
}

// Canonical returns the five state profile.
func Canonical(idleLoops bool) Profile {
	return Profile{
		name:      ProfileCanonical,
		idleLoops: idleLoops,
		states:    AllStates(),
		events:    AllEvents(),
		table:     canonicalTable,
	}
}

// Basic returns the three state profile: the canonical table without the
// Punching and Jumping rows or the Punch and Jump columns.
func Basic(idleLoops bool) Profile {
	states := []MotionState{Idle, Walking, Dashing}
	events := []MotionEvent{Stop, Walk, Dash}
	return Profile{
		name:      ProfileBasic,
		idleLoops: idleLoops,
		states:    states,
		events:    events,
		table:     canonicalTable.restrict(states, events),
	}
}

// ProfileByName resolves a configured profile name.
func ProfileByName(name string, idleLoops bool) (Profile, error) {
	switch name {
	case ProfileCanonical, "":
		return Canonical(idleLoops), nil
	case ProfileBasic:
		return Basic(idleLoops), nil
	default:
		return Profile{}, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
}

func (p Profile) Name() string {
	return p.name
}

func (p Profile) IdleLoops() bool {
	return p.idleLoops
}

func (p Profile) States() []MotionState {
	return append([]MotionState(nil), p.states...)
}

func (p Profile) Events() []MotionEvent {
	return append([]MotionEvent(nil), p.events...)
}

// Has reports whether s is a state of this profile.
func (p Profile) Has(s MotionState) bool {
	for _, st := range p.states {
		if st == s {
			return true
		}
	}
	return false
}

// Supports reports whether e is an event of this profile.
func (p Profile) Supports(e MotionEvent) bool {
	for _, ev := range p.events {
		if ev == e {
			return true
		}
	}
	return false
}

// Next looks up the table cell for (s, e). A missing cell is a configuration
// error, never a silent default.
func (p Profile) Next(s MotionState, e MotionEvent) (MotionState, error) {
	if !s.Valid() || !e.Valid() {
		return noState, fmt.Errorf("%w: %s on %s in %s profile", ErrUndefinedTransition, e, s, p.name)
	}
	next := p.table[s][e]
	if next == noState {
		return noState, fmt.Errorf("%w: %s on %s in %s profile", ErrUndefinedTransition, e, s, p.name)
	}
	return next, nil
}

// Loops reports the loop flag used when entering s.
func (p Profile) Loops(s MotionState) bool {
	switch s {
	case Walking:
		return true
	case Idle:
		return p.idleLoops
	default:
		return false
	}
}
