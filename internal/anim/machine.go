package anim

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/Versifine/mecharig/internal/entity"
	"github.com/Versifine/mecharig/internal/event"
)

// Binding ties a character's stored motion state to its playback target.
// The state is kept in its raw stored form and decoded on every use.
type Binding struct {
	mu     sync.Mutex
	id     entity.ID
	raw    uint32
	target Player
}

func (b *Binding) ID() entity.ID {
	return b.id
}

// Target returns the playback target owned by this binding.
func (b *Binding) Target() Player {
	return b.target
}

// State returns the decoded stored state. ok is false when the stored value
// is not a state of any profile.
func (b *Binding) State() (s MotionState, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s = MotionState(b.raw)
	return s, s.Valid()
}

// Machine owns the motion state of every controlled character.
type Machine struct {
	profile Profile
	clips   ClipSet
	bus     *event.Bus

	mu       sync.RWMutex
	bindings map[entity.ID]*Binding
}

// NewMachine resolves a clip for every state of p up front so playback never
// has to resolve anything.
func NewMachine(p Profile, lib *Library, clipIDs map[MotionState]string, bus *event.Bus) (*Machine, error) {
	clips, err := ResolveClips(lib, p, clipIDs)
	if err != nil {
		return nil, err
	}
	return &Machine{
		profile:  p,
		clips:    clips,
		bus:      bus,
		bindings: make(map[entity.ID]*Binding),
	}, nil
}

func (m *Machine) Profile() Profile {
	return m.profile
}

// Clip returns the clip played on entering s.
func (m *Machine) Clip(s MotionState) (ClipHandle, bool) {
	h, ok := m.clips[s]
	return h, ok
}

// Initialize binds id to target in the Idle state and starts the Idle clip.
func (m *Machine) Initialize(id entity.ID, target Player) (*Binding, error) {
	if target == nil {
		return nil, ErrNilTarget
	}
	m.mu.Lock()
	if _, exists := m.bindings[id]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrAlreadyBound, id)
	}
	b := &Binding{id: id, raw: uint32(Idle), target: target}
	m.bindings[id] = b
	m.mu.Unlock()

	b.mu.Lock()
	target.Play(m.clips[Idle], m.profile.Loops(Idle))
	b.mu.Unlock()
	return b, nil
}

// Remove drops the binding of id.
func (m *Machine) Remove(id entity.ID) {
	m.mu.Lock()
	delete(m.bindings, id)
	m.mu.Unlock()
}

// Binding returns the binding of id.
func (m *Machine) Binding(id entity.ID) (*Binding, error) {
	m.mu.RLock()
	b, ok := m.bindings[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoBinding, id)
	}
	return b, nil
}

// State returns the current state of id, Idle when the stored value is
// unreadable.
func (m *Machine) State(id entity.ID) (MotionState, error) {
	b, err := m.Binding(id)
	if err != nil {
		return Idle, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := m.decode(b.raw)
	if !ok {
		return Idle, nil
	}
	return s, nil
}

// Transition applies evt to the character's state. Self transitions issue no
// play call and leave the binding untouched; a real transition plays exactly
// one clip and stores the new state under the same lock.
func (m *Machine) Transition(id entity.ID, evt MotionEvent) (MotionState, error) {
	b, err := m.Binding(id)
	if err != nil {
		return Idle, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	current, ok := m.decode(b.raw)
	if !ok {
		slog.Warn("Unknown animation state, falling back to idle", "character", id, "raw", b.raw)
		m.bus.Publish(event.EventStateCorrupted, event.StateCorruptedEvent{Character: id, Raw: b.raw})
		current = Idle
	}

	next, err := m.profile.Next(current, evt)
	if err != nil {
		return current, err
	}
	// After a corrupted read the target may be playing anything, so the next
	// clip is always issued to resync it.
	if ok && next == current {
		return next, nil
	}

	clip := m.clips[next]
	looping := m.profile.Loops(next)
	b.target.Play(clip, looping)
	b.raw = uint32(next)

	slog.Debug("Animation transition", "character", id, "from", current, "event", evt, "to", next)
	m.bus.Publish(event.EventTransition, event.TransitionEvent{
		Character: id,
		From:      current.String(),
		Event:     evt.String(),
		To:        next.String(),
		Clip:      clip.ID,
		Looping:   looping,
	})
	return next, nil
}

func (m *Machine) decode(raw uint32) (MotionState, bool) {
	if raw >= uint32(stateCount) {
		return Idle, false
	}
	s := MotionState(raw)
	if !m.profile.Has(s) {
		return Idle, false
	}
	return s, true
}
