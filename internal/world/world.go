package world

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/Versifine/mecharig/internal/anim"
	"github.com/Versifine/mecharig/internal/camera"
	"github.com/Versifine/mecharig/internal/entity"
	"github.com/Versifine/mecharig/internal/event"
	"github.com/Versifine/mecharig/internal/input"
	"github.com/Versifine/mecharig/internal/movement"
	"github.com/Versifine/mecharig/internal/report"
	"github.com/elliotchance/orderedmap/v2"
	"golang.org/x/sync/errgroup"
)

var (
	ErrCharacterExists  = errors.New("character already exists")
	ErrUnknownCharacter = errors.New("unknown character")
	ErrStepPanic        = errors.New("character step panicked")
)

type Options struct {
	Profile  anim.Profile
	Library  *anim.Library
	Clips    map[anim.MotionState]string
	Camera   camera.Tuning
	Movement movement.Tuning
	// Workers bounds how many characters step in parallel. Values below one
	// step characters one at a time.
	Workers int
	Bus     *event.Bus
}

type character struct {
	id     entity.ID
	remote string
	body   *movement.Body
	track  *anim.Track
}

// CharacterState is one character after one step.
type CharacterState struct {
	Character entity.ID
	Transform entity.Transform
	Event     anim.MotionEvent
	Motion    anim.MotionState
	Clip      anim.ClipHandle
	Looping   bool
	Pose      camera.Pose
}

type Tick struct {
	Number uint64
	// States are in join order.
	States []CharacterState
}

// World runs the per-step control pipeline for every spawned character.
type World struct {
	machine *anim.Machine
	rig     *camera.Rig
	inputs  *InputStore
	bus     *event.Bus
	workers int

	mu         sync.Mutex
	characters *orderedmap.OrderedMap[entity.ID, *character]
	movement   movement.Tuning
	tick       uint64
}

func New(opts Options) (*World, error) {
	if err := opts.Movement.Validate(); err != nil {
		return nil, err
	}
	machine, err := anim.NewMachine(opts.Profile, opts.Library, opts.Clips, opts.Bus)
	if err != nil {
		return nil, fmt.Errorf("build animation machine: %w", err)
	}
	rig, err := camera.NewRig(opts.Camera)
	if err != nil {
		return nil, fmt.Errorf("build camera rig: %w", err)
	}
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	return &World{
		machine:    machine,
		rig:        rig,
		inputs:     NewInputStore(),
		bus:        opts.Bus,
		workers:    workers,
		characters: orderedmap.NewOrderedMap[entity.ID, *character](),
		movement:   opts.Movement,
	}, nil
}

func (w *World) Machine() *anim.Machine {
	return w.machine
}

func (w *World) Rig() *camera.Rig {
	return w.rig
}

// Spawn places a new character at the origin facing world front, in Idle
// with a level camera.
func (w *World) Spawn(id entity.ID, remote string) error {
	if !id.Valid() {
		return fmt.Errorf("%w: %s", ErrUnknownCharacter, id)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.characters.Get(id); ok {
		return fmt.Errorf("%w: %s", ErrCharacterExists, id)
	}

	c := &character{id: id, remote: remote, body: movement.NewBody(), track: anim.NewTrack()}
	if _, err := w.machine.Initialize(id, c.track); err != nil {
		return err
	}
	if err := w.rig.Attach(id); err != nil {
		w.machine.Remove(id)
		return err
	}
	w.inputs.Open(id)
	w.characters.Set(id, c)

	slog.Info("Character spawned", "character", id, "remote", remote)
	w.bus.Publish(event.EventSpawn, event.CharacterEvent{Character: id, Remote: remote})
	return nil
}

// Despawn removes every piece of state owned by id.
func (w *World) Despawn(id entity.ID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	c, ok := w.characters.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCharacter, id)
	}
	w.characters.Delete(id)
	w.inputs.Close(id)
	w.rig.Detach(id)
	w.machine.Remove(id)

	slog.Info("Character despawned", "character", id, "remote", c.remote)
	w.bus.Publish(event.EventDespawn, event.CharacterEvent{Character: id, Remote: c.remote})
	return nil
}

// Submit stores the latest input of id. Input for characters that are not
// spawned is dropped.
func (w *World) Submit(id entity.ID, snap input.Snapshot) bool {
	if !w.inputs.Put(id, snap) {
		slog.Debug("Dropping input for unknown character", "character", id)
		return false
	}
	return true
}

// Characters returns the spawned ids in join order.
func (w *World) Characters() []entity.ID {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.characters.Keys()
}

func (w *World) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.characters.Len()
}

// SetTuning swaps movement and camera constants. It waits for a running step
// to finish, so a step never sees a mix of old and new values.
func (w *World) SetTuning(m movement.Tuning, c camera.Tuning) error {
	if err := m.Validate(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.rig.SetTuning(c); err != nil {
		return err
	}
	w.movement = m
	return nil
}

// Step advances every character by one step. Characters are independent and
// run in parallel up to the worker limit; the step returns once all of them
// are done. Any failure fails the whole step.
func (w *World) Step(ctx context.Context) (Tick, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	chars := make([]*character, 0, w.characters.Len())
	for _, id := range w.characters.Keys() {
		c, _ := w.characters.Get(id)
		chars = append(chars, c)
	}

	states := make([]CharacterState, len(chars))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(w.workers)
	for i, c := range chars {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("Character step panicked", "character", c.id, "panic", r, "stack", string(debug.Stack()))
					report.Recover(r, map[string]string{"character": c.id.String(), "component": "world"})
					err = fmt.Errorf("%w: %s: %v", ErrStepPanic, c.id, r)
				}
			}()
			states[i], err = w.stepCharacter(c)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return Tick{}, err
	}

	w.tick++
	return Tick{Number: w.tick, States: states}, nil
}

func (w *World) stepCharacter(c *character) (CharacterState, error) {
	snap, _ := w.inputs.Get(c.id)

	w.movement.Step(c.body, snap)
	evt := movement.Classify(snap, w.machine.Profile())
	motion, err := w.machine.Transition(c.id, evt)
	if err != nil {
		return CharacterState{}, fmt.Errorf("character %s: %w", c.id, err)
	}
	pose, err := w.rig.Update(c.id, snap.MouseDelta, c.body.Transform)
	if err != nil {
		return CharacterState{}, fmt.Errorf("character %s: %w", c.id, err)
	}

	clip, looping := c.track.Current()
	return CharacterState{
		Character: c.id,
		Transform: c.body.Transform,
		Event:     evt,
		Motion:    motion,
		Clip:      clip,
		Looping:   looping,
		Pose:      pose,
	}, nil
}
