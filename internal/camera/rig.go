package camera

import (
	"fmt"
	"sync"

	"github.com/Versifine/mecharig/internal/entity"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// Pose is what the render side reads each step.
type Pose struct {
	Eye    mgl32.Vec3
	LookAt mgl32.Vec3
}

// Solution is a pose together with the values it was derived from.
type Solution struct {
	Pose
	Center mgl32.Vec3
	Front  mgl32.Vec3
}

// Solve places the arc-ball: a pivot offset up and to the character's right,
// with the look-at far along the view ray and the eye behind the pivot on
// the same ray. It is a pure function of its inputs.
func Solve(t Tuning, vertical float32, tr entity.Transform) Solution {
	view := tr.Heading.Mul(mgl32.QuatRotate(vertical, entity.WorldRight)).Normalize()
	front := view.Rotate(entity.WorldFront)

	center := tr.Position.
		Add(entity.WorldUp.Mul(t.HeightOffset)).
		Add(tr.Right().Mul(t.LateralOffset))

	return Solution{
		Pose: Pose{
			Eye:    center.Sub(front.Mul(t.NearDistance)),
			LookAt: center.Add(front.Mul(t.FarDistance)),
		},
		Center: center,
		Front:  front,
	}
}

type view struct {
	mu       sync.Mutex
	vertical float32
}

// Rig owns the vertical view angle of every camera carrying character.
// Steps of different characters run concurrently under the read lock; each
// view guards its own angle.
type Rig struct {
	mu     sync.RWMutex
	tuning Tuning
	views  map[entity.ID]*view
}

func NewRig(t Tuning) (*Rig, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &Rig{tuning: t, views: make(map[entity.ID]*view)}, nil
}

func (r *Rig) Tuning() Tuning {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tuning
}

// SetTuning swaps the constants. Stored angles are clamped to the new range.
func (r *Rig) SetTuning(t Tuning) error {
	if err := t.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tuning = t
	for _, v := range r.views {
		v.vertical = t.Clamp(v.vertical)
	}
	return nil
}

// Attach starts a level view for id.
func (r *Rig) Attach(id entity.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.views[id]; ok {
		return fmt.Errorf("%w: %s", ErrViewExists, id)
	}
	r.views[id] = &view{}
	return nil
}

func (r *Rig) Detach(id entity.ID) {
	r.mu.Lock()
	delete(r.views, id)
	r.mu.Unlock()
}

// VerticalAngle returns the stored angle of id.
func (r *Rig) VerticalAngle(id entity.ID) (float32, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.views[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNoView, id)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.vertical, nil
}

// Update accumulates the vertical mouse delta into id's view angle, clamps
// it and recomputes the pose. Horizontal delta is not read here; it already
// turned the character's heading.
func (r *Rig) Update(id entity.ID, mouseDelta mgl32.Vec2, tr entity.Transform) (Pose, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t := r.tuning
	v, ok := r.views[id]
	if !ok {
		return Pose{}, fmt.Errorf("%w: %s", ErrNoView, id)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	dy := mouseDelta.Y()
	if finite(dy) && dy != 0 {
		v.vertical = t.Clamp(v.vertical + dy*t.Sensitivity)
	}
	return Solve(t, v.vertical, tr).Pose, nil
}

func finite(f float32) bool {
	return !math32.IsNaN(f) && !math32.IsInf(f, 0)
}
