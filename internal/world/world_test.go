package world

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Versifine/mecharig/internal/anim"
	"github.com/Versifine/mecharig/internal/camera"
	"github.com/Versifine/mecharig/internal/entity"
	"github.com/Versifine/mecharig/internal/event"
	"github.com/Versifine/mecharig/internal/input"
	"github.com/Versifine/mecharig/internal/movement"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// near compares by absolute distance; float32 noise around an expected zero
// fails mgl32's relative ApproxEqual.
func near(a, b mgl32.Vec3, tol float32) bool {
	return a.Sub(b).Len() <= tol
}

func testOptions(t *testing.T, p anim.Profile, workers int) Options {
	t.Helper()
	lib, err := anim.NewLibrary("assets/mecha.glb/animations", map[string]string{
		"idle_2":  "idle_2.anim",
		"walk_5":  "walk_5.anim",
		"dash_0":  "dash_0.anim",
		"punch_4": "punch_4.anim",
	})
	if err != nil {
		t.Fatalf("NewLibrary() failed: %v", err)
	}
	return Options{
		Profile: p,
		Library: lib,
		Clips: map[anim.MotionState]string{
			anim.Idle:     "idle_2",
			anim.Walking:  "walk_5",
			anim.Dashing:  "dash_0",
			anim.Punching: "punch_4",
			anim.Jumping:  "dash_0",
		},
		Camera:   camera.DefaultTuning(),
		Movement: movement.DefaultTuning(),
		Workers:  workers,
		Bus:      event.NewBus(),
	}
}

func newTestWorld(t *testing.T, ids ...entity.ID) *World {
	t.Helper()
	w, err := New(testOptions(t, anim.Canonical(false), 4))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	for _, id := range ids {
		if err := w.Spawn(id, "test"); err != nil {
			t.Fatalf("Spawn(%s) failed: %v", id, err)
		}
	}
	return w
}

func step(t *testing.T, w *World) Tick {
	t.Helper()
	tick, err := w.Step(context.Background())
	if err != nil {
		t.Fatalf("Step() failed: %v", err)
	}
	return tick
}

func stateOf(t *testing.T, tick Tick, id entity.ID) CharacterState {
	t.Helper()
	for _, s := range tick.States {
		if s.Character == id {
			return s
		}
	}
	t.Fatalf("tick %d has no state for %s", tick.Number, id)
	return CharacterState{}
}

func TestSpawnStartsIdle(t *testing.T) {
	w := newTestWorld(t, 1)
	tick := step(t, w)
	s := stateOf(t, tick, 1)

	if s.Motion != anim.Idle || s.Clip.ID != "idle_2" || s.Looping {
		t.Fatalf("state = %s clip=%s looping=%v, want Idle idle_2 false", s.Motion, s.Clip.ID, s.Looping)
	}
	if s.Transform != entity.NewTransform() {
		t.Fatalf("transform = %+v, want origin facing front", s.Transform)
	}
	want := camera.Solve(camera.DefaultTuning(), 0, entity.NewTransform()).Pose
	if s.Pose != want {
		t.Fatalf("pose = %+v, want %+v", s.Pose, want)
	}
}

func TestSpawnTwiceFails(t *testing.T) {
	w := newTestWorld(t, 1)
	if err := w.Spawn(1, "again"); !errors.Is(err, ErrCharacterExists) {
		t.Fatalf("Spawn() twice error = %v, want ErrCharacterExists", err)
	}
	if err := w.Spawn(0, "zero"); err == nil {
		t.Fatal("Spawn(0) should fail")
	}
}

func TestDespawnClearsEverything(t *testing.T) {
	w := newTestWorld(t, 1, 2)
	if err := w.Despawn(1); err != nil {
		t.Fatalf("Despawn() failed: %v", err)
	}
	if err := w.Despawn(1); !errors.Is(err, ErrUnknownCharacter) {
		t.Fatalf("Despawn() twice error = %v, want ErrUnknownCharacter", err)
	}
	if w.Submit(1, input.Snapshot{Forward: true}) {
		t.Fatal("Submit() after Despawn should be dropped")
	}
	if _, err := w.Machine().Binding(1); !errors.Is(err, anim.ErrNoBinding) {
		t.Fatalf("Binding() after Despawn error = %v, want ErrNoBinding", err)
	}
	if _, err := w.Rig().VerticalAngle(1); !errors.Is(err, camera.ErrNoView) {
		t.Fatalf("VerticalAngle() after Despawn error = %v, want ErrNoView", err)
	}

	tick := step(t, w)
	if len(tick.States) != 1 || tick.States[0].Character != 2 {
		t.Fatalf("tick states = %+v, want only character 2", tick.States)
	}

	// The id can join again with fresh state.
	if err := w.Spawn(1, "back"); err != nil {
		t.Fatalf("Spawn() after Despawn failed: %v", err)
	}
}

func TestSpawnAndDespawnPublish(t *testing.T) {
	opts := testOptions(t, anim.Canonical(false), 1)
	var mu sync.Mutex
	var got []string
	opts.Bus.Subscribe(event.EventSpawn, func(raw any) {
		mu.Lock()
		got = append(got, "spawn:"+raw.(event.CharacterEvent).Remote)
		mu.Unlock()
	})
	opts.Bus.Subscribe(event.EventDespawn, func(raw any) {
		mu.Lock()
		got = append(got, "despawn:"+raw.(event.CharacterEvent).Remote)
		mu.Unlock()
	})
	w, err := New(opts)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	_ = w.Spawn(5, "10.0.0.1:19132")
	_ = w.Despawn(5)

	if len(got) != 2 || got[0] != "spawn:10.0.0.1:19132" || got[1] != "despawn:10.0.0.1:19132" {
		t.Fatalf("published = %v", got)
	}
}

// 输入保持到下一次更新：没有新消息时沿用上一次输入
func TestInputIsSticky(t *testing.T) {
	w := newTestWorld(t, 1)
	w.Submit(1, input.Snapshot{Forward: true})

	var last Tick
	for i := 0; i < 3; i++ {
		last = step(t, w)
	}
	s := stateOf(t, last, 1)
	if !near(s.Transform.Position, mgl32.Vec3{0.3, 0, 0}, 1e-5) {
		t.Fatalf("position = %v, want (0.3, 0, 0)", s.Transform.Position)
	}
	if s.Motion != anim.Walking || s.Clip.ID != "walk_5" || !s.Looping {
		t.Fatalf("state = %s clip=%s looping=%v, want Walking walk_5 true", s.Motion, s.Clip.ID, s.Looping)
	}

	w.Submit(1, input.Snapshot{})
	s = stateOf(t, step(t, w), 1)
	if s.Motion != anim.Idle || s.Event != anim.Stop {
		t.Fatalf("after release state = %s event = %s, want Idle on Stop", s.Motion, s.Event)
	}
}

// 跳跃状态只有走和冲刺能离开
func TestJumpingIsSticky(t *testing.T) {
	w := newTestWorld(t, 1)

	w.Submit(1, input.Snapshot{Jump: true})
	if s := stateOf(t, step(t, w), 1); s.Motion != anim.Jumping || s.Clip.ID != "dash_0" {
		t.Fatalf("state = %s clip=%s, want Jumping dash_0", s.Motion, s.Clip.ID)
	}

	w.Submit(1, input.Snapshot{})
	if s := stateOf(t, step(t, w), 1); s.Motion != anim.Jumping {
		t.Fatalf("after Stop state = %s, want Jumping", s.Motion)
	}

	w.Submit(1, input.Snapshot{Punch: true})
	if s := stateOf(t, step(t, w), 1); s.Motion != anim.Jumping {
		t.Fatalf("after Punch state = %s, want Jumping", s.Motion)
	}

	w.Submit(1, input.Snapshot{Right: true})
	if s := stateOf(t, step(t, w), 1); s.Motion != anim.Walking {
		t.Fatalf("after Walk state = %s, want Walking", s.Motion)
	}
}

func TestMouseTurnsHeadingAndTiltsCamera(t *testing.T) {
	w := newTestWorld(t, 1)
	w.Submit(1, input.Snapshot{Forward: true, MouseDelta: mgl32.Vec2{100, 20}})
	s := stateOf(t, step(t, w), 1)

	// dx=100 at 0.01 rad per unit is one radian of yaw.
	wantHeading := mgl32.QuatRotate(1, entity.WorldUp)
	if s.Transform.Heading.Sub(wantHeading).Len() > 1e-5 {
		t.Fatalf("heading = %v, want %v", s.Transform.Heading, wantHeading)
	}
	v, _ := w.Rig().VerticalAngle(1)
	if math32.Abs(v-0.2) > 1e-6 {
		t.Fatalf("vertical angle = %v, want 0.2", v)
	}
	want := camera.Solve(camera.DefaultTuning(), v, s.Transform).Pose
	if s.Pose != want {
		t.Fatalf("pose = %+v, want %+v", s.Pose, want)
	}
}

func TestStepKeepsJoinOrder(t *testing.T) {
	w := newTestWorld(t, 7, 3, 9, 1)
	tick := step(t, w)
	want := []entity.ID{7, 3, 9, 1}
	if len(tick.States) != len(want) {
		t.Fatalf("len(States) = %d, want %d", len(tick.States), len(want))
	}
	for i, id := range want {
		if tick.States[i].Character != id {
			t.Fatalf("States[%d] = %s, want %s", i, tick.States[i].Character, id)
		}
	}
	ids := w.Characters()
	for i, id := range want {
		if ids[i] != id {
			t.Fatalf("Characters() = %v, want %v", ids, want)
		}
	}
	if tick.Number != 1 || step(t, w).Number != 2 {
		t.Fatal("tick numbers should count up from 1")
	}
}

func TestParallelStepMatchesSerial(t *testing.T) {
	inputs := []input.Snapshot{
		{Forward: true, MouseDelta: mgl32.Vec2{3, 1}},
		{Left: true, Dash: true},
		{Jump: true, MouseDelta: mgl32.Vec2{-5, -2}},
		{Punch: true, Back: true},
	}
	run := func(workers int) []CharacterState {
		w, err := New(testOptions(t, anim.Canonical(true), workers))
		if err != nil {
			t.Fatalf("New() failed: %v", err)
		}
		for i := 1; i <= 32; i++ {
			id := entity.ID(i)
			_ = w.Spawn(id, "")
			w.Submit(id, inputs[i%len(inputs)])
		}
		var last Tick
		for i := 0; i < 10; i++ {
			last = step(t, w)
		}
		return last.States
	}

	serial := run(1)
	parallel := run(8)
	for i := range serial {
		if serial[i] != parallel[i] {
			t.Fatalf("state %d differs: serial %+v parallel %+v", i, serial[i], parallel[i])
		}
	}
}

func TestBasicProfileNeverJumps(t *testing.T) {
	w, err := New(testOptions(t, anim.Basic(false), 2))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	_ = w.Spawn(1, "")
	w.Submit(1, input.Snapshot{Forward: true, Jump: true, Punch: true})
	s := stateOf(t, step(t, w), 1)
	if s.Motion != anim.Walking || s.Event != anim.Walk {
		t.Fatalf("state = %s event = %s, want Walking on Walk", s.Motion, s.Event)
	}
}

func TestSetTuning(t *testing.T) {
	w := newTestWorld(t, 1)

	bad := movement.DefaultTuning()
	bad.Speed = -1
	if err := w.SetTuning(bad, camera.DefaultTuning()); !errors.Is(err, movement.ErrInvalidTuning) {
		t.Fatalf("SetTuning() error = %v, want movement.ErrInvalidTuning", err)
	}

	fast := movement.DefaultTuning()
	fast.Speed = 1
	if err := w.SetTuning(fast, camera.DefaultTuning()); err != nil {
		t.Fatalf("SetTuning() failed: %v", err)
	}
	w.Submit(1, input.Snapshot{Forward: true})
	s := stateOf(t, step(t, w), 1)
	if !near(s.Transform.Position, mgl32.Vec3{1, 0, 0}, 1e-5) {
		t.Fatalf("position = %v, want (1, 0, 0)", s.Transform.Position)
	}
}

func TestNewFailsOnMissingClip(t *testing.T) {
	opts := testOptions(t, anim.Canonical(false), 1)
	delete(opts.Clips, anim.Dashing)
	if _, err := New(opts); !errors.Is(err, anim.ErrUnknownClip) {
		t.Fatalf("New() error = %v, want anim.ErrUnknownClip", err)
	}
}
