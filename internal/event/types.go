package event

import "github.com/Versifine/mecharig/internal/entity"

const (
	EventTransition     = "anim.transition"
	EventStateCorrupted = "anim.corrupted"
	EventSpawn          = "character.spawn"
	EventDespawn        = "character.despawn"
)

type TransitionEvent struct {
	Character entity.ID
	From      string
	Event     string
	To        string
	Clip      string
	Looping   bool
}

// StateCorruptedEvent reports a stored motion state that could not be
// decoded and was replaced by Idle.
type StateCorruptedEvent struct {
	Character entity.ID
	Raw       uint32
}

type CharacterEvent struct {
	Character entity.ID
	Remote    string
}
