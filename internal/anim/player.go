package anim

import "sync"

// Player is a playback target that can be told to play a clip.
type Player interface {
	Play(clip ClipHandle, looping bool)
}

// Track is the server side playback target of one character. It only keeps
// what was last requested; the client renders it from State packets.
type Track struct {
	mu      sync.Mutex
	clip    ClipHandle
	looping bool
	plays   uint64
}

func NewTrack() *Track {
	return &Track{}
}

func (t *Track) Play(clip ClipHandle, looping bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clip = clip
	t.looping = looping
	t.plays++
}

// Current returns the last requested clip and its loop flag.
func (t *Track) Current() (ClipHandle, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.clip, t.looping
}

// Plays counts Play calls since creation.
func (t *Track) Plays() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.plays
}
