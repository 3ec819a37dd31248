package anim

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/zeebo/xxh3"
)

// ClipHandle is a resolved, playable clip.
type ClipHandle struct {
	ID   string
	URL  string
	Hash uint64
}

func (h ClipHandle) IsZero() bool {
	return h.ID == "" && h.URL == ""
}

// Library maps logical clip ids to clip resources. It is read-only once built.
type Library struct {
	clips map[string]ClipHandle
}

// NewLibrary builds a library from id -> file entries rooted at base.
func NewLibrary(base string, entries map[string]string) (*Library, error) {
	lib := &Library{clips: make(map[string]ClipHandle, len(entries))}
	for id, file := range entries {
		id = strings.TrimSpace(id)
		file = strings.TrimSpace(file)
		if id == "" {
			return nil, fmt.Errorf("%w: empty clip id", ErrUnknownClip)
		}
		if file == "" {
			return nil, fmt.Errorf("%w: clip %q has no file", ErrUnknownClip, id)
		}
		url := file
		if base != "" {
			url = path.Join(base, file)
		}
		lib.clips[id] = ClipHandle{ID: id, URL: url, Hash: xxh3.HashString(url)}
	}
	return lib, nil
}

// Resolve returns the handle for id.
func (l *Library) Resolve(id string) (ClipHandle, error) {
	if l == nil {
		return ClipHandle{}, fmt.Errorf("%w: %q (no library)", ErrUnknownClip, id)
	}
	h, ok := l.clips[id]
	if !ok {
		return ClipHandle{}, fmt.Errorf("%w: %q", ErrUnknownClip, id)
	}
	return h, nil
}

// IDs returns the known clip ids, sorted.
func (l *Library) IDs() []string {
	if l == nil {
		return nil
	}
	ids := make([]string, 0, len(l.clips))
	for id := range l.clips {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ClipSet is the clip chosen for each state of a profile.
type ClipSet map[MotionState]ClipHandle

// ResolveClips resolves the clip of every state in p. Missing or unknown
// clips fail here so they never surface at playback time.
func ResolveClips(lib *Library, p Profile, byState map[MotionState]string) (ClipSet, error) {
	set := make(ClipSet, len(p.states))
	for _, s := range p.states {
		id, ok := byState[s]
		if !ok || id == "" {
			return nil, fmt.Errorf("%w: no clip configured for %s", ErrUnknownClip, s)
		}
		h, err := lib.Resolve(id)
		if err != nil {
			return nil, fmt.Errorf("resolve clip for %s: %w", s, err)
		}
		set[s] = h
	}
	return set, nil
}
