package world

import (
	"sync"

	"github.com/Versifine/mecharig/internal/entity"
	"github.com/Versifine/mecharig/internal/input"
)

// InputStore keeps the latest input received for each character. Input is
// sticky: a character without a fresh message replays the last one.
type InputStore struct {
	mu     sync.RWMutex
	latest map[entity.ID]input.Snapshot
}

func NewInputStore() *InputStore {
	return &InputStore{latest: make(map[entity.ID]input.Snapshot)}
}

// Open starts accepting input for id with everything released.
func (s *InputStore) Open(id entity.ID) {
	s.mu.Lock()
	s.latest[id] = input.Snapshot{}
	s.mu.Unlock()
}

func (s *InputStore) Close(id entity.ID) {
	s.mu.Lock()
	delete(s.latest, id)
	s.mu.Unlock()
}

// Put replaces the stored input. It reports false when id is not open.
func (s *InputStore) Put(id entity.ID, snap input.Snapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.latest[id]; !ok {
		return false
	}
	s.latest[id] = snap
	return true
}

func (s *InputStore) Get(id entity.ID) (input.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.latest[id]
	return snap, ok
}
