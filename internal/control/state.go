package control

import (
	"sort"
	"sync"
	"time"

	"github.com/whorules/arm-controller/internal/domain/model"
)

// State is the per-resource controller record.
type State struct {
	CurrentValue  int
	LastChangedAt time.Time
	StableStreak  int
}

// StateStore holds the state of every known resource. Keys are fixed at Seed.
type StateStore struct {
	mu     sync.RWMutex
	states map[model.ResourceKey]State
}

func NewStateStore() *StateStore {
	return &StateStore{states: make(map[model.ResourceKey]State)}
}

// Seed installs the initial records. It is a no-op once the store holds any key.
func (s *StateStore) Seed(initial map[model.ResourceKey]State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.states) > 0 {
		return false
	}
	for k, st := range initial {
		s.states[k] = st
	}
	return true
}

// Get returns a copy of the record for key.
func (s *StateStore) Get(key model.ResourceKey) (State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[key]
	return st, ok
}

// Put replaces the record for an existing key. Unknown keys are ignored.
func (s *StateStore) Put(key model.ResourceKey, st State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.states[key]; !ok {
		return false
	}
	s.states[key] = st
	return true
}

// Keys returns the known keys in lexical order.
func (s *StateStore) Keys() []model.ResourceKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]model.ResourceKey, 0, len(s.states))
	for k := range s.states {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func (s *StateStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.states)
}

// Snapshot returns a copy of every record.
func (s *StateStore) Snapshot() map[model.ResourceKey]State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[model.ResourceKey]State, len(s.states))
	for k, st := range s.states {
		out[k] = st
	}
	return out
}
