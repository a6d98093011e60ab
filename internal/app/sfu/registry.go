package sfu

import (
	"slices"
	"sync"

	"github.com/dkeye/voicegate/internal/domain"
)

// RoomRegistry separates registration intent (pending) from confirmed
// registrations. A referenced room is in exactly one of the two sets until it
// is unregistered or the registry is cleared.
type RoomRegistry struct {
	mu         sync.RWMutex
	registered map[domain.RoomID]struct{}
	pending    map[domain.RoomID]struct{}
}

func NewRoomRegistry() *RoomRegistry {
	return &RoomRegistry{
		registered: make(map[domain.RoomID]struct{}),
		pending:    make(map[domain.RoomID]struct{}),
	}
}

func (r *RoomRegistry) IsRegistered(id domain.RoomID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.registered[id]
	return ok
}

func (r *RoomRegistry) IsPending(id domain.RoomID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.pending[id]
	return ok
}

// MarkPending records intent for a room that is not registered yet.
// A registered room is left untouched.
func (r *RoomRegistry) MarkPending(id domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.registered[id]; ok {
		return
	}
	r.pending[id] = struct{}{}
}

func (r *RoomRegistry) MarkRegistered(id domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, id)
	r.registered[id] = struct{}{}
}

// MarkAllPending moves every registered room back to pending and returns how
// many moved. Called once per transition to disconnected.
func (r *RoomRegistry) MarkAllPending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.registered)
	for id := range r.registered {
		r.pending[id] = struct{}{}
	}
	clear(r.registered)
	return n
}

func (r *RoomRegistry) Unregister(id domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.registered, id)
	delete(r.pending, id)
}

func (r *RoomRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.registered)
	clear(r.pending)
}

// Pending returns a sorted snapshot of rooms awaiting (re-)registration.
func (r *RoomRegistry) Pending() []domain.RoomID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.pending)
}

func (r *RoomRegistry) Registered() []domain.RoomID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.registered)
}

func sortedKeys(m map[domain.RoomID]struct{}) []domain.RoomID {
	out := make([]domain.RoomID, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}
