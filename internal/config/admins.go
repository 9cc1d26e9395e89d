package config

import (
	"os"
	"slices"
	"sync"
)

// AdminSource returns the current list of administrator ids.
type AdminSource func() ([]int64, error)

// EnvAdminSource reads ADMIN_IDS from the environment on every call.
func EnvAdminSource() ([]int64, error) {
	return ParseIDList(os.Getenv("ADMIN_IDS"))
}

// StaticAdminSource always returns the same ids.
func StaticAdminSource(ids ...int64) AdminSource {
	return func() ([]int64, error) {
		return slices.Clone(ids), nil
	}
}

// AdminSnapshot is an immutable view of the admin list at one version.
type AdminSnapshot struct {
	Version int
	ids     map[int64]struct{}
}

// Contains reports whether id is an administrator in this snapshot.
func (s AdminSnapshot) Contains(id int64) bool {
	_, ok := s.ids[id]
	return ok
}

// IDs returns the administrator ids in ascending order.
func (s AdminSnapshot) IDs() []int64 {
	out := make([]int64, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// AdminStore is a versioned, live-reloadable admin list.
// Readers always see the latest snapshot; Refresh swaps it atomically.
type AdminStore struct {
	mu      sync.RWMutex
	source  AdminSource
	current AdminSnapshot
}

// NewAdminStore creates a store seeded with the given ids at version 1.
func NewAdminStore(source AdminSource, initial []int64) *AdminStore {
	return &AdminStore{
		source:  source,
		current: newSnapshot(1, initial),
	}
}

// Snapshot returns the latest admin snapshot.
func (s *AdminStore) Snapshot() AdminSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// IsAdmin reports whether id is an administrator in the latest snapshot.
func (s *AdminStore) IsAdmin(id int64) bool {
	return s.Snapshot().Contains(id)
}

// Refresh re-reads the source. The version only advances when the set changed.
func (s *AdminStore) Refresh() (AdminSnapshot, error) {
	if s.source == nil {
		return s.Snapshot(), nil
	}
	ids, err := s.source()
	if err != nil {
		return s.Snapshot(), err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := newSnapshot(s.current.Version+1, ids)
	if sameSet(s.current.ids, next.ids) {
		return s.current, nil
	}
	s.current = next
	return s.current, nil
}

func newSnapshot(version int, ids []int64) AdminSnapshot {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return AdminSnapshot{Version: version, ids: set}
}

func sameSet(a, b map[int64]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for id := range a {
		if _, ok := b[id]; !ok {
			return false
		}
	}
	return true
}
