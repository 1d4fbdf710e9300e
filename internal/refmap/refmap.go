// Package refmap records, for one run, which target object stands in for
// each source object. It is the only piece of migration state shared
// between workers.
package refmap

import (
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/lherron/aiomigrate/internal/domain"
)

// Key identifies a source-side reference. Ref is a path key for
// containers, a name for policies, an email for contacts and a BIOS UUID
// for computers.
type Key struct {
	Endpoint string
	Kind     domain.ObjectKind
	Ref      string
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Endpoint, k.Kind, k.Ref)
}

// Entry is one mapping
type Entry struct {
	Key      Key
	TargetID int64
}

// Map is safe for concurrent use. At most one creation per key is in
// flight at any time; concurrent callers for the same key share its result.
type Map struct {
	mu      sync.RWMutex
	entries map[Key]int64
	group   singleflight.Group
}

// New returns an empty map
func New() *Map {
	return &Map{entries: make(map[Key]int64)}
}

// Get returns the recorded target id
func (m *Map) Get(key Key) (int64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.entries[key]
	return id, ok
}

// Set records a mapping. An existing mapping for the key is kept; the
// returned id is the one in effect.
func (m *Map) Set(key Key, targetID int64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.entries[key]; ok {
		return id
	}
	m.entries[key] = targetID
	return targetID
}

// GetOrCreate returns the mapped id, calling create at most once per key
// when no mapping exists yet. A failed create records nothing, so a later
// call may retry.
func (m *Map) GetOrCreate(key Key, create func() (int64, error)) (int64, error) {
	if id, ok := m.Get(key); ok {
		return id, nil
	}

	v, err, _ := m.group.Do(key.String(), func() (any, error) {
		// Another caller may have finished between Get and Do
		if id, ok := m.Get(key); ok {
			return id, nil
		}
		id, err := create()
		if err != nil {
			return int64(0), err
		}
		return m.Set(key, id), nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

// Len returns the number of mappings
func (m *Map) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Entries returns a snapshot sorted by key
func (m *Map) Entries() []Entry {
	m.mu.RLock()
	out := make([]Entry, 0, len(m.entries))
	for k, id := range m.entries {
		out = append(out, Entry{Key: k, TargetID: id})
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Key.String() < out[j].Key.String()
	})
	return out
}

// ContainerKey builds the key for a container path
func ContainerKey(endpoint string, kind domain.ContainerKind, path domain.Path) Key {
	return Key{Endpoint: endpoint, Kind: domain.ObjectKindFor(kind), Ref: path.Key()}
}
