package parley

// Registry is the shared, capacity-bounded store of live connections.
//
// Invariants:
//   - One mutex guards all mutation and iteration. It is never held across
//     a blocking socket call: multi-connection operations take a Snapshot
//     under the lock, release it, perform I/O, and reacquire it only to
//     apply mutations.
//   - size ≤ capacity at all times; Insert checks and adds atomically.
//   - Exactly one record exists per live stream, for exactly the span
//     between successful handshake-insertion and removal.

import (
	"errors"
	"strings"
	"sync"
	"time"
)

// ErrCapacityExceeded is returned by Insert when the Registry is full.
// The caller still owes the remote an explicit ERROR frame before closing.
var ErrCapacityExceeded = errors.New("parley: registry at capacity")

// Registry stores Members keyed by remote address. The zero value is not
// usable; construct with NewRegistry.
type Registry struct {
	mu       sync.Mutex
	members  map[string]*Member
	order    []string // insertion order, for deterministic snapshots
	capacity int
}

// NewRegistry creates a Registry bounded at capacity members.
func NewRegistry(capacity int) *Registry {
	return &Registry{
		members:  make(map[string]*Member),
		capacity: capacity,
	}
}

// Insert adds m, atomically checking capacity first. The member's color is
// assigned here, round-robin over the palette by registry size at the
// moment of insertion. Inserting a key that is already present replaces
// the old record and returns it so the caller can close the stale stream.
func (r *Registry) Insert(m *Member) (replaced *Member, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.members[m.Key]; ok {
		m.Color = old.Color
		r.members[m.Key] = m
		return old, nil
	}
	if len(r.members) >= r.capacity {
		return nil, ErrCapacityExceeded
	}
	m.Color = colorPalette[len(r.members)%len(colorPalette)]
	r.members[m.Key] = m
	r.order = append(r.order, m.Key)
	return nil, nil
}

// Update atomically applies fn to the stored record for key. Used for
// heartbeat stamps and rate counters. Returns false when key is absent.
// fn runs under the Registry lock and must not block.
func (r *Registry) Update(key string, fn func(*Member)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[key]
	if !ok {
		return false
	}
	fn(m)
	return true
}

// Touch stamps the member's LastSeen. Called on any inbound traffic.
func (r *Registry) Touch(key string, now time.Time) {
	r.Update(key, func(m *Member) { m.LastSeen = now })
}

// Remove deletes the record for key and returns it, or nil when absent.
// The caller owns closing the returned member's stream.
func (r *Registry) Remove(key string) *Member {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[key]
	if !ok {
		return nil
	}
	delete(r.members, key)
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return m
}

// Get returns the record for key, or nil.
func (r *Registry) Get(key string) *Member {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.members[key]
}

// Lookup finds a member by display name, case-insensitively. Returns nil
// when no member declares that name.
func (r *Registry) Lookup(name string) *Member {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, key := range r.order {
		if m := r.members[key]; m != nil && strings.EqualFold(m.Name, name) {
			return m
		}
	}
	return nil
}

// Snapshot returns a copy of all records in insertion order. The copies
// share the live Conn handles — that is the point: callers fan out I/O
// over the snapshot with the lock released, then reconcile removals by
// key against the current Registry, never against the stale copies.
func (r *Registry) Snapshot() []Member {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := make([]Member, 0, len(r.order))
	for _, key := range r.order {
		if m := r.members[key]; m != nil {
			snap = append(snap, *m)
		}
	}
	return snap
}

// Len returns the current member count.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// Clear empties the Registry and returns every removed member, in
// insertion order, for the caller to close.
func (r *Registry) Clear() []*Member {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := make([]*Member, 0, len(r.order))
	for _, key := range r.order {
		if m := r.members[key]; m != nil {
			removed = append(removed, m)
		}
	}
	r.members = make(map[string]*Member)
	r.order = nil
	return removed
}
