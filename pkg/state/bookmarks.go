package state

import (
	"time"
)

// Bookmarks is the monotonic-max accessor over a State. Every bookmark write
// in the engine goes through Advance or AdvanceParent; the stored value for a
// stream converges to the maximum valid replication-key value observed,
// regardless of the order records arrive in.
type Bookmarks struct {
	state     *State
	startDate time.Time
}

// NewBookmarks wraps st. startDate is the fallback for streams with no bookmark.
func NewBookmarks(st *State, startDate time.Time) *Bookmarks {
	if st == nil {
		st = New()
	}
	return &Bookmarks{state: st, startDate: startDate.UTC()}
}

// State returns the live state aggregate.
func (b *Bookmarks) State() *State {
	return b.state
}

// StartDate returns the configured run start date.
func (b *Bookmarks) StartDate() time.Time {
	return b.startDate
}

// Lookup returns the stored bookmark for stream/key, if present and valid.
func (b *Bookmarks) Lookup(stream, key string) (time.Time, bool) {
	return lookup(b.state, stream, key)
}

// Get returns the stored bookmark for stream/key or the start date if absent.
func (b *Bookmarks) Get(stream, key string) time.Time {
	if ts, ok := b.Lookup(stream, key); ok {
		return ts
	}
	return b.startDate
}

// Advance writes candidate as the bookmark for stream/key iff it parses as a
// timestamp strictly greater than Get(stream, key). It reports whether the
// bookmark moved.
func (b *Bookmarks) Advance(stream, key string, candidate any) bool {
	v, ok := advance(b.Get(stream, key), true, candidate)
	if !ok {
		return false
	}
	b.state.set(stream, key, v)
	return true
}

// HasParentMap reports whether a per-parent bookmark map exists for stream/key.
func (b *Bookmarks) HasParentMap(stream, key string) bool {
	_, ok := b.state.parentMap(stream, key)
	return ok
}

// EnsureParentMap creates an empty per-parent map for stream/key when none
// exists. An existing single-value bookmark at that key is replaced.
func (b *Bookmarks) EnsureParentMap(stream, key string) {
	if b.HasParentMap(stream, key) {
		return
	}
	b.state.set(stream, key, make(map[string]any))
}

// Parent returns the per-parent bookmark for parentID, if present and valid.
func (b *Bookmarks) Parent(stream, key, parentID string) (time.Time, bool) {
	return parentLookup(b.state, stream, key, parentID)
}

// AdvanceParent applies the monotonic-max rule to one entry of a per-parent
// map. An absent entry accepts any valid timestamp. The map only grows.
func (b *Bookmarks) AdvanceParent(stream, key, parentID string, candidate any) bool {
	current, has := b.Parent(stream, key, parentID)
	v, ok := advance(current, has, candidate)
	if !ok {
		return false
	}
	b.EnsureParentMap(stream, key)
	m, _ := b.state.parentMap(stream, key)
	m[parentID] = v
	return true
}

// Snapshot freezes a deep copy of the current state.
func (b *Bookmarks) Snapshot() *Snapshot {
	return &Snapshot{state: b.state.Clone(), startDate: b.startDate}
}

// advance is the single monotonic-max primitive. It returns the value to
// store and true when candidate is a valid timestamp strictly after current
// (or when there is no current value).
func advance(current time.Time, hasCurrent bool, candidate any) (any, bool) {
	ts, ok := ParseTimestamp(candidate)
	if !ok {
		return nil, false
	}
	if hasCurrent && !ts.After(current) {
		return nil, false
	}
	if s, isString := candidate.(string); isString {
		return s, true
	}
	return FormatTimestamp(ts), true
}

func lookup(st *State, stream, key string) (time.Time, bool) {
	v, ok := st.value(stream, key)
	if !ok {
		return time.Time{}, false
	}
	return ParseTimestamp(v)
}

func parentLookup(st *State, stream, key, parentID string) (time.Time, bool) {
	m, ok := st.parentMap(stream, key)
	if !ok {
		return time.Time{}, false
	}
	v, ok := m[parentID]
	if !ok {
		return time.Time{}, false
	}
	return ParseTimestamp(v)
}

// Snapshot is an immutable copy of the bookmark state taken once per run.
// Reads against it are unaffected by later writes to the live state.
type Snapshot struct {
	state     *State
	startDate time.Time
}

// Lookup returns the frozen bookmark for stream/key.
func (s *Snapshot) Lookup(stream, key string) (time.Time, bool) {
	return lookup(s.state, stream, key)
}

// Parent returns the frozen per-parent bookmark for parentID.
func (s *Snapshot) Parent(stream, key, parentID string) (time.Time, bool) {
	return parentLookup(s.state, stream, key, parentID)
}

// StartDate returns the run start date captured with the snapshot.
func (s *Snapshot) StartDate() time.Time {
	return s.startDate
}
