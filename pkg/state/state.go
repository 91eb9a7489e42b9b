// Package state holds the replication state aggregate persisted between runs
// and the bookmark accessors that are the only sanctioned way to mutate it.
//
// The persisted shape is
//
//	{"bookmarks": {"<stream>": {"<replication key>": <value>}}}
//
// where value is a timestamp string for single-bookmark streams, or a map of
// parent id to timestamp string for per-parent bookmarks (ticket comments).
package state

import (
	"bytes"
	"fmt"

	gojson "github.com/goccy/go-json"
)

// State is the replication state aggregate. It is created once per run,
// mutated in place by every stream, and persisted at run end.
type State struct {
	Bookmarks map[string]map[string]any `json:"bookmarks"`
}

// New returns an empty state.
func New() *State {
	return &State{Bookmarks: make(map[string]map[string]any)}
}

// Parse decodes a persisted state document. Empty input yields an empty state.
func Parse(data []byte) (*State, error) {
	st := New()
	if len(bytes.TrimSpace(data)) == 0 {
		return st, nil
	}
	if err := gojson.Unmarshal(data, st); err != nil {
		return nil, fmt.Errorf("failed to decode state: %w", err)
	}
	if st.Bookmarks == nil {
		st.Bookmarks = make(map[string]map[string]any)
	}
	return st, nil
}

// Marshal encodes the state in its persisted form.
func (s *State) Marshal() ([]byte, error) {
	if s.Bookmarks == nil {
		s.Bookmarks = make(map[string]map[string]any)
	}
	return gojson.Marshal(s)
}

// Clone returns a deep copy of the state.
func (s *State) Clone() *State {
	out := New()
	for stream, keys := range s.Bookmarks {
		cp := make(map[string]any, len(keys))
		for k, v := range keys {
			cp[k] = cloneValue(v)
		}
		out.Bookmarks[stream] = cp
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		cp := make(map[string]any, len(t))
		for k, inner := range t {
			cp[k] = cloneValue(inner)
		}
		return cp
	case []any:
		cp := make([]any, len(t))
		for i, inner := range t {
			cp[i] = cloneValue(inner)
		}
		return cp
	default:
		return v
	}
}

// value returns the raw bookmark value for stream/key.
func (s *State) value(stream, key string) (any, bool) {
	if s == nil || s.Bookmarks == nil {
		return nil, false
	}
	keys, ok := s.Bookmarks[stream]
	if !ok {
		return nil, false
	}
	v, ok := keys[key]
	return v, ok
}

func (s *State) set(stream, key string, v any) {
	if s.Bookmarks == nil {
		s.Bookmarks = make(map[string]map[string]any)
	}
	keys, ok := s.Bookmarks[stream]
	if !ok {
		keys = make(map[string]any)
		s.Bookmarks[stream] = keys
	}
	keys[key] = v
}

// parentMap returns the per-parent map stored under stream/key, if any.
func (s *State) parentMap(stream, key string) (map[string]any, bool) {
	v, ok := s.value(stream, key)
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}
