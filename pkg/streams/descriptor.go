// Package streams declares every replicated entity and drives its sync.
//
// An entity is a Descriptor: a Strategy tag plus endpoint, item key and
// replication key. Syncer dispatches on the Strategy and pulls pages from an
// injected Pager, producing a lazy iter.Seq2 of Emissions. Bookmarks only
// move through state.Bookmarks, so the stored cursor for a stream converges
// to the maximum replication value seen regardless of delivery order.
package streams

import (
	"context"
	"iter"
	"net/url"
	"sort"
	"strings"
)

// Strategy is the replication contract of a stream.
type Strategy int

const (
	// FullTable re-emits the whole collection every run.
	FullTable Strategy = iota
	// IncrementalCursor filters client-side against the bookmark read at
	// stream start with an inclusive test, since the API order is not trusted.
	IncrementalCursor
	// IncrementalExport relies on server-side filtering by start_time.
	IncrementalExport
	// ChildDriven streams are only synced once per parent record.
	ChildDriven
)

func (s Strategy) String() string {
	switch s {
	case FullTable:
		return "full_table"
	case IncrementalCursor:
		return "incremental_cursor"
	case IncrementalExport:
		return "incremental_export"
	case ChildDriven:
		return "child_driven"
	default:
		return "unknown"
	}
}

// Pagination selects the listing strategy of the Pager.
type Pagination int

const (
	CursorPagination Pagination = iota
	OffsetPagination
	ExportPagination
)

// Replication methods as written to catalog metadata.
const (
	MethodFullTable   = "FULL_TABLE"
	MethodIncremental = "INCREMENTAL"
)

// ParentIDPlaceholder is substituted with the parent id in child endpoints.
const ParentIDPlaceholder = "{id}"

// Descriptor declares one stream.
type Descriptor struct {
	Name           string
	Strategy       Strategy
	Pagination     Pagination
	Endpoint       string
	ItemKey        string
	ReplicationKey string
	KeyProperties  []string

	// SingleItem means ItemKey holds one object per page rather than an array.
	SingleItem bool
	// EpochReplicationKey means the replication value is epoch seconds and is
	// normalized to a UTC timestamp string before advancing.
	EpochReplicationKey bool
	// DropFields are removed from every record before it is emitted.
	DropFields []string
	// SendStartTime adds start_time (bookmark epoch) to cursor listings.
	SendStartTime bool
	// AllowUndated emits records lacking a replication value when they carry an id.
	AllowUndated bool
	// ParentKey names the field child records receive the parent id under.
	ParentKey string
	// Reconcile enables per-parent bookmark reconciliation.
	Reconcile bool
	// CustomFields names the custom field resource augmenting the schema.
	CustomFields string
	// CustomFieldsProperty is the schema property holding custom fields.
	CustomFieldsProperty string
}

// ReplicationMethod returns FULL_TABLE or INCREMENTAL.
func (d Descriptor) ReplicationMethod() string {
	if d.Strategy == FullTable {
		return MethodFullTable
	}
	return MethodIncremental
}

// Path returns the endpoint with the parent id substituted.
func (d Descriptor) Path(parentID string) string {
	return strings.ReplaceAll(d.Endpoint, ParentIDPlaceholder, parentID)
}

// Record is one untyped API object.
type Record = map[string]any

// Emission is a record routed to its target stream.
type Emission struct {
	Stream string
	Record Record
}

// Pager lists API resources. Every method yields raw pages and fails with
// zendesk.ErrNotFound when a per-parent resource does not exist.
type Pager interface {
	CursorPages(ctx context.Context, path string, params url.Values) iter.Seq2[map[string]any, error]
	OffsetPages(ctx context.Context, path string, params url.Values) iter.Seq2[map[string]any, error]
	ExportPages(ctx context.Context, path string, startTime int64) iter.Seq2[map[string]any, error]
}

// Recorder observes record counts per logical stream.
type Recorder interface {
	// Capture counts one record.
	Capture(stream string)
	// RecordCount reports an aggregate count for a child stream.
	RecordCount(stream string, count int64)
}

type nopRecorder struct{}

func (nopRecorder) Capture(string)            {}
func (nopRecorder) RecordCount(string, int64) {}

// Selection is the set of stream names chosen for a run.
type Selection map[string]bool

// NewSelection builds a Selection from names.
func NewSelection(names ...string) Selection {
	s := make(Selection, len(names))
	for _, n := range names {
		s[n] = true
	}
	return s
}

// Has reports whether name is selected.
func (s Selection) Has(name string) bool {
	return s[name]
}

// Names returns the selected names in sorted order.
func (s Selection) Names() []string {
	out := make([]string, 0, len(s))
	for n, ok := range s {
		if ok {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}
