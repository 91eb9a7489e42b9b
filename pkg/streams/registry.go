package streams

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ajitpratap0/ticketsync/pkg/errors"
)

// Registry is the registration table of stream descriptors and the
// parent to children table.
type Registry struct {
	mu          sync.RWMutex
	descriptors map[string]Descriptor
	order       []string
	subStreams  map[string][]string
	parents     map[string]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		descriptors: make(map[string]Descriptor),
		subStreams:  make(map[string][]string),
		parents:     make(map[string]string),
	}
}

// Register adds a descriptor.
func (r *Registry) Register(d Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if d.Name == "" {
		return errors.New(errors.ErrorTypeConfig, "stream name is required")
	}
	if _, exists := r.descriptors[d.Name]; exists {
		return errors.New(errors.ErrorTypeConfig, fmt.Sprintf("stream %s already registered", d.Name))
	}
	if len(d.KeyProperties) == 0 {
		d.KeyProperties = []string{"id"}
	}
	r.descriptors[d.Name] = d
	r.order = append(r.order, d.Name)
	return nil
}

// RegisterSubStreams declares children as synced through parent. Both must
// be registered and every child must be ChildDriven.
func (r *Registry) RegisterSubStreams(parent string, children ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.descriptors[parent]; !ok {
		return errors.New(errors.ErrorTypeConfig, fmt.Sprintf("parent stream %s not registered", parent))
	}
	for _, child := range children {
		d, ok := r.descriptors[child]
		if !ok {
			return errors.New(errors.ErrorTypeConfig, fmt.Sprintf("child stream %s not registered", child))
		}
		if d.Strategy != ChildDriven {
			return errors.New(errors.ErrorTypeConfig, fmt.Sprintf("child stream %s must be child driven", child))
		}
		if p, taken := r.parents[child]; taken {
			return errors.New(errors.ErrorTypeConfig, fmt.Sprintf("child stream %s already belongs to %s", child, p))
		}
		r.parents[child] = parent
		r.subStreams[parent] = append(r.subStreams[parent], child)
	}
	return nil
}

// Lookup returns the descriptor for name.
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.descriptors[name]
	return d, ok
}

// Names returns stream names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Children returns the declared children of parent in declaration order.
func (r *Registry) Children(parent string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.subStreams[parent]...)
}

// ParentOf returns the parent of a child stream.
func (r *Registry) ParentOf(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.parents[name]
	return p, ok
}

// IsChild reports whether name is a declared child.
func (r *Registry) IsChild(name string) bool {
	_, ok := r.ParentOf(name)
	return ok
}

// SubStreams returns a copy of the parent to children table.
func (r *Registry) SubStreams() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string][]string, len(r.subStreams))
	for p, cs := range r.subStreams {
		out[p] = append([]string(nil), cs...)
	}
	return out
}

// Parents returns the names of streams that have children, sorted.
func (r *Registry) Parents() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.subStreams))
	for p := range r.subStreams {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Zendesk Support streams.
var defaultDescriptors = []Descriptor{
	{
		Name:                "tickets",
		Strategy:            IncrementalExport,
		Pagination:          ExportPagination,
		Endpoint:            "/api/v2/incremental/tickets/cursor.json",
		ItemKey:             "tickets",
		ReplicationKey:      "generated_timestamp",
		EpochReplicationKey: true,
		DropFields:          []string{"fields"},
	},
	{
		Name:       "ticket_audits",
		Strategy:   ChildDriven,
		Pagination: OffsetPagination,
		Endpoint:   "/api/v2/tickets/{id}/audits.json",
		ItemKey:    "audits",
	},
	{
		Name:       "ticket_metrics",
		Strategy:   ChildDriven,
		Pagination: OffsetPagination,
		Endpoint:   "/api/v2/tickets/{id}/metrics",
		ItemKey:    "ticket_metric",
		SingleItem: true,
	},
	{
		Name:           "ticket_comments",
		Strategy:       ChildDriven,
		Pagination:     OffsetPagination,
		Endpoint:       "/api/v2/tickets/{id}/comments.json",
		ItemKey:        "comments",
		ReplicationKey: "created_at",
		ParentKey:      "ticket_id",
		Reconcile:      true,
	},
	{
		Name:                 "users",
		Strategy:             IncrementalExport,
		Pagination:           ExportPagination,
		Endpoint:             "/api/v2/incremental/users/cursor.json",
		ItemKey:              "users",
		ReplicationKey:       "updated_at",
		CustomFields:         "user_fields",
		CustomFieldsProperty: "user_fields",
	},
	{
		Name:                 "organizations",
		Strategy:             IncrementalExport,
		Pagination:           ExportPagination,
		Endpoint:             "/api/v2/incremental/organizations.json",
		ItemKey:              "organizations",
		ReplicationKey:       "updated_at",
		CustomFields:         "organization_fields",
		CustomFieldsProperty: "organization_fields",
	},
	{
		Name:           "groups",
		Strategy:       IncrementalCursor,
		Pagination:     CursorPagination,
		Endpoint:       "/api/v2/groups",
		ItemKey:        "groups",
		ReplicationKey: "updated_at",
	},
	{
		Name:           "group_memberships",
		Strategy:       IncrementalCursor,
		Pagination:     CursorPagination,
		Endpoint:       "/api/v2/group_memberships",
		ItemKey:        "group_memberships",
		ReplicationKey: "updated_at",
		AllowUndated:   true,
	},
	{
		Name:           "macros",
		Strategy:       IncrementalCursor,
		Pagination:     CursorPagination,
		Endpoint:       "/api/v2/macros",
		ItemKey:        "macros",
		ReplicationKey: "updated_at",
	},
	{
		Name:          "tags",
		Strategy:      FullTable,
		Pagination:    CursorPagination,
		Endpoint:      "/api/v2/tags",
		ItemKey:       "tags",
		KeyProperties: []string{"name"},
	},
	{
		Name:           "ticket_fields",
		Strategy:       IncrementalCursor,
		Pagination:     CursorPagination,
		Endpoint:       "/api/v2/ticket_fields",
		ItemKey:        "ticket_fields",
		ReplicationKey: "updated_at",
	},
	{
		Name:           "ticket_forms",
		Strategy:       IncrementalCursor,
		Pagination:     OffsetPagination,
		Endpoint:       "/api/v2/ticket_forms.json",
		ItemKey:        "ticket_forms",
		ReplicationKey: "updated_at",
	},
	{
		Name:           "satisfaction_ratings",
		Strategy:       IncrementalCursor,
		Pagination:     CursorPagination,
		Endpoint:       "/api/v2/satisfaction_ratings",
		ItemKey:        "satisfaction_ratings",
		ReplicationKey: "updated_at",
		SendStartTime:  true,
	},
	{
		Name:       "sla_policies",
		Strategy:   FullTable,
		Pagination: OffsetPagination,
		Endpoint:   "/api/v2/slas/policies.json",
		ItemKey:    "sla_policies",
	},
}

// DefaultRegistry returns the registry of every supported stream with
// tickets fanning out to its audits, metrics and comments.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, d := range defaultDescriptors {
		if err := r.Register(d); err != nil {
			panic(err)
		}
	}
	if err := r.RegisterSubStreams("tickets", "ticket_audits", "ticket_metrics", "ticket_comments"); err != nil {
		panic(err)
	}
	return r
}
