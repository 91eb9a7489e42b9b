package streams

import (
	"time"

	"github.com/ajitpratap0/ticketsync/pkg/state"
)

// reconciler resolves per-parent inclusion thresholds for a child stream
// that keeps one bookmark per parent id. Thresholds are read from a snapshot
// frozen on first use, so the parent bookmark advancing during the same run
// cannot shift the decision for later parents.
type reconciler struct {
	child    Descriptor
	parent   Descriptor
	snapshot *state.Snapshot
}

// begin runs once per run. Without a per-parent map yet, the map is created
// and the current parent is seeded from the live parent bookmark.
func (r *reconciler) begin(bm *state.Bookmarks, parentID string) {
	if r.snapshot != nil {
		return
	}
	key := r.child.ReplicationKey
	if !bm.HasParentMap(r.child.Name, key) {
		bm.EnsureParentMap(r.child.Name, key)
		if ts, ok := bm.Lookup(r.parent.Name, r.parent.ReplicationKey); ok {
			bm.AdvanceParent(r.child.Name, key, parentID, state.FormatTimestamp(ts))
		}
	}
	r.snapshot = bm.Snapshot()
}

// threshold resolves, against the snapshot only: the parent's own child
// bookmark, else the parent stream bookmark, else the start date.
func (r *reconciler) threshold(parentID string) time.Time {
	if ts, ok := r.snapshot.Parent(r.child.Name, r.child.ReplicationKey, parentID); ok {
		return ts
	}
	if ts, ok := r.snapshot.Lookup(r.parent.Name, r.parent.ReplicationKey); ok {
		return ts
	}
	return r.snapshot.StartDate()
}
