package streams

import (
	"context"
	stderrors "errors"
	"fmt"
	"iter"

	"github.com/ajitpratap0/ticketsync/pkg/logger"
	"github.com/ajitpratap0/ticketsync/pkg/state"
	"github.com/ajitpratap0/ticketsync/pkg/zendesk"
	"go.uber.org/zap"
)

// fanOut dispatches each parent record to its selected children. It lives
// for one parent sync, which bounds the comment snapshot and the in-run
// child counters to that run.
type fanOut struct {
	s        *Syncer
	parent   Descriptor
	children []Descriptor
	counts   map[string]int64
	comments map[string]*reconciler
}

// newFanOut returns nil when the parent has no selected children.
func (s *Syncer) newFanOut(parent Descriptor) *fanOut {
	var children []Descriptor
	for _, name := range s.registry.Children(parent.Name) {
		if !s.selection.Has(name) {
			continue
		}
		if d, ok := s.registry.Lookup(name); ok {
			children = append(children, d)
		}
	}
	if len(children) == 0 {
		return nil
	}

	for _, c := range children {
		s.logger.Info(fmt.Sprintf("Syncing %s per %s record", c.Name, parent.Name))
	}
	return &fanOut{
		s:        s,
		parent:   parent,
		children: children,
		counts:   make(map[string]int64, len(children)),
		comments: make(map[string]*reconciler),
	}
}

// run syncs every selected child of rec. A child that is not found for this
// parent is logged and skipped; any other error is yielded and ends the run.
func (f *fanOut) run(ctx context.Context, rec Record, bm *state.Bookmarks, yield func(Emission, error) bool) bool {
	parentID := idString(rec["id"])

	for _, child := range f.children {
		for em, err := range f.child(ctx, child, parentID, rec["id"], bm) {
			if err != nil {
				if stderrors.Is(err, zendesk.ErrNotFound) {
					logger.FromContext(ctx, f.s.logger).Warn(fmt.Sprintf("Unable to retrieve %s for %s (ID: %s), record not found",
						child.Name, f.parent.Name, parentID),
						zap.String("child", child.Name))
					break
				}
				yield(Emission{}, err)
				return false
			}
			if !yield(em, nil) {
				return false
			}
		}
	}
	return true
}

// finish reports the aggregate count of each selected child and resets it.
func (f *fanOut) finish() {
	for _, child := range f.children {
		f.s.recorder.RecordCount(child.Name, f.counts[child.Name])
		f.counts[child.Name] = 0
	}
}

func (f *fanOut) child(ctx context.Context, d Descriptor, parentID string, rawID any, bm *state.Bookmarks) iter.Seq2[Emission, error] {
	if d.Reconcile {
		r, ok := f.comments[d.Name]
		if !ok {
			r = &reconciler{child: d, parent: f.parent}
			f.comments[d.Name] = r
		}
		return f.reconciled(ctx, r, parentID, rawID, bm)
	}

	return func(yield func(Emission, error) bool) {
		for rec, err := range f.s.items(ctx, d, d.Path(parentID), nil) {
			if err != nil {
				yield(Emission{}, err)
				return
			}
			if d.ParentKey != "" {
				rec[d.ParentKey] = rawID
			}
			f.counts[d.Name]++
			f.s.recorder.Capture(d.Name)
			if !yield(Emission{Stream: d.Name, Record: rec}, nil) {
				return
			}
		}
	}
}

// reconciled emits the comments of one parent that are newer than the
// threshold resolved from the run snapshot, while advancing the live
// per-parent bookmark for every comment seen.
func (f *fanOut) reconciled(ctx context.Context, r *reconciler, parentID string, rawID any, bm *state.Bookmarks) iter.Seq2[Emission, error] {
	return func(yield func(Emission, error) bool) {
		r.begin(bm, parentID)
		threshold := r.threshold(parentID)
		d := r.child

		for rec, err := range f.s.items(ctx, d, d.Path(parentID), nil) {
			if err != nil {
				yield(Emission{}, err)
				return
			}
			if d.ParentKey != "" {
				rec[d.ParentKey] = rawID
			}

			value := rec[d.ReplicationKey]
			ts, ok := state.ParseTimestamp(value)
			if !ok {
				yield(Emission{}, invalidKey(d, value))
				return
			}

			bm.AdvanceParent(d.Name, d.ReplicationKey, parentID, value)

			if !ts.After(threshold) {
				continue
			}
			f.counts[d.Name]++
			f.s.recorder.Capture(d.Name)
			if !yield(Emission{Stream: d.Name, Record: rec}, nil) {
				return
			}
		}
	}
}
