package streams

import (
	"context"
	"fmt"
	"iter"
	"net/url"
	"strconv"

	"github.com/ajitpratap0/ticketsync/pkg/errors"
	"github.com/ajitpratap0/ticketsync/pkg/state"
	gojson "github.com/goccy/go-json"
	"go.uber.org/zap"
)

// Syncer drives streams against a Pager.
type Syncer struct {
	pager     Pager
	registry  *Registry
	selection Selection
	recorder  Recorder
	logger    *zap.Logger
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithRecorder sets the record count observer.
func WithRecorder(r Recorder) Option {
	return func(s *Syncer) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Syncer) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSyncer creates a Syncer. selection decides which children a parent
// fans out to.
func NewSyncer(pager Pager, registry *Registry, selection Selection, opts ...Option) *Syncer {
	s := &Syncer{
		pager:     pager,
		registry:  registry,
		selection: selection,
		recorder:  nopRecorder{},
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("component", "syncer"))
	return s
}

// Sync returns the lazy emission sequence of a top-level stream. The
// sequence is not restartable. Bookmarks advance in bm as records are pulled.
func (s *Syncer) Sync(ctx context.Context, name string, bm *state.Bookmarks) iter.Seq2[Emission, error] {
	d, ok := s.registry.Lookup(name)
	if !ok {
		return failed(errors.New(errors.ErrorTypeConfig, fmt.Sprintf("unknown stream %s", name)))
	}

	switch d.Strategy {
	case FullTable:
		return s.syncFullTable(ctx, d)
	case IncrementalCursor:
		return s.syncCursor(ctx, d, bm)
	case IncrementalExport:
		return s.syncExport(ctx, d, bm)
	default:
		return failed(errors.New(errors.ErrorTypeConfig,
			fmt.Sprintf("stream %s is synced through its parent", name)))
	}
}

func (s *Syncer) syncFullTable(ctx context.Context, d Descriptor) iter.Seq2[Emission, error] {
	return func(yield func(Emission, error) bool) {
		for rec, err := range s.items(ctx, d, d.Path(""), nil) {
			if err != nil {
				yield(Emission{}, err)
				return
			}
			s.recorder.Capture(d.Name)
			if !yield(Emission{Stream: d.Name, Record: rec}, nil) {
				return
			}
		}
	}
}

// syncCursor applies record_value >= bookmark_at_start before advancing.
// Boundary records are re-emitted on the next run rather than risk loss.
func (s *Syncer) syncCursor(ctx context.Context, d Descriptor, bm *state.Bookmarks) iter.Seq2[Emission, error] {
	return func(yield func(Emission, error) bool) {
		start := bm.Get(d.Name, d.ReplicationKey)

		var params url.Values
		if d.SendStartTime {
			params = url.Values{"start_time": {strconv.FormatInt(start.Unix(), 10)}}
		}

		for rec, err := range s.items(ctx, d, d.Path(""), params) {
			if err != nil {
				yield(Emission{}, err)
				return
			}

			value := rec[d.ReplicationKey]
			if isBlank(value) {
				if !d.AllowUndated {
					yield(Emission{}, missingKey(d, rec))
					return
				}
				if isBlank(rec["id"]) {
					s.logger.Info(fmt.Sprintf("Received %s record with no id or %s, skipping...", d.Name, d.ReplicationKey))
					continue
				}
				s.logger.Info(fmt.Sprintf("%s record with id: %v does not have an %s field so it will be synced...",
					d.Name, rec["id"], d.ReplicationKey))
				s.recorder.Capture(d.Name)
				if !yield(Emission{Stream: d.Name, Record: rec}, nil) {
					return
				}
				continue
			}

			ts, ok := state.ParseTimestamp(value)
			if !ok {
				yield(Emission{}, invalidKey(d, value))
				return
			}
			if ts.Before(start) {
				continue
			}

			bm.Advance(d.Name, d.ReplicationKey, value)
			s.recorder.Capture(d.Name)
			if !yield(Emission{Stream: d.Name, Record: rec}, nil) {
				return
			}
		}
	}
}

// syncExport trusts the server-side start_time filter and only advances.
func (s *Syncer) syncExport(ctx context.Context, d Descriptor, bm *state.Bookmarks) iter.Seq2[Emission, error] {
	return func(yield func(Emission, error) bool) {
		start := bm.Get(d.Name, d.ReplicationKey)
		fan := s.newFanOut(d)

		for page, err := range s.pager.ExportPages(ctx, d.Path(""), start.Unix()) {
			if err != nil {
				yield(Emission{}, err)
				return
			}

			raw, present := page[d.ItemKey]
			if !present {
				if envelope, isErr := page["error"]; isErr {
					yield(Emission{}, exportError(envelope))
					return
				}
			}
			items, err := asItems(d, raw)
			if err != nil {
				yield(Emission{}, err)
				return
			}

			for _, rec := range items {
				value := rec[d.ReplicationKey]
				if d.EpochReplicationKey {
					secs, ok := toInt64(value)
					if !ok {
						yield(Emission{}, invalidKey(d, value))
						return
					}
					value = state.FromEpoch(secs)
				}
				bm.Advance(d.Name, d.ReplicationKey, value)

				for _, f := range d.DropFields {
					delete(rec, f)
				}

				s.recorder.Capture(d.Name)
				if !yield(Emission{Stream: d.Name, Record: rec}, nil) {
					return
				}
				if fan != nil && !fan.run(ctx, rec, bm, yield) {
					return
				}
			}
		}

		if fan != nil {
			fan.finish()
		}
	}
}

// items flattens the pages of a non-export listing into records.
func (s *Syncer) items(ctx context.Context, d Descriptor, path string, params url.Values) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		var pages iter.Seq2[map[string]any, error]
		switch d.Pagination {
		case OffsetPagination:
			pages = s.pager.OffsetPages(ctx, path, params)
		default:
			pages = s.pager.CursorPages(ctx, path, params)
		}

		for page, err := range pages {
			if err != nil {
				yield(nil, err)
				return
			}
			items, err := asItems(d, page[d.ItemKey])
			if err != nil {
				yield(nil, err)
				return
			}
			for _, rec := range items {
				if !yield(rec, nil) {
					return
				}
			}
		}
	}
}

func asItems(d Descriptor, raw any) ([]Record, error) {
	if raw == nil {
		return nil, nil
	}
	if d.SingleItem {
		rec, ok := raw.(map[string]any)
		if !ok {
			return nil, errors.Newf(errors.ErrorTypeData, "%s: %s is not an object", d.Name, d.ItemKey)
		}
		return []Record{rec}, nil
	}

	list, ok := raw.([]any)
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeData, "%s: %s is not an array", d.Name, d.ItemKey)
	}
	out := make([]Record, 0, len(list))
	for _, item := range list {
		rec, ok := item.(map[string]any)
		if !ok {
			return nil, errors.Newf(errors.ErrorTypeData, "%s: unexpected %T in %s", d.Name, item, d.ItemKey)
		}
		out = append(out, rec)
	}
	return out, nil
}

func exportError(envelope any) error {
	msg := "Error found in the account."
	if m, ok := envelope.(map[string]any); ok {
		if s, ok := m["message"].(string); ok && s != "" {
			msg = s
		}
	}
	return errors.New(errors.ErrorTypeData, "Error: "+msg)
}

func missingKey(d Descriptor, rec Record) error {
	return errors.Newf(errors.ErrorTypeData, "%s record %v has no %s", d.Name, rec["id"], d.ReplicationKey)
}

func invalidKey(d Descriptor, value any) error {
	return errors.Newf(errors.ErrorTypeData, "%s: invalid %s value %v", d.Name, d.ReplicationKey, value)
}

func isBlank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	default:
		return false
	}
}

func toInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case gojson.Number:
		if n, err := t.Int64(); err == nil {
			return n, true
		}
		f, err := t.Float64()
		return int64(f), err == nil
	case float64:
		return int64(t), true
	case int:
		return int64(t), true
	case int64:
		return t, true
	case string:
		n, err := strconv.ParseInt(t, 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

// idString renders a record id as a bookmark map key.
func idString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatInt(int64(t), 10)
	default:
		return fmt.Sprint(t)
	}
}

func failed(err error) iter.Seq2[Emission, error] {
	return func(yield func(Emission, error) bool) {
		yield(Emission{}, err)
	}
}
