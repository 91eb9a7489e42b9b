// Package sync drives a replication run: it validates the stream selection,
// emits schemas, drains every selected top-level stream into the emitter and
// persists the final state once.
package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/ajitpratap0/ticketsync/pkg/catalog"
	"github.com/ajitpratap0/ticketsync/pkg/emitter"
	"github.com/ajitpratap0/ticketsync/pkg/logger"
	"github.com/ajitpratap0/ticketsync/pkg/metrics"
	"github.com/ajitpratap0/ticketsync/pkg/observability"
	"github.com/ajitpratap0/ticketsync/pkg/state"
	"github.com/ajitpratap0/ticketsync/pkg/streams"
	"go.uber.org/zap"
)

// StateSaver persists the final state of a run.
type StateSaver interface {
	Save(ctx context.Context, st *state.State) error
}

// Orchestrator runs one sync.
type Orchestrator struct {
	registry *streams.Registry
	pager    streams.Pager
	emitter  emitter.Emitter
	store    StateSaver
	recorder *metrics.Recorder
	tracing  *observability.Tracing
	logger   *zap.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithStore persists the final state through s.
func WithStore(s StateSaver) Option {
	return func(o *Orchestrator) { o.store = s }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r *metrics.Recorder) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.recorder = r
		}
	}
}

// WithTracing sets the tracer.
func WithTracing(t *observability.Tracing) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.tracing = t
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// New creates an Orchestrator.
func New(registry *streams.Registry, pager streams.Pager, em emitter.Emitter, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry: registry,
		pager:    pager,
		emitter:  em,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.recorder == nil {
		o.recorder = metrics.NewRecorder(nil, o.logger)
	}
	if o.tracing == nil {
		o.tracing, _ = observability.NewTracing(context.Background(), observability.TracingConfig{})
	}
	o.logger = o.logger.With(zap.String("component", "orchestrator"))
	return o
}

// Run syncs every selected stream of cat in catalog order. st is mutated in
// place and is written and saved once after all streams complete.
func (o *Orchestrator) Run(ctx context.Context, cat *catalog.Catalog, st *state.State, startDate time.Time) error {
	sel := cat.Selected()
	if err := ValidateDependencies(o.registry, sel); err != nil {
		return err
	}

	if st == nil {
		st = state.New()
	}
	bm := state.NewBookmarks(st, startDate)
	syncer := streams.NewSyncer(o.pager, o.registry, sel,
		streams.WithRecorder(o.recorder),
		streams.WithLogger(o.logger))

	o.logger.Info("selected streams", zap.Strings("streams", sel.Names()))

	for _, entry := range cat.Streams {
		name := entry.TapStreamID
		if !sel.Has(name) {
			o.logger.Info(fmt.Sprintf("%s: Skipping - not selected", name))
			continue
		}
		if o.registry.IsChild(name) {
			continue
		}
		if err := o.syncStream(ctx, cat, &entry, syncer, bm, sel); err != nil {
			return err
		}
	}

	if err := o.emitter.WriteState(st); err != nil {
		return fmt.Errorf("failed to emit state: %w", err)
	}
	if o.store != nil {
		if err := o.store.Save(ctx, st); err != nil {
			return err
		}
	}
	o.recorder.LogRunRates()
	o.logger.Info("Finished sync")
	return nil
}

func (o *Orchestrator) syncStream(ctx context.Context, cat *catalog.Catalog, entry *catalog.Entry,
	syncer *streams.Syncer, bm *state.Bookmarks, sel streams.Selection) (err error) {
	name := entry.TapStreamID

	if err := o.writeSchema(entry); err != nil {
		return err
	}
	for _, child := range o.registry.Children(name) {
		if !sel.Has(child) {
			continue
		}
		childEntry, ok := cat.Entry(child)
		if !ok {
			return fmt.Errorf("stream %s is selected but missing from the catalog", child)
		}
		if err := o.writeSchema(childEntry); err != nil {
			return err
		}
	}

	ctx = logger.ContextWithStream(ctx, name)
	ctx, span := o.tracing.StartStream(ctx, name)
	defer func() { span.End(err) }()

	log := o.logger.With(zap.String("stream", name))
	log.Info(fmt.Sprintf("%s: Starting sync", name))
	o.recorder.Start(name)

	var rows int64
	for em, serr := range syncer.Sync(ctx, name, bm) {
		if serr != nil {
			return serr
		}
		if werr := o.emitter.WriteRecord(em.Stream, em.Record); werr != nil {
			return fmt.Errorf("failed to emit %s record: %w", em.Stream, werr)
		}
		if em.Stream == name {
			rows++
		}
	}

	span.SetRows(rows)
	log.Info(fmt.Sprintf("%s: Completed sync", name), zap.Int64("rows", rows))
	o.recorder.LogAggregateRates(name)
	return nil
}

func (o *Orchestrator) writeSchema(entry *catalog.Entry) error {
	if err := o.emitter.WriteSchema(entry.TapStreamID, entry.Schema, entry.KeyProperties, entry.BookmarkProperties()); err != nil {
		return fmt.Errorf("failed to emit %s schema: %w", entry.TapStreamID, err)
	}
	return nil
}
