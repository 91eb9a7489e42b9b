package streams

import (
	"context"
	"iter"
	"net/url"
	"time"

	"github.com/ajitpratap0/ticketsync/pkg/state"
)

type pagerCall struct {
	kind   string
	path   string
	params url.Values
	start  int64
}

// fakePager serves canned pages per path. Page factories are invoked on
// every request so records can be mutated freely by the code under test.
type fakePager struct {
	pages map[string]func() []map[string]any
	errs  map[string]error
	calls []pagerCall
}

func newFakePager() *fakePager {
	return &fakePager{
		pages: make(map[string]func() []map[string]any),
		errs:  make(map[string]error),
	}
}

func (p *fakePager) serve(path string, pages ...map[string]any) {
	p.pages[path] = func() []map[string]any {
		out := make([]map[string]any, len(pages))
		for i, pg := range pages {
			out[i] = deepCopy(pg).(map[string]any)
		}
		return out
	}
}

func (p *fakePager) seq(path string) iter.Seq2[map[string]any, error] {
	return func(yield func(map[string]any, error) bool) {
		if err := p.errs[path]; err != nil {
			yield(nil, err)
			return
		}
		fn, ok := p.pages[path]
		if !ok {
			return
		}
		for _, pg := range fn() {
			if !yield(pg, nil) {
				return
			}
		}
	}
}

func (p *fakePager) CursorPages(_ context.Context, path string, params url.Values) iter.Seq2[map[string]any, error] {
	p.calls = append(p.calls, pagerCall{kind: "cursor", path: path, params: params})
	return p.seq(path)
}

func (p *fakePager) OffsetPages(_ context.Context, path string, params url.Values) iter.Seq2[map[string]any, error] {
	p.calls = append(p.calls, pagerCall{kind: "offset", path: path, params: params})
	return p.seq(path)
}

func (p *fakePager) ExportPages(_ context.Context, path string, startTime int64) iter.Seq2[map[string]any, error] {
	p.calls = append(p.calls, pagerCall{kind: "export", path: path, start: startTime})
	return p.seq(path)
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, inner := range t {
			out[k] = deepCopy(inner)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, inner := range t {
			out[i] = deepCopy(inner)
		}
		return out
	default:
		return v
	}
}

type fakeRecorder struct {
	captured map[string]int
	counts   map[string][]int64
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{captured: map[string]int{}, counts: map[string][]int64{}}
}

func (r *fakeRecorder) Capture(stream string) { r.captured[stream]++ }

func (r *fakeRecorder) RecordCount(stream string, n int64) {
	r.counts[stream] = append(r.counts[stream], n)
}

type fakeChecker struct {
	paths  []string
	params []url.Values
	err    error
}

func (c *fakeChecker) Check(_ context.Context, path string, params url.Values) error {
	c.paths = append(c.paths, path)
	c.params = append(c.params, params)
	return c.err
}

var startDate = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

func ts(s string) time.Time {
	t, ok := state.ParseTimestamp(s)
	if !ok {
		panic(s)
	}
	return t
}

func epoch(s string) int64 {
	return ts(s).Unix()
}

func items(key string, recs ...map[string]any) map[string]any {
	list := make([]any, len(recs))
	for i, r := range recs {
		list[i] = r
	}
	return map[string]any{key: list}
}

func drain(seq iter.Seq2[Emission, error]) ([]Emission, error) {
	var out []Emission
	for em, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, em)
	}
	return out, nil
}

func streamIDs(ems []Emission, stream string) []any {
	var out []any
	for _, em := range ems {
		if em.Stream == stream {
			out = append(out, em.Record["id"])
		}
	}
	return out
}
