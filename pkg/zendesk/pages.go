package zendesk

import (
	"context"
	"iter"
	"net/url"
	"strconv"
)

// CursorPages lists path with cursor pagination, following links.next while
// meta.has_more is true.
func (c *Client) CursorPages(ctx context.Context, path string, params url.Values) iter.Seq2[map[string]any, error] {
	return func(yield func(map[string]any, error) bool) {
		q := cloneValues(params)
		q.Set("page[size]", strconv.Itoa(c.pageSize))
		next := path

		for next != "" {
			page, err := c.GetJSON(ctx, next, q)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(page, nil) {
				return
			}

			next = ""
			if hasMore, _ := nested(page, "meta", "has_more").(bool); hasMore {
				next, _ = nested(page, "links", "next").(string)
			}
			// The next link already carries the query.
			q = nil
		}
	}
}

// OffsetPages lists path with offset pagination, following next_page.
func (c *Client) OffsetPages(ctx context.Context, path string, params url.Values) iter.Seq2[map[string]any, error] {
	return func(yield func(map[string]any, error) bool) {
		q := cloneValues(params)
		q.Set("per_page", strconv.Itoa(c.pageSize))
		next := path

		for next != "" {
			page, err := c.GetJSON(ctx, next, q)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(page, nil) {
				return
			}
			next, _ = page["next_page"].(string)
			q = nil
		}
	}
}

// ExportPages walks an incremental export starting at startTime (epoch
// seconds). Cursor exports continue through after_url, time-based exports
// through next_page; both stop at end_of_stream. A page carrying an error
// envelope is yielded as-is and ends the sequence.
func (c *Client) ExportPages(ctx context.Context, path string, startTime int64) iter.Seq2[map[string]any, error] {
	return func(yield func(map[string]any, error) bool) {
		q := url.Values{}
		q.Set("start_time", strconv.FormatInt(startTime, 10))
		q.Set("per_page", strconv.Itoa(c.pageSize))
		next := path

		for next != "" {
			page, err := c.GetJSON(ctx, next, q)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(page, nil) {
				return
			}
			if _, isErr := page["error"]; isErr {
				return
			}
			if eos, _ := page["end_of_stream"].(bool); eos {
				return
			}

			prev := next
			next, _ = page["after_url"].(string)
			if next == "" {
				next, _ = page["next_page"].(string)
			}
			if next == prev {
				return
			}
			q = nil
		}
	}
}

// Check issues a single per_page=1 request against path.
func (c *Client) Check(ctx context.Context, path string, params url.Values) error {
	q := cloneValues(params)
	q.Set("per_page", "1")
	_, err := c.GetJSON(ctx, path, q)
	return err
}

func cloneValues(v url.Values) url.Values {
	out := url.Values{}
	for k, vs := range v {
		out[k] = append([]string(nil), vs...)
	}
	return out
}

func nested(m map[string]any, keys ...string) any {
	var cur any = m
	for _, k := range keys {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = obj[k]
	}
	return cur
}
