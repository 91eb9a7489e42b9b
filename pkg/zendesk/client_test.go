package zendesk

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/ajitpratap0/ticketsync/pkg/errors"
	gojson "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type plainDoer struct{}

func (plainDoer) Get(ctx context.Context, rawURL string, _ map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	return http.DefaultClient.Do(req)
}

func newServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(plainDoer{}, srv.URL, WithPageSize(2))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = gojson.NewEncoder(w).Encode(v)
}

func ids(t *testing.T, pages []map[string]any, key string) []string {
	t.Helper()
	var out []string
	for _, p := range pages {
		items, ok := p[key].([]any)
		require.True(t, ok)
		for _, it := range items {
			out = append(out, fmt.Sprint(it.(map[string]any)["id"]))
		}
	}
	return out
}

func collect(t *testing.T, seq func(func(map[string]any, error) bool)) ([]map[string]any, error) {
	t.Helper()
	var pages []map[string]any
	for page, err := range seq {
		if err != nil {
			return pages, err
		}
		pages = append(pages, page)
	}
	return pages, nil
}

func TestCursorPages(t *testing.T) {
	var c *Client
	var base string
	c = newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/groups", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("page[size]"))
		if r.URL.Query().Get("page[after]") == "" {
			writeJSON(w, map[string]any{
				"groups": []any{map[string]any{"id": 1}, map[string]any{"id": 2}},
				"meta":   map[string]any{"has_more": true},
				"links":  map[string]any{"next": base + "/api/v2/groups?page%5Bsize%5D=2&page%5Bafter%5D=xyz"},
			})
			return
		}
		writeJSON(w, map[string]any{
			"groups": []any{map[string]any{"id": 3}},
			"meta":   map[string]any{"has_more": false},
			"links":  map[string]any{"next": nil},
		})
	})
	base = c.baseURL

	pages, err := collect(t, c.CursorPages(context.Background(), "/api/v2/groups", nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3"}, ids(t, pages, "groups"))
}

func TestOffsetPages(t *testing.T) {
	var base string
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2", r.URL.Query().Get("per_page"))
		if r.URL.Query().Get("page") == "" {
			writeJSON(w, map[string]any{
				"audits":    []any{map[string]any{"id": 10}},
				"next_page": base + "/api/v2/tickets/5/audits.json?page=2&per_page=2",
			})
			return
		}
		writeJSON(w, map[string]any{"audits": []any{map[string]any{"id": 11}}, "next_page": nil})
	})
	base = c.baseURL

	pages, err := collect(t, c.OffsetPages(context.Background(), "/api/v2/tickets/5/audits.json", nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"10", "11"}, ids(t, pages, "audits"))
}

func TestExportPages(t *testing.T) {
	var base string
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if cursor := r.URL.Query().Get("cursor"); cursor == "" {
			assert.Equal(t, "1577836800", r.URL.Query().Get("start_time"))
			writeJSON(w, map[string]any{
				"tickets":       []any{map[string]any{"id": 1}},
				"after_url":     base + "/api/v2/incremental/tickets/cursor.json?cursor=abc",
				"end_of_stream": false,
			})
			return
		}
		writeJSON(w, map[string]any{
			"tickets":       []any{map[string]any{"id": 2}},
			"after_url":     base + "/api/v2/incremental/tickets/cursor.json?cursor=def",
			"end_of_stream": true,
		})
	})
	base = c.baseURL

	pages, err := collect(t, c.ExportPages(context.Background(), "/api/v2/incremental/tickets/cursor.json", 1577836800))
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, ids(t, pages, "tickets"))
}

func TestExportPages_ErrorEnvelopeEndsSequence(t *testing.T) {
	calls := 0
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		writeJSON(w, map[string]any{"error": map[string]any{"message": "too far back"}})
	})

	pages, err := collect(t, c.ExportPages(context.Background(), "/api/v2/incremental/users/cursor.json", 0))
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Contains(t, pages[0], "error")
	assert.Equal(t, 1, calls)
}

func TestGetJSON_StatusMapping(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
			writeJSON(w, map[string]any{"error": "RecordNotFound"})
		case "/scopes":
			w.WriteHeader(http.StatusForbidden)
			writeJSON(w, map[string]any{"error": "Forbidden", "description": missingScopeDescription})
		case "/noaccess":
			w.WriteHeader(http.StatusForbidden)
			writeJSON(w, map[string]any{"error": map[string]any{"title": "Forbidden", "message": noAccessMessage}})
		case "/unauthorized":
			w.WriteHeader(http.StatusUnauthorized)
			writeJSON(w, map[string]any{"error": "Couldn't authenticate you"})
		}
	})
	ctx := context.Background()

	_, err := c.GetJSON(ctx, "/missing", nil)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = c.GetJSON(ctx, "/scopes", nil)
	assert.True(t, IsPermissionDenied(err))
	assert.True(t, errors.IsType(err, errors.ErrorTypePermission))

	_, err = c.GetJSON(ctx, "/noaccess", nil)
	assert.True(t, IsPermissionDenied(err))

	_, err = c.GetJSON(ctx, "/unauthorized", nil)
	assert.False(t, IsPermissionDenied(err))
	assert.True(t, errors.IsType(err, errors.ErrorTypeAuthentication))
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestGetJSON_KeepsNumbers(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ticket":{"id":9007199254740993,"generated_timestamp":1577836800}}`))
	})

	page, err := c.GetJSON(context.Background(), "/t", url.Values{})
	require.NoError(t, err)
	ticket := page["ticket"].(map[string]any)
	assert.Equal(t, "9007199254740993", fmt.Sprint(ticket["id"]))
}

func TestCustomFields(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/user_fields.json", r.URL.Path)
		writeJSON(w, map[string]any{
			"user_fields": []any{
				map[string]any{"key": "tier", "title": "Tier", "type": "dropdown",
					"custom_field_options": []any{map[string]any{"name": "Gold", "value": "gold"}}},
				map[string]any{"key": "joined", "title": "Joined", "type": "date"},
			},
			"next_page": nil,
		})
	})

	fields, err := c.CustomFields(context.Background(), UserFields)
	require.NoError(t, err)
	require.Len(t, fields, 2)
	assert.Equal(t, "tier", fields[0].Key)
	assert.Equal(t, []FieldOption{{Name: "Gold", Value: "gold"}}, fields[0].Options)
	assert.Equal(t, "date", fields[1].Type)
}
