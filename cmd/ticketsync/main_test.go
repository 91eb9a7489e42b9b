package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	gojson "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/ticketsync/pkg/errors"
	"github.com/ajitpratap0/ticketsync/pkg/state"
	"github.com/ajitpratap0/ticketsync/pkg/statestore"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "ticketsync v"+version)
}

func TestStreamsCommand(t *testing.T) {
	out, err := execute(t, "streams")
	require.NoError(t, err)

	rows := map[string][]string{}
	for _, line := range strings.Split(strings.TrimSpace(out), "\n")[1:] {
		fields := strings.Fields(line)
		rows[fields[0]] = fields
	}
	assert.Len(t, rows, 14)
	assert.Equal(t, []string{"ticket_comments", "child_driven", "created_at", "tickets"}, rows["ticket_comments"])
	assert.Equal(t, []string{"tags", "full_table", "-", "-"}, rows["tags"])
}

func TestSyncCommand_RequiresCatalog(t *testing.T) {
	_, err := execute(t, "sync")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "catalog")
}

// fakeZendesk serves the field and group endpoints, counting requests in hits
// when it is non-nil.
func fakeZendesk(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			atomic.AddInt32(hits, 1)
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v2/user_fields.json":
			fmt.Fprint(w, `{"user_fields":[{"key":"tier","title":"Tier","type":"text"}],"next_page":null}`)
		case "/api/v2/organization_fields.json":
			fmt.Fprint(w, `{"organization_fields":[],"next_page":null}`)
		case "/api/v2/groups":
			fmt.Fprint(w, `{"groups":[`+
				`{"id":1,"updated_at":"2021-01-01T00:00:00Z"},`+
				`{"id":2,"updated_at":"2021-03-01T00:00:00Z"}],`+
				`"meta":{"has_more":false}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// writeConfig writes a config for baseURL with the given state section and
// returns the config and catalog paths, the catalog produced by discover.
func writeConfig(t *testing.T, dir, baseURL, stateSection string) (string, string) {
	t.Helper()
	configPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(fmt.Sprintf(`source:
  base_url: %s
  start_date: "2020-01-01T00:00:00Z"
  access_token: secret
reliability:
  retry_attempts: 0
  rate_limit_per_sec: 0
state:
%s
observability:
  log_level: error
`, baseURL, stateSection)), 0o600))

	catalogJSON, err := execute(t, "discover", "--config", configPath)
	require.NoError(t, err)
	catalogPath := filepath.Join(dir, "catalog.json")
	require.NoError(t, os.WriteFile(catalogPath, []byte(catalogJSON), 0o600))
	return configPath, catalogPath
}

func messageTypes(t *testing.T, out string) []string {
	t.Helper()
	var types []string
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		var msg map[string]any
		require.NoError(t, gojson.Unmarshal(sc.Bytes(), &msg), sc.Text())
		types = append(types, fmt.Sprintf("%s %v", msg["type"], msg["stream"]))
	}
	return types
}

func TestDiscoverThenSync(t *testing.T) {
	srv := fakeZendesk(t, nil)

	dir := t.TempDir()
	statePath := filepath.Join(dir, "state.json")
	configPath, catalogPath := writeConfig(t, dir, srv.URL, "  backend: file\n  path: "+statePath)

	catalogJSON, err := os.ReadFile(catalogPath)
	require.NoError(t, err)
	assert.Contains(t, string(catalogJSON), `"tier"`)

	out, err := execute(t, "sync", "--config", configPath, "--catalog", catalogPath, "--select", "groups")
	require.NoError(t, err)

	assert.Equal(t, []string{"SCHEMA groups", "RECORD groups", "RECORD groups", "STATE <nil>"}, messageTypes(t, out))

	saved, err := os.ReadFile(statePath)
	require.NoError(t, err)
	assert.JSONEq(t, `{"bookmarks":{"groups":{"updated_at":"2021-03-01T00:00:00Z"}}}`, string(saved))
}

func TestSync_RejectsOrphanedChildrenBeforeNetwork(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	var conns int32
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			atomic.AddInt32(&conns, 1)
			c.Close()
		}
	}()

	var hits int32
	srv := fakeZendesk(t, &hits)
	configPath, catalogPath := writeConfig(t, t.TempDir(), srv.URL, fmt.Sprintf(`  backend: postgres
  dsn: postgres://sync:secret@%s/state?connect_timeout=1
  key: acme`, ln.Addr()))
	atomic.StoreInt32(&hits, 0)

	_, err = execute(t, "sync", "--config", configPath, "--catalog", catalogPath,
		"--select", "ticket_comments,ticket_audits")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeDependency))
	assert.Contains(t, err.Error(), "To receive ticket_comments data, you also need to select tickets.")
	assert.Contains(t, err.Error(), "To receive ticket_audits data, you also need to select tickets.")
	assert.Zero(t, atomic.LoadInt32(&conns), "state backend contacted")
	assert.Zero(t, atomic.LoadInt32(&hits), "zendesk contacted")
}

func TestSync_StateFlagUsesConfiguredCompression(t *testing.T) {
	srv := fakeZendesk(t, nil)
	dir := t.TempDir()
	configPath, catalogPath := writeConfig(t, dir, srv.URL, "  compression: gzip")

	statePath := filepath.Join(dir, "state.json.gz")
	st, err := state.Parse([]byte(`{"bookmarks":{"groups":{"updated_at":"2021-02-01T00:00:00Z"}}}`))
	require.NoError(t, err)
	store, err := statestore.OpenFile(statePath, "gzip", nil)
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), st))

	out, err := execute(t, "sync", "--config", configPath, "--catalog", catalogPath,
		"--select", "groups", "--state", statePath)
	require.NoError(t, err)
	assert.Equal(t, []string{"SCHEMA groups", "RECORD groups", "STATE <nil>"}, messageTypes(t, out))
}
