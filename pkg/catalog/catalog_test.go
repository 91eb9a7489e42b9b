package catalog

import (
	"bytes"
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ajitpratap0/ticketsync/pkg/streams"
	"github.com/ajitpratap0/ticketsync/pkg/zendesk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gopkg.in/yaml.v3"
)

type fakeFields struct {
	defs map[string][]zendesk.CustomField
	err  error
}

func (f *fakeFields) CustomFields(_ context.Context, resource string) ([]zendesk.CustomField, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.defs[resource], nil
}

func metadataAt(e *Entry, breadcrumb ...string) map[string]any {
	for _, m := range e.Metadata {
		if len(m.Breadcrumb) == len(breadcrumb) {
			match := true
			for i := range breadcrumb {
				if m.Breadcrumb[i] != breadcrumb[i] {
					match = false
				}
			}
			if match {
				return m.Metadata
			}
		}
	}
	return nil
}

func properties(t *testing.T, schema map[string]any) map[string]any {
	t.Helper()
	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	return props
}

func TestDiscover_EveryStream(t *testing.T) {
	reg := streams.DefaultRegistry()
	c, err := Discover(context.Background(), reg, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, reg.Names(), c.Names())
	for _, e := range c.Streams {
		assert.Equal(t, e.Stream, e.TapStreamID)
		assert.NotEmpty(t, properties(t, e.Schema), e.Stream)
		assert.False(t, e.IsSelected(), e.Stream)
	}

	groups, ok := c.Entry("groups")
	require.True(t, ok)
	top := metadataAt(groups)
	assert.Equal(t, []string{"id"}, top[KeyTableKeyProperties])
	assert.Equal(t, "INCREMENTAL", top[KeyForcedReplicationMethod])
	assert.Equal(t, []string{"updated_at"}, top[KeyValidReplicationKeys])
	assert.Equal(t, InclusionAutomatic, metadataAt(groups, "properties", "id")[KeyInclusion])
	assert.Equal(t, InclusionAutomatic, metadataAt(groups, "properties", "updated_at")[KeyInclusion])
	assert.Equal(t, InclusionAvailable, metadataAt(groups, "properties", "name")[KeyInclusion])
	assert.Equal(t, []string{"updated_at"}, groups.BookmarkProperties())

	tags, _ := c.Entry("tags")
	assert.Equal(t, []string{"name"}, tags.KeyProperties)
	assert.Equal(t, "FULL_TABLE", metadataAt(tags)[KeyForcedReplicationMethod])
	assert.NotContains(t, metadataAt(tags), KeyValidReplicationKeys)
	assert.Nil(t, tags.BookmarkProperties())

	comments, _ := c.Entry("ticket_comments")
	assert.Contains(t, properties(t, comments.Schema), "ticket_id")
}

func TestDiscover_CustomFields(t *testing.T) {
	fields := &fakeFields{defs: map[string][]zendesk.CustomField{
		zendesk.UserFields: {
			{Key: "plan", Title: "Plan", Type: "dropdown", Options: []zendesk.FieldOption{{Name: "Gold", Value: "gold"}, {Name: "Free", Value: "free"}}},
			{Key: "renewal", Title: "Renewal", Type: "date"},
			{Key: "seats", Title: "Seats", Type: "integer"},
		},
		zendesk.OrganizationFields: {
			{Key: "vip", Title: "VIP", Type: "checkbox"},
		},
	}}

	c, err := Discover(context.Background(), streams.DefaultRegistry(), fields, nil)
	require.NoError(t, err)

	users, _ := c.Entry("users")
	userFields := properties(t, properties(t, users.Schema)["user_fields"].(map[string]any))
	assert.Equal(t, map[string]any{"type": []any{"string", "null"}, "enum": []any{"gold", "free"}}, userFields["plan"])
	assert.Equal(t, map[string]any{"type": []any{"string", "null"}, "format": "date-time"}, userFields["renewal"])
	assert.Equal(t, map[string]any{"type": []any{"integer", "null"}}, userFields["seats"])

	orgs, _ := c.Entry("organizations")
	orgFields := properties(t, properties(t, orgs.Schema)["organization_fields"].(map[string]any))
	assert.Equal(t, map[string]any{"type": []any{"boolean", "null"}}, orgFields["vip"])
}

func TestDiscover_PermissionDenied(t *testing.T) {
	for _, apiErr := range []*zendesk.APIError{
		{StatusCode: 403, Description: "You are missing the following required scopes: read"},
		{StatusCode: 403, Message: "You do not have access to this page. Please contact the account owner of this help desk for further help."},
	} {
		core, logs := observer.New(zap.WarnLevel)
		c, err := Discover(context.Background(), streams.DefaultRegistry(), &fakeFields{err: apiErr}, zap.New(core))
		require.NoError(t, err)

		pristine, err := LoadSchema("users")
		require.NoError(t, err)
		users, _ := c.Entry("users")
		assert.Equal(t, pristine, users.Schema)
		assert.Equal(t, 1, logs.FilterMessage("The account credentials supplied do not have access to `users` custom fields.").Len())
	}
}

func TestDiscover_FieldErrors(t *testing.T) {
	_, err := Discover(context.Background(), streams.DefaultRegistry(),
		&fakeFields{err: &zendesk.APIError{StatusCode: 403, Message: "Forbidden"}}, nil)
	assert.Error(t, err, "other API errors propagate")

	_, err = Discover(context.Background(), streams.DefaultRegistry(),
		&fakeFields{err: stderrors.New("connection reset")}, nil)
	assert.Error(t, err)

	_, err = Discover(context.Background(), streams.DefaultRegistry(), &fakeFields{defs: map[string][]zendesk.CustomField{
		zendesk.UserFields: {{Key: "x", Title: "X", Type: "multiselect"}},
	}}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Discovered unsupported type for custom field X (key: x): multiselect")
}

func TestCustomFieldSchema_Types(t *testing.T) {
	tests := map[string]string{
		"text": "string", "textarea": "string", "regexp": "string", "lookup": "string",
		"integer": "integer", "decimal": "number", "checkbox": "boolean",
	}
	for typ, want := range tests {
		s, err := CustomFieldSchema(zendesk.CustomField{Key: "k", Type: typ})
		require.NoError(t, err, typ)
		assert.Equal(t, []any{want, "null"}, s["type"], typ)
	}
}

func TestSelection(t *testing.T) {
	c, err := Discover(context.Background(), streams.DefaultRegistry(), nil, nil)
	require.NoError(t, err)

	require.NoError(t, c.Select("tickets", "ticket_comments"))
	assert.Error(t, c.Select("nope"))
	assert.Equal(t, []string{"ticket_comments", "tickets"}, c.Selected().Names())
}

func TestLoad_JSONAndYAML(t *testing.T) {
	c, err := Discover(context.Background(), streams.DefaultRegistry(), nil, nil)
	require.NoError(t, err)
	require.NoError(t, c.Select("groups"))

	dir := t.TempDir()

	var buf bytes.Buffer
	require.NoError(t, c.Write(&buf))
	jsonPath := filepath.Join(dir, "catalog.json")
	require.NoError(t, os.WriteFile(jsonPath, buf.Bytes(), 0o600))

	out, err := yaml.Marshal(c)
	require.NoError(t, err)
	yamlPath := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(yamlPath, out, 0o600))

	for _, path := range []string{jsonPath, yamlPath} {
		loaded, err := Load(path)
		require.NoError(t, err, path)
		assert.Equal(t, c.Names(), loaded.Names(), path)
		assert.Equal(t, []string{"groups"}, loaded.Selected().Names(), path)

		groups, _ := loaded.Entry("groups")
		assert.Equal(t, []string{"updated_at"}, groups.BookmarkProperties(), path)
	}

	_, err = Load(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
	_, err = Parse([]byte("{"))
	assert.Error(t, err)
}

func TestSelect_AddsStreamMetadata(t *testing.T) {
	c := &Catalog{Streams: []Entry{{Stream: "macros", TapStreamID: "macros"}}}
	require.NoError(t, c.Select("macros"))
	assert.True(t, c.Streams[0].IsSelected())

	c.Streams[0].Metadata[0].Metadata[KeySelected] = "true"
	assert.True(t, c.Streams[0].IsSelected())
}
