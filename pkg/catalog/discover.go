package catalog

import (
	"context"
	"embed"
	"fmt"
	"sort"

	"github.com/ajitpratap0/ticketsync/pkg/errors"
	"github.com/ajitpratap0/ticketsync/pkg/streams"
	"github.com/ajitpratap0/ticketsync/pkg/zendesk"
	gojson "github.com/goccy/go-json"
	"go.uber.org/zap"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// FieldSource lists custom field definitions of a resource.
type FieldSource interface {
	CustomFields(ctx context.Context, resource string) ([]zendesk.CustomField, error)
}

// customTypes maps custom field types onto JSON schema types.
var customTypes = map[string]string{
	"text":     "string",
	"textarea": "string",
	"date":     "string",
	"regexp":   "string",
	"dropdown": "string",
	"lookup":   "string",
	"integer":  "integer",
	"decimal":  "number",
	"checkbox": "boolean",
}

// LoadSchema returns a fresh copy of the bundled schema of stream.
func LoadSchema(stream string) (map[string]any, error) {
	data, err := schemaFS.ReadFile("schemas/" + stream + ".json")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeNotFound, "no schema for stream "+stream)
	}
	var schema map[string]any
	if err := gojson.Unmarshal(data, &schema); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "invalid bundled schema for "+stream)
	}
	return schema, nil
}

// Discover builds the catalog of every registered stream. When fields is
// non-nil the schemas of streams declaring custom fields are augmented.
func Discover(ctx context.Context, reg *streams.Registry, fields FieldSource, logger *zap.Logger) (*Catalog, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "discovery"))

	c := &Catalog{}
	for _, name := range reg.Names() {
		d, _ := reg.Lookup(name)
		schema, err := LoadSchema(name)
		if err != nil {
			return nil, err
		}
		if d.CustomFields != "" && fields != nil {
			if schema, err = addCustomFields(ctx, schema, d, fields, logger); err != nil {
				return nil, err
			}
		}
		c.Streams = append(c.Streams, Entry{
			Stream:        name,
			TapStreamID:   name,
			Schema:        schema,
			KeyProperties: d.KeyProperties,
			Metadata:      buildMetadata(d, schema),
		})
	}
	return c, nil
}

// addCustomFields replaces the custom field property's properties with the
// account's definitions. Insufficient permission leaves the schema as is.
func addCustomFields(ctx context.Context, schema map[string]any, d streams.Descriptor, fields FieldSource, logger *zap.Logger) (map[string]any, error) {
	defs, err := fields.CustomFields(ctx, d.CustomFields)
	if err != nil {
		if zendesk.IsPermissionDenied(err) {
			logger.Warn(fmt.Sprintf("The account credentials supplied do not have access to `%s` custom fields.", d.Name))
			return schema, nil
		}
		return nil, err
	}

	props, _ := schema["properties"].(map[string]any)
	target, ok := props[d.CustomFieldsProperty].(map[string]any)
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeInternal, "%s schema has no %s property", d.Name, d.CustomFieldsProperty)
	}

	custom := make(map[string]any, len(defs))
	for _, f := range defs {
		fs, err := CustomFieldSchema(f)
		if err != nil {
			return nil, err
		}
		custom[f.Key] = fs
	}
	target["properties"] = custom
	logger.Info("added custom fields", zap.String("stream", d.Name), zap.Int("fields", len(defs)))
	return schema, nil
}

// CustomFieldSchema returns the nullable property schema of a custom field.
func CustomFieldSchema(f zendesk.CustomField) (map[string]any, error) {
	jsonType, ok := customTypes[f.Type]
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeData,
			"Discovered unsupported type for custom field %s (key: %s): %s", f.Title, f.Key, f.Type)
	}

	schema := map[string]any{"type": []any{jsonType, "null"}}
	switch f.Type {
	case "date":
		schema["format"] = "date-time"
	case "dropdown":
		enum := make([]any, 0, len(f.Options))
		for _, o := range f.Options {
			enum = append(enum, o.Value)
		}
		schema["enum"] = enum
	}
	return schema, nil
}

func buildMetadata(d streams.Descriptor, schema map[string]any) []Metadata {
	top := map[string]any{
		KeyTableKeyProperties:      d.KeyProperties,
		KeyForcedReplicationMethod: d.ReplicationMethod(),
	}
	if d.ReplicationKey != "" {
		top[KeyValidReplicationKeys] = []string{d.ReplicationKey}
	}
	out := []Metadata{{Breadcrumb: []string{}, Metadata: top}}

	props, _ := schema["properties"].(map[string]any)
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	automatic := make(map[string]bool, len(d.KeyProperties)+1)
	for _, k := range d.KeyProperties {
		automatic[k] = true
	}
	if d.ReplicationKey != "" {
		automatic[d.ReplicationKey] = true
	}

	for _, name := range names {
		inclusion := InclusionAvailable
		if automatic[name] {
			inclusion = InclusionAutomatic
		}
		out = append(out, Metadata{
			Breadcrumb: []string{"properties", name},
			Metadata:   map[string]any{KeyInclusion: inclusion},
		})
	}
	return out
}
