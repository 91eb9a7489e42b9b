// Package catalog describes the replicable streams: their JSON schemas,
// selection metadata and account-specific custom fields.
package catalog

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ajitpratap0/ticketsync/pkg/streams"
	gojson "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// Metadata keys.
const (
	KeyTableKeyProperties      = "table-key-properties"
	KeyForcedReplicationMethod = "forced-replication-method"
	KeyValidReplicationKeys    = "valid-replication-keys"
	KeyInclusion               = "inclusion"
	KeySelected                = "selected"

	InclusionAutomatic = "automatic"
	InclusionAvailable = "available"
)

// Metadata is one breadcrumb-addressed metadata entry. An empty breadcrumb
// addresses the stream itself; ["properties", name] addresses a property.
type Metadata struct {
	Breadcrumb []string       `json:"breadcrumb" yaml:"breadcrumb"`
	Metadata   map[string]any `json:"metadata" yaml:"metadata"`
}

// Entry is one stream of the catalog.
type Entry struct {
	Stream        string         `json:"stream" yaml:"stream"`
	TapStreamID   string         `json:"tap_stream_id" yaml:"tap_stream_id"`
	Schema        map[string]any `json:"schema" yaml:"schema"`
	KeyProperties []string       `json:"key_properties" yaml:"key_properties"`
	Metadata      []Metadata     `json:"metadata" yaml:"metadata"`
}

// Catalog is the ordered list of streams.
type Catalog struct {
	Streams []Entry `json:"streams" yaml:"streams"`
}

// Load reads a catalog file. Files ending in .yaml or .yml are parsed as
// YAML, everything else as JSON.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	default:
		return Parse(data)
	}
}

// Parse decodes a JSON catalog.
func Parse(data []byte) (*Catalog, error) {
	dec := gojson.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var c Catalog
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}
	return &c, nil
}

// ParseYAML decodes a YAML catalog.
func ParseYAML(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}
	return &c, nil
}

// Write encodes the catalog as indented JSON.
func (c *Catalog) Write(w io.Writer) error {
	enc := gojson.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(c)
}

// Entry returns the entry for stream.
func (c *Catalog) Entry(stream string) (*Entry, bool) {
	for i := range c.Streams {
		if c.Streams[i].TapStreamID == stream {
			return &c.Streams[i], true
		}
	}
	return nil, false
}

// Names returns stream ids in catalog order.
func (c *Catalog) Names() []string {
	out := make([]string, 0, len(c.Streams))
	for _, e := range c.Streams {
		out = append(out, e.TapStreamID)
	}
	return out
}

// Selected returns the streams whose top-level metadata is selected.
func (c *Catalog) Selected() streams.Selection {
	sel := streams.NewSelection()
	for _, e := range c.Streams {
		if e.IsSelected() {
			sel[e.TapStreamID] = true
		}
	}
	return sel
}

// Select marks the named streams selected. Unknown names are an error.
func (c *Catalog) Select(names ...string) error {
	for _, name := range names {
		e, ok := c.Entry(name)
		if !ok {
			return fmt.Errorf("stream %s is not in the catalog", name)
		}
		e.streamMetadata()[KeySelected] = true
	}
	return nil
}

// IsSelected reports the stream-level selected flag.
func (e *Entry) IsSelected() bool {
	for _, m := range e.Metadata {
		if len(m.Breadcrumb) != 0 {
			continue
		}
		switch v := m.Metadata[KeySelected].(type) {
		case bool:
			return v
		case string:
			return v == "true"
		}
	}
	return false
}

// BookmarkProperties returns the valid replication keys from metadata.
func (e *Entry) BookmarkProperties() []string {
	for _, m := range e.Metadata {
		if len(m.Breadcrumb) != 0 {
			continue
		}
		switch v := m.Metadata[KeyValidReplicationKeys].(type) {
		case []string:
			return v
		case []any:
			out := make([]string, 0, len(v))
			for _, k := range v {
				if s, ok := k.(string); ok {
					out = append(out, s)
				}
			}
			return out
		}
	}
	return nil
}

func (e *Entry) streamMetadata() map[string]any {
	for i := range e.Metadata {
		if len(e.Metadata[i].Breadcrumb) == 0 {
			if e.Metadata[i].Metadata == nil {
				e.Metadata[i].Metadata = map[string]any{}
			}
			return e.Metadata[i].Metadata
		}
	}
	e.Metadata = append([]Metadata{{Breadcrumb: []string{}, Metadata: map[string]any{}}}, e.Metadata...)
	return e.Metadata[0].Metadata
}
