// Package emitter writes the replication message feed: SCHEMA messages before
// a stream's records, RECORD messages, and a final STATE message.
package emitter

import (
	"fmt"
	"io"
	"time"

	"github.com/ajitpratap0/ticketsync/pkg/config"
	"github.com/ajitpratap0/ticketsync/pkg/state"
	"go.uber.org/zap"
)

// MessageType tags a feed message.
type MessageType string

const (
	TypeSchema MessageType = "SCHEMA"
	TypeRecord MessageType = "RECORD"
	TypeState  MessageType = "STATE"
)

// Message is one line of the feed.
type Message struct {
	Type               MessageType    `json:"type"`
	Stream             string         `json:"stream,omitempty"`
	Schema             map[string]any `json:"schema,omitempty"`
	KeyProperties      []string       `json:"key_properties,omitempty"`
	BookmarkProperties []string       `json:"bookmark_properties,omitempty"`
	Record             map[string]any `json:"record,omitempty"`
	TimeExtracted      string         `json:"time_extracted,omitempty"`
	Value              *state.State   `json:"value,omitempty"`
}

// Emitter is the emission boundary of a sync run.
type Emitter interface {
	WriteSchema(stream string, schema map[string]any, keyProperties, bookmarkProperties []string) error
	WriteRecord(stream string, record map[string]any) error
	WriteState(st *state.State) error
	Close() error
}

// New builds the emitter selected by cfg. stdout-style emitters write to w.
func New(cfg config.OutputConfig, w io.Writer, logger *zap.Logger) (Emitter, error) {
	switch cfg.Emitter {
	case "", "stdout":
		return NewStreamEmitter(w), nil
	case "kafka":
		return NewKafkaEmitter(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown emitter %q", cfg.Emitter)
	}
}

func schemaMessage(stream string, schema map[string]any, keyProperties, bookmarkProperties []string) Message {
	if keyProperties == nil {
		keyProperties = []string{}
	}
	return Message{
		Type:               TypeSchema,
		Stream:             stream,
		Schema:             schema,
		KeyProperties:      keyProperties,
		BookmarkProperties: bookmarkProperties,
	}
}

func recordMessage(stream string, record map[string]any, now time.Time) Message {
	return Message{
		Type:          TypeRecord,
		Stream:        stream,
		Record:        record,
		TimeExtracted: now.UTC().Format(time.RFC3339Nano),
	}
}

func stateMessage(st *state.State) Message {
	if st == nil {
		st = state.New()
	}
	return Message{Type: TypeState, Value: st}
}
