package emitter

import (
	"bufio"
	"io"
	"sync"
	"time"

	"github.com/ajitpratap0/ticketsync/pkg/state"
	gojson "github.com/goccy/go-json"
)

// StreamEmitter writes messages as JSON lines. Output is buffered and
// flushed on every STATE message and on Close.
type StreamEmitter struct {
	mu  sync.Mutex
	buf *bufio.Writer
	enc *gojson.Encoder
	now func() time.Time
}

// NewStreamEmitter creates a StreamEmitter writing to w.
func NewStreamEmitter(w io.Writer) *StreamEmitter {
	buf := bufio.NewWriterSize(w, 64*1024)
	enc := gojson.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	return &StreamEmitter{buf: buf, enc: enc, now: time.Now}
}

func (e *StreamEmitter) WriteSchema(stream string, schema map[string]any, keyProperties, bookmarkProperties []string) error {
	return e.write(schemaMessage(stream, schema, keyProperties, bookmarkProperties), false)
}

func (e *StreamEmitter) WriteRecord(stream string, record map[string]any) error {
	return e.write(recordMessage(stream, record, e.now()), false)
}

func (e *StreamEmitter) WriteState(st *state.State) error {
	return e.write(stateMessage(st), true)
}

func (e *StreamEmitter) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buf.Flush()
}

func (e *StreamEmitter) write(m Message, flush bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.enc.Encode(m); err != nil {
		return err
	}
	if flush {
		return e.buf.Flush()
	}
	return nil
}
