package emitter

import (
	"bufio"
	"bytes"
	stderrors "errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/ajitpratap0/ticketsync/pkg/config"
	"github.com/ajitpratap0/ticketsync/pkg/state"
	gojson "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixed = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func lines(t *testing.T, b []byte) []map[string]any {
	t.Helper()
	var out []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(b))
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, gojson.Unmarshal(sc.Bytes(), &m))
		out = append(out, m)
	}
	return out
}

func TestStreamEmitter(t *testing.T) {
	var buf bytes.Buffer
	e := NewStreamEmitter(&buf)
	e.now = func() time.Time { return fixed }

	schema := map[string]any{"type": "object", "properties": map[string]any{"id": map[string]any{"type": "integer"}}}
	require.NoError(t, e.WriteSchema("groups", schema, []string{"id"}, []string{"updated_at"}))
	require.NoError(t, e.WriteRecord("groups", map[string]any{"id": 1, "name": "<support>"}))
	assert.Zero(t, buf.Len(), "records stay buffered until state")

	st := state.New()
	st.Bookmarks["groups"] = map[string]any{"updated_at": "2020-01-01T00:00:00Z"}
	require.NoError(t, e.WriteState(st))
	require.NoError(t, e.Close())

	msgs := lines(t, buf.Bytes())
	require.Len(t, msgs, 3)

	assert.Equal(t, "SCHEMA", msgs[0]["type"])
	assert.Equal(t, "groups", msgs[0]["stream"])
	assert.Equal(t, []any{"id"}, msgs[0]["key_properties"])
	assert.Equal(t, []any{"updated_at"}, msgs[0]["bookmark_properties"])

	assert.Equal(t, "RECORD", msgs[1]["type"])
	assert.Equal(t, "2024-03-01T12:00:00Z", msgs[1]["time_extracted"])
	assert.Equal(t, "<support>", msgs[1]["record"].(map[string]any)["name"])
	assert.Contains(t, buf.String(), "<support>", "HTML is not escaped")

	assert.Equal(t, "STATE", msgs[2]["type"])
	assert.Equal(t, map[string]any{"bookmarks": map[string]any{
		"groups": map[string]any{"updated_at": "2020-01-01T00:00:00Z"},
	}}, msgs[2]["value"])
}

func TestStreamEmitter_EmptyKeyProperties(t *testing.T) {
	var buf bytes.Buffer
	e := NewStreamEmitter(&buf)
	require.NoError(t, e.WriteSchema("tags", map[string]any{}, nil, nil))
	require.NoError(t, e.Close())
	assert.Contains(t, buf.String(), `"key_properties":[]`)
}

func TestKafkaEmitter(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)

	var sent []*sarama.ProducerMessage
	check := func(msg *sarama.ProducerMessage) error {
		sent = append(sent, msg)
		return nil
	}
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(check)
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(check)
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(check)

	e := NewKafkaEmitterWithProducer(producer, "zendesk", nil)
	e.now = func() time.Time { return fixed }

	require.NoError(t, e.WriteSchema("users", map[string]any{"type": "object"}, []string{"id"}, nil))
	require.NoError(t, e.WriteRecord("users", map[string]any{"id": 7}))
	require.NoError(t, e.WriteState(state.New()))
	require.NoError(t, e.Close())

	require.Len(t, sent, 3)
	for i, want := range []string{"users", "users", stateKey} {
		key, err := sent[i].Key.Encode()
		require.NoError(t, err)
		assert.Equal(t, want, string(key))
		assert.Equal(t, "zendesk", sent[i].Topic)
	}
	assert.Equal(t, []byte("RECORD"), sent[1].Headers[0].Value)

	value, err := sent[1].Value.Encode()
	require.NoError(t, err)
	var m Message
	require.NoError(t, gojson.Unmarshal(value, &m))
	assert.Equal(t, TypeRecord, m.Type)
	assert.Equal(t, "users", m.Stream)
}

func TestKafkaEmitter_SendError(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(stderrors.New("broker down"))

	e := NewKafkaEmitterWithProducer(producer, "zendesk", nil)
	err := e.WriteRecord("users", map[string]any{"id": 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
	require.NoError(t, e.Close())
}

func TestNew(t *testing.T) {
	e, err := New(config.OutputConfig{}, &bytes.Buffer{}, nil)
	require.NoError(t, err)
	assert.IsType(t, &StreamEmitter{}, e)

	_, err = New(config.OutputConfig{Emitter: "carrier-pigeon"}, nil, nil)
	assert.Error(t, err)
}
