package emitter

import (
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/ajitpratap0/ticketsync/pkg/config"
	"github.com/ajitpratap0/ticketsync/pkg/state"
	gojson "github.com/goccy/go-json"
	"go.uber.org/zap"
)

// stateKey partitions STATE messages.
const stateKey = "_state"

// KafkaEmitter produces every message to one topic keyed by stream name, so
// a stream's SCHEMA always precedes its RECORDs within a partition.
type KafkaEmitter struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
	now      func() time.Time

	mu       sync.Mutex
	produced int64
}

// NewKafkaEmitter connects a synchronous producer to cfg.Brokers.
func NewKafkaEmitter(cfg config.OutputConfig, logger *zap.Logger) (*KafkaEmitter, error) {
	producer, err := sarama.NewSyncProducer(cfg.Brokers, buildSaramaConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return NewKafkaEmitterWithProducer(producer, cfg.Topic, logger), nil
}

// NewKafkaEmitterWithProducer wraps an existing producer.
func NewKafkaEmitterWithProducer(producer sarama.SyncProducer, topic string, logger *zap.Logger) *KafkaEmitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaEmitter{
		producer: producer,
		topic:    topic,
		logger:   logger.With(zap.String("component", "kafka_emitter"), zap.String("topic", topic)),
		now:      time.Now,
	}
}

func buildSaramaConfig(cfg config.OutputConfig) *sarama.Config {
	sc := sarama.NewConfig()
	sc.ClientID = cfg.ClientID
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Producer.Retry.Max = 5
	sc.Producer.Idempotent = true
	sc.Net.MaxOpenRequests = 1
	sc.Producer.Compression = sarama.CompressionLZ4
	return sc
}

func (e *KafkaEmitter) WriteSchema(stream string, schema map[string]any, keyProperties, bookmarkProperties []string) error {
	return e.send(stream, schemaMessage(stream, schema, keyProperties, bookmarkProperties))
}

func (e *KafkaEmitter) WriteRecord(stream string, record map[string]any) error {
	return e.send(stream, recordMessage(stream, record, e.now()))
}

func (e *KafkaEmitter) WriteState(st *state.State) error {
	return e.send(stateKey, stateMessage(st))
}

func (e *KafkaEmitter) Close() error {
	e.mu.Lock()
	n := e.produced
	e.mu.Unlock()
	e.logger.Info("closing producer", zap.Int64("messages", n))
	return e.producer.Close()
}

func (e *KafkaEmitter) send(key string, m Message) error {
	value, err := gojson.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to serialize %s message: %w", m.Type, err)
	}

	msg := &sarama.ProducerMessage{
		Topic: e.topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("message-type"), Value: []byte(m.Type)},
			{Key: []byte("content-type"), Value: []byte("application/json")},
		},
		Timestamp: e.now(),
	}

	partition, offset, err := e.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to produce %s message for %s: %w", m.Type, key, err)
	}

	e.mu.Lock()
	e.produced++
	e.mu.Unlock()
	if m.Type != TypeRecord {
		e.logger.Debug("produced message",
			zap.String("type", string(m.Type)),
			zap.String("key", key),
			zap.Int32("partition", partition),
			zap.Int64("offset", offset))
	}
	return nil
}
