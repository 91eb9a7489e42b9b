// Package statestore persists replication state between runs. A Store pairs
// a Blob backend (local file, S3 object, GCS object, Postgres row or memory) with a
// compression codec.
package statestore

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/ajitpratap0/ticketsync/pkg/compression"
	"github.com/ajitpratap0/ticketsync/pkg/config"
	"github.com/ajitpratap0/ticketsync/pkg/errors"
	"github.com/ajitpratap0/ticketsync/pkg/state"
	"go.uber.org/zap"
)

// ErrNotExist is returned by a Blob whose object has never been written.
var ErrNotExist = stderrors.New("statestore: object does not exist")

// Blob reads and writes one opaque object.
type Blob interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Location() string
	Close() error
}

// Store loads and saves state through a Blob.
type Store struct {
	blob   Blob
	codec  compression.Compressor
	logger *zap.Logger
}

// New creates a Store. A nil codec stores state uncompressed.
func New(blob Blob, codec compression.Compressor, logger *zap.Logger) *Store {
	if codec == nil {
		codec, _ = compression.NewCompressor(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		blob:   blob,
		codec:  codec,
		logger: logger.With(zap.String("component", "statestore")),
	}
}

// Open builds the Store selected by cfg. An empty backend keeps state in memory.
func Open(ctx context.Context, cfg config.StateConfig, logger *zap.Logger) (*Store, error) {
	codec, err := newCodec(cfg.Compression)
	if err != nil {
		return nil, err
	}

	var blob Blob
	switch cfg.Backend {
	case "":
		blob = NewMemoryBlob(nil)
	case "file":
		blob = NewFileBlob(cfg.Path + codec.Extension())
	case "s3":
		blob, err = NewS3Blob(ctx, cfg.Region, cfg.Bucket, cfg.Key+codec.Extension())
	case "gcs":
		blob, err = NewGCSBlob(ctx, cfg.Bucket, cfg.Key+codec.Extension(), cfg.CredentialsFile)
	case "postgres":
		blob, err = NewPostgresBlob(ctx, cfg.DSN, cfg.Key)
	default:
		return nil, errors.New(errors.ErrorTypeConfig, fmt.Sprintf("unknown state backend %q", cfg.Backend))
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to open state backend")
	}
	return New(blob, codec, logger), nil
}

// OpenFile builds a Store over the file at path, decoded with the named
// compression. The path is used as given.
func OpenFile(path, compressionName string, logger *zap.Logger) (*Store, error) {
	codec, err := newCodec(compressionName)
	if err != nil {
		return nil, err
	}
	return New(NewFileBlob(path), codec, logger), nil
}

func newCodec(name string) (compression.Compressor, error) {
	algo, err := compression.ParseAlgorithm(name)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid state compression")
	}
	codec, err := compression.NewCompressor(&compression.Config{Algorithm: algo, Level: compression.Default})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid state compression")
	}
	return codec, nil
}

// Load returns the persisted state, or an empty state when nothing was saved yet.
func (s *Store) Load(ctx context.Context) (*state.State, error) {
	raw, err := s.blob.Read(ctx)
	if stderrors.Is(err, ErrNotExist) {
		s.logger.Info("no persisted state, starting empty", zap.String("location", s.blob.Location()))
		return state.New(), nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeState, "failed to read state")
	}

	data, err := s.codec.Decompress(raw)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeState, "failed to decompress state")
	}
	st, err := state.Parse(data)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeState, "failed to parse state")
	}

	s.logger.Info("loaded state",
		zap.String("location", s.blob.Location()),
		zap.Int("streams", len(st.Bookmarks)))
	return st, nil
}

// Save persists st.
func (s *Store) Save(ctx context.Context, st *state.State) error {
	data, err := st.Marshal()
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeState, "failed to encode state")
	}
	raw, err := s.codec.Compress(data)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeState, "failed to compress state")
	}
	if err := s.blob.Write(ctx, raw); err != nil {
		return errors.Wrap(err, errors.ErrorTypeState, "failed to write state")
	}

	s.logger.Info("saved state",
		zap.String("location", s.blob.Location()),
		zap.String("compression", string(s.codec.Algorithm())),
		zap.Int("bytes", len(raw)))
	return nil
}

// Location describes where state lives.
func (s *Store) Location() string {
	return s.blob.Location()
}

// Close releases backend clients.
func (s *Store) Close() error {
	return s.blob.Close()
}
