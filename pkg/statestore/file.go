package statestore

import (
	"context"
	stderrors "errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileBlob stores the object on the local filesystem. Writes go through a
// temporary file and a rename so a crash never leaves a torn state file.
type FileBlob struct {
	path string
}

// NewFileBlob creates a FileBlob at path.
func NewFileBlob(path string) *FileBlob {
	return &FileBlob{path: path}
}

func (b *FileBlob) Read(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(b.path)
	if stderrors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotExist
	}
	return data, err
}

func (b *FileBlob) Write(_ context.Context, data []byte) error {
	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(b.path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), b.path)
}

func (b *FileBlob) Location() string { return b.path }
func (b *FileBlob) Close() error     { return nil }

// MemoryBlob keeps the object in memory for the life of the process.
type MemoryBlob struct {
	mu   sync.Mutex
	data []byte
	set  bool
}

// NewMemoryBlob creates a MemoryBlob. A nil initial value reads as ErrNotExist.
func NewMemoryBlob(initial []byte) *MemoryBlob {
	return &MemoryBlob{data: initial, set: initial != nil}
}

func (b *MemoryBlob) Read(_ context.Context) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.set {
		return nil, ErrNotExist
	}
	return append([]byte(nil), b.data...), nil
}

func (b *MemoryBlob) Write(_ context.Context, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = append([]byte(nil), data...)
	b.set = true
	return nil
}

func (b *MemoryBlob) Location() string { return "memory" }
func (b *MemoryBlob) Close() error     { return nil }
