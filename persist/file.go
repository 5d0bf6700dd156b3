package persist

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"
)

// FileBackend keeps every persisted key in a single YAML mapping. The whole
// file is rewritten on each change.
type FileBackend struct {
	mu     sync.Mutex
	path   string
	values map[string]yaml.Node
}

func NewFileBackend(path string) (*FileBackend, error) {
	b := &FileBackend{
		path:   path,
		values: map[string]yaml.Node{},
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return b, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &b.values); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if b.values == nil {
		b.values = map[string]yaml.Node{}
	}
	return b, nil
}

func (b *FileBackend) Load(key string) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	node, ok := b.values[key]
	if !ok {
		return nil, false, nil
	}
	data, err := yaml.Marshal(&node)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (b *FileBackend) Save(key string, data []byte) error {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return err
	}
	if len(doc.Content) == 0 {
		return fmt.Errorf("empty document for %q", key)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.values[key] = *doc.Content[0]
	return b.flush()
}

func (b *FileBackend) Delete(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.values[key]; !ok {
		return nil
	}
	delete(b.values, key)
	return b.flush()
}

func (b *FileBackend) Keys() ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Sorted(maps.Keys(b.values)), nil
}

func (b *FileBackend) Close() error {
	return nil
}

// flush writes to a temp file first so a crash never leaves half a file.
func (b *FileBackend) flush() error {
	data, err := yaml.Marshal(b.values)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(b.path), filepath.Base(b.path)+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), b.path)
}

// MemoryBackend is a Backend without durability, for tests and previews.
type MemoryBackend struct {
	mu     sync.Mutex
	values map[string][]byte
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		values: map[string][]byte{},
	}
}

func (b *MemoryBackend) Load(key string) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.values[key]
	return slices.Clone(data), ok, nil
}

func (b *MemoryBackend) Save(key string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values[key] = slices.Clone(data)
	return nil
}

func (b *MemoryBackend) Delete(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.values, key)
	return nil
}

func (b *MemoryBackend) Keys() ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Sorted(maps.Keys(b.values)), nil
}

func (b *MemoryBackend) Close() error {
	return nil
}
