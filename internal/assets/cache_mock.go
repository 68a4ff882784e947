package assets

import (
	"context"
	"sync"

	"github.com/UnendingLoop/watermarker/internal/model"
)

// MemorySource - in-memory Source для тестов, считает чтения
type MemorySource struct {
	mu    sync.Mutex
	data  map[string][]byte
	reads int

	// BlockKeys - ключи, чтение которых висит до отмены контекста
	BlockKeys map[string]bool
}

func NewMemorySource(data map[string][]byte) *MemorySource {
	if data == nil {
		data = map[string][]byte{}
	}
	return &MemorySource{data: data, BlockKeys: map[string]bool{}}
}

func (m *MemorySource) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	m.reads++
	block := m.BlockKeys[key]
	v, ok := m.data[key]
	m.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if !ok {
		return nil, model.ErrObjectNotFound
	}
	return v, nil
}

func (m *MemorySource) Set(key string, v []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = v
}

func (m *MemorySource) Reads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}
