package slot

import (
	"context"
	"sync"
)

// Memory guarda os blobs em memória. Usado em ENV=local sem infra e nos testes.
// SetFailWrites permite simular falha de escrita (ex.: quota estourada).
type Memory struct {
	mu         sync.Mutex
	data       map[string][]byte
	writes     int
	failWrites error
}

func NewMemory() *Memory { return &Memory{data: make(map[string][]byte)} }

func (m *Memory) Read(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), b...), true, nil
}

func (m *Memory) Write(_ context.Context, key string, blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites != nil {
		return m.failWrites
	}
	m.data[key] = append([]byte(nil), blob...)
	m.writes++
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// SetFailWrites troca o erro de escrita simulado (nil volta ao normal)
func (m *Memory) SetFailWrites(err error) {
	m.mu.Lock()
	m.failWrites = err
	m.mu.Unlock()
}

// Writes retorna quantas escritas bem sucedidas aconteceram
func (m *Memory) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}
