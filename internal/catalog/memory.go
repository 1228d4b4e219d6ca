package catalog

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Memory is an in-process Provider used by tests and the seed tooling.
type Memory struct {
	mu       sync.RWMutex
	products map[uuid.UUID]Product
}

// NewMemory constructs an empty in-memory catalog.
func NewMemory(products ...Product) *Memory {
	m := &Memory{products: make(map[uuid.UUID]Product, len(products))}
	for _, p := range products {
		m.products[p.ID] = p
	}
	return m
}

// Add registers or replaces a product.
func (m *Memory) Add(p Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = p
}

// Product implements Provider.
func (m *Memory) Product(_ context.Context, id uuid.UUID) (Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.products[id]
	if !ok {
		return Product{}, ErrNotFound
	}
	return p, nil
}
