package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/JonMunkholm/catalog-import/internal/core"
)

// Memory is an in-process core.ProductStore.
type Memory struct {
	mu       sync.RWMutex
	products map[string]core.Product
	stocks   map[string]core.Stock

	// Fail, when set, is called before each write; a non-nil return aborts
	// the write with nothing stored.
	Fail func(p core.Product) error
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{
		products: make(map[string]core.Product),
		stocks:   make(map[string]core.Stock),
	}
}

// CreateProduct stores both records under one lock.
func (m *Memory) CreateProduct(ctx context.Context, p core.Product, st core.Stock) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.Fail != nil {
		if err := m.Fail(p); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[p.ID]; ok {
		return fmt.Errorf("%w: %s", core.ErrProductExists, p.ID)
	}
	m.products[p.ID] = p
	m.stocks[st.ProductID] = st
	return nil
}

// Get returns the product joined with its stock.
func (m *Memory) Get(id string) (core.ProductWithStock, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.products[id]
	if !ok {
		return core.ProductWithStock{}, false
	}
	s := m.stocks[id]
	return core.ProductWithStock{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		Price:       p.Price,
		Count:       s.Count,
	}, true
}

// Counts returns the number of product and stock records.
func (m *Memory) Counts() (products, stocks int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.products), len(m.stocks)
}
