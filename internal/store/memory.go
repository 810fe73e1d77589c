package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"codegarden/internal/pattern"
)

// MemoryStore keeps the garden in process memory. It backs tests and
// ephemeral runs; nothing survives the process.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]*pattern.Pattern
	byName  map[string]string // name -> id
	vectors map[string][]float32
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]*pattern.Pattern),
		byName:  make(map[string]string),
		vectors: make(map[string][]float32),
	}
}

// Register implements Store.
func (ms *MemoryStore) Register(ctx context.Context, p *pattern.Pattern) (Registration, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, taken := ms.byName[p.Name]; taken {
		return Registration{Registered: false, Reason: ReasonDuplicateName}, nil
	}

	stored := p.Clone()
	ms.byID[stored.ID] = stored
	ms.byName[stored.Name] = stored.ID
	return Registration{Registered: true, Pattern: stored.Clone()}, nil
}

// Get implements Store.
func (ms *MemoryStore) Get(ctx context.Context, id string) (*pattern.Pattern, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	p, ok := ms.byID[id]
	if !ok {
		return nil, fmt.Errorf("id %s: %w", id, ErrNotFound)
	}
	return p.Clone(), nil
}

// GetByName implements Store.
func (ms *MemoryStore) GetByName(ctx context.Context, name string) (*pattern.Pattern, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	id, ok := ms.byName[name]
	if !ok {
		return nil, fmt.Errorf("name %s: %w", name, ErrNotFound)
	}
	return ms.byID[id].Clone(), nil
}

// All implements Store.
func (ms *MemoryStore) All(ctx context.Context) ([]*pattern.Pattern, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	out := make([]*pattern.Pattern, 0, len(ms.byID))
	for _, p := range ms.byID {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// ByLanguage implements Store.
func (ms *MemoryStore) ByLanguage(ctx context.Context, language string) ([]*pattern.Pattern, error) {
	all, err := ms.All(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, p := range all {
		if p.Language == language {
			out = append(out, p)
		}
	}
	return out, nil
}

// Coherences implements Store.
func (ms *MemoryStore) Coherences(ctx context.Context) ([]float64, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	out := make([]float64, 0, len(ms.byID))
	for _, p := range ms.byID {
		out = append(out, p.Coherence)
	}
	return out, nil
}

// Count implements Store.
func (ms *MemoryStore) Count(ctx context.Context) (int, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return len(ms.byID), nil
}

// TouchUsage implements Store.
func (ms *MemoryStore) TouchUsage(ctx context.Context, id string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	p, ok := ms.byID[id]
	if !ok {
		return fmt.Errorf("id %s: %w", id, ErrNotFound)
	}
	p.UsageCount++
	p.LastUsed = time.Now()
	return nil
}

// SetEmbedding stores a pattern's embedding vector for similarity search.
func (ms *MemoryStore) SetEmbedding(ctx context.Context, id string, vec []float32) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, ok := ms.byID[id]; !ok {
		return fmt.Errorf("id %s: %w", id, ErrNotFound)
	}
	ms.vectors[id] = append([]float32(nil), vec...)
	return nil
}

// Embeddings returns every stored embedding keyed by pattern id.
func (ms *MemoryStore) Embeddings(ctx context.Context) (map[string][]float32, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	out := make(map[string][]float32, len(ms.vectors))
	for id, vec := range ms.vectors {
		out[id] = append([]float32(nil), vec...)
	}
	return out, nil
}

// Close implements Store.
func (ms *MemoryStore) Close() error {
	return nil
}
