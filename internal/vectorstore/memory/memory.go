package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"pdfrag/internal/domain"
)

type collection struct {
	dimension int
	index     map[string]int
	entries   []domain.IndexEntry
}

// Storage is a simple in-memory vector store using brute-force squared L2
// distance.
type Storage struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

func NewStorage() *Storage { return &Storage{collections: map[string]*collection{}} }

func (s *Storage) EnsureCollection(_ context.Context, name string, dimension int) error {
	if name == "" {
		return errors.New("empty collection name")
	}
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.collections[name]; ok {
		if c.dimension != dimension {
			return fmt.Errorf("collection %s has dimension %d, not %d", name, c.dimension, dimension)
		}
		return nil
	}
	s.collections[name] = &collection{dimension: dimension, index: map[string]int{}}
	return nil
}

func (s *Storage) Upsert(_ context.Context, name string, entries []domain.IndexEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[name]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrCollectionNotFound, name)
	}
	for _, e := range entries {
		if len(e.Vector) != c.dimension {
			return errors.New("vector dimension mismatch")
		}
	}
	for _, e := range entries {
		e.Vector = append([]float32(nil), e.Vector...)
		if i, ok := c.index[e.ID]; ok {
			c.entries[i] = e
			continue
		}
		c.index[e.ID] = len(c.entries)
		c.entries = append(c.entries, e)
	}
	return nil
}

func (s *Storage) Query(_ context.Context, name string, vector []float32, k int) ([]domain.Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrCollectionNotFound, name)
	}
	if k <= 0 {
		return nil, nil
	}
	if len(vector) != c.dimension {
		return nil, errors.New("vector dimension mismatch")
	}
	dists := make([]float64, len(c.entries))
	idxs := make([]int, len(c.entries))
	for i := range c.entries {
		dists[i] = squaredL2(c.entries[i].Vector, vector)
		idxs[i] = i
	}
	// insertion order breaks ties
	sort.SliceStable(idxs, func(a, b int) bool { return dists[idxs[a]] < dists[idxs[b]] })
	if k > len(idxs) {
		k = len(idxs)
	}
	hits := make([]domain.Hit, 0, k)
	for _, i := range idxs[:k] {
		e := c.entries[i]
		d := dists[i]
		hits = append(hits, domain.Hit{
			ID:       e.ID,
			Text:     e.Document,
			Metadata: domain.MetadataFromMap(e.Metadata),
			Distance: &d,
		})
	}
	return hits, nil
}

func (s *Storage) Count(_ context.Context, name string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", domain.ErrCollectionNotFound, name)
	}
	return len(c.entries), nil
}

func (s *Storage) Close() error { return nil }

func squaredL2(a, b []float32) float64 {
	sum := 0.0
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}
