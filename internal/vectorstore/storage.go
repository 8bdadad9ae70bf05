package vectorstore

import (
	"context"

	"pdfrag/internal/domain"
)

// Storage persists vectors in named collections and answers nearest-neighbour
// queries. Distances are ascending: lower is closer.
type Storage interface {
	// EnsureCollection creates the collection if it does not exist yet.
	EnsureCollection(ctx context.Context, name string, dimension int) error
	// Upsert writes entries; an existing id is overwritten.
	Upsert(ctx context.Context, collection string, entries []domain.IndexEntry) error
	// Query returns at most k entries closest to vector. A missing collection
	// yields domain.ErrCollectionNotFound.
	Query(ctx context.Context, collection string, vector []float32, k int) ([]domain.Hit, error)
	Count(ctx context.Context, collection string) (int, error)
	Close() error
}
