// Package memory provides an in-memory source repository, used when no
// database is configured and by tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/shahabnazari/litpipe/internal/core/domain"
)

// SourceRepo is a map-backed repository with the same duplicate semantics
// as the postgres implementation.
type SourceRepo struct {
	mu   sync.RWMutex
	byID map[string]domain.Source
}

// NewSourceRepo creates an empty repository.
func NewSourceRepo() *SourceRepo {
	return &SourceRepo{byID: make(map[string]domain.Source)}
}

// Upsert stores the source, reporting duplicates by DOI or external ID.
func (r *SourceRepo) Upsert(ctx context.Context, src domain.Source) (domain.SaveReceipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, existing := range r.byID {
		if (src.DOI != "" && src.DOI == existing.DOI) ||
			(src.ExternalID != "" && src.ExternalID == existing.ExternalID) {
			return domain.SaveReceipt{ID: id, Duplicate: true}, nil
		}
	}

	src.PersistedID = uuid.NewString()
	r.byID[src.PersistedID] = src
	return domain.SaveReceipt{ID: src.PersistedID}, nil
}

// Get returns one source by its persisted ID.
func (r *SourceRepo) Get(ctx context.Context, persistedID string) (*domain.Source, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	src, ok := r.byID[persistedID]
	if !ok {
		return nil, fmt.Errorf("source %s not found", persistedID)
	}
	return &src, nil
}

// List returns all stored sources ordered by title for stable output.
func (r *SourceRepo) List(ctx context.Context) ([]domain.Source, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sources := make([]domain.Source, 0, len(r.byID))
	for _, src := range r.byID {
		sources = append(sources, src)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i].Title < sources[j].Title })
	return sources, nil
}

// Count returns the number of stored sources.
func (r *SourceRepo) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID), nil
}
