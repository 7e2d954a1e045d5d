// Package storage defines the repository interface for the local reference
// library and is implemented by the postgres and memory backends.
package storage

import (
	"context"

	"github.com/shahabnazari/litpipe/internal/core/domain"
)

// SourceRepository persists literature source records. Upsert is the
// persistence collaborator behind the pipeline's save operation when the
// service runs against a local library instead of the remote API.
type SourceRepository interface {
	Upsert(ctx context.Context, src domain.Source) (domain.SaveReceipt, error)
	Get(ctx context.Context, persistedID string) (*domain.Source, error)
	List(ctx context.Context) ([]domain.Source, error)
	Count(ctx context.Context) (int, error)
}
