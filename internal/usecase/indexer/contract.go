package indexer

import (
	"context"
	"time"

	"github.com/catrec-io/catrec/internal/domain"
	"github.com/catrec-io/catrec/internal/vectorstore"
)

// Repository is the record persistence contract for the indexer.
type Repository interface {
	ClaimPending(ctx context.Context, n int) ([]domain.Record, error)
	ClaimIDs(ctx context.Context, ids []string) ([]domain.Record, error)
	Update(ctx context.Context, rec domain.Record) error
	RequeueFailed(ctx context.Context, now time.Time) (int, error)
	PendingCount(ctx context.Context) (int64, error)
}

// VectorStore receives embedded records.
type VectorStore interface {
	Upsert(ctx context.Context, entries []vectorstore.Entry) error
}

// BatchEmbedder vectorizes record text chunks.
type BatchEmbedder interface {
	BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error)
}
