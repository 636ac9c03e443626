package rag

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrFirmNotFound = errors.New("firm not found")

// ListFilter narrows ListByTenant. Empty Topics means unfiltered; Limit <= 0
// means no limit.
type ListFilter struct {
	Topics []string
	Limit  int
}

// Store is the read side the retriever depends on.
type Store interface {
	// ListByTenant returns excerpts ordered by source name then section reference.
	ListByTenant(ctx context.Context, tenantID string, filter ListFilter) ([]Excerpt, error)
	// VectorSearch returns at most limit embedded excerpts whose cosine
	// similarity to query is >= threshold, most similar first.
	VectorSearch(ctx context.Context, tenantID string, query []float32, threshold float64, limit int) ([]Excerpt, error)
}

// EmbeddingWriter is the single write path used by embedding backfill.
type EmbeddingWriter interface {
	SetEmbedding(ctx context.Context, id uuid.UUID, vec []float32) error
}

// Writer covers authoring and ingestion.
type Writer interface {
	EmbeddingWriter
	Insert(ctx context.Context, e Excerpt) error
	// DeleteByTenant removes a tenant's excerpts, optionally only one provenance.
	DeleteByTenant(ctx context.Context, tenantID string, provenance *Provenance) (int64, error)
	ListMissingEmbeddings(ctx context.Context, tenantID string, limit int) ([]Excerpt, error)
}

// Repository is everything the service needs from excerpt storage.
type Repository interface {
	Store
	Writer
}

// FirmDirectory reads firm metadata owned by the CRUD layer.
type FirmDirectory interface {
	GetFirm(ctx context.Context, tenantID string) (FirmContext, error)
}
