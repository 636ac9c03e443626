package rag

import (
	"context"

	"go.uber.org/zap"
)

const (
	// DefaultSimilarityThreshold is the minimum cosine similarity for a vector hit.
	DefaultSimilarityThreshold = 0.5
	// DefaultRelevantLimit bounds RetrieveRelevant.
	DefaultRelevantLimit = 10
	// DefaultAllLimit bounds RetrieveAll.
	DefaultAllLimit = 20
)

// Embedder turns text into a fixed-length vector.
type Embedder interface {
	IsConfigured() bool
	Embed(ctx context.Context, text string) ([]float32, error)
}

type tierOutcome int

const (
	outcomeSkipped tierOutcome = iota
	outcomeOK
	outcomeEmpty
	outcomeErr
)

func (o tierOutcome) String() string {
	switch o {
	case outcomeOK:
		return "ok"
	case outcomeEmpty:
		return "empty"
	case outcomeErr:
		return "error"
	default:
		return "skipped"
	}
}

type tierResult struct {
	outcome  tierOutcome
	excerpts []Excerpt
	err      error
}

// Retriever selects source excerpts for a question: vector similarity first,
// keyword topics when that is unavailable or finds nothing. It never returns
// an error; the worst case is an empty list.
type Retriever struct {
	store     Store
	embedder  Embedder
	topics    *TopicTable
	threshold float64
	logger    *zap.Logger
}

type RetrieverOption func(*Retriever)

func WithSimilarityThreshold(threshold float64) RetrieverOption {
	return func(r *Retriever) { r.threshold = threshold }
}

// NewRetriever builds a retriever. embedder may be nil, which disables the
// vector tier.
func NewRetriever(store Store, embedder Embedder, topics *TopicTable, logger *zap.Logger, opts ...RetrieverOption) *Retriever {
	if topics == nil {
		topics = DefaultTopicTable()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Retriever{
		store:     store,
		embedder:  embedder,
		topics:    topics,
		threshold: DefaultSimilarityThreshold,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RetrieveRelevant returns up to limit excerpts for the question, most
// relevant first.
func (r *Retriever) RetrieveRelevant(ctx context.Context, tenantID, question string, limit int) []Excerpt {
	if limit <= 0 {
		limit = DefaultRelevantLimit
	}

	res := r.vectorTier(ctx, tenantID, question, limit)
	switch res.outcome {
	case outcomeOK:
		return res.excerpts
	case outcomeSkipped:
		r.logger.Debug("vector retrieval unavailable, using keyword match",
			zap.String("tenant_id", tenantID))
	default:
		r.logger.Warn("retrieval degraded to keyword match",
			zap.String("tenant_id", tenantID),
			zap.Stringer("vector_outcome", res.outcome),
			zap.Error(res.err))
	}

	return r.keywordTier(ctx, tenantID, question, limit)
}

// RetrieveAll returns the tenant's excerpts unfiltered, ordered by source name
// then section reference.
func (r *Retriever) RetrieveAll(ctx context.Context, tenantID string, limit int) []Excerpt {
	if limit <= 0 {
		limit = DefaultAllLimit
	}
	return r.list(ctx, tenantID, ListFilter{Limit: limit})
}

// ExtractTopics exposes the keyword lookup used by the fallback tier.
func (r *Retriever) ExtractTopics(question string) []string {
	return r.topics.Extract(question)
}

func (r *Retriever) vectorTier(ctx context.Context, tenantID, question string, limit int) tierResult {
	if r.embedder == nil || !r.embedder.IsConfigured() {
		return tierResult{outcome: outcomeSkipped}
	}

	vec, err := r.embedder.Embed(ctx, question)
	if err != nil {
		return tierResult{outcome: outcomeErr, err: err}
	}

	hits, err := r.store.VectorSearch(ctx, tenantID, vec, r.threshold, limit)
	if err != nil {
		return tierResult{outcome: outcomeErr, err: err}
	}
	if len(hits) == 0 {
		return tierResult{outcome: outcomeEmpty}
	}
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return tierResult{outcome: outcomeOK, excerpts: hits}
}

func (r *Retriever) keywordTier(ctx context.Context, tenantID, question string, limit int) []Excerpt {
	topics := r.topics.Extract(question)
	r.logger.Debug("keyword retrieval",
		zap.String("tenant_id", tenantID),
		zap.Strings("topics", topics))
	return r.list(ctx, tenantID, ListFilter{Topics: topics, Limit: limit})
}

func (r *Retriever) list(ctx context.Context, tenantID string, filter ListFilter) []Excerpt {
	excerpts, err := r.store.ListByTenant(ctx, tenantID, filter)
	if err != nil {
		r.logger.Error("excerpt listing failed, returning no sources",
			zap.String("tenant_id", tenantID),
			zap.Error(err))
		return []Excerpt{}
	}
	if excerpts == nil {
		return []Excerpt{}
	}
	if filter.Limit > 0 && len(excerpts) > filter.Limit {
		excerpts = excerpts[:filter.Limit]
	}
	return excerpts
}
