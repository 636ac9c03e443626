package rag

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore keeps excerpts and firms in process. It backs local runs
// without DATABASE_URL and honours the same ordering rules as PgRepository.
type MemoryStore struct {
	mu       sync.RWMutex
	excerpts map[uuid.UUID]Excerpt
	firms    map[string]FirmContext
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		excerpts: make(map[uuid.UUID]Excerpt),
		firms:    make(map[string]FirmContext),
	}
}

func (s *MemoryStore) PutFirm(f FirmContext) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.firms[f.TenantID] = f
}

func (s *MemoryStore) GetFirm(_ context.Context, tenantID string) (FirmContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.firms[tenantID]
	if !ok {
		return FirmContext{}, ErrFirmNotFound
	}
	return f, nil
}

func (s *MemoryStore) Insert(_ context.Context, e Excerpt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.excerpts[e.ID]; exists {
		return fmt.Errorf("insert excerpt: duplicate id %s", e.ID)
	}
	s.excerpts[e.ID] = cloneExcerpt(e)
	return nil
}

func (s *MemoryStore) ListByTenant(_ context.Context, tenantID string, filter ListFilter) ([]Excerpt, error) {
	want := NormalizeTopics(filter.Topics)

	s.mu.RLock()
	out := []Excerpt{}
	for _, e := range s.excerpts {
		if e.TenantID != tenantID {
			continue
		}
		if len(want) > 0 && !intersects(e.Topics, want) {
			continue
		}
		out = append(out, cloneExcerpt(e))
	}
	s.mu.RUnlock()

	sortExcerpts(out)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *MemoryStore) VectorSearch(_ context.Context, tenantID string, query []float32, threshold float64, limit int) ([]Excerpt, error) {
	if limit <= 0 {
		limit = DefaultRelevantLimit
	}

	type scored struct {
		e   Excerpt
		sim float64
	}

	s.mu.RLock()
	var hits []scored
	for _, e := range s.excerpts {
		if e.TenantID != tenantID || !e.HasEmbedding() {
			continue
		}
		if len(e.Embedding) != len(query) {
			s.mu.RUnlock()
			return nil, fmt.Errorf("embedding must be %d dimensions, got %d", len(e.Embedding), len(query))
		}
		sim := CosineSimilarity(e.Embedding, query)
		if sim >= threshold {
			hits = append(hits, scored{e: cloneExcerpt(e), sim: sim})
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].sim != hits[j].sim {
			return hits[i].sim > hits[j].sim
		}
		return hits[i].e.ID.String() < hits[j].e.ID.String()
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}

	out := make([]Excerpt, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.e)
	}
	return out, nil
}

func (s *MemoryStore) SetEmbedding(_ context.Context, id uuid.UUID, vec []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.excerpts[id]
	if !ok {
		return fmt.Errorf("set embedding: excerpt %s not found", id)
	}
	e.Embedding = append([]float32(nil), vec...)
	s.excerpts[id] = e
	return nil
}

func (s *MemoryStore) DeleteByTenant(_ context.Context, tenantID string, provenance *Provenance) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, e := range s.excerpts {
		if e.TenantID != tenantID {
			continue
		}
		if provenance != nil && e.Provenance != *provenance {
			continue
		}
		delete(s.excerpts, id)
		n++
	}
	return n, nil
}

func (s *MemoryStore) ListMissingEmbeddings(_ context.Context, tenantID string, limit int) ([]Excerpt, error) {
	s.mu.RLock()
	var out []Excerpt
	for _, e := range s.excerpts {
		if e.TenantID == tenantID && !e.HasEmbedding() {
			out = append(out, cloneExcerpt(e))
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CosineSimilarity returns 0 for zero-length or zero-norm vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func intersects(have, want []string) bool {
	for _, h := range have {
		for _, w := range want {
			if h == w {
				return true
			}
		}
	}
	return false
}

func cloneExcerpt(e Excerpt) Excerpt {
	e.Topics = append([]string(nil), e.Topics...)
	if e.Embedding != nil {
		e.Embedding = append([]float32(nil), e.Embedding...)
	}
	return e
}

var (
	_ Repository    = (*MemoryStore)(nil)
	_ FirmDirectory = (*MemoryStore)(nil)
)
