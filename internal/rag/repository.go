package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// schemaTemplate is the table PgRepository expects; %d is the embedding
// dimensionality. Production databases get it from the CRUD layer's
// migrations; EnsureSchema applies it to local ones.
const schemaTemplate = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS assistant_sources (
	id             uuid PRIMARY KEY,
	tenant_id      text        NOT NULL,
	provenance     text        NOT NULL CHECK (provenance IN ('external', 'internal')),
	source_name    text        NOT NULL,
	section_ref    text        NOT NULL DEFAULT '',
	topics         text[]      NOT NULL CHECK (cardinality(topics) > 0),
	content        text        NOT NULL CHECK (content <> ''),
	effective_date date,
	embedding      vector(%d),
	created_at     timestamptz NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS assistant_sources_tenant_idx ON assistant_sources (tenant_id, source_name, section_ref);
CREATE INDEX IF NOT EXISTS assistant_sources_topics_idx ON assistant_sources USING gin (topics);
CREATE INDEX IF NOT EXISTS assistant_sources_embedding_idx ON assistant_sources USING hnsw (embedding vector_cosine_ops);
`

const defaultDims = 768

// Schema renders the DDL for embeddings of dims dimensions.
func Schema(dims int) string {
	if dims <= 0 {
		dims = defaultDims
	}
	return fmt.Sprintf(schemaTemplate, dims)
}

const excerptColumns = `id, tenant_id, provenance, source_name, section_ref, topics, content, effective_date, created_at`

type PgRepository struct {
	db   *pgxpool.Pool
	dims int
}

// NewPgRepository returns a repository that rejects vectors whose length is
// not dims.
func NewPgRepository(db *pgxpool.Pool, dims int) *PgRepository {
	return &PgRepository{db: db, dims: dims}
}

// EnsureSchema creates the table and indexes if missing, sized to the
// repository's dimensionality.
func (r *PgRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, Schema(r.dims)); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (r *PgRepository) Insert(ctx context.Context, e Excerpt) error {
	var vec any
	if e.HasEmbedding() {
		if err := r.checkDims(e.Embedding); err != nil {
			return err
		}
		vec = pgvector.NewVector(e.Embedding)
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO assistant_sources
			(id, tenant_id, provenance, source_name, section_ref, topics, content, effective_date, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		e.ID,
		e.TenantID,
		string(e.Provenance),
		e.SourceName,
		e.SectionRef,
		e.Topics,
		e.Content,
		e.EffectiveDate,
		vec,
		e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert excerpt: %w", err)
	}
	return nil
}

func (r *PgRepository) ListByTenant(ctx context.Context, tenantID string, filter ListFilter) ([]Excerpt, error) {
	query, args := listQuery(tenantID, filter)
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list excerpts: %w", err)
	}
	return collectExcerpts(rows)
}

func (r *PgRepository) VectorSearch(ctx context.Context, tenantID string, query []float32, threshold float64, limit int) ([]Excerpt, error) {
	if err := r.checkDims(query); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultRelevantLimit
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+excerptColumns+`
		FROM assistant_sources
		WHERE tenant_id = $1
		  AND embedding IS NOT NULL
		  AND 1 - (embedding <=> $2) >= $3
		ORDER BY embedding <=> $2
		LIMIT $4
	`, tenantID, pgvector.NewVector(query), threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	return collectExcerpts(rows)
}

func (r *PgRepository) SetEmbedding(ctx context.Context, id uuid.UUID, vec []float32) error {
	if err := r.checkDims(vec); err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `UPDATE assistant_sources SET embedding = $2 WHERE id = $1`, id, pgvector.NewVector(vec))
	if err != nil {
		return fmt.Errorf("set embedding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("set embedding: excerpt %s not found", id)
	}
	return nil
}

func (r *PgRepository) DeleteByTenant(ctx context.Context, tenantID string, provenance *Provenance) (int64, error) {
	var (
		tag pgconn.CommandTag
		err error
	)
	if provenance != nil {
		tag, err = r.db.Exec(ctx, `DELETE FROM assistant_sources WHERE tenant_id = $1 AND provenance = $2`, tenantID, string(*provenance))
	} else {
		tag, err = r.db.Exec(ctx, `DELETE FROM assistant_sources WHERE tenant_id = $1`, tenantID)
	}
	if err != nil {
		return 0, fmt.Errorf("delete excerpts: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PgRepository) ListMissingEmbeddings(ctx context.Context, tenantID string, limit int) ([]Excerpt, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(ctx, `
		SELECT `+excerptColumns+`
		FROM assistant_sources
		WHERE tenant_id = $1 AND embedding IS NULL
		ORDER BY created_at, id
		LIMIT $2
	`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("list missing embeddings: %w", err)
	}
	return collectExcerpts(rows)
}

func (r *PgRepository) checkDims(vec []float32) error {
	if r.dims > 0 && len(vec) != r.dims {
		return fmt.Errorf("embedding must be %d dimensions, got %d", r.dims, len(vec))
	}
	return nil
}

// listQuery builds the ordered tenant listing, with the topic overlap filter
// applied only when topics are given.
func listQuery(tenantID string, filter ListFilter) (string, []any) {
	var b strings.Builder
	args := []any{tenantID}

	b.WriteString("SELECT ")
	b.WriteString(excerptColumns)
	b.WriteString(" FROM assistant_sources WHERE tenant_id = $1")

	if topics := NormalizeTopics(filter.Topics); len(topics) > 0 {
		args = append(args, topics)
		b.WriteString(fmt.Sprintf(" AND topics && $%d::text[]", len(args)))
	}

	b.WriteString(" ORDER BY source_name, section_ref")

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		b.WriteString(fmt.Sprintf(" LIMIT $%d", len(args)))
	}
	return b.String(), args
}

func collectExcerpts(rows pgx.Rows) ([]Excerpt, error) {
	defer rows.Close()

	excerpts := []Excerpt{}
	for rows.Next() {
		var (
			e          Excerpt
			provenance string
			effective  *time.Time
		)
		if err := rows.Scan(
			&e.ID,
			&e.TenantID,
			&provenance,
			&e.SourceName,
			&e.SectionRef,
			&e.Topics,
			&e.Content,
			&effective,
			&e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan excerpt: %w", err)
		}
		e.Provenance = Provenance(provenance)
		e.EffectiveDate = effective
		excerpts = append(excerpts, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate excerpts: %w", err)
	}
	return excerpts, nil
}

// PgFirmDirectory reads firm metadata from the CRUD layer's firms table.
type PgFirmDirectory struct {
	db *pgxpool.Pool
}

func NewPgFirmDirectory(db *pgxpool.Pool) *PgFirmDirectory {
	return &PgFirmDirectory{db: db}
}

func (d *PgFirmDirectory) GetFirm(ctx context.Context, tenantID string) (FirmContext, error) {
	var (
		f            = FirmContext{TenantID: tenantID}
		jurisdiction *string
	)
	err := d.db.QueryRow(ctx, `SELECT name, jurisdiction FROM firms WHERE id::text = $1`, tenantID).
		Scan(&f.Name, &jurisdiction)
	if errors.Is(err, pgx.ErrNoRows) {
		return FirmContext{}, ErrFirmNotFound
	}
	if err != nil {
		return FirmContext{}, fmt.Errorf("get firm: %w", err)
	}
	if jurisdiction != nil {
		f.Jurisdiction = *jurisdiction
	}
	return f, nil
}

var (
	_ Repository    = (*PgRepository)(nil)
	_ FirmDirectory = (*PgFirmDirectory)(nil)
)
