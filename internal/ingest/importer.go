package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/josinaldojr/compliance-assistant/internal/rag"
)

// FallbackTopic tags excerpts no keyword matched, so topics are never empty.
const FallbackTopic = "general"

const (
	defaultMaxPages = 50
	maxPageBytes    = 5 << 20
)

type ExcerptEmbedder interface {
	EmbedExcerpt(ctx context.Context, e rag.Excerpt) error
}

type Options struct {
	TenantID   string
	Provenance rag.Provenance
	// SourceName names every excerpt; empty means use each document's title.
	SourceName    string
	EffectiveDate *time.Time
	// Replace deletes the tenant's excerpts of Provenance before importing.
	Replace bool
}

func (o Options) validate() error {
	if strings.TrimSpace(o.TenantID) == "" {
		return errors.New("tenant is required")
	}
	if !o.Provenance.Valid() {
		return fmt.Errorf("invalid provenance %q", o.Provenance)
	}
	return nil
}

type Result struct {
	Documents int
	Excerpts  int
	Embedded  int
	Deleted   int64
}

// Importer turns documents into tenant-scoped excerpts. Embedding is best
// effort: a failed embed leaves the excerpt for the backfill job.
type Importer struct {
	store    rag.Writer
	topics   *rag.TopicTable
	embedder ExcerptEmbedder
	hc       *http.Client
	logger   *zap.Logger
}

// NewImporter builds an importer. embedder may be nil.
func NewImporter(store rag.Writer, topics *rag.TopicTable, embedder ExcerptEmbedder, logger *zap.Logger) *Importer {
	if topics == nil {
		topics = rag.DefaultTopicTable()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{
		store:    store,
		topics:   topics,
		embedder: embedder,
		hc:       &http.Client{Timeout: 30 * time.Second},
		logger:   logger,
	}
}

// Prepare validates opts and applies Replace. Call it once per run.
func (im *Importer) Prepare(ctx context.Context, opts Options) (int64, error) {
	if err := opts.validate(); err != nil {
		return 0, err
	}
	if !opts.Replace {
		return 0, nil
	}
	p := opts.Provenance
	n, err := im.store.DeleteByTenant(ctx, opts.TenantID, &p)
	if err != nil {
		return 0, fmt.Errorf("replace %s sources: %w", p, err)
	}
	im.logger.Info("existing sources removed",
		zap.String("tenant_id", opts.TenantID),
		zap.String("provenance", string(p)),
		zap.Int64("deleted", n))
	return n, nil
}

// ImportPath imports root, a single file or a directory walked recursively.
func (im *Importer) ImportPath(ctx context.Context, root string, opts Options) (Result, error) {
	var res Result
	if err := opts.validate(); err != nil {
		return res, err
	}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !Supported(path) {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		text, err := ExtractFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		if text == "" {
			im.logger.Warn("no text extracted", zap.String("path", path))
			return nil
		}

		res.Documents++
		return im.save(ctx, TitleFromPath(path), text, opts, &res)
	})
	return res, err
}

// ImportURL crawls same-host pages breadth first from baseURL, up to maxPages.
// Page failures are logged and skipped.
func (im *Importer) ImportURL(ctx context.Context, baseURL string, maxPages int, opts Options) (Result, error) {
	var res Result
	if err := opts.validate(); err != nil {
		return res, err
	}
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}

	base, err := url.Parse(baseURL)
	if err != nil || base.Host == "" {
		return res, fmt.Errorf("invalid base url %q", baseURL)
	}

	visited := make(map[string]bool)
	queue := []string{base.String()}
	pages := 0

	for len(queue) > 0 && pages < maxPages {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		current := queue[0]
		queue = queue[1:]
		if visited[current] {
			continue
		}
		visited[current] = true
		pages++

		body, err := im.fetch(ctx, current)
		if err != nil {
			im.logger.Warn("fetch failed", zap.String("url", current), zap.Error(err))
			continue
		}

		if text := ExtractHTML(body); text != "" {
			res.Documents++
			if err := im.save(ctx, TitleFromURL(current, base), text, opts, &res); err != nil {
				return res, err
			}
		}

		for _, link := range ExtractLinks(body, base) {
			if !visited[link] {
				queue = append(queue, link)
			}
		}
	}
	return res, nil
}

func (im *Importer) fetch(ctx context.Context, target string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", err
	}
	resp, err := im.hc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (im *Importer) save(ctx context.Context, title, text string, opts Options, res *Result) error {
	chunks := SplitIntoChunks(text, MaxChunkLen)

	sourceName := strings.TrimSpace(opts.SourceName)
	if sourceName == "" {
		sourceName = title
	}

	for i, c := range chunks {
		topics := im.topics.Extract(title + "\n" + c)
		if len(topics) == 0 {
			topics = []string{FallbackTopic}
		}

		e, err := rag.NewExcerpt(rag.ExcerptInput{
			TenantID:      opts.TenantID,
			Provenance:    opts.Provenance,
			SourceName:    sourceName,
			SectionRef:    SectionRef(title, i, len(chunks)),
			Topics:        topics,
			Content:       c,
			EffectiveDate: opts.EffectiveDate,
		})
		if err != nil {
			return fmt.Errorf("build excerpt: %w", err)
		}
		if err := im.store.Insert(ctx, e); err != nil {
			return fmt.Errorf("insert excerpt: %w", err)
		}
		res.Excerpts++

		if im.embedder != nil {
			if err := im.embedder.EmbedExcerpt(ctx, e); err != nil {
				im.logger.Warn("embedding failed, left for backfill",
					zap.String("excerpt_id", e.ID.String()),
					zap.Error(err))
			} else {
				res.Embedded++
			}
		}

		im.logger.Debug("excerpt imported",
			zap.String("tenant_id", opts.TenantID),
			zap.String("section_ref", e.SectionRef),
			zap.Strings("topics", topics),
			zap.Int("len", len(c)))
	}
	return nil
}
