package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/josinaldojr/compliance-assistant/internal/config"
	"github.com/josinaldojr/compliance-assistant/internal/db"
	"github.com/josinaldojr/compliance-assistant/internal/embedding"
	"github.com/josinaldojr/compliance-assistant/internal/ingest"
	"github.com/josinaldojr/compliance-assistant/internal/logger"
	"github.com/josinaldojr/compliance-assistant/internal/rag"
)

func main() {
	tenantFlag := flag.String("tenant", "", "firm id that owns the imported excerpts")
	pathFlag := flag.String("path", "", "file or directory to import (.md/.txt/.html/.pdf)")
	baseURLFlag := flag.String("base-url", "", "crawl same-host pages starting at this URL")
	maxPagesFlag := flag.Int("max-pages", 50, "page limit for --base-url")
	sourceFlag := flag.String("source-name", "", "source name for every excerpt (default: document title)")
	provenanceFlag := flag.String("provenance", "external", "external (regulator/publication) or internal (firm policy)")
	replaceFlag := flag.Bool("replace", false, "delete the tenant's excerpts of this provenance first")
	effectiveFlag := flag.String("effective-date", "", "effective date, YYYY-MM-DD")
	initSchemaFlag := flag.Bool("init-schema", false, "create the excerpt table if missing")
	flag.Parse()

	if *tenantFlag == "" {
		log.Fatal("--tenant is required")
	}
	if *pathFlag == "" && *baseURLFlag == "" {
		log.Fatal("use --path, --base-url or both")
	}

	provenance, err := rag.ParseProvenance(*provenanceFlag)
	if err != nil {
		log.Fatal(err)
	}

	opts := ingest.Options{
		TenantID:   *tenantFlag,
		Provenance: provenance,
		SourceName: *sourceFlag,
		Replace:    *replaceFlag,
	}
	if s := strings.TrimSpace(*effectiveFlag); s != "" {
		d, err := time.Parse("2006-01-02", s)
		if err != nil {
			log.Fatalf("--effective-date: %v", err)
		}
		opts.EffectiveDate = &d
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.UsesMemoryStore() {
		log.Fatal("DATABASE_URL is required for imports")
	}

	logg, err := logger.New(cfg.LogLevel, "console")
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logg.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logg.Fatal("db", zap.Error(err))
	}
	defer pool.Close()

	repo := rag.NewPgRepository(pool, cfg.EmbeddingDimensions)
	if *initSchemaFlag {
		if err := repo.EnsureSchema(ctx); err != nil {
			logg.Fatal("schema", zap.Error(err))
		}
	}

	topics := rag.DefaultTopicTable()
	if cfg.TopicKeywordsFile != "" {
		if topics, err = rag.LoadTopicTable(cfg.TopicKeywordsFile); err != nil {
			logg.Fatal("topics", zap.Error(err))
		}
	}

	var embedder ingest.ExcerptEmbedder
	gemini, err := embedding.NewGeminiEmbedder(ctx, embedding.Config{
		APIKey:     cfg.EmbeddingAPIKey,
		Model:      cfg.EmbeddingModel,
		Dimensions: cfg.EmbeddingDimensions,
	}, logg)
	if err != nil {
		logg.Fatal("embedding", zap.Error(err))
	}
	if gemini.IsConfigured() {
		embedder = rag.NewBackfiller(gemini, repo, logg)
	} else {
		logg.Warn("no embedding key, excerpts will need backfill-embeddings later")
	}

	im := ingest.NewImporter(repo, topics, embedder, logg)

	deleted, err := im.Prepare(ctx, opts)
	if err != nil {
		logg.Fatal("prepare", zap.Error(err))
	}

	total := ingest.Result{Deleted: deleted}
	add := func(r ingest.Result) {
		total.Documents += r.Documents
		total.Excerpts += r.Excerpts
		total.Embedded += r.Embedded
	}

	if *pathFlag != "" {
		res, err := im.ImportPath(ctx, *pathFlag, opts)
		add(res)
		if err != nil {
			logg.Fatal("import files", zap.String("path", *pathFlag), zap.Error(err))
		}
	}
	if *baseURLFlag != "" {
		res, err := im.ImportURL(ctx, *baseURLFlag, *maxPagesFlag, opts)
		add(res)
		if err != nil {
			logg.Fatal("import url", zap.String("base_url", *baseURLFlag), zap.Error(err))
		}
	}

	logg.Info("import finished",
		zap.String("tenant_id", opts.TenantID),
		zap.String("provenance", string(opts.Provenance)),
		zap.Int64("deleted", total.Deleted),
		zap.Int("documents", total.Documents),
		zap.Int("excerpts", total.Excerpts),
		zap.Int("embedded", total.Embedded))
}
