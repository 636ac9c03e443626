package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"

	"go.uber.org/zap"

	"github.com/josinaldojr/compliance-assistant/internal/config"
	"github.com/josinaldojr/compliance-assistant/internal/db"
	"github.com/josinaldojr/compliance-assistant/internal/embedding"
	"github.com/josinaldojr/compliance-assistant/internal/logger"
	"github.com/josinaldojr/compliance-assistant/internal/rag"
)

func main() {
	tenantFlag := flag.String("tenant", "", "firm id to backfill")
	batchFlag := flag.Int("batch", 200, "maximum excerpts to embed in this run")
	flag.Parse()

	if *tenantFlag == "" {
		log.Fatal("--tenant is required")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.UsesMemoryStore() {
		log.Fatal("DATABASE_URL is required")
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

	embedder, err := embedding.NewGeminiEmbedder(ctx, embedding.Config{
		APIKey:     cfg.EmbeddingAPIKey,
		Model:      cfg.EmbeddingModel,
		Dimensions: cfg.EmbeddingDimensions,
	}, logg)
	if err != nil {
		logg.Fatal("embedding", zap.Error(err))
	}

	b := rag.NewBackfiller(embedder, rag.NewPgRepository(pool, cfg.EmbeddingDimensions), logg)
	res, err := b.Run(ctx, *tenantFlag, *batchFlag)
	if err != nil {
		logg.Fatal("backfill", zap.Error(err))
	}
	if res.Failed > 0 {
		logg.Warn("some excerpts were not embedded, rerun to retry", zap.Int("failed", res.Failed))
	}
}
