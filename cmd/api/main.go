package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/josinaldojr/compliance-assistant/internal/apperr"
	"github.com/josinaldojr/compliance-assistant/internal/assistant"
	"github.com/josinaldojr/compliance-assistant/internal/config"
	"github.com/josinaldojr/compliance-assistant/internal/db"
	"github.com/josinaldojr/compliance-assistant/internal/embedding"
	apphttp "github.com/josinaldojr/compliance-assistant/internal/http"
	"github.com/josinaldojr/compliance-assistant/internal/llm"
	"github.com/josinaldojr/compliance-assistant/internal/logger"
	"github.com/josinaldojr/compliance-assistant/internal/rag"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logg, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logg.Sync() }()

	if err := run(cfg, logg); err != nil {
		logg.Fatal("api stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logg *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		repo  rag.Repository
		firms rag.FirmDirectory
	)
	if cfg.UsesMemoryStore() {
		mem := rag.NewMemoryStore()
		for _, f := range cfg.DevFirms {
			mem.PutFirm(rag.FirmContext{TenantID: f.ID, Name: f.Name, Jurisdiction: f.Jurisdiction})
		}
		repo, firms = mem, mem
		logg.Warn("DATABASE_URL not set, using in-memory excerpt store", zap.Int("dev_firms", len(cfg.DevFirms)))
	} else {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		repo = rag.NewPgRepository(pool, cfg.EmbeddingDimensions)
		firms = rag.NewPgFirmDirectory(pool)
	}

	topics := rag.DefaultTopicTable()
	if cfg.TopicKeywordsFile != "" {
		t, err := rag.LoadTopicTable(cfg.TopicKeywordsFile)
		if err != nil {
			return err
		}
		topics = t
	}
	logg.Info("topic table loaded", zap.Int("keywords", topics.Len()))

	embedder, err := embedding.NewGeminiEmbedder(ctx, embedding.Config{
		APIKey:     cfg.EmbeddingAPIKey,
		Model:      cfg.EmbeddingModel,
		Dimensions: cfg.EmbeddingDimensions,
	}, logg.Named("embedding"))
	if err != nil {
		return err
	}

	retriever := rag.NewRetriever(repo, embedder, topics, logg.Named("retriever"),
		rag.WithSimilarityThreshold(cfg.SimilarityThreshold))

	opts := []assistant.Option{
		assistant.WithEmbedder(rag.NewBackfiller(embedder, repo, logg.Named("backfill"))),
		assistant.WithSourceTokenBudget(cfg.PromptSourceTokenBudget),
		assistant.WithLimits(cfg.RelevantLimit, cfg.AllLimit),
	}

	gateway, err := llm.NewGateway(os.Getenv, llm.WithLogger(logg.Named("llm")))
	switch {
	case err == nil:
		opts = append(opts, assistant.WithGateway(gateway))
	case apperr.IsConfiguration(err):
		logg.Error("llm gateway not configured, /ask will answer assistant_not_configured", zap.Error(err))
	default:
		return err
	}

	svc := assistant.NewService(firms, retriever, repo, logg.Named("assistant"), opts...)

	h := apphttp.NewHandler(svc, cfg.AssistantTimeout, logg.Named("http"))
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           apphttp.NewRouter(h, cfg.CORSAllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logg.Info("api listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logg.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	svc.Wait()
	return nil
}
