package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	wl "github.com/abadojack/whatlanggo"
	"go.uber.org/zap"

	"github.com/josinaldojr/compliance-assistant/internal/apperr"
	"github.com/josinaldojr/compliance-assistant/internal/llm"
	"github.com/josinaldojr/compliance-assistant/internal/prompt"
	"github.com/josinaldojr/compliance-assistant/internal/rag"
)

const (
	defaultSourceTokenBudget = 12000
	embedTimeout             = 30 * time.Second
	// minWordsForDetection keeps short questions ("KYC?") from being
	// misdetected as another language.
	minWordsForDetection = 4
	fallbackTopic        = "general"
)

// Completer is the part of the LLM gateway the service uses.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Response, error)
}

type Retriever interface {
	RetrieveRelevant(ctx context.Context, tenantID, question string, limit int) []rag.Excerpt
	RetrieveAll(ctx context.Context, tenantID string, limit int) []rag.Excerpt
	ExtractTopics(text string) []string
}

type ExcerptEmbedder interface {
	EmbedExcerpt(ctx context.Context, e rag.Excerpt) error
}

type Service struct {
	firms     rag.FirmDirectory
	retriever Retriever
	store     rag.Writer
	gateway   Completer
	embedder  ExcerptEmbedder
	counter   prompt.TokenCounter
	logger    *zap.Logger

	sourceBudget  int
	relevantLimit int
	allLimit      int

	pending sync.WaitGroup
}

type Option func(*Service)

// WithGateway sets the completion backend. Without one, Ask reports
// assistant_not_configured.
func WithGateway(g Completer) Option {
	return func(s *Service) { s.gateway = g }
}

// WithEmbedder enables background embedding of newly created sources.
func WithEmbedder(e ExcerptEmbedder) Option {
	return func(s *Service) { s.embedder = e }
}

func WithSourceTokenBudget(tokens int) Option {
	return func(s *Service) { s.sourceBudget = tokens }
}

func WithLimits(relevant, all int) Option {
	return func(s *Service) {
		s.relevantLimit = relevant
		s.allLimit = all
	}
}

func WithTokenCounter(c prompt.TokenCounter) Option {
	return func(s *Service) { s.counter = c }
}

func NewService(firms rag.FirmDirectory, retriever Retriever, store rag.Writer, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		firms:         firms,
		retriever:     retriever,
		store:         store,
		logger:        logger,
		sourceBudget:  defaultSourceTokenBudget,
		relevantLimit: rag.DefaultRelevantLimit,
		allLimit:      rag.DefaultAllLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ask answers a general compliance question for tenantID, grounded in that
// tenant's sources.
func (s *Service) Ask(ctx context.Context, tenantID string, req AskRequest) (*AskResponse, error) {
	req.QuestionText = strings.TrimSpace(req.QuestionText)
	// Turns dropped by truncation are never used, so they are not validated.
	req.ConversationHistory = prompt.TruncateHistory(req.ConversationHistory, prompt.MaxHistoryTurns)
	if err := validateStruct(req); err != nil {
		return nil, fail(ReasonInvalidRequest, err)
	}

	firm, err := s.firm(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	if s.gateway == nil {
		return nil, fail(ReasonNotConfigured, errors.New("llm gateway is not configured"))
	}

	history := req.ConversationHistory

	sources := s.retriever.RetrieveRelevant(ctx, tenantID, req.QuestionText, s.relevantLimit)
	fitted := prompt.FitSources(sources, s.sourceBudget, s.counter)
	if len(fitted) < len(sources) {
		s.logger.Debug("sources trimmed to token budget",
			zap.String("tenant_id", tenantID),
			zap.Int("retrieved", len(sources)),
			zap.Int("kept", len(fitted)))
	}

	messages := s.compose(firm, fitted, history, req)

	resp, err := s.gateway.Complete(ctx, llm.Request{Messages: messages})
	if err != nil {
		s.logger.Error("completion failed",
			zap.String("tenant_id", tenantID),
			zap.Int("sources", len(fitted)),
			zap.Error(err))
		if apperr.IsConfiguration(err) {
			return nil, fail(ReasonNotConfigured, err)
		}
		return nil, fail(ReasonUnavailable, err)
	}

	answer := strings.TrimSpace(resp.Text)
	citations := prompt.Citations(answer, fitted)

	fields := []zap.Field{
		zap.String("tenant_id", tenantID),
		zap.Int("sources", len(fitted)),
		zap.Int("history", len(history)),
		zap.Int("citations", len(citations)),
		zap.String("finish_reason", resp.FinishReason),
	}
	if resp.Usage != nil {
		fields = append(fields, zap.Int("total_tokens", resp.Usage.TotalTokens))
	}
	s.logger.Info("assistant answered", fields...)

	return &AskResponse{Answer: answer, Citations: citations}, nil
}

func (s *Service) compose(firm rag.FirmContext, sources []rag.Excerpt, history []rag.Turn, req AskRequest) []llm.Message {
	messages := make([]llm.Message, 0, len(history)+3)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: prompt.BuildSystemPrompt(firm, sources)})

	if lang, ok := detectLanguage(req.QuestionText); ok {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: prompt.LanguageDirective(lang)})
	}

	for _, t := range history {
		messages = append(messages, llm.Message{Role: llm.Role(t.Role), Content: t.Content})
	}

	question := req.QuestionText
	if req.UIContext != nil && strings.TrimSpace(req.UIContext.QuestionText) != "" {
		question = fmt.Sprintf("I am working on this checklist question: %q\n\n%s",
			strings.TrimSpace(req.UIContext.QuestionText), question)
	}
	return append(messages, llm.Message{Role: llm.RoleUser, Content: question})
}

// detectLanguage returns the English name of the question's language when it
// is reliably something other than English.
func detectLanguage(q string) (string, bool) {
	if len(strings.Fields(q)) < minWordsForDetection {
		return "", false
	}
	info := wl.Detect(q)
	if info.Lang == wl.Eng || !info.IsReliable() {
		return "", false
	}
	name := info.Lang.String()
	if name == "" {
		return "", false
	}
	return name, true
}

func (s *Service) firm(ctx context.Context, tenantID string) (rag.FirmContext, error) {
	if strings.TrimSpace(tenantID) == "" {
		return rag.FirmContext{}, fail(ReasonInvalidRequest, errors.New("tenant id is required"))
	}
	firm, err := s.firms.GetFirm(ctx, tenantID)
	if errors.Is(err, rag.ErrFirmNotFound) {
		return rag.FirmContext{}, fail(ReasonFirmNotFound, err)
	}
	if err != nil {
		s.logger.Error("firm lookup failed", zap.String("tenant_id", tenantID), zap.Error(err))
		return rag.FirmContext{}, fail(ReasonInternal, err)
	}
	return firm, nil
}

// Sources lists the tenant's excerpts unfiltered, for diagnostics.
func (s *Service) Sources(ctx context.Context, tenantID string, limit int) ([]rag.Excerpt, error) {
	if _, err := s.firm(ctx, tenantID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.allLimit
	}
	return s.retriever.RetrieveAll(ctx, tenantID, limit), nil
}

// CreateSource stores one excerpt and embeds it in the background. Embedding
// failures are logged; the excerpt stays usable through keyword retrieval.
func (s *Service) CreateSource(ctx context.Context, tenantID string, in SourceInput) (*rag.Excerpt, error) {
	if _, err := s.firm(ctx, tenantID); err != nil {
		return nil, err
	}
	if err := validateStruct(in); err != nil {
		return nil, fail(ReasonInvalidRequest, err)
	}

	var effective *time.Time
	if in.EffectiveDate != "" {
		d, err := time.Parse("2006-01-02", in.EffectiveDate)
		if err != nil {
			return nil, fail(ReasonInvalidRequest, err)
		}
		effective = &d
	}

	topics := rag.NormalizeTopics(in.Topics)
	if len(topics) == 0 {
		topics = s.retriever.ExtractTopics(in.SourceName + "\n" + in.Content)
	}
	if len(topics) == 0 {
		topics = []string{fallbackTopic}
	}

	e, err := rag.NewExcerpt(rag.ExcerptInput{
		TenantID:      tenantID,
		Provenance:    rag.Provenance(in.Provenance),
		SourceName:    in.SourceName,
		SectionRef:    in.SectionRef,
		Topics:        topics,
		Content:       in.Content,
		EffectiveDate: effective,
	})
	if err != nil {
		return nil, fail(ReasonInvalidRequest, err)
	}

	if err := s.store.Insert(ctx, e); err != nil {
		s.logger.Error("insert source failed", zap.String("tenant_id", tenantID), zap.Error(err))
		return nil, fail(ReasonInternal, err)
	}

	s.embedAsync(e)
	return &e, nil
}

func (s *Service) embedAsync(e rag.Excerpt) {
	if s.embedder == nil {
		return
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), embedTimeout)
		defer cancel()
		if err := s.embedder.EmbedExcerpt(ctx, e); err != nil {
			s.logger.Warn("source embedding failed, keyword retrieval only",
				zap.String("tenant_id", e.TenantID),
				zap.String("excerpt_id", e.ID.String()),
				zap.Error(err))
		}
	}()
}

// Wait blocks until background embedding work has finished.
func (s *Service) Wait() {
	s.pending.Wait()
}

// DeleteSources removes the tenant's excerpts. An empty provenance deletes
// both kinds.
func (s *Service) DeleteSources(ctx context.Context, tenantID, provenance string) (int64, error) {
	if _, err := s.firm(ctx, tenantID); err != nil {
		return 0, err
	}

	var filter *rag.Provenance
	if strings.TrimSpace(provenance) != "" {
		p, err := rag.ParseProvenance(provenance)
		if err != nil {
			return 0, fail(ReasonInvalidRequest, err)
		}
		filter = &p
	}

	n, err := s.store.DeleteByTenant(ctx, tenantID, filter)
	if err != nil {
		s.logger.Error("delete sources failed", zap.String("tenant_id", tenantID), zap.Error(err))
		return 0, fail(ReasonInternal, err)
	}
	s.logger.Info("sources deleted",
		zap.String("tenant_id", tenantID),
		zap.String("provenance", provenance),
		zap.Int64("deleted", n))
	return n, nil
}
