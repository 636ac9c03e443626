package assistant

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/josinaldojr/compliance-assistant/internal/apperr"
	"github.com/josinaldojr/compliance-assistant/internal/llm"
	"github.com/josinaldojr/compliance-assistant/internal/rag"
)

type MockCompleter struct {
	mock.Mock
}

func (m *MockCompleter) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*llm.Response), args.Error(1)
}

type MockExcerptEmbedder struct {
	mock.Mock
}

func (m *MockExcerptEmbedder) EmbedExcerpt(ctx context.Context, e rag.Excerpt) error {
	return m.Called(ctx, e).Error(0)
}

const pepQuestion = "What counts as enhanced due diligence for a PEP client?"

type fixture struct {
	store   *rag.MemoryStore
	gateway *MockCompleter
	svc     *Service
	sent    *llm.Request
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	store := rag.NewMemoryStore()
	store.PutFirm(rag.FirmContext{TenantID: "acme", Name: "Acme LLP", Jurisdiction: "England and Wales"})

	f := &fixture{store: store, gateway: new(MockCompleter), sent: &llm.Request{}}
	retriever := rag.NewRetriever(store, nil, nil, zap.NewNop())
	opts = append([]Option{WithGateway(f.gateway)}, opts...)
	f.svc = NewService(store, retriever, store, zap.NewNop(), opts...)
	return f
}

func (f *fixture) answer(text string) {
	f.gateway.On("Complete", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { *f.sent = args.Get(1).(llm.Request) }).
		Return(&llm.Response{Text: text, FinishReason: llm.FinishStop}, nil)
}

func (f *fixture) seed(t *testing.T, xs ...rag.ExcerptInput) {
	t.Helper()
	for _, in := range xs {
		e, err := rag.NewExcerpt(in)
		require.NoError(t, err)
		require.NoError(t, f.store.Insert(context.Background(), e))
	}
}

func pepSources() []rag.ExcerptInput {
	return []rag.ExcerptInput{
		{TenantID: "acme", Provenance: rag.ProvenanceExternal, SourceName: "MLR 2017", SectionRef: "reg 35(1)",
			Topics: []string{"pep", "edd"}, Content: "Apply enhanced due diligence to PEPs."},
		{TenantID: "acme", Provenance: rag.ProvenanceExternal, SourceName: "LSAG Guidance", SectionRef: "6.19",
			Topics: []string{"edd"}, Content: "EDD extends to family members of PEPs."},
		{TenantID: "acme", Provenance: rag.ProvenanceInternal, SourceName: "Firm AML policy", SectionRef: "7.3",
			Topics: []string{"pep"}, Content: "PEP matters need MLRO sign-off."},
		{TenantID: "acme", Provenance: rag.ProvenanceInternal, SourceName: "Firm AML policy", SectionRef: "2.1",
			Topics: []string{"training"}, Content: "Annual AML training is mandatory."},
	}
}

func TestAsk_GroundedAnswerWithCitations(t *testing.T) {
	f := newFixture(t)
	f.seed(t, pepSources()...)
	f.answer("Apply EDD [MLR 2017, reg 35(1)] and obtain MLRO sign-off [Firm AML policy, 7.3].")

	resp, err := f.svc.Ask(context.Background(), "acme", AskRequest{QuestionText: "  " + pepQuestion + " "})
	require.NoError(t, err)

	assert.Equal(t, []rag.Citation{
		{SourceName: "MLR 2017", SectionRef: "reg 35(1)"},
		{SourceName: "Firm AML policy", SectionRef: "7.3"},
	}, resp.Citations)

	msgs := f.sent.Messages
	require.Len(t, msgs, 2)
	assert.Equal(t, llm.RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "Acme LLP")
	assert.Contains(t, msgs[0].Content, "England and Wales")
	assert.Contains(t, msgs[0].Content, "MLR 2017, reg 35(1)")
	assert.Contains(t, msgs[0].Content, "LSAG Guidance, 6.19")
	assert.Contains(t, msgs[0].Content, "Firm AML policy, 7.3")
	assert.NotContains(t, msgs[0].Content, "Firm AML policy, 2.1", "training excerpt does not match the topics")
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: pepQuestion}, msgs[1])
}

func TestAsk_NoSourcesStillAsks(t *testing.T) {
	f := newFixture(t)
	f.answer("I cannot find source material for this.")

	resp, err := f.svc.Ask(context.Background(), "acme", AskRequest{QuestionText: pepQuestion})
	require.NoError(t, err)

	assert.Empty(t, resp.Citations)
	assert.NotNil(t, resp.Citations)
	assert.Contains(t, f.sent.Messages[0].Content, "No source material is available")
}

func TestAsk_TruncatesHistory(t *testing.T) {
	f := newFixture(t)
	f.answer("ok")

	history := make([]rag.Turn, 25)
	for i := range history {
		role := rag.RoleUser
		if i%2 == 1 {
			role = rag.RoleAssistant
		}
		history[i] = rag.Turn{Role: role, Content: fmt.Sprintf("turn %d", i)}
	}

	_, err := f.svc.Ask(context.Background(), "acme", AskRequest{QuestionText: pepQuestion, ConversationHistory: history})
	require.NoError(t, err)

	msgs := f.sent.Messages
	require.Len(t, msgs, 1+20+1)
	assert.Equal(t, "turn 5", msgs[1].Content)
	assert.Equal(t, llm.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "turn 24", msgs[20].Content)
	assert.Equal(t, llm.RoleUser, msgs[21].Role)
}

func TestAsk_IgnoresInvalidTurnsBeyondHistoryLimit(t *testing.T) {
	f := newFixture(t)
	f.answer("ok")

	history := make([]rag.Turn, 25)
	for i := range history {
		history[i] = rag.Turn{Role: rag.RoleUser, Content: fmt.Sprintf("turn %d", i)}
	}
	history[0].Content = ""

	_, err := f.svc.Ask(context.Background(), "acme", AskRequest{QuestionText: pepQuestion, ConversationHistory: history})
	require.NoError(t, err)

	msgs := f.sent.Messages
	require.Len(t, msgs, 1+20+1)
	assert.Equal(t, "turn 5", msgs[1].Content)

	history[24].Content = ""
	_, err = f.svc.Ask(context.Background(), "acme", AskRequest{QuestionText: pepQuestion, ConversationHistory: history})
	assert.Equal(t, ReasonInvalidRequest, ReasonOf(err), "kept turns are still validated")
}

func TestAsk_UIContextAndLanguage(t *testing.T) {
	f := newFixture(t)
	f.answer("ok")

	question := "Quelles sont les mesures de vigilance renforcée pour une personne politiquement exposée dans notre cabinet ?"
	_, err := f.svc.Ask(context.Background(), "acme", AskRequest{
		QuestionText: question,
		UIContext:    &UIContext{QuestionID: "q-12", QuestionText: "Does the firm screen clients for PEP status?"},
	})
	require.NoError(t, err)

	msgs := f.sent.Messages
	require.Len(t, msgs, 3)
	assert.Equal(t, llm.RoleSystem, msgs[1].Role)
	assert.Contains(t, msgs[1].Content, "Respond in French")

	last := msgs[2]
	assert.Contains(t, last.Content, `"Does the firm screen clients for PEP status?"`)
	assert.Contains(t, last.Content, question)
}

func TestDetectLanguage_EnglishAndShort(t *testing.T) {
	_, ok := detectLanguage(pepQuestion)
	assert.False(t, ok)
	_, ok = detectLanguage("KYC?")
	assert.False(t, ok)
}

func TestAsk_Failures(t *testing.T) {
	tests := []struct {
		name   string
		tenant string
		req    AskRequest
		setup  func(f *fixture)
		reason Reason
	}{
		{
			name:   "blank question",
			tenant: "acme",
			req:    AskRequest{QuestionText: "   "},
			reason: ReasonInvalidRequest,
		},
		{
			name:   "bad history role",
			tenant: "acme",
			req:    AskRequest{QuestionText: pepQuestion, ConversationHistory: []rag.Turn{{Role: "system", Content: "x"}}},
			reason: ReasonInvalidRequest,
		},
		{
			name:   "missing tenant",
			tenant: "",
			req:    AskRequest{QuestionText: pepQuestion},
			reason: ReasonInvalidRequest,
		},
		{
			name:   "unknown firm",
			tenant: "nobody",
			req:    AskRequest{QuestionText: pepQuestion},
			reason: ReasonFirmNotFound,
		},
		{
			name:   "upstream failure",
			tenant: "acme",
			req:    AskRequest{QuestionText: pepQuestion},
			setup: func(f *fixture) {
				f.gateway.On("Complete", mock.Anything, mock.Anything).
					Return(nil, apperr.Upstream("openai", 500, "The server had an error", nil))
			},
			reason: ReasonUnavailable,
		},
		{
			name:   "gateway misconfigured at call time",
			tenant: "acme",
			req:    AskRequest{QuestionText: pepQuestion},
			setup: func(f *fixture) {
				f.gateway.On("Complete", mock.Anything, mock.Anything).
					Return(nil, apperr.Missing(llm.EnvOpenAIKey))
			},
			reason: ReasonNotConfigured,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.setup != nil {
				tt.setup(f)
			}

			resp, err := f.svc.Ask(context.Background(), tt.tenant, tt.req)
			assert.Nil(t, resp)
			require.Error(t, err)
			assert.Equal(t, tt.reason, ReasonOf(err))
			if tt.setup == nil {
				f.gateway.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
			}
		})
	}
}

func TestAsk_NoGateway(t *testing.T) {
	store := rag.NewMemoryStore()
	store.PutFirm(rag.FirmContext{TenantID: "acme", Name: "Acme LLP"})
	svc := NewService(store, rag.NewRetriever(store, nil, nil, nil), store, nil)

	_, err := svc.Ask(context.Background(), "acme", AskRequest{QuestionText: pepQuestion})
	assert.Equal(t, ReasonNotConfigured, ReasonOf(err))
}

func TestCreateSource(t *testing.T) {
	embedder := new(MockExcerptEmbedder)
	embedder.On("EmbedExcerpt", mock.Anything, mock.Anything).Return(nil)

	f := newFixture(t, WithEmbedder(embedder))

	e, err := f.svc.CreateSource(context.Background(), "acme", SourceInput{
		Provenance:    "internal",
		SourceName:    "Firm AML policy",
		SectionRef:    "4.2",
		Content:       "Sanctions screening is run on every new client before engagement.",
		EffectiveDate: "2024-03-01",
	})
	require.NoError(t, err)
	f.svc.Wait()

	assert.Equal(t, []string{"sanctions"}, e.Topics)
	assert.Equal(t, "2024-03-01", e.EffectiveDate.Format("2006-01-02"))
	embedder.AssertCalled(t, "EmbedExcerpt", mock.Anything, *e)

	listed, err := f.svc.Sources(context.Background(), "acme", 0)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, e.ID, listed[0].ID)
}

func TestCreateSource_FallbackTopicAndEmbedFailure(t *testing.T) {
	embedder := new(MockExcerptEmbedder)
	embedder.On("EmbedExcerpt", mock.Anything, mock.Anything).Return(errors.New("quota exceeded"))

	f := newFixture(t, WithEmbedder(embedder))
	e, err := f.svc.CreateSource(context.Background(), "acme", SourceInput{
		Provenance: "external",
		SourceName: "Office notice",
		SectionRef: "1",
		Content:    "The office closes at noon on Fridays.",
	})
	require.NoError(t, err, "embedding failures do not fail creation")
	f.svc.Wait()

	assert.Equal(t, []string{"general"}, e.Topics)
}

func TestCreateSource_Invalid(t *testing.T) {
	f := newFixture(t)

	for _, in := range []SourceInput{
		{Provenance: "rumour", SourceName: "x", SectionRef: "1", Content: "c"},
		{Provenance: "external", SectionRef: "1", Content: "c"},
		{Provenance: "external", SourceName: "x", SectionRef: "1", Content: "c", EffectiveDate: "01/02/2024"},
	} {
		_, err := f.svc.CreateSource(context.Background(), "acme", in)
		assert.Equal(t, ReasonInvalidRequest, ReasonOf(err))
	}
}

func TestDeleteSources(t *testing.T) {
	f := newFixture(t)
	f.seed(t, pepSources()...)

	n, err := f.svc.DeleteSources(context.Background(), "acme", "internal")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = f.svc.DeleteSources(context.Background(), "acme", "hearsay")
	assert.Equal(t, ReasonInvalidRequest, ReasonOf(err))

	n, err = f.svc.DeleteSources(context.Background(), "acme", "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestReasonOf(t *testing.T) {
	assert.Equal(t, ReasonInternal, ReasonOf(errors.New("boom")))
	err := fmt.Errorf("wrapped: %w", fail(ReasonFirmNotFound, rag.ErrFirmNotFound))
	assert.Equal(t, ReasonFirmNotFound, ReasonOf(err))
	assert.ErrorIs(t, err, rag.ErrFirmNotFound)
}
