package assistant

import "github.com/josinaldojr/compliance-assistant/internal/rag"

// UIContext describes the checklist question the user is looking at, if any.
type UIContext struct {
	QuestionID   string `json:"questionId,omitempty"`
	QuestionText string `json:"questionText,omitempty" validate:"max=4000"`
}

// AskRequest must never carry client or matter data; the question is a
// general compliance question.
type AskRequest struct {
	QuestionText        string     `json:"questionText" validate:"required,max=4000"`
	ConversationHistory []rag.Turn `json:"conversationHistory,omitempty" validate:"omitempty,dive"`
	UIContext           *UIContext `json:"uiContext,omitempty"`
}

type AskResponse struct {
	Answer    string         `json:"answer"`
	Citations []rag.Citation `json:"citations"`
}

// SourceInput creates one excerpt. Topics may be empty, in which case they
// are derived from the content.
type SourceInput struct {
	Provenance    string   `json:"provenance" validate:"required,oneof=external internal"`
	SourceName    string   `json:"sourceName" validate:"required,max=300"`
	SectionRef    string   `json:"sectionRef" validate:"required,max=100"`
	Topics        []string `json:"topics,omitempty" validate:"omitempty,dive,max=64"`
	Content       string   `json:"content" validate:"required"`
	EffectiveDate string   `json:"effectiveDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
}
