package rag

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Provenance says where an excerpt comes from.
type Provenance string

const (
	// ProvenanceExternal is regulator or publication text.
	ProvenanceExternal Provenance = "external"
	// ProvenanceInternal is firm-authored policy.
	ProvenanceInternal Provenance = "internal"
)

func (p Provenance) Valid() bool {
	return p == ProvenanceExternal || p == ProvenanceInternal
}

func ParseProvenance(s string) (Provenance, error) {
	p := Provenance(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("invalid provenance %q (want external or internal)", s)
	}
	return p, nil
}

// Excerpt is one curated, citable chunk of regulatory or policy text owned by
// exactly one tenant. Only Embedding changes after creation.
type Excerpt struct {
	ID            uuid.UUID  `json:"id"`
	TenantID      string     `json:"tenantId"`
	Provenance    Provenance `json:"provenance"`
	SourceName    string     `json:"sourceName"`
	SectionRef    string     `json:"sectionRef"`
	Topics        []string   `json:"topics"`
	Content       string     `json:"content"`
	EffectiveDate *time.Time `json:"effectiveDate,omitempty"`
	Embedding     []float32  `json:"-"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// HasEmbedding reports whether the vector has been computed.
func (e Excerpt) HasEmbedding() bool {
	return len(e.Embedding) > 0
}

// ExcerptInput is what authoring and ingestion flows supply.
type ExcerptInput struct {
	TenantID      string
	Provenance    Provenance
	SourceName    string
	SectionRef    string
	Topics        []string
	Content       string
	EffectiveDate *time.Time
}

var (
	ErrEmptyTopics  = errors.New("excerpt topics must not be empty")
	ErrEmptyContent = errors.New("excerpt content must not be empty")
)

// NewExcerpt validates the input and assigns a fresh identifier.
func NewExcerpt(in ExcerptInput) (Excerpt, error) {
	if strings.TrimSpace(in.TenantID) == "" {
		return Excerpt{}, errors.New("excerpt tenant id must not be empty")
	}
	if !in.Provenance.Valid() {
		return Excerpt{}, fmt.Errorf("invalid provenance %q", in.Provenance)
	}
	if strings.TrimSpace(in.SourceName) == "" {
		return Excerpt{}, errors.New("excerpt source name must not be empty")
	}
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return Excerpt{}, ErrEmptyContent
	}
	topics := NormalizeTopics(in.Topics)
	if len(topics) == 0 {
		return Excerpt{}, ErrEmptyTopics
	}

	var effective *time.Time
	if in.EffectiveDate != nil {
		d := truncateToDate(*in.EffectiveDate)
		effective = &d
	}

	return Excerpt{
		ID:            uuid.New(),
		TenantID:      in.TenantID,
		Provenance:    in.Provenance,
		SourceName:    strings.TrimSpace(in.SourceName),
		SectionRef:    strings.TrimSpace(in.SectionRef),
		Topics:        topics,
		Content:       content,
		EffectiveDate: effective,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// NormalizeTopics trims, lowercases and de-duplicates tags, returning them sorted.
func NormalizeTopics(topics []string) []string {
	seen := make(map[string]struct{}, len(topics))
	out := make([]string, 0, len(topics))
	for _, t := range topics {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func truncateToDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FirmContext identifies the acting tenant for a request.
type FirmContext struct {
	TenantID     string `json:"tenantId"`
	Name         string `json:"name"`
	Jurisdiction string `json:"jurisdiction,omitempty"`
}

// Role of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one caller-supplied conversation entry.
type Turn struct {
	Role    Role   `json:"role" validate:"required,oneof=user assistant"`
	Content string `json:"content" validate:"required"`
}

// Citation is the literal (source name, section reference) pair.
type Citation struct {
	SourceName string `json:"sourceName"`
	SectionRef string `json:"sectionRef"`
}

// sortExcerpts applies the listing order: source name, then section reference.
func sortExcerpts(xs []Excerpt) {
	sort.SliceStable(xs, func(i, j int) bool {
		if xs[i].SourceName != xs[j].SourceName {
			return xs[i].SourceName < xs[j].SourceName
		}
		return xs[i].SectionRef < xs[j].SectionRef
	})
}
