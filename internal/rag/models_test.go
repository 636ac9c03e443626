package rag

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewExcerpt(t *testing.T) {
	effective := time.Date(2017, 6, 26, 15, 4, 5, 0, time.UTC)
	e, err := NewExcerpt(ExcerptInput{
		TenantID:      "acme",
		Provenance:    ProvenanceExternal,
		SourceName:    " Money Laundering Regulations 2017 ",
		SectionRef:    "reg 35",
		Topics:        []string{"PEP", " edd", "pep", ""},
		Content:       "  A relevant person must have appropriate risk-management systems...  ",
		EffectiveDate: &effective,
	})
	require.NoError(t, err)

	assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", e.ID.String())
	assert.Equal(t, "Money Laundering Regulations 2017", e.SourceName)
	assert.Equal(t, []string{"edd", "pep"}, e.Topics)
	assert.Equal(t, "A relevant person must have appropriate risk-management systems...", e.Content)
	require.NotNil(t, e.EffectiveDate)
	assert.Equal(t, time.Date(2017, 6, 26, 0, 0, 0, 0, time.UTC), *e.EffectiveDate)
	assert.False(t, e.HasEmbedding())
}

func TestNewExcerpt_Invalid(t *testing.T) {
	base := ExcerptInput{
		TenantID:   "acme",
		Provenance: ProvenanceInternal,
		SourceName: "Firm AML policy",
		Topics:     []string{"cdd"},
		Content:    "text",
	}

	tests := []struct {
		name   string
		mutate func(in *ExcerptInput)
		want   error
	}{
		{name: "empty topics", mutate: func(in *ExcerptInput) { in.Topics = []string{" ", ""} }, want: ErrEmptyTopics},
		{name: "empty content", mutate: func(in *ExcerptInput) { in.Content = " \n\t" }, want: ErrEmptyContent},
		{name: "bad provenance", mutate: func(in *ExcerptInput) { in.Provenance = "regulator" }},
		{name: "no tenant", mutate: func(in *ExcerptInput) { in.TenantID = "" }},
		{name: "no source name", mutate: func(in *ExcerptInput) { in.SourceName = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := base
			tt.mutate(&in)
			_, err := NewExcerpt(in)
			require.Error(t, err)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestParseProvenance(t *testing.T) {
	p, err := ParseProvenance(" External ")
	require.NoError(t, err)
	assert.Equal(t, ProvenanceExternal, p)

	_, err = ParseProvenance("public")
	assert.Error(t, err)
}
