package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/josinaldojr/compliance-assistant/internal/rag"
)

func TestCitations(t *testing.T) {
	answer := "EDD is mandatory for PEPs [MLR 2017, reg 35(1)], and the firm requires MLRO sign-off [firm aml policy, 7.3]."

	got := Citations(answer, sources())
	assert.Equal(t, []rag.Citation{
		{SourceName: "MLR 2017", SectionRef: "reg 35(1)"},
		{SourceName: "Firm AML policy", SectionRef: "7.3"},
	}, got)
}

func TestCitations_Empty(t *testing.T) {
	assert.Equal(t, []rag.Citation{}, Citations("", sources()))
	assert.Equal(t, []rag.Citation{}, Citations("I cannot find this in the sources.", sources()))
	assert.Equal(t, []rag.Citation{}, Citations("anything", nil))
}

func TestCitations_Dedupes(t *testing.T) {
	xs := append(sources(), sources()[0])
	got := Citations("See [MLR 2017, reg 35(1)].", xs)
	assert.Len(t, got, 1)
}

func TestCitations_BracketedFormWins(t *testing.T) {
	answer := "EDD applies [MLR 2017, reg 35(1)]. Version 7.3 of the Firm AML policy is due for review."

	got := Citations(answer, sources())
	assert.Equal(t, []rag.Citation{{SourceName: "MLR 2017", SectionRef: "reg 35(1)"}}, got)
}

func TestCitations_FallsBackToMentions(t *testing.T) {
	answer := "Under MLR 2017 reg 35(1) EDD is mandatory for PEPs."

	got := Citations(answer, sources())
	assert.Equal(t, []rag.Citation{{SourceName: "MLR 2017", SectionRef: "reg 35(1)"}}, got)
}
