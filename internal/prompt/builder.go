package prompt

import (
	"fmt"
	"strings"

	"github.com/josinaldojr/compliance-assistant/internal/rag"
)

const dateLayout = "2006-01-02"

// BuildSystemPrompt renders the grounding prompt for one firm. It is pure:
// identical inputs give byte-identical output. Sources are listed in the
// order given.
func BuildSystemPrompt(firm rag.FirmContext, sources []rag.Excerpt) string {
	var sys strings.Builder

	sys.WriteString("You are an anti-money-laundering compliance assistant for ")
	sys.WriteString(firmLabel(firm))
	sys.WriteString(".")
	if j := strings.TrimSpace(firm.Jurisdiction); j != "" {
		sys.WriteString(" The firm operates in the ")
		sys.WriteString(j)
		sys.WriteString(" jurisdiction; apply its regime when the sources allow.")
	}
	sys.WriteString("\n\n")

	sys.WriteString("Rules:\n")
	sys.WriteString("1. Answer only from the source material below. Do not rely on outside knowledge.\n")
	sys.WriteString("2. Cite every factual claim as [Source Name, Section Ref], using the exact source name and section reference shown for that source.\n")
	sys.WriteString("3. If the sources do not answer the question, say so plainly and do not guess.\n")
	sys.WriteString("4. Do not discuss, identify or infer anything about specific clients, matters or cases. ")
	sys.WriteString("If the question contains client or matter details, decline that part and answer only the general compliance point.\n")
	sys.WriteString("5. Keep answers concise and practical.\n\n")

	if len(sources) == 0 {
		sys.WriteString("Source material: none. No source material is available for this question. ")
		sys.WriteString("Tell the user you cannot find grounding material for it and suggest they consult the firm's MLRO.\n")
		return sys.String()
	}

	sys.WriteString("Source material:\n")
	for i, s := range sources {
		fmt.Fprintf(&sys, "\n[%d] %s, %s\n", i+1, s.SourceName, s.SectionRef)
		fmt.Fprintf(&sys, "Type: %s\n", provenanceLabel(s.Provenance))
		if s.EffectiveDate != nil {
			fmt.Fprintf(&sys, "Effective: %s\n", s.EffectiveDate.Format(dateLayout))
		}
		sys.WriteString(strings.TrimSpace(s.Content))
		sys.WriteString("\n")
	}

	return sys.String()
}

// LanguageDirective asks the model to answer in language.
func LanguageDirective(language string) string {
	return fmt.Sprintf("Respond in %s. Keep source names and section references exactly as written.", language)
}

func firmLabel(f rag.FirmContext) string {
	if n := strings.TrimSpace(f.Name); n != "" {
		return n
	}
	return "a regulated firm"
}

func provenanceLabel(p rag.Provenance) string {
	switch p {
	case rag.ProvenanceInternal:
		return "internal firm policy"
	case rag.ProvenanceExternal:
		return "external regulation or guidance"
	default:
		return string(p)
	}
}
