package prompt

import (
	"strings"

	"github.com/josinaldojr/compliance-assistant/internal/rag"
)

// Citations returns the supplied sources the answer actually cites, in
// source order and without duplicates. Sources cited in the bracketed
// "[Source Name, Section Ref]" form win; only when the answer has none does a
// source count as cited because its name and section reference both appear
// somewhere in the text. Matching is case-insensitive.
func Citations(answer string, sources []rag.Excerpt) []rag.Citation {
	if strings.TrimSpace(answer) == "" {
		return []rag.Citation{}
	}

	text := strings.ToLower(answer)
	if out := matchCitations(sources, func(c rag.Citation) bool {
		name, ref := strings.ToLower(c.SourceName), strings.ToLower(c.SectionRef)
		return strings.Contains(text, "["+name+", "+ref+"]") || strings.Contains(text, "["+name+","+ref+"]")
	}); len(out) > 0 {
		return out
	}
	return matchCitations(sources, func(c rag.Citation) bool {
		return strings.Contains(text, strings.ToLower(c.SourceName)) && strings.Contains(text, strings.ToLower(c.SectionRef))
	})
}

func matchCitations(sources []rag.Excerpt, cited func(rag.Citation) bool) []rag.Citation {
	out := []rag.Citation{}
	seen := make(map[rag.Citation]struct{}, len(sources))
	for _, s := range sources {
		c := rag.Citation{SourceName: s.SourceName, SectionRef: s.SectionRef}
		if _, dup := seen[c]; dup {
			continue
		}
		if c.SourceName == "" || c.SectionRef == "" {
			continue
		}
		if cited(c) {
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}
