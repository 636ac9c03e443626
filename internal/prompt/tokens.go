package prompt

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"

	"github.com/josinaldojr/compliance-assistant/internal/rag"
)

func init() {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// TokenCounter estimates the prompt cost of a string.
type TokenCounter interface {
	Count(text string) int
}

type tiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

var (
	counterOnce sync.Once
	counter     TokenCounter
)

// DefaultCounter returns the cl100k_base counter, loaded once. If the
// encoding cannot be loaded it falls back to a rune-based estimate.
func DefaultCounter() TokenCounter {
	counterOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			counter = runeCounter{}
			return
		}
		counter = &tiktokenCounter{enc: enc}
	})
	return counter
}

func (c *tiktokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(c.enc.Encode(text, nil, nil))
}

// runeCounter assumes roughly four characters per token.
type runeCounter struct{}

func (runeCounter) Count(text string) int {
	return (utf8.RuneCountInString(text) + 3) / 4
}

// FitSources keeps sources in order while their rendered size fits budget
// tokens. The first source is always kept so a single long excerpt still
// grounds the answer.
func FitSources(sources []rag.Excerpt, budget int, tc TokenCounter) []rag.Excerpt {
	if budget <= 0 || len(sources) == 0 {
		return sources
	}
	if tc == nil {
		tc = DefaultCounter()
	}

	used := 0
	for i, s := range sources {
		used += tc.Count(s.SourceName) + tc.Count(s.SectionRef) + tc.Count(s.Content)
		if used > budget && i > 0 {
			return sources[:i]
		}
	}
	return sources
}
