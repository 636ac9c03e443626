package prompt

import "github.com/josinaldojr/compliance-assistant/internal/rag"

// MaxHistoryTurns caps the conversation history sent upstream.
const MaxHistoryTurns = 20

// TruncateHistory keeps the most recent max turns. Shorter histories are
// returned unchanged.
func TruncateHistory(turns []rag.Turn, max int) []rag.Turn {
	if max <= 0 {
		max = MaxHistoryTurns
	}
	if len(turns) <= max {
		return turns
	}
	return turns[len(turns)-max:]
}
