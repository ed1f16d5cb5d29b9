// Package transcript holds the transcript data model shared across the
// pipeline (C2's sentence segmenter and the data model of §3).
package transcript

import "strings"

// Sentence is an immutable record produced by the segmenter and enriched
// with a global speaker ID by the diarization binder.
type Sentence struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"segment"`
	Speaker *string `json:"speaker,omitempty"`
}

// ExtractedKind distinguishes the two kinds of LLM-extracted items.
type ExtractedKind string

const (
	KindQuestion ExtractedKind = "question"
	KindAction   ExtractedKind = "action"
)

// ExtractedItem is a deduplicated question or action item surfaced by C6.
type ExtractedItem struct {
	Kind ExtractedKind `json:"kind"`
	Text string        `json:"text"`
}

// ChatRole enumerates the roles in a ChatTurn.
type ChatRole string

const (
	RoleSystem    ChatRole = "system"
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
)

// ChatTurn is one turn of the persistent per-session LLM conversation.
type ChatTurn struct {
	Role    ChatRole `json:"role"`
	Content string   `json:"content"`
}

// Segment walks parallel token/timestamp sequences and emits sentences
// terminated by '.', '!' or '?' (C2). Incomplete trailing runs are dropped;
// C3's carry-over re-assembles them across chunk seams.
func Segment(tokens []string, timestamps []float64) []Sentence {
	var sentences []Sentence
	open := false
	var openStart float64
	var builder strings.Builder

	for i, tok := range tokens {
		ts := timestamps[i]
		term := isTerminator(tok)
		if term && !open {
			// A terminator with no sentence open has nothing to close;
			// drop it rather than opening a spurious single-punctuation
			// sentence.
			continue
		}
		if !open {
			openStart = ts
			open = true
		}
		builder.WriteString(tok)

		if term {
			sentences = append(sentences, Sentence{
				Start: openStart,
				End:   ts,
				Text:  strings.TrimSpace(builder.String()),
			})
			builder.Reset()
			open = false
		}
	}

	return sentences
}

func isTerminator(tok string) bool {
	return tok == "." || tok == "!" || tok == "?"
}
