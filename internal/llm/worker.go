package llm

import (
	"context"
	"log"
	"strings"
	"time"

	"livewire/internal/metrics"
	"livewire/internal/queue"
	"livewire/internal/transcript"
)

// SystemPrompt instructs the model to extract only newly-mentioned
// questions/action items from the fragment just appended, per spec.md §4.6.
const SystemPrompt = `You are monitoring a live meeting transcript. For the ` +
	`fragment just added to the conversation, reply with zero or more lines, ` +
	`each beginning with exactly "QUESTION: " or "ACTION: ", covering only ` +
	`items newly mentioned in that fragment. If nothing new qualifies, reply ` +
	`with the single line "RIEN".`

// Task is one unit of work pulled from the LLM task queue: a fragment of
// newly-produced sentence text and the endpoint it should be sent to.
type Task struct {
	Fragment    string
	EndpointURL string
}

// Worker is the persistent per-session LLM conversation worker (C6).
type Worker struct {
	client  *Client
	history []transcript.ChatTurn
}

// NewWorker starts a fresh conversation with the single required system
// turn.
func NewWorker(client *Client) *Worker {
	return &Worker{
		client:  client,
		history: []transcript.ChatTurn{{Role: transcript.RoleSystem, Content: SystemPrompt}},
	}
}

// Run drains taskQ and publishes extracted items to resultQ until stop
// reports true or the queue closes.
func (w *Worker) Run(ctx context.Context, taskQ *queue.Queue[Task], resultQ *queue.Queue[transcript.ExtractedItem], stop func() bool) {
	for {
		if stop() {
			return
		}
		task, ok := taskQ.PopWithTimeout(200 * time.Millisecond)
		if !ok {
			if taskQ.Closed() {
				return
			}
			continue
		}
		w.process(ctx, task, resultQ)
	}
}

func (w *Worker) process(ctx context.Context, task Task, resultQ *queue.Queue[transcript.ExtractedItem]) {
	w.history = append(w.history, transcript.ChatTurn{Role: transcript.RoleUser, Content: task.Fragment})

	var lineBuf strings.Builder
	start := time.Now()
	first := true

	onToken := func(content string) {
		if first {
			metrics.LLMTimeToFirstToken.Observe(time.Since(start).Seconds())
			first = false
		}
		for _, r := range content {
			if r == '\n' {
				emitLine(lineBuf.String(), resultQ)
				lineBuf.Reset()
				continue
			}
			lineBuf.WriteRune(r)
		}
	}

	full, err := w.client.StreamChat(ctx, task.EndpointURL, w.history, onToken)
	if err != nil {
		if ctx.Err() != nil {
			// Cooperative cancellation mid-stream: abort without
			// appending an assistant turn, per §4.6 step 6.
			return
		}
		// Connect or mid-stream error: swallow per §7, keep the user
		// turn as the trailing turn so the next task appends on top.
		log.Printf("llm: request failed: %v", err)
		metrics.Errors.WithLabelValues("llm").Inc()
		return
	}

	emitLine(lineBuf.String(), resultQ)

	if full != "" {
		w.history = append(w.history, transcript.ChatTurn{Role: transcript.RoleAssistant, Content: full})
	}
}

// emitLine parses one line of LLM output per §4.6 step 3/4: QUESTION:/ACTION:
// prefixes (case-insensitive) publish an item when the remainder is
// non-empty; anything else, including RIEN/NONE, is dropped silently.
func emitLine(line string, resultQ *queue.Queue[transcript.ExtractedItem]) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return
	}

	lower := strings.ToLower(trimmed)
	switch {
	case strings.HasPrefix(lower, "question:"):
		text := strings.TrimSpace(trimmed[len("question:"):])
		if text != "" {
			resultQ.Push(transcript.ExtractedItem{Kind: transcript.KindQuestion, Text: text})
		}
	case strings.HasPrefix(lower, "action:"):
		text := strings.TrimSpace(trimmed[len("action:"):])
		if text != "" {
			resultQ.Push(transcript.ExtractedItem{Kind: transcript.KindAction, Text: text})
		}
	}
}
