package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"livewire/internal/queue"
	"livewire/internal/transcript"
)

func sseServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher, _ := w.(http.Flusher)
		w.Write([]byte(body))
		if flusher != nil {
			flusher.Flush()
		}
	}))
}

func chatChunk(content string) string {
	return `data: {"choices":[{"delta":{"content":"` + content + `"}}]}` + "\n"
}

func TestWorkerExtractsQuestionAndAction(t *testing.T) {
	body := chatChunk("QUESTION: Did you send the email?\\n") +
		chatChunk("ACTION: Send the email.\\n") +
		"data: [DONE]\n"
	srv := sseServer(t, body)
	defer srv.Close()

	client := NewClient("test-model")
	w := NewWorker(client)
	taskQ := queue.New[Task]()
	resultQ := queue.New[transcript.ExtractedItem]()

	taskQ.Push(Task{Fragment: "Did you send the email?", EndpointURL: srv.URL})
	taskQ.Close()

	stopped := false
	w.Run(context.Background(), taskQ, resultQ, func() bool { return stopped })

	items := resultQ.DrainAll()
	if len(items) != 2 {
		t.Fatalf("expected 2 extracted items, got %d: %+v", len(items), items)
	}
	if items[0].Kind != transcript.KindQuestion || items[1].Kind != transcript.KindAction {
		t.Fatalf("unexpected item kinds: %+v", items)
	}
}

func TestEmitLineDropsRienAndMalformed(t *testing.T) {
	resultQ := queue.New[transcript.ExtractedItem]()
	emitLine("RIEN", resultQ)
	emitLine("NONE", resultQ)
	emitLine("just some text", resultQ)
	emitLine("QUESTION:", resultQ)

	if _, ok := resultQ.TryPop(); ok {
		t.Fatalf("expected no items published for RIEN/NONE/malformed/empty-remainder lines")
	}
}

func TestEmitLineCaseInsensitivePrefix(t *testing.T) {
	resultQ := queue.New[transcript.ExtractedItem]()
	emitLine("question: lower case works", resultQ)

	item, ok := resultQ.Pop()
	if !ok {
		t.Fatalf("expected an item")
	}
	if item.Kind != transcript.KindQuestion || item.Text != "lower case works" {
		t.Fatalf("unexpected item: %+v", item)
	}
}

func TestHistoryStartsWithSystemTurn(t *testing.T) {
	w := NewWorker(NewClient("m"))
	if len(w.history) != 1 || w.history[0].Role != transcript.RoleSystem {
		t.Fatalf("expected history to start with exactly one system turn")
	}
}

func TestCancelledStreamDoesNotAppendAssistantTurn(t *testing.T) {
	srv := sseServer(t, chatChunk("partial")+"data: [DONE]\n")
	defer srv.Close()

	w := NewWorker(NewClient("m"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resultQ := queue.New[transcript.ExtractedItem]()
	w.process(ctx, Task{Fragment: "hi", EndpointURL: srv.URL}, resultQ)

	for _, turn := range w.history {
		if turn.Role == transcript.RoleAssistant {
			t.Fatalf("expected no assistant turn appended after cancellation")
		}
	}
}
