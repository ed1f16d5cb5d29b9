package orchestrator

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"livewire/internal/llm"
)

// stubEngine always returns the same small utterance, letting tests drive
// on_audio without a real ONNX model.
type stubEngine struct{}

func (stubEngine) Recognise(samples []int16) ([]string, []float64, error) {
	return []string{"Hello", " world", "."}, []float64{0.0, 0.2, 0.4}, nil
}

func rienServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`data: {"choices":[{"delta":{"content":"RIEN\n"}}]}` + "\n" + "data: [DONE]\n"))
	}))
}

func waitForSentences(t *testing.T, s *Session, n int) Snapshot {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	var snap Snapshot
	for time.Now().Before(deadline) {
		snap = s.OnAudio(make([]float32, 1600), 16000)
		if len(snap.Sentences) >= n {
			return snap
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d sentences, got %d", n, len(snap.Sentences))
	return snap
}

func TestOnAudioAccumulatesSentencesAndAdvancesLastSentIdx(t *testing.T) {
	srv := rienServer(t)
	defer srv.Close()

	s := New(stubEngine{}, llm.NewClient("test"), srv.URL, nil)
	defer s.Finalize()

	// Feed enough audio to fill one 5s ASR chunk.
	frame := make([]float32, 16000)
	var snap Snapshot
	for i := 0; i < 6; i++ {
		snap = s.OnAudio(frame, 16000)
	}

	deadline := time.Now().Add(3 * time.Second)
	for len(snap.Sentences) == 0 && time.Now().Before(deadline) {
		snap = s.OnAudio(make([]float32, 1600), 16000)
		time.Sleep(20 * time.Millisecond)
	}

	if len(snap.Sentences) == 0 {
		t.Fatalf("expected at least one sentence to be produced")
	}

	s.mu.Lock()
	lastSentIdx, count := s.state.lastSentIdx, len(s.state.sentences)
	s.mu.Unlock()
	if lastSentIdx != count {
		t.Fatalf("expected lastSentIdx %d to equal the sentence count %d", lastSentIdx, count)
	}
}

func TestFinalizeReturnsSnapshotMarkedFinal(t *testing.T) {
	srv := rienServer(t)
	defer srv.Close()

	s := New(stubEngine{}, llm.NewClient("test"), srv.URL, nil)
	snap := s.Finalize()
	if !snap.Final {
		t.Fatalf("expected Finalize snapshot to have Final=true")
	}
}

func TestResetClearsSpeakerRegistry(t *testing.T) {
	srv := rienServer(t)
	defer srv.Close()

	s := New(stubEngine{}, llm.NewClient("test"), srv.URL, nil)
	s.Registry().MatchOrCreate([]float32{1, 0, 0})
	if s.SpeakerCount() == 0 {
		t.Fatalf("expected non-zero speaker count before reset")
	}

	s.Reset()
	defer s.Finalize()

	if s.SpeakerCount() != 0 {
		t.Fatalf("expected speaker count 0 after reset, got %d", s.SpeakerCount())
	}
}

func TestDedupDropsRepeatedFragment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`data: {"choices":[{"delta":{"content":"QUESTION: same?\n"}}]}` + "\n" + "data: [DONE]\n"))
	}))
	defer srv.Close()

	s := New(stubEngine{}, llm.NewClient("test"), srv.URL, nil)
	defer s.Finalize()

	for i := 0; i < 2; i++ {
		s.mu.Lock()
		s.state.lastSentIdx = 0
		s.state.sentences = nil
		s.mu.Unlock()
		waitForSentences(t, s, 1)
	}

	deadline := time.Now().Add(3 * time.Second)
	var snap Snapshot
	for time.Now().Before(deadline) {
		snap = s.OnAudio(make([]float32, 1600), 16000)
		if len(snap.Questions) > 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if len(snap.Questions) != 1 {
		t.Fatalf("expected exactly one deduplicated question, got %d: %+v", len(snap.Questions), snap.Questions)
	}
}
