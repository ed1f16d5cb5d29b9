package diarization

import (
	"context"
	"testing"

	"livewire/internal/speaker"
	"livewire/internal/transcript"
)

type fakeDiarizer struct {
	turns []Turn
	err   error
}

func (f fakeDiarizer) Diarize(samples []float32) ([]Turn, error) {
	return f.turns, f.err
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, samples []float32) ([]float32, error) {
	// Derive a trivial deterministic embedding from the slice's first sample
	// so turns over differently-valued audio map to orthogonal vectors and
	// therefore to distinct centroids.
	if len(samples) == 0 {
		return []float32{0, 0, 1}, nil
	}
	return []float32{samples[0], 1 - samples[0], 0}, nil
}

func TestBindAssignsSpeakerByMaxOverlap(t *testing.T) {
	turns := []Turn{
		{StartLocal: 0, EndLocal: 2, LocalLabel: 0},
		{StartLocal: 2, EndLocal: 4, LocalLabel: 1},
	}
	b := NewBinder(fakeDiarizer{turns: turns}, fakeEmbedder{})

	sentences := []transcript.Sentence{
		{Start: 0.1, End: 1.9, Text: "first"},
		{Start: 2.1, End: 3.9, Text: "second"},
	}
	samples := make([]float32, 4*16000)
	// The first turn's audio is all ones and the second's all zeros, so the
	// two turns embed to orthogonal vectors.
	for i := 0; i < 2*16000; i++ {
		samples[i] = 1
	}

	out := b.bind(context.Background(), speaker.New(), samples, 0, sentences)

	if out[0].Speaker == nil || out[1].Speaker == nil {
		t.Fatalf("expected both sentences to get a speaker, got %+v", out)
	}
	if *out[0].Speaker == *out[1].Speaker {
		t.Fatalf("expected distinct speakers for non-overlapping turns, got %q for both", *out[0].Speaker)
	}
}

func TestBindDropsShortFirstTurn(t *testing.T) {
	turns := []Turn{
		{StartLocal: 0, EndLocal: 0.05, LocalLabel: 0},
	}
	b := NewBinder(fakeDiarizer{turns: turns}, fakeEmbedder{})

	sentences := []transcript.Sentence{{Start: 0, End: 0.05, Text: "hi"}}
	out := b.bind(context.Background(), speaker.New(), make([]float32, 16000), 0, sentences)

	if out[0].Speaker != nil {
		t.Fatalf("expected no speaker assigned for a sub-0.1s turn, got %q", *out[0].Speaker)
	}
}

func TestBindReturnsSentencesUnchangedOnDiarizeError(t *testing.T) {
	b := NewBinder(fakeDiarizer{err: errTest{}}, fakeEmbedder{})
	sentences := []transcript.Sentence{{Start: 0, End: 1, Text: "hi"}}

	out := b.bind(context.Background(), speaker.New(), make([]float32, 16000), 0, sentences)
	if len(out) != 1 || out[0].Speaker != nil || out[0].Text != "hi" {
		t.Fatalf("expected sentences passed through unchanged, got %+v", out)
	}
}

func TestForRegistryNilWhenNoDiarizer(t *testing.T) {
	var b *Binder
	if b.ForRegistry(speaker.New()) != nil {
		t.Fatalf("expected nil DiarizeFunc for nil binder")
	}

	b = NewBinder(nil, fakeEmbedder{})
	if b.ForRegistry(speaker.New()) != nil {
		t.Fatalf("expected nil DiarizeFunc when diarizer is nil")
	}
}

type errTest struct{}

func (errTest) Error() string { return "diarize failed" }
