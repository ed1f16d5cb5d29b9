package transcript

import "testing"

func TestSegmentRoundTrip(t *testing.T) {
	tokens := []string{"The", " dog", " barks", "."}
	timestamps := []float64{0.0, 0.2, 0.4, 0.6}

	sentences := Segment(tokens, timestamps)
	if len(sentences) != 1 {
		t.Fatalf("expected exactly one sentence, got %d", len(sentences))
	}
	if sentences[0].End != 0.6 {
		t.Fatalf("expected end=0.60, got %f", sentences[0].End)
	}
	if sentences[0].Text != "The dog barks." {
		t.Fatalf("unexpected text: %q", sentences[0].Text)
	}
}

func TestSegmentDropsIncompleteTrailingRun(t *testing.T) {
	tokens := []string{"Hello", " world"}
	timestamps := []float64{0.0, 0.3}

	sentences := Segment(tokens, timestamps)
	if len(sentences) != 0 {
		t.Fatalf("expected no completed sentences, got %d", len(sentences))
	}
}

func TestSegmentDropsLeadingTerminator(t *testing.T) {
	tokens := []string{".", " Good", " day", "."}
	timestamps := []float64{0.0, 0.1, 0.3, 0.5}

	sentences := Segment(tokens, timestamps)
	if len(sentences) != 1 {
		t.Fatalf("expected exactly one sentence, got %d: %+v", len(sentences), sentences)
	}
	if sentences[0].Text != "Good day." {
		t.Fatalf("unexpected text: %q", sentences[0].Text)
	}
	if sentences[0].Start != 0.1 {
		t.Fatalf("expected start=0.1 (leading terminator dropped), got %f", sentences[0].Start)
	}
}

func TestSegmentMultipleSentences(t *testing.T) {
	tokens := []string{"Hi", ".", " Bye", "!"}
	timestamps := []float64{0.0, 0.1, 0.4, 0.6}

	sentences := Segment(tokens, timestamps)
	if len(sentences) != 2 {
		t.Fatalf("expected two sentences, got %d", len(sentences))
	}
	if sentences[0].Text != "Hi." || sentences[1].Text != "Bye!" {
		t.Fatalf("unexpected texts: %q, %q", sentences[0].Text, sentences[1].Text)
	}
}
