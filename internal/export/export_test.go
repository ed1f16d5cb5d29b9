package export

import (
	"os"
	"strings"
	"testing"

	"livewire/internal/transcript"
)

func withFixedTimestamp(t *testing.T, ts string) {
	t.Helper()
	old := timestamp
	timestamp = func() string { return ts }
	t.Cleanup(func() { timestamp = old })
}

func TestCSVHeaderAndRows(t *testing.T) {
	withFixedTimestamp(t, "20260101_000000")
	dir := t.TempDir()
	sentences := []transcript.Sentence{
		{Start: 0, End: 1.5, Text: "Hello world."},
	}

	path, err := CSV(dir, sentences)
	if err != nil {
		t.Fatalf("CSV returned error: %v", err)
	}
	if !strings.HasSuffix(path, "transcription_20260101_000000.csv") {
		t.Fatalf("unexpected path: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed reading csv: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "Index,Start (s),End (s),Segment") {
		t.Fatalf("missing header: %q", content)
	}
	if !strings.Contains(content, "1,0,1.5,Hello world.") {
		t.Fatalf("missing row: %q", content)
	}
}

func TestSRTBlockFormat(t *testing.T) {
	withFixedTimestamp(t, "20260101_000000")
	dir := t.TempDir()
	sentences := []transcript.Sentence{
		{Start: 0, End: 1.5, Text: "Hello world."},
	}

	path, err := SRT(dir, sentences)
	if err != nil {
		t.Fatalf("SRT returned error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed reading srt: %v", err)
	}
	want := "1\n00:00:00,000 --> 00:00:01,500\nHello world.\n"
	if !strings.HasPrefix(string(data), want) {
		t.Fatalf("unexpected srt content: %q", string(data))
	}
}
