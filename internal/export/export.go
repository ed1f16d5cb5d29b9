// Package export writes the end-of-session CSV and SRT files spec.md §6
// names as persisted outputs.
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"livewire/internal/transcript"
)

// timestamp is overridable in tests so filename generation stays
// deterministic without needing a clock injection throughout the package.
var timestamp = func() string { return time.Now().Format("20060102_150405") }

// CSV writes the UTF-8 CSV transcript: header Index,Start (s),End (s),Segment,
// one 1-based row per sentence, to <dir>/transcription_<ts>.csv.
func CSV(dir string, sentences []transcript.Sentence) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("export: create dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("transcription_%s.csv", timestamp()))

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("export: create csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"Index", "Start (s)", "End (s)", "Segment"}); err != nil {
		return "", fmt.Errorf("export: write csv header: %w", err)
	}
	for i, s := range sentences {
		row := []string{
			strconv.Itoa(i + 1),
			strconv.FormatFloat(s.Start, 'f', -1, 64),
			strconv.FormatFloat(s.End, 'f', -1, 64),
			s.Text,
		}
		if err := w.Write(row); err != nil {
			return "", fmt.Errorf("export: write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("export: flush csv: %w", err)
	}
	return path, nil
}

// SRT writes the UTF-8 SRT transcript: blank-line-separated blocks of
// <n>\n<HH:MM:SS,mmm> --> <HH:MM:SS,mmm>\n<text>\n, to
// <dir>/transcription_<ts>.srt.
func SRT(dir string, sentences []transcript.Sentence) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("export: create dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("transcription_%s.srt", timestamp()))

	var lines []string
	for i, s := range sentences {
		lines = append(lines,
			strconv.Itoa(i+1),
			fmt.Sprintf("%s --> %s", formatSRTTime(s.Start), formatSRTTime(s.End)),
			s.Text,
			"",
		)
	}

	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o644); err != nil {
		return "", fmt.Errorf("export: write srt: %w", err)
	}
	return path, nil
}

func formatSRTTime(sec float64) string {
	h := int(sec) / 3600
	m := (int(sec) % 3600) / 60
	s := int(sec) % 60
	ms := int((sec - float64(int(sec))) * 1000)
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}
