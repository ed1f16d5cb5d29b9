package asr

import (
	"math"
	"testing"
)

func TestMelProcessorFrameCount(t *testing.T) {
	p := newMelProcessor(melConfig{SampleRate: 16000, NMels: 8, HopLength: 160, WinLength: 400, NFFT: 512})
	samples := make([]float32, 1600)
	spec, frames := p.Compute(samples)
	if frames != len(spec) {
		t.Fatalf("frame count mismatch: %d vs %d", frames, len(spec))
	}
	for _, row := range spec {
		if len(row) != 8 {
			t.Fatalf("expected 8 mel bins, got %d", len(row))
		}
	}
}

func TestMelProcessorSilenceIsFinite(t *testing.T) {
	p := newMelProcessor(melConfig{SampleRate: 16000, NMels: 4, HopLength: 160, WinLength: 400, NFFT: 512})
	spec, _ := p.Compute(make([]float32, 1600))
	for _, row := range spec {
		for _, v := range row {
			if v != v || math.IsInf(float64(v), 0) { // NaN or ±Inf check
				t.Fatalf("unexpected non-finite value in log-mel output for silence")
			}
		}
	}
}
