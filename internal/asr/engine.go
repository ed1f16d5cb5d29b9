// Package asr implements the rolling ASR worker (C3): it accumulates
// audio, invokes an injected recognition engine in fixed-size windows, and
// preserves sentence boundaries across window seams via carry-over.
package asr

import "context"

// Engine is the injected ASR collaborator contract of spec.md §6:
// recognise(int16 mono 16kHz samples) -> (tokens, per-token timestamps).
type Engine interface {
	Recognise(samples []int16) (tokens []string, timestamps []float64, err error)
}

// Embedder is the injected embedding-model collaborator used by the
// diarization binder (C5) to turn a speaker's audio slice into a vector.
type Embedder interface {
	Embed(ctx context.Context, samples []float32) ([]float32, error)
}
