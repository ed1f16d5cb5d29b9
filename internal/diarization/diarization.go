// Package diarization implements the Diarization Binder (C5): it runs an
// injected diarization pipeline over a chunk and assigns a global speaker
// ID to each sentence by maximum temporal overlap.
package diarization

import (
	"context"
	"log"

	"livewire/internal/asr"
	"livewire/internal/metrics"
	"livewire/internal/speaker"
	"livewire/internal/transcript"
)

// minTurnDuration is the §4.5 floor below which a local label's first turn
// is dropped instead of embedded.
const minTurnDuration = 0.1

// Turn is one (start, end, local_label) triple from the diarization
// pipeline, local to the chunk being processed.
type Turn struct {
	StartLocal float32
	EndLocal   float32
	LocalLabel int
}

// Diarizer is the injected diarization collaborator of spec.md §6: it takes
// a float32 waveform at 16 kHz (the rate is fixed, not passed) and returns
// (start_s, end_s, local_label) turns.
type Diarizer interface {
	Diarize(samples []float32) ([]Turn, error)
}

// Binder ties a Diarizer and an Embedder to whichever speaker Registry is
// handed to it per session, via ForRegistry. The diarizer/embedder pair is
// shared process-wide (they wrap loaded ONNX models); the registry is
// strictly per-session per spec.md §9's redesign of the source's
// process-global registry.
type Binder struct {
	diarizer Diarizer
	embedder asr.Embedder
}

// NewBinder builds a C5 binder around the two model collaborators. A nil
// diarizer disables diarization entirely: ForRegistry then returns nil.
func NewBinder(diarizer Diarizer, embedder asr.Embedder) *Binder {
	return &Binder{diarizer: diarizer, embedder: embedder}
}

// ForRegistry binds this binder's model pair to one session's speaker
// registry, producing the asr.DiarizeFunc the rolling ASR worker calls per
// chunk.
func (b *Binder) ForRegistry(registry *speaker.Registry) asr.DiarizeFunc {
	if b == nil || b.diarizer == nil {
		return nil
	}
	return func(samples []float32, timeOffset float64, sentences []transcript.Sentence) []transcript.Sentence {
		return b.bind(context.Background(), registry, samples, timeOffset, sentences)
	}
}

// bind implements spec.md §4.5. Errors from the diarization pipeline are
// logged and swallowed; sentences keep speaker=nil without aborting the
// chunk.
func (b *Binder) bind(ctx context.Context, registry *speaker.Registry, samples []float32, timeOffset float64, sentences []transcript.Sentence) []transcript.Sentence {
	turns, err := b.diarizer.Diarize(samples)
	if err != nil {
		log.Printf("diarization: chunk error, proceeding without speakers: %v", err)
		metrics.Errors.WithLabelValues("diarization").Inc()
		return sentences
	}
	if len(turns) == 0 {
		return sentences
	}

	globalByLabel := b.assignGlobalIDs(ctx, registry, samples, turns)

	out := make([]transcript.Sentence, len(sentences))
	for i, s := range sentences {
		out[i] = s
		localStart := s.Start - timeOffset
		localEnd := s.End - timeOffset

		bestID := ""
		bestOverlap := float32(0)
		for _, turn := range turns {
			id, ok := globalByLabel[turn.LocalLabel]
			if !ok {
				continue
			}
			overlap := overlapSeconds(float32(localStart), float32(localEnd), turn.StartLocal, turn.EndLocal)
			if overlap > bestOverlap {
				bestOverlap = overlap
				bestID = id
			}
		}
		if bestOverlap > 0 {
			id := bestID
			out[i].Speaker = &id
		}
	}
	return out
}

// assignGlobalIDs picks the first turn of each distinct local label,
// embeds it if long enough, and maps it to a global ID via the registry.
// Labels with only sub-0.1s turns are dropped entirely.
func (b *Binder) assignGlobalIDs(ctx context.Context, registry *speaker.Registry, samples []float32, turns []Turn) map[int]string {
	firstTurn := make(map[int]Turn)
	for _, t := range turns {
		if _, ok := firstTurn[t.LocalLabel]; !ok {
			firstTurn[t.LocalLabel] = t
		}
	}

	result := make(map[int]string, len(firstTurn))
	for label, t := range firstTurn {
		if t.EndLocal-t.StartLocal < minTurnDuration {
			continue
		}
		slice := sliceAudio(samples, t.StartLocal, t.EndLocal)
		embedding, err := b.embedder.Embed(ctx, slice)
		if err != nil {
			log.Printf("diarization: embedding failed for label %d: %v", label, err)
			metrics.Errors.WithLabelValues("diarization").Inc()
			continue
		}
		result[label] = registry.MatchOrCreate(embedding)
	}
	return result
}

func sliceAudio(samples []float32, startSec, endSec float32) []float32 {
	const sr = 16000
	start := int(startSec * sr)
	end := int(endSec * sr)
	if start < 0 {
		start = 0
	}
	if end > len(samples) {
		end = len(samples)
	}
	if start >= end {
		return nil
	}
	return samples[start:end]
}

func overlapSeconds(aStart, aEnd, bStart, bEnd float32) float32 {
	start := max32(aStart, bStart)
	end := min32(aEnd, bEnd)
	if end <= start {
		return 0
	}
	return end - start
}

func max32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

func min32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}
