package asr

import (
	"math"
	"strings"
	"time"

	"livewire/internal/audioproc"
	"livewire/internal/metrics"
	"livewire/internal/queue"
	"livewire/internal/transcript"
)

// ChunkSeconds is the fixed window the rolling worker slices from the head
// of its buffer on each iteration.
const ChunkSeconds = 5

// ChunkSize is ChunkSeconds worth of samples at the 16 kHz ASR rate.
const ChunkSize = ChunkSeconds * audioproc.ASRSampleRate

// minFlushSamples is the 0.5s floor below which a residual buffer is
// silently discarded instead of flushed, per §4.3/§7.
const minFlushSamples = audioproc.ASRSampleRate / 2

// idlePoll is how long the worker sleeps when below the chunk threshold.
const idlePoll = 50 * time.Millisecond

// DiarizeFunc attaches global speaker IDs to the sentences produced from
// one chunk. It is nil when diarization is disabled (HF_TOKEN unset).
type DiarizeFunc func(samples []float32, timeOffset float64, sentences []transcript.Sentence) []transcript.Sentence

// Result is one publication onto the ASR result queue.
type Result struct {
	Sentences []transcript.Sentence
	Text      string
	Final     bool
}

// Worker is the rolling buffer described in spec.md §4.3: it accumulates
// audio, emits chunked transcripts, and maintains time_offset with
// sentence-aware carry-over across chunk seams.
type Worker struct {
	engine  Engine
	diarize DiarizeFunc

	buffer     []float32
	timeOffset float64
}

// NewWorker builds a rolling ASR worker around an injected engine. diarize
// may be nil to disable C4/C5 enrichment.
func NewWorker(engine Engine, diarize DiarizeFunc) *Worker {
	return &Worker{engine: engine, diarize: diarize}
}

// Run drains audioQ and publishes to resultQ until stop reports true or the
// queue closes, then performs the final flush exactly once. It is meant to
// run on a dedicated OS thread (the caller locks the thread per §5); Run
// itself only loops and blocks, it never spawns goroutines.
func (w *Worker) Run(audioQ *queue.Queue[[]float32], resultQ *queue.Queue[Result], stop func() bool) {
	for {
		if stop() {
			w.flush(resultQ)
			return
		}

		item, ok := audioQ.PopWithTimeout(idlePoll)
		if ok {
			w.buffer = append(w.buffer, item...)
			for {
				more, ok := audioQ.TryPop()
				if !ok {
					break
				}
				w.buffer = append(w.buffer, more...)
			}
		} else if audioQ.Closed() {
			w.flush(resultQ)
			return
		}

		for len(w.buffer) >= ChunkSize {
			w.processOneChunk(resultQ)
		}
	}
}

// processOneChunk implements steps 2-6 of §4.3 for exactly one chunk.
func (w *Worker) processOneChunk(resultQ *queue.Queue[Result]) {
	chunk := w.buffer[:ChunkSize]
	chunkStart := time.Now()
	defer func() { metrics.ChunkLatency.Observe(time.Since(chunkStart).Seconds()) }()

	tokens, timestamps, err := w.engine.Recognise(audioproc.Normalise(chunk))
	if err != nil {
		// Model/engine failure on a chunk is not in the error table as a
		// swallow-and-continue case for C3 itself (model load failure is
		// fatal at worker init, per §7); a transient per-call error still
		// must not wedge the worker, so we drop this chunk like a
		// no-sentence result and keep the time offset advancing.
		w.buffer = w.buffer[ChunkSize:]
		w.timeOffset += ChunkSeconds
		return
	}

	localSentences := transcript.Segment(tokens, timestamps)
	sentences := make([]transcript.Sentence, len(localSentences))
	for i, s := range localSentences {
		s.Start += w.timeOffset
		s.End += w.timeOffset
		sentences[i] = s
	}

	if w.diarize != nil && len(sentences) > 0 {
		sentences = w.diarize(chunk, w.timeOffset, sentences)
	}

	resultQ.Push(Result{
		Sentences: sentences,
		Text:      strings.Join(tokens, ""),
		Final:     false,
	})

	if len(localSentences) == 0 {
		w.buffer = w.buffer[ChunkSize:]
		w.timeOffset += ChunkSeconds
		return
	}

	lastEndLocal := localSentences[len(localSentences)-1].End
	carry := int(math.Round(lastEndLocal * audioproc.ASRSampleRate))
	if carry < 0 {
		carry = 0
	}
	if carry > ChunkSize {
		carry = ChunkSize
	}
	rest := append([]float32(nil), chunk[carry:]...)
	rest = append(rest, w.buffer[ChunkSize:]...)
	w.buffer = rest
	w.timeOffset += lastEndLocal
}

// flush implements the §4.3 "Flush" rule: a residual buffer of at least
// 0.5s is run through the engine once more and published final=true;
// anything shorter is silently discarded.
func (w *Worker) flush(resultQ *queue.Queue[Result]) {
	defer func() { w.buffer = nil }()

	if len(w.buffer) < minFlushSamples {
		return
	}

	tokens, timestamps, err := w.engine.Recognise(audioproc.Normalise(w.buffer))
	if err != nil {
		return
	}

	localSentences := transcript.Segment(tokens, timestamps)
	sentences := make([]transcript.Sentence, len(localSentences))
	for i, s := range localSentences {
		s.Start += w.timeOffset
		s.End += w.timeOffset
		sentences[i] = s
	}
	if w.diarize != nil && len(sentences) > 0 {
		sentences = w.diarize(w.buffer, w.timeOffset, sentences)
	}

	resultQ.Push(Result{
		Sentences: sentences,
		Text:      strings.Join(tokens, ""),
		Final:     true,
	})
}
