// Package orchestrator implements the Session Orchestrator (C7): it owns
// queues, workers, and the accumulated transcript/question/action state,
// and exposes the per-tick pull API and shutdown operations of spec.md
// §4.7.
package orchestrator

import (
	"context"
	"log"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"livewire/internal/asr"
	"livewire/internal/audioproc"
	"livewire/internal/llm"
	"livewire/internal/metrics"
	"livewire/internal/queue"
	"livewire/internal/speaker"
	"livewire/internal/transcript"
)

// joinTimeout bounds how long Finalize/Reset wait for a worker goroutine
// to exit before logging and abandoning it, per §5's cancellation rule.
const joinTimeout = 60 * time.Second

// Snapshot is the read-only view C8 pulls on each tick.
type Snapshot struct {
	Sentences []transcript.Sentence
	FullText  string
	Questions []transcript.ExtractedItem
	Actions   []transcript.ExtractedItem
	Final     bool
}

// state is the exclusively-orchestrator-owned session state of §3.
type state struct {
	sentences   []transcript.Sentence
	fullText    strings.Builder
	questions   []transcript.ExtractedItem
	actions     []transcript.ExtractedItem
	lastSentIdx int

	seenQuestions map[string]struct{}
	seenActions   map[string]struct{}
}

func newState() *state {
	return &state{
		seenQuestions: make(map[string]struct{}),
		seenActions:   make(map[string]struct{}),
	}
}

// Session wires together the ASR and LLM workers around one conversation,
// matching the teacher's callback-driven chunk-ready/chunk-transcribed
// wiring, generalized to a single method-call facade instead of a
// broadcast-to-many-transports fan-out.
type Session struct {
	id     string
	llmURL string

	mu    sync.Mutex
	state *state

	registry *speaker.Registry

	asrWorker *asr.Worker
	llmWorker *llm.Worker

	audioQ  *queue.Queue[[]float32]
	asrResQ *queue.Queue[asr.Result]
	taskQ   *queue.Queue[llm.Task]
	resultQ *queue.Queue[transcript.ExtractedItem]

	// asr and llm are cancelled independently: Finalize must be able to
	// stop+join the ASR worker and push the trailing fragment onto taskQ
	// while the LLM worker is still running, per §4.7's strict ordering.
	asrCtx    context.Context
	asrCancel context.CancelFunc
	llmCtx    context.Context
	llmCancel context.CancelFunc
	asrGroup  *errgroup.Group
	llmGroup  *errgroup.Group

	engine         asr.Engine
	llmClient      *llm.Client
	diarizeFactory DiarizeFactory
}

// DiarizeFactory builds the chunk-level DiarizeFunc the ASR worker calls,
// bound to this session's own speaker registry. It is nil when HF_TOKEN is
// unset (spec.md Environment / S6).
type DiarizeFactory func(*speaker.Registry) asr.DiarizeFunc

// New constructs a fresh session. diarize may be nil to disable C4/C5
// enrichment.
func New(engine asr.Engine, llmClient *llm.Client, llmURL string, diarize DiarizeFactory) *Session {
	s := &Session{
		id:             uuid.NewString(),
		llmURL:         llmURL,
		state:          newState(),
		registry:       speaker.New(),
		engine:         engine,
		llmClient:      llmClient,
		diarizeFactory: diarize,
	}
	s.startWorkers()
	return s
}

func (s *Session) startWorkers() {
	s.audioQ = queue.New[[]float32]()
	s.asrResQ = queue.New[asr.Result]()
	s.taskQ = queue.New[llm.Task]()
	s.resultQ = queue.New[transcript.ExtractedItem]()

	s.asrCtx, s.asrCancel = context.WithCancel(context.Background())
	s.llmCtx, s.llmCancel = context.WithCancel(context.Background())
	s.asrGroup = &errgroup.Group{}
	s.llmGroup = &errgroup.Group{}
	asrGroup, llmGroup := s.asrGroup, s.llmGroup
	asrCtx, llmCtx := s.asrCtx, s.llmCtx

	var diarize asr.DiarizeFunc
	if s.diarizeFactory != nil {
		diarize = s.diarizeFactory(s.registry)
	}
	s.asrWorker = asr.NewWorker(s.engine, diarize)
	s.llmWorker = llm.NewWorker(s.llmClient)

	asrStop := func() bool {
		select {
		case <-asrCtx.Done():
			return true
		default:
			return false
		}
	}
	llmStop := func() bool {
		select {
		case <-llmCtx.Done():
			return true
		default:
			return false
		}
	}

	// Per §5, these run on dedicated OS threads, not cooperative tasks:
	// they may block for the duration of a model inference or a network
	// read.
	asrGroup.Go(func() error {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		s.asrWorker.Run(s.audioQ, s.asrResQ, asrStop)
		return nil
	})
	llmGroup.Go(func() error {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		s.llmWorker.Run(llmCtx, s.taskQ, s.resultQ, llmStop)
		return nil
	})
}

// OnAudio normalises and enqueues a frame, drains both result queues into
// session state, and returns the current snapshot — spec.md §4.7's
// on_audio operation.
func (s *Session) OnAudio(frame []float32, sampleRate int) Snapshot {
	mono := audioproc.ToMono(frame, 1)
	resampled := audioproc.Resample(mono, sampleRate, audioproc.ASRSampleRate)
	s.audioQ.Push(resampled)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.drainASRLocked()
	s.drainLLMLocked()

	return s.snapshotLocked(false)
}

// Snapshot drains both result queues without enqueuing any audio — the
// facade's periodic ~10Hz push (§4.8) uses this between frames.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.drainASRLocked()
	s.drainLLMLocked()

	return s.snapshotLocked(false)
}

func (s *Session) drainASRLocked() {
	for _, res := range s.asrResQ.DrainAll() {
		s.applyASRResultLocked(res)
	}
}

func (s *Session) applyASRResultLocked(res asr.Result) {
	startIdx := len(s.state.sentences)
	s.state.sentences = append(s.state.sentences, res.Sentences...)

	if s.state.fullText.Len() > 0 {
		s.state.fullText.WriteString(" ")
	}
	s.state.fullText.WriteString(res.Text)

	newSentences := s.state.sentences[startIdx:]
	if len(newSentences) == 0 {
		return
	}

	var fragment strings.Builder
	for i, sent := range newSentences {
		if i > 0 {
			fragment.WriteString(" ")
		}
		fragment.WriteString(sent.Text)
	}
	s.state.lastSentIdx = len(s.state.sentences)

	s.taskQ.Push(llm.Task{Fragment: fragment.String(), EndpointURL: s.llmURL})
}

func (s *Session) drainLLMLocked() {
	for _, item := range s.resultQ.DrainAll() {
		seen := s.state.seenQuestions
		list := &s.state.questions
		if item.Kind == transcript.KindAction {
			seen = s.state.seenActions
			list = &s.state.actions
		}
		if _, dup := seen[item.Text]; dup {
			continue
		}
		seen[item.Text] = struct{}{}
		*list = append(*list, item)
	}
}

func (s *Session) snapshotLocked(final bool) Snapshot {
	return Snapshot{
		Sentences: append([]transcript.Sentence(nil), s.state.sentences...),
		FullText:  s.state.fullText.String(),
		Questions: append([]transcript.ExtractedItem(nil), s.state.questions...),
		Actions:   append([]transcript.ExtractedItem(nil), s.state.actions...),
		Final:     final,
	}
}

// Finalize implements spec.md §4.7's finalize operation in the strict
// order the original and §4.7 require: stop+join the ASR worker only,
// drain its residual (including the flush result), push any trailing
// fragment onto taskQ while the LLM worker is still running, then signal
// LLM stop via the taskQ sentinel, join it, and drain its results. Writing
// the CSV/SRT export files is internal/server's job (it calls
// internal/export against the returned Snapshot), since C7 itself has no
// file-system dependency.
func (s *Session) Finalize() Snapshot {
	s.asrCancel()
	s.audioQ.Close()
	s.joinGroupBounded(s.asrGroup, "asr")

	s.mu.Lock()
	s.drainASRLocked()
	s.mu.Unlock()

	s.taskQ.Close()
	s.joinGroupBounded(s.llmGroup, "llm")

	s.mu.Lock()
	defer s.mu.Unlock()

	s.drainLLMLocked()

	return s.snapshotLocked(true)
}

func (s *Session) joinGroupBounded(group *errgroup.Group, label string) {
	done := make(chan struct{})
	go func() {
		group.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(joinTimeout):
		log.Printf("orchestrator: session %s %s worker join exceeded %s, abandoning", s.id, label, joinTimeout)
	}
}

// ID returns the session's opaque identifier, used by the facade for log
// correlation across connect/disconnect.
func (s *Session) ID() string {
	return s.id
}

// Reset signals stop to the ASR worker and joins it, then rebuilds a fresh
// session state, queues, and workers, preserving only the configured LLM
// endpoint URL — spec.md §4.7's reset operation. The speaker registry is
// cleared. Per spec.md §9 Open Question (i), an in-flight LLM stream is
// NOT cancelled here: taskQ.Close() stops it from picking up new work, but
// the old llmCtx is left alone so the current completion runs to
// completion against the stale history; the old worker goroutine, queues,
// and history are simply discarded whenever it finishes, since nothing
// else references them once startWorkers below installs fresh ones.
func (s *Session) Reset() {
	s.asrCancel()
	s.audioQ.Close()
	s.joinGroupBounded(s.asrGroup, "asr")

	s.taskQ.Close()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = newState()
	s.registry.Reset()
	s.startWorkers()
}

// SpeakerCount exposes the registry size for disconnect-scenario tests.
func (s *Session) SpeakerCount() int {
	return s.registry.Count()
}

// Registry exposes the speaker registry so a diarize callback can be built
// around it (see Binder.ForRegistry in internal/diarization).
func (s *Session) Registry() *speaker.Registry {
	return s.registry
}

// ReportQueueDepths publishes the current depth of every pipeline queue to
// the ambient Prometheus gauges; the server calls this on its periodic
// tick so /metrics reflects live back-pressure.
func (s *Session) ReportQueueDepths() {
	metrics.QueueDepth.WithLabelValues("audio").Set(float64(s.audioQ.Len()))
	metrics.QueueDepth.WithLabelValues("asr_result").Set(float64(s.asrResQ.Len()))
	metrics.QueueDepth.WithLabelValues("llm_task").Set(float64(s.taskQ.Len()))
	metrics.QueueDepth.WithLabelValues("llm_result").Set(float64(s.resultQ.Len()))
}
