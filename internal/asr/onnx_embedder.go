package asr

import (
	"context"
	"fmt"
	"math"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"livewire/internal/audioproc"
)

const (
	embedNMels     = 80
	embedHopLength = 160
	embedWinLength = 400
	embedNFFT      = 512
)

// ONNXEmbedder is the speaker-embedding Embedder (C5's model collaborator)
// backed by a WeSpeaker/3D-Speaker-style ONNX model.
type ONNXEmbedder struct {
	session *ort.DynamicAdvancedSession
	mel     *melProcessor
	mu      sync.Mutex
}

// NewONNXEmbedder loads the embedding model.
func NewONNXEmbedder(modelPath string) (*ONNXEmbedder, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("embedding model not found: %w", err)
	}
	if err := ensureONNXRuntimeInitialised(); err != nil {
		return nil, fmt.Errorf("failed to initialise onnx runtime: %w", err)
	}

	inputInfo, outputInfo, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect model: %w", err)
	}
	inputNames := make([]string, len(inputInfo))
	for i, info := range inputInfo {
		inputNames[i] = info.Name
	}
	outputNames := make([]string, len(outputInfo))
	for i, info := range outputInfo {
		outputNames[i] = info.Name
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer options.Destroy()

	session, err := ort.NewDynamicAdvancedSession(modelPath, inputNames, outputNames, options)
	if err != nil {
		return nil, fmt.Errorf("failed to create onnx session: %w", err)
	}

	return &ONNXEmbedder{
		session: session,
		mel: newMelProcessor(melConfig{
			SampleRate: audioproc.ASRSampleRate,
			NMels:      embedNMels,
			HopLength:  embedHopLength,
			WinLength:  embedWinLength,
			NFFT:       embedNFFT,
		}),
	}, nil
}

// Embed implements the Embedder contract: a log-mel front end feeds the
// model, and the resulting vector is L2-normalised.
func (e *ONNXEmbedder) Embed(ctx context.Context, samples []float32) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(samples) < audioproc.ASRSampleRate/10 {
		return nil, fmt.Errorf("audio too short to embed")
	}

	melSpec, numFrames := e.mel.Compute(samples)

	flat := make([]float32, numFrames*embedNMels)
	for t := 0; t < numFrames; t++ {
		copy(flat[t*embedNMels:(t+1)*embedNMels], melSpec[t])
	}

	inputShape := ort.NewShape(1, int64(numFrames), int64(embedNMels))
	inputTensor, err := ort.NewTensor(inputShape, flat)
	if err != nil {
		return nil, fmt.Errorf("failed to build input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	outputs := []ort.Value{nil}
	if err := e.session.Run([]ort.Value{inputTensor}, outputs); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}
	defer func() {
		for _, out := range outputs {
			if out != nil {
				out.Destroy()
			}
		}
	}()

	outputTensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output tensor type")
	}

	embedding := append([]float32(nil), outputTensor.GetData()...)
	return normalise(embedding), nil
}

func normalise(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	norm := float32(math.Sqrt(sumSq))
	if norm < 1e-6 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

// Close releases the ONNX session.
func (e *ONNXEmbedder) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != nil {
		e.session.Destroy()
		e.session = nil
	}
}
