package asr

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"livewire/internal/audioproc"
)

const (
	ctcNMels     = 64
	ctcHopLength = 160
	ctcWinLength = 400
	ctcNFFT      = 512
)

// ONNXEngine is a streaming-CTC ASR Engine backed by onnxruntime_go: a
// mel-spectrogram front end feeds an ONNX acoustic model, and greedy CTC
// decoding turns its frame logits into word tokens, each timestamped in
// seconds (at frame resolution) from the start of the chunk.
type ONNXEngine struct {
	session *ort.DynamicAdvancedSession
	mel     *melProcessor
	vocab   []string
	blankID int
	mu      sync.Mutex
}

// NewONNXEngine loads the acoustic model and its vocabulary file (one
// token per line; the blank symbol, conventionally "<blk>", marks the CTC
// blank index).
func NewONNXEngine(modelPath, vocabPath string) (*ONNXEngine, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("asr model not found: %w", err)
	}
	vocab, blankID, err := loadVocab(vocabPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load vocabulary: %w", err)
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

	return &ONNXEngine{
		session: session,
		mel: newMelProcessor(melConfig{
			SampleRate: audioproc.ASRSampleRate,
			NMels:      ctcNMels,
			HopLength:  ctcHopLength,
			WinLength:  ctcWinLength,
			NFFT:       ctcNFFT,
		}),
		vocab:   vocab,
		blankID: blankID,
	}, nil
}

// Recognise implements the Engine contract: greedy CTC decode over one
// chunk, one token per decoded word, timestamped at the chunk-local second
// its first frame occurred.
func (e *ONNXEngine) Recognise(samples []int16) ([]string, []float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(samples) < audioproc.ASRSampleRate/10 {
		return nil, nil, nil
	}

	floatSamples := make([]float32, len(samples))
	for i, s := range samples {
		floatSamples[i] = float32(s) / 32768.0
	}

	melSpec, numFrames := e.mel.Compute(floatSamples)

	flat := make([]float32, ctcNMels*numFrames)
	for i := 0; i < ctcNMels; i++ {
		for j := 0; j < numFrames; j++ {
			flat[i*numFrames+j] = melSpec[j][i]
		}
	}

	inputShape := ort.NewShape(1, int64(ctcNMels), int64(numFrames))
	inputTensor, err := ort.NewTensor(inputShape, flat)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	lengthTensor, err := ort.NewTensor(ort.NewShape(1), []int64{int64(numFrames)})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build length tensor: %w", err)
	}
	defer lengthTensor.Destroy()

	outputs := []ort.Value{nil}
	if err := e.session.Run([]ort.Value{inputTensor, lengthTensor}, outputs); err != nil {
		return nil, nil, fmt.Errorf("inference failed: %w", err)
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
		return nil, nil, fmt.Errorf("unexpected output tensor type")
	}
	shape := outputTensor.GetShape()
	data := outputTensor.GetData()
	timeSteps, vocabSize := int(shape[1]), int(shape[2])

	logits := make([][]float32, timeSteps)
	for t := 0; t < timeSteps; t++ {
		logits[t] = data[t*vocabSize : (t+1)*vocabSize]
	}

	return e.greedyCTCDecode(logits, float64(len(samples))/audioproc.ASRSampleRate)
}

// greedyCTCDecode collapses repeated and blank frame predictions per the
// standard CTC rule, emitting one token per decoded word boundary.
func (e *ONNXEngine) greedyCTCDecode(logits [][]float32, duration float64) ([]string, []float64, error) {
	if len(logits) == 0 {
		return nil, nil, nil
	}
	frameSeconds := duration / float64(len(logits))

	var tokens []string
	var timestamps []float64
	var current strings.Builder
	wordStart := -1.0
	prev := e.blankID

	flush := func(end float64) {
		if current.Len() == 0 {
			return
		}
		tokens = append(tokens, current.String())
		timestamps = append(timestamps, wordStart)
		current.Reset()
	}

	for t, frame := range logits {
		best, bestVal := 0, frame[0]
		for i, v := range frame {
			if v > bestVal {
				bestVal = v
				best = i
			}
		}
		frameTime := float64(t) * frameSeconds

		if best != e.blankID && best != prev && best < len(e.vocab) {
			token := e.vocab[best]
			if token == "▁" || token == " " {
				flush(frameTime)
				wordStart = frameTime
			} else {
				if wordStart < 0 {
					wordStart = frameTime
				}
				current.WriteString(token)
			}
		}
		prev = best
	}
	flush(duration)

	return tokens, timestamps, nil
}

func loadVocab(path string) ([]string, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	var vocab []string
	blankID := 0
	scanner := bufio.NewScanner(f)
	idx := 0
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if line == "" {
			idx++
			continue
		}
		fields := strings.Fields(line)
		token := fields[0]
		if token == "<blk>" || token == "<blank>" {
			blankID = idx
		}
		vocab = append(vocab, token)
		idx++
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, err
	}
	return vocab, blankID, nil
}

// Close releases the ONNX session.
func (e *ONNXEngine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != nil {
		e.session.Destroy()
		e.session = nil
	}
}
