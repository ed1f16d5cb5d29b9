package diarization

import (
	"fmt"
	"log"
	"os"
	"runtime"
	"sync"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"
)

// maxDiarizationSamples is the ~15s/16kHz cap beyond which the native
// pipeline is split into overlapping chunks to avoid a long single native
// call, mirroring the offline-segmentation model's own batching limits.
const maxDiarizationSamples = 240000

// overlapSamples is the 1s overlap used to stitch adjacent chunks.
const overlapSamples = 16000

// SherpaConfig configures the offline pyannote/wespeaker pipeline behind
// SherpaDiarizer.
type SherpaConfig struct {
	SegmentationModelPath string
	EmbeddingModelPath     string
	NumThreads             int
	ClusteringThreshold    float32
	MinDurationOn          float32
	MinDurationOff         float32
	Provider               string // cpu, cuda, coreml, or "" for auto
}

// DefaultSherpaConfig fills in the thresholds spec.md leaves to the
// implementation, auto-selecting a provider for the current platform.
func DefaultSherpaConfig(segmentationPath, embeddingPath string) SherpaConfig {
	return SherpaConfig{
		SegmentationModelPath: segmentationPath,
		EmbeddingModelPath:    embeddingPath,
		NumThreads:            4,
		ClusteringThreshold:   0.5,
		MinDurationOn:         0.3,
		MinDurationOff:        0.5,
	}
}

func detectBestProvider() string {
	if runtime.GOOS == "darwin" && runtime.GOARCH == "arm64" {
		return "coreml"
	}
	return "cpu"
}

// SherpaDiarizer is the offline pyannote-segmentation + speaker-embedding
// Diarizer backing C5 when HF_TOKEN/model paths are configured.
type SherpaDiarizer struct {
	config   SherpaConfig
	diarizer *sherpa.OfflineSpeakerDiarization
	mu       sync.Mutex
}

// NewSherpaDiarizer loads the segmentation and embedding models, falling
// back to the CPU provider if the requested accelerator fails to init.
func NewSherpaDiarizer(config SherpaConfig) (*SherpaDiarizer, error) {
	if _, err := os.Stat(config.SegmentationModelPath); err != nil {
		return nil, fmt.Errorf("segmentation model not found: %w", err)
	}
	if _, err := os.Stat(config.EmbeddingModelPath); err != nil {
		return nil, fmt.Errorf("embedding model not found: %w", err)
	}

	provider := config.Provider
	if provider == "" {
		provider = detectBestProvider()
	}

	cfg := &sherpa.OfflineSpeakerDiarizationConfig{
		Segmentation: sherpa.OfflineSpeakerSegmentationModelConfig{
			Pyannote: sherpa.OfflineSpeakerSegmentationPyannoteModelConfig{
				Model: config.SegmentationModelPath,
			},
			NumThreads: config.NumThreads,
			Provider:   provider,
		},
		Embedding: sherpa.SpeakerEmbeddingExtractorConfig{
			Model:      config.EmbeddingModelPath,
			NumThreads: config.NumThreads,
			Provider:   provider,
		},
		Clustering: sherpa.FastClusteringConfig{
			NumClusters: -1,
			Threshold:   config.ClusteringThreshold,
		},
		MinDurationOn:  config.MinDurationOn,
		MinDurationOff: config.MinDurationOff,
	}

	d := sherpa.NewOfflineSpeakerDiarization(cfg)
	if d == nil && provider != "cpu" {
		log.Printf("diarization: %s provider failed, falling back to cpu", provider)
		cfg.Segmentation.Provider = "cpu"
		cfg.Embedding.Provider = "cpu"
		provider = "cpu"
		d = sherpa.NewOfflineSpeakerDiarization(cfg)
	}
	if d == nil {
		return nil, fmt.Errorf("failed to initialise sherpa-onnx offline diarizer")
	}

	config.Provider = provider
	log.Printf("diarization: initialised provider=%s segmentation=%s embedding=%s",
		provider, config.SegmentationModelPath, config.EmbeddingModelPath)

	return &SherpaDiarizer{config: config, diarizer: d}, nil
}

// Diarize implements the Diarizer interface. Long chunks are split to
// bound a single native call's duration; the sherpa-onnx runtime itself is
// not reentrant per instance, so access is serialised.
func (d *SherpaDiarizer) Diarize(samples []float32) ([]Turn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(samples) == 0 {
		return nil, nil
	}
	if len(samples) > maxDiarizationSamples {
		return d.diarizeInChunks(samples), nil
	}
	return d.diarizeSingle(samples), nil
}

func (d *SherpaDiarizer) diarizeSingle(samples []float32) []Turn {
	segments := d.diarizer.Process(samples)
	turns := make([]Turn, len(segments))
	for i, seg := range segments {
		turns[i] = Turn{StartLocal: seg.Start, EndLocal: seg.End, LocalLabel: seg.Speaker}
	}
	return turns
}

func (d *SherpaDiarizer) diarizeInChunks(samples []float32) []Turn {
	var all []Turn
	offset := 0
	for offset < len(samples) {
		end := offset + maxDiarizationSamples
		if end > len(samples) {
			end = len(samples)
		}
		chunkOffsetSec := float32(offset) / float32(16000)

		for _, t := range d.diarizeSingle(samples[offset:end]) {
			all = append(all, Turn{
				StartLocal: t.StartLocal + chunkOffsetSec,
				EndLocal:   t.EndLocal + chunkOffsetSec,
				LocalLabel: t.LocalLabel,
			})
		}

		if end == len(samples) {
			break
		}
		offset = end - overlapSamples
		if offset < 0 {
			offset = 0
		}
		if len(samples)-offset < 16000 {
			break
		}
	}
	return mergeOverlapping(all)
}

// mergeOverlapping merges adjacent turns of the same local label produced
// by two overlapping chunks.
func mergeOverlapping(turns []Turn) []Turn {
	if len(turns) <= 1 {
		return turns
	}
	sorted := append([]Turn(nil), turns...)
	for i := 0; i < len(sorted)-1; i++ {
		for j := i + 1; j < len(sorted); j++ {
			if sorted[j].StartLocal < sorted[i].StartLocal {
				sorted[i], sorted[j] = sorted[j], sorted[i]
			}
		}
	}

	merged := []Turn{sorted[0]}
	for _, t := range sorted[1:] {
		last := &merged[len(merged)-1]
		if t.LocalLabel == last.LocalLabel && t.StartLocal <= last.EndLocal+0.5 {
			if t.EndLocal > last.EndLocal {
				last.EndLocal = t.EndLocal
			}
			continue
		}
		merged = append(merged, t)
	}
	return merged
}

// Close releases the native diarizer.
func (d *SherpaDiarizer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.diarizer != nil {
		sherpa.DeleteOfflineSpeakerDiarization(d.diarizer)
		d.diarizer = nil
	}
}
