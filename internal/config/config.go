// Package config loads operational configuration for the transcription backend.
package config

import (
	"flag"
	"os"
)

// Config holds every operational knob the server needs at startup.
type Config struct {
	Port string

	ASRModelPath          string
	ASRVocabPath          string
	SegmentationModelPath string
	EmbeddingModelPath    string

	LLMURL   string
	LLMModel string

	// HFToken gates diarization: empty disables C4/C5 and every sentence's
	// speaker field stays nil.
	HFToken string

	ExportDir string
}

// Load parses flags and environment variables into a Config.
func Load() *Config {
	port := flag.String("port", "8080", "HTTP/WebSocket listen port")
	asrModel := flag.String("asr-model", "models/asr.onnx", "Path to the ONNX ASR model")
	asrVocab := flag.String("asr-vocab", "models/vocab.txt", "Path to the ASR token vocabulary")
	segModel := flag.String("seg-model", "models/segmentation.onnx", "Path to the diarization segmentation model")
	embModel := flag.String("emb-model", "models/embedding.onnx", "Path to the speaker embedding model")
	llmURL := flag.String("llm-url", "http://localhost:1234/v1", "OpenAI-compatible LLM endpoint")
	llmModel := flag.String("llm-model", "local-model", "LLM model name sent in chat-completions requests")
	exportDir := flag.String("export-dir", "output", "Directory for CSV/SRT exports")

	flag.Parse()

	return &Config{
		Port:                  *port,
		ASRModelPath:          *asrModel,
		ASRVocabPath:          *asrVocab,
		SegmentationModelPath: *segModel,
		EmbeddingModelPath:    *embModel,
		LLMURL:                *llmURL,
		LLMModel:              *llmModel,
		HFToken:               os.Getenv("HF_TOKEN"),
		ExportDir:             *exportDir,
	}
}

// DiarizationEnabled reports whether HF_TOKEN gates C4/C5 on.
func (c *Config) DiarizationEnabled() bool {
	return c.HFToken != ""
}
