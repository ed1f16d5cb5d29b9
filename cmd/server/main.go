package main

import (
	"log"
	"net/http"
	"sync/atomic"

	"livewire/internal/asr"
	"livewire/internal/config"
	"livewire/internal/diarization"
	"livewire/internal/llm"
	"livewire/internal/orchestrator"
	"livewire/internal/server"
)

func main() {
	cfg := config.Load()

	defer func() {
		if r := recover(); r != nil {
			log.Printf("PANIC: %v", r)
			panic(r)
		}
	}()

	engine, err := asr.NewONNXEngine(cfg.ASRModelPath, cfg.ASRVocabPath)
	if err != nil {
		log.Fatalf("failed to load ASR engine: %v", err)
	}
	defer engine.Close()

	var ready atomic.Bool
	ready.Store(true)

	var binder *diarization.Binder
	if cfg.DiarizationEnabled() {
		sherpaDiarizer, err := diarization.NewSherpaDiarizer(diarization.DefaultSherpaConfig(cfg.SegmentationModelPath, cfg.EmbeddingModelPath))
		if err != nil {
			log.Printf("diarization disabled: %v", err)
		} else {
			defer sherpaDiarizer.Close()
			embedder, err := asr.NewONNXEmbedder(cfg.EmbeddingModelPath)
			if err != nil {
				log.Printf("diarization disabled: failed to load embedder: %v", err)
			} else {
				defer embedder.Close()
				binder = diarization.NewBinder(sherpaDiarizer, embedder)
			}
		}
	}

	llmClient := llm.NewClient(cfg.LLMModel)

	var diarizeFactory orchestrator.DiarizeFactory
	if binder != nil {
		diarizeFactory = binder.ForRegistry
	}

	newSession := func() *orchestrator.Session {
		return orchestrator.New(engine, llmClient, cfg.LLMURL, diarizeFactory)
	}

	srv := server.New(newSession, ready.Load, cfg.ExportDir)

	mux := http.NewServeMux()
	srv.Routes(mux)

	log.Printf("livewire listening on :%s", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, mux); err != nil {
		log.Fatal(err)
	}
}
