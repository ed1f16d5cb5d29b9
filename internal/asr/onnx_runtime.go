package asr

import (
	"fmt"
	"log"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	onnxInitMu   sync.Mutex
	onnxInitDone bool
)

// ensureONNXRuntimeInitialised loads the shared onnxruntime library exactly
// once per process, searching ONNXRUNTIME_SHARED_LIBRARY_PATH and a few
// conventional install locations.
func ensureONNXRuntimeInitialised() error {
	onnxInitMu.Lock()
	defer onnxInitMu.Unlock()

	if onnxInitDone {
		return nil
	}

	libPath := os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH")
	if libPath == "" {
		candidates := []string{
			"./libonnxruntime.so",
			"./libonnxruntime.dylib",
			"/usr/local/lib/libonnxruntime.so",
		}
		for _, p := range candidates {
			if _, err := os.Stat(p); err == nil {
				libPath = p
				break
			}
		}
	}
	if libPath == "" {
		return fmt.Errorf("onnxruntime shared library not found; set ONNXRUNTIME_SHARED_LIBRARY_PATH")
	}

	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return err
	}

	log.Printf("asr: onnxruntime initialised from %s", libPath)
	onnxInitDone = true
	return nil
}
