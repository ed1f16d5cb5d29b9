// Package server implements the Streaming Server Facade (C8): one
// WebSocket connection per live meeting session, carrying the duplex
// protocol of spec.md §4.8/§6.
package server

import (
	"encoding/binary"
	"encoding/json"
	"log"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"livewire/internal/export"
	"livewire/internal/orchestrator"
)

// pushInterval is the ~10Hz transcript push cadence of §4.8.
const pushInterval = 100 * time.Millisecond

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// SessionFactory builds a fresh orchestrator session for one connection.
// The server never constructs ASR/LLM/diarization collaborators itself —
// those are wired once in cmd/server and closed over here.
type SessionFactory func() *orchestrator.Session

// Server is the HTTP/WebSocket facade: one goroutine pair (reader +
// ticker) per connection, each owning a single orchestrator.Session.
type Server struct {
	newSession SessionFactory
	modelReady func() bool
	exportDir  string
}

// New builds a Server. modelReady reports whether the ASR engine finished
// loading, surfaced at GET /health. exportDir is where the CSV/SRT files are
// written at session finalize (spec.md §4.7/§6).
func New(newSession SessionFactory, modelReady func() bool, exportDir string) *Server {
	return &Server{newSession: newSession, modelReady: modelReady, exportDir: exportDir}
}

// Routes registers the server's handlers on mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
}

type healthResponse struct {
	Status     string `json:"status"`
	ModelReady bool   `json:"model_ready"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(healthResponse{Status: "ok", ModelReady: s.modelReady()})
}

// inboundMessage is the JSON shape of both control messages §4.8 defines.
type inboundMessage struct {
	Type       string `json:"type"`
	SampleRate int    `json:"sampleRate"`
}

type outboundSentence struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Segment string  `json:"segment"`
	Speaker *string `json:"speaker,omitempty"`
}

type outboundMessage struct {
	Type      string             `json:"type"`
	Sentences []outboundSentence `json:"sentences"`
	FullText  string             `json:"fullText"`
	Final     *bool              `json:"final,omitempty"`
	CSVPath   string             `json:"csvPath,omitempty"`
	SRTPath   string             `json:"srtPath,omitempty"`
}

func toOutbound(snap orchestrator.Snapshot) outboundMessage {
	sentences := make([]outboundSentence, len(snap.Sentences))
	for i, sent := range snap.Sentences {
		sentences[i] = outboundSentence{Start: sent.Start, End: sent.End, Segment: sent.Text, Speaker: sent.Speaker}
	}
	msg := outboundMessage{Type: "transcript", Sentences: sentences, FullText: snap.FullText}
	if snap.Final {
		final := true
		msg.Final = &final
	}
	return msg
}

// exportFinal writes the CSV and SRT transcripts for a finalized session to
// s.exportDir, logging and continuing on write failure rather than dropping
// the already-computed final transcript pushed to the client — per
// spec.md §4.7's "return the snapshot plus the file paths produced by the
// external export collaborators".
func (s *Server) exportFinal(sessionID string, snap orchestrator.Snapshot) outboundMessage {
	msg := toOutbound(snap)
	csvPath, err := export.CSV(s.exportDir, snap.Sentences)
	if err != nil {
		log.Printf("server: session %s csv export failed: %v", sessionID, err)
	} else {
		msg.CSVPath = csvPath
	}
	srtPath, err := export.SRT(s.exportDir, snap.Sentences)
	if err != nil {
		log.Printf("server: session %s srt export failed: %v", sessionID, err)
	} else {
		msg.SRTPath = srtPath
	}
	return msg
}

// handleWebSocket upgrades the connection and runs the duplex session
// until the client disconnects or sends "stop", per the §7 disconnect
// entry: cancel the sender, signal stop, drop the session.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("server: websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	sess := s.newSession()
	sampleRate := 16000
	log.Printf("server: session %s connected", sess.ID())
	defer log.Printf("server: session %s disconnected", sess.ID())

	var writeMu sync.Mutex
	writeJSON := func(msg outboundMessage) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.WriteJSON(msg); err != nil {
			log.Printf("server: write failed: %v", err)
		}
	}

	done := make(chan struct{})
	var stopOnce sync.Once
	stop := func() { stopOnce.Do(func() { close(done) }) }
	defer stop()

	// Periodic pusher: independent of audio cadence, per §4.8's ~10Hz rule.
	go func() {
		ticker := time.NewTicker(pushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				writeJSON(toOutbound(sess.Snapshot()))
				sess.ReportQueueDepths()
			}
		}
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}

		switch msgType {
		case websocket.BinaryMessage:
			sess.OnAudio(decodeFloat32LE(data), sampleRate)

		case websocket.TextMessage:
			var in inboundMessage
			if err := json.Unmarshal(data, &in); err != nil {
				continue
			}
			switch in.Type {
			case "config":
				if in.SampleRate > 0 {
					sampleRate = in.SampleRate
				}
			case "stop":
				writeJSON(s.exportFinal(sess.ID(), sess.Finalize()))
				return
			}
		}
	}

	// Disconnect without "stop": finalize the session and write the exports
	// as on the stop path; the final push is still attempted, and a write
	// error on the closed connection is only logged.
	writeJSON(s.exportFinal(sess.ID(), sess.Finalize()))
}

// decodeFloat32LE parses a little-endian float32 PCM frame per §6.
func decodeFloat32LE(data []byte) []float32 {
	n := len(data) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(data[i*4:])
		out[i] = math.Float32frombits(bits)
	}
	return out
}
