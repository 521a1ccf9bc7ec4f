// Package web is the service's outer surface: websocket audio ingestion,
// the live transcript event stream, and the start/stop control endpoints.
package web

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"math"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hear.town/config"
	"hear.town/hub"
	"hear.town/metrics"
	"hear.town/session"
	"hear.town/snd"
)

type Handler struct {
	ctrl     *session.Controller
	store    *session.Store
	bus      *hub.Hub
	cfg      *config.Config
	mets     *metrics.Metrics
	gatherer prometheus.Gatherer
	logger   *log.Logger
	upgrader websocket.Upgrader
}

func NewHandler(
	ctrl *session.Controller,
	store *session.Store,
	bus *hub.Hub,
	cfg *config.Config,
	mets *metrics.Metrics,
	gatherer prometheus.Gatherer,
	logger *log.Logger,
) *Handler {
	return &Handler{
		ctrl:     ctrl,
		store:    store,
		bus:      bus,
		cfg:      cfg,
		mets:     mets,
		gatherer: gatherer,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1 << 16,
			WriteBufferSize: 1 << 10,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Router assembles the chi router with the standard middleware stack.
func (h *Handler) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/", h.handleIndex)
	r.Get("/ws", h.handleIngest)
	r.Get("/events", h.handleEvents)
	r.Post("/start", h.handleStart)
	r.Post("/stop", h.handleStop)
	r.Method(http.MethodGet, "/metrics",
		promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	return r
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (h *Handler) handleStart(w http.ResponseWriter, _ *http.Request) {
	status := h.ctrl.Start()
	writeJSON(w, map[string]any{"ok": true, "status": status})
}

func (h *Handler) handleStop(w http.ResponseWriter, r *http.Request) {
	status, final := h.ctrl.Stop(r.Context())
	writeJSON(w, map[string]any{"ok": true, "status": status, "final": final})
}

// handleEvents is the long-lived transcript stream. Every listener gets
// an immediate keep-alive comment so the transport proves itself before
// any data event arrives.
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	l := h.bus.Register()
	defer func() {
		h.bus.Remove(l)
		h.mets.Listeners.Set(float64(h.bus.Len()))
	}()
	h.mets.Listeners.Set(float64(h.bus.Len()))

	io.WriteString(w, ":ok\n\n")
	flusher.Flush()

	for {
		select {
		case payload := <-l.C:
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

type helloMessage struct {
	Op         string `json:"op"`
	SampleRate int    `json:"sampleRate"`
}

// handleIngest accepts one live audio connection: a text handshake fixing
// the source rate, then binary little-endian float32 mono frames until
// the peer goes away.
func (h *Handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade", "error", err)
		return
	}
	defer conn.Close()

	connID := uuid.NewString()
	logger := h.logger.With("conn", connID)
	logger.Info("mic connected")

	h.mets.Connections.Inc()
	defer h.mets.Connections.Dec()

	canonical := h.cfg.Audio.SampleRate
	srcRate := h.cfg.Audio.DefaultSourceRate
	resampler := h.newResampler(srcRate, canonical)
	gate := snd.NewGate(
		snd.NewEnergyDetector(h.cfg.Gate.Aggressiveness),
		canonical,
		h.cfg.Gate.FrameMillis,
		h.cfg.Gate.HangoverMillis,
	)
	handshaken := false

	h.bus.Publish(hub.StatusEvent("mic_connected"))

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}

		switch msgType {
		case websocket.TextMessage:
			// The source rate is fixed by the first valid handshake;
			// malformed handshakes are ignored, not fatal.
			if handshaken {
				continue
			}
			var hello helloMessage
			if json.Unmarshal(data, &hello) != nil {
				continue
			}
			if hello.Op != "hello" || hello.SampleRate <= 0 {
				continue
			}
			srcRate = hello.SampleRate
			resampler = h.newResampler(srcRate, canonical)
			handshaken = true
			logger.Debug("handshake", "sample_rate", srcRate)

		case websocket.BinaryMessage:
			samples := decodeFloat32LE(data)
			if len(samples) == 0 {
				continue
			}
			h.mets.FramesReceived.Inc()
			for _, frame := range gate.Feed(resampler.Process(samples)) {
				h.store.Append(frame)
				h.mets.SamplesVoiced.Add(float64(len(frame)))
			}
		}
	}

	logger.Info("mic disconnected", "voiced", gate.VoicedSeen())
	h.ctrl.FlushConnection(context.Background(), gate.VoicedSeen())
}

func (h *Handler) newResampler(in, out int) *snd.Resampler {
	if h.cfg.Audio.LinearResample {
		return snd.NewLinearResampler(in, out)
	}
	return snd.NewResampler(in, out)
}

// decodeFloat32LE reinterprets a binary frame as little-endian float32
// mono PCM. Trailing bytes that don't complete a sample are dropped.
func decodeFloat32LE(data []byte) []float32 {
	n := len(data) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out
}

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
	<meta charset="UTF-8">
	<title>hear.town</title>
</head>
<body>
	<h1>Live transcription</h1>
	<p>Session: {{.State}} &middot; {{.Listeners}} listener(s) &middot; {{printf "%.1f" .Buffered}}s buffered</p>
	<h2>Partial</h2>
	<p>{{.Partial}}</p>
	<h2>Final</h2>
	<p>{{.Final}}</p>
</body>
</html>
`))

func (h *Handler) handleIndex(w http.ResponseWriter, _ *http.Request) {
	state, partial, final := h.ctrl.StateSnapshot()
	data := struct {
		State     string
		Partial   string
		Final     string
		Listeners int
		Buffered  float64
	}{
		State:     state.String(),
		Partial:   partial,
		Final:     final,
		Listeners: h.bus.Len(),
		Buffered:  float64(h.store.RingSize()) / float64(h.cfg.Audio.SampleRate),
	}
	if err := indexTemplate.Execute(w, data); err != nil {
		h.logger.Error("render index", "error", err)
	}
}

// Serve runs the HTTP server until it fails.
func Serve(h *Handler, port int) error {
	h.logger.Info("http", "url", fmt.Sprintf("http://localhost:%d", port))
	return http.ListenAndServe(fmt.Sprintf(":%d", port), h.Router())
}
