// Package httpapi exposes the protocol over REST file upload and WebSocket
// streaming.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"scribe-mcp-gateway/internal/app"
	"scribe-mcp-gateway/internal/observability/metrics"
	"scribe-mcp-gateway/internal/service/pipeline"
	"scribe-mcp-gateway/internal/service/protocol"
)

const (
	defaultFileResultTimeout = 60 * time.Second
	defaultMaxUploadBytes    = 100 << 20
)

// Dependencies are the collaborators the transport drives.
type Dependencies struct {
	Handler           *protocol.Handler
	Pipeline          *pipeline.Service
	Metrics           *metrics.Metrics
	FileResultTimeout time.Duration
	MaxUploadBytes    int64
	// MaxChunkBytes rejects uploads the pipeline would skip. Zero means no limit.
	MaxChunkBytes int
}

// API serves the transport endpoints.
type API struct {
	app               *app.Application
	handler           *protocol.Handler
	pipeline          *pipeline.Service
	metrics           *metrics.Metrics
	fileResultTimeout time.Duration
	maxUploadBytes    int64
	maxChunkBytes     int
}

// NewRouter constructs the HTTP router for the service. application may be
// nil, in which case readiness always reports ready.
func NewRouter(application *app.Application, deps Dependencies) http.Handler {
	a := &API{
		app:               application,
		handler:           deps.Handler,
		pipeline:          deps.Pipeline,
		metrics:           deps.Metrics,
		fileResultTimeout: deps.FileResultTimeout,
		maxUploadBytes:    deps.MaxUploadBytes,
		maxChunkBytes:     deps.MaxChunkBytes,
	}
	if a.metrics == nil {
		a.metrics = metrics.DefaultMetrics
	}
	if a.fileResultTimeout <= 0 {
		a.fileResultTimeout = defaultFileResultTimeout
	}
	if a.maxUploadBytes <= 0 {
		a.maxUploadBytes = defaultMaxUploadBytes
	}

	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(otelhttp.NewMiddleware("scribe-mcp-gateway.http"))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	// Probe endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		if a.app != nil && !a.app.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	r.Post("/transcribe", a.transcribeFile)
	r.Get("/ws/transcribe", a.streamTranscribe)

	return r
}
