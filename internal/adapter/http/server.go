package http

import (
	"net/http"

	"github.com/soyoonlab/notare/internal/adapter/http/middleware"
	"github.com/soyoonlab/notare/internal/observability"
	"github.com/soyoonlab/notare/internal/port"
)

type Server struct {
	mux      *http.ServeMux
	handlers *Handlers
}

func NewServer(queue TranscriptionQueue, blobs port.BlobStore, originalBucket string, maxSizeMB int) *Server {
	mux := http.NewServeMux()
	handlers := NewHandlers(queue, blobs, originalBucket, maxSizeMB)

	s := &Server{
		mux:      mux,
		handlers: handlers,
	}

	s.registerRoutes()

	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /v1/tracks/analyze", s.handlers.Analyze())
	s.mux.HandleFunc("GET /v1/tracks/status/{job_id}", s.handlers.Status())
	s.mux.HandleFunc("GET /healthz", s.handlers.Health())
	s.mux.Handle("GET /metrics", observability.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	middleware.SecurityHeaders(middleware.CORS(s.mux)).ServeHTTP(w, r)
}
