package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	reviewconsensus "github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service"

	_ "github.com/FreddieTree/manual-review-sub000/internal/platform/httpserver/docs"
	httpSwagger "github.com/swaggo/http-swagger"
)

type Server struct {
	mux     *http.ServeMux
	handler http.Handler
	logger  *slog.Logger
	addr    string
	metrics *Metrics
	review  reviewconsensus.Module
	httpSrv *http.Server
}

func New(review reviewconsensus.Module, logger *slog.Logger, addr string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{
		mux:     http.NewServeMux(),
		logger:  logger,
		addr:    addr,
		metrics: NewMetrics(),
		review:  review,
	}
	s.registerRoutes()
	s.handler = s.metrics.Middleware(s.mux)
	s.httpSrv = &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the instrumented router.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) Start() error {
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)
	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests. Called before Start, it makes Start
// return immediately.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server stopping",
		"event", "http_server_stopping",
		"module", "internal/platform/httpserver",
		"layer", "platform",
	)
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
	s.mux.Handle("GET /metrics", s.metrics.Handler())
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)

	s.mux.HandleFunc("POST /api/v1/tasks/acquire", s.handleAcquireTask)
	s.mux.HandleFunc("GET /api/v1/tasks/{document_id}", s.handleGetTask)
	s.mux.HandleFunc("POST /api/v1/tasks/{document_id}/renew", s.handleRenewLease)
	s.mux.HandleFunc("POST /api/v1/tasks/{document_id}/release", s.handleReleaseLease)
	s.mux.HandleFunc("POST /api/v1/tasks/{document_id}/submit", s.handleSubmitReview)

	s.mux.HandleFunc("GET /api/v1/arbitration/queue", s.handleListQueue)
	s.mux.HandleFunc("POST /api/v1/arbitration/decide", s.handleDecideArbitration)
	s.mux.HandleFunc("GET /api/v1/arbitration/history", s.handleArbitrationHistory)

	s.mux.HandleFunc("GET /api/v1/documents/{document_id}/final", s.handleDocumentFinal)

	s.mux.HandleFunc("GET /api/v1/export/consensus", s.handleExportConsensus)
	s.mux.HandleFunc("POST /api/v1/export/snapshot", s.handleExportSnapshot)
	s.mux.HandleFunc("GET /api/v1/export/snapshots", s.handleListSnapshots)

	s.mux.HandleFunc("GET /api/v1/admin/leases", s.handleListLeases)
	s.mux.HandleFunc("GET /api/v1/admin/stats", s.handleAdminStats)
	s.mux.HandleFunc("POST /api/v1/admin/documents/import", s.handleImportDocuments)

	s.mux.HandleFunc("GET /api/v1/meta/vocab", s.handleVocabulary)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
