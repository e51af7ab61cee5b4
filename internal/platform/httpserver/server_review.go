package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	httpadapter "github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/adapters/http"
	"github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/application/queries"
	reviewerrors "github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/domain/errors"
	reviewhttp "github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/transport/http"
)

const (
	maxRequestBytes = 1 << 20
	maxImportBytes  = 64 << 20
)

func resolveActor(r *http.Request) httpadapter.Actor {
	return httpadapter.Actor{
		UserID:  strings.TrimSpace(r.Header.Get("X-User-Id")),
		IsAdmin: strings.EqualFold(strings.TrimSpace(r.Header.Get("X-User-Role")), "admin"),
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, target any) bool {
	body := http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(body).Decode(target); err != nil {
		writeReviewError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON", nil)
		return false
	}
	return true
}

func (s *Server) handleAcquireTask(w http.ResponseWriter, r *http.Request) {
	resp, err := s.review.Handler.AcquireTaskHandler(r.Context(), resolveActor(r))
	if err != nil {
		writeReviewDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	resp, err := s.review.Handler.GetTaskHandler(r.Context(), resolveActor(r), r.PathValue("document_id"))
	if err != nil {
		writeReviewDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRenewLease(w http.ResponseWriter, r *http.Request) {
	resp, err := s.review.Handler.RenewLeaseHandler(r.Context(), resolveActor(r), r.PathValue("document_id"))
	if err != nil {
		writeReviewDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReleaseLease(w http.ResponseWriter, r *http.Request) {
	resp, err := s.review.Handler.ReleaseLeaseHandler(r.Context(), resolveActor(r), r.PathValue("document_id"))
	if err != nil {
		writeReviewDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSubmitReview(w http.ResponseWriter, r *http.Request) {
	actor := resolveActor(r)
	if actor.UserID == "" {
		writeReviewDomainError(w, reviewerrors.ErrAuthRequired)
		return
	}
	var req reviewhttp.SubmitReviewRequest
	if !decodeJSON(w, r, maxRequestBytes, &req) {
		return
	}
	resp, err := s.review.Handler.SubmitReviewHandler(
		r.Context(),
		actor,
		r.PathValue("document_id"),
		strings.TrimSpace(r.Header.Get("Idempotency-Key")),
		req,
	)
	if err != nil {
		writeReviewDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListQueue(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	req := queries.DefaultListQueueQuery()
	req.DocumentID = strings.TrimSpace(query.Get("document_id"))

	var ok bool
	if req.OnlyConflicts, ok = parseBoolParam(w, query.Get("only_conflicts"), req.OnlyConflicts, "only_conflicts"); !ok {
		return
	}
	if req.IncludePending, ok = parseBoolParam(w, query.Get("include_pending"), req.IncludePending, "include_pending"); !ok {
		return
	}
	if limitRaw := query.Get("limit"); limitRaw != "" {
		limit, err := strconv.Atoi(limitRaw)
		if err != nil || limit < 0 {
			writeReviewError(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer", nil)
			return
		}
		req.Limit = limit
	}

	resp, err := s.review.Handler.ListQueueHandler(r.Context(), resolveActor(r), req)
	if err != nil {
		writeReviewDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func parseBoolParam(w http.ResponseWriter, raw string, fallback bool, name string) (bool, bool) {
	if strings.TrimSpace(raw) == "" {
		return fallback, true
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		writeReviewError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a boolean", nil)
		return false, false
	}
	return value, true
}

func (s *Server) handleDecideArbitration(w http.ResponseWriter, r *http.Request) {
	actor := resolveActor(r)
	if actor.UserID == "" {
		writeReviewDomainError(w, reviewerrors.ErrAuthRequired)
		return
	}
	var req reviewhttp.DecideArbitrationRequest
	if !decodeJSON(w, r, maxRequestBytes, &req) {
		return
	}
	resp, err := s.review.Handler.DecideArbitrationHandler(r.Context(), actor, req)
	if err != nil {
		writeReviewDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleArbitrationHistory(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	resp, err := s.review.Handler.ArbitrationHistoryHandler(
		r.Context(),
		resolveActor(r),
		query.Get("document_id"),
		query.Get("assertion_key"),
	)
	if err != nil {
		writeReviewDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDocumentFinal(w http.ResponseWriter, r *http.Request) {
	resp, err := s.review.Handler.DocumentFinalHandler(r.Context(), resolveActor(r), r.PathValue("document_id"))
	if err != nil {
		writeReviewDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleExportConsensus streams JSON lines. Authorization is checked before
// the status line is committed; failures after that are only logged.
func (s *Server) handleExportConsensus(w http.ResponseWriter, r *http.Request) {
	actor := resolveActor(r)
	switch {
	case actor.UserID == "":
		writeReviewDomainError(w, reviewerrors.ErrAuthRequired)
		return
	case !actor.IsAdmin:
		writeReviewDomainError(w, reviewerrors.ErrForbidden)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Trailer", "X-Record-Count")
	w.WriteHeader(http.StatusOK)
	count, err := s.review.Handler.ExportConsensusHandler(r.Context(), actor, w)
	w.Header().Set("X-Record-Count", strconv.Itoa(count))
	if err != nil {
		s.logger.Error("consensus export stream failed",
			"event", "review_export_stream_failed",
			"module", "internal/platform/httpserver",
			"layer", "platform",
			"admin_id", actor.UserID,
			"records_written", count,
			"error", err.Error(),
		)
	}
}

func (s *Server) handleExportSnapshot(w http.ResponseWriter, r *http.Request) {
	actor := resolveActor(r)
	if actor.UserID == "" {
		writeReviewDomainError(w, reviewerrors.ErrAuthRequired)
		return
	}
	var req reviewhttp.ExportSnapshotRequest
	if !decodeJSON(w, r, maxRequestBytes, &req) {
		return
	}
	resp, err := s.review.Handler.ExportSnapshotHandler(r.Context(), actor, req)
	if err != nil {
		writeReviewDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	resp, err := s.review.Handler.ListSnapshotsHandler(r.Context(), resolveActor(r))
	if err != nil {
		writeReviewDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListLeases(w http.ResponseWriter, r *http.Request) {
	resp, err := s.review.Handler.ListLeasesHandler(r.Context(), resolveActor(r))
	if err != nil {
		writeReviewDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	resp, err := s.review.Handler.AdminStatsHandler(r.Context(), resolveActor(r))
	if err != nil {
		writeReviewDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleImportDocuments accepts either a JSON body {documents:[...]} or an
// application/x-ndjson stream with one document per line.
func (s *Server) handleImportDocuments(w http.ResponseWriter, r *http.Request) {
	actor := resolveActor(r)
	if actor.UserID == "" {
		writeReviewDomainError(w, reviewerrors.ErrAuthRequired)
		return
	}
	if !actor.IsAdmin {
		writeReviewDomainError(w, reviewerrors.ErrForbidden)
		return
	}

	var (
		resp reviewhttp.ImportDocumentsResponse
		err  error
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-ndjson", "application/jsonl", "application/x-jsonlines":
		body := http.MaxBytesReader(w, r.Body, maxImportBytes)
		resp, err = s.review.Handler.ImportDocumentsJSONLHandler(r.Context(), actor, body)
	default:
		var req reviewhttp.ImportDocumentsRequest
		if !decodeJSON(w, r, maxImportBytes, &req) {
			return
		}
		resp, err = s.review.Handler.ImportDocumentsHandler(r.Context(), actor, req)
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeReviewError(w, http.StatusRequestEntityTooLarge, "payload_too_large", err.Error(), nil)
			return
		}
		writeReviewDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleVocabulary(w http.ResponseWriter, r *http.Request) {
	resp, err := s.review.Handler.VocabularyHandler(r.Context())
	if err != nil {
		writeReviewDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeReviewError(w http.ResponseWriter, status int, code string, message string, violations []reviewhttp.ViolationResponse) {
	writeJSON(w, status, reviewhttp.ErrorResponse{
		Code:       code,
		Message:    message,
		Violations: violations,
	})
}

func writeReviewDomainError(w http.ResponseWriter, err error) {
	var validation *reviewerrors.ValidationError
	switch {
	case errors.As(err, &validation):
		writeReviewError(w, http.StatusUnprocessableEntity, "validation_failed", err.Error(), httpadapter.MapViolations(validation.Violations))
	case errors.Is(err, reviewerrors.ErrAuthRequired):
		writeReviewError(w, http.StatusUnauthorized, "auth_required", "X-User-Id header is required", nil)
	case errors.Is(err, reviewerrors.ErrForbidden):
		writeReviewError(w, http.StatusForbidden, "forbidden", err.Error(), nil)
	case errors.Is(err, reviewerrors.ErrNoTaskAvailable):
		writeReviewError(w, http.StatusNotFound, "no_task_available", err.Error(), nil)
	case errors.Is(err, reviewerrors.ErrLeaseUnavailable):
		writeReviewError(w, http.StatusConflict, "lease_unavailable", err.Error(), nil)
	case errors.Is(err, reviewerrors.ErrLeaseExpired):
		writeReviewError(w, http.StatusConflict, "lease_expired", err.Error(), nil)
	case errors.Is(err, reviewerrors.ErrConflictNotFound):
		writeReviewError(w, http.StatusConflict, "conflict_not_found", err.Error(), nil)
	case errors.Is(err, reviewerrors.ErrAlreadyArbitrated):
		writeReviewError(w, http.StatusConflict, "already_arbitrated", err.Error(), nil)
	case errors.Is(err, reviewerrors.ErrIdempotencyKeyConflict):
		writeReviewError(w, http.StatusConflict, "idempotency_conflict", err.Error(), nil)
	case errors.Is(err, reviewerrors.ErrDocumentNotFound):
		writeReviewError(w, http.StatusNotFound, "document_not_found", err.Error(), nil)
	case errors.Is(err, reviewerrors.ErrAssertionNotFound):
		writeReviewError(w, http.StatusNotFound, "assertion_not_found", err.Error(), nil)
	case errors.Is(err, reviewerrors.ErrConfirmationRequired):
		writeReviewError(w, http.StatusBadRequest, "confirmation_required", err.Error(), nil)
	case errors.Is(err, reviewerrors.ErrInvalidRequest),
		errors.Is(err, reviewerrors.ErrInvalidDocument):
		writeReviewError(w, http.StatusBadRequest, "invalid_request", err.Error(), nil)
	case errors.Is(err, io.ErrUnexpectedEOF):
		writeReviewError(w, http.StatusBadRequest, "invalid_body", "request body ended unexpectedly", nil)
	default:
		writeReviewError(w, http.StatusInternalServerError, "internal_error", "internal server error", nil)
	}
}
