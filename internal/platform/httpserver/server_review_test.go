package httpserver

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	reviewconsensus "github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service"
	"github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/domain/entities"
	reviewhttp "github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/transport/http"
)

func newTestServer() *Server {
	doc := entities.Document{
		DocumentID: "D1",
		Title:      "Aspirin",
		Sentences: []entities.Sentence{{
			Index: 0,
			Text:  "Aspirin relieves headache in adults.",
			Assertions: []entities.Assertion{{AssertionContent: entities.AssertionContent{
				Subject: "Aspirin", SubjectType: "phsu", Predicate: "TREATS", Object: "headache", ObjectType: "sosy",
			}}},
		}},
	}
	return New(reviewconsensus.NewInMemoryModule([]entities.Document{doc}, nil), nil, ":0")
}

func doRequest(server *Server, method string, path string, body string, userID string, role string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set("X-User-Id", userID)
	}
	if role != "" {
		req.Header.Set("X-User-Role", role)
	}
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	return rr
}

func acquireKey(t *testing.T, server *Server, userID string) string {
	t.Helper()
	rr := doRequest(server, http.MethodPost, "/api/v1/tasks/acquire", "", userID, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var resp reviewhttp.AcquireTaskResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode acquire: %v", err)
	}
	if resp.Document == nil {
		t.Fatalf("expected a document for %s", userID)
	}
	return resp.Document.Sentences[0].Assertions[0].AssertionKey
}

func TestAcquireRequiresUser(t *testing.T) {
	server := newTestServer()
	rr := doRequest(server, http.MethodPost, "/api/v1/tasks/acquire", "", "", "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d body=%s", rr.Code, rr.Body.String())
	}
	var body reviewhttp.ErrorResponse
	_ = json.Unmarshal(rr.Body.Bytes(), &body)
	if body.Code != "auth_required" {
		t.Fatalf("expected auth_required, got %q", body.Code)
	}
}

func TestAcquireReturnsNoMoreTasksWhenCorpusIsLeased(t *testing.T) {
	server := newTestServer()
	acquireKey(t, server, "r1")

	rr := doRequest(server, http.MethodPost, "/api/v1/tasks/acquire", "", "r2", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"no_more_tasks":true`) {
		t.Fatalf("expected no_more_tasks, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestRenewWithoutLeaseIsConflict(t *testing.T) {
	server := newTestServer()
	rr := doRequest(server, http.MethodPost, "/api/v1/tasks/D1/renew", "", "r1", "")
	if rr.Code != http.StatusConflict || !strings.Contains(rr.Body.String(), "lease_expired") {
		t.Fatalf("expected 409 lease_expired, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestReleaseIsAlwaysOK(t *testing.T) {
	server := newTestServer()
	for i := 0; i < 2; i++ {
		rr := doRequest(server, http.MethodPost, "/api/v1/tasks/D1/release", "", "r1", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
		}
	}
}

func TestSubmitValidationFailureReturnsViolations(t *testing.T) {
	server := newTestServer()
	key := acquireKey(t, server, "r1")

	rr := doRequest(server, http.MethodPost, "/api/v1/tasks/D1/submit",
		`{"decisions":[{"assertion_key":"`+key+`","action":"uncertain"}]}`, "r1", "")
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d body=%s", rr.Code, rr.Body.String())
	}
	var body reviewhttp.ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Code != "validation_failed" || len(body.Violations) == 0 || body.Violations[0].Code != "comment_required" {
		t.Fatalf("unexpected violations %+v", body)
	}

	ok := doRequest(server, http.MethodPost, "/api/v1/tasks/D1/submit",
		`{"decisions":[{"assertion_key":"`+key+`","action":"uncertain","comment":"hedged"}]}`, "r1", "")
	if ok.Code != http.StatusOK || !strings.Contains(ok.Body.String(), `"status":"ok"`) {
		t.Fatalf("expected 200, got %d body=%s", ok.Code, ok.Body.String())
	}
}

func TestSubmitRejectsMalformedJSON(t *testing.T) {
	server := newTestServer()
	rr := doRequest(server, http.MethodPost, "/api/v1/tasks/D1/submit", `{"decisions":`, "r1", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestArbitrationRoutesRequireAdmin(t *testing.T) {
	server := newTestServer()
	for _, tc := range []struct {
		method string
		path   string
		body   string
	}{
		{http.MethodGet, "/api/v1/arbitration/queue", ""},
		{http.MethodPost, "/api/v1/arbitration/decide", `{"document_id":"D1","assertion_key":"k","decision":"accept"}`},
		{http.MethodGet, "/api/v1/export/consensus", ""},
		{http.MethodPost, "/api/v1/export/snapshot", `{"confirm":true}`},
		{http.MethodGet, "/api/v1/admin/leases", ""},
		{http.MethodGet, "/api/v1/admin/stats", ""},
		{http.MethodGet, "/api/v1/arbitration/history?document_id=D1&assertion_key=k", ""},
		{http.MethodPost, "/api/v1/admin/documents/import", `{"documents":[]}`},
	} {
		rr := doRequest(server, tc.method, tc.path, tc.body, "r1", "reviewer")
		if rr.Code != http.StatusForbidden {
			t.Fatalf("%s %s: expected 403, got %d body=%s", tc.method, tc.path, rr.Code, rr.Body.String())
		}
	}
}

func TestQueueRejectsInvalidParameters(t *testing.T) {
	server := newTestServer()
	rr := doRequest(server, http.MethodGet, "/api/v1/arbitration/queue?only_conflicts=maybe", "", "admin", "admin")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body=%s", rr.Code, rr.Body.String())
	}
	rr = doRequest(server, http.MethodGet, "/api/v1/arbitration/queue?limit=-1", "", "admin", "admin")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestDisagreementFlowOverHTTP(t *testing.T) {
	server := newTestServer()
	key := acquireKey(t, server, "r1")
	rr := doRequest(server, http.MethodPost, "/api/v1/tasks/D1/submit",
		`{"decisions":[{"assertion_key":"`+key+`","action":"accept"}]}`, "r1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("r1 submit: %d body=%s", rr.Code, rr.Body.String())
	}
	acquireKey(t, server, "r2")
	rr = doRequest(server, http.MethodPost, "/api/v1/tasks/D1/submit",
		`{"decisions":[{"assertion_key":"`+key+`","action":"reject","comment":"overstated"}]}`, "r2", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("r2 submit: %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doRequest(server, http.MethodGet, "/api/v1/arbitration/queue", "", "admin", "admin")
	var queue reviewhttp.QueueResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &queue); err != nil || queue.Summary.Conflicts != 1 {
		t.Fatalf("expected one conflict, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doRequest(server, http.MethodPost, "/api/v1/arbitration/decide",
		`{"document_id":"D1","assertion_key":"`+key+`","decision":"reject","comment":"Not supported."}`, "admin", "admin")
	if rr.Code != http.StatusOK {
		t.Fatalf("decide: %d body=%s", rr.Code, rr.Body.String())
	}
	rr = doRequest(server, http.MethodPost, "/api/v1/arbitration/decide",
		`{"document_id":"D1","assertion_key":"`+key+`","decision":"accept"}`, "admin", "admin")
	if rr.Code != http.StatusConflict || !strings.Contains(rr.Body.String(), "already_arbitrated") {
		t.Fatalf("expected 409 already_arbitrated, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doRequest(server, http.MethodGet, "/api/v1/export/consensus", "", "admin", "admin")
	if rr.Code != http.StatusOK || rr.Header().Get("Content-Type") != "application/x-ndjson" {
		t.Fatalf("export: %d headers=%v", rr.Code, rr.Header())
	}
	scanner := bufio.NewScanner(bytes.NewReader(rr.Body.Bytes()))
	lines := 0
	for scanner.Scan() {
		lines++
		if !strings.Contains(scanner.Text(), `"final_status":"reject"`) || !strings.Contains(scanner.Text(), `"basis":"arbitration"`) {
			t.Fatalf("unexpected export line %s", scanner.Text())
		}
	}
	if lines != 1 {
		t.Fatalf("expected one exported line, got %d", lines)
	}
}

func TestArbitrationHistoryAndStatsOverHTTP(t *testing.T) {
	server := newTestServer()
	key := acquireKey(t, server, "r1")
	rr := doRequest(server, http.MethodPost, "/api/v1/tasks/D1/submit",
		`{"decisions":[{"assertion_key":"`+key+`","action":"reject","comment":"wrong subject"}]}`, "r1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("r1 submit: %d body=%s", rr.Code, rr.Body.String())
	}
	acquireKey(t, server, "r2")
	rr = doRequest(server, http.MethodPost, "/api/v1/tasks/D1/submit",
		`{"decisions":[{"assertion_key":"`+key+`","action":"accept"}]}`, "r2", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("r2 submit: %d body=%s", rr.Code, rr.Body.String())
	}

	historyPath := "/api/v1/arbitration/history?document_id=D1&assertion_key=" + key
	rr = doRequest(server, http.MethodGet, historyPath, "", "admin", "admin")
	var history reviewhttp.ArbitrationHistoryResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &history); err != nil || rr.Code != http.StatusOK || len(history.History) != 0 {
		t.Fatalf("expected empty history, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doRequest(server, http.MethodGet, "/api/v1/admin/stats", "", "admin", "admin")
	var stats reviewhttp.AdminStatsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &stats); err != nil || rr.Code != http.StatusOK {
		t.Fatalf("stats: %d body=%s", rr.Code, rr.Body.String())
	}
	if stats.TotalDocuments != 1 || stats.ReviewedDocuments != 1 || stats.OpenConflicts != 1 || stats.Arbitrations != 0 {
		t.Fatalf("unexpected stats before ruling %+v", stats)
	}

	rr = doRequest(server, http.MethodPost, "/api/v1/arbitration/decide",
		`{"document_id":"D1","assertion_key":"`+key+`","decision":"modify","comment":"subject corrected"}`, "admin", "admin")
	if rr.Code != http.StatusOK {
		t.Fatalf("decide: %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doRequest(server, http.MethodGet, historyPath, "", "admin", "admin")
	history = reviewhttp.ArbitrationHistoryResponse{}
	if err := json.Unmarshal(rr.Body.Bytes(), &history); err != nil || len(history.History) != 1 {
		t.Fatalf("expected one history entry, got %d body=%s", rr.Code, rr.Body.String())
	}
	if entry := history.History[0]; entry.Action != "arbitrate" || entry.Decision != "modify" || entry.ActorID != "admin" {
		t.Fatalf("unexpected history entry %+v", entry)
	}

	rr = doRequest(server, http.MethodGet, "/api/v1/admin/stats", "", "admin", "admin")
	stats = reviewhttp.AdminStatsResponse{}
	if err := json.Unmarshal(rr.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.OpenConflicts != 0 || stats.Arbitrations != 1 || stats.TotalReviewers != 2 || stats.ReviewedRatio != 100 {
		t.Fatalf("unexpected stats after ruling %+v", stats)
	}

	rr = doRequest(server, http.MethodGet, "/api/v1/arbitration/history?document_id=D1", "", "admin", "admin")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without assertion_key, got %d body=%s", rr.Code, rr.Body.String())
	}
	rr = doRequest(server, http.MethodGet, "/api/v1/arbitration/history?document_id=D1&assertion_key=nope", "", "admin", "admin")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown assertion, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestSnapshotRequiresConfirmation(t *testing.T) {
	server := newTestServer()
	rr := doRequest(server, http.MethodPost, "/api/v1/export/snapshot", `{"confirm":false}`, "admin", "admin")
	if rr.Code != http.StatusBadRequest || !strings.Contains(rr.Body.String(), "confirmation_required") {
		t.Fatalf("expected 400 confirmation_required, got %d body=%s", rr.Code, rr.Body.String())
	}
	rr = doRequest(server, http.MethodPost, "/api/v1/export/snapshot", `{"confirm":true}`, "admin", "admin")
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestImportAcceptsJSONLines(t *testing.T) {
	server := newTestServer()
	body := `{"document_id":"D2","sentences":[{"sentence_index":0,"sentence":"Statins lower cholesterol.","assertions":[]}]}
{broken
`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/documents/import", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-ndjson")
	req.Header.Set("X-User-Id", "admin")
	req.Header.Set("X-User-Role", "admin")
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var resp reviewhttp.ImportDocumentsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode import: %v", err)
	}
	if resp.Imported != 1 || resp.Failed != 1 || resp.Errors[0].Position != 2 {
		t.Fatalf("unexpected import response %+v", resp)
	}
}

func TestVocabularyAndOpsEndpoints(t *testing.T) {
	server := newTestServer()
	rr := doRequest(server, http.MethodGet, "/api/v1/meta/vocab", "", "", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"TREATS"`) {
		t.Fatalf("vocab: %d body=%s", rr.Code, rr.Body.String())
	}
	rr = doRequest(server, http.MethodGet, "/healthz", "", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rr.Code)
	}
	rr = doRequest(server, http.MethodGet, "/metrics", "", "", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "review_http_requests_total") {
		t.Fatalf("metrics: %d body=%s", rr.Code, rr.Body.String())
	}
}
