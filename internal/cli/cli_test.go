package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	reviewhttp "github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/transport/http"
)

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCommand(&stdout, &stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestVersion(t *testing.T) {
	out, _, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "curationctl")
}

func TestCommandsRequireUser(t *testing.T) {
	t.Setenv("CURATIONCTL_USER", "")
	_, _, err := run(t, "leases", "--server", "http://127.0.0.1:1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--user")
}

func TestImportReportsFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/admin/documents/import", r.URL.Path)
		assert.Equal(t, "ops@example.org", r.Header.Get("X-User-Id"))
		assert.Equal(t, "admin", r.Header.Get("X-User-Role"))
		_, _ = io.Copy(io.Discard, r.Body)
		_ = json.NewEncoder(w).Encode(reviewhttp.ImportDocumentsResponse{
			Imported: 1,
			Failed:   1,
			Errors:   []reviewhttp.ImportFailureDTO{{Position: 2, Message: "invalid json"}},
		})
	}))
	defer server.Close()

	corpus := filepath.Join(t.TempDir(), "corpus.jsonl")
	require.NoError(t, os.WriteFile(corpus, []byte("{\"document_id\":\"D1\"}\nnot json\n"), 0o600))

	out, errOut, err := run(t, "import", corpus, "--server", server.URL, "--user", "ops@example.org")
	require.Error(t, err)
	assert.Contains(t, out, "imported=1")
	assert.Contains(t, errOut, "line 2")
}

func TestExportSnapshotRequiresConfirm(t *testing.T) {
	_, _, err := run(t, "export", "snapshot", "--user", "ops")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--confirm")
}

func TestExportStreamWritesFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		_, _ = io.WriteString(w, "{\"document_id\":\"D1\"}\n")
	}))
	defer server.Close()

	target := filepath.Join(t.TempDir(), "consensus.jsonl")
	_, _, err := run(t, "export", "stream", "-o", target, "--server", server.URL, "--user", "ops")
	require.NoError(t, err)

	raw, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "{\"document_id\":\"D1\"}\n", string(raw))
}

func TestQueueDefaultsToConflictsOnly(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("only_conflicts"))
		_ = json.NewEncoder(w).Encode(reviewhttp.QueueResponse{
			Items: []reviewhttp.QueueItemResponse{{
				DocumentID:     "D1",
				AssertionKey:   "k1",
				Status:         "conflict",
				ConflictReason: "split_vote",
				Reviewers:      []string{"a", "b"},
			}},
			Summary: reviewhttp.QueueSummaryResponse{Total: 1, Conflicts: 1},
		})
	}))
	defer server.Close()

	out, _, err := run(t, "queue", "--server", server.URL, "--user", "ops")
	require.NoError(t, err)
	assert.Contains(t, out, "split_vote")
	assert.Contains(t, out, "total=1 conflicts=1")
}

func TestServerErrorIsReturned(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(reviewhttp.ErrorResponse{Code: "forbidden", Message: "admin role required"})
	}))
	defer server.Close()

	_, _, err := run(t, "leases", "--server", server.URL, "--user", "ops", "--role", "reviewer")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "forbidden")
}

func TestConfigShowRedactsDSN(t *testing.T) {
	path := filepath.Join(t.TempDir(), "review.yaml")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join([]string{
		"store_backend: postgres",
		"postgres_dsn: postgres://user:secret@db/review",
		"lease_ttl: 90s",
	}, "\n")), 0o600))

	out, errOut, err := run(t, "config", "show", "--file", path)
	require.NoError(t, err)
	assert.Contains(t, out, "<redacted>")
	assert.NotContains(t, out, "secret")
	assert.Contains(t, out, "lease_ttl: 1m30s")
	assert.Contains(t, errOut, path)
}

func TestHistoryPrintsRulings(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/arbitration/history", r.URL.Path)
		assert.Equal(t, "D1", r.URL.Query().Get("document_id"))
		assert.Equal(t, "k1", r.URL.Query().Get("assertion_key"))
		_ = json.NewEncoder(w).Encode(reviewhttp.ArbitrationHistoryResponse{
			DocumentID:   "D1",
			AssertionKey: "k1",
			History: []reviewhttp.DecisionEntryDTO{
				{ActorID: "admin-1", Action: "arbitrate", Decision: "modify", Comment: "subject corrected"},
			},
		})
	}))
	defer server.Close()

	out, _, err := run(t, "history", "D1", "k1", "--server", server.URL, "--user", "ops")
	require.NoError(t, err)
	assert.Contains(t, out, "admin-1")
	assert.Contains(t, out, "subject corrected")
}

func TestStatsPrintsJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/admin/stats", r.URL.Path)
		assert.Equal(t, "admin", r.Header.Get("X-User-Role"))
		_ = json.NewEncoder(w).Encode(reviewhttp.AdminStatsResponse{TotalDocuments: 3, OpenConflicts: 2})
	}))
	defer server.Close()

	out, _, err := run(t, "stats", "--server", server.URL, "--user", "ops")
	require.NoError(t, err)
	assert.Contains(t, out, `"total_documents": 3`)
	assert.Contains(t, out, `"open_conflicts": 2`)
}
