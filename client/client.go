// Package client is a Go SDK for the review consensus HTTP API. Requests are
// rate limited, retried with jittered exponential backoff on transient
// failures, and carry the caller's identity headers.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	reviewhttp "github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/transport/http"
)

// ErrNetworkTransient reports that retries were exhausted on network failures
// or 5xx/429 responses. The operation may or may not have been applied.
var ErrNetworkTransient = errors.New("review api temporarily unreachable")

// Sentinels matched by APIError through errors.Is.
var (
	ErrAuthRequired        = errors.New("auth_required")
	ErrForbidden           = errors.New("forbidden")
	ErrLeaseExpired        = errors.New("lease_expired")
	ErrLeaseUnavailable    = errors.New("lease_unavailable")
	ErrValidationFailed    = errors.New("validation_failed")
	ErrConflictNotFound    = errors.New("conflict_not_found")
	ErrAlreadyArbitrated   = errors.New("already_arbitrated")
	ErrIdempotencyConflict = errors.New("idempotency_conflict")
	ErrNotFound            = errors.New("not_found")
	ErrConfirmRequired     = errors.New("confirmation_required")
)

var codeSentinels = map[string]error{
	"auth_required":         ErrAuthRequired,
	"forbidden":             ErrForbidden,
	"lease_expired":         ErrLeaseExpired,
	"lease_unavailable":     ErrLeaseUnavailable,
	"validation_failed":     ErrValidationFailed,
	"conflict_not_found":    ErrConflictNotFound,
	"already_arbitrated":    ErrAlreadyArbitrated,
	"idempotency_conflict":  ErrIdempotencyConflict,
	"document_not_found":    ErrNotFound,
	"assertion_not_found":   ErrNotFound,
	"confirmation_required": ErrConfirmRequired,
}

// APIError is a non-retryable error response from the server.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Violations []reviewhttp.ViolationResponse
}

func (e *APIError) Error() string {
	return fmt.Sprintf("review api %d %s: %s", e.StatusCode, e.Code, e.Message)
}

func (e *APIError) Is(target error) bool {
	sentinel, ok := codeSentinels[e.Code]
	return ok && sentinel == target
}

type Options struct {
	HTTPClient *http.Client
	UserID     string
	// Role is sent as X-User-Role; use "admin" for admin routes.
	Role string
	// RequestsPerSecond and Burst bound the outgoing request rate. Zero
	// RequestsPerSecond disables limiting.
	RequestsPerSecond float64
	Burst             int
	// MaxRetries caps retries per call; zero leaves only MaxElapsed.
	MaxRetries int
	// MaxElapsed bounds the total retry time of one call.
	MaxElapsed      time.Duration
	InitialInterval time.Duration
	Logger          *slog.Logger
}

type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	userID     string
	role       string
	limiter    *rate.Limiter
	maxRetries int
	maxElapsed time.Duration
	initial    time.Duration
	logger     *slog.Logger
}

func New(baseURL string, opts Options) (*Client, error) {
	parsed, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", baseURL)
	}
	if strings.TrimSpace(opts.UserID) == "" {
		return nil, errors.New("user id is required")
	}
	c := &Client{
		baseURL:    parsed,
		httpClient: opts.HTTPClient,
		userID:     strings.TrimSpace(opts.UserID),
		role:       strings.TrimSpace(opts.Role),
		maxRetries: opts.MaxRetries,
		maxElapsed: opts.MaxElapsed,
		initial:    opts.InitialInterval,
		logger:     opts.Logger,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if c.maxElapsed <= 0 {
		c.maxElapsed = 30 * time.Second
	}
	if c.initial <= 0 {
		c.initial = 200 * time.Millisecond
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return c, nil
}

func (c *Client) AcquireTask(ctx context.Context) (reviewhttp.AcquireTaskResponse, error) {
	var resp reviewhttp.AcquireTaskResponse
	err := c.doJSON(ctx, http.MethodPost, "/api/v1/tasks/acquire", nil, nil, &resp)
	return resp, err
}

func (c *Client) GetTask(ctx context.Context, documentID string) (reviewhttp.TaskResponse, error) {
	var resp reviewhttp.TaskResponse
	err := c.doJSON(ctx, http.MethodGet, "/api/v1/tasks/"+url.PathEscape(documentID), nil, nil, &resp)
	return resp, err
}

func (c *Client) RenewLease(ctx context.Context, documentID string) (reviewhttp.RenewLeaseResponse, error) {
	var resp reviewhttp.RenewLeaseResponse
	err := c.doJSON(ctx, http.MethodPost, "/api/v1/tasks/"+url.PathEscape(documentID)+"/renew", nil, nil, &resp)
	return resp, err
}

func (c *Client) ReleaseLease(ctx context.Context, documentID string) (reviewhttp.ReleaseLeaseResponse, error) {
	var resp reviewhttp.ReleaseLeaseResponse
	err := c.doJSON(ctx, http.MethodPost, "/api/v1/tasks/"+url.PathEscape(documentID)+"/release", nil, nil, &resp)
	return resp, err
}

// SubmitReview sends one submission. An empty idempotencyKey is replaced by
// a fresh one that is reused across retries of this call, so a retried
// submit is never recorded twice.
func (c *Client) SubmitReview(
	ctx context.Context,
	documentID string,
	idempotencyKey string,
	req reviewhttp.SubmitReviewRequest,
) (reviewhttp.SubmitReviewResponse, error) {
	if strings.TrimSpace(idempotencyKey) == "" {
		idempotencyKey = uuid.NewString()
	}
	var resp reviewhttp.SubmitReviewResponse
	headers := http.Header{"Idempotency-Key": []string{idempotencyKey}}
	err := c.doJSON(ctx, http.MethodPost, "/api/v1/tasks/"+url.PathEscape(documentID)+"/submit", headers, req, &resp)
	return resp, err
}

type QueueOptions struct {
	DocumentID     string
	OnlyConflicts  *bool
	IncludePending bool
	Limit          int
}

func (c *Client) ListQueue(ctx context.Context, opts QueueOptions) (reviewhttp.QueueResponse, error) {
	values := url.Values{}
	if opts.DocumentID != "" {
		values.Set("document_id", opts.DocumentID)
	}
	if opts.OnlyConflicts != nil {
		values.Set("only_conflicts", strconv.FormatBool(*opts.OnlyConflicts))
	}
	if opts.IncludePending {
		values.Set("include_pending", "true")
	}
	if opts.Limit > 0 {
		values.Set("limit", strconv.Itoa(opts.Limit))
	}
	path := "/api/v1/arbitration/queue"
	if encoded := values.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var resp reviewhttp.QueueResponse
	err := c.doJSON(ctx, http.MethodGet, path, nil, nil, &resp)
	return resp, err
}

func (c *Client) DecideArbitration(ctx context.Context, req reviewhttp.DecideArbitrationRequest) (reviewhttp.DecideArbitrationResponse, error) {
	var resp reviewhttp.DecideArbitrationResponse
	err := c.doJSON(ctx, http.MethodPost, "/api/v1/arbitration/decide", nil, req, &resp)
	return resp, err
}

func (c *Client) DocumentFinal(ctx context.Context, documentID string) (reviewhttp.DocumentFinalResponse, error) {
	var resp reviewhttp.DocumentFinalResponse
	err := c.doJSON(ctx, http.MethodGet, "/api/v1/documents/"+url.PathEscape(documentID)+"/final", nil, nil, &resp)
	return resp, err
}

func (c *Client) ExportSnapshot(ctx context.Context, confirm bool) (reviewhttp.SnapshotResponse, error) {
	var resp reviewhttp.SnapshotResponse
	err := c.doJSON(ctx, http.MethodPost, "/api/v1/export/snapshot", nil, reviewhttp.ExportSnapshotRequest{Confirm: confirm}, &resp)
	return resp, err
}

func (c *Client) ListSnapshots(ctx context.Context) (reviewhttp.SnapshotListResponse, error) {
	var resp reviewhttp.SnapshotListResponse
	err := c.doJSON(ctx, http.MethodGet, "/api/v1/export/snapshots", nil, nil, &resp)
	return resp, err
}

func (c *Client) ListLeases(ctx context.Context) (reviewhttp.LeaseListResponse, error) {
	var resp reviewhttp.LeaseListResponse
	err := c.doJSON(ctx, http.MethodGet, "/api/v1/admin/leases", nil, nil, &resp)
	return resp, err
}

// ArbitrationHistory lists the admin rulings recorded for one assertion.
func (c *Client) ArbitrationHistory(ctx context.Context, documentID string, assertionKey string) (reviewhttp.ArbitrationHistoryResponse, error) {
	values := url.Values{}
	values.Set("document_id", documentID)
	values.Set("assertion_key", assertionKey)
	var resp reviewhttp.ArbitrationHistoryResponse
	err := c.doJSON(ctx, http.MethodGet, "/api/v1/arbitration/history?"+values.Encode(), nil, nil, &resp)
	return resp, err
}

func (c *Client) AdminStats(ctx context.Context) (reviewhttp.AdminStatsResponse, error) {
	var resp reviewhttp.AdminStatsResponse
	err := c.doJSON(ctx, http.MethodGet, "/api/v1/admin/stats", nil, nil, &resp)
	return resp, err
}

func (c *Client) Vocabulary(ctx context.Context) (reviewhttp.VocabularyResponse, error) {
	var resp reviewhttp.VocabularyResponse
	err := c.doJSON(ctx, http.MethodGet, "/api/v1/meta/vocab", nil, nil, &resp)
	return resp, err
}

// ImportJSONL uploads a JSONL corpus. The payload is buffered so it can be
// resent on retry; import merges by key, so a resend is harmless.
func (c *Client) ImportJSONL(ctx context.Context, r io.Reader) (reviewhttp.ImportDocumentsResponse, error) {
	payload, err := io.ReadAll(r)
	if err != nil {
		return reviewhttp.ImportDocumentsResponse{}, fmt.Errorf("read import payload: %w", err)
	}
	var resp reviewhttp.ImportDocumentsResponse
	err = c.do(ctx, http.MethodPost, "/api/v1/admin/documents/import",
		http.Header{"Content-Type": []string{"application/x-ndjson"}}, payload,
		func(body io.Reader) error { return json.NewDecoder(body).Decode(&resp) })
	return resp, err
}

// ExportConsensus streams the JSONL export into w. Retries stop once the
// first byte has been copied, since w cannot be rewound.
func (c *Client) ExportConsensus(ctx context.Context, w io.Writer) (int64, error) {
	var written int64
	err := c.do(ctx, http.MethodGet, "/api/v1/export/consensus", nil, nil, func(body io.Reader) error {
		n, err := io.Copy(w, body)
		written += n
		if err != nil && n > 0 {
			return fmt.Errorf("export stream interrupted after %d bytes: %v", n, err)
		}
		return err
	})
	return written, err
}

func (c *Client) doJSON(ctx context.Context, method string, path string, headers http.Header, body any, out any) error {
	var payload []byte
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		payload = encoded
		if headers == nil {
			headers = http.Header{}
		}
		headers.Set("Content-Type", "application/json")
	}
	return c.do(ctx, method, path, headers, payload, func(r io.Reader) error {
		if out == nil {
			return nil
		}
		return json.NewDecoder(r).Decode(out)
	})
}

func (c *Client) do(
	ctx context.Context,
	method string,
	path string,
	headers http.Header,
	payload []byte,
	handle func(io.Reader) error,
) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.initial
	policy.MaxElapsedTime = c.maxElapsed
	policy.RandomizationFactor = 0.5
	var strategy backoff.BackOff = policy
	if c.maxRetries > 0 {
		strategy = backoff.WithMaxRetries(strategy, uint64(c.maxRetries))
	}

	attempt := 0
	operation := func() error {
		attempt++
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}
		req, err := c.newRequest(ctx, method, path, headers, payload)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return transientError{cause: err}
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			_, _ = io.Copy(io.Discard, resp.Body)
			return transientError{cause: fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)}
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(decodeAPIError(resp))
		}
		if err := handle(resp.Body); err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) || errors.Is(err, io.ErrUnexpectedEOF) {
				return transientError{cause: err}
			}
			return backoff.Permanent(fmt.Errorf("read %s %s response: %w", method, path, err))
		}
		return nil
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("review api call retrying",
			"event", "review_client_retry",
			"module", "client",
			"layer", "sdk",
			"method", method,
			"path", path,
			"attempt", attempt,
			"wait", wait.String(),
			"error", err.Error(),
		)
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(strategy, ctx), notify)
	var transient transientError
	if errors.As(err, &transient) {
		return fmt.Errorf("%w: %s %s after %d attempts: %v", ErrNetworkTransient, method, path, attempt, transient.cause)
	}
	return err
}

func (c *Client) newRequest(ctx context.Context, method string, path string, headers http.Header, payload []byte) (*http.Request, error) {
	target := c.baseURL.String() + path
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for key, values := range headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	req.Header.Set("X-User-Id", c.userID)
	if c.role != "" {
		req.Header.Set("X-User-Role", c.role)
	}
	return req, nil
}

func decodeAPIError(resp *http.Response) error {
	var body reviewhttp.ErrorResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err := json.Unmarshal(raw, &body); err != nil || body.Code == "" {
		return &APIError{StatusCode: resp.StatusCode, Code: "http_" + strconv.Itoa(resp.StatusCode), Message: strings.TrimSpace(string(raw))}
	}
	return &APIError{StatusCode: resp.StatusCode, Code: body.Code, Message: body.Message, Violations: body.Violations}
}

type transientError struct {
	cause error
}

func (e transientError) Error() string {
	return e.cause.Error()
}

func (e transientError) Unwrap() error {
	return e.cause
}
