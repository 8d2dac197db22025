package syncsvc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/DDownesK12Solutions/PIPSPlus-Sync-UI-sub000/internal/auth"
	"github.com/DDownesK12Solutions/PIPSPlus-Sync-UI-sub000/internal/version"
)

// Client talks to the sync service endpoints. It carries the caller's
// correlation id on every trigger so server-side idempotency holds across
// network retries.
type Client struct {
	baseURL string
	client  *http.Client
	tokens  auth.TokenSource
}

// New constructs a client for the given base URL.
func New(baseURL string, tokens auth.TokenSource) *Client {
	return NewWithTimeout(baseURL, tokens, 0)
}

// NewWithTimeout constructs a client with a per-request timeout. The
// trigger call is exempt: the service holds that request open for the
// lifetime of the run.
func NewWithTimeout(baseURL string, tokens auth.TokenSource, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		tokens:  tokens,
	}
}

// StartOptions carries the optional trigger parameters.
type StartOptions struct {
	EnqueueProvisioning bool
	EnqueueDebug        bool
	SkipIdempotency     bool
	IncludeDefaults     bool
	// Platform filters provisioning targets: "cloud", "onpremise", or ""
	// for all.
	Platform      string
	CorrelationID string
}

// TriggerOutcome is the non-error result of Start. Status is "accepted"
// or "cancelled"; callers must branch on it, both are valid completions.
type TriggerOutcome struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type triggerRequest struct {
	ClientID        string `json:"client_id"`
	Enqueue         bool   `json:"enqueue"`
	EnqueueDebug    bool   `json:"enqueue_debug"`
	SkipIdempotency bool   `json:"skip_idempotency"`
	IncludeDefaults bool   `json:"include_defaults"`
	Platform        string `json:"platform,omitempty"`
	CorrelationID   string `json:"correlation_id"`
}

type conflictDetail struct {
	Message       string `json:"message"`
	CorrelationID string `json:"correlationId"`
}

// Start triggers a sync run. The request stays open until the server-side
// run finishes, so the outcome doubles as a completion signal; the
// progress poller covers the window in between and any reconnected
// observers.
func (c *Client) Start(ctx context.Context, clientID, sourceOfTruth, entityType string, opts StartOptions) (TriggerOutcome, error) {
	payload, err := json.Marshal(triggerRequest{
		ClientID:        clientID,
		Enqueue:         opts.EnqueueProvisioning,
		EnqueueDebug:    opts.EnqueueDebug,
		SkipIdempotency: opts.SkipIdempotency,
		IncludeDefaults: opts.IncludeDefaults,
		Platform:        opts.Platform,
		CorrelationID:   opts.CorrelationID,
	})
	if err != nil {
		return TriggerOutcome{}, err
	}
	path := "/sync/" + url.PathEscape(sourceOfTruth) + "/" + url.PathEscape(entityType)
	body, status, err := c.do(ctx, http.MethodPost, path, payload, true)
	if err != nil {
		return TriggerOutcome{}, &TriggerError{Message: err.Error()}
	}
	switch {
	case status == http.StatusConflict:
		return TriggerOutcome{}, decodeConflict(body)
	case status < 200 || status > 299:
		return TriggerOutcome{}, decodeTriggerError(status, body)
	}
	var outcome TriggerOutcome
	if err := json.Unmarshal(body, &outcome); err != nil {
		return TriggerOutcome{}, &TriggerError{StatusCode: status, Message: fmt.Sprintf("unreadable trigger response: %v", err)}
	}
	if outcome.Status == "" {
		outcome.Status = "accepted"
	}
	return outcome, nil
}

// ProgressEvent is one line of the server-side run log. Timestamp is kept
// opaque: it doubles as the dedup key when the event carries no id.
type ProgressEvent struct {
	ID        string `json:"id,omitempty"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
}

// DedupKey returns the identifier used to drop events already observed.
func (e ProgressEvent) DedupKey() string {
	if e.ID != "" {
		return e.ID
	}
	return e.Timestamp
}

// Progress fetches the ordered progress log for a correlation id. A 404
// means the run has not emitted anything yet and returns an empty batch.
func (c *Client) Progress(ctx context.Context, correlationID string) ([]ProgressEvent, error) {
	body, status, err := c.do(ctx, http.MethodGet, "/sync/progress/"+url.PathEscape(correlationID), nil, false)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	if status < 200 || status > 299 {
		return nil, fmt.Errorf("progress fetch: http %d", status)
	}
	var events []ProgressEvent
	if err := json.Unmarshal(body, &events); err != nil {
		return nil, fmt.Errorf("progress fetch: %w", err)
	}
	return events, nil
}

// FinalStats fetches the post-run log record(s) for a client/correlation
// pair. The endpoint historically returns either a single object or an
// array; both decode to a slice here.
func (c *Client) FinalStats(ctx context.Context, clientID, correlationID string) ([]map[string]any, error) {
	path := "/sync/logs/" + url.PathEscape(clientID) + "/" + url.PathEscape(correlationID)
	body, status, err := c.do(ctx, http.MethodGet, path, nil, false)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	if status < 200 || status > 299 {
		return nil, fmt.Errorf("final stats fetch: http %d", status)
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var records []map[string]any
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, fmt.Errorf("final stats fetch: %w", err)
		}
		return records, nil
	}
	var record map[string]any
	if err := json.Unmarshal(trimmed, &record); err != nil {
		return nil, fmt.Errorf("final stats fetch: %w", err)
	}
	return []map[string]any{record}, nil
}

// Cancel requests cooperative cancellation of a run. The body is ignored
// beyond success; the authoritative cancelled state arrives through the
// progress stream.
func (c *Client) Cancel(ctx context.Context, correlationID string) error {
	_, status, err := c.do(ctx, http.MethodPost, "/sync/cancel/"+url.PathEscape(correlationID), nil, false)
	if err != nil {
		return err
	}
	if status < 200 || status > 299 {
		return fmt.Errorf("cancel request: http %d", status)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte, unbounded bool) ([]byte, int, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, 0, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", version.Version)
	if c.tokens != nil {
		token, err := c.tokens.Token()
		if err != nil {
			return nil, 0, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	httpClient := c.client
	if unbounded && httpClient.Timeout != 0 {
		clone := *httpClient
		clone.Timeout = 0
		httpClient = &clone
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

// decodeConflict maps a 409 body into an AlreadyRunningError. The detail
// field is either a structured object or a bare string.
func decodeConflict(body []byte) error {
	var structured struct {
		Detail conflictDetail `json:"detail"`
	}
	if err := json.Unmarshal(body, &structured); err == nil &&
		(structured.Detail.Message != "" || structured.Detail.CorrelationID != "") {
		return &AlreadyRunningError{
			Message:       structured.Detail.Message,
			CorrelationID: structured.Detail.CorrelationID,
		}
	}
	var plain struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &plain); err == nil && plain.Detail != "" {
		return &AlreadyRunningError{Message: plain.Detail}
	}
	return &AlreadyRunningError{}
}

func decodeTriggerError(status int, body []byte) error {
	var plain struct {
		Detail  string `json:"detail"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &plain); err == nil {
		for _, candidate := range []string{plain.Detail, plain.Message, plain.Error} {
			if candidate != "" {
				return &TriggerError{StatusCode: status, Message: candidate}
			}
		}
	}
	return &TriggerError{StatusCode: status, Message: http.StatusText(status)}
}
