package voicelane

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"
)

// maxDispatchResponse bounds the webhook response body carried into
// transcripts and logs.
const maxDispatchResponse = 500

// DispatchResult is the outcome of a single webhook invocation. Failures are
// reported in-band, never as Go errors, so a broken webhook cannot abort the
// session that triggered it.
type DispatchResult struct {
	Success  bool   `json:"success"`
	Status   int    `json:"status,omitempty"`
	Response string `json:"response,omitempty"`
	Error    string `json:"error,omitempty"`
}

// AsError returns the result as a WebhookDispatchError, or nil on success.
func (r DispatchResult) AsError(url string) error {
	if r.Success {
		return nil
	}
	return &WebhookDispatchError{URL: url, Status: r.Status, Reason: r.Error}
}

// Dispatcher performs outbound webhook invocations. A tool call is a one-shot
// side effect; there are no retries, since repeating a POST could duplicate an
// external action such as a booking.
type Dispatcher struct {
	// HTTPClient is used for all invocations. Defaults to a client with a
	// 10 second timeout.
	HTTPClient *http.Client

	// Logger receives one event per invocation. Optional.
	Logger *Logger
}

// NewDispatcher creates a dispatcher with the default HTTP client.
func NewDispatcher(logger *Logger) *Dispatcher {
	return &Dispatcher{
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		Logger:     logger,
	}
}

// Invoke POSTs the JSON-encoded payload to url. Success is true iff the HTTP
// status is in [200,300). Network failures (DNS, timeout, connection refused)
// are caught and reported in the result.
func (d *Dispatcher) Invoke(ctx context.Context, url string, payload map[string]any) DispatchResult {
	body, err := json.Marshal(payload)
	if err != nil {
		return DispatchResult{Success: false, Error: "encode payload: " + err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return DispatchResult{Success: false, Error: "build request: " + err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")

	client := d.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	resp, err := client.Do(req)
	if err != nil {
		d.Logger.Warn("webhook_dispatch_failed", map[string]any{"url": url, "err": err})
		return DispatchResult{Success: false, Error: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxDispatchResponse+1))
	if err != nil {
		respBody = nil
	}

	result := DispatchResult{
		Success:  resp.StatusCode >= 200 && resp.StatusCode < 300,
		Status:   resp.StatusCode,
		Response: truncate(string(respBody), maxDispatchResponse),
	}
	if !result.Success {
		result.Error = "HTTP " + resp.Status
	}

	d.Logger.Info("webhook_dispatched", map[string]any{
		"url":     url,
		"status":  resp.StatusCode,
		"success": result.Success,
	})
	return result
}
