package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"readingsurvey/internal/logger"
	"readingsurvey/internal/model"
)

// Allocator is what the session machine needs from the allocation service
type Allocator interface {
	RequestAssignment(ctx context.Context, participantCode string) (*model.Assignment, error)
	Submit(ctx context.Context, payload interface{}) (*model.SubmitResult, error)
}

// AllocationClient talks to the remote allocation/submission endpoint.
// It never retries; the participant retries by repeating the action.
type AllocationClient struct {
	assignURL  string
	submitURL  string
	httpClient *http.Client
	log        *logger.Logger
}

// NewAllocationClient creates a client. Timeouts are whatever httpClient has.
func NewAllocationClient(assignURL, submitURL string, httpClient *http.Client, log *logger.Logger) *AllocationClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if submitURL == "" {
		submitURL = assignURL
	}
	return &AllocationClient{
		assignURL:  assignURL,
		submitURL:  submitURL,
		httpClient: httpClient,
		log:        log.With("component", "allocation_client"),
	}
}

// assignmentReply tolerates ids sent as numbers
type assignmentReply struct {
	TextID       json.RawMessage `json:"text_id"`
	Topic        string          `json:"topic"`
	AllocationID json.RawMessage `json:"allocation_id"`
}

func (c *AllocationClient) doRequest(ctx context.Context, method, target, contentType string, body io.Reader) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Error("allocation request failed", "method", method, "error", err)
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response body: %w", err)
	}
	c.log.Debug("allocation response", "method", method, "status", resp.StatusCode, "bytes", len(respBody))
	return resp.StatusCode, respBody, nil
}

// RequestAssignment asks the service for the next text. The participant code
// is omitted from the query when empty (prefetch before consent).
func (c *AllocationClient) RequestAssignment(ctx context.Context, participantCode string) (*model.Assignment, error) {
	target, err := url.Parse(c.assignURL)
	if err != nil {
		return nil, &model.AssignmentError{Message: "invalid allocation url", Err: err}
	}
	q := target.Query()
	if participantCode != "" {
		q.Set("participant_code", participantCode)
	}
	target.RawQuery = q.Encode()

	status, body, err := c.doRequest(ctx, http.MethodGet, target.String(), "", nil)
	if err != nil {
		return nil, &model.AssignmentError{Message: "assignment request failed", Err: err}
	}
	if !isSuccess(status) {
		return nil, &model.AssignmentError{Message: fmt.Sprintf("assignment request failed (HTTP %d)", status)}
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &model.AssignmentError{Message: "invalid JSON response from server", Err: err}
	}
	if msg, ok := serverError(raw); ok {
		c.log.Warn("allocation refused", "participant_code", participantCode, "reason", msg)
		return nil, &model.AssignmentError{Message: msg}
	}

	var reply assignmentReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return nil, &model.AssignmentError{Message: "unexpected assignment shape", Err: err}
	}
	textID := rawID(reply.TextID)
	if textID == "" {
		return nil, &model.AssignmentError{Message: "assignment has no text_id"}
	}

	a := &model.Assignment{
		TextID:       textID,
		Topic:        reply.Topic,
		AllocationID: rawID(reply.AllocationID),
	}
	c.log.Info("text assigned", "participant_code", participantCode, "text_id", a.TextID, "allocation_id", a.AllocationID)
	return a, nil
}

// Submit posts payload as JSON under a text/plain content type so browsers
// skip the CORS pre-flight; the endpoint parses the body as JSON regardless.
func (c *AllocationClient) Submit(ctx context.Context, payload interface{}) (*model.SubmitResult, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, &model.SubmitError{Message: "failed to encode payload", Err: err}
	}

	status, body, err := c.doRequest(ctx, http.MethodPost, c.submitURL, "text/plain;charset=utf-8", bytes.NewReader(data))
	if err != nil {
		return nil, &model.SubmitError{Message: "submission request failed", Err: err}
	}
	if !isSuccess(status) {
		msg := strings.TrimSpace(fmt.Sprintf("Submission failed (HTTP %d). %s", status, string(body)))
		return nil, &model.SubmitError{Message: msg}
	}

	// any JSON value acknowledges; only an object with a truthy error refuses
	var raw interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		msg := strings.TrimSpace("Invalid JSON response from server. " + string(body))
		return nil, &model.SubmitError{Message: msg, Err: err}
	}
	if obj, ok := raw.(map[string]interface{}); ok {
		if msg, refused := serverError(obj); refused {
			return nil, &model.SubmitError{Message: msg}
		}
	}
	return &model.SubmitResult{Raw: raw}, nil
}

func isSuccess(status int) bool {
	return status >= 200 && status <= 299
}

// serverError reports a truthy "error" member
func serverError(raw map[string]interface{}) (string, bool) {
	v, ok := raw["error"]
	if !ok || v == nil {
		return "", false
	}
	switch e := v.(type) {
	case string:
		return e, e != ""
	case bool:
		return "server reported an error", e
	case float64:
		return fmt.Sprint(e), e != 0
	}
	return fmt.Sprint(v), true
}

func rawID(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" || strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[") {
		return ""
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str
	}
	return s
}
