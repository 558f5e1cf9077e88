package llms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/stentorlabs/stentor/pkg/httpclient"
)

// maxErrorBody bounds how much of an error response body is read for
// the failure message.
const maxErrorBody = 4096

func newHTTPClient(timeout time.Duration, parser httpclient.RateLimitHeaderParser) *httpclient.Client {
	return httpclient.New(
		httpclient.WithHTTPClient(&http.Client{Timeout: timeout}),
		httpclient.WithMaxRetries(2),
		httpclient.WithBaseDelay(time.Second),
		httpclient.WithHeaderParser(parser),
	)
}

// postJSON marshals body, posts it, and returns the raw response bytes.
// Non-2xx statuses and transport failures come back as *ProviderError.
func postJSON(ctx context.Context, client *httpclient.Client, url string, headers map[string]string, body any, provider, model string) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &ProviderError{
			Provider: provider,
			Model:    model,
			Reason:   ReasonInvalidRequest,
			Message:  "marshal request",
			Err:      err,
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, &ProviderError{
			Provider: provider,
			Model:    model,
			Reason:   ReasonInvalidRequest,
			Message:  "build request",
			Err:      err,
		}
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil && resp == nil {
		return nil, transportError(err, provider, model)
	}
	defer func() { _ = resp.Body.Close() }()

	data, readErr := io.ReadAll(io.LimitReader(resp.Body, 10<<20))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError(resp.StatusCode, data, provider, model)
	}
	if readErr != nil {
		return nil, &ProviderError{
			Provider: provider,
			Model:    model,
			Reason:   ReasonTransport,
			Message:  "read response body",
			Err:      readErr,
		}
	}
	return data, nil
}

// transportError classifies an error from the HTTP client itself:
// context expiry, DNS failures, refused connections.
func transportError(err error, provider, model string) *ProviderError {
	reason := ReasonTransport
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		reason = ReasonTimeout
	case errors.Is(err, context.Canceled):
		reason = ReasonCancelled
	}
	return &ProviderError{
		Provider: provider,
		Model:    model,
		Reason:   reason,
		Err:      err,
	}
}

// statusError classifies a non-2xx response.
func statusError(status int, body []byte, provider, model string) *ProviderError {
	msg := apiErrorMessage(body)

	reason := reasonFromStatus(status)
	// Some endpoints report an unknown model as a 400 with a telltale
	// message instead of a 404.
	if reason == ReasonInvalidRequest && mentionsUnknownModel(msg) {
		reason = ReasonModelUnavailable
	}

	return &ProviderError{
		Provider:   provider,
		Model:      model,
		Reason:     reason,
		StatusCode: status,
		Message:    msg,
	}
}

func reasonFromStatus(status int) FailReason {
	switch {
	case status == http.StatusNotFound:
		return ReasonModelUnavailable
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ReasonAuth
	case status == http.StatusTooManyRequests:
		return ReasonRateLimit
	case status == http.StatusRequestTimeout:
		return ReasonTimeout
	case status >= 500:
		return ReasonServerError
	default:
		return ReasonInvalidRequest
	}
}

func mentionsUnknownModel(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "model") &&
		(strings.Contains(lower, "not found") ||
			strings.Contains(lower, "does not exist") ||
			strings.Contains(lower, "unknown"))
}

// apiErrorMessage digs the human-readable message out of an error body.
// Providers disagree on the envelope; try the common shapes and fall
// back to the raw text.
func apiErrorMessage(body []byte) string {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}

	var nested struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &nested); err == nil && nested.Error.Message != "" {
		return nested.Error.Message
	}

	var flat struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &flat); err == nil && flat.Error != "" {
		return flat.Error
	}

	return strings.TrimSpace(string(body))
}

// emptyResponseError is returned when a call succeeded on the wire but
// produced no assistant text.
func emptyResponseError(provider, model string) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Model:    model,
		Reason:   ReasonEmptyResponse,
		Message:  "response contained no assistant text",
	}
}

// pingURL issues a GET and treats any 2xx as alive.
func pingURL(ctx context.Context, client *httpclient.Client, url string, headers map[string]string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil && resp == nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("health probe: HTTP %d", resp.StatusCode)
	}
	return nil
}
