package shared

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// maxBodyBytes caps how much of a response body we read; quota payloads
// are small and a misbehaving endpoint must not balloon memory.
const maxBodyBytes = 1 << 20

// ErrAuth marks a response that means the credential is no longer valid.
var ErrAuth = errors.New("authentication rejected")

// ErrForbidden marks an entitlement denial: the credential is fine but
// the account is not allowed to use the service.
var ErrForbidden = errors.New("access forbidden")

// HTTPError carries a non-2xx response for classification by the caller.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, body)
}

func StatusOf(err error) int {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode
	}
	return 0
}

// Retryable reports whether the failure is worth another attempt against
// the same endpoint: transport errors, 5xx, and 429.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAuth) || errors.Is(err, ErrForbidden) {
		return false
	}
	if code := StatusOf(err); code != 0 {
		return code == http.StatusTooManyRequests || code >= 500
	}
	// No HTTP status at all means the request never completed.
	return !errors.Is(err, context.Canceled)
}

func NewJSONRequest(ctx context.Context, method, url string, payload any) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// DoJSON executes the request and decodes a 2xx JSON body into out.
// Non-2xx responses come back as *HTTPError, with 401 additionally
// wrapping ErrAuth so callers can trigger a token refresh.
func DoJSON(client *http.Client, req *http.Request, out any) error {
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		he := &HTTPError{StatusCode: resp.StatusCode, Body: string(data)}
		if resp.StatusCode == http.StatusUnauthorized {
			return fmt.Errorf("%w: %w", ErrAuth, he)
		}
		return he
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
