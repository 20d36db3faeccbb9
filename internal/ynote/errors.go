package ynote

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/imroc/req/v3"
)

var (
	// ErrAuth means the session cookies are missing, expired or rejected.
	// Every later call would fail the same way.
	ErrAuth = errors.New("ynote: not authenticated")
	// ErrNetwork covers transport failures, timeouts and server side errors.
	ErrNetwork = errors.New("ynote: network error")
	// ErrFormat means the server rejected the request shape or returned a
	// body that could not be parsed.
	ErrFormat = errors.New("ynote: format error")
	// ErrNotFound is returned for unknown file or directory ids.
	ErrNotFound = errors.New("ynote: not found")

	ErrNoCookies = fmt.Errorf("%w: cookies file has no cookies", ErrAuth)
	ErrNoCSTK    = fmt.Errorf("%w: YNOTE_CSTK cookie missing", ErrAuth)
	ErrNoBaseURL = errors.New("ynote: base url missing")
)

// error codes returned in the "error" field of a response body
const (
	CodeNotLoggedIn    = "207"
	CodeSessionExpired = "1007"
	CodeDuplicateDir   = "20108"
)

// APIError carries what the server said about a failed call.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"error"`
	Message string `json:"message"`
	kind    error
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status %d code %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status %d: %s", e.Status, e.Message)
}

// Unwrap exposes the error kind so errors.Is(err, ErrAuth) works.
func (e *APIError) Unwrap() error {
	return e.kind
}

// handleAPIError classifies a finished request. It returns nil when the
// response is a success and carries no error code.
func handleAPIError(resp *req.Response, requestErr error, operation string) error {
	if requestErr != nil {
		return fmt.Errorf("%s: %w: %w", operation, ErrNetwork, requestErr)
	}

	status := resp.GetStatusCode()
	body := resp.Bytes()
	apiErr := parseAPIError(status, body)

	if resp.IsErrorState() || status >= http.StatusMultipleChoices {
		if apiErr == nil {
			apiErr = &APIError{Status: status, Message: truncate(string(body), 200)}
		}
		apiErr.kind = kindOf(status, apiErr.Code)
		return fmt.Errorf("%s: %w", operation, apiErr)
	}

	// a 200 can still carry an error code
	if apiErr != nil && apiErr.Code != "" && apiErr.Code != "0" {
		apiErr.kind = kindOf(status, apiErr.Code)
		return fmt.Errorf("%s: %w", operation, apiErr)
	}

	return nil
}

func kindOf(status int, code string) error {
	switch code {
	case CodeNotLoggedIn, CodeSessionExpired:
		return ErrAuth
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrAuth
	case status == http.StatusNotFound:
		return ErrNotFound
	case status >= http.StatusInternalServerError:
		return ErrNetwork
	default:
		return ErrFormat
	}
}

// parseAPIError reads {"error": ..., "message": ...} bodies. The error code is
// sent as a string by some endpoints and as a number by others.
func parseAPIError(status int, body []byte) *APIError {
	if len(body) == 0 || body[0] != '{' {
		return nil
	}

	var raw struct {
		Error   any    `json:"error"`
		Message string `json:"message"`
	}
	if err := jsonUnmarshal(body, &raw); err != nil || raw.Error == nil {
		return nil
	}

	var code string
	switch v := raw.Error.(type) {
	case string:
		code = v
	case float64:
		code = fmt.Sprintf("%.0f", v)
	default:
		code = fmt.Sprint(v)
	}
	return &APIError{Status: status, Code: code, Message: raw.Message}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
