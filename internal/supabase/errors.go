package supabase

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrConfig     = errors.New("supabase config error")
	ErrConnection = errors.New("supabase connection error")
)

// ConfigError reports missing or malformed client credentials.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return e.Reason
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrConfig
}

// ConnectionError wraps a transport failure talking to the store.
type ConnectionError struct {
	Endpoint string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect to %s: %s", e.Endpoint, e.Err)
}

func (e *ConnectionError) Is(target error) bool {
	return target == ErrConnection
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// APIError is a non-2xx answer from the REST endpoint, in PostgREST shape.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details"`
	Hint       string `json:"hint"`
}

func (e *APIError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "supabase api error [%d]", e.StatusCode)
	if e.Code != "" {
		fmt.Fprintf(&sb, " %s", e.Code)
	}
	if e.Message != "" {
		fmt.Fprintf(&sb, ": %s", e.Message)
	}
	if e.Details != "" {
		fmt.Fprintf(&sb, " (%s)", e.Details)
	}
	return sb.String()
}

func decodeAPIError(statusCode int, body []byte) *APIError {
	apiErr := &APIError{}
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Message == "" {
		// not a PostgREST error body (e.g. gateway html page)
		apiErr = &APIError{Message: strings.TrimSpace(string(body))}
	}
	apiErr.StatusCode = statusCode
	return apiErr
}
