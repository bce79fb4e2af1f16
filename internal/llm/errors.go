package llm

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrInvalidSchema marks a response that is not JSON or does not match the analysis schema.
var ErrInvalidSchema = errors.New("response does not match analysis schema")

// ProviderError is a failed backend call.
type ProviderError struct {
	Provider   string
	StatusCode int
	Permanent  bool
	Err        error
}

func (e *ProviderError) Error() string {
	kind := "transient"
	if e.Permanent {
		kind = "permanent"
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s %s failure (status %d): %v", e.Provider, kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s failure: %v", e.Provider, kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsPermanent reports whether retrying err cannot succeed (bad credentials, malformed request).
func IsPermanent(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Permanent
}

// PermanentStatus classifies HTTP status codes. Rate limits, timeouts and server errors are transient.
func PermanentStatus(code int) bool {
	switch code {
	case http.StatusBadRequest,
		http.StatusUnauthorized,
		http.StatusPaymentRequired,
		http.StatusForbidden,
		http.StatusNotFound,
		http.StatusMethodNotAllowed,
		http.StatusRequestEntityTooLarge,
		http.StatusUnprocessableEntity:
		return true
	}
	return false
}
