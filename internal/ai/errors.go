package ai

import (
	"errors"
	"fmt"
)

// ErrAllCredentialsExhausted is returned when every configured credential
// failed once for the same request.
var ErrAllCredentialsExhausted = errors.New("all credentials exhausted")

// ErrNoCredentials is returned when a rotation policy is built without keys.
var ErrNoCredentials = errors.New("no credentials configured")

// MalformedResponseError reports a successful HTTP exchange whose body did not
// carry the expected fields.
type MalformedResponseError struct {
	Reason string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed LLM response: %s", e.Reason)
}

// StatusError is a non-2xx answer from a remote API.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}
