package tunnel

import (
	"errors"
	"fmt"
	"strings"
)

// Tunnel errors. Precondition and activation failures are fatal for the
// in-flight transition and surfaced to the caller.
var (
	ErrMissingConfig    = errors.New("tunnel missing config")
	ErrNotAuthorized    = errors.New("VPN not authorized")
	ErrUnableToStartVPN = errors.New("unable to start VPN service")
	ErrTunCreation      = errors.New("failed to create tunnel interface")
	ErrActivation       = errors.New("tunnel activation failed")
	ErrNotLoaded        = errors.New("native library not loaded")
)

// errorResultPrefix is the backend's string convention for failures.
const errorResultPrefix = "Error:"

// BackendError wraps a backend-reported result string with call context.
type BackendError struct {
	Op     string
	Result string
	Err    error
}

func (e *BackendError) Error() string {
	if e.Result != "" {
		return fmt.Sprintf("backend %s: %s", e.Op, e.Result)
	}
	return fmt.Sprintf("backend %s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// ResultError converts a backend result string into an error when it carries
// the "Error:" prefix, and nil otherwise.
func ResultError(op, result string) error {
	if strings.HasPrefix(result, errorResultPrefix) {
		return &BackendError{Op: op, Result: result}
	}
	return nil
}

// IsBackendError checks whether err is a backend-reported error.
func IsBackendError(err error) bool {
	var be *BackendError
	return errors.As(err, &be)
}
