package manager

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// The failure taxonomy surfaced by this package. Neither the cache nor the
// invoker retries internally; every failure reaches the caller unmodified and
// there is no silent fallback between backends.

// interpreterNotFoundError: the configured interpreter path is absent or not
// executable. Checked before anything else.
type interpreterNotFoundError struct{ path string }

func (e interpreterNotFoundError) Error() string {
	return "interpreter not found or not executable: " + e.path
}
func (e interpreterNotFoundError) StatusCode() int { return http.StatusServiceUnavailable }

func ErrInterpreterNotFound(path string) error { return interpreterNotFoundError{path: path} }

func IsInterpreterNotFound(err error) bool {
	var t interpreterNotFoundError
	return errors.As(err, &t)
}

// scriptNotFoundError: a named invocation script is missing from the embedded
// set. Checked before spawn.
type scriptNotFoundError struct{ name string }

func (e scriptNotFoundError) Error() string  { return "script not found: " + e.name }
func (e scriptNotFoundError) StatusCode() int { return http.StatusInternalServerError }

func ErrScriptNotFound(name string) error { return scriptNotFoundError{name: name} }

func IsScriptNotFound(err error) bool {
	var t scriptNotFoundError
	return errors.As(err, &t)
}

// dependencyMissingError: a required external capability (a Python module)
// is not importable under the configured interpreter.
type dependencyMissingError struct {
	name string
	hint string
}

func (e dependencyMissingError) Error() string  { return "dependency missing: " + e.name }
func (e dependencyMissingError) StatusCode() int { return http.StatusServiceUnavailable }

// Hint returns an actionable install hint, e.g. "pip install parakeet-mlx".
func (e dependencyMissingError) Hint() string { return e.hint }

func ErrDependencyMissing(name, hint string) error {
	return dependencyMissingError{name: name, hint: hint}
}

func IsDependencyMissing(err error) bool {
	var t dependencyMissingError
	return errors.As(err, &t)
}

// DependencyHint extracts the install hint from a dependencyMissingError, if any.
func DependencyHint(err error) string {
	var t dependencyMissingError
	if errors.As(err, &t) {
		return t.hint
	}
	return ""
}

// timedOutError: the process did not finish within its configured bound.
type timedOutError struct{ limit time.Duration }

func (e timedOutError) Error() string {
	return fmt.Sprintf("timed out after %.0fs: try a shorter recording or reduce system load", e.limit.Seconds())
}
func (e timedOutError) StatusCode() int { return http.StatusGatewayTimeout }

func ErrTimedOut(limit time.Duration) error { return timedOutError{limit: limit} }

func IsTimedOut(err error) bool {
	var t timedOutError
	return errors.As(err, &t)
}

// processFailedError: the process exited abnormally and stderr matched no
// known missing-capability marker.
type processFailedError struct{ detail string }

func (e processFailedError) Error() string  { return "process failed: " + e.detail }
func (e processFailedError) StatusCode() int { return http.StatusBadGateway }

func ErrProcessFailed(detail string) error { return processFailedError{detail: detail} }

func IsProcessFailed(err error) bool {
	var t processFailedError
	return errors.As(err, &t)
}

// invalidResponseError: the process exited cleanly but produced nothing the
// JSON contract can parse.
type invalidResponseError struct{ detail string }

func (e invalidResponseError) Error() string  { return "invalid response: " + e.detail }
func (e invalidResponseError) StatusCode() int { return http.StatusBadGateway }

func ErrInvalidResponse(detail string) error { return invalidResponseError{detail: detail} }

func IsInvalidResponse(err error) bool {
	var t invalidResponseError
	return errors.As(err, &t)
}

// operationFailedError: the script ran to completion and reported
// success=false with its own error text.
type operationFailedError struct{ detail string }

func (e operationFailedError) Error() string  { return "operation failed: " + e.detail }
func (e operationFailedError) StatusCode() int { return http.StatusUnprocessableEntity }

func ErrOperationFailed(detail string) error { return operationFailedError{detail: detail} }

func IsOperationFailed(err error) bool {
	var t operationFailedError
	return errors.As(err, &t)
}

// loadFailedError: loading a warm in-process model failed. No cache entry is
// left behind.
type loadFailedError struct{ underlying error }

func (e loadFailedError) Error() string  { return "model load failed: " + e.underlying.Error() }
func (e loadFailedError) Unwrap() error  { return e.underlying }
func (e loadFailedError) StatusCode() int { return http.StatusInternalServerError }

func ErrLoadFailed(underlying error) error { return loadFailedError{underlying: underlying} }

func IsLoadFailed(err error) bool {
	var t loadFailedError
	return errors.As(err, &t)
}

// emptyResultError: inference finished but produced no text.
type emptyResultError struct{}

func (emptyResultError) Error() string  { return "inference produced an empty result" }
func (emptyResultError) StatusCode() int { return http.StatusUnprocessableEntity }

func ErrEmptyResult() error { return emptyResultError{} }

func IsEmptyResult(err error) bool {
	var t emptyResultError
	return errors.As(err, &t)
}

// backendNotFoundError: a requested backend id is not in the registry.
type backendNotFoundError struct{ id string }

func (e backendNotFoundError) Error() string  { return "backend not found: " + e.id }
func (e backendNotFoundError) StatusCode() int { return http.StatusNotFound }

func ErrBackendNotFound(id string) error { return backendNotFoundError{id: id} }

func IsBackendNotFound(err error) bool {
	var t backendNotFoundError
	return errors.As(err, &t)
}
