// Package apierr implements predictd's error taxonomy and a shared JSON
// response helper, factoring the per-handler
// writeJSON(w, status, map[string]string{"error": ...}) pattern each
// route file would otherwise repeat inline into one place, since the
// endpoint count here makes that worth factoring once.
package apierr

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

// Kind is one of the error taxonomy's buckets.
type Kind int

const (
	KindBadRequest Kind = iota
	KindNotFound
	KindUnavailable
	KindScanError
	KindFatal
)

// Error is an apierr-classified error carrying an HTTP status.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// Status returns the conventional HTTP status code for the error's Kind.
func (e *Error) Status() int {
	switch e.Kind {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindUnavailable:
		return http.StatusServiceUnavailable
	case KindScanError:
		// ScanError never reaches an HTTP boundary by design: it is logged
		// and the scan continues. Mapped here only so a caller that does
		// propagate one gets a sane status.
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// BadRequest builds a KindBadRequest error: missing or malformed parameters.
func BadRequest(msg string) *Error { return &Error{Kind: KindBadRequest, Message: msg} }

// NotFound builds a KindNotFound error: unknown project or file.
func NotFound(msg string) *Error { return &Error{Kind: KindNotFound, Message: msg} }

// Unavailable builds a KindUnavailable error: KV unreachable or a feature
// module is missing/degraded.
func Unavailable(msg string, cause error) *Error {
	return &Error{Kind: KindUnavailable, Message: msg, cause: cause}
}

// ScanError builds a KindScanError error: a single file failed during
// indexing. Callers log and skip; it must never abort a scan.
func ScanError(msg string, cause error) *Error {
	return &Error{Kind: KindScanError, Message: msg, cause: cause}
}

// Fatal builds a KindFatal error: a startup configuration error
// (e.g. unreadable code root). Callers abort the process.
func Fatal(msg string, cause error) *Error {
	return &Error{Kind: KindFatal, Message: msg, cause: cause}
}

// WriteJSON writes v as a JSON response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteTimed marshals v to a JSON object and stamps it with the elapsed
// milliseconds since start under "ms", the convention every endpoint
// here follows so callers always get `{"ms": <elapsed>}` alongside the
// payload. v must marshal to a JSON object (a struct or map), not a bare
// array or scalar.
func WriteTimed(w http.ResponseWriter, status int, start time.Time, v any) {
	blob, err := json.Marshal(v)
	if err != nil {
		WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(blob, &fields); err != nil {
		WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "response payload must be a JSON object"})
		return
	}
	ms, _ := json.Marshal(float64(time.Since(start)) / float64(time.Millisecond))
	fields["ms"] = ms
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(fields)
}

// Write maps err to its taxonomy status and writes {"error": "<message>"}.
// Errors not wrapping *Error are treated as internal (500).
func Write(w http.ResponseWriter, err error) {
	var apiErr *Error
	status := http.StatusInternalServerError
	msg := err.Error()
	if errors.As(err, &apiErr) {
		status = apiErr.Status()
	}
	WriteJSON(w, status, map[string]string{"error": msg})
}
