package models

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds surfaced to callers. Every caller-visible error carries a
// machine-readable kind alongside its message.
const (
	KindValidation         = "validation_error"
	KindModelUnavailable   = "model_unavailable"
	KindModelTimeout       = "model_timeout"
	KindAllModelsFailed    = "all_models_failed"
	KindNoAvailableModels  = "no_available_models"
	KindAnalyzerUnavailable = "analyzer_unavailable"
	KindRequestStopped     = "request_stopped"
)

// Kinder is implemented by errors that expose a machine-readable kind.
type Kinder interface {
	Kind() string
}

// ErrorKind extracts the machine-readable kind from an error chain,
// returning "internal_error" when no typed error is present.
func ErrorKind(err error) string {
	var k Kinder
	if errors.As(err, &k) {
		return k.Kind()
	}
	return "internal_error"
}

// ValidationError rejects a malformed request before any side effects.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid request: %s: %s", e.Field, e.Reason)
}

// Kind implements Kinder.
func (e *ValidationError) Kind() string { return KindValidation }

// ModelUnavailableError marks a single model as unusable for this request.
// Absorbed by the coordinator, never surfaced alone.
type ModelUnavailableError struct {
	ModelID string
	Cause   error
}

func (e *ModelUnavailableError) Error() string {
	return fmt.Sprintf("model %s unavailable: %v", e.ModelID, e.Cause)
}

func (e *ModelUnavailableError) Unwrap() error { return e.Cause }

// Kind implements Kinder.
func (e *ModelUnavailableError) Kind() string { return KindModelUnavailable }

// ModelTimeoutError marks a single model call that exceeded its timeout.
type ModelTimeoutError struct {
	ModelID string
	Budget  string
}

func (e *ModelTimeoutError) Error() string {
	return fmt.Sprintf("model %s timed out after %s", e.ModelID, e.Budget)
}

// Kind implements Kinder.
func (e *ModelTimeoutError) Kind() string { return KindModelTimeout }

// AllModelsFailedError is terminal: every selected model failed and no
// synthesis was attempted. Carries per-model diagnostics.
type AllModelsFailedError struct {
	RequestID string
	Failures  map[string]string
}

func (e *AllModelsFailedError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for id, reason := range e.Failures {
		parts = append(parts, id+": "+reason)
	}
	return fmt.Sprintf("all models failed for request %s [%s]", e.RequestID, strings.Join(parts, "; "))
}

// Kind implements Kinder.
func (e *AllModelsFailedError) Kind() string { return KindAllModelsFailed }

// NoAvailableModelsError is terminal: selection ran with zero enabled models.
type NoAvailableModelsError struct {
	RequestID string
}

func (e *NoAvailableModelsError) Error() string {
	return fmt.Sprintf("no models available for request %s", e.RequestID)
}

// Kind implements Kinder.
func (e *NoAvailableModelsError) Kind() string { return KindNoAvailableModels }

// RequestStoppedError is terminal: the caller stopped the request before
// synthesis, so no response exists.
type RequestStoppedError struct {
	RequestID string
}

func (e *RequestStoppedError) Error() string {
	return fmt.Sprintf("request %s stopped by caller", e.RequestID)
}

// Kind implements Kinder.
func (e *RequestStoppedError) Kind() string { return KindRequestStopped }

// AnalyzerUnavailableError is internal to the meta-orchestrator; it is
// downgraded to a rule-based fallback and never surfaced to callers.
type AnalyzerUnavailableError struct {
	Cause error
}

func (e *AnalyzerUnavailableError) Error() string {
	return fmt.Sprintf("context analyzer unavailable: %v", e.Cause)
}

func (e *AnalyzerUnavailableError) Unwrap() error { return e.Cause }

// Kind implements Kinder.
func (e *AnalyzerUnavailableError) Kind() string { return KindAnalyzerUnavailable }
