package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
)

// Kind is the failure taxonomy the rest of the system keys policy off:
// retry wrappers retry the transient kinds, the orchestrator treats the
// rest as permanent, and the HTTP boundary renders each kind's user-facing
// summary.
type Kind string

const (
	// KindSafety — the provider's safety filter rejected the prompt.
	KindSafety Kind = "safety"
	// KindRateLimit — the provider is throttling; retryable with backoff.
	KindRateLimit Kind = "rate-limit"
	// KindAuth — credentials missing or rejected.
	KindAuth Kind = "auth"
	// KindNetwork — transport-level failure; retryable.
	KindNetwork Kind = "network"
	// KindTimeout — the call exceeded its soft deadline; retryable.
	KindTimeout Kind = "timeout"
	// KindModelNotFound — the configured model does not exist upstream.
	KindModelNotFound Kind = "model-not-found"
	// KindServiceUnavailable — the backing daemon is down or still loading.
	KindServiceUnavailable Kind = "service-unavailable"
	// KindCancelled — the caller's context was cancelled.
	KindCancelled Kind = "cancelled"
	// KindUnknown — anything the classifier could not place.
	KindUnknown Kind = "unknown"
)

// Error is a classified provider failure. Message holds the raw cause text
// for logs; the boundary renders UserFacing instead of leaking it.
type Error struct {
	Kind     Kind
	Provider string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s provider: %s: %s", e.Provider, e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the retry wrapper may re-attempt the call.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindRateLimit, KindNetwork, KindTimeout:
		return true
	}
	return false
}

// UserFacing is the error summary the HTTP boundary returns to clients.
type UserFacing struct {
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
	HasDetails bool   `json:"hasDetails"`
	Details    string `json:"details,omitempty"`
}

// UserFacing renders the kind's summary plus the raw cause as details.
func (e *Error) UserFacing() UserFacing {
	uf := UserFacing{Details: e.Message, HasDetails: e.Message != ""}
	switch e.Kind {
	case KindSafety:
		uf.Message = "The prompt was rejected by a safety filter."
		uf.Suggestion = "Rephrase the prompt to avoid content that safety filters block."
	case KindRateLimit:
		uf.Message = "The provider is rate limiting requests."
		uf.Suggestion = "Wait a moment and submit the job again."
	case KindAuth:
		uf.Message = "The provider rejected the configured credentials."
		uf.Suggestion = "Check the provider API keys in the environment."
	case KindNetwork:
		uf.Message = "Could not reach the provider."
		uf.Suggestion = "Check that the model services are running and reachable."
	case KindTimeout:
		uf.Message = "The provider call timed out."
		uf.Suggestion = "Try again, or reduce n and iterations to shorten the run."
	case KindModelNotFound:
		uf.Message = "The configured model was not found."
		uf.Suggestion = "Check the model name in the service configuration."
	case KindServiceUnavailable:
		uf.Message = "The backing service is unavailable."
		uf.Suggestion = "Start the service and wait for it to become healthy."
	case KindCancelled:
		uf.Message = "The job was cancelled."
	default:
		uf.Message = "The provider call failed."
	}
	return uf
}

// Pattern lists for message classification, matched lowercase.
var (
	safetyPatterns    = []string{"safety_violations", "safety"}
	rateLimitPatterns = []string{"429", "rate_limit", "rate limit", "quota"}
	authPatterns      = []string{"401", "unauthorized", "invalid api key", "authentication"}
	modelPatterns     = []string{"model not found", "404 model", "model_not_found"}
	unavailPatterns   = []string{"503", "service unavailable"}
	networkPatterns   = []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"no such host",
		"network is unreachable",
	}
	timeoutPatterns = []string{"timeout", "timed out", "deadline exceeded"}
)

// Classify maps a raw error from a provider call to a typed *Error.
// Already-classified errors pass through unchanged, context errors map to
// cancelled/timeout, transport errors to network, and everything else is
// matched against the message patterns above. Unmatched errors are
// KindUnknown, which is not retryable.
func Classify(provider string, err error) *Error {
	if err == nil {
		return nil
	}
	var perr *Error
	if errors.As(err, &perr) {
		return perr
	}

	wrap := func(kind Kind) *Error {
		return &Error{Kind: kind, Provider: provider, Message: err.Error(), Err: err}
	}

	if errors.Is(err, context.Canceled) {
		return wrap(KindCancelled)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return wrap(KindTimeout)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return wrap(KindTimeout)
		}
		return wrap(KindNetwork)
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return wrap(KindNetwork)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, safetyPatterns):
		return wrap(KindSafety)
	case containsAny(msg, rateLimitPatterns):
		return wrap(KindRateLimit)
	case containsAny(msg, authPatterns):
		return wrap(KindAuth)
	case containsAny(msg, modelPatterns):
		return wrap(KindModelNotFound)
	case containsAny(msg, unavailPatterns):
		return wrap(KindServiceUnavailable)
	case containsAny(msg, networkPatterns):
		return wrap(KindNetwork)
	case containsAny(msg, timeoutPatterns):
		return wrap(KindTimeout)
	}
	return wrap(KindUnknown)
}

func containsAny(msg string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
