package newsagg

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrUpstreamRejected means a provider answered with a non-success status.
	ErrUpstreamRejected = errors.New("upstream rejected the request")
	// ErrUpstreamUnreachable means no response was received from a provider.
	ErrUpstreamUnreachable = errors.New("no response received")
	// ErrRequestSetupFailed means the outbound request could not be built or sent.
	ErrRequestSetupFailed = errors.New("request setup failed")
	// ErrAllProvidersFailed means every provider of a race fetch failed.
	ErrAllProvidersFailed = errors.New("all providers failed")
	// ErrUnsupportedCacheBackend means the configured cache backend is not recognized.
	ErrUnsupportedCacheBackend = errors.New("cache type not supported")
	// ErrArticleNotFound means no cached article matched the given id.
	ErrArticleNotFound = errors.New("article not found")
)

// UpstreamError is a classified failure of one provider.
type UpstreamError struct {
	Provider   string
	Kind       error // ErrUpstreamRejected, ErrUpstreamUnreachable or ErrRequestSetupFailed
	StatusCode int   // set for ErrUpstreamRejected
	Body       string
	Err        error
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	switch {
	case errors.Is(e.Kind, ErrUpstreamRejected):
		if e.Body != "" {
			return fmt.Sprintf("%s API Error: http %d: %s", e.Provider, e.StatusCode, e.Body)
		}
		return fmt.Sprintf("%s API Error: http %d", e.Provider, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s API Error: %s: %s", e.Provider, e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s API Error: %s", e.Provider, e.Kind)
	}
}

// Unwrap returns the failure kind and the underlying cause.
func (e *UpstreamError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// AllProvidersFailedError aggregates one error per failed provider.
type AllProvidersFailedError struct {
	Errors []error
}

// Error implements the error interface.
func (e *AllProvidersFailedError) Error() string {
	if len(e.Errors) == 0 {
		return ErrAllProvidersFailed.Error() + ": no providers configured"
	}

	msgs := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("%s: %s", ErrAllProvidersFailed, strings.Join(msgs, "; "))
}

// Unwrap makes both ErrAllProvidersFailed and every collected error matchable.
func (e *AllProvidersFailedError) Unwrap() []error {
	return append([]error{ErrAllProvidersFailed}, e.Errors...)
}

// StatusCode returns the HTTP-style status for this aggregate:
// 503 if any provider was unreachable, 502 if any rejected, 500 otherwise.
func (e *AllProvidersFailedError) StatusCode() int {
	rejected := false
	for _, err := range e.Errors {
		if errors.Is(err, ErrUpstreamUnreachable) {
			return http.StatusServiceUnavailable
		}
		if errors.Is(err, ErrUpstreamRejected) {
			rejected = true
		}
	}
	if rejected {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// CustomError is the user-facing error of the aggregation engine.
type CustomError struct {
	Message string
	Status  int
	Details []string // per-cause messages, if any
	Err     error
}

// Error implements the error interface.
func (e *CustomError) Error() string {
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *CustomError) Unwrap() error {
	return e.Err
}

// Messages returns the messages to present to callers.
func (e *CustomError) Messages() []string {
	if len(e.Details) > 0 {
		return e.Details
	}
	return []string{e.Message}
}

// translate given error into a user-facing `CustomError`
func toCustomError(err error) *CustomError {
	if err == nil {
		return nil
	}

	var custom *CustomError
	if errors.As(err, &custom) {
		return custom
	}

	var allFailed *AllProvidersFailedError
	if errors.As(err, &allFailed) {
		details := make([]string, 0, len(allFailed.Errors))
		for _, e := range allFailed.Errors {
			details = append(details, e.Error())
		}
		return &CustomError{
			Message: "Failed to fetch news: " + allFailed.Error(),
			Status:  allFailed.StatusCode(),
			Details: details,
			Err:     err,
		}
	}

	switch {
	case errors.Is(err, ErrUnsupportedCacheBackend):
		return &CustomError{Message: "Cache type not supported", Status: http.StatusInternalServerError, Err: err}
	case errors.Is(err, ErrArticleNotFound):
		return &CustomError{Message: "Article not found", Status: http.StatusNotFound, Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &CustomError{Message: "Timed out while fetching news", Status: http.StatusGatewayTimeout, Err: err}
	default:
		return &CustomError{Message: "Failed to fetch news: " + err.Error(), Status: http.StatusInternalServerError, Err: err}
	}
}
