package ollama

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/kirillkom/catalog-search/internal/core/domain"
	"github.com/kirillkom/catalog-search/internal/infrastructure/resilience"
)

type HTTPStatusError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Sprintf("ollama %s status: %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("ollama %s status: %s: %s", e.Operation, e.Status, strings.TrimSpace(e.Body))
}

// modelMissing reports a 404 for a model that was never pulled. It fails
// every call until an operator fixes the deployment.
func (e *HTTPStatusError) modelMissing() bool {
	return e.StatusCode == http.StatusNotFound && strings.Contains(strings.ToLower(e.Body), "not found")
}

// classifyOllamaError decides what the breaker counts and what the worker
// may retry. Search calls are attempted once either way; their callers fall
// back on any error.
//
//   - server overload, 5xx and network trouble: counted, retryable
//   - missing model: counted so the breaker sheds load, not retryable
//   - any other 4xx: one bad prompt, neither counted nor retried
//   - caller cancellation: ignored
func classifyOllamaError(err error) resilience.ErrorClassification {
	var statusErr *HTTPStatusError
	var netErr net.Error
	switch {
	case err == nil:
		return resilience.ErrorClassification{}
	case errors.Is(err, context.Canceled):
		return resilience.ErrorClassification{}
	case resilience.IsCircuitOpen(err):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	case errors.As(err, &statusErr):
		switch {
		case isOverloadStatus(statusErr.StatusCode):
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		case statusErr.modelMissing():
			return resilience.ErrorClassification{RecordFailure: true}
		default:
			return resilience.ErrorClassification{}
		}
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr):
		// A slow model counts against the breaker so later searches skip it.
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	default:
		return resilience.ErrorClassification{RecordFailure: true}
	}
}

// callError marks retryable failures as ErrTemporary. The worker reports
// them apart from permanent indexing failures.
func callError(operation string, err error) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if classifyOllamaError(err).Retryable {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}

func isOverloadStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
