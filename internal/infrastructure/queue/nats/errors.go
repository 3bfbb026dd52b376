package nats

import (
	"context"
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/catalog-search/internal/core/domain"
	"github.com/kirillkom/catalog-search/internal/infrastructure/resilience"
)

// connectionErrors clear once the client reconnects or the server drains.
var connectionErrors = []error{
	nats.ErrNoServers,
	nats.ErrTimeout,
	nats.ErrConnectionClosed,
	nats.ErrDisconnected,
	nats.ErrConnectionReconnecting,
	nats.ErrConnectionDraining,
	nats.ErrDrainTimeout,
	nats.ErrSlowConsumer,
}

// requestErrors are caused by the subject or payload, not by the server.
var requestErrors = []error{
	nats.ErrBadSubject,
	nats.ErrMaxPayload,
}

func isAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// classifyNATSError feeds the breaker. A caller that gave up says nothing
// about the server, so cancellation is not recorded.
func classifyNATSError(err error) resilience.ErrorClassification {
	switch {
	case err == nil:
		return resilience.ErrorClassification{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resilience.ErrorClassification{}
	case resilience.IsCircuitOpen(err), isAny(err, connectionErrors):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	case isAny(err, requestErrors):
		return resilience.ErrorClassification{}
	default:
		return resilience.ErrorClassification{RecordFailure: true}
	}
}

// busError maps a failed publish, subscribe or drain to a domain kind:
// connection trouble and an open breaker become ErrTemporary, a rejected
// subject or payload becomes ErrInvalidInput.
func busError(operation string, err error) error {
	switch {
	case err == nil:
		return nil
	case domain.IsKind(err, domain.ErrTemporary), domain.IsKind(err, domain.ErrInvalidInput):
		return err
	case isAny(err, requestErrors):
		return domain.WrapError(domain.ErrInvalidInput, operation, err)
	case classifyNATSError(err).Retryable:
		return domain.WrapError(domain.ErrTemporary, operation, err)
	default:
		return err
	}
}
