package billing

import (
	"errors"
	"fmt"
)

// Sentinel errors for the checkout and webhook paths. Gateway failures are
// split into retryable (unavailable) and non-retryable (rejected) kinds.
var (
	ErrGatewayUnavailable = errors.New("billing: gateway unavailable")
	ErrGatewayRejected    = errors.New("billing: gateway rejected request")
	ErrUnknownPlan        = errors.New("billing: unknown plan")
	ErrIntentNotFound     = errors.New("billing: purchase intent not found")
	ErrDuplicateEvent     = errors.New("billing: duplicate webhook event")
)

// GatewayError carries the HTTP status and response body of a failed gateway
// call. It unwraps to ErrGatewayRejected for 4xx responses and to
// ErrGatewayUnavailable for everything else, so callers can match with
// errors.Is without inspecting status codes.
type GatewayError struct {
	StatusCode int
	Body       string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway request failed: status=%d body=%s", e.StatusCode, e.Body)
}

func (e *GatewayError) Unwrap() error {
	if e.StatusCode >= 400 && e.StatusCode < 500 {
		return ErrGatewayRejected
	}
	return ErrGatewayUnavailable
}
