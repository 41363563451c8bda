package keenetic

import (
	"errors"
	"fmt"

	"github.com/kroleg/homelab/internal/domain"
)

// ErrUnavailable wraps any transport or authentication failure reaching
// the router. Callers retry on the next reconcile cycle.
var ErrUnavailable = errors.New("router unavailable")

// RejectedError reports an explicit per-route rejection from the router
// (e.g. unknown interface). The offending route is skipped; the rest of
// the plan proceeds.
type RejectedError struct {
	Route   domain.Route
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("router rejected route %s: %s", e.Route, e.Message)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}
