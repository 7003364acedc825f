package machine

import (
	"errors"
	"fmt"

	"github.com/kitchenai/kitchen/internal/event"
)

// ErrInvariant is matched by every *InvariantError.
var ErrInvariant = errors.New("invariant violated")

// InvariantError reports an event whose precondition does not hold. It
// signals a programming fault in the sender, not a user error.
type InvariantError struct {
	Event event.Type
	Msg   string
}

func (e *InvariantError) Error() string {
	if e.Event == "" {
		return "invariant violated: " + e.Msg
	}
	return fmt.Sprintf("invariant violated by %s: %s", e.Event, e.Msg)
}

func (e *InvariantError) Unwrap() error { return ErrInvariant }

func invariant(t event.Type, format string, args ...any) error {
	return &InvariantError{Event: t, Msg: fmt.Sprintf(format, args...)}
}
