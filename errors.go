package corofsm

import (
	"fmt"
	"reflect"

	"github.com/cockroachdb/errors"
)

// Error categories. Errors the engine detects itself match one of them under
// errors.Is. Errors returned by a task are passed through wrapped with the
// machine and state names, and broken internal invariants are reported as
// assertion failures.
var (
	ErrConfiguration      = errors.New("configuration error")
	ErrProtocolViolation  = errors.New("protocol violation")
	ErrTransitionNotFound = errors.New("transition not found")
	ErrTypeMismatch       = errors.New("payload type mismatch")
)

// Configuration errors.
var (
	ErrDuplicateState = errors.New("duplicate state")
	ErrStateNotFound  = errors.New("state not found")
	ErrForeignState   = errors.New("state belongs to another machine")
	ErrNotStarted     = errors.New("state not started")
	ErrNoCurrentState = errors.New("no current state")
	ErrNilTask        = errors.New("nil task")
)

// Protocol violations.
var (
	ErrEmptyEvent        = errors.New("empty event")
	ErrEmptyName         = errors.New("empty event name")
	ErrUnreleasedPayload = errors.New("payload not released")
	ErrStateReturned     = errors.New("state task returned")
	ErrMachineBusy       = errors.New("machine is dispatching")
	ErrMachineClosed     = errors.New("machine closed")
)

func configErrorf(kind error, format string, args ...any) error {
	return errors.Mark(errors.Wrapf(kind, format, args...), ErrConfiguration)
}

func protocolErrorf(kind error, format string, args ...any) error {
	return errors.Mark(errors.Wrapf(kind, format, args...), ErrProtocolViolation)
}

// TransitionError reports an event emitted from a state that has no entry
// in its machine's transition table.
type TransitionError struct {
	Machine string
	State   string
	Event   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("machine %q: no transition from state %q on event %q", e.Machine, e.State, e.Event)
}

// Is makes errors.Is(err, ErrTransitionNotFound) hold.
func (e *TransitionError) Is(target error) bool {
	return target == ErrTransitionNotFound
}

// TypeMismatchError reports a payload read or release with a type other than
// the one the payload was constructed with. Stored is nil when the event
// carries no payload.
type TypeMismatchError struct {
	Event     string
	Stored    reflect.Type
	Requested reflect.Type
}

func (e *TypeMismatchError) Error() string {
	stored := "no payload"
	if e.Stored != nil {
		stored = e.Stored.String()
	}
	return fmt.Sprintf("event %q: payload is %s, requested %s", e.Event, stored, e.Requested)
}

// Is makes errors.Is(err, ErrTypeMismatch) hold.
func (e *TypeMismatchError) Is(target error) bool {
	return target == ErrTypeMismatch
}
