package corofsm

import (
	"fmt"
	"reflect"
)

// Releaser is implemented by payloads whose lifetime must be ended
// explicitly. An event carrying such a payload owes a ReleaseAs call before
// it can be reused, cleared or handed to Release.
type Releaser interface {
	Release()
}

// Event is a reusable, type-erased envelope: a name plus an optional payload.
//
// The payload lives in a slot owned by the envelope. Slots are cached per
// payload type and are never shrunk by reuse, so a state that keeps rebuilding
// the same kind of event does not allocate after the first hop. Clear drops
// the cache.
//
// An Event is moved, not copied: when the machine takes an event from a
// caller or a task, the source envelope is left empty and its slot cache
// travels with the event.
//
// The zero value is an empty event.
type Event struct {
	name  string
	typ   reflect.Type
	value any
	owed  bool
	slots []any
}

// NewEvent returns an event carrying name and no payload.
func NewEvent(name string) *Event {
	return &Event{name: name}
}

// Construct stores name and v in e and returns a pointer to the stored
// payload. The pointer stays valid until the next Construct of the same
// payload type on this envelope.
//
// Construct fails if e still holds a payload that owes a release.
func Construct[T any](e *Event, name string, v T) (*T, error) {
	if err := e.checkReleased(); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, protocolErrorf(ErrEmptyName, "construct %s payload", reflect.TypeFor[T]())
	}
	p := slotFor[T](e)
	*p = v
	e.name = name
	e.typ = reflect.TypeFor[T]()
	e.value = p
	e.owed = owesRelease(v)
	return p, nil
}

var releaserType = reflect.TypeFor[Releaser]()

// owesRelease reports whether a payload v of type T has a Release method,
// on T itself or on *T. Interface payloads are judged by their dynamic value.
func owesRelease[T any](v T) bool {
	t := reflect.TypeFor[T]()
	if t.Kind() == reflect.Interface {
		_, ok := any(v).(Releaser)
		return ok
	}
	return t.Implements(releaserType) || reflect.PointerTo(t).Implements(releaserType)
}

// Set replaces e with a payload-less event named name.
func (e *Event) Set(name string) error {
	if err := e.checkReleased(); err != nil {
		return err
	}
	if name == "" {
		return protocolErrorf(ErrEmptyName, "set")
	}
	e.name, e.typ, e.value = name, nil, nil
	return nil
}

// Rename changes the name of a non-empty event and keeps its payload.
func (e *Event) Rename(name string) error {
	if name == "" {
		return protocolErrorf(ErrEmptyName, "rename %q", e.name)
	}
	if e.IsEmpty() {
		return protocolErrorf(ErrEmptyEvent, "rename to %q", name)
	}
	e.name = name
	return nil
}

// As returns the payload of e typed as T.
func As[T any](e *Event) (*T, error) {
	p, ok := e.value.(*T)
	if !ok || e.typ != reflect.TypeFor[T]() {
		return nil, &TypeMismatchError{Event: e.name, Stored: e.typ, Requested: reflect.TypeFor[T]()}
	}
	return p, nil
}

// ReleaseAs ends the lifetime of a T payload and empties e. The payload's
// Release method runs if it has one. Releasing an event without a payload
// just empties it.
func ReleaseAs[T any](e *Event) error {
	if e.typ == nil {
		e.name = ""
		return nil
	}
	p, err := As[T](e)
	if err != nil {
		return err
	}
	if e.owed {
		if r, ok := any(p).(Releaser); ok {
			r.Release()
		} else if r, ok := any(*p).(Releaser); ok {
			r.Release()
		}
	}
	var zero T
	*p = zero
	e.reset()
	return nil
}

// Release empties e. It fails when the payload owes an explicit release,
// which must go through ReleaseAs instead. A task releases its event to
// emit the empty event and suspend the chain.
func (e *Event) Release() error {
	if err := e.checkReleased(); err != nil {
		return err
	}
	e.reset()
	return nil
}

// Clear empties e and drops every cached payload slot.
func (e *Event) Clear() error {
	if err := e.checkReleased(); err != nil {
		return err
	}
	*e = Event{}
	return nil
}

// Name returns the event's name, "" for the empty event.
func (e *Event) Name() string { return e.name }

// Is reports whether the event is named name.
func (e *Event) Is(name string) bool { return e.name == name }

// IsEmpty reports whether the event has no name.
func (e *Event) IsEmpty() bool { return e.name == "" }

// Payload returns a pointer to the stored payload, or nil.
func (e *Event) Payload() any { return e.value }

// Type returns the type of the stored payload, or nil.
func (e *Event) Type() reflect.Type { return e.typ }

// OwesRelease reports whether the payload must be released with ReleaseAs.
func (e *Event) OwesRelease() bool { return e.owed }

// Capacity returns the number of payload types the envelope can hold
// without allocating.
func (e *Event) Capacity() int { return len(e.slots) }

func (e *Event) String() string {
	if e.IsEmpty() {
		return "<empty>"
	}
	if e.typ == nil {
		return e.name
	}
	return fmt.Sprintf("%s(%s)", e.name, e.typ)
}

func (e *Event) checkReleased() error {
	if e.owed {
		return protocolErrorf(ErrUnreleasedPayload,
			"event %q holds a %s which must be released with ReleaseAs first", e.name, e.typ)
	}
	return nil
}

func (e *Event) reset() {
	e.name, e.typ, e.value, e.owed = "", nil, nil, false
}

// moveFrom transfers src into e, leaving src as a zero Event. The caller
// guarantees e owes no release.
func (e *Event) moveFrom(src *Event) {
	if e == src {
		return
	}
	*e = *src
	*src = Event{}
}

func slotFor[T any](e *Event) *T {
	for _, s := range e.slots {
		if p, ok := s.(*T); ok {
			return p
		}
	}
	p := new(T)
	e.slots = append(e.slots, p)
	return p
}
