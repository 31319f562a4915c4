// Package corofsm builds finite-state machines whose states are long-lived
// coroutines exchanging named events.
//
// Each state runs a Task: a loop that awaits an event, reacts to it, and
// emits a follow-up event without naming where it goes. The Machine looks the
// emitted event up in its transition table and resumes the destination state
// directly. The destination may live in another Machine; control then moves
// to that machine while the source keeps its current state. A chain of hops
// ends when a task emits the empty event, at which point SendEvent returns to
// its caller.
//
// # Events
//
// An Event is a name plus an optional payload of any type. Payloads are
// stored in slots that the envelope reuses, and reads are checked against
// the type the payload was constructed with:
//
//	var ev corofsm.Event
//	corofsm.Construct(&ev, "Start", 10)
//	n, err := corofsm.As[int](&ev)
//
// Payloads implementing Releaser must be released with ReleaseAs before the
// envelope is rebuilt; forgetting to do so is reported as a protocol
// violation rather than leaked.
//
// # States
//
//	ping := func(y *corofsm.Yield) error {
//		ev := y.Await()
//		for {
//			n, err := corofsm.As[int](ev)
//			if err != nil {
//				return err
//			}
//			if *n == 0 {
//				ev.Release() // suspend the machine
//			} else {
//				corofsm.Construct(ev, "ToPong", *n-1)
//			}
//			ev = y.Emit(ev)
//		}
//	}
//
// # Machines
//
//	m := corofsm.NewMachine("PingPong")
//	m.Register("ping", ping)
//	m.Register("pong", pong)
//	m.AddTransitionByName("ping", "ToPong", "pong")
//	m.AddTransitionByName("pong", "ToPing", "ping")
//	m.Start()
//	m.SetStateByName("ping")
//	corofsm.Construct(&ev, "ToPing", 4)
//	m.SendEvent(&ev)
//
// MachineBuilder offers the same set-up as a fluent declaration.
//
// # Errors
//
// Errors the engine detects match one of ErrConfiguration,
// ErrProtocolViolation, ErrTransitionNotFound or ErrTypeMismatch under
// errors.Is. Errors returned by tasks keep their own identity. All of them
// are returned to the caller of the Start or SendEvent that hit them; a task
// panic is re-raised there.
package corofsm
