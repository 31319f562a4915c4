package demo

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/comalice/corofsm"
)

const (
	IdleState        = "idle"
	ActiveState      = "active"
	HandOverEvent    = "HandOverEvent"
	StartBlinkEvent  = "StartBlinkEvent"
	BlinkReadyEvent  = "BlinkReadyEvent"
	DefaultBlinkTime = 250 * time.Millisecond
)

// StopToken carries a cancellation signal between devices. It must be
// released explicitly, which drops the context it holds.
type StopToken struct {
	Ctx context.Context
}

func (t *StopToken) Release() { t.Ctx = nil }

// Led is a device's light.
type Led interface {
	Set(on bool)
}

// DeviceConfig tunes one device.
type DeviceConfig struct {
	Name string
	Led  Led
	// Blinks is how many times the device blinks before handing over.
	Blinks int
	Blink  time.Duration
	// Sleep waits for the given time; time.Sleep when nil.
	Sleep func(time.Duration)
}

// activeState keeps the LED on for the duration carried by the event.
func activeState(c *DeviceConfig) corofsm.Task {
	return func(y *corofsm.Yield) error {
		ev := y.Await()
		for {
			if !ev.Is(StartBlinkEvent) {
				return unrecognized(y, ev)
			}
			d, err := corofsm.As[time.Duration](ev)
			if err != nil {
				return err
			}
			c.Led.Set(true)
			c.Sleep(max(*d, 0))
			c.Led.Set(false)
			if err := ev.Set(BlinkReadyEvent); err != nil {
				return err
			}
			ev = y.Emit(ev)
		}
	}
}

// idleState takes control on a hand-over, blinks, and hands the stop token
// on. It suspends the chain once the token is cancelled.
func idleState(c *DeviceConfig) corofsm.Task {
	return func(y *corofsm.Yield) error {
		var (
			ctx        context.Context
			blinksLeft int
		)
		ev := y.Await()
		for {
			var err error
			switch {
			case ev.Is(HandOverEvent):
				tok, terr := corofsm.As[StopToken](ev)
				if terr != nil {
					return terr
				}
				ctx = tok.Ctx
				if err := corofsm.ReleaseAs[StopToken](ev); err != nil {
					return err
				}
				blinksLeft = c.Blinks
				_, err = corofsm.Construct(ev, StartBlinkEvent, c.Blink)
			case ev.Is(BlinkReadyEvent):
				c.Sleep(c.Blink)
				blinksLeft--
				switch {
				case ctx == nil || ctx.Err() != nil:
					err = ev.Release()
				case blinksLeft > 0:
					_, err = corofsm.Construct(ev, StartBlinkEvent, c.Blink)
				default:
					_, err = corofsm.Construct(ev, HandOverEvent, StopToken{Ctx: ctx})
				}
			default:
				return unrecognized(y, ev)
			}
			if err != nil {
				return err
			}
			ev = y.Emit(ev)
		}
	}
}

// NewDevice builds a device machine with an idle and an active state.
// Connect devices with Chain or Loop before kicking one off.
func NewDevice(c DeviceConfig, opts ...corofsm.Option) (*corofsm.Machine, error) {
	if c.Sleep == nil {
		c.Sleep = time.Sleep
	}
	if c.Blinks < 1 {
		c.Blinks = 1
	}
	if c.Led == nil {
		return nil, errors.Newf("device %q: no LED", c.Name)
	}
	return corofsm.NewMachineBuilder(c.Name, IdleState, opts...).
		State(IdleState, idleState(&c)).On(StartBlinkEvent, ActiveState).
		State(ActiveState, activeState(&c)).On(BlinkReadyEvent, IdleState).
		Build()
}

// Chain makes each device hand over to the next, the last one to the first.
func Chain(devices ...*corofsm.Machine) error {
	for i, d := range devices {
		next := devices[(i+1)%len(devices)]
		if _, err := d.AddHandOff(IdleState, HandOverEvent, next, IdleState); err != nil {
			return err
		}
	}
	return nil
}

// Loop makes each device hand over to itself, which makes them independent.
func Loop(devices ...*corofsm.Machine) error {
	for _, d := range devices {
		if _, err := d.AddTransitionByName(IdleState, HandOverEvent, IdleState); err != nil {
			return err
		}
	}
	return nil
}

// KickOff hands control to device with a stop token bound to ctx and
// returns once the chain has suspended, which happens after ctx is done.
func KickOff(ctx context.Context, device *corofsm.Machine) error {
	var ev corofsm.Event
	if _, err := corofsm.Construct(&ev, HandOverEvent, StopToken{Ctx: ctx}); err != nil {
		return err
	}
	return device.SendEvent(&ev)
}

// ConsoleLed prints its state changes.
type ConsoleLed struct {
	Name    string
	Printer *Printer
}

func (l ConsoleLed) Set(on bool) {
	state := "Off"
	if on {
		state = "On"
	}
	l.Printer.Printf("%s LED = %s\n", l.Name, state)
}

// RunDevices runs red, green and blue devices, first handing control round
// the ring starting from each device in turn, then independently in
// parallel. Each phase lasts phase.
func RunDevices(ctx context.Context, p *Printer, phase, blink time.Duration) error {
	names := []string{"RED", "GREEN", "BLUE"}
	devices := make([]*corofsm.Machine, len(names))
	for i, name := range names {
		d, err := NewDevice(DeviceConfig{
			Name:   name,
			Led:    ConsoleLed{Name: name[:1] + strings.ToLower(name[1:]), Printer: p},
			Blinks: 2,
			Blink:  blink,
		}, corofsm.WithObserver(p.Observe))
		if err != nil {
			return err
		}
		defer d.Close()
		devices[i] = d
	}
	if err := Chain(devices...); err != nil {
		return err
	}

	for i, d := range devices {
		p.Printf("---------------- Start the cycle with %s ----------------\n", names[i])
		if err := runFor(ctx, phase, d); err != nil {
			return err
		}
	}

	if err := Loop(devices...); err != nil {
		return err
	}
	p.Printf("---------------- Run RED, GREEN, BLUE in parallel ----------------\n")
	if err := runFor(ctx, phase, devices...); err != nil {
		return err
	}
	for i, d := range devices {
		p.Printf("%-5s is suspended at state %s\n", names[i], d.CurrentState())
	}
	return nil
}

// runFor kicks off each device on its own goroutine and cancels them all
// after d.
func runFor(ctx context.Context, d time.Duration, devices ...*corofsm.Machine) error {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs error
	)
	for _, device := range devices {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := KickOff(ctx, device); err != nil {
				mu.Lock()
				errs = errors.CombineErrors(errs, err)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return errs
}
