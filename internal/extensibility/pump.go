package extensibility

import (
	"context"
	"reflect"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/comalice/corofsm"
)

// ErrNoMachine is reported for a request that names no machine to a pump
// without a default one.
var ErrNoMachine = errors.New("no machine to deliver to")

// Pump drains event sources and delivers their requests one at a time.
type Pump struct {
	machine *corofsm.Machine
	logger  *zap.SugaredLogger
}

// NewPump creates a pump whose requests default to m, which may be nil.
func NewPump(m *corofsm.Machine, logger *zap.SugaredLogger) *Pump {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Pump{machine: m, logger: logger}
}

// Run delivers requests until ctx is done or every source is closed. It
// returns ctx.Err() in the first case and nil in the second. Failed sends
// without a Done channel are logged and do not stop the pump.
func (p *Pump) Run(ctx context.Context, sources ...EventSource) error {
	cases := make([]reflect.SelectCase, 0, len(sources)+1)
	cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ctx.Done())})
	for _, s := range sources {
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(s.Events())})
	}

	open := len(sources)
	for open > 0 {
		chosen, v, ok := reflect.Select(cases)
		if chosen == 0 {
			return ctx.Err()
		}
		if !ok {
			// Closed source: a nil channel never becomes ready again.
			cases[chosen].Chan = reflect.ValueOf((<-chan Request)(nil))
			open--
			continue
		}
		p.deliver(v.Interface().(Request))
	}
	return nil
}

func (p *Pump) deliver(req Request) {
	// The send moves the event out of its envelope.
	name := "<nil>"
	if req.Event != nil {
		name = req.Event.String()
	}
	err := p.send(req)
	if req.Done != nil {
		req.Done <- err
		return
	}
	if err != nil {
		p.logger.Warnw("event not delivered", "event", name, "error", err)
	}
}

func (p *Pump) send(req Request) error {
	m := req.Machine
	if m == nil {
		m = p.machine
	}
	if m == nil {
		return ErrNoMachine
	}
	if req.State != "" {
		if err := m.SetStateByName(req.State); err != nil {
			return err
		}
	}
	return m.SendEvent(req.Event)
}
