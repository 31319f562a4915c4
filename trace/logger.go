package trace

import (
	"go.uber.org/zap"

	"github.com/comalice/corofsm"
)

// Logger returns an observer that logs each hop at debug level.
func Logger(logger *zap.SugaredLogger) corofsm.Observer {
	return func(machine, from string, ev *corofsm.Event, to string) {
		logger.Debugw("hop",
			"machine", machine,
			"from", from,
			"event", ev.Name(),
			"to", to,
		)
	}
}
