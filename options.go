package corofsm

import "go.uber.org/zap"

// Option applies configuration to a Machine via functional options pattern.
type Option func(*Machine)

// WithLogger configures the Machine with a structured logger. Machines log
// lifecycle changes and chain failures, never individual hops.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(m *Machine) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithObserver configures the Machine with a hop observer.
func WithObserver(o Observer) Option {
	return func(m *Machine) {
		m.observer = o
	}
}
