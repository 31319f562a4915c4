package production

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/comalice/corofsm"
	"github.com/comalice/corofsm/tasks"
	"github.com/comalice/corofsm/trace"
)

// ledPair wires a switch machine that hands "Press" off to a lamp machine,
// which reports back with "Lit".
func ledPair(t *testing.T, obs corofsm.Observer) (*corofsm.Machine, *corofsm.Machine) {
	t.Helper()
	lamp := corofsm.NewMachine("lamp", corofsm.WithObserver(obs))
	_, err := lamp.Register("off", tasks.Rename(map[string]string{"Press": "Lit"}))
	require.NoError(t, err)

	sw, err := corofsm.NewMachineBuilder("switch", "up", corofsm.WithObserver(obs)).
		State("up", tasks.Relay()).HandOff("Press", lamp, "off").
		State("down", tasks.Sink()).
		Build()
	require.NoError(t, err)
	_, err = lamp.AddHandOff("off", "Lit", sw, "down")
	require.NoError(t, err)
	require.NoError(t, lamp.Start())
	t.Cleanup(func() {
		_ = sw.Close()
		_ = lamp.Close()
	})
	return sw, lamp
}

func recordRun(t *testing.T) []trace.Hop {
	t.Helper()
	rec := trace.NewRecorder()
	sw, _ := ledPair(t, rec.Observe)
	require.NoError(t, sw.SendEvent(corofsm.NewEvent("Press")))
	return rec.Hops()
}
