package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/comalice/corofsm"
	"github.com/comalice/corofsm/internal/production"
	"github.com/comalice/corofsm/internal/topology"
	"github.com/comalice/corofsm/trace"
)

type runOptions struct {
	config      string
	machine     string
	state       string
	events      []string
	payload     int
	withPayload bool
	traceDir    string
	traceFormat string
	db          string
	runName     string
	metrics     bool
}

func newRunCmd(root *rootOptions) *cobra.Command {
	o := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "send events to machines declared in a topology file",
		Long: `
  Builds every machine of the topology, then sends each --event in turn to
  --machine. An event may carry an int payload with --int, which countdown
  states consume. The hops taken are printed and can be saved as a trace
  file or appended to a SQLite trace store.
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			o.withPayload = cmd.Flags().Changed("int")
			return o.run(cmd.Context(), cmd.OutOrStdout(), root)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&o.config, "config", "c", "", "topology YAML file")
	f.StringVarP(&o.machine, "machine", "m", "", "machine receiving the events; defaults to the first declared")
	f.StringVarP(&o.state, "state", "s", "", "state to select before the first event")
	f.StringArrayVarP(&o.events, "event", "e", nil, "event name to send, repeatable")
	f.IntVar(&o.payload, "int", 0, "int payload carried by every event")
	f.StringVar(&o.traceDir, "trace-out", "", "directory to save the trace in")
	f.StringVar(&o.traceFormat, "trace-format", "json", "trace file format: json or yaml")
	f.StringVar(&o.db, "db", "", "SQLite database to append the trace to")
	f.StringVar(&o.runName, "run", "", "name of the run in trace files and the database; defaults to a timestamp")
	f.BoolVar(&o.metrics, "metrics", false, "print hop counters after the run")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func (o *runOptions) run(ctx context.Context, w io.Writer, root *rootOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(o.events) == 0 {
		return errors.New("at least one --event is required")
	}
	persister, err := o.persister()
	if err != nil {
		return err
	}
	cfg, err := topology.LoadFile(o.config)
	if err != nil {
		return err
	}

	rec := trace.NewRecorder()
	reg := prometheus.NewRegistry()
	metrics := trace.NewMetrics(reg)
	observers := []corofsm.Observer{rec.Observe, metrics.Observe}
	if root.verbose {
		observers = append(observers, trace.Logger(root.logger))
	}
	sys, err := cfg.Build(corofsm.WithLogger(root.logger), corofsm.WithObserver(trace.Multi(observers...)))
	if err != nil {
		return err
	}
	defer sys.Close()

	name := o.machine
	if name == "" {
		name = sys.Names()[0]
	}
	m := sys.Machine(name)
	if m == nil {
		return errors.Newf("machine %q not declared in %s", name, o.config)
	}
	if o.state != "" {
		if err := m.SetStateByName(o.state); err != nil {
			return err
		}
	}

	for _, e := range o.events {
		ev := corofsm.NewEvent(e)
		if o.withPayload {
			if _, err := corofsm.Construct(ev, e, o.payload); err != nil {
				return err
			}
		}
		if err := m.SendEvent(ev); err != nil {
			return err
		}
	}

	hops := rec.Hops()
	for _, h := range hops {
		fmt.Fprintf(w, "%d %s: %s --%s--> %s\n", h.Seq, machineLabel(h), h.From, h.Event, h.To)
	}
	for _, sm := range sys.Machines() {
		fmt.Fprintf(w, "%s suspended at state %s\n", sm.Name(), sm.CurrentState())
	}

	run := o.runName
	if run == "" {
		run = time.Now().UTC().Format("20060102T150405Z")
	}
	if persister != nil {
		tr := production.Trace{Name: run, SavedAt: time.Now().UTC(), Hops: hops}
		if err := persister.Save(ctx, tr); err != nil {
			return err
		}
	}
	if o.db != "" {
		store, err := production.OpenSQLiteTraceStore(o.db)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.Append(ctx, run, hops); err != nil {
			return err
		}
	}
	if o.metrics {
		return printMetrics(w, reg)
	}
	return nil
}

func (o *runOptions) persister() (production.Persister, error) {
	if o.traceDir == "" {
		return nil, nil
	}
	switch o.traceFormat {
	case "json":
		return production.NewJSONPersister(filepath.Clean(o.traceDir))
	case "yaml":
		return production.NewYAMLPersister(filepath.Clean(o.traceDir))
	default:
		return nil, errors.Newf("unknown trace format %q", o.traceFormat)
	}
}

func machineLabel(h trace.Hop) string {
	if h.HandOff() {
		return h.Machine + trace.HandOffSeparator + h.Target
	}
	return h.Machine
}

// printMetrics writes every counter of reg as name{labels} value.
func printMetrics(w io.Writer, reg *prometheus.Registry) error {
	mfs, err := reg.Gather()
	if err != nil {
		return err
	}
	var lines []string
	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			var labels []string
			for _, lp := range m.GetLabel() {
				labels = append(labels, fmt.Sprintf("%s=%q", lp.GetName(), lp.GetValue()))
			}
			lines = append(lines, fmt.Sprintf("%s{%s} %g", mf.GetName(), strings.Join(labels, ","), m.GetCounter().GetValue()))
		}
	}
	slices.Sort(lines)
	for _, l := range lines {
		fmt.Fprintln(w, l)
	}
	return nil
}
