package main

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/comalice/corofsm"
	"github.com/comalice/corofsm/internal/production"
	"github.com/comalice/corofsm/internal/topology"
)

func newGraphCmd(root *rootOptions) *cobra.Command {
	var config, format string
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "render a topology as Graphviz DOT or JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := topology.LoadFile(config)
			if err != nil {
				return err
			}
			sys, err := cfg.Build(corofsm.WithLogger(root.logger))
			if err != nil {
				return err
			}
			defer sys.Close()

			var graphs []production.Graph
			for _, m := range sys.Machines() {
				graphs = append(graphs, production.GraphOf(m))
			}
			v := &production.DefaultVisualizer{}
			switch format {
			case "dot":
				fmt.Fprint(cmd.OutOrStdout(), v.ExportDOT(graphs...))
			case "json":
				data, err := v.ExportJSON(graphs...)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
			default:
				return errors.Newf("unknown format %q", format)
			}
			root.logger.Debugw("rendered topology", "config", config, "version", topology.ComputeVersion(cfg))
			return nil
		},
	}
	cmd.Flags().StringVarP(&config, "config", "c", "", "topology YAML file")
	cmd.Flags().StringVar(&format, "format", "dot", "output format: dot or json")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}
