package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type rootOptions struct {
	verbose bool
	logger  *zap.SugaredLogger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "corofsm [command]",
		Short: "run coroutine state machines",
		Long: `
  Runs the bundled demonstration machines, or builds machines from a YAML
  topology file and sends events to them.
`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.initLogger()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
	}
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log every hop and lifecycle change")

	cmd.AddCommand(
		newPingPongCmd(opts),
		newRingCmd(opts),
		newMorseCmd(opts),
		newDevicesCmd(opts),
		newRunCmd(opts),
		newGraphCmd(opts),
	)
	return cmd
}

func (o *rootOptions) initLogger() error {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	if o.verbose {
		cfg = zap.NewDevelopmentConfig()
	}
	logger, err := cfg.Build()
	if err != nil {
		return err
	}
	o.logger = logger.Sugar()
	return nil
}
