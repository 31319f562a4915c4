package main

import (
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/comalice/corofsm"
	"github.com/comalice/corofsm/internal/demo"
	"github.com/comalice/corofsm/trace"
)

func newPingPongCmd(root *rootOptions) *cobra.Command {
	var rounds int
	cmd := &cobra.Command{
		Use:   "pingpong",
		Short: "bounce a counter between two states",
		RunE: func(cmd *cobra.Command, args []string) error {
			return demo.RunPingPong(cmd.OutOrStdout(), rounds)
		},
	}
	cmd.Flags().IntVar(&rounds, "rounds", 2, "number of bounces per run")
	return cmd
}

func newRingCmd(root *rootOptions) *cobra.Command {
	var states, rounds int
	cmd := &cobra.Command{
		Use:   "ring",
		Short: "measure hop speed around a ring of states",
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []corofsm.Option
			if root.verbose {
				opts = append(opts, corofsm.WithLogger(root.logger), corofsm.WithObserver(trace.Logger(root.logger)))
			}
			_, err := demo.RunRing(cmd.OutOrStdout(), states, rounds, opts...)
			return err
		},
	}
	cmd.Flags().IntVar(&states, "states", 1023, "number of states in the ring")
	cmd.Flags().IntVar(&rounds, "rounds", 10000, "number of rounds around the ring")
	return cmd
}

func newMorseCmd(root *rootOptions) *cobra.Command {
	var (
		wpm      int
		messages []string
	)
	cmd := &cobra.Command{
		Use:   "morse",
		Short: "transmit messages in Morse code on the console",
		RunE: func(cmd *cobra.Command, args []string) error {
			p := demo.NewPrinter(cmd.OutOrStdout())
			m, err := demo.NewMorse(demo.MorseConfig{
				WordsPerMinute: wpm,
				Sounder:        demo.ConsoleSounder{Printer: p},
				Printer:        p,
			}, corofsm.WithLogger(root.logger))
			if err != nil {
				return err
			}
			defer m.Close()
			for _, msg := range messages {
				p.Printf("Message = '%s'\n", msg)
				if err := demo.Transmit(m, msg); err != nil {
					return err
				}
			}
			p.Printf("\n'%s' is suspended at state '%s'\n", m.Name(), m.CurrentState())
			return nil
		},
	}
	cmd.Flags().IntVar(&wpm, "wpm", 12, "transmission speed in words per minute")
	cmd.Flags().StringArrayVar(&messages, "message", []string{"Hello World ", "SOS SOS "}, "message to send, repeatable")
	return cmd
}

func newDevicesCmd(root *rootOptions) *cobra.Command {
	var phase, blink time.Duration
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "hand control round red, green and blue devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return demo.RunDevices(ctx, demo.NewPrinter(cmd.OutOrStdout()), phase, blink)
		},
	}
	cmd.Flags().DurationVar(&phase, "phase", 3*time.Second, "duration of each phase")
	cmd.Flags().DurationVar(&blink, "blink", demo.DefaultBlinkTime, "duration of one blink")
	return cmd
}
