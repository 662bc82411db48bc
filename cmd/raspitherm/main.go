// Command raspitherm switches central heating and hot water relays through a
// pin daemon and serves a small HTTP control page.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sweeney/raspitherm/internal/config"
	"github.com/sweeney/raspitherm/internal/heating"
	"github.com/sweeney/raspitherm/internal/version"
)

// options holds the command line flags.
type options struct {
	configPath    string
	listen        string
	logLevel      string
	allowMultiple bool
}

// signalError records which signal stopped the listener.
type signalError struct {
	sig os.Signal
}

func (e signalError) Error() string {
	return "received " + e.sig.String()
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "raspitherm",
		Short: "Control boiler relays over HTTP.",
		Long: `Listener that drives the central heating (CH) and hot water (HW) bistable
relays of a boiler programmer through the pigpiod daemon (or a local gpiochip).

GET /?ch=on, /?hw=off or /?status=1 switch or read a channel and answer JSON.
Any other GET renders the status page. Static assets are served from /static/.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := notifyContext(cmd.Context())
			defer cancel(nil)

			return run(ctx, *opts)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level (overrides log_level)")
	root.Flags().StringVar(&opts.listen, "listen", "", "HTTP listen address (overrides pi_port)")
	root.Flags().BoolVar(&opts.allowMultiple, "allow-multiple", false, "start even if another instance is running")

	root.AddCommand(newStatusCommand(opts), newSetCommand(opts))
	version.AttachCommand(root)

	return root
}

func newStatusCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the state of both channels and exit.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withController(cmd.Context(), *opts, func(ctx context.Context, ctrl *heating.Controller) error {
				st, err := ctrl.Status(ctx)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "CH: %s, HW: %s\n", stateString(st.CH), stateString(st.HW))
				return nil
			})
		},
	}
}

func newSetCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "set <ch|hw> <on|off|toggle>",
		Short: "Switch one channel and print its resulting state.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ch, err := heating.ParseChannel(args[0])
			if err != nil {
				return err
			}
			desired := heating.ParseDesired(args[1])

			return withController(cmd.Context(), *opts, func(ctx context.Context, ctrl *heating.Controller) error {
				got, err := ctrl.SetChannel(ctx, ch, desired)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", ch, stateString(got))
				return nil
			})
		},
	}
}

// notifyContext is signal.NotifyContext that keeps the signal as the cause.
func notifyContext(parent context.Context) (context.Context, context.CancelCauseFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancelCause(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case s := <-sigCh:
			cancel(signalError{sig: s})
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

// shutdownReason names what stopped ctx, as published in the SHUTDOWN event.
func shutdownReason(ctx context.Context) string {
	var se signalError
	if errors.As(context.Cause(ctx), &se) {
		switch se.sig {
		case syscall.SIGINT:
			return "SIGINT"
		case syscall.SIGTERM:
			return "SIGTERM"
		}
		return "UNKNOWN"
	}
	if ctx.Err() != nil {
		return "CANCELED"
	}
	return ""
}

func stateString(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
