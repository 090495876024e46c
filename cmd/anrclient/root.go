package main

import (
	"time"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/AgentOS/anrd/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/anrd/internal/transport"
)

type globalOptions struct {
	server    string
	sessionID int32
	timeout   time.Duration
	dev       bool
}

func (o *globalOptions) logger() *logging.Logger {
	if o.dev {
		return logging.NewDevelopment()
	}
	return logging.NewDefault()
}

func (o *globalOptions) api() *transport.HTTP {
	return transport.NewHTTP(o.server, o.timeout, o.logger())
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:          "anrclient",
		Short:        "Consume and acknowledge events for an anrd session",
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.server, "server", "http://localhost:8000", "anrd base URL")
	flags.Int32Var(&opts.sessionID, "session", 1, "session id")
	flags.DurationVar(&opts.timeout, "timeout", 2*time.Second, "request timeout")
	flags.BoolVar(&opts.dev, "dev", false, "development logging")

	rootCmd.AddCommand(
		newRunCmd(opts),
		newDispatchCmd(opts),
		newAckCmd(opts),
		newStatusCmd(opts),
		newHealthCmd(opts),
	)
	return rootCmd
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
