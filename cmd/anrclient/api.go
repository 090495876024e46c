package main

import (
	"github.com/spf13/cobra"
)

func newDispatchCmd(opts *globalOptions) *cobra.Command {
	var (
		eventID      int64
		dispatchTime int64
	)

	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Report a dispatched event to the daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var at *int64
			if cmd.Flags().Changed("at") {
				at = &dispatchTime
			}
			api := opts.api()
			defer api.Close()

			resp, err := api.Dispatch(cmd.Context(), opts.sessionID, eventID, at)
			if err != nil {
				return err
			}
			return printJSON(cmd, resp)
		},
	}

	cmd.Flags().Int64Var(&eventID, "event", 0, "event id")
	cmd.Flags().Int64Var(&dispatchTime, "at", 0, "dispatch time in daemon milliseconds (default: now)")
	_ = cmd.MarkFlagRequired("event")
	return cmd
}

func newAckCmd(opts *globalOptions) *cobra.Command {
	var eventID int64

	cmd := &cobra.Command{
		Use:   "ack",
		Short: "Acknowledge every event of the session up to an id",
		RunE: func(cmd *cobra.Command, _ []string) error {
			api := opts.api()
			defer api.Close()

			state, err := api.Ack(cmd.Context(), opts.sessionID, eventID)
			if err != nil {
				return err
			}
			return printJSON(cmd, state)
		},
	}

	cmd.Flags().Int64Var(&eventID, "event", 0, "newest handled event id")
	_ = cmd.MarkFlagRequired("event")
	return cmd
}

func newStatusCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the session state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			api := opts.api()
			defer api.Close()

			state, err := api.Session(cmd.Context(), opts.sessionID)
			if err != nil {
				return err
			}
			return printJSON(cmd, state)
		},
	}
}
