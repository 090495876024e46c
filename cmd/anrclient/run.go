package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/anrd/internal/client"
	"github.com/GriffinCanCode/AgentOS/anrd/internal/domain/heartbeat"
	"github.com/GriffinCanCode/AgentOS/anrd/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/anrd/internal/shared/clock"
	"github.com/GriffinCanCode/AgentOS/anrd/internal/transport"
)

const (
	ackOverWS   = "ws"
	ackOverHTTP = "http"
)

func newRunCmd(opts *globalOptions) *cobra.Command {
	var (
		work      time.Duration
		ackMode   string
		pid       int32
		bundle    string
		reconnect bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Subscribe to a session and acknowledge its events",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if ackMode != ackOverWS && ackMode != ackOverHTTP {
				return fmt.Errorf("--transport must be %q or %q", ackOverWS, ackOverHTTP)
			}

			logger := opts.logger()
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			clientID := uuid.NewString()
			api := opts.api().WithClientID(clientID)
			defer api.Close()

			// App info goes with the session, so every (re)dial registers it again.
			dial := func(ctx context.Context) (client.Source, heartbeat.Transport, error) {
				if bundle != "" {
					if err := api.SetAppInfo(ctx, opts.sessionID, pid, bundle); err != nil {
						return nil, nil, fmt.Errorf("register app info: %w", err)
					}
				}
				conn, err := transport.DialWS(ctx, opts.server, opts.sessionID, clientID, logger)
				if err != nil {
					return nil, nil, err
				}
				if ackMode == ackOverHTTP {
					return conn, api, nil
				}
				return conn, conn, nil
			}

			conn, acks, err := dial(ctx)
			if err != nil {
				return err
			}

			consumer := client.NewConsumer(client.Config{
				SessionID: opts.sessionID,
				Work:      work,
				Heartbeat: config.LoadOrDefault().HeartbeatSettings(),
			}, conn, acks, clock.NewSystem(), logger)
			if reconnect {
				consumer.WithRedial(dial)
			}

			logger.Info("consuming",
				zap.String("client_id", clientID),
				zap.Int32("session_id", opts.sessionID),
				zap.String("ack_transport", ackMode))
			return consumer.Run(ctx)
		},
	}

	cmd.Flags().DurationVar(&work, "work", 0, "simulated handling time per event")
	cmd.Flags().StringVar(&ackMode, "transport", ackOverWS, "ack transport: ws or http")
	cmd.Flags().Int32Var(&pid, "pid", int32(os.Getpid()), "pid reported with app info")
	cmd.Flags().StringVar(&bundle, "bundle", "", "bundle name to register before consuming")
	cmd.Flags().BoolVar(&reconnect, "reconnect", true, "redial when the event stream drops")
	return cmd
}
