package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/GriffinCanCode/AgentOS/anrd/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/AgentOS/anrd/internal/reporting"
)

func newHealthCmd(opts *globalOptions) *cobra.Command {
	var (
		addr    string
		overall bool
	)

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Query the gRPC health status of a session",
		Long: "Query the daemon's gRPC health service. A session that froze reports NOT_SERVING " +
			"until it recovers; a session that never froze is unknown to the service.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := opts.logger()
			tracer := tracing.New("anrclient", logger)
			defer tracer.Close()

			conn, err := grpc.NewClient(addr,
				grpc.WithTransportCredentials(insecure.NewCredentials()),
				grpc.WithUnaryInterceptor(tracing.GRPCClientInterceptor(tracer)),
			)
			if err != nil {
				return fmt.Errorf("connect %s: %w", addr, err)
			}
			defer conn.Close()

			service := reporting.ServiceName(opts.sessionID)
			if overall {
				service = ""
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()
			resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]string{
				"service": service,
				"status":  resp.GetStatus().String(),
			})
		},
	}

	cmd.Flags().StringVar(&addr, "grpc", "localhost:50061", "anrd gRPC address")
	cmd.Flags().BoolVar(&overall, "overall", false, "check the daemon instead of a session")
	return cmd
}
