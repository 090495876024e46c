package reporting

import (
	"context"
	"fmt"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/GriffinCanCode/AgentOS/anrd/internal/domain/watchdog"
)

// ServicePrefix prefixes the per-session gRPC health service name.
const ServicePrefix = "anr.session/"

// ServiceName returns the health service name of a session.
func ServiceName(sessionID watchdog.SessionID) string {
	return fmt.Sprintf("%s%d", ServicePrefix, sessionID)
}

// HealthBridge mirrors session freezes into a gRPC health server: a frozen
// session's service is NOT_SERVING until it recovers. Sessions that never
// froze are unknown to the health server.
type HealthBridge struct {
	server *health.Server
}

// NewHealthBridge creates a bridge with its own health server. The overall
// ("") service reports SERVING.
func NewHealthBridge() *HealthBridge {
	return &HealthBridge{server: health.NewServer()}
}

// Server returns the health server for registration on a grpc.Server.
func (b *HealthBridge) Server() *health.Server {
	return b.server
}

// Name implements Sink.
func (b *HealthBridge) Name() string { return "grpc_health" }

// Report implements Sink.
func (b *HealthBridge) Report(_ context.Context, report watchdog.FrozenReport) error {
	b.server.SetServingStatus(ServiceName(report.SessionID), healthpb.HealthCheckResponse_NOT_SERVING)
	return nil
}

// Recovered marks a session healthy again. It matches the watchdog's
// recovered observer.
func (b *HealthBridge) Recovered(sessionID watchdog.SessionID) {
	b.server.SetServingStatus(ServiceName(sessionID), healthpb.HealthCheckResponse_SERVING)
}

// Shutdown flips every service to NOT_SERVING so watchers notice the daemon
// going away.
func (b *HealthBridge) Shutdown() {
	b.server.Shutdown()
}
