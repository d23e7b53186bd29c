package availability

import (
	"github.com/ashureev/chatbuddy/internal/domain"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthService is the gRPC health service name that mirrors remote availability.
const HealthService = "chatbuddy.Remote"

// ServingStatus maps availability to a gRPC health status. Connecting counts
// as serving.
func ServingStatus(s domain.AvailabilityStatus) healthpb.HealthCheckResponse_ServingStatus {
	if s == domain.StatusOffline {
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
	return healthpb.HealthCheckResponse_SERVING
}

// BindHealth keeps HealthService on hs in step with m. The overall server
// status stays SERVING because the fallback path always answers. The
// returned func stops the updates.
func BindHealth(m *Monitor, hs *health.Server) func() {
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(HealthService, ServingStatus(m.State().Status))
	return m.Subscribe(func(s domain.AvailabilityState) {
		hs.SetServingStatus(HealthService, ServingStatus(s.Status))
	})
}
