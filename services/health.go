package services

import (
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ChatServiceName is reported NOT_SERVING while the chatbot only has canned
// responses.
const ChatServiceName = "theranostics.chat"

func NewHealthServer(cannedMode bool) *health.Server {
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	status := healthpb.HealthCheckResponse_SERVING
	if cannedMode {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	hs.SetServingStatus(ChatServiceName, status)
	return hs
}
