package server

import (
	"context"
	"net/http"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the name the GraphQL API reports under in health checks.
const ServiceName = "blogql.GraphQL"

// Health tracks whether the API can serve requests and exposes it through the
// gRPC health protocol and a plain HTTP endpoint.
type Health struct {
	srv   *health.Server
	check func(context.Context) error
}

// NewHealth returns a Health that consults check, typically a database ping.
// The status is NOT_SERVING until the first Update.
func NewHealth(check func(context.Context) error) *Health {
	h := &Health{srv: health.NewServer(), check: check}
	h.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

// Register installs the health service on s.
func (h *Health) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.srv)
}

// Update runs the check once and records the result.
func (h *Health) Update(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if h.check != nil {
		if err := h.check(ctx); err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	h.set(status)
	return status
}

// Run updates the status every interval until ctx is done, then marks the
// service as shutting down.
func (h *Health) Run(ctx context.Context, interval time.Duration) {
	h.Update(ctx)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			h.srv.Shutdown()
			return
		case <-t.C:
			h.Update(ctx)
		}
	}
}

// Status returns the current status of the API.
func (h *Health) Status(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	res, err := h.srv.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return healthpb.HealthCheckResponse_SERVICE_UNKNOWN
	}
	return res.Status
}

// ServeHTTP answers 200 while serving and 503 otherwise.
func (h *Health) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := h.Status(r.Context())
	code := http.StatusOK
	if status != healthpb.HealthCheckResponse_SERVING {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"status": status.String()}, false)
}

func (h *Health) set(status healthpb.HealthCheckResponse_ServingStatus) {
	h.srv.SetServingStatus("", status)
	h.srv.SetServingStatus(ServiceName, status)
}
