// Package grpcserver hosts the gRPC side of the identity service: the standard
// health service behind the same bearer verification relying services use.
package grpcserver

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/cigarclub/identity/internal/verifier"
)

// PublicMethods are reachable without a bearer token.
var PublicMethods = []string{
	healthpb.Health_Check_FullMethodName,
}

// New builds a gRPC server with tracing, recovery, logging and bearer auth,
// and registers the health service. The caller flips serving status.
func New(log *zap.Logger, v *verifier.Verifier, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	opts = append(opts,
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			RecoverUnary(log),
			LoggingUnary(log),
			verifier.UnaryServerInterceptor(v, PublicMethods...),
		),
	)
	srv := grpc.NewServer(opts...)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	return srv, hs
}
