package grpc

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
)

type ServerOptions struct {
	RequestTimeout time.Duration
	// BookingAttemptsPerHour limits Book, BookRecurring and Reschedule per
	// business. Zero disables the limit.
	BookingAttemptsPerHour int
}

// NewServer builds a gRPC server with tracing, the default deadline and the
// booking limiter installed, and registers the booking service on it.
func NewServer(svc bookingService, log *slog.Logger, opts ServerOptions, extra ...grpc.ServerOption) *grpc.Server {
	limiter := NewBookingLimiter(opts.BookingAttemptsPerHour)
	serverOpts := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			TimeoutInterceptor(opts.RequestTimeout),
			limiter.Interceptor(),
		),
	}
	serverOpts = append(serverOpts, extra...)

	s := grpc.NewServer(serverOpts...)
	RegisterBookingServiceServer(s, NewBookingServer(svc, log))
	return s
}
