package grpc

import (
	"context"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

// Dial opens a client connection that speaks the JSON codec. Without extra
// transport credentials the connection is insecure, for local use or behind a
// mesh that terminates TLS.
func Dial(target string, extra ...grpc.DialOption) (*grpc.ClientConn, error) {
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	}
	opts = append(opts, extra...)
	return grpc.NewClient(target, opts...)
}

type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// WithIdempotencyKey attaches key to outgoing Book calls made with ctx.
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, "idempotency-key", key)
}

func invoke[Resp any](ctx context.Context, c *Client, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)
	if err := c.cc.Invoke(ctx, fullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Availability(ctx context.Context, in *AvailabilityRequest, opts ...grpc.CallOption) (*AvailabilityResponse, error) {
	return invoke[AvailabilityResponse](ctx, c, "Availability", in, opts)
}

func (c *Client) Book(ctx context.Context, in *BookRequest, opts ...grpc.CallOption) (*AppointmentResponse, error) {
	return invoke[AppointmentResponse](ctx, c, "Book", in, opts)
}

func (c *Client) Cancel(ctx context.Context, in *CancelRequest, opts ...grpc.CallOption) (*AppointmentResponse, error) {
	return invoke[AppointmentResponse](ctx, c, "Cancel", in, opts)
}

func (c *Client) Reschedule(ctx context.Context, in *RescheduleRequest, opts ...grpc.CallOption) (*AppointmentResponse, error) {
	return invoke[AppointmentResponse](ctx, c, "Reschedule", in, opts)
}

func (c *Client) UpdateStatus(ctx context.Context, in *UpdateStatusRequest, opts ...grpc.CallOption) (*AppointmentResponse, error) {
	return invoke[AppointmentResponse](ctx, c, "UpdateStatus", in, opts)
}

func (c *Client) ListAppointments(ctx context.Context, in *ListAppointmentsRequest, opts ...grpc.CallOption) (*ListAppointmentsResponse, error) {
	return invoke[ListAppointmentsResponse](ctx, c, "ListAppointments", in, opts)
}

func (c *Client) BookRecurring(ctx context.Context, in *BookRecurringRequest, opts ...grpc.CallOption) (*BookRecurringResponse, error) {
	return invoke[BookRecurringResponse](ctx, c, "BookRecurring", in, opts)
}

func (c *Client) RescheduleOccurrence(ctx context.Context, in *RescheduleOccurrenceRequest, opts ...grpc.CallOption) (*RescheduleOccurrenceResponse, error) {
	return invoke[RescheduleOccurrenceResponse](ctx, c, "RescheduleOccurrence", in, opts)
}

func (c *Client) SaveBusiness(ctx context.Context, in *Business, opts ...grpc.CallOption) (*Business, error) {
	return invoke[Business](ctx, c, "SaveBusiness", in, opts)
}

func (c *Client) SaveService(ctx context.Context, in *Service, opts ...grpc.CallOption) (*Service, error) {
	return invoke[Service](ctx, c, "SaveService", in, opts)
}

func (c *Client) SaveStaff(ctx context.Context, in *Staff, opts ...grpc.CallOption) (*Staff, error) {
	return invoke[Staff](ctx, c, "SaveStaff", in, opts)
}
