package grpc

import (
	"context"

	"google.golang.org/grpc"
)

const serviceName = "beautyconnect.v1.BookingService"

// BookingServiceServer is the server API for beautyconnect.v1.BookingService.
type BookingServiceServer interface {
	Availability(context.Context, *AvailabilityRequest) (*AvailabilityResponse, error)
	Book(context.Context, *BookRequest) (*AppointmentResponse, error)
	Cancel(context.Context, *CancelRequest) (*AppointmentResponse, error)
	Reschedule(context.Context, *RescheduleRequest) (*AppointmentResponse, error)
	UpdateStatus(context.Context, *UpdateStatusRequest) (*AppointmentResponse, error)
	ListAppointments(context.Context, *ListAppointmentsRequest) (*ListAppointmentsResponse, error)
	BookRecurring(context.Context, *BookRecurringRequest) (*BookRecurringResponse, error)
	RescheduleOccurrence(context.Context, *RescheduleOccurrenceRequest) (*RescheduleOccurrenceResponse, error)
	SaveBusiness(context.Context, *Business) (*Business, error)
	SaveService(context.Context, *Service) (*Service, error)
	SaveStaff(context.Context, *Staff) (*Staff, error)
}

func fullMethod(method string) string {
	return "/" + serviceName + "/" + method
}

// unary adapts one interface method to a grpc.MethodDesc.
func unary[Req, Resp any](method string, call func(BookingServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(BookingServiceServer)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(*Req))
			})
		},
	}
}

var BookingServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*BookingServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Availability", BookingServiceServer.Availability),
		unary("Book", BookingServiceServer.Book),
		unary("Cancel", BookingServiceServer.Cancel),
		unary("Reschedule", BookingServiceServer.Reschedule),
		unary("UpdateStatus", BookingServiceServer.UpdateStatus),
		unary("ListAppointments", BookingServiceServer.ListAppointments),
		unary("BookRecurring", BookingServiceServer.BookRecurring),
		unary("RescheduleOccurrence", BookingServiceServer.RescheduleOccurrence),
		unary("SaveBusiness", BookingServiceServer.SaveBusiness),
		unary("SaveService", BookingServiceServer.SaveService),
		unary("SaveStaff", BookingServiceServer.SaveStaff),
	},
	Streams: []grpc.StreamDesc{},
}

func RegisterBookingServiceServer(s grpc.ServiceRegistrar, srv BookingServiceServer) {
	s.RegisterService(&BookingServiceDesc, srv)
}
