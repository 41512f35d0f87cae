package grpc

import (
	"context"
	"errors"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/jonakson/beautyconnect/internal/booking"
	"github.com/jonakson/beautyconnect/internal/service/appointments"
	"github.com/jonakson/beautyconnect/internal/store"
)

const errorDomain = "beautyconnect"

// toStatus maps a service error onto a gRPC status. Rejections carry an
// ErrorInfo detail whose Reason is the client-facing error code.
func toStatus(err error) error {
	var vErr *appointments.ValidationError
	var rErr *booking.RejectedError
	switch {
	case errors.As(err, &vErr):
		return status.Error(codes.InvalidArgument, vErr.Error())
	case errors.As(err, &rErr):
		return rejectionStatus(rErr)
	case errors.Is(err, booking.ErrStaleData):
		return status.Error(codes.Aborted, "business configuration changed. Refresh and try again.")
	case errors.Is(err, store.ErrNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, store.ErrIdempotencyConflict):
		return status.Error(codes.AlreadyExists, "This request key was already used for a different booking. Try again.")
	case errors.Is(err, store.ErrConflict):
		return status.Error(codes.Aborted, "the appointment changed concurrently. Try again.")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "request timed out")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request canceled")
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

func rejectionStatus(rErr *booking.RejectedError) error {
	st := status.New(codes.FailedPrecondition, rejectionMessage(rErr.Reason))
	detailed, err := st.WithDetails(&errdetails.ErrorInfo{
		Reason:   rErr.Reason.Code(),
		Domain:   errorDomain,
		Metadata: map[string]string{"reason": string(rErr.Reason)},
	})
	if err != nil {
		return st.Err()
	}
	return detailed.Err()
}

func rejectionMessage(r booking.Reason) string {
	switch r {
	case booking.ReasonSlotConflict:
		return "That time is already booked. Pick a different slot."
	case booking.ReasonOutsideBookingWindow, booking.ReasonPastCutoff:
		return "That time is outside the booking window."
	case booking.ReasonOutsideWorkingHours:
		return "The business is closed at that time."
	case booking.ReasonStaffUnavailable, booking.ReasonDailyLimitExceeded:
		return "The staff member is not available at that time."
	case booking.ReasonServiceUnavailable:
		return "The service cannot be booked."
	case booking.ReasonCustomerBlocked:
		return "Bookings are blocked for this customer."
	case booking.ReasonMonthlyLimitExceeded, booking.ReasonTierLimitExceeded:
		return "The subscription limit has been reached."
	case booking.ReasonCancellationWindowExpired:
		return "It is too late to change this appointment."
	case booking.ReasonInvalidTransition:
		return "The appointment cannot move to that status."
	default:
		return "booking rejected"
	}
}

// RejectionCode returns the ErrorInfo reason attached to a FailedPrecondition
// status, or "" when there is none.
func RejectionCode(err error) string {
	st, ok := status.FromError(err)
	if !ok {
		return ""
	}
	for _, d := range st.Details() {
		if info, ok := d.(*errdetails.ErrorInfo); ok && info.Domain == errorDomain {
			return info.Reason
		}
	}
	return ""
}
