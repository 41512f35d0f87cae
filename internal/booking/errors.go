package booking

import (
	"errors"
	"fmt"
)

// Reason names why a booking was infeasible. Rejections are policy outcomes,
// not system failures.
type Reason string

const (
	ReasonOutsideBookingWindow      Reason = "OutsideBookingWindow"
	ReasonPastCutoff                Reason = "PastCutoff"
	ReasonOutsideWorkingHours       Reason = "OutsideWorkingHours"
	ReasonStaffUnavailable          Reason = "StaffUnavailable"
	ReasonServiceUnavailable        Reason = "ServiceUnavailable"
	ReasonSlotConflict              Reason = "SlotConflict"
	ReasonDailyLimitExceeded        Reason = "DailyLimitExceeded"
	ReasonCustomerBlocked           Reason = "CustomerBlocked"
	ReasonMonthlyLimitExceeded      Reason = "MonthlyLimitExceeded"
	ReasonTierLimitExceeded         Reason = "TierLimitExceeded"
	ReasonCancellationWindowExpired Reason = "CancellationWindowExpired"
	ReasonInvalidTransition         Reason = "InvalidTransition"
)

// Code returns the client-facing error code for the reason.
func (r Reason) Code() string {
	switch r {
	case ReasonOutsideBookingWindow, ReasonPastCutoff:
		return "BOOKING_WINDOW_EXCEEDED"
	case ReasonOutsideWorkingHours, ReasonStaffUnavailable, ReasonDailyLimitExceeded:
		return "STAFF_UNAVAILABLE"
	case ReasonServiceUnavailable:
		return "SERVICE_UNAVAILABLE"
	case ReasonSlotConflict:
		return "APPOINTMENT_CONFLICT"
	case ReasonCustomerBlocked:
		return "CUSTOMER_BLOCKED"
	case ReasonMonthlyLimitExceeded, ReasonTierLimitExceeded:
		return "SUBSCRIPTION_LIMIT_EXCEEDED"
	case ReasonCancellationWindowExpired:
		return "CANCELLATION_WINDOW_EXPIRED"
	case ReasonInvalidTransition:
		return "VALIDATION_ERROR"
	default:
		return "INTERNAL_ERROR"
	}
}

type RejectedError struct {
	Reason Reason
	Detail string
}

func (e *RejectedError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("booking rejected: %s", e.Reason)
	}
	return fmt.Sprintf("booking rejected: %s: %s", e.Reason, e.Detail)
}

func reject(reason Reason, detail string) error {
	return &RejectedError{Reason: reason, Detail: detail}
}

// Rejected returns a rejection error; exported for callers enforcing
// lifecycle rules outside the validator.
func Rejected(reason Reason, detail string) error {
	return reject(reason, detail)
}

// ReasonOf extracts the rejection reason from err, if any.
func ReasonOf(err error) (Reason, bool) {
	var rErr *RejectedError
	if errors.As(err, &rErr) {
		return rErr.Reason, true
	}
	return "", false
}

// ErrStaleData is returned when storage holds newer business configuration
// than the snapshot a decision was made against. Callers must refetch.
var ErrStaleData = errors.New("stale business data")
