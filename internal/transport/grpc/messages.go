// Package grpc serves BookingService (beautyconnect.v1.BookingService).
//
// The messages in this file travel as JSON, not protobuf: callers must use
// the "json" content-subtype (content-type application/grpc+json), as Dial
// does. Field names are the json tags below; times are RFC 3339, IDs are
// UUID strings and money is integer cents.
package grpc

import (
	"time"

	"github.com/google/uuid"

	"github.com/jonakson/beautyconnect/internal/domain"
	"github.com/jonakson/beautyconnect/internal/rules"
	"github.com/jonakson/beautyconnect/internal/service/appointments"
)

type AvailabilityRequest struct {
	BusinessID string `json:"business_id"`
	ServiceID  string `json:"service_id"`
	StaffID    string `json:"staff_id,omitempty"`
	From       string `json:"from"`
	To         string `json:"to"`
}

type TimeSlot struct {
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	StaffID    string    `json:"staff_id,omitempty"`
	ServiceID  string    `json:"service_id"`
	PriceCents int64     `json:"price_cents"`
	Currency   string    `json:"currency"`
}

type AvailabilityResponse struct {
	Slots []TimeSlot `json:"slots"`
}

// BookRequest books one slot. The idempotency key travels in the
// idempotency-key metadata header, not the body.
type BookRequest struct {
	BusinessID string    `json:"business_id"`
	ServiceID  string    `json:"service_id"`
	StaffID    string    `json:"staff_id,omitempty"`
	CustomerID string    `json:"customer_id"`
	StartTime  time.Time `json:"start_time"`
	Notes      string    `json:"notes,omitempty"`
}

type CancelRequest struct {
	BusinessID    string `json:"business_id"`
	AppointmentID string `json:"appointment_id"`
	Reason        string `json:"reason,omitempty"`
	Force         bool   `json:"force,omitempty"`
}

type RescheduleRequest struct {
	BusinessID    string    `json:"business_id"`
	AppointmentID string    `json:"appointment_id"`
	NewStart      time.Time `json:"new_start"`
	StaffID       string    `json:"staff_id,omitempty"`
	Force         bool      `json:"force,omitempty"`
}

type UpdateStatusRequest struct {
	BusinessID    string `json:"business_id"`
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
}

type ListAppointmentsRequest struct {
	BusinessID  string    `json:"business_id"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
}

type ListAppointmentsResponse struct {
	Appointments []Appointment `json:"appointments"`
}

type Appointment struct {
	ID           string    `json:"id"`
	BusinessID   string    `json:"business_id"`
	ServiceID    string    `json:"service_id"`
	StaffID      string    `json:"staff_id,omitempty"`
	CustomerID   string    `json:"customer_id"`
	SeriesID     string    `json:"series_id,omitempty"`
	Status       string    `json:"status"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	PriceCents   int64     `json:"price_cents"`
	Currency     string    `json:"currency"`
	Notes        string    `json:"notes,omitempty"`
	CancelReason string    `json:"cancel_reason,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type AppointmentResponse struct {
	Appointment Appointment `json:"appointment"`
}

// Recurrence mirrors an RRULE subset. Weekdays are 0 (Sunday) to 6; Count 0
// means unset.
type Recurrence struct {
	Frequency  string     `json:"frequency"`
	Interval   int        `json:"interval"`
	Count      int        `json:"count,omitempty"`
	Until      *time.Time `json:"until,omitempty"`
	ByDay      []int      `json:"by_day,omitempty"`
	ByMonthDay []int      `json:"by_month_day,omitempty"`
	ByMonth    []int      `json:"by_month,omitempty"`
}

type BookRecurringRequest struct {
	BusinessID string     `json:"business_id"`
	ServiceID  string     `json:"service_id"`
	StaffID    string     `json:"staff_id,omitempty"`
	CustomerID string     `json:"customer_id"`
	StartTime  time.Time  `json:"start_time"`
	Rule       Recurrence `json:"rule"`
	Notes      string     `json:"notes,omitempty"`
}

type Occurrence struct {
	Start       time.Time    `json:"start"`
	Appointment *Appointment `json:"appointment,omitempty"`
	Reason      string       `json:"reason,omitempty"`
	Code        string       `json:"code,omitempty"`
}

type BookRecurringResponse struct {
	SeriesID    string       `json:"series_id"`
	Occurrences []Occurrence `json:"occurrences"`
	Booked      int          `json:"booked"`
	Truncated   bool         `json:"truncated,omitempty"`
}

// RescheduleOccurrenceRequest moves one occurrence to NewStart, or skips it
// when NewStart is absent.
type RescheduleOccurrenceRequest struct {
	BusinessID      string     `json:"business_id"`
	SeriesID        string     `json:"series_id"`
	OccurrenceStart time.Time  `json:"occurrence_start"`
	NewStart        *time.Time `json:"new_start,omitempty"`
	Force           bool       `json:"force,omitempty"`
}

type RescheduleOccurrenceResponse struct {
	ExceptionID string       `json:"exception_id"`
	Kind        string       `json:"kind"`
	Appointment *Appointment `json:"appointment,omitempty"`
}

type Business struct {
	ID       string             `json:"id,omitempty"`
	Name     string             `json:"name"`
	Timezone string             `json:"timezone,omitempty"`
	Tier     string             `json:"tier,omitempty"`
	Currency string             `json:"currency,omitempty"`
	Hours    domain.WeeklyHours `json:"hours"`
	Rules    rules.Overrides    `json:"rules"`
	Version  int64              `json:"version,omitempty"`
}

type Service struct {
	ID              string          `json:"id,omitempty"`
	BusinessID      string          `json:"business_id"`
	Name            string          `json:"name"`
	DurationMinutes int             `json:"duration_minutes"`
	PriceCents      int64           `json:"price_cents"`
	Currency        string          `json:"currency,omitempty"`
	RequiresStaff   bool            `json:"requires_staff"`
	Active          bool            `json:"active"`
	Rules           rules.Overrides `json:"rules"`
}

type Staff struct {
	ID         string             `json:"id,omitempty"`
	BusinessID string             `json:"business_id"`
	Name       string             `json:"name"`
	Active     bool               `json:"active"`
	ServiceIDs []string           `json:"service_ids"`
	Hours      domain.WeeklyHours `json:"hours"`
}

func idString(id uuid.UUID) string {
	if id == uuid.Nil {
		return ""
	}
	return id.String()
}

func toAppointment(a domain.Appointment) Appointment {
	return Appointment{
		ID:           a.ID.String(),
		BusinessID:   a.BusinessID.String(),
		ServiceID:    a.ServiceID.String(),
		StaffID:      idString(a.StaffID),
		CustomerID:   a.CustomerID,
		SeriesID:     idString(a.SeriesID),
		Status:       string(a.Status),
		StartTime:    a.StartTime.UTC(),
		EndTime:      a.EndTime.UTC(),
		PriceCents:   a.PriceCents,
		Currency:     a.Currency,
		Notes:        a.Notes,
		CancelReason: a.CancelReason,
		CreatedAt:    a.CreatedAt.UTC(),
		UpdatedAt:    a.UpdatedAt.UTC(),
	}
}

func toTimeSlot(s domain.TimeSlot) TimeSlot {
	return TimeSlot{
		Start:      s.Start.UTC(),
		End:        s.End.UTC(),
		StaffID:    idString(s.StaffID),
		ServiceID:  s.ServiceID.String(),
		PriceCents: s.PriceCents,
		Currency:   s.Currency,
	}
}

func toRecurringResponse(res appointments.RecurringResult) *BookRecurringResponse {
	out := &BookRecurringResponse{
		SeriesID:    idString(res.Series.ID),
		Occurrences: make([]Occurrence, 0, len(res.Occurrences)),
		Booked:      res.Booked(),
		Truncated:   res.Truncated,
	}
	for _, o := range res.Occurrences {
		occ := Occurrence{Start: o.Start.UTC()}
		if o.Appointment != nil {
			a := toAppointment(*o.Appointment)
			occ.Appointment = &a
		} else {
			occ.Reason = string(o.Reason)
			occ.Code = o.Reason.Code()
		}
		out.Occurrences = append(out.Occurrences, occ)
	}
	return out
}

func toRule(r Recurrence) domain.RecurrenceRule {
	rule := domain.RecurrenceRule{
		Frequency:  domain.RecurrenceFrequency(r.Frequency),
		Interval:   r.Interval,
		Until:      r.Until,
		ByMonthDay: r.ByMonthDay,
	}
	if r.Count > 0 {
		c := r.Count
		rule.Count = &c
	}
	for _, d := range r.ByDay {
		rule.ByDay = append(rule.ByDay, time.Weekday(d))
	}
	for _, m := range r.ByMonth {
		rule.ByMonth = append(rule.ByMonth, time.Month(m))
	}
	return rule
}

func toBusinessMessage(b domain.Business) *Business {
	return &Business{
		ID:       b.ID.String(),
		Name:     b.Name,
		Timezone: b.Timezone,
		Tier:     b.Tier,
		Currency: b.Currency,
		Hours:    b.Hours,
		Rules:    b.Rules,
		Version:  b.Version,
	}
}

func toServiceMessage(s domain.Service) *Service {
	return &Service{
		ID:              s.ID.String(),
		BusinessID:      s.BusinessID.String(),
		Name:            s.Name,
		DurationMinutes: s.DurationMinutes,
		PriceCents:      s.PriceCents,
		Currency:        s.Currency,
		RequiresStaff:   s.RequiresStaff,
		Active:          s.Active,
		Rules:           s.Rules,
	}
}

func toStaffMessage(s domain.Staff) *Staff {
	ids := make([]string, 0, len(s.ServiceIDs))
	for _, id := range s.ServiceIDs {
		ids = append(ids, id.String())
	}
	return &Staff{
		ID:         s.ID.String(),
		BusinessID: s.BusinessID.String(),
		Name:       s.Name,
		Active:     s.Active,
		ServiceIDs: ids,
		Hours:      s.Hours,
	}
}
