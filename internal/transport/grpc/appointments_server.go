package grpc

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/jonakson/beautyconnect/internal/domain"
	"github.com/jonakson/beautyconnect/internal/service/appointments"
)

type BookingServer struct {
	svc bookingService
	log *slog.Logger
}

type bookingService interface {
	Availability(ctx context.Context, in appointments.AvailabilityInput) ([]domain.TimeSlot, error)
	Book(ctx context.Context, in appointments.BookInput) (domain.Appointment, error)
	Cancel(ctx context.Context, in appointments.CancelInput) (domain.Appointment, error)
	Reschedule(ctx context.Context, in appointments.RescheduleInput) (domain.Appointment, error)
	UpdateStatus(ctx context.Context, businessID, appointmentID uuid.UUID, to domain.AppointmentStatus) (domain.Appointment, error)
	ListAppointments(ctx context.Context, businessID uuid.UUID, windowStart, windowEnd time.Time) ([]domain.Appointment, error)
	BookRecurring(ctx context.Context, in appointments.RecurringInput) (appointments.RecurringResult, error)
	RescheduleOccurrence(ctx context.Context, in appointments.OccurrenceChangeInput) (appointments.OccurrenceChange, error)
	SaveBusiness(ctx context.Context, b domain.Business) (domain.Business, error)
	SaveService(ctx context.Context, svc domain.Service) (domain.Service, error)
	SaveStaff(ctx context.Context, st domain.Staff) (domain.Staff, error)
}

var _ BookingServiceServer = (*BookingServer)(nil)

func NewBookingServer(svc bookingService, log *slog.Logger) *BookingServer {
	if log == nil {
		log = slog.Default()
	}
	return &BookingServer{
		svc: svc,
		log: log.With(slog.String("component", "grpc.booking")),
	}
}

// fail converts err to a status. The service layer has already logged the
// failure at the level its class deserves.
func (s *BookingServer) fail(log *slog.Logger, err error) error {
	st := toStatus(err)
	log.Debug("rpc failed", slog.String("code", status.Code(st).String()), slog.Any("err", err))
	return st
}

func parseID(field, raw string, required bool) (uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if required {
			return uuid.Nil, status.Error(codes.InvalidArgument, field+" is required")
		}
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, status.Error(codes.InvalidArgument, field+" must be a UUID")
	}
	return id, nil
}

func idempotencyKey(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get("idempotency-key")
	if len(values) == 0 {
		values = md.Get("x-idempotency-key")
	}
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}

func (s *BookingServer) Availability(ctx context.Context, req *AvailabilityRequest) (*AvailabilityResponse, error) {
	log := s.log.With(slog.String("rpc", "Availability"))

	businessID, err := parseID("business_id", req.BusinessID, true)
	if err != nil {
		return nil, err
	}
	serviceID, err := parseID("service_id", req.ServiceID, true)
	if err != nil {
		return nil, err
	}
	staffID, err := parseID("staff_id", req.StaffID, false)
	if err != nil {
		return nil, err
	}

	slots, err := s.svc.Availability(ctx, appointments.AvailabilityInput{
		BusinessID: businessID,
		ServiceID:  serviceID,
		StaffID:    staffID,
		From:       req.From,
		To:         req.To,
	})
	if err != nil {
		return nil, s.fail(log, err)
	}

	out := make([]TimeSlot, 0, len(slots))
	for _, sl := range slots {
		out = append(out, toTimeSlot(sl))
	}
	log.Debug("availability computed",
		slog.String("business_id", businessID.String()),
		slog.String("from", req.From),
		slog.String("to", req.To),
		slog.Int("count", len(out)),
	)
	return &AvailabilityResponse{Slots: out}, nil
}

func (s *BookingServer) Book(ctx context.Context, req *BookRequest) (*AppointmentResponse, error) {
	log := s.log.With(slog.String("rpc", "Book"))

	businessID, err := parseID("business_id", req.BusinessID, true)
	if err != nil {
		return nil, err
	}
	serviceID, err := parseID("service_id", req.ServiceID, true)
	if err != nil {
		return nil, err
	}
	staffID, err := parseID("staff_id", req.StaffID, false)
	if err != nil {
		return nil, err
	}
	if req.StartTime.IsZero() {
		return nil, status.Error(codes.InvalidArgument, "start_time is required")
	}

	appt, err := s.svc.Book(ctx, appointments.BookInput{
		BusinessID:     businessID,
		ServiceID:      serviceID,
		StaffID:        staffID,
		CustomerID:     req.CustomerID,
		StartTime:      req.StartTime,
		Notes:          req.Notes,
		IdempotencyKey: idempotencyKey(ctx),
	})
	if err != nil {
		return nil, s.fail(log, err)
	}

	log.Info("appointment booked",
		slog.String("appointment_id", appt.ID.String()),
		slog.String("business_id", appt.BusinessID.String()),
		slog.String("staff_id", appt.StaffID.String()),
		slog.Time("start_time", appt.StartTime),
	)
	return &AppointmentResponse{Appointment: toAppointment(appt)}, nil
}

func (s *BookingServer) Cancel(ctx context.Context, req *CancelRequest) (*AppointmentResponse, error) {
	log := s.log.With(slog.String("rpc", "Cancel"))

	businessID, err := parseID("business_id", req.BusinessID, true)
	if err != nil {
		return nil, err
	}
	id, err := parseID("appointment_id", req.AppointmentID, true)
	if err != nil {
		return nil, err
	}

	appt, err := s.svc.Cancel(ctx, appointments.CancelInput{
		BusinessID:    businessID,
		AppointmentID: id,
		Reason:        req.Reason,
		Force:         req.Force,
	})
	if err != nil {
		return nil, s.fail(log, err)
	}

	log.Info("appointment cancelled", slog.String("appointment_id", id.String()), slog.Bool("force", req.Force))
	return &AppointmentResponse{Appointment: toAppointment(appt)}, nil
}

func (s *BookingServer) Reschedule(ctx context.Context, req *RescheduleRequest) (*AppointmentResponse, error) {
	log := s.log.With(slog.String("rpc", "Reschedule"))

	businessID, err := parseID("business_id", req.BusinessID, true)
	if err != nil {
		return nil, err
	}
	id, err := parseID("appointment_id", req.AppointmentID, true)
	if err != nil {
		return nil, err
	}
	staffID, err := parseID("staff_id", req.StaffID, false)
	if err != nil {
		return nil, err
	}

	appt, err := s.svc.Reschedule(ctx, appointments.RescheduleInput{
		BusinessID:    businessID,
		AppointmentID: id,
		NewStart:      req.NewStart,
		StaffID:       staffID,
		Force:         req.Force,
	})
	if err != nil {
		return nil, s.fail(log, err)
	}

	log.Info("appointment rescheduled",
		slog.String("previous_id", id.String()),
		slog.String("appointment_id", appt.ID.String()),
		slog.Time("start_time", appt.StartTime),
	)
	return &AppointmentResponse{Appointment: toAppointment(appt)}, nil
}

func (s *BookingServer) UpdateStatus(ctx context.Context, req *UpdateStatusRequest) (*AppointmentResponse, error) {
	log := s.log.With(slog.String("rpc", "UpdateStatus"))

	businessID, err := parseID("business_id", req.BusinessID, true)
	if err != nil {
		return nil, err
	}
	id, err := parseID("appointment_id", req.AppointmentID, true)
	if err != nil {
		return nil, err
	}

	appt, err := s.svc.UpdateStatus(ctx, businessID, id, domain.AppointmentStatus(strings.ToLower(strings.TrimSpace(req.Status))))
	if err != nil {
		return nil, s.fail(log, err)
	}

	log.Info("appointment status changed", slog.String("appointment_id", id.String()), slog.String("status", string(appt.Status)))
	return &AppointmentResponse{Appointment: toAppointment(appt)}, nil
}

func (s *BookingServer) ListAppointments(ctx context.Context, req *ListAppointmentsRequest) (*ListAppointmentsResponse, error) {
	log := s.log.With(slog.String("rpc", "ListAppointments"))

	businessID, err := parseID("business_id", req.BusinessID, true)
	if err != nil {
		return nil, err
	}
	if req.WindowStart.IsZero() || req.WindowEnd.IsZero() {
		return nil, status.Error(codes.InvalidArgument, "window_start and window_end are required")
	}

	appts, err := s.svc.ListAppointments(ctx, businessID, req.WindowStart, req.WindowEnd)
	if err != nil {
		return nil, s.fail(log, err)
	}

	out := make([]Appointment, 0, len(appts))
	for _, a := range appts {
		out = append(out, toAppointment(a))
	}
	log.Debug("appointments listed",
		slog.String("business_id", businessID.String()),
		slog.Int("count", len(out)),
		slog.Time("window_start", req.WindowStart),
		slog.Time("window_end", req.WindowEnd),
	)
	return &ListAppointmentsResponse{Appointments: out}, nil
}

func (s *BookingServer) BookRecurring(ctx context.Context, req *BookRecurringRequest) (*BookRecurringResponse, error) {
	log := s.log.With(slog.String("rpc", "BookRecurring"))

	businessID, err := parseID("business_id", req.BusinessID, true)
	if err != nil {
		return nil, err
	}
	serviceID, err := parseID("service_id", req.ServiceID, true)
	if err != nil {
		return nil, err
	}
	staffID, err := parseID("staff_id", req.StaffID, false)
	if err != nil {
		return nil, err
	}

	res, err := s.svc.BookRecurring(ctx, appointments.RecurringInput{
		BusinessID: businessID,
		ServiceID:  serviceID,
		StaffID:    staffID,
		CustomerID: req.CustomerID,
		StartTime:  req.StartTime,
		Rule:       toRule(req.Rule),
		Notes:      req.Notes,
	})
	if err != nil {
		return nil, s.fail(log, err)
	}

	log.Info("recurring series booked",
		slog.String("series_id", res.Series.ID.String()),
		slog.Int("occurrences", len(res.Occurrences)),
		slog.Int("booked", res.Booked()),
		slog.Bool("truncated", res.Truncated),
	)
	return toRecurringResponse(res), nil
}

func (s *BookingServer) RescheduleOccurrence(ctx context.Context, req *RescheduleOccurrenceRequest) (*RescheduleOccurrenceResponse, error) {
	log := s.log.With(slog.String("rpc", "RescheduleOccurrence"))

	businessID, err := parseID("business_id", req.BusinessID, true)
	if err != nil {
		return nil, err
	}
	seriesID, err := parseID("series_id", req.SeriesID, true)
	if err != nil {
		return nil, err
	}

	change, err := s.svc.RescheduleOccurrence(ctx, appointments.OccurrenceChangeInput{
		BusinessID:      businessID,
		SeriesID:        seriesID,
		OccurrenceStart: req.OccurrenceStart,
		NewStart:        req.NewStart,
		Force:           req.Force,
	})
	if err != nil {
		return nil, s.fail(log, err)
	}

	out := &RescheduleOccurrenceResponse{
		ExceptionID: change.Exception.ID.String(),
		Kind:        string(change.Exception.Kind),
	}
	if change.Appointment != nil {
		a := toAppointment(*change.Appointment)
		out.Appointment = &a
	}
	log.Info("occurrence changed",
		slog.String("series_id", seriesID.String()),
		slog.String("kind", out.Kind),
		slog.Time("occurrence_start", req.OccurrenceStart),
	)
	return out, nil
}

func (s *BookingServer) SaveBusiness(ctx context.Context, req *Business) (*Business, error) {
	log := s.log.With(slog.String("rpc", "SaveBusiness"))

	id, err := parseID("id", req.ID, false)
	if err != nil {
		return nil, err
	}
	b, err := s.svc.SaveBusiness(ctx, domain.Business{
		ID:       id,
		Name:     req.Name,
		Timezone: req.Timezone,
		Tier:     req.Tier,
		Currency: req.Currency,
		Hours:    req.Hours,
		Rules:    req.Rules,
	})
	if err != nil {
		return nil, s.fail(log, err)
	}

	log.Info("business saved", slog.String("business_id", b.ID.String()), slog.Int64("version", b.Version))
	return toBusinessMessage(b), nil
}

func (s *BookingServer) SaveService(ctx context.Context, req *Service) (*Service, error) {
	log := s.log.With(slog.String("rpc", "SaveService"))

	id, err := parseID("id", req.ID, false)
	if err != nil {
		return nil, err
	}
	businessID, err := parseID("business_id", req.BusinessID, true)
	if err != nil {
		return nil, err
	}
	svc, err := s.svc.SaveService(ctx, domain.Service{
		ID:              id,
		BusinessID:      businessID,
		Name:            req.Name,
		DurationMinutes: req.DurationMinutes,
		PriceCents:      req.PriceCents,
		Currency:        req.Currency,
		RequiresStaff:   req.RequiresStaff,
		Active:          req.Active,
		Rules:           req.Rules,
	})
	if err != nil {
		return nil, s.fail(log, err)
	}

	log.Info("service saved", slog.String("service_id", svc.ID.String()), slog.String("business_id", businessID.String()))
	return toServiceMessage(svc), nil
}

func (s *BookingServer) SaveStaff(ctx context.Context, req *Staff) (*Staff, error) {
	log := s.log.With(slog.String("rpc", "SaveStaff"))

	id, err := parseID("id", req.ID, false)
	if err != nil {
		return nil, err
	}
	businessID, err := parseID("business_id", req.BusinessID, true)
	if err != nil {
		return nil, err
	}
	serviceIDs := make([]uuid.UUID, 0, len(req.ServiceIDs))
	for _, raw := range req.ServiceIDs {
		sid, err := parseID("service_ids", raw, true)
		if err != nil {
			return nil, err
		}
		serviceIDs = append(serviceIDs, sid)
	}

	st, err := s.svc.SaveStaff(ctx, domain.Staff{
		ID:         id,
		BusinessID: businessID,
		Name:       req.Name,
		Active:     req.Active,
		ServiceIDs: serviceIDs,
		Hours:      req.Hours,
	})
	if err != nil {
		return nil, s.fail(log, err)
	}

	log.Info("staff saved", slog.String("staff_id", st.ID.String()), slog.String("business_id", businessID.String()))
	return toStaffMessage(st), nil
}
