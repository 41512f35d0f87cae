// Package appointments is the application layer: it validates caller input,
// runs availability queries and drives the booking engine for every write.
package appointments

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jonakson/beautyconnect/internal/booking"
	"github.com/jonakson/beautyconnect/internal/domain"
	"github.com/jonakson/beautyconnect/internal/events"
	"github.com/jonakson/beautyconnect/internal/store"
)

const (
	tracerName      = "github.com/jonakson/beautyconnect/internal/service/appointments"
	publishTimeout  = 5 * time.Second
	maxKeyLength    = 256
	maxNotesLength  = 2000
	maxListWindow   = 93 * 24 * time.Hour
	maxQueryDays    = 31
	idempotencyRoot = "beautyconnect"
)

type ValidationError struct {
	msg string
	err error
}

func (e *ValidationError) Error() string {
	return e.msg
}

func (e *ValidationError) Unwrap() error {
	return e.err
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

// invalidFormat reports a malformed field while keeping the parse error
// reachable through errors.Is.
func invalidFormat(field string, err error) error {
	return &ValidationError{msg: field + ": " + err.Error(), err: err}
}

type Service struct {
	store  store.Store
	engine *booking.Engine
	bus    events.Publisher
	tracer trace.Tracer
	now    func() time.Time
	log    *slog.Logger
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(st store.Store, engine *booking.Engine, bus events.Publisher, log *slog.Logger, opts ...Option) *Service {
	if log == nil {
		log = slog.Default()
	}
	if bus == nil {
		bus = events.Discard{}
	}
	s := &Service{
		store:  st,
		engine: engine,
		bus:    bus,
		tracer: otel.Tracer(tracerName),
		now:    time.Now,
		log:    log.With(slog.String("component", "service.appointments")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func requireID(id uuid.UUID, field string) error {
	if id == uuid.Nil {
		return validationError(field + " is required")
	}
	return nil
}

// idempotentID derives a stable appointment ID from a caller key so a retried
// request lands on the same row.
func idempotentID(parts ...string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(idempotencyRoot+":"+strings.Join(parts, ":")))
}

// finish records err on span and logs it at the level its class deserves.
func (s *Service) finish(span trace.Span, op string, err error, attrs ...slog.Attr) {
	defer span.End()
	if err == nil {
		return
	}

	args := make([]any, 0, len(attrs)+2)
	args = append(args, slog.String("op", op), slog.Any("err", err))
	for _, a := range attrs {
		args = append(args, a)
	}

	var vErr *ValidationError
	reason, rejected := booking.ReasonOf(err)
	switch {
	case rejected:
		span.SetAttributes(attribute.String("booking.rejection", string(reason)))
		s.log.Info("booking rejected", args...)
	case errors.As(err, &vErr):
		s.log.Warn("invalid request", args...)
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrIdempotencyConflict), errors.Is(err, booking.ErrStaleData):
		s.log.Info("request not applied", args...)
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.log.Error("request failed", args...)
	}
}

// publish sends e without holding up the caller; failures are only logged.
func (s *Service) publish(ctx context.Context, e events.Event) {
	ctx = context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(ctx, publishTimeout)
		defer cancel()
		if err := s.bus.Publish(ctx, e); err != nil {
			s.log.Warn("event publish failed",
				slog.Any("err", err),
				slog.String("event_type", string(e.Type)),
				slog.String("appointment_id", e.AppointmentID),
			)
		}
	}()
}

// catalog loads the business with its services and staff but no appointments.
func (s *Service) catalog(ctx context.Context, businessID uuid.UUID) (domain.BusinessState, error) {
	now := s.now()
	return s.store.LoadState(ctx, store.StateQuery{BusinessID: businessID, From: now, To: now})
}
