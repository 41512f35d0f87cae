package appointments

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/jonakson/beautyconnect/internal/booking"
	"github.com/jonakson/beautyconnect/internal/clock"
	"github.com/jonakson/beautyconnect/internal/domain"
	"github.com/jonakson/beautyconnect/internal/events"
	"github.com/jonakson/beautyconnect/internal/rules"
	"github.com/jonakson/beautyconnect/internal/store"
	"github.com/jonakson/beautyconnect/internal/store/memory"
)

// monday 07:00 UTC: 09:00 is the earliest bookable start that day.
var start0 = time.Date(2026, 1, 5, 7, 0, 0, 0, time.UTC)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type harness struct {
	svc      *Service
	store    *memory.Store
	clock    *testClock
	bus      *events.Local
	business domain.Business
	service  domain.Service
	staff    domain.Staff
}

func weekdayHours(open, close string) domain.WeeklyHours {
	var w domain.WeeklyHours
	for i := 1; i <= 6; i++ {
		w[i] = domain.DayHours{Open: true, OpensAt: open, ClosesAt: close}
	}
	return w
}

func newHarness(t *testing.T, tier string) *harness {
	t.Helper()
	h := &harness{store: memory.New("UTC"), clock: &testClock{t: start0}, bus: events.NewLocal(16)}
	policy := booking.Policy{
		Defaults:        rules.Defaults(),
		Tiers:           rules.DefaultTiers(),
		NoShow:          rules.DefaultNoShowPolicy(),
		DefaultTimezone: "UTC",
	}
	engine := booking.NewEngine(h.store, policy, h.bus, nil, booking.WithClock(h.clock.Now))
	h.svc = NewService(h.store, engine, h.bus, nil, WithClock(h.clock.Now))

	ctx := context.Background()
	var err error
	h.business, err = h.svc.SaveBusiness(ctx, domain.Business{Name: "Salon", Timezone: "UTC", Tier: tier, Currency: "EUR", Hours: weekdayHours("09:00", "17:00")})
	if err != nil {
		t.Fatalf("SaveBusiness error: %v", err)
	}
	h.service, err = h.svc.SaveService(ctx, domain.Service{BusinessID: h.business.ID, Name: "Cut", DurationMinutes: 30, PriceCents: 2500, RequiresStaff: true, Active: true})
	if err != nil {
		t.Fatalf("SaveService error: %v", err)
	}
	h.staff, err = h.svc.SaveStaff(ctx, domain.Staff{BusinessID: h.business.ID, Name: "Ana", Active: true, ServiceIDs: []uuid.UUID{h.service.ID}, Hours: weekdayHours("09:00", "17:00")})
	if err != nil {
		t.Fatalf("SaveStaff error: %v", err)
	}
	return h
}

func (h *harness) book(t *testing.T, start time.Time, customer string) domain.Appointment {
	t.Helper()
	appt, err := h.svc.Book(context.Background(), BookInput{
		BusinessID: h.business.ID, ServiceID: h.service.ID, StaffID: h.staff.ID, CustomerID: customer, StartTime: start,
	})
	if err != nil {
		t.Fatalf("Book(%s) error: %v", start, err)
	}
	return appt
}

func monday(hour, minute int) time.Time {
	return time.Date(2026, 1, 5, hour, minute, 0, 0, time.UTC)
}

func wantReason(t *testing.T, err error, want booking.Reason) {
	t.Helper()
	got, ok := booking.ReasonOf(err)
	if !ok || got != want {
		t.Fatalf("err = %v, want rejection %s", err, want)
	}
}

func wantValidation(t *testing.T, err error, msg string) {
	t.Helper()
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("error = %v (%T), want *ValidationError", err, err)
	}
	if msg != "" && vErr.Error() != msg {
		t.Fatalf("error = %q, want %q", vErr.Error(), msg)
	}
}

func TestAvailability_Validation(t *testing.T) {
	h := newHarness(t, "free")
	ctx := context.Background()
	base := AvailabilityInput{BusinessID: h.business.ID, ServiceID: h.service.ID, From: "2026-01-05", To: "2026-01-05"}

	tests := []struct {
		name   string
		mutate func(*AvailabilityInput)
		msg    string
		format bool
	}{
		{name: "missing business", mutate: func(in *AvailabilityInput) { in.BusinessID = uuid.Nil }, msg: "business_id is required"},
		{name: "missing service", mutate: func(in *AvailabilityInput) { in.ServiceID = uuid.Nil }, msg: "service_id is required"},
		{name: "malformed from", mutate: func(in *AvailabilityInput) { in.From = "05/01/2026" }, format: true},
		{name: "malformed to", mutate: func(in *AvailabilityInput) { in.To = "2026-13-01" }, format: true},
		{name: "reversed range", mutate: func(in *AvailabilityInput) { in.From = "2026-01-06" }, msg: "to must not be before from"},
		{name: "range too long", mutate: func(in *AvailabilityInput) { in.To = "2026-03-01" }, msg: "date range too long"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			in := base
			tc.mutate(&in)
			_, err := h.svc.Availability(ctx, in)
			wantValidation(t, err, tc.msg)
			if tc.format && !errors.Is(err, clock.ErrInvalidFormat) {
				t.Fatalf("err = %v, want ErrInvalidFormat", err)
			}
		})
	}

	unknown := base
	unknown.ServiceID = uuid.New()
	if _, err := h.svc.Availability(ctx, unknown); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestAvailability_ReflectsBookings(t *testing.T) {
	h := newHarness(t, "free")
	ctx := context.Background()
	in := AvailabilityInput{BusinessID: h.business.ID, ServiceID: h.service.ID, From: "2026-01-05", To: "2026-01-05"}

	before, err := h.svc.Availability(ctx, in)
	if err != nil {
		t.Fatalf("Availability error: %v", err)
	}
	if len(before) != 30 {
		t.Fatalf("len(slots) = %d, want 30", len(before))
	}
	for _, s := range before {
		if s.StaffID != h.staff.ID || s.PriceCents != 2500 || s.Currency != "EUR" {
			t.Fatalf("slot = %+v", s)
		}
	}

	h.book(t, monday(10, 0), "cust-1")
	after, err := h.svc.Availability(ctx, in)
	if err != nil {
		t.Fatalf("Availability error: %v", err)
	}
	// 09:30 through 10:30 lose their envelope.
	if len(after) != len(before)-5 {
		t.Fatalf("len(slots) = %d, want %d", len(after), len(before)-5)
	}
	for _, s := range after {
		if s.Start.Before(monday(10, 45)) && s.End.Add(15*time.Minute).After(monday(10, 0)) {
			t.Fatalf("slot %s overlaps the booking", s.Start)
		}
	}

	// Every advertised slot can be booked.
	for _, s := range []domain.TimeSlot{after[0], after[len(after)-1]} {
		if _, err := h.svc.Book(ctx, BookInput{BusinessID: h.business.ID, ServiceID: h.service.ID, StaffID: s.StaffID, CustomerID: "cust-2", StartTime: s.Start}); err != nil {
			t.Fatalf("Book(%s) error: %v", s.Start, err)
		}
	}
}

func TestBook_Validation(t *testing.T) {
	h := newHarness(t, "free")
	base := BookInput{BusinessID: h.business.ID, ServiceID: h.service.ID, CustomerID: "cust-1", StartTime: monday(10, 0)}

	tests := []struct {
		name   string
		mutate func(*BookInput)
		msg    string
	}{
		{name: "missing business", mutate: func(in *BookInput) { in.BusinessID = uuid.Nil }, msg: "business_id is required"},
		{name: "missing service", mutate: func(in *BookInput) { in.ServiceID = uuid.Nil }, msg: "service_id is required"},
		{name: "missing customer", mutate: func(in *BookInput) { in.CustomerID = "  " }, msg: "customer_id is required"},
		{name: "missing start", mutate: func(in *BookInput) { in.StartTime = time.Time{} }, msg: "start_time is required"},
		{name: "long key", mutate: func(in *BookInput) { in.IdempotencyKey = strings.Repeat("k", 300) }, msg: "idempotency_key too long"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			in := base
			tc.mutate(&in)
			_, err := h.svc.Book(context.Background(), in)
			wantValidation(t, err, tc.msg)
		})
	}
}

func TestBook_IdempotencyKey(t *testing.T) {
	h := newHarness(t, "free")
	ctx := context.Background()
	in := BookInput{BusinessID: h.business.ID, ServiceID: h.service.ID, StaffID: h.staff.ID, CustomerID: "cust-1", StartTime: monday(10, 0), IdempotencyKey: "req-1"}

	first, err := h.svc.Book(ctx, in)
	if err != nil {
		t.Fatalf("Book error: %v", err)
	}
	want := uuid.NewSHA1(uuid.NameSpaceOID, []byte("beautyconnect:book:"+h.business.ID.String()+":cust-1:req-1"))
	if first.ID != want {
		t.Fatalf("ID = %s, want %s", first.ID, want)
	}

	again, err := h.svc.Book(ctx, in)
	if err != nil {
		t.Fatalf("replay error: %v", err)
	}
	if again.ID != first.ID {
		t.Fatalf("replay ID = %s, want %s", again.ID, first.ID)
	}

	in.StartTime = monday(14, 0)
	if _, err := h.svc.Book(ctx, in); !errors.Is(err, store.ErrIdempotencyConflict) {
		t.Fatalf("err = %v, want ErrIdempotencyConflict", err)
	}

	list, err := h.svc.ListAppointments(ctx, h.business.ID, monday(0, 0), monday(23, 0))
	if err != nil {
		t.Fatalf("ListAppointments error: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("len(list) = %d, want 1", len(list))
	}
}

func TestBook_AutoAssignsStaff(t *testing.T) {
	h := newHarness(t, "professional")
	ctx := context.Background()
	second, err := h.svc.SaveStaff(ctx, domain.Staff{BusinessID: h.business.ID, Name: "Bea", Active: true, ServiceIDs: []uuid.UUID{h.service.ID}, Hours: weekdayHours("09:00", "17:00")})
	if err != nil {
		t.Fatalf("SaveStaff error: %v", err)
	}

	seen := map[uuid.UUID]bool{}
	for i := 0; i < 2; i++ {
		appt, err := h.svc.Book(ctx, BookInput{BusinessID: h.business.ID, ServiceID: h.service.ID, CustomerID: "cust-1", StartTime: monday(10, 0)})
		if err != nil {
			t.Fatalf("Book #%d error: %v", i, err)
		}
		seen[appt.StaffID] = true
	}
	if !seen[h.staff.ID] || !seen[second.ID] {
		t.Fatalf("assigned staff = %v, want both members", seen)
	}

	_, err = h.svc.Book(ctx, BookInput{BusinessID: h.business.ID, ServiceID: h.service.ID, CustomerID: "cust-1", StartTime: monday(10, 0)})
	wantReason(t, err, booking.ReasonSlotConflict)
}

func TestCancel(t *testing.T) {
	h := newHarness(t, "free")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := h.bus.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe error: %v", err)
	}

	soon := h.book(t, monday(10, 0), "cust-1")
	later := h.book(t, monday(10, 0).Add(48*time.Hour), "cust-1")

	_, err = h.svc.Cancel(ctx, CancelInput{BusinessID: h.business.ID, AppointmentID: soon.ID})
	wantReason(t, err, booking.ReasonCancellationWindowExpired)

	forced, err := h.svc.Cancel(ctx, CancelInput{BusinessID: h.business.ID, AppointmentID: soon.ID, Reason: "staff sick", Force: true})
	if err != nil {
		t.Fatalf("forced Cancel error: %v", err)
	}
	if forced.Status != domain.StatusCancelled || forced.CancelReason != "staff sick" {
		t.Fatalf("cancelled = %+v", forced)
	}
	ev := receive(t, ch, events.BookingCancelled)
	if ev.AppointmentID != soon.ID.String() || ev.Status != string(domain.StatusCancelled) {
		t.Fatalf("event = %+v", ev)
	}

	if _, err := h.svc.Cancel(ctx, CancelInput{BusinessID: h.business.ID, AppointmentID: later.ID}); err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	again, err := h.svc.Cancel(ctx, CancelInput{BusinessID: h.business.ID, AppointmentID: later.ID})
	if err != nil || again.Status != domain.StatusCancelled {
		t.Fatalf("second Cancel = %v, %v; want idempotent success", again.Status, err)
	}

	// The freed slot is bookable again.
	h.book(t, monday(10, 0), "cust-2")

	if _, err := h.svc.Cancel(ctx, CancelInput{BusinessID: h.business.ID, AppointmentID: uuid.New()}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestReschedule(t *testing.T) {
	h := newHarness(t, "free")
	ctx := context.Background()
	orig := h.book(t, monday(10, 0), "cust-1")
	h.book(t, monday(12, 0), "cust-2")

	_, err := h.svc.Reschedule(ctx, RescheduleInput{BusinessID: h.business.ID, AppointmentID: orig.ID, NewStart: monday(12, 15)})
	wantReason(t, err, booking.ReasonSlotConflict)

	// Overlapping its own old interval is fine.
	moved, err := h.svc.Reschedule(ctx, RescheduleInput{BusinessID: h.business.ID, AppointmentID: orig.ID, NewStart: monday(10, 15)})
	if err != nil {
		t.Fatalf("Reschedule error: %v", err)
	}
	if moved.ID == orig.ID || !moved.StartTime.Equal(monday(10, 15)) || moved.CustomerID != "cust-1" {
		t.Fatalf("moved = %+v", moved)
	}
	old, err := h.store.GetAppointment(ctx, h.business.ID, orig.ID)
	if err != nil {
		t.Fatalf("GetAppointment error: %v", err)
	}
	if old.Status != domain.StatusCancelled {
		t.Fatalf("old status = %s, want cancelled", old.Status)
	}

	_, err = h.svc.Reschedule(ctx, RescheduleInput{BusinessID: h.business.ID, AppointmentID: orig.ID, NewStart: monday(15, 0)})
	wantReason(t, err, booking.ReasonInvalidTransition)

	h.clock.Set(monday(8, 30))
	_, err = h.svc.Reschedule(ctx, RescheduleInput{BusinessID: h.business.ID, AppointmentID: moved.ID, NewStart: monday(15, 0)})
	wantReason(t, err, booking.ReasonCancellationWindowExpired)
}

func TestUpdateStatus(t *testing.T) {
	h := newHarness(t, "free")
	ctx := context.Background()
	appt := h.book(t, monday(10, 0), "cust-1")

	_, err := h.svc.UpdateStatus(ctx, h.business.ID, appt.ID, domain.StatusCancelled)
	wantValidation(t, err, "use Cancel to cancel an appointment")

	_, err = h.svc.UpdateStatus(ctx, h.business.ID, appt.ID, domain.StatusCompleted)
	wantReason(t, err, booking.ReasonInvalidTransition)

	confirmed, err := h.svc.UpdateStatus(ctx, h.business.ID, appt.ID, domain.StatusConfirmed)
	if err != nil || confirmed.Status != domain.StatusConfirmed {
		t.Fatalf("confirm = %v, %v", confirmed.Status, err)
	}
	if _, err := h.svc.UpdateStatus(ctx, h.business.ID, appt.ID, domain.StatusConfirmed); err != nil {
		t.Fatalf("repeated confirm error: %v", err)
	}

	_, err = h.svc.UpdateStatus(ctx, h.business.ID, appt.ID, domain.StatusCompleted)
	wantReason(t, err, booking.ReasonInvalidTransition)

	h.clock.Set(monday(11, 0))
	done, err := h.svc.UpdateStatus(ctx, h.business.ID, appt.ID, domain.StatusCompleted)
	if err != nil || done.Status != domain.StatusCompleted {
		t.Fatalf("complete = %v, %v", done.Status, err)
	}
	_, err = h.svc.UpdateStatus(ctx, h.business.ID, appt.ID, domain.StatusNoShow)
	wantReason(t, err, booking.ReasonInvalidTransition)
}

func TestNoShowsBlockCustomer(t *testing.T) {
	h := newHarness(t, "free")
	ctx := context.Background()

	var ids []uuid.UUID
	for _, hour := range []int{9, 11, 13} {
		ids = append(ids, h.book(t, monday(hour, 0), "cust-1").ID)
	}
	h.clock.Set(monday(15, 0))
	for _, id := range ids {
		if _, err := h.svc.UpdateStatus(ctx, h.business.ID, id, domain.StatusConfirmed); err != nil {
			t.Fatalf("confirm error: %v", err)
		}
		if _, err := h.svc.UpdateStatus(ctx, h.business.ID, id, domain.StatusNoShow); err != nil {
			t.Fatalf("no-show error: %v", err)
		}
	}

	tuesday := monday(10, 0).Add(24 * time.Hour)
	_, err := h.svc.Book(ctx, BookInput{BusinessID: h.business.ID, ServiceID: h.service.ID, StaffID: h.staff.ID, CustomerID: "cust-1", StartTime: tuesday})
	wantReason(t, err, booking.ReasonCustomerBlocked)

	h.book(t, tuesday, "cust-2")
}

func TestBookRecurring(t *testing.T) {
	h := newHarness(t, "free")
	ctx := context.Background()
	// Another customer holds the second Monday.
	h.book(t, monday(10, 0).Add(7*24*time.Hour), "cust-2")

	count := 4
	res, err := h.svc.BookRecurring(ctx, RecurringInput{
		BusinessID: h.business.ID, ServiceID: h.service.ID, StaffID: h.staff.ID, CustomerID: "cust-1",
		StartTime: monday(10, 0),
		Rule:      domain.RecurrenceRule{Frequency: domain.RecurrenceFrequencyWeekly, Interval: 1, Count: &count},
	})
	if err != nil {
		t.Fatalf("BookRecurring error: %v", err)
	}
	if len(res.Occurrences) != 4 || res.Booked() != 3 || res.Truncated {
		t.Fatalf("result = %d occurrences, %d booked, truncated %v", len(res.Occurrences), res.Booked(), res.Truncated)
	}
	if res.Occurrences[1].Reason != booking.ReasonSlotConflict || res.Occurrences[1].Appointment != nil {
		t.Fatalf("second occurrence = %+v, want SlotConflict", res.Occurrences[1])
	}
	for i, o := range res.Occurrences {
		if want := monday(10, 0).AddDate(0, 0, 7*i); !o.Start.Equal(want) {
			t.Fatalf("occurrence %d start = %s, want %s", i, o.Start, want)
		}
		if o.Appointment != nil && o.Appointment.SeriesID != res.Series.ID {
			t.Fatalf("occurrence %d SeriesID = %s, want %s", i, o.Appointment.SeriesID, res.Series.ID)
		}
	}

	_, err = h.svc.BookRecurring(ctx, RecurringInput{
		BusinessID: h.business.ID, ServiceID: h.service.ID, CustomerID: "cust-1", StartTime: monday(10, 0),
		Rule: domain.RecurrenceRule{Frequency: domain.RecurrenceFrequencyWeekly, Interval: 1},
	})
	wantValidation(t, err, "exactly one of count or until is required")
}

func TestBookRecurring_StopsAtLookahead(t *testing.T) {
	h := newHarness(t, "enterprise")
	until := monday(10, 0).AddDate(1, 0, 0)
	res, err := h.svc.BookRecurring(context.Background(), RecurringInput{
		BusinessID: h.business.ID, ServiceID: h.service.ID, StaffID: h.staff.ID, CustomerID: "cust-1",
		StartTime: monday(10, 0),
		Rule:      domain.RecurrenceRule{Frequency: domain.RecurrenceFrequencyWeekly, Interval: 1, Until: &until},
	})
	if err != nil {
		t.Fatalf("BookRecurring error: %v", err)
	}
	if !res.Truncated {
		t.Fatalf("expected truncation at the lookahead")
	}
	if got := len(res.Occurrences); got != 26 {
		t.Fatalf("occurrences = %d, want 26 within 180 days", got)
	}
	// Occurrences past the 90 day booking window are reported, not booked.
	last := res.Occurrences[len(res.Occurrences)-1]
	if last.Reason != booking.ReasonOutsideBookingWindow {
		t.Fatalf("last occurrence reason = %q, want OutsideBookingWindow", last.Reason)
	}
}

func TestRescheduleOccurrence(t *testing.T) {
	h := newHarness(t, "free")
	ctx := context.Background()
	count := 3
	res, err := h.svc.BookRecurring(ctx, RecurringInput{
		BusinessID: h.business.ID, ServiceID: h.service.ID, StaffID: h.staff.ID, CustomerID: "cust-1",
		StartTime: monday(10, 0),
		Rule:      domain.RecurrenceRule{Frequency: domain.RecurrenceFrequencyWeekly, Interval: 1, Count: &count},
	})
	if err != nil || res.Booked() != 3 {
		t.Fatalf("BookRecurring = %d booked, %v", res.Booked(), err)
	}

	second := res.Occurrences[1]
	newStart := second.Start.Add(4 * time.Hour)
	change, err := h.svc.RescheduleOccurrence(ctx, OccurrenceChangeInput{
		BusinessID: h.business.ID, SeriesID: res.Series.ID, OccurrenceStart: second.Start, NewStart: &newStart,
	})
	if err != nil {
		t.Fatalf("RescheduleOccurrence error: %v", err)
	}
	if change.Exception.Kind != domain.RecurringExceptionKindOverride || change.Appointment == nil {
		t.Fatalf("change = %+v", change)
	}
	if !change.Appointment.StartTime.Equal(newStart) || change.Appointment.SeriesID != res.Series.ID {
		t.Fatalf("moved appointment = %+v", change.Appointment)
	}
	old, _ := h.store.GetAppointment(ctx, h.business.ID, second.Appointment.ID)
	if old.Status != domain.StatusCancelled {
		t.Fatalf("replaced occurrence status = %s, want cancelled", old.Status)
	}

	third := res.Occurrences[2]
	skip, err := h.svc.RescheduleOccurrence(ctx, OccurrenceChangeInput{BusinessID: h.business.ID, SeriesID: res.Series.ID, OccurrenceStart: third.Start})
	if err != nil {
		t.Fatalf("skip error: %v", err)
	}
	if skip.Exception.Kind != domain.RecurringExceptionKindSkip || skip.Appointment != nil {
		t.Fatalf("skip = %+v", skip)
	}
	skipped, _ := h.store.GetAppointment(ctx, h.business.ID, third.Appointment.ID)
	if skipped.Status != domain.StatusCancelled {
		t.Fatalf("skipped occurrence status = %s, want cancelled", skipped.Status)
	}

	_, err = h.svc.RescheduleOccurrence(ctx, OccurrenceChangeInput{BusinessID: h.business.ID, SeriesID: res.Series.ID, OccurrenceStart: monday(11, 0)})
	wantValidation(t, err, "occurrence_start is not an occurrence of the series")
}

func TestRescheduleOccurrence_RepeatedChangesKeepOneBooking(t *testing.T) {
	h := newHarness(t, "free")
	ctx := context.Background()
	count := 2
	res, err := h.svc.BookRecurring(ctx, RecurringInput{
		BusinessID: h.business.ID, ServiceID: h.service.ID, StaffID: h.staff.ID, CustomerID: "cust-1",
		StartTime: monday(10, 0),
		Rule:      domain.RecurrenceRule{Frequency: domain.RecurrenceFrequencyWeekly, Interval: 1, Count: &count},
	})
	if err != nil || res.Booked() != 2 {
		t.Fatalf("BookRecurring = %d booked, %v", res.Booked(), err)
	}
	occ := res.Occurrences[1].Start

	live := func() []domain.Appointment {
		t.Helper()
		all, err := h.svc.ListAppointments(ctx, h.business.ID, occ.Add(-time.Hour), occ.Add(8*time.Hour))
		if err != nil {
			t.Fatalf("ListAppointments error: %v", err)
		}
		var out []domain.Appointment
		for _, a := range all {
			if a.SeriesID == res.Series.ID && a.Status.Occupies() {
				out = append(out, a)
			}
		}
		return out
	}

	for _, shift := range []time.Duration{2 * time.Hour, 4 * time.Hour} {
		newStart := occ.Add(shift)
		if _, err := h.svc.RescheduleOccurrence(ctx, OccurrenceChangeInput{
			BusinessID: h.business.ID, SeriesID: res.Series.ID, OccurrenceStart: occ, NewStart: &newStart,
		}); err != nil {
			t.Fatalf("move by %s error: %v", shift, err)
		}
		got := live()
		if len(got) != 1 || !got[0].StartTime.Equal(newStart) {
			t.Fatalf("after move by %s live = %+v, want one at %s", shift, got, newStart)
		}
	}

	if _, err := h.svc.RescheduleOccurrence(ctx, OccurrenceChangeInput{
		BusinessID: h.business.ID, SeriesID: res.Series.ID, OccurrenceStart: occ,
	}); err != nil {
		t.Fatalf("skip error: %v", err)
	}
	if got := live(); len(got) != 0 {
		t.Fatalf("after skip live = %+v, want none", got)
	}
}

func TestCatalogValidation(t *testing.T) {
	h := newHarness(t, "free")
	ctx := context.Background()

	_, err := h.svc.SaveBusiness(ctx, domain.Business{Name: "X", Timezone: "Mars/Olympus"})
	wantValidation(t, err, "invalid timezone")
	_, err = h.svc.SaveBusiness(ctx, domain.Business{Name: "X", Tier: "platinum"})
	wantValidation(t, err, "unknown tier")

	_, err = h.svc.SaveService(ctx, domain.Service{BusinessID: h.business.ID, Name: "Odd", DurationMinutes: 20, Active: true})
	wantValidation(t, err, "duration must be a multiple of 15 minutes")

	_, err = h.svc.SaveStaff(ctx, domain.Staff{BusinessID: h.business.ID, Name: "Late", Active: true, Hours: weekdayHours("08:00", "12:00")})
	wantValidation(t, err, "")

	_, err = h.svc.SaveStaff(ctx, domain.Staff{BusinessID: h.business.ID, Name: "Bea", Active: true, ServiceIDs: []uuid.UUID{uuid.New()}, Hours: weekdayHours("09:00", "12:00")})
	wantValidation(t, err, "")

	// The free tier allows a single staff member.
	_, err = h.svc.SaveStaff(ctx, domain.Staff{BusinessID: h.business.ID, Name: "Bea", Active: true, Hours: weekdayHours("09:00", "12:00")})
	wantReason(t, err, booking.ReasonTierLimitExceeded)

	// Updating the existing member is not a new seat.
	h.staff.Name = "Ana María"
	if _, err := h.svc.SaveStaff(ctx, h.staff); err != nil {
		t.Fatalf("SaveStaff update error: %v", err)
	}
}

type fakeStore struct {
	store.Store
	getAppointment func(ctx context.Context, businessID, appointmentID uuid.UUID) (domain.Appointment, error)
}

func (f *fakeStore) GetAppointment(ctx context.Context, businessID, appointmentID uuid.UUID) (domain.Appointment, error) {
	if f.getAppointment == nil {
		panic("GetAppointment not configured")
	}
	return f.getAppointment(ctx, businessID, appointmentID)
}

func TestStoreErrorsPassThrough(t *testing.T) {
	boom := errors.New("connection reset")
	fs := &fakeStore{getAppointment: func(ctx context.Context, businessID, appointmentID uuid.UUID) (domain.Appointment, error) {
		return domain.Appointment{}, boom
	}}
	engine := booking.NewEngine(fs, booking.Policy{Defaults: rules.Defaults(), DefaultTimezone: "UTC"}, nil, nil)
	svc := NewService(fs, engine, nil, nil)

	_, err := svc.Cancel(context.Background(), CancelInput{BusinessID: uuid.New(), AppointmentID: uuid.New()})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	_, err = svc.Book(context.Background(), BookInput{BusinessID: uuid.New(), ServiceID: uuid.New(), CustomerID: "c", StartTime: start0, IdempotencyKey: "k"})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}

// receive waits for the next event of type want, skipping others.
func receive(t *testing.T, ch <-chan events.Event, want events.Type) events.Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Type == want {
				return ev
			}
		case <-timeout:
			t.Fatalf("no %s event received", want)
			return events.Event{}
		}
	}
}
