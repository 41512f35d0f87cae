package availability

import (
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/jonakson/beautyconnect/internal/clock"
	"github.com/jonakson/beautyconnect/internal/domain"
	"github.com/jonakson/beautyconnect/internal/rules"
)

var (
	businessID = uuid.MustParse("00000000-0000-0000-0000-0000000000b1")
	serviceID  = uuid.MustParse("00000000-0000-0000-0000-0000000000c1")
	staffA     = uuid.MustParse("00000000-0000-0000-0000-0000000000a1")
	staffB     = uuid.MustParse("00000000-0000-0000-0000-0000000000a2")
	monday     = clock.Date{Year: 2026, Month: time.January, Day: 5}
)

func weekdayHours(open, close string, breaks ...domain.Break) domain.WeeklyHours {
	var w domain.WeeklyHours
	for i := 1; i <= 6; i++ {
		w[i] = domain.DayHours{Open: true, OpensAt: open, ClosesAt: close, Breaks: breaks}
	}
	return w
}

func staffMember(id uuid.UUID, hours domain.WeeklyHours) domain.Staff {
	return domain.Staff{ID: id, BusinessID: businessID, Active: true, ServiceIDs: []uuid.UUID{serviceID}, Hours: hours}
}

func appt(staff uuid.UUID, start, end time.Time, status domain.AppointmentStatus) domain.Appointment {
	return domain.Appointment{
		ID:         uuid.New(),
		BusinessID: businessID,
		ServiceID:  serviceID,
		StaffID:    staff,
		Status:     status,
		StartTime:  start,
		EndTime:    end,
	}
}

func baseInput() Input {
	rs := rules.Defaults()
	return Input{
		Business: domain.Business{ID: businessID, Timezone: "UTC", Hours: weekdayHours("09:00", "17:00")},
		Location: time.UTC,
		Service: domain.Service{
			ID: serviceID, BusinessID: businessID, DurationMinutes: 30, RequiresStaff: true, Active: true,
			PriceCents: 2500, Currency: "EUR",
		},
		Staff: []domain.Staff{staffMember(staffA, weekdayHours("09:00", "17:00"))},
		From:  monday,
		To:    monday,
		Rules: rs,
		Now:   time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC),
	}
}

func at(h, m int) time.Time {
	return monday.At(h*60+m, time.UTC)
}

func starts(slots []domain.TimeSlot) map[time.Time]bool {
	out := make(map[time.Time]bool, len(slots))
	for _, s := range slots {
		out[s.Start] = true
	}
	return out
}

func TestComputeSlots_OpenDayWithBuffer(t *testing.T) {
	slots := ComputeSlots(baseInput())
	if len(slots) != 30 {
		t.Fatalf("len(slots) = %d, want 30", len(slots))
	}
	if !slots[0].Start.Equal(at(9, 0)) || !slots[0].End.Equal(at(9, 30)) {
		t.Fatalf("first slot = %v-%v, want 09:00-09:30", slots[0].Start, slots[0].End)
	}
	if !slots[1].Start.Equal(at(9, 15)) {
		t.Fatalf("second slot = %v, want 09:15", slots[1].Start)
	}
	last := slots[len(slots)-1]
	if !last.Start.Equal(at(16, 15)) {
		t.Fatalf("last slot = %v, want 16:15", last.Start)
	}
	if !slots[0].Available || slots[0].StaffID != staffA || slots[0].PriceCents != 2500 || slots[0].Currency != "EUR" {
		t.Fatalf("slot = %+v", slots[0])
	}
}

func TestComputeSlots_ExistingAppointmentExcludesEnvelope(t *testing.T) {
	in := baseInput()
	in.Appointments = []domain.Appointment{appt(staffA, at(10, 0), at(10, 30), domain.StatusConfirmed)}

	got := starts(ComputeSlots(in))
	for m := 9*60 + 45; m < 10*60+45; m += 15 {
		if got[monday.At(m, time.UTC)] {
			t.Fatalf("slot at %s must be excluded", clock.FormatClock(m))
		}
	}
	if got[at(9, 30)] {
		t.Fatalf("09:30 ends at 10:00 and its trailing buffer reaches into the appointment")
	}
	if !got[at(9, 15)] {
		t.Fatalf("09:15 must remain available")
	}
	if !got[at(10, 45)] {
		t.Fatalf("10:45 must remain available")
	}
}

func TestComputeSlots_IgnoresHistoricalAppointments(t *testing.T) {
	for _, status := range []domain.AppointmentStatus{domain.StatusCancelled, domain.StatusCompleted, domain.StatusNoShow} {
		in := baseInput()
		in.Appointments = []domain.Appointment{appt(staffA, at(10, 0), at(10, 30), status)}
		if got := len(ComputeSlots(in)); got != 30 {
			t.Fatalf("%s: len(slots) = %d, want 30", status, got)
		}
	}
}

func TestComputeSlots_PendingOccupies(t *testing.T) {
	in := baseInput()
	in.Appointments = []domain.Appointment{appt(staffA, at(10, 0), at(10, 30), domain.StatusPending)}
	if starts(ComputeSlots(in))[at(10, 0)] {
		t.Fatalf("pending appointment must occupy its slot")
	}
}

func TestComputeSlots_DailyLimit(t *testing.T) {
	in := baseInput()
	in.Rules.MaxAppointmentsPerStaffPerDay = 1
	in.Staff = append(in.Staff, staffMember(staffB, weekdayHours("09:00", "17:00")))
	in.Appointments = []domain.Appointment{appt(staffA, at(15, 0), at(15, 30), domain.StatusConfirmed)}

	for _, s := range ComputeSlots(in) {
		if s.StaffID == staffA {
			t.Fatalf("staff at daily limit produced slot %v", s.Start)
		}
	}

	in.To = monday.AddDays(1)
	tuesday := 0
	for _, s := range ComputeSlots(in) {
		if s.StaffID == staffA && clock.DateOf(s.Start) == monday.AddDays(1) {
			tuesday++
		}
	}
	if tuesday == 0 {
		t.Fatalf("limit must only apply to the booked day")
	}
}

func TestComputeSlots_WindowBoundaryInclusive(t *testing.T) {
	in := baseInput()
	in.Now = at(8, 0)
	got := starts(ComputeSlots(in))
	if !got[at(10, 0)] {
		t.Fatalf("slot exactly at now+min advance must be included")
	}
	if got[at(9, 45)] {
		t.Fatalf("slot before now+min advance must be excluded")
	}

	in.Now = at(8, 1)
	got = starts(ComputeSlots(in))
	if got[at(10, 0)] {
		t.Fatalf("slot one minute short of min advance must be excluded")
	}
	if !got[at(10, 15)] {
		t.Fatalf("10:15 must be included")
	}
}

func TestComputeSlots_MaxAdvance(t *testing.T) {
	in := baseInput()
	in.Rules.MaxAdvanceDays = 4
	in.Now = time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	got := starts(ComputeSlots(in))
	if !got[at(9, 0)] {
		t.Fatalf("slot exactly at max advance must be included")
	}
	if got[at(9, 15)] {
		t.Fatalf("slot past max advance must be excluded")
	}

	in.Rules.MaxAdvanceDays = 3
	if len(ComputeSlots(in)) != 0 {
		t.Fatalf("day beyond the window must produce no slots")
	}
}

func TestComputeSlots_BufferContainment(t *testing.T) {
	in := baseInput()
	in.Business.Hours = weekdayHours("09:00", "17:00", domain.Break{Start: "13:00", End: "14:00"})
	in.Service.DurationMinutes = 45

	slots := ComputeSlots(in)
	if len(slots) == 0 {
		t.Fatalf("expected slots")
	}
	for _, s := range slots {
		occupiedUntil := s.End.Add(in.Rules.Buffer())
		morning := !s.Start.Before(at(9, 0)) && !occupiedUntil.After(at(13, 0))
		afternoon := !s.Start.Before(at(14, 0)) && !occupiedUntil.After(at(17, 0))
		if !morning && !afternoon {
			t.Fatalf("slot %v-%v spills its buffer outside working hours", s.Start, s.End)
		}
	}
	got := starts(slots)
	if !got[at(12, 0)] || got[at(12, 15)] {
		t.Fatalf("last morning start must be 12:00")
	}
	if !got[at(14, 0)] {
		t.Fatalf("afternoon must start at 14:00")
	}
}

func TestComputeSlots_StaffHoursIntersectBusinessHours(t *testing.T) {
	in := baseInput()
	in.Staff = []domain.Staff{staffMember(staffA, weekdayHours("12:00", "20:00"))}
	slots := ComputeSlots(in)
	if !slots[0].Start.Equal(at(12, 0)) {
		t.Fatalf("first slot = %v, want 12:00", slots[0].Start)
	}
	if !slots[len(slots)-1].Start.Equal(at(16, 15)) {
		t.Fatalf("last slot = %v, want 16:15", slots[len(slots)-1].Start)
	}
}

func TestComputeSlots_OrdersByStartThenStaff(t *testing.T) {
	in := baseInput()
	in.Staff = []domain.Staff{
		staffMember(staffB, weekdayHours("09:00", "17:00")),
		staffMember(staffA, weekdayHours("09:00", "17:00")),
	}
	slots := ComputeSlots(in)
	if len(slots) != 60 {
		t.Fatalf("len(slots) = %d, want 60", len(slots))
	}
	for i := 0; i+1 < len(slots); i += 2 {
		if slots[i].StaffID != staffA || slots[i+1].StaffID != staffB {
			t.Fatalf("slots %d,%d staff = %s,%s", i, i+1, slots[i].StaffID, slots[i+1].StaffID)
		}
		if !slots[i].Start.Equal(slots[i+1].Start) {
			t.Fatalf("expected paired starts at %d", i)
		}
	}
}

func TestComputeSlots_Deterministic(t *testing.T) {
	in := baseInput()
	in.To = monday.AddDays(6)
	in.Staff = append(in.Staff, staffMember(staffB, weekdayHours("10:00", "15:00")))
	in.Appointments = []domain.Appointment{
		appt(staffA, at(11, 0), at(11, 30), domain.StatusConfirmed),
		appt(staffB, at(12, 0), at(13, 0), domain.StatusPending),
	}
	first := ComputeSlots(in)
	for i := 0; i < 5; i++ {
		if !reflect.DeepEqual(first, ComputeSlots(in)) {
			t.Fatalf("ComputeSlots is not deterministic")
		}
	}
}

func TestComputeSlots_NeverOverlapsExistingEnvelope(t *testing.T) {
	in := baseInput()
	in.To = monday.AddDays(2)
	in.Appointments = []domain.Appointment{
		appt(staffA, at(9, 30), at(10, 0), domain.StatusConfirmed),
		appt(staffA, at(13, 0), at(14, 30), domain.StatusConfirmed),
		appt(staffA, monday.AddDays(1).At(16*60, time.UTC), monday.AddDays(1).At(16*60+30, time.UTC), domain.StatusPending),
	}
	buffer := in.Rules.Buffer()
	for _, s := range ComputeSlots(in) {
		for _, a := range in.Appointments {
			if clock.TimesOverlap(s.Start.Add(-buffer), s.End.Add(buffer), a.StartTime, a.EndTime) {
				t.Fatalf("slot %v overlaps appointment %v", s.Start, a.StartTime)
			}
		}
	}
}

func TestComputeSlots_UnassignedService(t *testing.T) {
	in := baseInput()
	in.Service.RequiresStaff = false
	in.Staff = nil
	in.Appointments = []domain.Appointment{
		appt(uuid.Nil, at(9, 0), at(9, 30), domain.StatusConfirmed),
		appt(staffA, at(12, 0), at(12, 30), domain.StatusConfirmed),
	}
	got := ComputeSlots(in)
	set := starts(got)
	if set[at(9, 0)] {
		t.Fatalf("unassigned booking must block the unassigned calendar")
	}
	if !set[at(12, 0)] {
		t.Fatalf("staff bookings must not block the unassigned calendar")
	}
	for _, s := range got {
		if s.StaffID != uuid.Nil {
			t.Fatalf("unassigned slot bound to staff %s", s.StaffID)
		}
	}
}

func TestComputeSlots_DefectiveOrClosedDays(t *testing.T) {
	in := baseInput()
	in.From = monday.AddDays(-1)
	in.To = monday.AddDays(1)
	in.Business.Hours[1].Breaks = []domain.Break{{Start: "10:00", End: "11:00"}, {Start: "10:30", End: "11:30"}}

	for _, s := range ComputeSlots(in) {
		d := clock.DateOf(s.Start)
		if d == monday {
			t.Fatalf("defective Monday produced slot %v", s.Start)
		}
		if d == monday.AddDays(-1) {
			t.Fatalf("closed Sunday produced slot %v", s.Start)
		}
	}
	if len(ComputeSlots(in)) != 30 {
		t.Fatalf("Tuesday must still produce its 30 slots")
	}
}

func TestComputeSlots_IneligibleStaff(t *testing.T) {
	in := baseInput()
	inactive := staffMember(staffA, weekdayHours("09:00", "17:00"))
	inactive.Active = false
	other := staffMember(staffB, weekdayHours("09:00", "17:00"))
	other.ServiceIDs = []uuid.UUID{uuid.New()}
	in.Staff = []domain.Staff{inactive, other}
	if got := len(ComputeSlots(in)); got != 0 {
		t.Fatalf("len(slots) = %d, want 0", got)
	}

	in = baseInput()
	in.Service.Active = false
	if got := len(ComputeSlots(in)); got != 0 {
		t.Fatalf("inactive service produced %d slots", got)
	}
}

func TestComputeSlots_BusinessTimezone(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Madrid")
	if err != nil {
		t.Fatalf("LoadLocation error: %v", err)
	}
	in := baseInput()
	in.Location = loc
	slots := ComputeSlots(in)
	if got := slots[0].Start.UTC(); !got.Equal(time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)) {
		t.Fatalf("first slot UTC = %v, want 08:00Z", got)
	}
}
