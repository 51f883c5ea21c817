package appointments

import (
	"fmt"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock time expressed as minutes since midnight.
type TimeOfDay int

// NewTimeOfDay builds a TimeOfDay from hours and minutes.
func NewTimeOfDay(hour, minute int) TimeOfDay {
	return TimeOfDay(hour*60 + minute)
}

// ParseTimeOfDay accepts "15:04" style values.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("appointments: parse time of day %q: %w", s, err)
	}
	return NewTimeOfDay(t.Hour(), t.Minute()), nil
}

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// On places the time of day on the calendar date of day, in day's location.
func (t TimeOfDay) On(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, day.Location())
}

// Specialty is a medical specialty doctors can be booked under.
type Specialty struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Doctor is a bookable practitioner.
type Doctor struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	StartTime   TimeOfDay `json:"start_time"`
	EndTime     TimeOfDay `json:"end_time"`
	OnLeave     bool      `json:"on_leave"`
	MaxPerDay   int       `json:"max_appointments_per_day"`
	Bio         string    `json:"bio"`
	Specialties []string  `json:"specialties,omitempty"`
}

// NewDoctor carries the fields needed to create a doctor.
type NewDoctor struct {
	Name         string
	StartTime    TimeOfDay
	EndTime      TimeOfDay
	OnLeave      bool
	MaxPerDay    int
	Bio          string
	SpecialtyIDs []int64
}

// Validate enforces the working-hours invariant before anything reaches the store.
func (d NewDoctor) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidDoctor)
	}
	if d.StartTime < 0 || d.EndTime > NewTimeOfDay(24, 0) {
		return fmt.Errorf("%w: working hours out of range", ErrInvalidWorkingHours)
	}
	if d.StartTime >= d.EndTime {
		return fmt.Errorf("%w: %s >= %s", ErrInvalidWorkingHours, d.StartTime, d.EndTime)
	}
	if d.MaxPerDay <= 0 {
		return fmt.Errorf("%w: max appointments per day must be positive", ErrInvalidDoctor)
	}
	return nil
}

// Appointment is a booking between a requester and a doctor.
type Appointment struct {
	ID        int64     `json:"id"`
	UserName  string    `json:"user_name"`
	Phone     string    `json:"phone"`
	Address   string    `json:"address"`
	DoctorID  int64     `json:"doctor_id"`
	StartTime time.Time `json:"start_time"`
	Confirmed bool      `json:"confirmed"`
	Visited   bool      `json:"visited"`
	CreatedAt time.Time `json:"created_at"`
}

// NewAppointment carries the fields for a tentative booking.
type NewAppointment struct {
	UserName  string
	Phone     string
	Address   string
	DoctorID  int64
	StartTime time.Time
}

func (a NewAppointment) Validate() error {
	switch {
	case strings.TrimSpace(a.UserName) == "":
		return fmt.Errorf("%w: user name is required", ErrInvalidAppointment)
	case strings.TrimSpace(a.Phone) == "":
		return fmt.Errorf("%w: phone is required", ErrInvalidAppointment)
	case a.DoctorID <= 0:
		return fmt.Errorf("%w: doctor is required", ErrInvalidAppointment)
	case a.StartTime.IsZero():
		return fmt.Errorf("%w: start time is required", ErrInvalidAppointment)
	}
	return nil
}

// ContactFilter selects which of a requester's appointments to return.
type ContactFilter struct {
	Confirmed bool
	// After applies to unconfirmed lookups: only appointments starting after it match.
	After time.Time
}

// ConfirmedOnly matches any confirmed appointment for the contact.
func ConfirmedOnly() ContactFilter {
	return ContactFilter{Confirmed: true}
}

// UnconfirmedAfter matches tentative appointments starting after t.
func UnconfirmedAfter(t time.Time) ContactFilter {
	return ContactFilter{After: t}
}

func (f ContactFilter) matches(a Appointment) bool {
	if f.Confirmed {
		return a.Confirmed
	}
	return !a.Confirmed && a.StartTime.After(f.After)
}

// DayBounds returns [start of day, start of next day) for t in loc.
func DayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}
