// Package availability finds the earliest bookable slot for a specialty.
package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wolfman30/medibook/internal/appointments"
	"github.com/wolfman30/medibook/internal/observability/metrics"
	"github.com/wolfman30/medibook/pkg/logging"
)

// DefaultSlotDuration is the booking granularity.
const DefaultSlotDuration = 30 * time.Minute

// Store is the read path the engine needs. appointments.Queries satisfies it,
// so the engine can run against a transaction as well as the pool.
type Store interface {
	ListSpecialties(ctx context.Context) ([]appointments.Specialty, error)
	FindSpecialtyByName(ctx context.Context, name string) (appointments.Specialty, error)
	ListDoctorsBySpecialty(ctx context.Context, specialtyID int64, excludeOnLeave bool) ([]appointments.Doctor, error)
	CountConfirmedAppointments(ctx context.Context, doctorID int64, dayStart, dayEnd time.Time) (int, error)
	FindConfirmedAppointment(ctx context.Context, doctorID int64, slot time.Time) (appointments.Appointment, error)
}

// Slot is a bookable (doctor, start) pair found under a specialty.
type Slot struct {
	Doctor    appointments.Doctor
	Specialty appointments.Specialty
	Start     time.Time
}

// Engine searches doctors' working hours for open slots. Only confirmed
// appointments occupy a slot or count toward a doctor's daily cap.
type Engine struct {
	store        Store
	loc          *time.Location
	slotDuration time.Duration
	metrics      *metrics.BookingMetrics
	logger       *logging.Logger
	now          func() time.Time
}

type Option func(*Engine)

// WithLocation sets the clinic time zone that working hours are expressed in.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

func WithSlotDuration(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.slotDuration = d
		}
	}
}

// WithClock bounds every search to slots starting at or after now(). Without
// it the engine searches the range as given, past dates included.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithMetrics(m *metrics.BookingMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func NewEngine(store Store, logger *logging.Logger, opts ...Option) *Engine {
	if store == nil {
		panic("availability: store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	e := &Engine{store: store, loc: time.UTC, slotDuration: DefaultSlotDuration, logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Location reports the clinic time zone.
func (e *Engine) Location() *time.Location {
	return e.loc
}

// FindEarliestSlot returns the first open slot for specialtyName between
// startDate and endDate inclusive. Only the calendar dates of the bounds are
// used. The search walks dates ascending, then doctors in store order, then
// slots from the doctor's start time; the first hit wins. ok is false when
// nothing qualifies, including an unknown specialty or an inverted range.
// A non-positive slotDuration falls back to the engine default. With a clock
// configured, slots that have already started are skipped.
func (e *Engine) FindEarliestSlot(ctx context.Context, specialtyName string, startDate, endDate time.Time, slotDuration time.Duration) (Slot, bool, error) {
	started := time.Now()
	defer func() { e.metrics.ObserveSlotSearch(time.Since(started)) }()

	specialty, err := e.store.FindSpecialtyByName(ctx, specialtyName)
	if errors.Is(err, appointments.ErrNotFound) {
		return Slot{}, false, nil
	}
	if err != nil {
		return Slot{}, false, fmt.Errorf("availability: find specialty: %w", err)
	}
	return e.search(ctx, specialty, startDate, endDate, slotDuration)
}

// CandidatesForRange runs FindEarliestSlot for every known specialty, in store
// order, and returns one slot per specialty that produced a hit.
func (e *Engine) CandidatesForRange(ctx context.Context, startDate, endDate time.Time) ([]Slot, error) {
	specialties, err := e.store.ListSpecialties(ctx)
	if err != nil {
		return nil, fmt.Errorf("availability: list specialties: %w", err)
	}
	var out []Slot
	for _, specialty := range specialties {
		slot, ok, err := e.FindEarliestSlot(ctx, specialty.Name, startDate, endDate, 0)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, slot)
		}
	}
	e.logger.Debug("candidate search finished", "specialties", len(specialties), "hits", len(out))
	return out, nil
}

func (e *Engine) search(ctx context.Context, specialty appointments.Specialty, startDate, endDate time.Time, slotDuration time.Duration) (Slot, bool, error) {
	if slotDuration <= 0 {
		slotDuration = e.slotDuration
	}
	first, last := e.date(startDate), e.date(endDate)
	var notBefore time.Time
	if e.now != nil {
		notBefore = e.now().In(e.loc)
		if today := e.date(notBefore); first.Before(today) {
			first = today
		}
	}
	if first.After(last) {
		return Slot{}, false, nil
	}

	doctors, err := e.store.ListDoctorsBySpecialty(ctx, specialty.ID, true)
	if err != nil {
		return Slot{}, false, fmt.Errorf("availability: list doctors for %s: %w", specialty.Name, err)
	}
	if len(doctors) == 0 {
		return Slot{}, false, nil
	}

	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			return Slot{}, false, err
		}
		next := day.AddDate(0, 0, 1)
		for _, doctor := range doctors {
			booked, err := e.store.CountConfirmedAppointments(ctx, doctor.ID, day, next)
			if err != nil {
				return Slot{}, false, fmt.Errorf("availability: count confirmed for doctor %d: %w", doctor.ID, err)
			}
			if booked >= doctor.MaxPerDay {
				continue
			}
			opens, closes := doctor.StartTime.On(day), doctor.EndTime.On(day)
			for slot := opens; slot.Before(closes); slot = slot.Add(slotDuration) {
				if slot.Before(notBefore) {
					continue
				}
				_, err := e.store.FindConfirmedAppointment(ctx, doctor.ID, slot)
				if errors.Is(err, appointments.ErrNotFound) {
					return Slot{Doctor: doctor, Specialty: specialty, Start: slot}, true, nil
				}
				if err != nil {
					return Slot{}, false, fmt.Errorf("availability: check slot for doctor %d: %w", doctor.ID, err)
				}
			}
		}
	}
	return Slot{}, false, nil
}

// date keeps the calendar date of t as written and anchors it at midnight in
// the clinic location.
func (e *Engine) date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, e.loc)
}
