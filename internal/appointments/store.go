package appointments

import (
	"context"
	"time"
)

// Queries is the read/write surface over specialties, doctors and appointments.
// Implementations return ErrNotFound for missing single-row lookups.
type Queries interface {
	ListSpecialties(ctx context.Context) ([]Specialty, error)
	FindSpecialtyByName(ctx context.Context, name string) (Specialty, error)
	// ListDoctorsBySpecialty returns doctors ordered by id.
	ListDoctorsBySpecialty(ctx context.Context, specialtyID int64, excludeOnLeave bool) ([]Doctor, error)
	GetDoctor(ctx context.Context, id int64) (Doctor, error)

	CountConfirmedAppointments(ctx context.Context, doctorID int64, dayStart, dayEnd time.Time) (int, error)
	// FindConfirmedAppointment returns ErrNotFound when the slot is free.
	FindConfirmedAppointment(ctx context.Context, doctorID int64, slot time.Time) (Appointment, error)
	FindAppointmentsByContact(ctx context.Context, contact string, filter ContactFilter) ([]Appointment, error)
	GetAppointment(ctx context.Context, id int64) (Appointment, error)
	ListAppointmentsBetween(ctx context.Context, from, to time.Time) ([]Appointment, error)

	InsertTentativeAppointment(ctx context.Context, appt NewAppointment) (int64, error)
	// SetConfirmed re-checks slot occupancy and the daily cap before flipping the flag.
	SetConfirmed(ctx context.Context, id int64) (Appointment, error)
	SetVisited(ctx context.Context, id int64, visited bool) (Appointment, error)
	DeleteAppointment(ctx context.Context, id int64) error

	CreateSpecialty(ctx context.Context, name string) (Specialty, error)
	CreateDoctor(ctx context.Context, doctor NewDoctor) (Doctor, error)
}

// Store adds transactional scoping. Writes made through the Queries passed to
// fn are rolled back when fn returns an error.
type Store interface {
	Queries
	InTx(ctx context.Context, fn func(q Queries) error) error
}
