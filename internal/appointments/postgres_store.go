package appointments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var storeTracer = otel.Tracer("medibook.internal.appointments.store")

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

// Querier is satisfied by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgxPool is the subset of *pgxpool.Pool the store needs.
type PgxPool interface {
	Querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore implements Store on top of pgx.
type PostgresStore struct {
	*pgQueries
	pool PgxPool
}

// NewPostgresStore builds a store. loc defines calendar days for the daily cap.
func NewPostgresStore(pool PgxPool, loc *time.Location) *PostgresStore {
	if pool == nil {
		panic("appointments: pgx pool required")
	}
	if loc == nil {
		loc = time.UTC
	}
	return &PostgresStore{pgQueries: &pgQueries{db: pool, loc: loc}, pool: pool}
}

// InTx runs fn inside a transaction, committing only when fn succeeds.
func (s *PostgresStore) InTx(ctx context.Context, fn func(q Queries) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("appointments: begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(&pgQueries{db: tx, loc: s.loc}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("appointments: commit tx: %w", err)
	}
	return nil
}

// SetConfirmed runs the confirmation checks and the flag write in one transaction.
func (s *PostgresStore) SetConfirmed(ctx context.Context, id int64) (Appointment, error) {
	ctx, span := storeTracer.Start(ctx, "appointments.set_confirmed")
	defer span.End()
	span.SetAttributes(attribute.Int64("medibook.appointment_id", id))

	var appt Appointment
	err := s.InTx(ctx, func(q Queries) error {
		var err error
		appt, err = q.SetConfirmed(ctx, id)
		return err
	})
	if err != nil {
		span.RecordError(err)
	}
	return appt, err
}

// CreateDoctor inserts the doctor and its specialty links atomically.
func (s *PostgresStore) CreateDoctor(ctx context.Context, doctor NewDoctor) (Doctor, error) {
	var created Doctor
	err := s.InTx(ctx, func(q Queries) error {
		var err error
		created, err = q.CreateDoctor(ctx, doctor)
		return err
	})
	return created, err
}

type pgQueries struct {
	db  Querier
	loc *time.Location
}

const doctorSelect = `
	SELECT d.id, d.name, d.start_time, d.end_time, d.on_leave, d.max_appointments_per_day, d.bio,
		COALESCE(array_agg(s.name ORDER BY s.id) FILTER (WHERE s.id IS NOT NULL), '{}') AS specialties
	FROM doctors d
	LEFT JOIN doctor_specialties ds ON ds.doctor_id = d.id
	LEFT JOIN specialties s ON s.id = ds.specialty_id
`

const appointmentColumns = `id, user_name, phone, address, doctor_id, start_time, confirmed, visited, created_at`

func (q *pgQueries) ListSpecialties(ctx context.Context) ([]Specialty, error) {
	rows, err := q.db.Query(ctx, `SELECT id, name FROM specialties ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("appointments: list specialties: %w", err)
	}
	defer rows.Close()

	var out []Specialty
	for rows.Next() {
		var s Specialty
		if err := rows.Scan(&s.ID, &s.Name); err != nil {
			return nil, fmt.Errorf("appointments: scan specialty: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (q *pgQueries) FindSpecialtyByName(ctx context.Context, name string) (Specialty, error) {
	var s Specialty
	err := q.db.QueryRow(ctx, `SELECT id, name FROM specialties WHERE lower(name) = lower($1)`, strings.TrimSpace(name)).Scan(&s.ID, &s.Name)
	if err != nil {
		return Specialty{}, notFound(err, "find specialty")
	}
	return s, nil
}

func (q *pgQueries) CreateSpecialty(ctx context.Context, name string) (Specialty, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Specialty{}, fmt.Errorf("appointments: create specialty: name is required")
	}
	var s Specialty
	if err := q.db.QueryRow(ctx, `INSERT INTO specialties (name) VALUES ($1) RETURNING id, name`, name).Scan(&s.ID, &s.Name); err != nil {
		return Specialty{}, fmt.Errorf("appointments: create specialty: %w", err)
	}
	return s, nil
}

func (q *pgQueries) ListDoctorsBySpecialty(ctx context.Context, specialtyID int64, excludeOnLeave bool) ([]Doctor, error) {
	query := doctorSelect + `
	WHERE d.id IN (SELECT doctor_id FROM doctor_specialties WHERE specialty_id = $1)
		AND (NOT $2 OR NOT d.on_leave)
	GROUP BY d.id
	ORDER BY d.id`
	rows, err := q.db.Query(ctx, query, specialtyID, excludeOnLeave)
	if err != nil {
		return nil, fmt.Errorf("appointments: list doctors: %w", err)
	}
	defer rows.Close()

	var out []Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (q *pgQueries) GetDoctor(ctx context.Context, id int64) (Doctor, error) {
	d, err := scanDoctor(q.db.QueryRow(ctx, doctorSelect+` WHERE d.id = $1 GROUP BY d.id`, id))
	if err != nil {
		return Doctor{}, notFound(err, "get doctor")
	}
	return d, nil
}

func (q *pgQueries) CreateDoctor(ctx context.Context, doctor NewDoctor) (Doctor, error) {
	if err := doctor.Validate(); err != nil {
		return Doctor{}, err
	}
	var id int64
	err := q.db.QueryRow(ctx, `
		INSERT INTO doctors (name, start_time, end_time, on_leave, max_appointments_per_day, bio)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		strings.TrimSpace(doctor.Name), pgTime(doctor.StartTime), pgTime(doctor.EndTime), doctor.OnLeave, doctor.MaxPerDay, doctor.Bio,
	).Scan(&id)
	if err != nil {
		if pgCode(err) == pgCheckViolation {
			return Doctor{}, fmt.Errorf("%w: %v", ErrInvalidWorkingHours, err)
		}
		return Doctor{}, fmt.Errorf("appointments: create doctor: %w", err)
	}
	for _, specialtyID := range doctor.SpecialtyIDs {
		if _, err := q.db.Exec(ctx, `INSERT INTO doctor_specialties (doctor_id, specialty_id) VALUES ($1, $2)`, id, specialtyID); err != nil {
			if pgCode(err) == pgForeignKeyViolation {
				return Doctor{}, fmt.Errorf("appointments: link specialty %d: %w", specialtyID, ErrNotFound)
			}
			return Doctor{}, fmt.Errorf("appointments: link specialty %d: %w", specialtyID, err)
		}
	}
	return q.GetDoctor(ctx, id)
}

func (q *pgQueries) CountConfirmedAppointments(ctx context.Context, doctorID int64, dayStart, dayEnd time.Time) (int, error) {
	var n int
	err := q.db.QueryRow(ctx, `
		SELECT count(*) FROM appointments
		WHERE doctor_id = $1 AND confirmed AND start_time >= $2 AND start_time < $3`,
		doctorID, dayStart, dayEnd,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("appointments: count confirmed: %w", err)
	}
	return n, nil
}

func (q *pgQueries) FindConfirmedAppointment(ctx context.Context, doctorID int64, slot time.Time) (Appointment, error) {
	a, err := scanAppointment(q.db.QueryRow(ctx,
		`SELECT `+appointmentColumns+` FROM appointments WHERE doctor_id = $1 AND start_time = $2 AND confirmed LIMIT 1`,
		doctorID, slot))
	if err != nil {
		return Appointment{}, notFound(err, "find confirmed appointment")
	}
	return a, nil
}

func (q *pgQueries) FindAppointmentsByContact(ctx context.Context, contact string, filter ContactFilter) ([]Appointment, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if filter.Confirmed {
		rows, err = q.db.Query(ctx,
			`SELECT `+appointmentColumns+` FROM appointments WHERE phone = $1 AND confirmed ORDER BY start_time, id`,
			contact)
	} else {
		rows, err = q.db.Query(ctx,
			`SELECT `+appointmentColumns+` FROM appointments WHERE phone = $1 AND NOT confirmed AND start_time > $2 ORDER BY start_time, id`,
			contact, filter.After)
	}
	if err != nil {
		return nil, fmt.Errorf("appointments: find by contact: %w", err)
	}
	return collectAppointments(rows)
}

func (q *pgQueries) GetAppointment(ctx context.Context, id int64) (Appointment, error) {
	a, err := scanAppointment(q.db.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id))
	if err != nil {
		return Appointment{}, notFound(err, "get appointment")
	}
	return a, nil
}

func (q *pgQueries) ListAppointmentsBetween(ctx context.Context, from, to time.Time) ([]Appointment, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+appointmentColumns+` FROM appointments WHERE start_time >= $1 AND start_time < $2 ORDER BY start_time, id`,
		from, to)
	if err != nil {
		return nil, fmt.Errorf("appointments: list between: %w", err)
	}
	return collectAppointments(rows)
}

func (q *pgQueries) InsertTentativeAppointment(ctx context.Context, appt NewAppointment) (int64, error) {
	if err := appt.Validate(); err != nil {
		return 0, err
	}
	var id int64
	err := q.db.QueryRow(ctx, `
		INSERT INTO appointments (user_name, phone, address, doctor_id, start_time, confirmed, visited)
		VALUES ($1, $2, $3, $4, $5, false, false)
		RETURNING id`,
		appt.UserName, appt.Phone, appt.Address, appt.DoctorID, appt.StartTime,
	).Scan(&id)
	if err != nil {
		if pgCode(err) == pgForeignKeyViolation {
			return 0, fmt.Errorf("appointments: insert tentative: doctor %d: %w", appt.DoctorID, ErrNotFound)
		}
		return 0, fmt.Errorf("appointments: insert tentative: %w", err)
	}
	return id, nil
}

// SetConfirmed must run inside a transaction. The appointment and doctor rows
// are locked so concurrent confirmations for the same doctor serialize on the
// occupancy and cap checks.
func (q *pgQueries) SetConfirmed(ctx context.Context, id int64) (Appointment, error) {
	appt, err := scanAppointment(q.db.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return Appointment{}, notFound(err, "lock appointment")
	}
	if appt.Confirmed {
		return appt, ErrAlreadyConfirmed
	}

	var maxPerDay int
	if err := q.db.QueryRow(ctx, `SELECT max_appointments_per_day FROM doctors WHERE id = $1 FOR UPDATE`, appt.DoctorID).Scan(&maxPerDay); err != nil {
		return Appointment{}, notFound(err, "lock doctor")
	}

	var otherID int64
	err = q.db.QueryRow(ctx,
		`SELECT id FROM appointments WHERE doctor_id = $1 AND start_time = $2 AND confirmed AND id <> $3 LIMIT 1`,
		appt.DoctorID, appt.StartTime, appt.ID,
	).Scan(&otherID)
	switch {
	case err == nil:
		return appt, fmt.Errorf("%w: held by appointment %d", ErrSlotTaken, otherID)
	case !errors.Is(err, pgx.ErrNoRows):
		return Appointment{}, fmt.Errorf("appointments: occupancy check: %w", err)
	}

	dayStart, dayEnd := DayBounds(appt.StartTime, q.loc)
	count, err := q.CountConfirmedAppointments(ctx, appt.DoctorID, dayStart, dayEnd)
	if err != nil {
		return Appointment{}, err
	}
	if count >= maxPerDay {
		return appt, ErrDailyCapReached
	}

	if _, err := q.db.Exec(ctx, `UPDATE appointments SET confirmed = true WHERE id = $1`, appt.ID); err != nil {
		if pgCode(err) == pgUniqueViolation {
			return appt, fmt.Errorf("%w: %v", ErrSlotTaken, err)
		}
		return Appointment{}, fmt.Errorf("appointments: set confirmed: %w", err)
	}
	appt.Confirmed = true
	return appt, nil
}

func (q *pgQueries) SetVisited(ctx context.Context, id int64, visited bool) (Appointment, error) {
	a, err := scanAppointment(q.db.QueryRow(ctx,
		`UPDATE appointments SET visited = $2 WHERE id = $1 RETURNING `+appointmentColumns,
		id, visited))
	if err != nil {
		return Appointment{}, notFound(err, "set visited")
	}
	return a, nil
}

func (q *pgQueries) DeleteAppointment(ctx context.Context, id int64) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("appointments: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("appointments: delete %d: %w", id, ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDoctor(row rowScanner) (Doctor, error) {
	var (
		d          Doctor
		start, end pgtype.Time
	)
	if err := row.Scan(&d.ID, &d.Name, &start, &end, &d.OnLeave, &d.MaxPerDay, &d.Bio, &d.Specialties); err != nil {
		return Doctor{}, err
	}
	d.StartTime = timeOfDay(start)
	d.EndTime = timeOfDay(end)
	return d, nil
}

func scanAppointment(row rowScanner) (Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.UserName, &a.Phone, &a.Address, &a.DoctorID, &a.StartTime, &a.Confirmed, &a.Visited, &a.CreatedAt)
	return a, err
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()
	var out []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("appointments: scan appointment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func pgTime(t TimeOfDay) pgtype.Time {
	return pgtype.Time{Microseconds: int64(t) * int64(time.Minute/time.Microsecond), Valid: true}
}

func timeOfDay(t pgtype.Time) TimeOfDay {
	return TimeOfDay(t.Microseconds / int64(time.Minute/time.Microsecond))
}

func notFound(err error, op string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("appointments: %s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("appointments: %s: %w", op, err)
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
