package appointments

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var apptCols = []string{"id", "user_name", "phone", "address", "doctor_id", "start_time", "confirmed", "visited", "created_at"}

func apptRow(id, doctorID int64, start time.Time, confirmed bool) *pgxmock.Rows {
	return pgxmock.NewRows(apptCols).AddRow(id, "Asha", "+919876543210", "12 MG Road", doctorID, start, confirmed, false, start.Add(-48*time.Hour))
}

func newMockStore(t *testing.T) (pgxmock.PgxPoolIface, *PostgresStore) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock, NewPostgresStore(mock, time.UTC)
}

func TestPostgresSetConfirmed(t *testing.T) {
	mock, store := newMockStore(t)
	slot := time.Date(2025, 2, 10, 9, 30, 0, 0, time.UTC)
	dayStart, dayEnd := DayBounds(slot, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM appointments WHERE id = \$1 FOR UPDATE`).WithArgs(int64(7)).WillReturnRows(apptRow(7, 3, slot, false))
	mock.ExpectQuery(`SELECT max_appointments_per_day FROM doctors WHERE id = \$1 FOR UPDATE`).WithArgs(int64(3)).
		WillReturnRows(pgxmock.NewRows([]string{"max_appointments_per_day"}).AddRow(4))
	mock.ExpectQuery(`SELECT id FROM appointments WHERE doctor_id = \$1 AND start_time = \$2 AND confirmed AND id <> \$3`).
		WithArgs(int64(3), slot, int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`SELECT count\(\*\) FROM appointments`).WithArgs(int64(3), dayStart, dayEnd).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectExec(`UPDATE appointments SET confirmed = true WHERE id = \$1`).WithArgs(int64(7)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	appt, err := store.SetConfirmed(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, appt.Confirmed)
	assert.Equal(t, int64(3), appt.DoctorID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSetConfirmedSlotTaken(t *testing.T) {
	mock, store := newMockStore(t)
	slot := time.Date(2025, 2, 10, 9, 30, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WithArgs(int64(8)).WillReturnRows(apptRow(8, 3, slot, false))
	mock.ExpectQuery(`SELECT max_appointments_per_day`).WithArgs(int64(3)).
		WillReturnRows(pgxmock.NewRows([]string{"max_appointments_per_day"}).AddRow(4))
	mock.ExpectQuery(`SELECT id FROM appointments WHERE doctor_id`).WithArgs(int64(3), slot, int64(8)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectRollback()

	_, err := store.SetConfirmed(context.Background(), 8)
	assert.ErrorIs(t, err, ErrSlotTaken)
	assert.True(t, IsConflict(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSetConfirmedDailyCap(t *testing.T) {
	mock, store := newMockStore(t)
	slot := time.Date(2025, 2, 10, 11, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WithArgs(int64(9)).WillReturnRows(apptRow(9, 3, slot, false))
	mock.ExpectQuery(`SELECT max_appointments_per_day`).WithArgs(int64(3)).
		WillReturnRows(pgxmock.NewRows([]string{"max_appointments_per_day"}).AddRow(2))
	mock.ExpectQuery(`SELECT id FROM appointments WHERE doctor_id`).WithArgs(int64(3), slot, int64(9)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`SELECT count\(\*\)`).WithArgs(int64(3), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectRollback()

	_, err := store.SetConfirmed(context.Background(), 9)
	assert.ErrorIs(t, err, ErrDailyCapReached)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSetConfirmedUniqueViolation(t *testing.T) {
	mock, store := newMockStore(t)
	slot := time.Date(2025, 2, 10, 9, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WithArgs(int64(4)).WillReturnRows(apptRow(4, 3, slot, false))
	mock.ExpectQuery(`SELECT max_appointments_per_day`).WithArgs(int64(3)).
		WillReturnRows(pgxmock.NewRows([]string{"max_appointments_per_day"}).AddRow(5))
	mock.ExpectQuery(`SELECT id FROM appointments WHERE doctor_id`).WithArgs(int64(3), slot, int64(4)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`SELECT count\(\*\)`).WithArgs(int64(3), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(`UPDATE appointments SET confirmed = true`).WithArgs(int64(4)).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"})
	mock.ExpectRollback()

	_, err := store.SetConfirmed(context.Background(), 4)
	assert.ErrorIs(t, err, ErrSlotTaken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSetConfirmedAlreadyConfirmed(t *testing.T) {
	mock, store := newMockStore(t)
	slot := time.Date(2025, 2, 10, 9, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WithArgs(int64(4)).WillReturnRows(apptRow(4, 3, slot, true))
	mock.ExpectRollback()

	_, err := store.SetConfirmed(context.Background(), 4)
	assert.ErrorIs(t, err, ErrAlreadyConfirmed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFindSpecialtyNotFound(t *testing.T) {
	mock, store := newMockStore(t)
	mock.ExpectQuery(`SELECT id, name FROM specialties WHERE lower\(name\) = lower\(\$1\)`).WithArgs("Neurology").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name"}))

	_, err := store.FindSpecialtyByName(context.Background(), " Neurology ")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListDoctorsBySpecialty(t *testing.T) {
	mock, store := newMockStore(t)
	nine := pgtype.Time{Microseconds: int64(9 * time.Hour / time.Microsecond), Valid: true}
	noon := pgtype.Time{Microseconds: int64(12 * time.Hour / time.Microsecond), Valid: true}
	rows := pgxmock.NewRows([]string{"id", "name", "start_time", "end_time", "on_leave", "max_appointments_per_day", "bio", "specialties"}).
		AddRow(int64(1), "Dr. Rao", nine, noon, false, 4, "Cardiologist", []string{"Cardiology"}).
		AddRow(int64(2), "Dr. Iyer", nine, noon, false, 2, "", []string{"Cardiology", "Internal Medicine"})
	mock.ExpectQuery(`FROM doctors d`).WithArgs(int64(5), true).WillReturnRows(rows)

	doctors, err := store.ListDoctorsBySpecialty(context.Background(), 5, true)
	require.NoError(t, err)
	require.Len(t, doctors, 2)
	assert.Equal(t, NewTimeOfDay(9, 0), doctors[0].StartTime)
	assert.Equal(t, NewTimeOfDay(12, 0), doctors[0].EndTime)
	assert.Equal(t, 2, doctors[1].MaxPerDay)
	assert.Equal(t, []string{"Cardiology", "Internal Medicine"}, doctors[1].Specialties)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresInsertTentative(t *testing.T) {
	mock, store := newMockStore(t)
	slot := time.Date(2025, 2, 10, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`INSERT INTO appointments`).
		WithArgs("Asha", "+919876543210", "12 MG Road", int64(3), slot).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(11)))

	id, err := store.InsertTentativeAppointment(context.Background(), NewAppointment{
		UserName: "Asha", Phone: "+919876543210", Address: "12 MG Road", DoctorID: 3, StartTime: slot,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(11), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresInsertTentativeUnknownDoctor(t *testing.T) {
	mock, store := newMockStore(t)
	mock.ExpectQuery(`INSERT INTO appointments`).WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), int64(99), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23503"})

	_, err := store.InsertTentativeAppointment(context.Background(), NewAppointment{
		UserName: "Asha", Phone: "+919876543210", Address: "12 MG Road", DoctorID: 99, StartTime: time.Now(),
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresCreateDoctorCheckViolation(t *testing.T) {
	mock, store := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO doctors`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23514", ConstraintName: "doctors_working_hours_chk"})
	mock.ExpectRollback()

	_, err := store.CreateDoctor(context.Background(), NewDoctor{
		Name: "Dr. Rao", StartTime: NewTimeOfDay(9, 0), EndTime: NewTimeOfDay(17, 0), MaxPerDay: 4,
	})
	assert.ErrorIs(t, err, ErrInvalidWorkingHours)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateDoctorValidatesBeforeQuerying(t *testing.T) {
	mock, store := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := store.CreateDoctor(context.Background(), NewDoctor{
		Name: "Dr. Rao", StartTime: NewTimeOfDay(17, 0), EndTime: NewTimeOfDay(9, 0), MaxPerDay: 4,
	})
	assert.ErrorIs(t, err, ErrInvalidWorkingHours)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateDoctorLinksSpecialties(t *testing.T) {
	mock, store := newMockStore(t)
	nine := pgtype.Time{Microseconds: int64(9 * time.Hour / time.Microsecond), Valid: true}
	five := pgtype.Time{Microseconds: int64(17 * time.Hour / time.Microsecond), Valid: true}

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO doctors`).WithArgs("Dr. Rao", nine, five, false, 4, "bio").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(3)))
	mock.ExpectExec(`INSERT INTO doctor_specialties`).WithArgs(int64(3), int64(1)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(`WHERE d.id = \$1 GROUP BY d.id`).WithArgs(int64(3)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "start_time", "end_time", "on_leave", "max_appointments_per_day", "bio", "specialties"}).
			AddRow(int64(3), "Dr. Rao", nine, five, false, 4, "bio", []string{"Cardiology"}))
	mock.ExpectCommit()

	doctor, err := store.CreateDoctor(context.Background(), NewDoctor{
		Name: "Dr. Rao", StartTime: NewTimeOfDay(9, 0), EndTime: NewTimeOfDay(17, 0), MaxPerDay: 4, Bio: "bio", SpecialtyIDs: []int64{1},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), doctor.ID)
	assert.Equal(t, []string{"Cardiology"}, doctor.Specialties)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDeleteMissing(t *testing.T) {
	mock, store := newMockStore(t)
	mock.ExpectExec(`DELETE FROM appointments WHERE id = \$1`).WithArgs(int64(5)).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	assert.ErrorIs(t, store.DeleteAppointment(context.Background(), 5), ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFindByContactUnconfirmed(t *testing.T) {
	mock, store := newMockStore(t)
	now := time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC)
	slot := now.Add(72 * time.Hour)
	mock.ExpectQuery(`WHERE phone = \$1 AND NOT confirmed AND start_time > \$2`).WithArgs("+919876543210", now).
		WillReturnRows(apptRow(2, 3, slot, false))

	list, err := store.FindAppointmentsByContact(context.Background(), "+919876543210", UnconfirmedAfter(now))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, slot, list[0].StartTime)
	assert.NoError(t, mock.ExpectationsWereMet())
}
