package appointments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store      *MemoryStore
	cardiology Specialty
	derm       Specialty
	doctor     Doctor
}

func newFixture(t *testing.T, maxPerDay int) fixture {
	t.Helper()
	ctx := context.Background()
	store := NewMemoryStore(time.UTC)
	cardiology, err := store.CreateSpecialty(ctx, "Cardiology")
	require.NoError(t, err)
	derm, err := store.CreateSpecialty(ctx, "Dermatology")
	require.NoError(t, err)
	doctor, err := store.CreateDoctor(ctx, NewDoctor{
		Name:         "Dr. Rao",
		StartTime:    NewTimeOfDay(9, 0),
		EndTime:      NewTimeOfDay(12, 0),
		MaxPerDay:    maxPerDay,
		Bio:          "Interventional cardiologist",
		SpecialtyIDs: []int64{cardiology.ID},
	})
	require.NoError(t, err)
	return fixture{store: store, cardiology: cardiology, derm: derm, doctor: doctor}
}

func slotAt(day, hour, minute int) time.Time {
	return time.Date(2025, time.February, day, hour, minute, 0, 0, time.UTC)
}

func (f fixture) book(t *testing.T, phone string, start time.Time) int64 {
	t.Helper()
	id, err := f.store.InsertTentativeAppointment(context.Background(), NewAppointment{
		UserName:  "Asha",
		Phone:     phone,
		Address:   "12 MG Road",
		DoctorID:  f.doctor.ID,
		StartTime: start,
	})
	require.NoError(t, err)
	return id
}

func TestMemoryStoreSpecialtyLookupIsCaseInsensitive(t *testing.T) {
	f := newFixture(t, 5)
	got, err := f.store.FindSpecialtyByName(context.Background(), "  cardiology ")
	require.NoError(t, err)
	assert.Equal(t, f.cardiology.ID, got.ID)

	_, err = f.store.FindSpecialtyByName(context.Background(), "Neurology")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreCreateDoctorRejectsInvertedHours(t *testing.T) {
	f := newFixture(t, 5)
	_, err := f.store.CreateDoctor(context.Background(), NewDoctor{
		Name:      "Dr. Late",
		StartTime: NewTimeOfDay(17, 0),
		EndTime:   NewTimeOfDay(9, 0),
		MaxPerDay: 3,
	})
	assert.ErrorIs(t, err, ErrInvalidWorkingHours)

	_, err = f.store.CreateDoctor(context.Background(), NewDoctor{
		Name:      "Dr. Zero",
		StartTime: NewTimeOfDay(9, 0),
		EndTime:   NewTimeOfDay(9, 0),
		MaxPerDay: 3,
	})
	assert.ErrorIs(t, err, ErrInvalidWorkingHours)
}

func TestMemoryStoreListDoctorsExcludesOnLeave(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()
	_, err := f.store.CreateDoctor(ctx, NewDoctor{
		Name:         "Dr. Away",
		StartTime:    NewTimeOfDay(9, 0),
		EndTime:      NewTimeOfDay(10, 0),
		MaxPerDay:    2,
		OnLeave:      true,
		SpecialtyIDs: []int64{f.cardiology.ID},
	})
	require.NoError(t, err)

	active, err := f.store.ListDoctorsBySpecialty(ctx, f.cardiology.ID, true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "Dr. Rao", active[0].Name)
	assert.Equal(t, []string{"Cardiology"}, active[0].Specialties)

	all, err := f.store.ListDoctorsBySpecialty(ctx, f.cardiology.ID, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestMemoryStoreConfirmCollidingTentatives(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()
	slot := slotAt(10, 9, 0)
	first := f.book(t, "+919876543210", slot)
	second := f.book(t, "+919812345678", slot)

	confirmed, err := f.store.SetConfirmed(ctx, first)
	require.NoError(t, err)
	assert.True(t, confirmed.Confirmed)

	_, err = f.store.SetConfirmed(ctx, second)
	assert.ErrorIs(t, err, ErrSlotTaken)

	loser, err := f.store.GetAppointment(ctx, second)
	require.NoError(t, err)
	assert.False(t, loser.Confirmed)

	_, err = f.store.SetConfirmed(ctx, first)
	assert.ErrorIs(t, err, ErrAlreadyConfirmed)
}

func TestMemoryStoreConfirmEnforcesDailyCap(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	first := f.book(t, "+919876543210", slotAt(10, 9, 0))
	second := f.book(t, "+919812345678", slotAt(10, 10, 0))
	nextDay := f.book(t, "+919812345678", slotAt(11, 10, 0))

	_, err := f.store.SetConfirmed(ctx, first)
	require.NoError(t, err)
	_, err = f.store.SetConfirmed(ctx, second)
	assert.ErrorIs(t, err, ErrDailyCapReached)
	_, err = f.store.SetConfirmed(ctx, nextDay)
	assert.NoError(t, err)
}

func TestMemoryStoreConfirmSurfacesCountErrors(t *testing.T) {
	f := newFixture(t, 2)
	id := f.book(t, "+919876543210", slotAt(10, 9, 0))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.store.SetConfirmed(ctx, id)
	assert.ErrorIs(t, err, context.Canceled)

	appt, err := f.store.GetAppointment(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, appt.Confirmed)
}

func TestMemoryStoreFindByContactFilters(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()
	phone := "+919876543210"
	past := f.book(t, phone, slotAt(1, 9, 0))
	future := f.book(t, phone, slotAt(20, 9, 0))
	confirmed := f.book(t, phone, slotAt(21, 9, 0))
	_, err := f.store.SetConfirmed(ctx, confirmed)
	require.NoError(t, err)

	now := slotAt(10, 0, 0)
	pending, err := f.store.FindAppointmentsByContact(ctx, phone, UnconfirmedAfter(now))
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, future, pending[0].ID)

	done, err := f.store.FindAppointmentsByContact(ctx, phone, ConfirmedOnly())
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Equal(t, confirmed, done[0].ID)

	assert.NotEqual(t, past, pending[0].ID, "past tentative appointments are ignored")
}

func TestMemoryStoreInTxRollsBack(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()
	boom := errors.New("notification exploded")

	err := f.store.InTx(ctx, func(q Queries) error {
		if _, err := q.InsertTentativeAppointment(ctx, NewAppointment{
			UserName: "Asha", Phone: "+919876543210", Address: "12 MG Road", DoctorID: f.doctor.ID, StartTime: slotAt(10, 9, 0),
		}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	list, err := f.store.ListAppointmentsBetween(ctx, slotAt(1, 0, 0), slotAt(28, 0, 0))
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestMemoryStoreInsertRequiresKnownDoctor(t *testing.T) {
	f := newFixture(t, 5)
	_, err := f.store.InsertTentativeAppointment(context.Background(), NewAppointment{
		UserName: "Asha", Phone: "+919876543210", Address: "12 MG Road", DoctorID: 999, StartTime: slotAt(10, 9, 0),
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreVisitedAndDelete(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()
	id := f.book(t, "+919876543210", slotAt(10, 9, 0))

	appt, err := f.store.SetVisited(ctx, id, true)
	require.NoError(t, err)
	assert.True(t, appt.Visited)

	require.NoError(t, f.store.DeleteAppointment(ctx, id))
	assert.ErrorIs(t, f.store.DeleteAppointment(ctx, id), ErrNotFound)
	_, err = f.store.SetVisited(ctx, id, false)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTimeOfDay(t *testing.T) {
	tod, err := ParseTimeOfDay("09:30")
	require.NoError(t, err)
	assert.Equal(t, NewTimeOfDay(9, 30), tod)
	assert.Equal(t, "09:30", tod.String())

	loc := time.FixedZone("IST", 5*3600+1800)
	day := time.Date(2025, 2, 10, 23, 0, 0, 0, loc)
	assert.Equal(t, time.Date(2025, 2, 10, 9, 30, 0, 0, loc), tod.On(day))

	_, err = ParseTimeOfDay("9am")
	assert.Error(t, err)
}
