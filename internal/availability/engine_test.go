package availability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/medibook/internal/appointments"
)

type world struct {
	store *appointments.MemoryStore
	spec  map[string]appointments.Specialty
	docs  map[string]appointments.Doctor
}

func newWorld(t *testing.T) world {
	t.Helper()
	ctx := context.Background()
	w := world{
		store: appointments.NewMemoryStore(time.UTC),
		spec:  map[string]appointments.Specialty{},
		docs:  map[string]appointments.Doctor{},
	}
	for _, name := range []string{"Cardiology", "Dermatology", "Neurology"} {
		s, err := w.store.CreateSpecialty(ctx, name)
		require.NoError(t, err)
		w.spec[name] = s
	}
	add := func(name string, start, end appointments.TimeOfDay, maxPerDay int, onLeave bool, specs ...string) {
		ids := make([]int64, 0, len(specs))
		for _, s := range specs {
			ids = append(ids, w.spec[s].ID)
		}
		d, err := w.store.CreateDoctor(ctx, appointments.NewDoctor{
			Name: name, StartTime: start, EndTime: end, MaxPerDay: maxPerDay, OnLeave: onLeave, SpecialtyIDs: ids,
		})
		require.NoError(t, err)
		w.docs[name] = d
	}
	add("Dr. Rao", appointments.NewTimeOfDay(9, 0), appointments.NewTimeOfDay(10, 0), 2, false, "Cardiology")
	add("Dr. Iyer", appointments.NewTimeOfDay(8, 0), appointments.NewTimeOfDay(9, 0), 5, false, "Cardiology", "Dermatology")
	add("Dr. Away", appointments.NewTimeOfDay(7, 0), appointments.NewTimeOfDay(8, 0), 5, true, "Neurology")
	return w
}

func day(d int) time.Time {
	return time.Date(2025, time.February, d, 0, 0, 0, 0, time.UTC)
}

func at(d, h, m int) time.Time {
	return time.Date(2025, time.February, d, h, m, 0, 0, time.UTC)
}

func (w world) confirmed(t *testing.T, doctor string, start time.Time) {
	t.Helper()
	id := w.tentative(t, doctor, start)
	_, err := w.store.SetConfirmed(context.Background(), id)
	require.NoError(t, err)
}

func (w world) tentative(t *testing.T, doctor string, start time.Time) int64 {
	t.Helper()
	id, err := w.store.InsertTentativeAppointment(context.Background(), appointments.NewAppointment{
		UserName: "Asha", Phone: "+919876543210", Address: "12 MG Road", DoctorID: w.docs[doctor].ID, StartTime: start,
	})
	require.NoError(t, err)
	return id
}

func TestFindEarliestSlotPrefersStoreOrderOverClockTime(t *testing.T) {
	w := newWorld(t)
	engine := NewEngine(w.store, nil)

	// Dr. Iyer starts earlier in the day but Dr. Rao comes first in store order.
	slot, ok, err := engine.FindEarliestSlot(context.Background(), "cardiology", day(10), day(12), 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Dr. Rao", slot.Doctor.Name)
	assert.Equal(t, at(10, 9, 0), slot.Start)
	assert.Equal(t, "Cardiology", slot.Specialty.Name)
}

func TestFindEarliestSlotSkipsConfirmedSlots(t *testing.T) {
	w := newWorld(t)
	engine := NewEngine(w.store, nil)
	w.confirmed(t, "Dr. Rao", at(10, 9, 0))

	slot, ok, err := engine.FindEarliestSlot(context.Background(), "Cardiology", day(10), day(10), 30*time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Dr. Rao", slot.Doctor.Name)
	assert.Equal(t, at(10, 9, 30), slot.Start)
}

func TestFindEarliestSlotMovesToNextDoctorWhenDayFull(t *testing.T) {
	w := newWorld(t)
	engine := NewEngine(w.store, nil)
	w.confirmed(t, "Dr. Rao", at(10, 9, 0))
	w.confirmed(t, "Dr. Rao", at(10, 9, 30))

	slot, ok, err := engine.FindEarliestSlot(context.Background(), "Cardiology", day(10), day(11), 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Dr. Iyer", slot.Doctor.Name)
	assert.Equal(t, at(10, 8, 0), slot.Start)
}

func TestFindEarliestSlotDailyCapSkipsDoctorEvenWithOpenSlots(t *testing.T) {
	w := newWorld(t)
	engine := NewEngine(w.store, nil)
	// Dr. Rao's cap is 2. With 15 minute slots four exist, two are booked.
	w.confirmed(t, "Dr. Rao", at(10, 9, 0))
	w.confirmed(t, "Dr. Rao", at(10, 9, 15))

	slot, ok, err := engine.FindEarliestSlot(context.Background(), "Cardiology", day(10), day(10), 15*time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Dr. Iyer", slot.Doctor.Name)
}

func TestFindEarliestSlotRollsToNextDate(t *testing.T) {
	w := newWorld(t)
	engine := NewEngine(w.store, nil)
	w.confirmed(t, "Dr. Iyer", at(10, 8, 0))
	w.confirmed(t, "Dr. Iyer", at(10, 8, 30))

	slot, ok, err := engine.FindEarliestSlot(context.Background(), "Dermatology", day(10), day(11), 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, at(11, 8, 0), slot.Start)
}

func TestFindEarliestSlotIgnoresTentativeHolds(t *testing.T) {
	w := newWorld(t)
	engine := NewEngine(w.store, nil)
	before, ok, err := engine.FindEarliestSlot(context.Background(), "Cardiology", day(10), day(10), 0)
	require.NoError(t, err)
	require.True(t, ok)

	for i := 0; i < 5; i++ {
		w.tentative(t, before.Doctor.Name, before.Start)
	}
	after, ok, err := engine.FindEarliestSlot(context.Background(), "Cardiology", day(10), day(10), 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, before.Start, after.Start)
	assert.Equal(t, before.Doctor.ID, after.Doctor.ID)
}

func TestFindEarliestSlotNone(t *testing.T) {
	w := newWorld(t)
	engine := NewEngine(w.store, nil)
	ctx := context.Background()

	_, ok, err := engine.FindEarliestSlot(ctx, "Neurology", day(10), day(20), 0)
	require.NoError(t, err)
	assert.False(t, ok, "only doctor is on leave")

	_, ok, err = engine.FindEarliestSlot(ctx, "Orthopedics", day(10), day(20), 0)
	require.NoError(t, err)
	assert.False(t, ok, "unknown specialty")

	_, ok, err = engine.FindEarliestSlot(ctx, "Cardiology", day(12), day(10), 0)
	require.NoError(t, err)
	assert.False(t, ok, "inverted range")

	w.confirmed(t, "Dr. Iyer", at(10, 8, 0))
	w.confirmed(t, "Dr. Iyer", at(10, 8, 30))
	_, ok, err = engine.FindEarliestSlot(ctx, "Dermatology", day(10), day(10), 0)
	require.NoError(t, err)
	assert.False(t, ok, "every slot confirmed")
}

func TestFindEarliestSlotStopsBeforeEndOfDay(t *testing.T) {
	w := newWorld(t)
	engine := NewEngine(w.store, nil)
	w.confirmed(t, "Dr. Iyer", at(10, 8, 0))

	// 08:00-09:00 with 45 minute slots yields 08:00 and 08:45 only.
	slot, ok, err := engine.FindEarliestSlot(context.Background(), "Dermatology", day(10), day(10), 45*time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, at(10, 8, 45), slot.Start)
}

func TestFindEarliestSlotUsesClinicLocation(t *testing.T) {
	w := newWorld(t)
	ist := time.FixedZone("IST", 5*3600+1800)
	engine := NewEngine(w.store, nil, WithLocation(ist))

	slot, ok, err := engine.FindEarliestSlot(context.Background(), "Cardiology", day(10), day(10), 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 2, 10, 9, 0, 0, 0, ist), slot.Start)
	assert.Equal(t, ist, engine.Location())
}

func TestCandidatesForRange(t *testing.T) {
	w := newWorld(t)
	engine := NewEngine(w.store, nil, WithSlotDuration(time.Hour))

	slots, err := engine.CandidatesForRange(context.Background(), day(10), day(10))
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, "Cardiology", slots[0].Specialty.Name)
	assert.Equal(t, "Dr. Rao", slots[0].Doctor.Name)
	assert.Equal(t, "Dermatology", slots[1].Specialty.Name)
	assert.Equal(t, "Dr. Iyer", slots[1].Doctor.Name)
}

func TestFindEarliestSlotSkipsStartedSlotsWithClock(t *testing.T) {
	w := newWorld(t)
	clock := func() time.Time { return at(10, 9, 15) }
	engine := NewEngine(w.store, nil, WithSlotDuration(15*time.Minute), WithClock(clock))

	slot, ok, err := engine.FindEarliestSlot(context.Background(), "Cardiology", day(10), day(11), 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Dr. Rao", slot.Doctor.Name)
	assert.Equal(t, at(10, 9, 15), slot.Start)

	slot, ok, err = engine.FindEarliestSlot(context.Background(), "Dermatology", day(10), day(11), 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, at(11, 8, 0), slot.Start, "Dr. Iyer's day is over by 09:15")
}

func TestFindEarliestSlotPastRangeWithClock(t *testing.T) {
	w := newWorld(t)
	engine := NewEngine(w.store, nil, WithClock(func() time.Time { return at(12, 7, 0) }))

	_, ok, err := engine.FindEarliestSlot(context.Background(), "Cardiology", day(10), day(11), 0)
	require.NoError(t, err)
	assert.False(t, ok)

	slots, err := engine.CandidatesForRange(context.Background(), day(10), day(12))
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, at(12, 9, 0), slots[0].Start)
	assert.Equal(t, at(12, 8, 0), slots[1].Start)
}

type failingStore struct {
	Store
	err error
}

func (f failingStore) ListDoctorsBySpecialty(context.Context, int64, bool) ([]appointments.Doctor, error) {
	return nil, f.err
}

func TestFindEarliestSlotPropagatesStoreErrors(t *testing.T) {
	w := newWorld(t)
	boom := errors.New("connection reset")
	engine := NewEngine(failingStore{Store: w.store, err: boom}, nil)

	_, _, err := engine.FindEarliestSlot(context.Background(), "Cardiology", day(10), day(10), 0)
	assert.ErrorIs(t, err, boom)
}
