package appointments

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used for local runs and tests.
// Transactions hold the store lock and apply to a copy that is swapped in on success.
type MemoryStore struct {
	mu   sync.Mutex
	data *memData
	loc  *time.Location
	now  func() time.Time
}

type memDoctor struct {
	Doctor
	specialtyIDs []int64
}

type memData struct {
	specialties  []Specialty
	doctors      []memDoctor
	appointments []Appointment
	nextID       int64
}

func (d *memData) clone() *memData {
	out := &memData{
		specialties:  slices.Clone(d.specialties),
		appointments: slices.Clone(d.appointments),
		nextID:       d.nextID,
		doctors:      make([]memDoctor, len(d.doctors)),
	}
	for i, doc := range d.doctors {
		doc.Specialties = slices.Clone(doc.Specialties)
		doc.specialtyIDs = slices.Clone(doc.specialtyIDs)
		out.doctors[i] = doc
	}
	return out
}

// NewMemoryStore returns an empty store. loc defines calendar days for the daily cap.
func NewMemoryStore(loc *time.Location) *MemoryStore {
	if loc == nil {
		loc = time.UTC
	}
	return &MemoryStore{data: &memData{}, loc: loc, now: time.Now}
}

func (s *MemoryStore) InTx(ctx context.Context, fn func(q Queries) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.data.clone()
	if err := fn(&memQueries{data: work, loc: s.loc, now: s.now}); err != nil {
		return err
	}
	s.data = work
	return nil
}

func (s *MemoryStore) view(fn func(q *memQueries) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&memQueries{data: s.data, loc: s.loc, now: s.now})
}

// Single-statement writes get the same all-or-nothing behaviour as Postgres.
func (s *MemoryStore) write(ctx context.Context, fn func(q Queries) error) error {
	return s.InTx(ctx, fn)
}

func (s *MemoryStore) ListSpecialties(ctx context.Context) (out []Specialty, err error) {
	err = s.view(func(q *memQueries) error { out, err = q.ListSpecialties(ctx); return err })
	return out, err
}

func (s *MemoryStore) FindSpecialtyByName(ctx context.Context, name string) (out Specialty, err error) {
	err = s.view(func(q *memQueries) error { out, err = q.FindSpecialtyByName(ctx, name); return err })
	return out, err
}

func (s *MemoryStore) ListDoctorsBySpecialty(ctx context.Context, specialtyID int64, excludeOnLeave bool) (out []Doctor, err error) {
	err = s.view(func(q *memQueries) error {
		out, err = q.ListDoctorsBySpecialty(ctx, specialtyID, excludeOnLeave)
		return err
	})
	return out, err
}

func (s *MemoryStore) GetDoctor(ctx context.Context, id int64) (out Doctor, err error) {
	err = s.view(func(q *memQueries) error { out, err = q.GetDoctor(ctx, id); return err })
	return out, err
}

func (s *MemoryStore) CountConfirmedAppointments(ctx context.Context, doctorID int64, dayStart, dayEnd time.Time) (n int, err error) {
	err = s.view(func(q *memQueries) error {
		n, err = q.CountConfirmedAppointments(ctx, doctorID, dayStart, dayEnd)
		return err
	})
	return n, err
}

func (s *MemoryStore) FindConfirmedAppointment(ctx context.Context, doctorID int64, slot time.Time) (out Appointment, err error) {
	err = s.view(func(q *memQueries) error { out, err = q.FindConfirmedAppointment(ctx, doctorID, slot); return err })
	return out, err
}

func (s *MemoryStore) FindAppointmentsByContact(ctx context.Context, contact string, filter ContactFilter) (out []Appointment, err error) {
	err = s.view(func(q *memQueries) error { out, err = q.FindAppointmentsByContact(ctx, contact, filter); return err })
	return out, err
}

func (s *MemoryStore) GetAppointment(ctx context.Context, id int64) (out Appointment, err error) {
	err = s.view(func(q *memQueries) error { out, err = q.GetAppointment(ctx, id); return err })
	return out, err
}

func (s *MemoryStore) ListAppointmentsBetween(ctx context.Context, from, to time.Time) (out []Appointment, err error) {
	err = s.view(func(q *memQueries) error { out, err = q.ListAppointmentsBetween(ctx, from, to); return err })
	return out, err
}

func (s *MemoryStore) InsertTentativeAppointment(ctx context.Context, appt NewAppointment) (id int64, err error) {
	err = s.write(ctx, func(q Queries) error { id, err = q.InsertTentativeAppointment(ctx, appt); return err })
	return id, err
}

func (s *MemoryStore) SetConfirmed(ctx context.Context, id int64) (out Appointment, err error) {
	err = s.write(ctx, func(q Queries) error { out, err = q.SetConfirmed(ctx, id); return err })
	return out, err
}

func (s *MemoryStore) SetVisited(ctx context.Context, id int64, visited bool) (out Appointment, err error) {
	err = s.write(ctx, func(q Queries) error { out, err = q.SetVisited(ctx, id, visited); return err })
	return out, err
}

func (s *MemoryStore) DeleteAppointment(ctx context.Context, id int64) error {
	return s.write(ctx, func(q Queries) error { return q.DeleteAppointment(ctx, id) })
}

func (s *MemoryStore) CreateSpecialty(ctx context.Context, name string) (out Specialty, err error) {
	err = s.write(ctx, func(q Queries) error { out, err = q.CreateSpecialty(ctx, name); return err })
	return out, err
}

func (s *MemoryStore) CreateDoctor(ctx context.Context, doctor NewDoctor) (out Doctor, err error) {
	err = s.write(ctx, func(q Queries) error { out, err = q.CreateDoctor(ctx, doctor); return err })
	return out, err
}

type memQueries struct {
	data *memData
	loc  *time.Location
	now  func() time.Time
}

func (q *memQueries) id() int64 {
	q.data.nextID++
	return q.data.nextID
}

func (q *memQueries) ListSpecialties(context.Context) ([]Specialty, error) {
	return slices.Clone(q.data.specialties), nil
}

func (q *memQueries) FindSpecialtyByName(_ context.Context, name string) (Specialty, error) {
	name = strings.TrimSpace(name)
	for _, s := range q.data.specialties {
		if strings.EqualFold(s.Name, name) {
			return s, nil
		}
	}
	return Specialty{}, fmt.Errorf("appointments: find specialty %q: %w", name, ErrNotFound)
}

func (q *memQueries) CreateSpecialty(_ context.Context, name string) (Specialty, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Specialty{}, fmt.Errorf("appointments: create specialty: name is required")
	}
	for _, s := range q.data.specialties {
		if strings.EqualFold(s.Name, name) {
			return Specialty{}, fmt.Errorf("appointments: create specialty: %q already exists", name)
		}
	}
	s := Specialty{ID: q.id(), Name: name}
	q.data.specialties = append(q.data.specialties, s)
	return s, nil
}

func (q *memQueries) ListDoctorsBySpecialty(_ context.Context, specialtyID int64, excludeOnLeave bool) ([]Doctor, error) {
	var out []Doctor
	for _, d := range q.data.doctors {
		if excludeOnLeave && d.OnLeave {
			continue
		}
		if slices.Contains(d.specialtyIDs, specialtyID) {
			out = append(out, cloneDoctor(d.Doctor))
		}
	}
	return out, nil
}

func (q *memQueries) GetDoctor(_ context.Context, id int64) (Doctor, error) {
	for _, d := range q.data.doctors {
		if d.ID == id {
			return cloneDoctor(d.Doctor), nil
		}
	}
	return Doctor{}, fmt.Errorf("appointments: get doctor %d: %w", id, ErrNotFound)
}

func (q *memQueries) CreateDoctor(_ context.Context, doctor NewDoctor) (Doctor, error) {
	if err := doctor.Validate(); err != nil {
		return Doctor{}, err
	}
	rec := memDoctor{
		Doctor: Doctor{
			Name:      strings.TrimSpace(doctor.Name),
			StartTime: doctor.StartTime,
			EndTime:   doctor.EndTime,
			OnLeave:   doctor.OnLeave,
			MaxPerDay: doctor.MaxPerDay,
			Bio:       doctor.Bio,
		},
	}
	for _, sid := range doctor.SpecialtyIDs {
		idx := slices.IndexFunc(q.data.specialties, func(s Specialty) bool { return s.ID == sid })
		if idx < 0 {
			return Doctor{}, fmt.Errorf("appointments: link specialty %d: %w", sid, ErrNotFound)
		}
		rec.specialtyIDs = append(rec.specialtyIDs, sid)
		rec.Specialties = append(rec.Specialties, q.data.specialties[idx].Name)
	}
	rec.ID = q.id()
	q.data.doctors = append(q.data.doctors, rec)
	return cloneDoctor(rec.Doctor), nil
}

func (q *memQueries) CountConfirmedAppointments(ctx context.Context, doctorID int64, dayStart, dayEnd time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n := 0
	for _, a := range q.data.appointments {
		if a.DoctorID == doctorID && a.Confirmed && !a.StartTime.Before(dayStart) && a.StartTime.Before(dayEnd) {
			n++
		}
	}
	return n, nil
}

func (q *memQueries) FindConfirmedAppointment(_ context.Context, doctorID int64, slot time.Time) (Appointment, error) {
	for _, a := range q.data.appointments {
		if a.DoctorID == doctorID && a.Confirmed && a.StartTime.Equal(slot) {
			return a, nil
		}
	}
	return Appointment{}, fmt.Errorf("appointments: find confirmed appointment: %w", ErrNotFound)
}

func (q *memQueries) FindAppointmentsByContact(_ context.Context, contact string, filter ContactFilter) ([]Appointment, error) {
	var out []Appointment
	for _, a := range q.data.appointments {
		if a.Phone == contact && filter.matches(a) {
			out = append(out, a)
		}
	}
	sortAppointments(out)
	return out, nil
}

func (q *memQueries) GetAppointment(_ context.Context, id int64) (Appointment, error) {
	idx := q.index(id)
	if idx < 0 {
		return Appointment{}, fmt.Errorf("appointments: get appointment %d: %w", id, ErrNotFound)
	}
	return q.data.appointments[idx], nil
}

func (q *memQueries) ListAppointmentsBetween(_ context.Context, from, to time.Time) ([]Appointment, error) {
	var out []Appointment
	for _, a := range q.data.appointments {
		if !a.StartTime.Before(from) && a.StartTime.Before(to) {
			out = append(out, a)
		}
	}
	sortAppointments(out)
	return out, nil
}

func (q *memQueries) InsertTentativeAppointment(ctx context.Context, appt NewAppointment) (int64, error) {
	if err := appt.Validate(); err != nil {
		return 0, err
	}
	if _, err := q.GetDoctor(ctx, appt.DoctorID); err != nil {
		return 0, fmt.Errorf("appointments: insert tentative: %w", err)
	}
	a := Appointment{
		ID:        q.id(),
		UserName:  appt.UserName,
		Phone:     appt.Phone,
		Address:   appt.Address,
		DoctorID:  appt.DoctorID,
		StartTime: appt.StartTime,
		CreatedAt: q.now().UTC(),
	}
	q.data.appointments = append(q.data.appointments, a)
	return a.ID, nil
}

func (q *memQueries) SetConfirmed(ctx context.Context, id int64) (Appointment, error) {
	idx := q.index(id)
	if idx < 0 {
		return Appointment{}, fmt.Errorf("appointments: lock appointment %d: %w", id, ErrNotFound)
	}
	appt := q.data.appointments[idx]
	if appt.Confirmed {
		return appt, ErrAlreadyConfirmed
	}
	doctor, err := q.GetDoctor(ctx, appt.DoctorID)
	if err != nil {
		return Appointment{}, err
	}
	if other, err := q.FindConfirmedAppointment(ctx, appt.DoctorID, appt.StartTime); err == nil {
		return appt, fmt.Errorf("%w: held by appointment %d", ErrSlotTaken, other.ID)
	}
	dayStart, dayEnd := DayBounds(appt.StartTime, q.loc)
	count, err := q.CountConfirmedAppointments(ctx, appt.DoctorID, dayStart, dayEnd)
	if err != nil {
		return Appointment{}, err
	}
	if count >= doctor.MaxPerDay {
		return appt, ErrDailyCapReached
	}
	q.data.appointments[idx].Confirmed = true
	return q.data.appointments[idx], nil
}

func (q *memQueries) SetVisited(_ context.Context, id int64, visited bool) (Appointment, error) {
	idx := q.index(id)
	if idx < 0 {
		return Appointment{}, fmt.Errorf("appointments: set visited %d: %w", id, ErrNotFound)
	}
	q.data.appointments[idx].Visited = visited
	return q.data.appointments[idx], nil
}

func (q *memQueries) DeleteAppointment(_ context.Context, id int64) error {
	idx := q.index(id)
	if idx < 0 {
		return fmt.Errorf("appointments: delete %d: %w", id, ErrNotFound)
	}
	q.data.appointments = slices.Delete(q.data.appointments, idx, idx+1)
	return nil
}

func (q *memQueries) index(id int64) int {
	return slices.IndexFunc(q.data.appointments, func(a Appointment) bool { return a.ID == id })
}

func cloneDoctor(d Doctor) Doctor {
	d.Specialties = slices.Clone(d.Specialties)
	return d
}

func sortAppointments(list []Appointment) {
	slices.SortStableFunc(list, func(a, b Appointment) int {
		if c := a.StartTime.Compare(b.StartTime); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
