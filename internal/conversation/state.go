// Package conversation drives a booking chat one turn at a time: it collects
// the requester's details, validates each answer, and runs the booking
// pipeline once symptoms are known.
package conversation

import "time"

// State tags where a session is in the booking flow.
type State string

const (
	StateAwaitingName      State = "awaiting_name"
	StateAwaitingPhone     State = "awaiting_phone"
	StateAwaitingAddress   State = "awaiting_address"
	StateAwaitingDateRange State = "awaiting_date_range"
	StateAwaitingSymptoms  State = "awaiting_symptoms"
	StateDone              State = "done"
)

// Terminal reports whether no further turns are accepted.
func (s State) Terminal() bool {
	return s == StateDone
}

// Session is the per-connection payload. It is passed and returned by value;
// the owning transport keeps the latest copy.
type Session struct {
	ID        string
	State     State
	Name      string
	Phone     string
	Address   string
	StartDate time.Time
	EndDate   time.Time
	Booking   *BookingSummary
}

// NewSession starts a session waiting for the requester's name.
func NewSession(id string) Session {
	return Session{ID: id, State: StateAwaitingName}
}

// BookingSummary describes the tentative appointment created for a session.
type BookingSummary struct {
	AppointmentID int64
	DoctorID      int64
	DoctorName    string
	Specialty     string
	DoctorBio     string
	Slot          time.Time
}
