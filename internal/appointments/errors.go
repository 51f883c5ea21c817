package appointments

import "errors"

var (
	// ErrNotFound is returned when a specialty, doctor or appointment does not exist
	ErrNotFound = errors.New("appointments: not found")

	// ErrSlotTaken is returned when another confirmed appointment already occupies the slot
	ErrSlotTaken = errors.New("appointments: slot already confirmed for another appointment")

	// ErrDailyCapReached is returned when confirming would exceed the doctor's daily cap
	ErrDailyCapReached = errors.New("appointments: doctor has reached the daily appointment cap")

	// ErrAlreadyConfirmed is returned when confirming an appointment twice
	ErrAlreadyConfirmed = errors.New("appointments: appointment already confirmed")

	// ErrCannotCancelConfirmed is returned when a requester tries to cancel a confirmed appointment
	ErrCannotCancelConfirmed = errors.New("appointments: confirmed appointments cannot be canceled")

	// ErrInvalidWorkingHours is returned when a doctor's start time is not before the end time
	ErrInvalidWorkingHours = errors.New("appointments: working hours start must be before end")

	// ErrInvalidDoctor is returned for doctor records missing required fields
	ErrInvalidDoctor = errors.New("appointments: invalid doctor")

	// ErrInvalidAppointment is returned for appointment records missing required fields
	ErrInvalidAppointment = errors.New("appointments: invalid appointment")
)

// IsConflict reports whether err is a confirm-time conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrSlotTaken) || errors.Is(err, ErrDailyCapReached) || errors.Is(err, ErrAlreadyConfirmed)
}
