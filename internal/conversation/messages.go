package conversation

import (
	"fmt"
	"time"
)

// Greeting is the first reply of every session.
const Greeting = "Hi! I'm here to help you book an appointment. What's your name?"

// SlotLayout renders appointment times in replies and notifications.
const SlotLayout = "02 Jan 2006 at 03:04 PM"

const (
	msgInvalidName     = "Please tell me your name so I can book the appointment."
	msgInvalidPhone    = "That doesn't look like a valid phone number. Please enter 10 to 15 digits, optionally starting with + and your country code."
	msgInvalidAddress  = "Please enter your full address (at least 5 characters)."
	msgInvalidDate     = "I couldn't understand that date. Please enter a date like '10 Feb 2025' or a range like '10 Feb 2025 to 20 Feb 2025'."
	msgInvertedRange   = "The start date must be on or before the end date. Please enter the range again."
	msgEmptySymptoms   = "Please describe your symptoms so I can find the right doctor."
	msgInvalidInput    = "Sorry, I didn't understand that. Please try again."
	msgNoAvailability  = "Sorry, no doctors are available in that date range. Send your symptoms again to retry, or reconnect to choose other dates."
	msgDatesPassed     = "Those dates have already passed. Send your symptoms again to retry, or reconnect to choose other dates."
	msgRecommendRetry  = "I couldn't match your symptoms to one of our available doctors. Could you describe them in a bit more detail?"
	msgApology         = "Sorry, something went wrong on our side. Please try again."
	msgOracleApology   = "Sorry, I can't reach our doctor-matching service right now. Please send your symptoms again in a moment."
	msgAlreadyComplete = "Your booking is already complete. Please check WhatsApp to confirm or cancel it."
)

func askPhone(name string) string {
	return fmt.Sprintf("Nice to meet you, %s! What's your phone number?", name)
}

func askAddress() string {
	return "Thanks! What's your address?"
}

func askDateRange() string {
	return "Which dates work for you? Send one date like '10 Feb 2025' or a range like '10 Feb 2025 to 20 Feb 2025'."
}

func askSymptoms() string {
	return "Got it. Please describe your symptoms so I can find the right doctor."
}

func confirmedConflict(at time.Time) string {
	return fmt.Sprintf("You already have a confirmed appointment on %s. Please cancel it first or use a different phone number.", at.Format(SlotLayout))
}

func pendingConflict(at time.Time) string {
	return fmt.Sprintf("You have an unconfirmed appointment on %s. Please confirm or cancel it before booking a new one.", at.Format(SlotLayout))
}

func bookingSummary(s BookingSummary, phone string) string {
	bio := s.DoctorBio
	if bio == "" {
		bio = "No bio available."
	}
	return fmt.Sprintf("Your appointment is booked (reference #%d).\n"+
		"Doctor: %s (%s)\n"+
		"When: %s\n"+
		"Doctor Bio: %s\n"+
		"This appointment is not confirmed yet. We've sent a WhatsApp message to %s; reply 'confirm %d' to confirm or 'cancel %d' to cancel.",
		s.AppointmentID, s.DoctorName, s.Specialty, s.Slot.Format(SlotLayout), bio, phone, s.AppointmentID, s.AppointmentID)
}
