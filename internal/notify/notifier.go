// Package notify delivers booking notices to requesters over WhatsApp and
// copies them to the front desk by email.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/medibook/pkg/logging"
)

const slotLayout = "02 Jan 2006 at 03:04 PM"

// MessageSender delivers a text message to a contact address.
type MessageSender interface {
	Send(ctx context.Context, to, body string) error
}

// BookingNotice describes a freshly booked, unconfirmed appointment.
type BookingNotice struct {
	AppointmentID int64
	Name          string
	Phone         string
	DoctorName    string
	Specialty     string
	DoctorBio     string
	Slot          time.Time
}

// Notifier fans a booking notice out to the requester and the front desk.
type Notifier struct {
	messages  MessageSender
	email     EmailSender
	frontDesk string
	logger    *logging.Logger
}

// NewNotifier builds a Notifier. email and frontDesk are optional; without
// both no email copy is sent.
func NewNotifier(messages MessageSender, email EmailSender, frontDesk string, logger *logging.Logger) *Notifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &Notifier{
		messages:  messages,
		email:     email,
		frontDesk: strings.TrimSpace(frontDesk),
		logger:    logger.Component("notify"),
	}
}

// NotifyBooked attempts every configured channel and returns their failures
// joined. Callers treat the result as advisory.
func (n *Notifier) NotifyBooked(ctx context.Context, notice BookingNotice) error {
	var errs []error
	if n.messages != nil {
		if err := n.messages.Send(ctx, notice.Phone, BookingMessage(notice)); err != nil {
			n.logger.Warn("booking message not delivered",
				"appointment_id", notice.AppointmentID,
				"phone_last4", logging.Last4(notice.Phone),
				"error", err,
			)
			errs = append(errs, fmt.Errorf("notify: whatsapp: %w", err))
		}
	} else {
		n.logger.Info("no message sender configured, skipping booking message", "appointment_id", notice.AppointmentID)
	}

	if n.email != nil && n.frontDesk != "" {
		err := n.email.Send(ctx, EmailMessage{
			To:      n.frontDesk,
			ToName:  "Front Desk",
			Subject: fmt.Sprintf("New booking #%d: %s with %s", notice.AppointmentID, notice.Name, notice.DoctorName),
			Body:    frontDeskBody(notice),
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("notify: email: %w", err))
		}
	}
	return errors.Join(errs...)
}

// BookingMessage is the WhatsApp text sent to the requester.
func BookingMessage(n BookingNotice) string {
	bio := n.DoctorBio
	if bio == "" {
		bio = "No bio available."
	}
	return fmt.Sprintf("Hello %s, your appointment with %s on %s has been booked.\n"+
		"Doctor Bio: %s\n"+
		"To confirm, reply 'confirm %d'. To cancel, reply 'cancel %d'.",
		n.Name, n.DoctorName, n.Slot.Format(slotLayout), bio, n.AppointmentID, n.AppointmentID)
}

func frontDeskBody(n BookingNotice) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Appointment #%d (unconfirmed)\n", n.AppointmentID)
	fmt.Fprintf(&b, "Patient: %s\n", n.Name)
	fmt.Fprintf(&b, "Phone: %s\n", n.Phone)
	fmt.Fprintf(&b, "Doctor: %s (%s)\n", n.DoctorName, n.Specialty)
	fmt.Fprintf(&b, "When: %s\n", n.Slot.Format(slotLayout))
	return b.String()
}
