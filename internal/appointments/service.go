package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wolfman30/medibook/internal/audit"
	"github.com/wolfman30/medibook/internal/observability/metrics"
	"github.com/wolfman30/medibook/pkg/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var serviceTracer = otel.Tracer("medibook.internal.appointments.service")

// AuditRecorder receives lifecycle events.
type AuditRecorder interface {
	Record(ctx context.Context, event audit.Event) error
}

// Service drives the confirmation lifecycle for the webhook, admin API and CLI.
type Service struct {
	store   Store
	audit   AuditRecorder
	metrics *metrics.BookingMetrics
	logger  *logging.Logger
	loc     *time.Location
}

type ServiceOption func(*Service)

func WithAudit(a AuditRecorder) ServiceOption {
	return func(s *Service) { s.audit = a }
}

func WithMetrics(m *metrics.BookingMetrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithLocation sets the clinic time zone used by Today.
func WithLocation(loc *time.Location) ServiceOption {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func NewService(store Store, logger *logging.Logger, opts ...ServiceOption) *Service {
	if store == nil {
		panic("appointments: store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{store: store, logger: logger, loc: time.UTC}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Confirm flips a tentative appointment to confirmed after re-checking the slot.
func (s *Service) Confirm(ctx context.Context, id int64) (Appointment, error) {
	ctx, span := serviceTracer.Start(ctx, "appointments.confirm")
	defer span.End()
	span.SetAttributes(attribute.Int64("medibook.appointment_id", id))

	appt, err := s.store.SetConfirmed(ctx, id)
	switch {
	case err == nil:
		s.metrics.ObserveConfirmation("confirmed")
		s.record(ctx, audit.EventConfirmed, appt, nil)
		s.logger.Info("appointment confirmed", "appointment_id", id, "doctor_id", appt.DoctorID)
		return appt, nil
	case errors.Is(err, ErrSlotTaken), errors.Is(err, ErrDailyCapReached):
		s.metrics.ObserveConfirmation("conflict")
		s.record(ctx, audit.EventConfirmConflict, appt, map[string]string{"reason": err.Error()})
		s.logger.Warn("appointment confirmation conflict", "appointment_id", id, "error", err)
	case errors.Is(err, ErrAlreadyConfirmed):
		s.metrics.ObserveConfirmation("already_confirmed")
	case errors.Is(err, ErrNotFound):
		s.metrics.ObserveConfirmation("not_found")
	default:
		s.metrics.ObserveConfirmation("error")
		span.RecordError(err)
		s.logger.Error("appointment confirmation failed", "appointment_id", id, "error", err)
	}
	return appt, err
}

// ConfirmForContact confirms only when the appointment belongs to contact.
func (s *Service) ConfirmForContact(ctx context.Context, id int64, contact string) (Appointment, error) {
	appt, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		return Appointment{}, err
	}
	if appt.Phone != contact {
		return Appointment{}, fmt.Errorf("appointments: appointment %d for contact: %w", id, ErrNotFound)
	}
	return s.Confirm(ctx, id)
}

// Cancel removes a tentative appointment. Confirmed appointments are kept.
func (s *Service) Cancel(ctx context.Context, id int64) error {
	return s.cancel(ctx, id, "", "admin")
}

// CancelForContact cancels only when the appointment belongs to contact.
func (s *Service) CancelForContact(ctx context.Context, id int64, contact string) error {
	return s.cancel(ctx, id, contact, "requester")
}

func (s *Service) cancel(ctx context.Context, id int64, contact, by string) error {
	var appt Appointment
	err := s.store.InTx(ctx, func(q Queries) error {
		var err error
		appt, err = q.GetAppointment(ctx, id)
		if err != nil {
			return err
		}
		if contact != "" && appt.Phone != contact {
			return fmt.Errorf("appointments: appointment %d for contact: %w", id, ErrNotFound)
		}
		if appt.Confirmed {
			return ErrCannotCancelConfirmed
		}
		return q.DeleteAppointment(ctx, id)
	})
	if err != nil {
		return err
	}
	s.record(ctx, audit.EventCanceled, appt, map[string]string{"by": by})
	s.logger.Info("appointment canceled", "appointment_id", id, "by", by)
	return nil
}

// Delete removes an appointment regardless of state.
func (s *Service) Delete(ctx context.Context, id int64) error {
	appt, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteAppointment(ctx, id); err != nil {
		return err
	}
	s.record(ctx, audit.EventCanceled, appt, map[string]string{"by": "admin", "mode": "delete"})
	return nil
}

func (s *Service) MarkVisited(ctx context.Context, id int64, visited bool) (Appointment, error) {
	appt, err := s.store.SetVisited(ctx, id, visited)
	if err != nil {
		return Appointment{}, err
	}
	s.record(ctx, audit.EventVisited, appt, map[string]bool{"visited": visited})
	return appt, nil
}

// Today lists appointments within the clinic-local calendar day containing now.
func (s *Service) Today(ctx context.Context, now time.Time) ([]Appointment, error) {
	from, to := DayBounds(now, s.loc)
	return s.store.ListAppointmentsBetween(ctx, from, to)
}

func (s *Service) record(ctx context.Context, kind audit.EventType, appt Appointment, details any) {
	if s.audit == nil {
		return
	}
	event := audit.Event{
		Type:          kind,
		AppointmentID: appt.ID,
		ContactLast4:  logging.Last4(appt.Phone),
	}
	if details != nil {
		event.Details = audit.Details(details)
	}
	if err := s.audit.Record(ctx, event); err != nil {
		s.logger.Warn("audit record failed", "event_type", kind, "appointment_id", appt.ID, "error", err)
	}
}
