package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wolfman30/medibook/internal/appointments"
	"github.com/wolfman30/medibook/internal/audit"
	"github.com/wolfman30/medibook/internal/availability"
	"github.com/wolfman30/medibook/internal/notify"
	"github.com/wolfman30/medibook/internal/recommend"
	"github.com/wolfman30/medibook/pkg/logging"
	"go.opentelemetry.io/otel/attribute"
)

// Booking outcomes reported to metrics.
const (
	outcomeBooked         = "booked"
	outcomeNoAvailability = "no_availability"
	outcomeDatesPassed    = "dates_passed"
	outcomeRejected       = "recommendation_rejected"
	outcomeOracleDown     = "oracle_unavailable"
	outcomeConflict       = "conflict"
	outcomeStoreError     = "store_error"
)

// book runs the booking pipeline for a session that has every field but
// symptoms. On any failure the session is returned unchanged.
func (e *Engine) book(ctx context.Context, s Session, symptoms string) (Session, string, error) {
	ctx, span := engineTracer.Start(ctx, "conversation.book")
	defer span.End()

	today := e.today()
	if s.EndDate.Before(today) {
		e.metrics.ObserveBooking(outcomeDatesPassed)
		return s, "", newError(KindNotFound, msgDatesPassed, fmt.Errorf("range ends %s, before today", s.EndDate.Format("2006-01-02")))
	}
	from := s.StartDate
	if from.Before(today) {
		from = today
	}
	slots, err := e.slots.CandidatesForRange(ctx, from, s.EndDate)
	if err != nil {
		e.metrics.ObserveBooking(outcomeStoreError)
		return s, "", newError(KindStore, msgApology, err)
	}
	span.SetAttributes(attribute.Int("medibook.candidates", len(slots)))
	if len(slots) == 0 {
		e.metrics.ObserveBooking(outcomeNoAvailability)
		return s, "", newError(KindNotFound, msgNoAvailability, fmt.Errorf("no slots between %s and %s", from.Format("2006-01-02"), s.EndDate.Format("2006-01-02")))
	}

	candidates := make([]recommend.Candidate, 0, len(slots))
	for _, slot := range slots {
		candidates = append(candidates, recommend.Candidate{
			DoctorID:   slot.Doctor.ID,
			DoctorName: slot.Doctor.Name,
			Specialty:  slot.Specialty.Name,
			Slot:       slot.Start,
		})
	}
	chosen, err := e.recommender.SelectDoctor(ctx, symptoms, candidates)
	switch {
	case errors.Is(err, recommend.ErrRejected):
		e.metrics.ObserveBooking(outcomeRejected)
		e.record(ctx, audit.EventRecommendationFail, 0, s.Phone, map[string]any{"session_id": s.ID, "candidates": len(candidates)})
		return s, "", newError(KindAdapter, msgRecommendRetry, err)
	case err != nil:
		e.metrics.ObserveBooking(outcomeOracleDown)
		return s, "", newError(KindAdapter, msgOracleApology, err)
	}

	slot, ok := resolveSlot(chosen, slots)
	if !ok {
		return s, "", newError(KindUnexpected, "", fmt.Errorf("recommended doctor %d (%s) not among candidates", chosen.DoctorID, chosen.Specialty))
	}

	summary := BookingSummary{
		DoctorID:   slot.Doctor.ID,
		DoctorName: slot.Doctor.Name,
		Specialty:  slot.Specialty.Name,
		DoctorBio:  slot.Doctor.Bio,
		Slot:       slot.Start.In(e.loc),
	}
	err = e.store.InTx(ctx, func(q appointments.Queries) error {
		if err := e.checkConflicts(ctx, q, s.Phone); err != nil {
			return err
		}
		id, err := q.InsertTentativeAppointment(ctx, appointments.NewAppointment{
			UserName:  s.Name,
			Phone:     s.Phone,
			Address:   s.Address,
			DoctorID:  slot.Doctor.ID,
			StartTime: slot.Start,
		})
		if err != nil {
			return fmt.Errorf("insert tentative appointment: %w", err)
		}
		summary.AppointmentID = id

		e.notifyBooked(ctx, s, summary)
		return nil
	})
	if err != nil {
		var convErr *Error
		if errors.As(err, &convErr) {
			if convErr.Kind == KindConflict {
				e.metrics.ObserveBooking(outcomeConflict)
				e.record(ctx, audit.EventBookingConflict, 0, s.Phone, map[string]any{"session_id": s.ID})
			}
			return s, "", convErr
		}
		e.metrics.ObserveBooking(outcomeStoreError)
		return s, "", newError(KindStore, msgApology, err)
	}

	e.metrics.ObserveBooking(outcomeBooked)
	e.record(ctx, audit.EventBooked, summary.AppointmentID, s.Phone, map[string]any{
		"session_id": s.ID,
		"doctor_id":  summary.DoctorID,
		"specialty":  summary.Specialty,
		"slot":       summary.Slot,
	})
	e.logger.Info("tentative appointment booked",
		"session_id", s.ID,
		"appointment_id", summary.AppointmentID,
		"doctor_id", summary.DoctorID,
		"slot", summary.Slot,
		"phone_last4", logging.Last4(s.Phone),
	)

	s.State = StateDone
	s.Booking = &summary
	return s, bookingSummary(summary, s.Phone), nil
}

// checkConflicts refuses a new booking when the contact already holds a
// confirmed appointment or an unconfirmed one from today onward.
func (e *Engine) checkConflicts(ctx context.Context, q appointments.Queries, phone string) error {
	confirmed, err := q.FindAppointmentsByContact(ctx, phone, appointments.ConfirmedOnly())
	if err != nil {
		return fmt.Errorf("find confirmed appointments: %w", err)
	}
	if len(confirmed) > 0 {
		return newError(KindConflict, confirmedConflict(confirmed[0].StartTime.In(e.loc)), appointments.ErrSlotTaken)
	}
	pending, err := q.FindAppointmentsByContact(ctx, phone, appointments.UnconfirmedAfter(e.today().Add(-time.Nanosecond)))
	if err != nil {
		return fmt.Errorf("find pending appointments: %w", err)
	}
	if len(pending) > 0 {
		return newError(KindConflict, pendingConflict(pending[0].StartTime.In(e.loc)), appointments.ErrSlotTaken)
	}
	return nil
}

// notifyBooked sends the booking notice. Delivery failures are logged only.
func (e *Engine) notifyBooked(ctx context.Context, s Session, summary BookingSummary) {
	if e.notifier == nil {
		return
	}
	err := e.notifier.NotifyBooked(ctx, notify.BookingNotice{
		AppointmentID: summary.AppointmentID,
		Name:          s.Name,
		Phone:         s.Phone,
		DoctorName:    summary.DoctorName,
		Specialty:     summary.Specialty,
		DoctorBio:     summary.DoctorBio,
		Slot:          summary.Slot,
	})
	if err != nil {
		e.logger.Warn("booking notification failed",
			"session_id", s.ID,
			"appointment_id", summary.AppointmentID,
			"error", err,
		)
	}
}

func (e *Engine) record(ctx context.Context, kind audit.EventType, appointmentID int64, phone string, details any) {
	if e.audit == nil {
		return
	}
	event := audit.Event{
		Type:          kind,
		AppointmentID: appointmentID,
		ContactLast4:  logging.Last4(phone),
		Details:       audit.Details(details),
	}
	if err := e.audit.Record(ctx, event); err != nil {
		e.logger.Warn("audit record failed", "event_type", kind, "error", err)
	}
}

func (e *Engine) today() time.Time {
	now := e.now().In(e.loc)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, e.loc)
}

// resolveSlot maps the recommended candidate back to its search hit by
// doctor id, preferring the matching specialty.
func resolveSlot(chosen recommend.Candidate, slots []availability.Slot) (availability.Slot, bool) {
	var fallback *availability.Slot
	for i := range slots {
		if slots[i].Doctor.ID != chosen.DoctorID {
			continue
		}
		if slots[i].Specialty.Name == chosen.Specialty && slots[i].Start.Equal(chosen.Slot) {
			return slots[i], true
		}
		if fallback == nil {
			fallback = &slots[i]
		}
	}
	if fallback == nil {
		return availability.Slot{}, false
	}
	return *fallback, true
}
