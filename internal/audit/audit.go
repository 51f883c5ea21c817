// Package audit keeps an append-only trail of booking lifecycle events.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EventType names a booking lifecycle transition.
type EventType string

const (
	EventBooked             EventType = "appointment.booked"
	EventConfirmed          EventType = "appointment.confirmed"
	EventConfirmConflict    EventType = "appointment.confirm_conflict"
	EventCanceled           EventType = "appointment.canceled"
	EventVisited            EventType = "appointment.visited"
	EventBookingConflict    EventType = "appointment.booking_conflict"
	EventRecommendationFail EventType = "recommendation.rejected"
)

// Event is an immutable audit record. Contact addresses are never stored in
// full, only their last four digits.
type Event struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"event_type"`
	AppointmentID int64           `json:"appointment_id,omitempty"`
	ContactLast4  string          `json:"contact_last4,omitempty"`
	Details       json.RawMessage `json:"details,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Filter narrows Query results.
type Filter struct {
	Type          EventType
	AppointmentID int64
	Since         time.Time
	Until         time.Time
	Limit         int
}

// Service writes audit events through database/sql.
type Service struct {
	db *sql.DB
}

// NewService returns nil when db is nil so callers can treat auditing as optional.
func NewService(db *sql.DB) *Service {
	if db == nil {
		return nil
	}
	return &Service{db: db}
}

// Record inserts an event. A nil service is a no-op.
func (s *Service) Record(ctx context.Context, event Event) error {
	if s == nil {
		return nil
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	if len(event.Details) == 0 {
		event.Details = json.RawMessage(`{}`)
	}

	query := `
		INSERT INTO booking_audit_events (
			id, event_type, appointment_id, contact_last4, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		string(event.Type),
		nullInt64(event.AppointmentID),
		nullString(event.ContactLast4),
		[]byte(event.Details),
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: record %s: %w", event.Type, err)
	}
	return nil
}

// Query lists events newest first.
func (s *Service) Query(ctx context.Context, filter Filter) ([]Event, error) {
	if s == nil {
		return nil, nil
	}

	var (
		where []string
		args  []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.Type != "" {
		add("event_type = $%d", string(filter.Type))
	}
	if filter.AppointmentID > 0 {
		add("appointment_id = $%d", filter.AppointmentID)
	}
	if !filter.Since.IsZero() {
		add("created_at >= $%d", filter.Since)
	}
	if !filter.Until.IsZero() {
		add("created_at < $%d", filter.Until)
	}

	query := `SELECT id, event_type, appointment_id, contact_last4, details, created_at FROM booking_audit_events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: query: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e       Event
			kind    string
			apptID  sql.NullInt64
			last4   sql.NullString
			details []byte
		)
		if err := rows.Scan(&e.ID, &kind, &apptID, &last4, &details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		e.Type = EventType(kind)
		e.AppointmentID = apptID.Int64
		e.ContactLast4 = last4.String
		e.Details = details
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: iterate: %w", err)
	}
	return events, nil
}

// Details marshals v for Event.Details, falling back to an empty object.
func Details(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return b
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullInt64(v int64) sql.NullInt64 {
	if v == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: v, Valid: true}
}
