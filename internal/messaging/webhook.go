package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/medibook/internal/appointments"
	"github.com/wolfman30/medibook/pkg/logging"
)

// Appointments is the booking lifecycle the webhook drives.
type Appointments interface {
	ConfirmForContact(ctx context.Context, id int64, contact string) (appointments.Appointment, error)
	CancelForContact(ctx context.Context, id int64, contact string) error
}

// Sender delivers the webhook's reply to the requester.
type Sender interface {
	Send(ctx context.Context, to, body string) error
}

// Webhook statuses returned in the JSON body.
const (
	StatusConfirmed        = "confirmed"
	StatusCanceled         = "canceled"
	StatusInvalidCommand   = "invalid_command"
	StatusInvalidID        = "invalid_id"
	StatusNotFound         = "not_found"
	StatusAlreadyConfirmed = "already_confirmed"
	StatusConflict         = "conflict"
	StatusCannotCancel     = "cannot_cancel"
	StatusError            = "error"
)

var webhookReplies = map[string]string{
	StatusInvalidCommand:   "Sorry, I didn't understand. Reply 'confirm <id>' or 'cancel <id>'.",
	StatusInvalidID:        "That appointment number doesn't look right. Reply 'confirm <id>' or 'cancel <id>' using the number from your booking message.",
	StatusNotFound:         "We couldn't find that appointment for this number.",
	StatusAlreadyConfirmed: "That appointment is already confirmed.",
	StatusConflict:         "Sorry, that time slot has just been taken. Please book a new appointment.",
	StatusCannotCancel:     "That appointment is already confirmed and can't be canceled here. Please contact the clinic.",
	StatusError:            "Sorry, something went wrong. Please try again later.",
}

// WebhookHandler handles inbound WhatsApp replies to booking notices.
type WebhookHandler struct {
	appointments Appointments
	replies      Sender
	authToken    string
	webhookURL   string
	logger       *logging.Logger
}

// NewWebhookHandler builds the handler. Signatures are only checked when
// authToken is set.
func NewWebhookHandler(appts Appointments, replies Sender, authToken, webhookURL string, logger *logging.Logger) *WebhookHandler {
	if logger == nil {
		logger = logging.Default()
	}
	if appts == nil {
		panic("messaging: appointments cannot be nil")
	}
	return &WebhookHandler{
		appointments: appts,
		replies:      replies,
		authToken:    authToken,
		webhookURL:   webhookURL,
		logger:       logger.Component("whatsapp_webhook"),
	}
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := whatsAppTracer.Start(r.Context(), "messaging.whatsapp.webhook")
	defer span.End()

	if h.authToken != "" && !ValidateTwilioSignature(r, h.authToken, h.signatureURL(r)) {
		h.logger.Warn("rejected webhook with invalid signature", "remote", r.RemoteAddr)
		http.Error(w, "invalid signature", http.StatusForbidden)
		return
	}
	msg, err := ParseInboundMessage(r)
	if err != nil {
		http.Error(w, "invalid form body", http.StatusBadRequest)
		return
	}
	if msg.From == "" {
		http.Error(w, "missing From", http.StatusBadRequest)
		return
	}

	status, reply := h.handle(ctx, msg)
	span.SetAttributes(attribute.String("medibook.webhook_status", status))

	if h.replies != nil {
		if err := h.replies.Send(ctx, msg.From, reply); err != nil {
			h.logger.Warn("webhook reply not delivered", "status", status, "from_last4", logging.Last4(msg.From), "error", err)
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}

// handle parses "confirm <id>" or "cancel <id>" and applies it.
func (h *WebhookHandler) handle(ctx context.Context, msg InboundMessage) (string, string) {
	fields := strings.Fields(strings.ToLower(msg.Body))
	if len(fields) != 2 || (fields[0] != "confirm" && fields[0] != "cancel") {
		return StatusInvalidCommand, webhookReplies[StatusInvalidCommand]
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(fields[1], "#"), 10, 64)
	if err != nil || id <= 0 {
		return StatusInvalidID, webhookReplies[StatusInvalidID]
	}

	var status string
	if fields[0] == "confirm" {
		_, err = h.appointments.ConfirmForContact(ctx, id, msg.From)
		status = StatusConfirmed
	} else {
		err = h.appointments.CancelForContact(ctx, id, msg.From)
		status = StatusCanceled
	}
	if err != nil {
		status = statusFor(err)
		if status == StatusError {
			h.logger.Error("webhook command failed", "command", fields[0], "appointment_id", id, "error", err)
		} else {
			h.logger.Info("webhook command refused", "command", fields[0], "appointment_id", id, "status", status)
		}
		return status, webhookReplies[status]
	}

	h.logger.Info("webhook command applied", "command", fields[0], "appointment_id", id)
	return status, fmt.Sprintf("Your appointment #%d has been %s successfully.", id, status)
}

func statusFor(err error) string {
	switch {
	case errors.Is(err, appointments.ErrNotFound):
		return StatusNotFound
	case errors.Is(err, appointments.ErrAlreadyConfirmed):
		return StatusAlreadyConfirmed
	case errors.Is(err, appointments.ErrCannotCancelConfirmed):
		return StatusCannotCancel
	case appointments.IsConflict(err):
		return StatusConflict
	default:
		return StatusError
	}
}

// signatureURL is the configured public URL, or the URL the request
// arrived on when none is configured.
func (h *WebhookHandler) signatureURL(r *http.Request) string {
	if h.webhookURL != "" {
		return h.webhookURL
	}
	scheme := "http"
	if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
