package conversation

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/wolfman30/medibook/internal/appointments"
	"github.com/wolfman30/medibook/internal/availability"
	"github.com/wolfman30/medibook/internal/notify"
	"github.com/wolfman30/medibook/internal/observability/metrics"
	"github.com/wolfman30/medibook/internal/recommend"
	"github.com/wolfman30/medibook/pkg/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var engineTracer = otel.Tracer("medibook.internal.conversation.engine")

// SlotFinder produces one candidate slot per specialty for a date range.
type SlotFinder interface {
	CandidatesForRange(ctx context.Context, startDate, endDate time.Time) ([]availability.Slot, error)
}

// Recommender picks one candidate for the requester's symptoms.
type Recommender interface {
	SelectDoctor(ctx context.Context, symptoms string, candidates []recommend.Candidate) (recommend.Candidate, error)
}

// Notifier tells the requester about a new tentative booking.
type Notifier interface {
	NotifyBooked(ctx context.Context, notice notify.BookingNotice) error
}

// Deps are the collaborators an Engine needs. Audit and Metrics may be nil.
type Deps struct {
	Store       appointments.Store
	Slots       SlotFinder
	Recommender Recommender
	Notifier    Notifier
	Audit       appointments.AuditRecorder
	Metrics     *metrics.BookingMetrics
}

// Engine runs turns. It holds no per-session state, so one Engine serves
// every connection.
type Engine struct {
	store       appointments.Store
	slots       SlotFinder
	recommender Recommender
	notifier    Notifier
	audit       appointments.AuditRecorder
	metrics     *metrics.BookingMetrics
	logger      *logging.Logger

	countryCode string
	loc         *time.Location
	now         func() time.Time
}

type Option func(*Engine)

// WithLocation sets the clinic time zone used for dates and replies.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// WithCountryCode sets the prefix added to phone numbers without one.
func WithCountryCode(cc string) Option {
	return func(e *Engine) {
		if cc = strings.TrimSpace(cc); cc != "" {
			e.countryCode = cc
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func NewEngine(deps Deps, logger *logging.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = logging.Default()
	}
	e := &Engine{
		store:       deps.Store,
		slots:       deps.Slots,
		recommender: deps.Recommender,
		notifier:    deps.Notifier,
		audit:       deps.Audit,
		metrics:     deps.Metrics,
		logger:      logger.Component("conversation"),
		countryCode: "+91",
		loc:         time.UTC,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Step applies one input to s and returns the next session and the reply.
// A failed turn returns s unchanged with an explanatory reply; panics are
// recovered and reported the same way.
func (e *Engine) Step(ctx context.Context, s Session, input string) (next Session, reply string) {
	ctx, span := engineTracer.Start(ctx, "conversation.step")
	defer span.End()
	span.SetAttributes(
		attribute.String("medibook.session_id", s.ID),
		attribute.String("medibook.state", string(s.State)),
	)
	e.metrics.ObserveTurn(string(s.State))

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("conversation turn panicked",
				"session_id", s.ID,
				"state", s.State,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
			span.RecordError(fmt.Errorf("panic: %v", r))
			next, reply = s, msgApology
		}
	}()

	next, reply, err := e.step(ctx, s, input)
	if err != nil {
		span.RecordError(err)
		return s, e.fail(s, err)
	}
	return next, reply
}

func (e *Engine) step(ctx context.Context, s Session, input string) (Session, string, error) {
	switch s.State {
	case StateAwaitingName:
		name, err := ValidateName(input)
		if err != nil {
			return s, "", newError(KindValidation, msgInvalidName, err)
		}
		s.Name = name
		s.State = StateAwaitingPhone
		return s, askPhone(name), nil

	case StateAwaitingPhone:
		phone, err := NormalizePhone(input, e.countryCode)
		if err != nil {
			return s, "", newError(KindValidation, msgInvalidPhone, err)
		}
		s.Phone = phone
		s.State = StateAwaitingAddress
		return s, askAddress(), nil

	case StateAwaitingAddress:
		address, err := ValidateAddress(input)
		if err != nil {
			return s, "", newError(KindValidation, msgInvalidAddress, err)
		}
		s.Address = address
		s.State = StateAwaitingDateRange
		return s, askDateRange(), nil

	case StateAwaitingDateRange:
		start, end, err := ParseDateRange(input, e.now(), e.loc)
		if errors.Is(err, ErrInvertedRange) {
			return s, "", newError(KindValidation, msgInvertedRange, err)
		}
		if err != nil {
			return s, "", newError(KindValidation, msgInvalidDate, err)
		}
		s.StartDate, s.EndDate = start, end
		s.State = StateAwaitingSymptoms
		return s, askSymptoms(), nil

	case StateAwaitingSymptoms:
		symptoms := strings.TrimSpace(input)
		if symptoms == "" {
			return s, "", newError(KindValidation, msgEmptySymptoms, ErrEmptySymptoms)
		}
		return e.book(ctx, s, symptoms)

	case StateDone:
		return s, msgAlreadyComplete, nil

	default:
		return s, "", newError(KindUnexpected, "", fmt.Errorf("unknown state %q", s.State))
	}
}

// fail logs err at a level matching its kind and returns the reply.
func (e *Engine) fail(s Session, err error) string {
	convErr := AsError(err)
	attrs := []any{"session_id", s.ID, "state", s.State, "kind", convErr.Kind, "error", err}
	switch convErr.Kind {
	case KindValidation:
		e.logger.Info("turn input rejected", attrs...)
	case KindNotFound, KindConflict, KindAdapter:
		e.logger.Warn("turn did not complete", attrs...)
	default:
		e.logger.Error("turn failed", attrs...)
	}
	return convErr.Reply()
}
