// Package recommend chooses a doctor for a requester's symptoms by delegating
// to a pluggable oracle and validating its answer against the candidate list.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/medibook/internal/observability/metrics"
	"github.com/wolfman30/medibook/pkg/logging"
)

var (
	// ErrRejected is returned when the oracle's answer cannot be parsed or
	// names a doctor outside the candidate list.
	ErrRejected = errors.New("recommend: oracle answer rejected")

	// ErrOracleUnavailable wraps transport and provider failures.
	ErrOracleUnavailable = errors.New("recommend: oracle unavailable")
)

// Delimiter separates the name, specialty and id fields of an answer.
const Delimiter = "*"

// Candidate is one bookable option offered to the oracle.
type Candidate struct {
	DoctorID   int64
	DoctorName string
	Specialty  string
	Slot       time.Time
}

// Answer is a parsed oracle response.
type Answer struct {
	Name      string
	Specialty string
	DoctorID  int64
}

// Prompt is what an Oracle receives. Text is the rendered instruction for
// text-based oracles; the structured fields serve rule-based ones.
type Prompt struct {
	Symptoms   string
	Candidates []Candidate
	Text       string
}

// Oracle maps a prompt to a raw "name * specialty * id" answer.
type Oracle interface {
	Recommend(ctx context.Context, prompt Prompt) (string, error)
}

// Adapter validates oracle answers. It never touches the store.
type Adapter struct {
	oracle  Oracle
	logger  *logging.Logger
	metrics *metrics.BookingMetrics
}

func NewAdapter(oracle Oracle, logger *logging.Logger, m *metrics.BookingMetrics) *Adapter {
	if oracle == nil {
		panic("recommend: oracle required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Adapter{oracle: oracle, logger: logger, metrics: m}
}

// SelectDoctor asks the oracle to pick one of candidates for symptoms.
func (a *Adapter) SelectDoctor(ctx context.Context, symptoms string, candidates []Candidate) (Candidate, error) {
	if len(candidates) == 0 {
		return Candidate{}, fmt.Errorf("%w: no candidates", ErrRejected)
	}

	raw, err := a.oracle.Recommend(ctx, BuildPrompt(symptoms, candidates))
	if err != nil {
		a.metrics.ObserveRecommendation("unavailable")
		return Candidate{}, fmt.Errorf("%w: %w", ErrOracleUnavailable, err)
	}

	answer, err := ParseAnswer(raw)
	if err != nil {
		a.metrics.ObserveRecommendation("unparseable")
		a.logger.Warn("oracle answer rejected", "raw", raw, "error", err)
		return Candidate{}, err
	}

	chosen, ok := Match(answer, candidates)
	if !ok {
		a.metrics.ObserveRecommendation("out_of_set")
		a.logger.Warn("oracle chose a doctor outside the candidate list", "doctor_id", answer.DoctorID)
		return Candidate{}, fmt.Errorf("%w: doctor %d is not a candidate", ErrRejected, answer.DoctorID)
	}
	a.metrics.ObserveRecommendation("accepted")
	return chosen, nil
}

// BuildPrompt renders the instruction sent to text oracles.
func BuildPrompt(symptoms string, candidates []Candidate) Prompt {
	listed := make([]string, 0, len(candidates))
	for _, c := range candidates {
		listed = append(listed, FormatAnswer(c))
	}
	text := fmt.Sprintf(
		"Based on the following symptoms: %s, choose the most appropriate doctor from this list of available doctors: %s. "+
			"Respond with only the doctor's name, specialty, and ID separated by '%s', e.g., 'Dr. John Smith %s Cardiology %s 1'.",
		strings.TrimSpace(symptoms), strings.Join(listed, ", "), Delimiter, Delimiter, Delimiter,
	)
	return Prompt{Symptoms: symptoms, Candidates: candidates, Text: text}
}

// FormatAnswer renders a candidate in answer form.
func FormatAnswer(c Candidate) string {
	return fmt.Sprintf("%s %s %s %s %d", c.DoctorName, Delimiter, c.Specialty, Delimiter, c.DoctorID)
}

// ParseAnswer splits raw into exactly three non-empty fields with an integer id.
func ParseAnswer(raw string) (Answer, error) {
	raw = strings.Trim(strings.TrimSpace(raw), "`\"'")
	parts := strings.Split(raw, Delimiter)
	if len(parts) != 3 {
		return Answer{}, fmt.Errorf("%w: expected 3 fields, got %d", ErrRejected, len(parts))
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
		if parts[i] == "" {
			return Answer{}, fmt.Errorf("%w: field %d is empty", ErrRejected, i+1)
		}
	}
	id, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return Answer{}, fmt.Errorf("%w: identifier %q is not numeric", ErrRejected, parts[2])
	}
	return Answer{Name: parts[0], Specialty: parts[1], DoctorID: id}, nil
}

// Match resolves an answer by doctor id. A doctor can appear once per
// specialty, so the answered specialty breaks ties before falling back to the
// first candidate with that id. Names are never used for matching.
func Match(answer Answer, candidates []Candidate) (Candidate, bool) {
	first := -1
	for i, c := range candidates {
		if c.DoctorID != answer.DoctorID {
			continue
		}
		if strings.EqualFold(c.Specialty, answer.Specialty) {
			return c, true
		}
		if first < 0 {
			first = i
		}
	}
	if first < 0 {
		return Candidate{}, false
	}
	return candidates[first], true
}
