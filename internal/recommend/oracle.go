package recommend

import (
	"context"
	"strings"

	"github.com/wolfman30/medibook/pkg/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var oracleTracer = otel.Tracer("medibook.internal.recommend.oracle")

const systemPrompt = "You are a medical triage assistant for a clinic's booking desk. " +
	"You only choose among the doctors you are given and you answer in the exact format requested, with no extra words."

// LLMOracle asks a language model to choose a doctor.
type LLMOracle struct {
	client LLMClient
	model  string
	logger *logging.Logger
}

func NewLLMOracle(client LLMClient, model string, logger *logging.Logger) *LLMOracle {
	if client == nil {
		panic("recommend: llm client required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &LLMOracle{client: client, model: model, logger: logger}
}

func (o *LLMOracle) Recommend(ctx context.Context, prompt Prompt) (string, error) {
	ctx, span := oracleTracer.Start(ctx, "recommend.llm")
	defer span.End()
	span.SetAttributes(attribute.Int("medibook.candidates", len(prompt.Candidates)))

	resp, err := o.client.Complete(ctx, LLMRequest{
		Model:     o.model,
		System:    []string{systemPrompt},
		Messages:  []ChatMessage{{Role: ChatRoleUser, Content: prompt.Text}},
		MaxTokens: 64,
	})
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	o.logger.Debug("oracle answered", "stop_reason", resp.StopReason, "output_tokens", resp.Usage.OutputTokens)
	return resp.Text, nil
}

// specialtyKeywords drives RuleOracle. Keys are lower-case specialty names.
var specialtyKeywords = map[string][]string{
	"cardiology":       {"chest pain", "heart", "palpitation", "blood pressure", "breathless", "shortness of breath"},
	"dermatology":      {"skin", "rash", "acne", "itch", "eczema", "mole", "hair loss"},
	"neurology":        {"headache", "migraine", "seizure", "numb", "dizz", "tingling", "memory"},
	"orthopedics":      {"bone", "joint", "knee", "back pain", "fracture", "sprain", "shoulder"},
	"pediatrics":       {"child", "baby", "infant", "toddler", "my son", "my daughter"},
	"ent":              {"ear", "throat", "nose", "sinus", "tonsil", "hearing"},
	"gastroenterology": {"stomach", "abdominal", "nausea", "vomit", "diarrhea", "constipation", "acidity"},
	"ophthalmology":    {"eye", "vision", "blurry", "red eye"},
	"general medicine": {"fever", "cold", "cough", "fatigue", "body ache", "flu"},
}

// RuleOracle is a deterministic keyword matcher. It scores each candidate's
// specialty against the symptom text and answers with the best one, falling
// back to a general practitioner and then to the first candidate.
type RuleOracle struct{}

func (RuleOracle) Recommend(_ context.Context, prompt Prompt) (string, error) {
	if len(prompt.Candidates) == 0 {
		return "", nil
	}
	text := strings.ToLower(prompt.Symptoms)

	best, bestScore := -1, 0
	fallback := 0
	for i, c := range prompt.Candidates {
		name := strings.ToLower(c.Specialty)
		if strings.Contains(name, "general") && fallback == 0 {
			fallback = i
		}
		score := 0
		for _, kw := range specialtyKeywords[name] {
			if strings.Contains(text, kw) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		best = fallback
	}
	return FormatAnswer(prompt.Candidates[best]), nil
}
