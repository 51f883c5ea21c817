package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	appconfig "github.com/wolfman30/medibook/internal/config"
	"github.com/wolfman30/medibook/internal/recommend"
	"github.com/wolfman30/medibook/pkg/logging"
)

// Oracle provider names accepted in ORACLE_PROVIDER.
const (
	ProviderAuto    = "auto"
	ProviderGemini  = "gemini"
	ProviderBedrock = "bedrock"
	ProviderRules   = "rules"
)

// BuildOracle selects the recommendation oracle. "auto" prefers Gemini with
// Bedrock as fallback, using whichever are configured, and ends at the
// keyword rules when neither is. The returned cleanup closes provider clients.
func BuildOracle(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (recommend.Oracle, string, func(), error) {
	noop := func() {}
	if cfg == nil {
		return nil, "", noop, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	provider := strings.ToLower(strings.TrimSpace(cfg.OracleProvider))
	if provider == "" {
		provider = ProviderAuto
	}

	switch provider {
	case ProviderRules:
		return recommend.RuleOracle{}, ProviderRules, noop, nil
	case ProviderGemini:
		gemini, err := recommend.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			return nil, "", noop, fmt.Errorf("bootstrap: gemini oracle: %w", err)
		}
		closer := func() { _ = gemini.Close() }
		return recommend.NewLLMOracle(gemini, cfg.GeminiModelID, logger), ProviderGemini, closer, nil
	case ProviderBedrock:
		bedrock, err := buildBedrockClient(ctx, cfg)
		if err != nil {
			return nil, "", noop, err
		}
		return recommend.NewLLMOracle(bedrock, cfg.BedrockModelID, logger), ProviderBedrock, noop, nil
	case ProviderAuto:
	default:
		return nil, "", noop, fmt.Errorf("bootstrap: unknown oracle provider %q", provider)
	}

	var primary, fallback recommend.LLMClient
	closer := noop
	if strings.TrimSpace(cfg.GeminiAPIKey) != "" {
		gemini, err := recommend.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			logger.Warn("gemini unavailable", "error", err)
		} else {
			primary = gemini
			closer = func() { _ = gemini.Close() }
		}
	}
	if strings.TrimSpace(cfg.BedrockModelID) != "" {
		bedrock, err := buildBedrockClient(ctx, cfg)
		if err != nil {
			logger.Warn("bedrock unavailable", "error", err)
		} else if primary == nil {
			primary = bedrock
		} else {
			fallback = bedrock
		}
	}
	if primary == nil {
		logger.Warn("no LLM configured; using keyword recommendation rules")
		return recommend.RuleOracle{}, ProviderRules, closer, nil
	}

	// Model ids are left empty so each client uses its own default.
	client := recommend.NewFallbackClient(primary, fallback, logger)
	logger.Info("llm recommendation oracle enabled", "fallback", fallback != nil)
	return recommend.NewLLMOracle(client, "", logger), ProviderAuto, closer, nil
}

func buildBedrockClient(ctx context.Context, cfg *appconfig.Config) (*recommend.BedrockClient, error) {
	if strings.TrimSpace(cfg.BedrockModelID) == "" {
		return nil, fmt.Errorf("bootstrap: BEDROCK_MODEL_ID is required")
	}
	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return recommend.NewBedrockClient(bedrockruntime.NewFromConfig(awsCfg), cfg.BedrockModelID), nil
}

// loadAWSConfig uses static keys when both are set and the default
// credential chain otherwise.
func loadAWSConfig(ctx context.Context, cfg *appconfig.Config) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.AWSRegion)}
	if cfg.AWSAccessKeyID != "" && cfg.AWSSecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("bootstrap: load aws config: %w", err)
	}
	return awsCfg, nil
}
