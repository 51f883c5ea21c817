package bootstrap

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	appconfig "github.com/wolfman30/medibook/internal/config"
	"github.com/wolfman30/medibook/internal/messaging"
	"github.com/wolfman30/medibook/internal/notify"
	"github.com/wolfman30/medibook/pkg/logging"
)

// BuildMessageSender returns the Twilio WhatsApp sender when credentials are
// configured and a logging sender otherwise. The second value names the
// provider for startup logs.
func BuildMessageSender(cfg *appconfig.Config, logger *logging.Logger) (messaging.Sender, string) {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg != nil {
		sender := messaging.NewWhatsAppSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioWhatsAppNumber, logger)
		if sender.Configured() {
			return sender, "twilio"
		}
	}
	logger.Warn("twilio whatsapp not configured; outbound messages will only be logged")
	return messaging.NewLogSender(logger), "log"
}

// BuildEmailSender picks the front-desk email transport from EMAIL_PROVIDER.
// Unknown or unconfigured providers fall back to the stub, which logs.
func BuildEmailSender(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (notify.EmailSender, string) {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg == nil {
		return notify.NewStubEmailSender(logger), "stub"
	}

	switch strings.ToLower(strings.TrimSpace(cfg.EmailProvider)) {
	case "sendgrid":
		if sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.EmailFrom,
			FromName:  cfg.EmailFromName,
		}, logger); sender != nil {
			return sender, "sendgrid"
		}
		logger.Warn("EMAIL_PROVIDER=sendgrid but SENDGRID_API_KEY is empty")
	case "ses":
		awsCfg, err := loadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Warn("ses unavailable", "error", err)
			break
		}
		return notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.EmailFrom,
			FromName:  cfg.EmailFromName,
		}, logger), "ses"
	}
	return notify.NewStubEmailSender(logger), "stub"
}

// BuildNotifier wires the patient message channel and the front-desk email.
func BuildNotifier(ctx context.Context, cfg *appconfig.Config, sender messaging.Sender, logger *logging.Logger) *notify.Notifier {
	if logger == nil {
		logger = logging.Default()
	}
	frontDesk := ""
	if cfg != nil {
		frontDesk = cfg.FrontDeskEmail
	}
	email, provider := BuildEmailSender(ctx, cfg, logger)
	logger.Info("booking notifications configured", "email_provider", provider, "front_desk", frontDesk != "")
	return notify.NewNotifier(sender, email, frontDesk, logger)
}
