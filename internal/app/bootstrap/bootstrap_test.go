package bootstrap

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/medibook/internal/appointments"
	appconfig "github.com/wolfman30/medibook/internal/config"
	"github.com/wolfman30/medibook/internal/messaging"
	"github.com/wolfman30/medibook/internal/notify"
	"github.com/wolfman30/medibook/internal/recommend"
	"github.com/wolfman30/medibook/pkg/logging"
)

func quietLogger() *logging.Logger {
	return logging.New("error")
}

func TestBuildRedisClient(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, BuildRedisClient(ctx, nil, nil, true))
	assert.Nil(t, BuildRedisClient(ctx, &appconfig.Config{}, nil, true))

	mr := miniredis.RunT(t)
	client := BuildRedisClient(ctx, &appconfig.Config{RedisAddr: mr.Addr()}, quietLogger(), true)
	require.NotNil(t, client)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx).Err())

	addr := mr.Addr()
	mr.Close()
	assert.Nil(t, BuildRedisClient(ctx, &appconfig.Config{RedisAddr: addr}, quietLogger(), true))
}

func TestBuildStoreFallsBackToMemory(t *testing.T) {
	_, err := BuildStore(context.Background(), nil, nil)
	require.Error(t, err)

	store, err := BuildStore(context.Background(), &appconfig.Config{ClinicTimezone: "UTC"}, quietLogger())
	require.NoError(t, err)
	defer store.Close()

	_, ok := store.Appointments.(*appointments.MemoryStore)
	assert.True(t, ok, "expected memory store, got %T", store.Appointments)
	assert.Nil(t, store.AuditDB)
}

func TestBuildOracle(t *testing.T) {
	ctx := context.Background()
	logger := quietLogger()

	_, _, _, err := BuildOracle(ctx, nil, logger)
	require.Error(t, err)

	oracle, provider, cleanup, err := BuildOracle(ctx, &appconfig.Config{OracleProvider: "rules"}, logger)
	require.NoError(t, err)
	defer cleanup()
	assert.Equal(t, ProviderRules, provider)
	assert.IsType(t, recommend.RuleOracle{}, oracle)

	oracle, provider, cleanup, err = BuildOracle(ctx, &appconfig.Config{}, logger)
	require.NoError(t, err)
	defer cleanup()
	assert.Equal(t, ProviderRules, provider, "auto without credentials")
	assert.IsType(t, recommend.RuleOracle{}, oracle)

	_, _, _, err = BuildOracle(ctx, &appconfig.Config{OracleProvider: "gemini"}, logger)
	assert.Error(t, err, "gemini without api key")

	_, _, _, err = BuildOracle(ctx, &appconfig.Config{OracleProvider: "bedrock"}, logger)
	assert.Error(t, err, "bedrock without model id")

	_, _, _, err = BuildOracle(ctx, &appconfig.Config{OracleProvider: "crystal-ball"}, logger)
	assert.ErrorContains(t, err, "crystal-ball")
}

func TestBuildMessageSender(t *testing.T) {
	sender, provider := BuildMessageSender(&appconfig.Config{}, quietLogger())
	assert.Equal(t, "log", provider)
	assert.IsType(t, &messaging.LogSender{}, sender)

	sender, provider = BuildMessageSender(&appconfig.Config{
		TwilioAccountSID:     "AC123",
		TwilioAuthToken:      "token",
		TwilioWhatsAppNumber: "+14155238886",
	}, quietLogger())
	assert.Equal(t, "twilio", provider)
	assert.IsType(t, &messaging.WhatsAppSender{}, sender)
}

func TestBuildEmailSender(t *testing.T) {
	ctx := context.Background()

	sender, provider := BuildEmailSender(ctx, &appconfig.Config{EmailProvider: "none"}, quietLogger())
	assert.Equal(t, "stub", provider)
	assert.IsType(t, &notify.StubEmailSender{}, sender)

	sender, provider = BuildEmailSender(ctx, &appconfig.Config{EmailProvider: "sendgrid"}, quietLogger())
	assert.Equal(t, "stub", provider, "sendgrid without key")
	assert.IsType(t, &notify.StubEmailSender{}, sender)

	sender, provider = BuildEmailSender(ctx, &appconfig.Config{
		EmailProvider:  "sendgrid",
		SendGridAPIKey: "SG.key",
		EmailFrom:      "desk@clinic.test",
	}, quietLogger())
	assert.Equal(t, "sendgrid", provider)
	assert.IsType(t, &notify.SendGridSender{}, sender)
}

func TestBuildNotifier(t *testing.T) {
	sender, _ := BuildMessageSender(nil, quietLogger())
	n := BuildNotifier(context.Background(), &appconfig.Config{FrontDeskEmail: "desk@clinic.test"}, sender, quietLogger())
	require.NotNil(t, n)
}
