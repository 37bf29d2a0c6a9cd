package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func clearStage(t *testing.T) {
	t.Helper()
	t.Setenv("STAGE", "")
	t.Setenv("ENVIRONMENT", "")
	t.Setenv("DEV_CODE_DISCLOSURE", "")
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearStage(t)

	cfg := LoadConfig()
	assert.Equal(t, EnvProduction, cfg.Environment)
	assert.False(t, cfg.Registration.CodeDisclosure)

	reg := cfg.Registration
	assert.Equal(t, 4, reg.MSISDNAttemptLimit)
	assert.Equal(t, 10, reg.IPAttemptLimit)
	assert.True(t, reg.IPLimitEnabled)
	assert.Equal(t, time.Hour, reg.AbuseLookback)
	assert.Equal(t, 10*time.Minute, reg.CodeReuseWindow)
	assert.Equal(t, 1, reg.SMSLimitPerMinute)
	assert.Equal(t, 2, reg.SMSLimitPerHour)
	assert.Equal(t, 5, reg.SMSLimitPerDay)
	assert.Equal(t, "send-register-sms", reg.SMSTopic)
	assert.Same(t, cfg, Get())
}

func TestLoadConfig_ProductionNeverDisclosesCodes(t *testing.T) {
	for _, stage := range []string{"PRODUCTION", "production", "prod"} {
		t.Run(stage, func(t *testing.T) {
			clearStage(t)
			t.Setenv("STAGE", stage)
			t.Setenv("DEV_CODE_DISCLOSURE", "true")

			cfg := LoadConfig()
			assert.True(t, cfg.IsProduction())
			assert.False(t, cfg.Registration.CodeDisclosure)
		})
	}
}

func TestLoadConfig_UnknownStageFailsClosed(t *testing.T) {
	for _, stage := range []string{"", "live", "PRD", "prod-eu", "  "} {
		t.Run(stage, func(t *testing.T) {
			clearStage(t)
			t.Setenv("STAGE", stage)
			t.Setenv("DEV_CODE_DISCLOSURE", "true")

			cfg := LoadConfig()
			assert.True(t, cfg.IsProduction())
			assert.False(t, cfg.Registration.CodeDisclosure)
		})
	}
}

func TestLoadConfig_DevelopmentDisclosureIsOptIn(t *testing.T) {
	clearStage(t)
	t.Setenv("STAGE", "DEVELOPMENT")

	cfg := LoadConfig()
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.Registration.CodeDisclosure)

	t.Setenv("DEV_CODE_DISCLOSURE", "true")
	cfg = LoadConfig()
	assert.True(t, cfg.Registration.CodeDisclosure)
}

func TestLoadConfig_StagingDoesNotDisclose(t *testing.T) {
	clearStage(t)
	t.Setenv("ENVIRONMENT", "staging")

	cfg := LoadConfig()
	assert.Equal(t, EnvStaging, cfg.Environment)
	assert.False(t, cfg.Registration.CodeDisclosure)
}

func TestEnforceInvariants(t *testing.T) {
	cfg := &Config{Environment: EnvProduction, Registration: DefaultRegistrationConfig()}
	cfg.Registration.CodeDisclosure = true
	cfg.EnforceInvariants()
	assert.False(t, cfg.Registration.CodeDisclosure)
}

func TestLoadConfig_Overrides(t *testing.T) {
	clearStage(t)
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("REGISTRATION_IP_LIMIT_ENABLED", "false")
	t.Setenv("STORE_TIMEOUT", "750ms")
	t.Setenv("PORT", "not-a-number")

	cfg := LoadConfig()
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.False(t, cfg.Registration.IPLimitEnabled)
	assert.Equal(t, 750*time.Millisecond, cfg.Registration.StoreTimeout)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, ":8080", cfg.GetServerAddress())
}
