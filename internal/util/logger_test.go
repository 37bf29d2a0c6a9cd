package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLogLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, parseLogLevel("warning"))
	assert.Equal(t, zapcore.ErrorLevel, parseLogLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLogLevel("verbose"))
}

func TestRegistrationFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	zap.New(core).Named("registration").Info("Registration accepted",
		RegistrationID("0123456789abcdef0123456789abcdef"),
		SourceIP("203.0.113.7"),
		MSISDN("+48123456789"))

	entries := logs.All()
	assert.Len(t, entries, 1)
	assert.Equal(t, "registration", entries[0].LoggerName)
	assert.Equal(t, map[string]interface{}{
		"registration_id": "0123456789abcdef0123456789abcdef",
		"source_ip":       "203.0.113.7",
		"msisdn":          "+48******789",
	}, entries[0].ContextMap())
}

func TestComponent(t *testing.T) {
	assert.NotNil(t, Component("sms"))
}
