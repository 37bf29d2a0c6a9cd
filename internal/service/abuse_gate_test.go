package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"registration-service/internal/model"
)

func TestAbuseGate_LogsOffendingKey(t *testing.T) {
	cfg := testConfig()
	clk := newTestClock()
	store := newMemoryStore(clk)
	for i := 0; i < cfg.IPAttemptLimit; i++ {
		msisdn := "+4870000000" + string(rune('0'+i))
		store.seed(msisdn, testIP, "30000"+string(rune('0'+i)), model.StatusIncorrect, time.Duration(i+1)*time.Minute)
	}

	core, logs := observer.New(zapcore.WarnLevel)
	gate := NewAbuseGate(NewWindowCounter(store, clk, cfg.StoreTimeout), cfg, zap.New(core))

	err := gate.Admit(context.Background(), testIP, testMSISDN)
	require.ErrorIs(t, err, ErrTooManyInvalidAttempts)

	entries := logs.FilterMessage("Registration attempts exhausted").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "source_ip", fields["field"])
	assert.Equal(t, testIP, fields["source_ip"])
	assert.NotEqual(t, testMSISDN, fields["msisdn"])
}

func TestAbuseGate_MSISDNLimitOmitsSourceIP(t *testing.T) {
	cfg := testConfig()
	clk := newTestClock()
	store := newMemoryStore(clk)
	for i := 0; i < cfg.MSISDNAttemptLimit; i++ {
		store.seed(testMSISDN, "198.51.100.1", "40000"+string(rune('0'+i)), model.StatusPending, time.Duration(i+1)*time.Minute)
	}

	core, logs := observer.New(zapcore.WarnLevel)
	gate := NewAbuseGate(NewWindowCounter(store, clk, cfg.StoreTimeout), cfg, zap.New(core))

	err := gate.Admit(context.Background(), testIP, testMSISDN)
	require.ErrorIs(t, err, ErrTooManyInvalidAttempts)

	entries := logs.FilterMessage("Registration attempts exhausted").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "msisdn", fields["field"])
	assert.NotContains(t, fields, "source_ip")
}
