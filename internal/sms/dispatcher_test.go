package sms

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"registration-service/internal/config"
	"registration-service/internal/i18n"
)

type sentMessage struct{ to, body string }

type fakeSender struct {
	sent []sentMessage
	err  error
}

func (f *fakeSender) Send(_ context.Context, to, body string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMessage{to: to, body: body})
	return nil
}

func TestDispatcher_SendsLocalizedCode(t *testing.T) {
	sender := &fakeSender{}
	d := NewDispatcher(sender, i18n.Default(), zap.NewNop())

	err := d.Handle(context.Background(), []byte(`{"registration_id":"abc","msisdn":"+48123456789","code":"042137","lang":"en"}`))
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "+48123456789", sender.sent[0].to)
	assert.Equal(t, "Your registration code is: 042137", sender.sent[0].body)
}

func TestDispatcher_UnknownLanguageFallsBack(t *testing.T) {
	sender := &fakeSender{}
	d := NewDispatcher(sender, nil, zap.NewNop())

	require.NoError(t, d.Handle(context.Background(), []byte(`{"msisdn":"+48123456789","code":"111111","lang":"de"}`)))
	assert.Equal(t, "Your registration code is: 111111", sender.sent[0].body)
}

func TestDispatcher_RejectsBadPayload(t *testing.T) {
	d := NewDispatcher(&fakeSender{}, nil, zap.NewNop())

	assert.ErrorIs(t, d.Handle(context.Background(), []byte(`not json`)), ErrInvalidPayload)
	assert.ErrorIs(t, d.Handle(context.Background(), []byte(`{"msisdn":"+48123456789"}`)), ErrInvalidPayload)
}

func TestDispatcher_PropagatesSenderError(t *testing.T) {
	sendErr := errors.New("twilio down")
	d := NewDispatcher(&fakeSender{err: sendErr}, nil, zap.NewNop())

	err := d.Handle(context.Background(), []byte(`{"msisdn":"+48123456789","code":"111111","lang":"pl"}`))
	assert.ErrorIs(t, err, sendErr)
}

func TestNewTwilioSender_RequiresCredentials(t *testing.T) {
	_, err := NewTwilioSender(config.TwilioConfig{AccountSID: "AC123"})
	assert.ErrorIs(t, err, ErrSenderNotConfigured)

	s, err := NewTwilioSender(config.TwilioConfig{AccountSID: "AC123", AuthToken: "token", FromNumber: "+15005550006"})
	require.NoError(t, err)
	assert.NotNil(t, s)
}
