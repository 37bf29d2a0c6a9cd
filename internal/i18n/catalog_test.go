package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog_HasEveryKeyInBothLanguages(t *testing.T) {
	c := Default()
	for _, key := range []string{InvalidPhoneNumber, RegistrationNotAvailable, ServiceUnavailable, InternalError, SMSBody} {
		for _, lang := range []string{LangPL, LangEN} {
			assert.NotEqual(t, key, c.Message(key, lang), "%s/%s", key, lang)
		}
	}
}

func TestMessage_Fallbacks(t *testing.T) {
	c, err := Parse([]byte("greeting:\n  en: hello\n"))
	require.NoError(t, err)

	assert.Equal(t, "hello", c.Message("greeting", "pl"))
	assert.Equal(t, "missing", c.Message("missing", "en"))
}

func TestRender(t *testing.T) {
	c := Default()
	assert.Equal(t, "Your registration code is: 123456", c.Render(SMSBody, LangEN, map[string]string{"code": "123456"}))
	assert.Contains(t, c.Render(SMSBody, LangPL, map[string]string{"code": "654321"}), "654321")
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported("pl"))
	assert.True(t, Supported("en"))
	assert.False(t, Supported("de"))
	assert.False(t, Supported(""))
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte("- not a map"))
	assert.Error(t, err)
}
