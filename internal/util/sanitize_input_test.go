package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeInput(t *testing.T) {
	assert.Equal(t, "&lt;b&gt;+48&lt;/b&gt;", SanitizeInput("  <b>+48</b> "))
}

func TestContainsSuspicious(t *testing.T) {
	assert.True(t, ContainsSuspicious("<SCRIPT>"))
	assert.True(t, ContainsSuspicious("${jndi}"))
	assert.False(t, ContainsSuspicious("+48 123 456 789"))
}

func TestMaskMSISDN(t *testing.T) {
	assert.Equal(t, "+48******789", MaskMSISDN("+48123456789"))
	assert.Equal(t, "****", MaskMSISDN("1234"))
}
