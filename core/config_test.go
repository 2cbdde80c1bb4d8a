package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultClientConfig_KeepsSuppliedClientID(t *testing.T) {
	cfg := DefaultClientConfig("device-42")
	assert.Equal(t, "device-42", cfg.ClientID)
}

func TestDefaultClientConfig_GeneratesClientIDWhenEmpty(t *testing.T) {
	a := DefaultClientConfig("")
	b := DefaultClientConfig("")
	assert.NotEmpty(t, a.ClientID)
	assert.NotEqual(t, a.ClientID, b.ClientID)
}

func TestDefaultClientConfig_Defaults(t *testing.T) {
	cfg := DefaultClientConfig("device-1")
	assert.Equal(t, uint16(30), cfg.KeepAlive)
	assert.True(t, cfg.CleanSession)
	assert.True(t, cfg.MetricsEnabled)
	assert.True(t, cfg.AutoResubscribe)
}
