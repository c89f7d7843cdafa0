package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCapability(t *testing.T) {
	for _, c := range AllCapabilities {
		got, ok := ParseCapability(c.String())
		assert.True(t, ok, c.String())
		assert.Equal(t, c, got)
	}

	got, ok := ParseCapability(" Native_Balance ")
	assert.True(t, ok)
	assert.Equal(t, CapabilityNativeBalance, got)

	_, ok = ParseCapability("balances")
	assert.False(t, ok)
	assert.Equal(t, "unknown", Capability(99).String())
}
