package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidUUID(t *testing.T) {
	assert.True(t, IsValidUUID("0f0e9a1c-472e-4f2b-9d38-1c2a6f3e8b01"))
	assert.False(t, IsValidUUID("0F0E9A1C-472E-4F2B-9D38-1C2A6F3E8B01"))
	assert.False(t, IsValidUUID(""))
	assert.False(t, IsValidUUID("not-a-uuid"))
	assert.False(t, IsValidUUID("0f0e9a1c472e4f2b9d381c2a6f3e8b01"))
	assert.False(t, IsValidUUID("0f0e9a1c-472e-4f2b-9d38-1c2a6f3e8b01x"))
}

func TestIsValidPairingCode(t *testing.T) {
	assert.True(t, IsValidPairingCode("ABCD-2345"))
	assert.True(t, IsValidPairingCode("ZZZZ-9999"))
	assert.False(t, IsValidPairingCode("abcd-2345"))
	assert.False(t, IsValidPairingCode("ABCD2345"))
	assert.False(t, IsValidPairingCode("AB1D-2345"))
	assert.False(t, IsValidPairingCode("ABCD-23450"))
	assert.False(t, IsValidPairingCode(""))
}
