package util

import (
	"regexp"
)

var uuidRegex = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

func IsValidUUID(s string) bool {
	if s == "" {
		return false
	}
	return uuidRegex.MatchString(s)
}

var pairingCodeRegex = regexp.MustCompile(`^[A-Z2-9]{4}-[A-Z2-9]{4}$`)

// IsValidPairingCode reports whether s looks like a relay pairing code
// (normalized form, XXXX-XXXX).
func IsValidPairingCode(s string) bool {
	return pairingCodeRegex.MatchString(s)
}
