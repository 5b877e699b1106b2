package crypto

import "strings"

const hexKeyLen = 64

// IsHexKey reports whether s is 64 hex characters, optionally preceded by "0x" or "0X".
func IsHexKey(s string) bool {
	s = trimHexPrefix(s)
	if len(s) != hexKeyLen {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// CanonicalKey returns the lowercase, 0x-prefixed form of a key accepted by IsHexKey.
func CanonicalKey(s string) string {
	return "0x" + strings.ToLower(trimHexPrefix(s))
}

func trimHexPrefix(s string) string {
	if len(s) == hexKeyLen+2 && (s[:2] == "0x" || s[:2] == "0X") {
		return s[2:]
	}
	return s
}
