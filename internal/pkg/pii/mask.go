// Package pii masks personal data at read and log boundaries. Stored data is
// never masked; callers apply these transforms per response or log line.
package pii

import "strings"

// MaskEmail reduces the local part of an address to a short visible prefix.
// "john.doe@example.com" → "jo***@example.com"
// Short local parts (≤2 chars) are fully masked: "ab@example.com" → "***@example.com"
func MaskEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return "***@***"
	}
	local, domain := []rune(email[:at]), email[at+1:]
	if len(local) > 2 {
		return string(local[:2]) + "***@" + domain
	}
	return "***@" + domain
}
