// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package apiclient

import (
	"net/url"
	"strings"
)

// Digits strips every character that is not an ASCII decimal digit.
func Digits(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}

// NormalizePhone converts a US phone number to E.164 (+1XXXXXXXXXX).
//
// 10 digits get a +1 prefix, 11 digits starting with 1 get a + prefix,
// anything already starting with + passes through unchanged, and everything
// else falls back to +1 followed by the stripped digits.
func NormalizePhone(phone string) string {
	digits := Digits(phone)

	switch {
	case len(digits) == 10:
		return "+1" + digits
	case len(digits) == 11 && digits[0] == '1':
		return "+" + digits
	case strings.HasPrefix(phone, "+"):
		return phone
	default:
		return "+1" + digits
	}
}

// escapeSegment escapes s for use as a single path segment, encoding '+' and
// spaces the way browsers' encodeURIComponent does.
func escapeSegment(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
