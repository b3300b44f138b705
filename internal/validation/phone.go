// Package validation contains input validation helpers.
package validation

import (
	"errors"
	"strings"
	"unicode"
)

// countryCode is the Kenyan calling code used for M-Pesa numbers.
const countryCode = "254"

// ErrInvalidPhoneNumber is returned when a phone number cannot be
// normalized to a valid Safaricom MSISDN.
var ErrInvalidPhoneNumber = errors.New("invalid mobile phone number")

// NormalizeMSISDN converts a user-entered phone number to full
// international form (2547XXXXXXXX / 2541XXXXXXXX) and validates it.
// Accepted inputs: 07XXXXXXXX, 7XXXXXXXX, 1XXXXXXXX, 2547XXXXXXXX and
// the common 25407XXXXXXXX typo. The function is idempotent.
func NormalizeMSISDN(phone string) (string, error) {
	p := stripNonDigits(phone)

	// 07... or 01... -> 2547... / 2541...
	if len(p) == 10 && p[0] == '0' {
		p = countryCode + p[1:]
	}

	// 7... or 1... -> prepend country code
	if len(p) == 9 && (p[0] == '7' || p[0] == '1') {
		p = countryCode + p
	}

	// 25407... -> drop the embedded zero
	if len(p) == 13 && strings.HasPrefix(p, countryCode+"0") {
		p = countryCode + p[4:]
	}

	if !IsValidMSISDN(p) {
		return "", ErrInvalidPhoneNumber
	}

	return p, nil
}

// IsValidMSISDN reports whether p is a fully normalized Safaricom
// number: country code, a valid network prefix digit and 8 more digits.
func IsValidMSISDN(p string) bool {
	if len(p) != 12 || !strings.HasPrefix(p, countryCode) {
		return false
	}
	if p[3] != '7' && p[3] != '1' {
		return false
	}
	for _, ch := range p {
		if !unicode.IsDigit(ch) {
			return false
		}
	}
	return true
}

func stripNonDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, ch := range s {
		if unicode.IsDigit(ch) {
			b.WriteRune(ch)
		}
	}
	return b.String()
}
