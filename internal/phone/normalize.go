// Package phone canonicalizes heterogeneous phone-number strings into the
// single digit-string representation used for all comparisons and sends.
package phone

import (
	"regexp"
	"strings"
)

var nonDigits = regexp.MustCompile(`\D`)

// MinPlausibleDigits is the minimum length a canonical number can have and
// still be considered sendable.
const MinPlausibleDigits = 10

// Normalize converts raw into canonical international form: digits only,
// prefixed with countryCode when the number looks national. Idempotent:
// Normalize(Normalize(x)) == Normalize(x).
func Normalize(raw, countryCode string) string {
	digits := nonDigits.ReplaceAllString(raw, "")
	if digits == "" {
		return ""
	}

	// Already international: it begins with the country prefix followed by
	// at least a minimal national number.
	if strings.HasPrefix(digits, countryCode) && len(digits) >= len(countryCode)+8 {
		return digits
	}

	// National formats run 8 (old landline, no area code) through 11
	// (mobile with area code) digits.
	if len(digits) >= 8 && len(digits) <= 11 {
		return countryCode + digits
	}

	return digits
}

// Plausible reports whether a canonical number is long enough to send to.
func Plausible(canonical string) bool {
	return len(canonical) >= MinPlausibleDigits && nonDigits.FindStringIndex(canonical) == nil
}
