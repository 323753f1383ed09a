// Package phone provides phone number canonicalization for transmission to
// the verification and alerting backends.
package phone

import "strings"

// Normalize rewrites a phone number to canonical +<countrycode><digits> form:
//
//   - a value already beginning with "+" keeps the prefix and has all other
//     non-digit characters stripped (provided enough digits remain to be a
//     plausible number)
//   - a 10-digit value is assumed US and prefixed "+1"
//   - an 11-digit value beginning with "1" is prefixed "+"
//
// Anything else is returned trimmed but otherwise unchanged; the server
// performs final validation.
func Normalize(raw string) string {
	stripped := strings.TrimSpace(raw)
	digits := digitsOf(stripped)

	if strings.HasPrefix(stripped, "+") && len(digits) >= 7 {
		return "+" + digits
	}
	if len(digits) == 10 {
		return "+1" + digits
	}
	if len(digits) == 11 && strings.HasPrefix(digits, "1") {
		return "+" + digits
	}
	return stripped
}

// DigitsOnly strips every non-digit rune and caps the result at max runes.
// Used for verification code entry, which accepts digits only.
func DigitsOnly(s string, max int) string {
	digits := digitsOf(s)
	if max > 0 && len(digits) > max {
		return digits[:max]
	}
	return digits
}

func digitsOf(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
