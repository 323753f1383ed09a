// Package address provides address normalization and fuzzy matching shared by
// the advisory duplicate check and the report-to-alert matcher.
package address

import "strings"

// streetTypeAbbrevs maps full street-type words to their common abbreviations.
// Longer words come first so partial overlaps ("boulevard" before "road")
// never produce a half-replaced token. Applied symmetrically to both sides of
// a comparison.
var streetTypeAbbrevs = [][2]string{
	{" boulevard", " blvd"},
	{" terrace", " ter"},
	{" avenue", " ave"},
	{" street", " st"},
	{" drive", " dr"},
	{" court", " ct"},
	{" place", " pl"},
	{" lane", " ln"},
	{" road", " rd"},
	{" circle", " cir"},
	{" highway", " hwy"},
	{" parkway", " pkwy"},
	{" square", " sq"},
}

// Normalize lowercases an address, strips periods and commas, and collapses
// full street-type words to their abbreviations, so "580 California Street,
// San Francisco, CA" and "580 California St" compare equal as substrings.
func Normalize(a string) string {
	a = strings.ToLower(strings.TrimSpace(a))
	a = strings.ReplaceAll(a, ".", "")
	a = strings.ReplaceAll(a, ",", "")
	for _, pair := range streetTypeAbbrevs {
		a = strings.ReplaceAll(a, pair[0], pair[1])
	}
	return a
}

// StreetSegment returns the leading street-level segment of an address: the
// text before the first comma, trimmed. "61 Chattanooga St, San Francisco,
// CA" yields "61 Chattanooga St".
func StreetSegment(a string) string {
	if i := strings.Index(a, ","); i >= 0 {
		a = a[:i]
	}
	return strings.TrimSpace(a)
}

// Match reports whether two addresses refer to the same place, using
// normalized substring containment with a street-number guard.
//
// The containment check handles suffix mismatches like "580 California St"
// vs "580 California St, San Francisco, CA 94104". When both addresses start
// with a house number, the numbers must agree before the street names are
// compared, so "580 California St" never matches "58 California St".
func Match(addr1, addr2 string) bool {
	n1 := Normalize(addr1)
	n2 := Normalize(addr2)

	if strings.Contains(n1, n2) || strings.Contains(n2, n1) {
		return true
	}

	parts1 := strings.Fields(n1)
	parts2 := strings.Fields(n2)
	if len(parts1) > 0 && len(parts2) > 0 && isDigits(parts1[0]) && isDigits(parts2[0]) {
		if parts1[0] != parts2[0] {
			return false
		}
		street1 := strings.Join(parts1[1:], " ")
		street2 := strings.Join(parts2[1:], " ")
		return strings.Contains(street1, street2) || strings.Contains(street2, street1)
	}

	return false
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
