package schema

import (
	"strconv"
	"strings"
)

// Catalog columns are fixed-width slices and routinely carry trailing
// annotation characters ("12.5:", "4.06v"). The parsers here take the
// longest leading run that forms a number, like the C standard
// library's strtod/strtol, instead of demanding that the whole token
// parse.

// parseFloatPrefix parses the longest numeric prefix of s as a
// float64. Surrounding whitespace is ignored. ok is false when no
// digits lead s.
func parseFloatPrefix(s string) (v float64, ok bool) {
	s = strings.TrimSpace(s)

	end := floatPrefixLen(s)
	if end == 0 {
		return 0, false
	}

	v, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return 0, false
	}

	return v, true
}

// floatPrefixLen returns the length of the longest prefix of s that
// forms a decimal floating-point literal, or 0 if there is none.
func floatPrefixLen(s string) int {
	i := 0
	n := len(s)

	if i < n && (s[i] == '+' || s[i] == '-') {
		i++
	}

	digits := 0
	for i < n && s[i] >= '0' && s[i] <= '9' {
		i++
		digits++
	}

	if i < n && s[i] == '.' {
		i++
		for i < n && s[i] >= '0' && s[i] <= '9' {
			i++
			digits++
		}
	}

	if digits == 0 {
		return 0
	}

	// Exponent counts only if at least one digit follows it.
	if i < n && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < n && (s[j] == '+' || s[j] == '-') {
			j++
		}

		expDigits := 0
		for j < n && s[j] >= '0' && s[j] <= '9' {
			j++
			expDigits++
		}

		if expDigits > 0 {
			i = j
		}
	}

	return i
}

// parseIntPrefix parses the longest decimal integer prefix of s.
// Surrounding whitespace is ignored. ok is false when no digits lead s
// or the value overflows an int64.
func parseIntPrefix(s string) (v int64, ok bool) {
	s = strings.TrimSpace(s)

	i := 0
	n := len(s)

	if i < n && (s[i] == '+' || s[i] == '-') {
		i++
	}

	start := i
	for i < n && s[i] >= '0' && s[i] <= '9' {
		i++
	}

	if i == start {
		return 0, false
	}

	v, err := strconv.ParseInt(s[:i], 10, 64)
	if err != nil {
		return 0, false
	}

	return v, true
}
