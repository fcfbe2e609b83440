package vocabulary

import (
	"strconv"
	"strings"
)

// DateRange is an inclusive [Earliest, Latest] year range, negative for BCE.
type DateRange struct {
	Earliest int
	Latest   int
}

// ParseDateWildcard implements the creation-date wildcard grammar:
//
//	"1642" -> [1642, 1642]
//	"164*" -> [1640, 1649]
//	"16*"  -> [1600, 1699]
//	"-5*"  -> [-5999, -5000]
//
// ok is false for a malformed wildcard; callers must emit a warning and
// ignore the filter rather than treat it as an error.
func ParseDateWildcard(s string) (DateRange, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DateRange{}, false
	}

	negative := strings.HasPrefix(s, "-")
	digits := s
	if negative {
		digits = s[1:]
	}

	star := strings.Count(digits, "*")
	if star > 1 || (star == 1 && !strings.HasSuffix(digits, "*")) {
		return DateRange{}, false
	}

	if star == 0 {
		n, err := strconv.Atoi(digits)
		if err != nil {
			return DateRange{}, false
		}
		if negative {
			n = -n
		}
		return DateRange{Earliest: n, Latest: n}, true
	}

	prefix := strings.TrimSuffix(digits, "*")
	if prefix == "" || !allDigits(prefix) {
		return DateRange{}, false
	}
	width := 4 - len(prefix)
	if width <= 0 {
		return DateRange{}, false
	}

	base, err := strconv.Atoi(prefix)
	if err != nil {
		return DateRange{}, false
	}
	span := pow10(width)
	low := base * span
	high := low + span - 1

	if negative {
		// "-5*" -> base=5, width=3, span=1000 -> [5000,5999] unsigned,
		// then negate and swap so Earliest <= Latest: [-5999, -5000].
		return DateRange{Earliest: -high, Latest: -low}, true
	}
	return DateRange{Earliest: low, Latest: high}, true
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

func pow10(n int) int {
	p := 1
	for i := 0; i < n; i++ {
		p *= 10
	}
	return p
}

// Overlaps reports whether an artwork's [dateEarliest, dateLatest] range
// overlaps the query range: dateEarliest <= query.Latest AND dateLatest >=
// query.Earliest.
func (r DateRange) Overlaps(dateEarliest, dateLatest int) bool {
	return dateEarliest <= r.Latest && dateLatest >= r.Earliest
}
