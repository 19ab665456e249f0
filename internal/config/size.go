package config

import (
	"fmt"
	"strconv"
	"strings"
)

// sizeUnits maps lowercased unit suffixes to their multiplier. SI units are
// decimal, IEC units binary.
var sizeUnits = map[string]int64{
	"b":   1,
	"kb":  1000,
	"mb":  1000 * 1000,
	"gb":  1000 * 1000 * 1000,
	"tb":  1000 * 1000 * 1000 * 1000,
	"kib": 1 << 10,
	"mib": 1 << 20,
	"gib": 1 << 30,
	"tib": 1 << 40,
}

// ParseSize converts a size such as "25MB", "2.5GiB" or "1024" to bytes.
// A number without a unit is a byte count. Empty and "0" mean zero, which
// callers treat as unlimited.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return 0, nil
	}

	num, unit := splitUnit(s)

	if unit == "" {
		n, err := strconv.ParseInt(num, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid size %q: %w", s, err)
		}

		if n < 0 {
			return 0, fmt.Errorf("invalid size %q: must be non-negative", s)
		}

		return n, nil
	}

	multiplier, ok := sizeUnits[strings.ToLower(unit)]
	if !ok {
		return 0, fmt.Errorf("invalid size %q: unknown unit %q", s, unit)
	}

	f, err := strconv.ParseFloat(strings.TrimSpace(num), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}

	if f < 0 {
		return 0, fmt.Errorf("invalid size %q: must be non-negative", s)
	}

	return int64(f * float64(multiplier)), nil
}

// splitUnit splits s at the first letter into a numeric part and a unit.
func splitUnit(s string) (num, unit string) {
	i := strings.IndexFunc(s, func(r rune) bool {
		return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
	})
	if i < 0 {
		return s, ""
	}

	return s[:i], s[i:]
}

// ParseRate parses a transfer rate such as "5MB/s", "100KB/s" or "0" into
// bytes per second. The "/s" suffix is optional. Zero means unlimited.
func ParseRate(s string) (int64, error) {
	trimmed := strings.TrimSpace(s)
	if len(trimmed) >= 2 && strings.EqualFold(trimmed[len(trimmed)-2:], "/s") {
		trimmed = trimmed[:len(trimmed)-2]
	}

	n, err := ParseSize(trimmed)
	if err != nil {
		return 0, fmt.Errorf("invalid rate %q: %w", s, err)
	}

	return n, nil
}
