package workgraph

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var durationPattern = regexp.MustCompile(`^(\d+)(s|m|h|d)$`)

// ParseDuration parses the grammar \d+(s|m|h|d) used by cycle_config.delay
// and CLI duration flags. Invalid strings are rejected rather than
// defaulted.
func ParseDuration(raw string) (time.Duration, error) {
	match := durationPattern.FindStringSubmatch(raw)
	if match == nil {
		return 0, fmt.Errorf("invalid duration %q, want N(s|m|h|d)", raw)
	}
	n, err := strconv.Atoi(match[1])
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	unit := map[string]time.Duration{
		"s": time.Second,
		"m": time.Minute,
		"h": time.Hour,
		"d": 24 * time.Hour,
	}[match[2]]
	return time.Duration(n) * unit, nil
}
