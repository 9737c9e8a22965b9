package pebble

import (
	"fmt"
	"strconv"

	"github.com/chronomint/verscache/internal/model"
)

// Versions are encoded into sort keys as a one-character length prefix
// followed by the decimal digits. Shorter numbers get a smaller prefix
// character and equal-length numbers compare digit by digit, so numeric and
// lexicographic order coincide regardless of digit count.

// encodeVersionKey renders a version as an order-preserving sort key
func encodeVersionKey(v model.Version) string {
	digits := strconv.FormatInt(int64(v), 10)
	return string(rune('0'+len(digits))) + digits
}

// decodeVersionKey parses a sort key produced by encodeVersionKey
func decodeVersionKey(s string) (model.Version, error) {
	if len(s) < 2 {
		return 0, fmt.Errorf("version key too short: %q", s)
	}
	if int(s[0]-'0') != len(s)-1 {
		return 0, fmt.Errorf("version key length prefix mismatch: %q", s)
	}
	n, err := strconv.ParseInt(s[1:], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("version key digits: %w", err)
	}
	return model.Version(n), nil
}
