package sqlite

import (
	"fmt"
	"time"
)

// timeLayout is how timestamps written by the application are stored.
const timeLayout = time.RFC3339Nano

// parseTime accepts both the application's own layout and SQLite's
// CURRENT_TIMESTAMP format.
func parseTime(s string) (time.Time, error) {
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05.000",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized time format: %s", s)
}
