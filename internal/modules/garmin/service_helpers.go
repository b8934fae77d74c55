package garmin

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// nowUTC returns the current time in UTC.
func nowUTC() time.Time {
	return time.Now().UTC()
}

// newRowID generates a time-ordered row id.
func newRowID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", ErrInternal.WithCause(err)
	}
	return id.String(), nil
}

// splitScopes parses a space- or comma-separated OAuth scope string.
func splitScopes(scope string) []string {
	fields := strings.FieldsFunc(scope, func(r rune) bool {
		return r == ' ' || r == ','
	})
	scopes := make([]string, 0, len(fields))
	for _, f := range fields {
		if f != "" {
			scopes = append(scopes, f)
		}
	}
	return scopes
}
