package utils

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"travel-backoffice/errors"
)

// TimeFilterParams holds parsed time filter parameters
type TimeFilterParams struct {
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

// ParseTimeFilters extracts and validates time filter query parameters from HTTP request.
// Both RFC3339 timestamps and plain dates (2006-01-02) are accepted.
func ParseTimeFilters(r *http.Request, afterKey, beforeKey string) (*TimeFilterParams, error) {
	params := &TimeFilterParams{}

	if str := r.URL.Query().Get(afterKey); str != "" {
		parsed, err := parseTime(str, false)
		if err != nil {
			return nil, errors.NewInvalidParamsError(fmt.Sprintf("invalid %s format. Use RFC3339 (e.g., 2025-11-13T10:00:00Z) or 2025-11-13", afterKey))
		}
		params.CreatedAfter = &parsed
	}

	if str := r.URL.Query().Get(beforeKey); str != "" {
		parsed, err := parseTime(str, true)
		if err != nil {
			return nil, errors.NewInvalidParamsError(fmt.Sprintf("invalid %s format. Use RFC3339 (e.g., 2025-11-13T10:00:00Z) or 2025-11-13", beforeKey))
		}
		params.CreatedBefore = &parsed
	}

	if params.CreatedAfter != nil && params.CreatedBefore != nil && params.CreatedBefore.Before(*params.CreatedAfter) {
		return nil, errors.NewInvalidParamsError(fmt.Sprintf("%s must not be after %s", afterKey, beforeKey))
	}
	return params, nil
}

// parseTime reads RFC3339 or a date. A date used as an upper bound covers the whole day.
func parseTime(s string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

// ParseLimit reads the limit query parameter, falling back to def for missing or invalid values.
func ParseLimit(r *http.Request, def int) int {
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}
