package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
)

// LocationType selects the data frequency requested for a location.
// The numeric values match the ones the web client sends.
type LocationType int

const (
	// LocationTypeDefault defers to the configured default frequency.
	LocationTypeDefault LocationType = 0
	// LocationTypeWeekly requests weekly composites.
	LocationTypeWeekly LocationType = 1
	// LocationTypeDaily requests daily images.
	LocationTypeDaily LocationType = 2
)

// Frequency returns the query frequency for the type, or fallback for the default type.
func (t LocationType) Frequency(fallback string) string {
	switch t {
	case LocationTypeWeekly:
		return "weekly"
	case LocationTypeDaily:
		return "daily"
	default:
		return fallback
	}
}

// UnmarshalJSON accepts either the numeric type or "weekly"/"daily".
func (t *LocationType) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*t = LocationTypeDefault
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "", "default":
			*t = LocationTypeDefault
		case "weekly", "1":
			*t = LocationTypeWeekly
		case "daily", "2":
			*t = LocationTypeDaily
		default:
			return fmt.Errorf("invalid location type: %q", s)
		}
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid location type: %w", err)
	}
	v := LocationType(n)
	if v != LocationTypeDefault && v != LocationTypeWeekly && v != LocationTypeDaily {
		return fmt.Errorf("invalid location type: %d", n)
	}
	*t = v
	return nil
}

// LocationRequest is one coordinate pair submitted as part of a batch.
type LocationRequest struct {
	Latitude  float64      `json:"latitude"`
	Longitude float64      `json:"longitude"`
	Type      LocationType `json:"type,omitempty"`
}

// Validate checks the coordinate ranges.
func (l LocationRequest) Validate() error {
	if math.IsNaN(l.Latitude) || l.Latitude < -90 || l.Latitude > 90 {
		return fmt.Errorf("latitude %v out of range", l.Latitude)
	}
	if math.IsNaN(l.Longitude) || l.Longitude < -180 || l.Longitude > 180 {
		return fmt.Errorf("longitude %v out of range", l.Longitude)
	}
	return nil
}

// LocationResponse is the decoded body returned by the external data API for one location,
// augmented with the coordinates the user asked for under "user_latitude" and "user_longitude".
type LocationResponse map[string]any

// StartBatchJobRequest is the payload for starting a batch job.
type StartBatchJobRequest struct {
	Username  string            `json:"username"`
	Filename  string            `json:"filename"`
	Locations []LocationRequest `json:"locations"`
}

// Validate validates the StartBatchJobRequest fields.
// The location count limit is enforced by the orchestrator, not here.
func (r *StartBatchJobRequest) Validate() error {
	if strings.TrimSpace(r.Username) == "" {
		return fmt.Errorf("%w: username", ErrInvalidRequest)
	}
	if strings.TrimSpace(r.Filename) == "" {
		return fmt.Errorf("%w: filename", ErrInvalidRequest)
	}
	if r.Locations == nil {
		return fmt.Errorf("%w: locations", ErrInvalidRequest)
	}
	if _, err := OutputFilename(r.Filename); err != nil {
		return err
	}
	var errs []error
	for i, loc := range r.Locations {
		if err := loc.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("location %d: %w", i, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, errors.Join(errs...))
	}
	return nil
}

// OutputFilename derives the result file name from the uploaded input name:
// everything before the first ".csv" plus "_results.csv". Directory components are dropped.
func OutputFilename(input string) (string, error) {
	base := filepath.Base(strings.TrimSpace(input))
	stem, _, found := strings.Cut(base, ".csv")
	if !found || stem == "" || base == "." || base == string(filepath.Separator) {
		return "", fmt.Errorf("%w: %q", ErrInvalidFilename, input)
	}
	return stem + "_results.csv", nil
}
