package utils

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/paulmach/orb"
)

var (
	// Allow alphanumeric, underscore, hyphen, dot - layer names double as file names
	validIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)
)

// ValidateID validates that an ID is safe and within reasonable limits
func ValidateID(id string) error {
	if id == "" {
		return errors.New("id cannot be empty")
	}

	if len(id) > 100 {
		return errors.New("id too long (max 100 characters)")
	}

	if !validIDPattern.MatchString(id) {
		return errors.New("id contains invalid characters")
	}

	if id == "." || id == ".." {
		return errors.New("id contains invalid characters")
	}

	return nil
}

// ValidateLatitude validates latitude values
func ValidateLatitude(lat float64) error {
	if lat < -90.0 || lat > 90.0 {
		return errors.New("latitude must be between -90 and 90")
	}
	return nil
}

// ValidateLongitude validates longitude values
func ValidateLongitude(lon float64) error {
	if lon < -180.0 || lon > 180.0 {
		return errors.New("longitude must be between -180 and 180")
	}
	return nil
}

// ValidateCoordinate checks both axes of a (lon, lat) point.
func ValidateCoordinate(p orb.Point) error {
	if err := ValidateLongitude(p.Lon()); err != nil {
		return err
	}
	return ValidateLatitude(p.Lat())
}

func ValidateStationID(id int64) error {
	if id < 0 {
		return fmt.Errorf("station id must be non-negative, got %d", id)
	}
	return nil
}

// ValidateBound rejects inverted or out-of-range bounding boxes.
// A degenerate box (a single station) is allowed.
func ValidateBound(b orb.Bound) error {
	if err := ValidateCoordinate(b.Min); err != nil {
		return fmt.Errorf("bbox min: %w", err)
	}
	if err := ValidateCoordinate(b.Max); err != nil {
		return fmt.Errorf("bbox max: %w", err)
	}
	if b.Min.Lon() > b.Max.Lon() || b.Min.Lat() > b.Max.Lat() {
		return errors.New("bbox min must not exceed max")
	}
	return nil
}

// ValidateTolerance validates Douglas-Peucker tolerances (degrees).
func ValidateTolerance(tolerance float64) error {
	if tolerance < 0 {
		return errors.New("tolerance must be non-negative")
	}

	// Anything above a degree erases city-scale geometry entirely
	if tolerance > 1.0 {
		return errors.New("tolerance too large (max 1.0 degrees)")
	}

	return nil
}
