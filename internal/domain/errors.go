package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrConflict signals a version race on snapshot insert; the caller should
	// retry with a freshly computed version.
	ErrConflict = errors.New("version conflict")

	// ErrListingMismatch is returned when two snapshots handed to the diff
	// engine belong to different listings.
	ErrListingMismatch = errors.New("snapshots belong to different listings")
)

// ConfigError marks a run failure caused by a missing or wrong setting.
// The message names the setting so the operator knows what to fix.
type ConfigError struct {
	Setting string
	Detail  string
}

func (e *ConfigError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: check the %s setting", e.Detail, e.Setting)
	}
	return fmt.Sprintf("%s is not configured", e.Setting)
}
