package models

import (
	"strings"

	dErrors "demandstage/pkg/domain-errors"
)

// Submission is the public vote request body. The network signal is not part
// of the body; it comes from request metadata.
type Submission struct {
	Artist   string `json:"artist"`
	City     string `json:"city"`
	DeviceID string `json:"device_id"`
}

// Normalize trims surrounding whitespace from all fields.
func (s *Submission) Normalize() {
	s.Artist = strings.TrimSpace(s.Artist)
	s.City = strings.TrimSpace(s.City)
	s.DeviceID = strings.TrimSpace(s.DeviceID)
}

// Validate checks the required fields, naming every missing one.
func (s *Submission) Validate() error {
	var missing []string
	if s.Artist == "" {
		missing = append(missing, "artist")
	}
	if s.City == "" {
		missing = append(missing, "city")
	}
	if s.DeviceID == "" {
		missing = append(missing, "device_id")
	}
	if len(missing) > 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "missing required fields: "+strings.Join(missing, ", "))
	}
	return nil
}
