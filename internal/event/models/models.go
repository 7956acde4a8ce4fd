// Package models holds the verified-event domain types.
package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	dErrors "demandstage/pkg/domain-errors"
)

// Event is a confirmed show for a previously demanded (artist, city) pair.
// TotalVotes is the demand snapshot taken at verification time; it is never
// recomputed afterwards.
type Event struct {
	ID         uuid.UUID `json:"id"`
	Artist     string    `json:"artist"`
	City       string    `json:"city"`
	Venue      string    `json:"venue"`
	EventDate  time.Time `json:"event_date"`
	Sponsors   []string  `json:"sponsors,omitempty"`
	TotalVotes int       `json:"total_votes"`
	Verified   bool      `json:"verified"`
	CreatedAt  time.Time `json:"created_at"`
}

// VerifyRequest is the admin request to turn accumulated demand into a
// verified event.
type VerifyRequest struct {
	Artist    string    `json:"artist"`
	City      string    `json:"city"`
	Venue     string    `json:"venue"`
	EventDate time.Time `json:"event_date"`
	Sponsors  []string  `json:"sponsors"`
}

// Normalize trims surrounding whitespace from the identifying fields.
func (r *VerifyRequest) Normalize() {
	r.Artist = strings.TrimSpace(r.Artist)
	r.City = strings.TrimSpace(r.City)
	r.Venue = strings.TrimSpace(r.Venue)
}

// Validate checks the required fields.
func (r *VerifyRequest) Validate() error {
	var missing []string
	if r.Artist == "" {
		missing = append(missing, "artist")
	}
	if r.City == "" {
		missing = append(missing, "city")
	}
	if r.Venue == "" {
		missing = append(missing, "venue")
	}
	if r.EventDate.IsZero() {
		missing = append(missing, "event_date")
	}
	if len(missing) > 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "missing required fields: "+strings.Join(missing, ", "))
	}
	return nil
}
