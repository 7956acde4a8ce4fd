// Package models holds the vote domain types shared by stores, services and
// handlers.
package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"demandstage/pkg/platform/sentinel"
)

// NetworkUnknown is the sentinel network signal recorded when the client IP
// could not be determined. It is excluded from every network-based
// comparison: duplicate checks, rate counting and suspicious grouping.
const NetworkUnknown = "unknown"

// Uniqueness violations surfaced by stores on insert. Both wrap
// sentinel.ErrConflict; the distinct values let the service render a
// network- vs device-specific rejection message.
var (
	ErrDeviceDuplicate  = fmt.Errorf("%w: this device already voted for this artist and city", sentinel.ErrConflict)
	ErrNetworkDuplicate = fmt.Errorf("%w: a vote for this artist and city was already cast from this network", sentinel.ErrConflict)
)

// Vote is one demand expression for an artist in a city.
type Vote struct {
	ID            uuid.UUID `json:"id"`
	Artist        string    `json:"artist"`
	City          string    `json:"city"`
	DeviceSignal  string    `json:"device_id"`
	NetworkSignal string    `json:"ip_address"`
	UserAgent     string    `json:"user_agent,omitempty"`
	Flagged       bool      `json:"flagged"`
	CreatedAt     time.Time `json:"created_at"`
}

// HasKnownNetwork reports whether the vote carries a usable network signal.
func (v *Vote) HasKnownNetwork() bool {
	return v.NetworkSignal != "" && v.NetworkSignal != NetworkUnknown
}

// Choice identifies an (artist, city) demand pair.
type Choice struct {
	Artist string `json:"artist"`
	City   string `json:"city"`
}

// Identity signal kinds used in grouping and audit detail.
const (
	SignalDevice  = "device"
	SignalNetwork = "network"
)

// SuspiciousGroup is a cluster of votes sharing one identity signal, used by
// moderation review. Unknown network signals never form a group.
type SuspiciousGroup struct {
	SignalKind string `json:"signal_kind"`
	Signal     string `json:"signal"`
	Count      int    `json:"count"`
}
