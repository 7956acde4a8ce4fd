// Package models holds the tally read-model types.
package models

// Combination is the vote count for one (artist, city) pair.
type Combination struct {
	Artist string `json:"artist"`
	City   string `json:"city"`
	Count  int    `json:"count"`
}

// ArtistTotal is the vote count for one artist across all cities.
type ArtistTotal struct {
	Artist string `json:"artist"`
	Count  int    `json:"count"`
}
