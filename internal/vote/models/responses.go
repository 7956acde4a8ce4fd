package models

// Receipt is returned for an accepted submission.
type Receipt struct {
	Success bool `json:"success"`
	Flagged bool `json:"flagged"`
}

// VoteStatus answers the has-voted check for one device and choice.
type VoteStatus struct {
	HasVoted bool `json:"has_voted"`
}
