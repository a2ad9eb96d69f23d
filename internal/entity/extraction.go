package entity

import "time"

// Rejection explains why part of an extraction was dropped or altered.
// Path is a JSON-pointer-like location ("/restaurants/0/dishes/3").
type Rejection struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// FileFailure is a run diagnostic for a page that produced no records.
type FileFailure struct {
	Filename    string    `json:"filename"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	Reason      string    `json:"reason"`
	Attempts    int       `json:"attempts"`
	FailedAt    time.Time `json:"failed_at"`
}
