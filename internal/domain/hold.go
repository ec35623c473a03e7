package domain

import "time"

// LegalHold freezes a case: while active, deletion and export of the case's
// objects are refused regardless of WORM state.
type LegalHold struct {
	HoldID      string
	CaseID      string
	Description string
	CreatedBy   string
	CreatedAt   time.Time
	ExpiresAt   *time.Time
	IsActive    bool
}

func (h LegalHold) ActiveAt(now time.Time) bool {
	if !h.IsActive {
		return false
	}
	if h.ExpiresAt != nil && !h.ExpiresAt.After(now) {
		return false
	}
	return true
}
