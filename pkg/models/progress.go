package models

import "time"

// StageProgress tracks one user's progress through a single program stage.
// At most one record exists per (user, stage) pair. Stage 1 is always
// considered unlocked whether or not a record exists.
type StageProgress struct {
	UserID      string     `json:"user_id"`
	StageNumber int        `json:"stage_number"`
	CompletedAt *time.Time `json:"completed_at"`
	UnlockedAt  *time.Time `json:"unlocked_at"`
}

// Completed reports whether the stage has a completion timestamp.
func (p *StageProgress) Completed() bool {
	return p != nil && p.CompletedAt != nil
}

// UnlockRecorded reports whether an explicit unlock time exists on the record.
func (p *StageProgress) UnlockRecorded() bool {
	return p != nil && p.UnlockedAt != nil
}
