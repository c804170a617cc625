// Package progress implements the per-user program progression state
// machine. Each (user, stage) pair moves through locked, unlocked, and
// completed, with the next stage unlocking a fixed delay after completion.
package progress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nalahealth/coach/pkg/models"
)

// ErrInvalidStage is returned when a stage number falls outside the program.
var ErrInvalidStage = errors.New("invalid stage number")

// Store is the persistence surface the tracker needs.
type Store interface {
	GetStageProgress(ctx context.Context, userID string, stageNumber int) (*models.StageProgress, error)
	ListStageProgress(ctx context.Context, userID string) ([]*models.StageProgress, error)
	UpsertStageProgress(ctx context.Context, progress *models.StageProgress) error
}

// Tracker evaluates and mutates stage progression for users.
type Tracker struct {
	store       Store
	stageCount  int
	unlockDelay time.Duration

	// isNotFound distinguishes missing records from real store failures.
	isNotFound func(error) bool

	// now is replaceable in tests to simulate the clock.
	now func() time.Time
}

// NewTracker builds a tracker over the given store. isNotFound must report
// whether an error from the store means the record does not exist.
func NewTracker(store Store, stageCount int, unlockDelay time.Duration, isNotFound func(error) bool) *Tracker {
	return &Tracker{
		store:       store,
		stageCount:  stageCount,
		unlockDelay: unlockDelay,
		isNotFound:  isNotFound,
		now:         time.Now,
	}
}

// StageCount returns the number of stages in the program.
func (t *Tracker) StageCount() int {
	return t.stageCount
}

func (t *Tracker) validStage(stage int) error {
	if stage < 1 || stage > t.stageCount {
		return fmt.Errorf("stage %d out of range 1..%d: %w", stage, t.stageCount, ErrInvalidStage)
	}
	return nil
}

// get returns the stage record, or nil if none exists yet.
func (t *Tracker) get(ctx context.Context, userID string, stage int) (*models.StageProgress, error) {
	record, err := t.store.GetStageProgress(ctx, userID, stage)
	if err != nil {
		if t.isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

// IsUnlocked reports whether the user may interact with the stage. Stage 1
// is always unlocked. Later stages unlock when their own record carries an
// unlock time in the past, or, absent such a record, when the previous
// stage is completed.
func (t *Tracker) IsUnlocked(ctx context.Context, userID string, stage int) (bool, error) {
	if err := t.validStage(stage); err != nil {
		return false, err
	}
	if stage == 1 {
		return true, nil
	}

	record, err := t.get(ctx, userID, stage)
	if err != nil {
		return false, err
	}
	if record != nil && record.UnlockedAt != nil {
		return !t.now().Before(*record.UnlockedAt), nil
	}

	return t.IsCompleted(ctx, userID, stage-1)
}

// IsCompleted reports whether the user has completed the stage.
func (t *Tracker) IsCompleted(ctx context.Context, userID string, stage int) (bool, error) {
	if err := t.validStage(stage); err != nil {
		return false, err
	}
	record, err := t.get(ctx, userID, stage)
	if err != nil {
		return false, err
	}
	return record.Completed(), nil
}

// MarkComplete records completion of a stage and schedules the unlock of
// the next one. The call is idempotent: a stage already completed keeps its
// original completion time, and an existing next-stage unlock time is never
// moved later. The returned next record is nil for the final stage.
func (t *Tracker) MarkComplete(ctx context.Context, userID string, stage int) (completed, next *models.StageProgress, err error) {
	if err := t.validStage(stage); err != nil {
		return nil, nil, err
	}

	record, err := t.get(ctx, userID, stage)
	if err != nil {
		return nil, nil, err
	}

	now := t.now().UTC()
	if record == nil {
		record = &models.StageProgress{UserID: userID, StageNumber: stage}
	}
	if !record.Completed() {
		record.CompletedAt = &now
		if err := t.store.UpsertStageProgress(ctx, record); err != nil {
			return nil, nil, fmt.Errorf("failed to record completion: %w", err)
		}
	}

	if stage >= t.stageCount {
		return record, nil, nil
	}

	next, err = t.get(ctx, userID, stage+1)
	if err != nil {
		return nil, nil, err
	}
	if next == nil || next.UnlockedAt == nil {
		unlockAt := record.CompletedAt.Add(t.unlockDelay)
		if next == nil {
			next = &models.StageProgress{UserID: userID, StageNumber: stage + 1}
		}
		next.UnlockedAt = &unlockAt
		if err := t.store.UpsertStageProgress(ctx, next); err != nil {
			return nil, nil, fmt.Errorf("failed to schedule next unlock: %w", err)
		}
	}

	return record, next, nil
}

// UnlockCountdown returns how long until the stage unlocks, reading the
// stage's own unlock timestamp. It returns ok=false when the stage has no
// unlock time recorded, which callers should show as "locked, no estimate".
// An already-unlocked stage returns a zero duration.
func (t *Tracker) UnlockCountdown(ctx context.Context, userID string, stage int) (remaining time.Duration, ok bool, err error) {
	if err := t.validStage(stage); err != nil {
		return 0, false, err
	}
	if stage == 1 {
		return 0, true, nil
	}

	record, err := t.get(ctx, userID, stage)
	if err != nil {
		return 0, false, err
	}
	if record == nil || record.UnlockedAt == nil {
		return 0, false, nil
	}

	remaining = record.UnlockedAt.Sub(t.now())
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true, nil
}

// ListProgress returns the user's touched stages in stage order. A brand
// new user gets an empty list, which callers interpret as stage 1 unlocked
// and nothing else.
func (t *Tracker) ListProgress(ctx context.Context, userID string) ([]*models.StageProgress, error) {
	return t.store.ListStageProgress(ctx, userID)
}
