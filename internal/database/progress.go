package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nalahealth/coach/pkg/models"
)

// GetStageProgress retrieves one user's record for a single stage
func (d *Database) GetStageProgress(ctx context.Context, userID string, stageNumber int) (*models.StageProgress, error) {
	query := `
		SELECT user_id, stage_number, completed_at, unlocked_at
		FROM stage_progress
		WHERE user_id = ? AND stage_number = ?
	`

	progress := &models.StageProgress{}
	err := d.db.QueryRowContext(ctx, rebind(query), userID, stageNumber).Scan(
		&progress.UserID,
		&progress.StageNumber,
		&progress.CompletedAt,
		&progress.UnlockedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("stage progress for %s stage %d: %w", userID, stageNumber, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stage progress: %w", err)
	}
	return progress, nil
}

// ListStageProgress returns all of a user's stage records ordered by stage.
// A user with no records gets an empty list, not an error.
func (d *Database) ListStageProgress(ctx context.Context, userID string) ([]*models.StageProgress, error) {
	query := `
		SELECT user_id, stage_number, completed_at, unlocked_at
		FROM stage_progress
		WHERE user_id = ?
		ORDER BY stage_number ASC
	`

	rows, err := d.db.QueryContext(ctx, rebind(query), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list stage progress: %w", err)
	}
	defer rows.Close()

	var records []*models.StageProgress
	for rows.Next() {
		progress := &models.StageProgress{}
		if err := rows.Scan(
			&progress.UserID,
			&progress.StageNumber,
			&progress.CompletedAt,
			&progress.UnlockedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan stage progress: %w", err)
		}
		records = append(records, progress)
	}

	return records, rows.Err()
}

// UpsertStageProgress inserts or updates a stage record. Completion and
// unlock timestamps are never moved once set.
func (d *Database) UpsertStageProgress(ctx context.Context, progress *models.StageProgress) error {
	query := `
		INSERT INTO stage_progress (user_id, stage_number, completed_at, unlocked_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, stage_number) DO UPDATE SET
			completed_at = COALESCE(stage_progress.completed_at, EXCLUDED.completed_at),
			unlocked_at = COALESCE(stage_progress.unlocked_at, EXCLUDED.unlocked_at)
	`

	_, err := d.db.ExecContext(ctx, rebind(query),
		progress.UserID,
		progress.StageNumber,
		progress.CompletedAt,
		progress.UnlockedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to upsert stage progress: %w", err)
	}
	return nil
}
