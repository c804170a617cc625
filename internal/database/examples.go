package database

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/nalahealth/coach/pkg/models"
)

// InsertExample stores a coaching example with its embedding
func (d *Database) InsertExample(ctx context.Context, example *models.CoachingExample) error {
	query := `
		INSERT INTO coaching_examples (
			id, participant_response, coach_response, category, goal_type, embedding
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			participant_response = EXCLUDED.participant_response,
			coach_response = EXCLUDED.coach_response,
			category = EXCLUDED.category,
			goal_type = EXCLUDED.goal_type,
			embedding = EXCLUDED.embedding
	`

	_, err := d.db.ExecContext(ctx, rebind(query),
		example.ID,
		example.ParticipantResponse,
		example.CoachResponse,
		example.Category,
		example.GoalType,
		pgvector.NewVector(example.Embedding),
	)

	if err != nil {
		return fmt.Errorf("failed to insert coaching example: %w", err)
	}
	return nil
}

// CountExamples returns the number of stored coaching examples
func (d *Database) CountExamples(ctx context.Context) (int, error) {
	var count int
	err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM coaching_examples`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count coaching examples: %w", err)
	}
	return count, nil
}

// SearchExamples finds the examples most similar to the query vector using
// cosine distance, dropping anything below the similarity floor. Results
// come back ordered by descending similarity with at most topK entries.
func (d *Database) SearchExamples(ctx context.Context, vector []float32, topK int, minSimilarity float64) ([]models.RetrievedExample, error) {
	query := `
		SELECT id, participant_response, coach_response, category, goal_type,
			   1 - (embedding <=> ?) AS similarity
		FROM coaching_examples
		WHERE embedding IS NOT NULL
		  AND 1 - (embedding <=> ?) >= ?
		ORDER BY embedding <=> ?
		LIMIT ?
	`

	vec := pgvector.NewVector(vector)
	rows, err := d.db.QueryContext(ctx, rebind(query), vec, vec, minSimilarity, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("failed to search coaching examples: %w", err)
	}
	defer rows.Close()

	var results []models.RetrievedExample
	for rows.Next() {
		var result models.RetrievedExample
		if err := rows.Scan(
			&result.Example.ID,
			&result.Example.ParticipantResponse,
			&result.Example.CoachResponse,
			&result.Example.Category,
			&result.Example.GoalType,
			&result.Similarity,
		); err != nil {
			return nil, fmt.Errorf("failed to scan coaching example: %w", err)
		}
		results = append(results, result)
	}

	return results, rows.Err()
}
