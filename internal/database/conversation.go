package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nalahealth/coach/pkg/models"
)

// CreateConversation inserts a new conversation
func (d *Database) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	metadataJSON, err := conv.MetadataJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO conversations (
			id, user_id, title, stage_number, turn_count,
			metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = d.db.ExecContext(ctx, rebind(query),
		conv.ID,
		conv.UserID,
		conv.Title,
		conv.StageNumber,
		conv.TurnCount,
		metadataJSON,
		conv.CreatedAt,
		conv.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	return nil
}

// GetConversation retrieves a conversation by ID
func (d *Database) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	query := `
		SELECT id, user_id, title, stage_number, turn_count,
			   metadata, created_at, updated_at
		FROM conversations
		WHERE id = ?
	`

	conv := &models.Conversation{}
	var metadataJSON []byte

	err := d.db.QueryRowContext(ctx, rebind(query), id).Scan(
		&conv.ID,
		&conv.UserID,
		&conv.Title,
		&conv.StageNumber,
		&conv.TurnCount,
		&metadataJSON,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	if err := conv.SetMetadataFromJSON(metadataJSON); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	return conv, nil
}

// ListConversations returns all conversations for a user, most recent first
func (d *Database) ListConversations(ctx context.Context, userID string) ([]*models.Conversation, error) {
	query := `
		SELECT id, user_id, title, stage_number, turn_count,
			   metadata, created_at, updated_at
		FROM conversations
		WHERE user_id = ?
		ORDER BY updated_at DESC
	`

	rows, err := d.db.QueryContext(ctx, rebind(query), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var conversations []*models.Conversation
	for rows.Next() {
		conv := &models.Conversation{}
		var metadataJSON []byte

		if err := rows.Scan(
			&conv.ID,
			&conv.UserID,
			&conv.Title,
			&conv.StageNumber,
			&conv.TurnCount,
			&metadataJSON,
			&conv.CreatedAt,
			&conv.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}

		if err := conv.SetMetadataFromJSON(metadataJSON); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
		conversations = append(conversations, conv)
	}

	return conversations, rows.Err()
}

// DeleteConversation removes a conversation and its turns
func (d *Database) DeleteConversation(ctx context.Context, id string) error {
	result, err := d.db.ExecContext(ctx, rebind(`DELETE FROM conversations WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetHistory returns the most recent turns of a conversation in
// chronological order. A limit of 0 returns all turns.
func (d *Database) GetHistory(ctx context.Context, conversationID string, limit int) ([]models.Turn, error) {
	query := `
		SELECT id, conversation_id, role, content, metadata, created_at
		FROM turns
		WHERE conversation_id = ?
		ORDER BY created_at DESC, id DESC
	`
	args := []interface{}{conversationID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := d.db.QueryContext(ctx, rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	defer rows.Close()

	var turns []models.Turn
	for rows.Next() {
		var turn models.Turn
		var metadataJSON []byte

		if err := rows.Scan(
			&turn.ID,
			&turn.ConversationID,
			&turn.Role,
			&turn.Content,
			&metadataJSON,
			&turn.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}

		if err := turn.SetMetadataFromJSON(metadataJSON); err != nil {
			return nil, fmt.Errorf("failed to unmarshal turn metadata: %w", err)
		}
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Rows were fetched newest-first to apply the limit; flip back to
	// chronological order.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// AppendExchange persists a user turn and its assistant reply in a single
// transaction, bumping the conversation's turn count and timestamp. If the
// conversation has no title yet and title is non-empty, it is set here.
// Either both turns are stored or neither is.
func (d *Database) AppendExchange(ctx context.Context, conversationID string, userTurn, assistantTurn *models.Turn, title string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	insertTurn := rebind(`
		INSERT INTO turns (id, conversation_id, role, content, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)

	for _, turn := range []*models.Turn{userTurn, assistantTurn} {
		if turn == nil {
			continue
		}
		metadataJSON, err := turn.MetadataJSON()
		if err != nil {
			return fmt.Errorf("failed to marshal turn metadata: %w", err)
		}
		if _, err := tx.ExecContext(ctx, insertTurn,
			turn.ID,
			conversationID,
			turn.Role,
			turn.Content,
			metadataJSON,
			turn.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert %s turn: %w", turn.Role, err)
		}
	}

	added := 0
	if userTurn != nil {
		added++
	}
	if assistantTurn != nil {
		added++
	}

	update := rebind(`
		UPDATE conversations
		SET turn_count = turn_count + ?,
			updated_at = ?,
			title = CASE WHEN title = '' AND ? != '' THEN ? ELSE title END
		WHERE id = ?
	`)

	result, err := tx.ExecContext(ctx, update, added, time.Now().UTC(), title, title, conversationID)
	if err != nil {
		return fmt.Errorf("failed to update conversation: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update conversation: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("conversation %s: %w", conversationID, ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit exchange: %w", err)
	}
	return nil
}
