package models

import (
	"encoding/json"
	"strings"
	"time"
)

// TurnRole identifies the author of a turn within a conversation.
type TurnRole string

const (
	RoleUser      TurnRole = "user"
	RoleAssistant TurnRole = "assistant"
	RoleSystem    TurnRole = "system"
)

// ValidRole reports whether r is one of the closed set of turn roles.
func ValidRole(r TurnRole) bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	default:
		return false
	}
}

// ChatMessage is the provider-agnostic message shape exchanged with LLM providers.
type ChatMessage struct {
	Role    string `json:"role"`    // system, user, assistant
	Content string `json:"content"` // message content
}

// Conversation is one ongoing exchange between a user and the coach for a
// single program stage. The turn count is cached on the record and kept in
// sync with turn inserts inside the same transaction.
type Conversation struct {
	ID          string                 `json:"conversation_id"`
	UserID      string                 `json:"user_id,omitempty"` // empty for anonymous sessions
	Title       string                 `json:"title"`
	StageNumber int                    `json:"stage_number"`
	TurnCount   int                    `json:"turn_count"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// Turn is a single message within a conversation. Turns are append-only and
// totally ordered by creation time.
type Turn struct {
	ID             string                 `json:"turn_id"`
	ConversationID string                 `json:"conversation_id"`
	Role           TurnRole               `json:"role"`
	Content        string                 `json:"content"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"` // model used, source provenance
	CreatedAt      time.Time              `json:"created_at"`
}

// NewConversation creates an empty conversation owned by userID (may be empty).
func NewConversation(id, userID string, stage int, now time.Time) *Conversation {
	return &Conversation{
		ID:          id,
		UserID:      userID,
		StageNumber: stage,
		Metadata:    make(map[string]interface{}),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// MetadataJSON serializes the conversation metadata for storage.
func (c *Conversation) MetadataJSON() ([]byte, error) {
	if c.Metadata == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(c.Metadata)
}

// SetMetadataFromJSON restores conversation metadata from its stored form.
func (c *Conversation) SetMetadataFromJSON(data []byte) error {
	if len(data) == 0 {
		c.Metadata = make(map[string]interface{})
		return nil
	}
	return json.Unmarshal(data, &c.Metadata)
}

// MetadataJSON serializes the turn metadata for storage.
func (t *Turn) MetadataJSON() ([]byte, error) {
	if t.Metadata == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(t.Metadata)
}

// SetMetadataFromJSON restores turn metadata from its stored form.
func (t *Turn) SetMetadataFromJSON(data []byte) error {
	if len(data) == 0 {
		t.Metadata = make(map[string]interface{})
		return nil
	}
	return json.Unmarshal(data, &t.Metadata)
}

const maxTitleLen = 60

// TitleFromMessage derives a conversation title from its first user message.
// Truncation counts runes so a multi-byte character is never split.
func TitleFromMessage(message string) string {
	title := strings.Join(strings.Fields(message), " ")
	runes := []rune(title)
	if len(runes) > maxTitleLen {
		title = strings.TrimSpace(string(runes[:maxTitleLen])) + "…"
	}
	return title
}
