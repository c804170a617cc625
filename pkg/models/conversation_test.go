package models

import (
	"strings"
	"testing"
	"time"
)

func TestNewConversation(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	conv := NewConversation("conv-123", "user-456", 2, now)

	if conv.ID != "conv-123" {
		t.Errorf("ID mismatch: got %s, want conv-123", conv.ID)
	}
	if conv.UserID != "user-456" {
		t.Errorf("UserID mismatch: got %s, want user-456", conv.UserID)
	}
	if conv.StageNumber != 2 {
		t.Errorf("StageNumber mismatch: got %d, want 2", conv.StageNumber)
	}
	if conv.TurnCount != 0 {
		t.Errorf("Expected turn count 0, got %d", conv.TurnCount)
	}
	if conv.Metadata == nil {
		t.Error("Expected metadata to be initialized")
	}
	if !conv.CreatedAt.Equal(now) || !conv.UpdatedAt.Equal(now) {
		t.Error("Expected timestamps to match creation time")
	}
}

func TestConversationMetadataRoundTrip(t *testing.T) {
	conv := NewConversation("conv-1", "", 1, time.Now())
	conv.Metadata["model"] = "claude-sonnet-4"

	data, err := conv.MetadataJSON()
	if err != nil {
		t.Fatalf("MetadataJSON() error: %v", err)
	}

	restored := &Conversation{}
	if err := restored.SetMetadataFromJSON(data); err != nil {
		t.Fatalf("SetMetadataFromJSON() error: %v", err)
	}
	if restored.Metadata["model"] != "claude-sonnet-4" {
		t.Errorf("metadata mismatch after round trip: %v", restored.Metadata)
	}
}

func TestTurnMetadataMixedValues(t *testing.T) {
	turn := &Turn{
		ID:   "turn-1",
		Role: RoleAssistant,
		Metadata: map[string]interface{}{
			"provider":     "anthropic",
			"source_count": 3,
			"greeting":     true,
		},
	}

	data, err := turn.MetadataJSON()
	if err != nil {
		t.Fatalf("MetadataJSON() error: %v", err)
	}

	restored := &Turn{}
	if err := restored.SetMetadataFromJSON(data); err != nil {
		t.Fatalf("SetMetadataFromJSON() error: %v", err)
	}
	if restored.Metadata["provider"] != "anthropic" {
		t.Errorf("provider mismatch: %v", restored.Metadata["provider"])
	}
	// JSON numbers decode as float64
	if restored.Metadata["source_count"] != float64(3) {
		t.Errorf("source_count mismatch: %v", restored.Metadata["source_count"])
	}
	if restored.Metadata["greeting"] != true {
		t.Errorf("greeting mismatch: %v", restored.Metadata["greeting"])
	}
}

func TestConversationMetadataEmpty(t *testing.T) {
	conv := &Conversation{}
	if err := conv.SetMetadataFromJSON(nil); err != nil {
		t.Fatalf("SetMetadataFromJSON(nil) error: %v", err)
	}
	if conv.Metadata == nil {
		t.Error("Expected metadata map to be initialized for empty input")
	}
}

func TestValidRole(t *testing.T) {
	tests := []struct {
		role TurnRole
		want bool
	}{
		{RoleUser, true},
		{RoleAssistant, true},
		{RoleSystem, true},
		{TurnRole("moderator"), false},
		{TurnRole(""), false},
	}

	for _, tt := range tests {
		if got := ValidRole(tt.role); got != tt.want {
			t.Errorf("ValidRole(%q) = %v, want %v", tt.role, got, tt.want)
		}
	}
}

func TestTitleFromMessage(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    string
	}{
		{
			name:    "short message unchanged",
			message: "I want to walk more",
			want:    "I want to walk more",
		},
		{
			name:    "whitespace collapsed",
			message: "  I   want\nto walk  ",
			want:    "I want to walk",
		},
		{
			name:    "long message truncated",
			message: "I have been thinking a lot about how I could finally start eating healthier meals every single day",
			want:    "I have been thinking a lot about how I could finally start e…",
		},
		{
			name:    "multi-byte runes survive truncation",
			message: strings.Repeat("é", 70),
			want:    strings.Repeat("é", 60) + "…",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TitleFromMessage(tt.message); got != tt.want {
				t.Errorf("TitleFromMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStageProgressAccessors(t *testing.T) {
	now := time.Now()

	var nilProgress *StageProgress
	if nilProgress.Completed() {
		t.Error("nil progress must not report completed")
	}
	if nilProgress.UnlockRecorded() {
		t.Error("nil progress must not report an unlock record")
	}

	p := &StageProgress{UserID: "u1", StageNumber: 2}
	if p.Completed() || p.UnlockRecorded() {
		t.Error("empty record must report neither completed nor unlocked")
	}

	p.CompletedAt = &now
	p.UnlockedAt = &now
	if !p.Completed() || !p.UnlockRecorded() {
		t.Error("populated record must report both completed and unlocked")
	}
}
