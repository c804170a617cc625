package logging

import (
	"testing"
	"time"
)

func TestLogAndGetRecent(t *testing.T) {
	m := NewManager(nil)

	m.Info("orchestrator", "message handled", map[string]interface{}{"conversation_id": "c1"})
	m.Error("embedding", "upstream timeout", nil)

	entries := m.GetRecent(10, "", "", time.Time{}, time.Time{})
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	// Newest first
	if entries[0].Source != "embedding" {
		t.Errorf("expected newest entry first, got source %q", entries[0].Source)
	}
}

func TestGetRecentLevelFilter(t *testing.T) {
	m := NewManager(nil)

	m.Info("api", "ok", nil)
	m.Warn("api", "slow response", nil)
	m.Error("api", "failed", nil)

	entries := m.GetRecent(10, LogLevelError, "", time.Time{}, time.Time{})
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Message != "failed" {
		t.Errorf("unexpected entry: %+v", entries[0])
	}
}
