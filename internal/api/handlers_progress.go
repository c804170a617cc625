package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/nalahealth/coach/internal/progress"
	"github.com/nalahealth/coach/pkg/models"
)

// stageRecord is the wire form of one stage's progress. UnlockInSeconds is
// set only while the stage's own unlock time is still in the future.
type stageRecord struct {
	StageNumber     int        `json:"stage_number"`
	CompletedAt     *time.Time `json:"completed_at"`
	UnlockedAt      *time.Time `json:"unlocked_at"`
	UnlockInSeconds *int64     `json:"unlock_in_seconds,omitempty"`
}

func toStageRecord(p *models.StageProgress) *stageRecord {
	if p == nil {
		return nil
	}
	return &stageRecord{
		StageNumber: p.StageNumber,
		CompletedAt: p.CompletedAt,
		UnlockedAt:  p.UnlockedAt,
	}
}

// markCompleteRequest is the POST /api/v1/session/complete body.
type markCompleteRequest struct {
	UserID      string `json:"user_id"`
	StageNumber int    `json:"stage_number"`
}

// handleSessionComplete marks a stage complete. The operation is idempotent
// and exists independently of message-send for recovery.
func (s *Server) handleSessionComplete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req markCompleteRequest
	if err := s.parseJSON(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == "" {
		s.respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	completed, next, err := s.tracker.MarkComplete(r.Context(), req.UserID, req.StageNumber)
	if err != nil {
		if errors.Is(err, progress.ErrInvalidStage) {
			s.respondError(w, http.StatusBadRequest, "stage number outside the program")
			return
		}
		s.respondError(w, http.StatusInternalServerError, "failed to record completion")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"completed_stage": toStageRecord(completed),
		"next_stage":      toStageRecord(next),
	})
}

// handleSessionProgress returns a user's touched stages in order. An empty
// list means a brand-new user: stage 1 unlocked, nothing else.
func (s *Server) handleSessionProgress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	userID := s.extractID(r.URL.Path, "/api/v1/session/progress")
	if userID == "" {
		s.respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	records, err := s.tracker.ListProgress(r.Context(), userID)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to load progress")
		return
	}

	stages := make([]*stageRecord, 0, len(records))
	for _, record := range records {
		rec := toStageRecord(record)
		if remaining, scheduled, err := s.tracker.UnlockCountdown(r.Context(), userID, record.StageNumber); err == nil && scheduled && remaining > 0 {
			seconds := int64(remaining / time.Second)
			rec.UnlockInSeconds = &seconds
		}
		stages = append(stages, rec)
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"user_id": userID,
		"stages":  stages,
	})
}
