package api

import (
	"net/http"

	"github.com/nalahealth/coach/internal/orchestrator"
)

// chatMessageRequest is the POST /api/v1/chat/message body.
type chatMessageRequest struct {
	Message        string `json:"message"`
	UserID         string `json:"user_id,omitempty"`
	StageNumber    int    `json:"stage_number,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	Provider       string `json:"provider,omitempty"`
}

// handleChatMessage runs one message through the coaching pipeline
func (s *Server) handleChatMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req chatMessageRequest
	if err := s.parseJSON(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	resp, err := s.coach.HandleMessage(r.Context(), &orchestrator.Request{
		Message:        req.Message,
		UserID:         req.UserID,
		StageNumber:    req.StageNumber,
		ConversationID: req.ConversationID,
		ProviderHint:   req.Provider,
	})
	if err != nil {
		if s.logs != nil {
			s.logs.Error("api", "chat message failed", map[string]interface{}{
				"user_id":         req.UserID,
				"conversation_id": req.ConversationID,
				"error":           err.Error(),
			})
		}
		s.respondOrchestratorError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, resp)
}
