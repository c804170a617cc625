package api

import (
	"net/http"
)

// handleConversations lists a user's conversations
func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		s.respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	conversations, err := s.store.ListConversations(r.Context(), userID)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"conversations": conversations,
	})
}

// handleConversation serves GET and DELETE for a single conversation
func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	id := s.extractID(r.URL.Path, "/api/v1/conversations")
	if id == "" {
		s.respondError(w, http.StatusBadRequest, "conversation id is required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		conv, err := s.store.GetConversation(r.Context(), id)
		if err != nil {
			if s.isNotFound(err) {
				s.respondError(w, http.StatusNotFound, "conversation not found")
				return
			}
			s.respondError(w, http.StatusInternalServerError, "failed to load conversation")
			return
		}

		turns, err := s.store.GetHistory(r.Context(), id, 0)
		if err != nil {
			s.respondError(w, http.StatusInternalServerError, "failed to load turns")
			return
		}

		s.respondJSON(w, http.StatusOK, map[string]interface{}{
			"conversation": conv,
			"turns":        turns,
		})

	case http.MethodDelete:
		if err := s.store.DeleteConversation(r.Context(), id); err != nil {
			if s.isNotFound(err) {
				s.respondError(w, http.StatusNotFound, "conversation not found")
				return
			}
			s.respondError(w, http.StatusInternalServerError, "failed to delete conversation")
			return
		}
		s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})

	default:
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}
