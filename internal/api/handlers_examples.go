package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/nalahealth/coach/pkg/models"
)

// exampleRequest is the POST /api/v1/examples body.
type exampleRequest struct {
	ID                  string `json:"id,omitempty"`
	ParticipantResponse string `json:"participant_response"`
	CoachResponse       string `json:"coach_response"`
	Category            string `json:"category,omitempty"`
	GoalType            string `json:"goal_type,omitempty"`
}

// handleExamples serves the coaching example corpus: POST to add an example
// (the participant text is embedded server side), GET for the corpus size.
func (s *Server) handleExamples(w http.ResponseWriter, r *http.Request) {
	if s.examples == nil {
		s.respondError(w, http.StatusNotFound, "example corpus is not configured")
		return
	}

	switch r.Method {
	case http.MethodPost:
		var req exampleRequest
		if err := s.parseJSON(r, &req); err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if req.ParticipantResponse == "" || req.CoachResponse == "" {
			s.respondError(w, http.StatusBadRequest, "participant_response and coach_response are required")
			return
		}

		vector, err := s.embedder.Embed(r.Context(), req.ParticipantResponse)
		if err != nil {
			s.respondError(w, http.StatusBadGateway, "failed to embed example")
			return
		}

		example := &models.CoachingExample{
			ID:                  req.ID,
			ParticipantResponse: req.ParticipantResponse,
			CoachResponse:       req.CoachResponse,
			Category:            req.Category,
			GoalType:            req.GoalType,
			Embedding:           vector,
		}
		if example.ID == "" {
			example.ID = uuid.NewString()
		}

		if err := s.examples.InsertExample(r.Context(), example); err != nil {
			s.respondError(w, http.StatusInternalServerError, "failed to store example")
			return
		}
		s.respondJSON(w, http.StatusCreated, map[string]string{"id": example.ID})

	case http.MethodGet:
		count, err := s.examples.CountExamples(r.Context())
		if err != nil {
			s.respondError(w, http.StatusInternalServerError, "failed to count examples")
			return
		}
		s.respondJSON(w, http.StatusOK, map[string]int{"count": count})

	default:
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}
