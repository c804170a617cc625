package api

import (
	"net/http"

	"github.com/nalahealth/coach/internal/orchestrator"
)

// respondOrchestratorError maps pipeline failures onto HTTP responses.
// Internal failures deliberately return a generic message so provider
// error text never reaches clients.
func (s *Server) respondOrchestratorError(w http.ResponseWriter, err error) {
	switch orchestrator.CodeOf(err) {
	case orchestrator.CodeInvalidInput:
		s.respondError(w, http.StatusBadRequest, "invalid request")
	case orchestrator.CodeInvalidStage:
		s.respondError(w, http.StatusBadRequest, "stage number outside the program")
	case orchestrator.CodeNotFound:
		s.respondError(w, http.StatusNotFound, "conversation not found")
	case orchestrator.CodeGenerationFailed:
		s.respondError(w, http.StatusBadGateway, "failed to generate a reply")
	case orchestrator.CodePersistenceFailed:
		s.respondError(w, http.StatusInternalServerError, "failed to save the exchange")
	default:
		s.respondError(w, http.StatusInternalServerError, "internal error")
	}
}
