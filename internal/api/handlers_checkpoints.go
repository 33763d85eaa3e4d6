package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/chunkgate/internal/checkpoint"
)

type checkpointView struct {
	*checkpoint.State
	Phase checkpoint.Phase `json:"phase"`
}

func (s *Server) view(st *checkpoint.State) checkpointView {
	return checkpointView{State: st, Phase: checkpoint.PhaseOf(st, s.orchestrator.Active(st.DocumentID))}
}

func (s *Server) handleListCheckpoints(w http.ResponseWriter, r *http.Request) {
	states, err := s.orchestrator.Store().List(r.Context())
	if err != nil {
		jsonError(w, "failed to list checkpoints: "+err.Error(), http.StatusInternalServerError)
		return
	}
	views := make([]checkpointView, 0, len(states))
	for i := range states {
		views = append(views, s.view(&states[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"checkpoints": views})
}

func (s *Server) handleGetCheckpoint(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	st, err := s.orchestrator.Store().Load(r.Context(), docID)
	if err != nil {
		jsonError(w, "failed to load checkpoint: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if st == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"document_id": docID,
			"phase":       checkpoint.PhaseOf(nil, s.orchestrator.Active(docID)),
		})
		return
	}
	writeJSON(w, http.StatusOK, s.view(st))
}

// handleDeleteCheckpoint forces the next run of a document to start over.
func (s *Server) handleDeleteCheckpoint(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	if s.orchestrator.Active(docID) {
		jsonError(w, "document is being processed; stop the run first", http.StatusConflict)
		return
	}
	if err := s.orchestrator.Store().Delete(r.Context(), docID); err != nil {
		jsonError(w, "failed to delete checkpoint: "+err.Error(), http.StatusInternalServerError)
		return
	}
	s.log.Info("checkpoint deleted", "doc_id", docID)
	writeJSON(w, http.StatusOK, map[string]any{"document_id": docID, "deleted": true})
}
