package api

import (
	"net/http"

	"github.com/dgallion1/chunkgate/internal/config"
)

func (s *Server) handleLLMStats(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"stats": s.orchestrator.LLMStats().Snapshot(),
	}
	if b := s.orchestrator.Budget(); b != nil {
		resp["budget"] = map[string]any{
			"used":      b.Used(),
			"max":       b.Max(),
			"exhausted": b.Exhausted(),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStrategies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"strategies": config.Strategies()})
}
