package api

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/okian/callout/internal/domain/model"
	"github.com/okian/callout/internal/domain/wheel"
)

type spinResponse struct {
	Spin     model.PunishmentSpin `json:"spin"`
	Text     string               `json:"text,omitempty"`
	Verified bool                 `json:"verified"`
	Mismatch string               `json:"mismatch,omitempty"`
}

// handleGetSpin handles GET /spins/:id. The stored snapshot is replayed so
// clients can see the selection was derived from the seed.
func (s *Server) handleGetSpin(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	spin, err := s.deps.Spin(r.Context(), ps.ByName("id"))
	if err != nil {
		s.writeServiceError(r.Context(), w, err)
		return
	}
	resp := spinResponse{Spin: spin}
	picked, err := wheel.Replay(spin)
	if err != nil {
		resp.Mismatch = err.Error()
	} else {
		resp.Verified = true
		resp.Text = picked.Text
	}
	writeJSON(w, http.StatusOK, resp)
}
