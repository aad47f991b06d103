package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// WorkspaceSweeper removes leftover job directories, returning how many
// were removed.
type WorkspaceSweeper interface {
	Sweep() (int, error)
}

// ActiveJobs reports in-flight identification jobs.
type ActiveJobs interface {
	ActiveJobCount() int
}

type AdminHandler struct {
	sweeper WorkspaceSweeper
	jobs    ActiveJobs
}

func NewAdminHandler(sweeper WorkspaceSweeper, jobs ActiveJobs) *AdminHandler {
	return &AdminHandler{sweeper: sweeper, jobs: jobs}
}

// SweepWorkspaces removes orphaned job directories left behind by crashes.
// Refused while jobs are running, since their directories would be swept
// out from under them.
func (h *AdminHandler) SweepWorkspaces(w http.ResponseWriter, r *http.Request) {
	if active := h.jobs.ActiveJobCount(); active > 0 {
		WriteErrorWithCode(w, http.StatusConflict, ErrConflict, "identification jobs are running")
		return
	}

	removed, err := h.sweeper.Sweep()
	if err != nil {
		WriteErrorWithCode(w, http.StatusInternalServerError, ErrInternal, "sweep failed: "+err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{"removed": removed})
}

// Routes registers admin routes on the given router.
func (h *AdminHandler) Routes(r chi.Router) {
	r.Post("/admin/workspaces/sweep", h.SweepWorkspaces)
}
