package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/Aquilesorei/talon/internal/goals"
	"github.com/Aquilesorei/talon/internal/store"
	"github.com/Aquilesorei/talon/internal/utils"
)

type goalRequest struct {
	Type     goals.Type `json:"type"`
	Target   float64    `json:"target"`
	Start    *float64   `json:"start"`
	Deadline *time.Time `json:"deadline"`
}

// goalView adds progress against the latest stored measurement, when that
// measurement carries the goal's value.
type goalView struct {
	goals.Goal
	Current  *float64 `json:"current,omitempty"`
	Progress *float64 `json:"progress,omitempty"`
}

func (h *repoHandlers) latest(ctx context.Context) (store.Measurement, bool) {
	items, err := h.repo.ListMeasurements(ctx, 1)
	if err != nil {
		h.logger.Warn("latest measurement unavailable", "error", err)
		return store.Measurement{}, false
	}
	if len(items) == 0 {
		return store.Measurement{}, false
	}
	return items[0], true
}

func goalViewFor(g goals.Goal, latest store.Measurement, have bool) goalView {
	v := goalView{Goal: g}
	if !have {
		return v
	}
	current, ok := goals.Current(g.Type, latest.Weight, latest.Composition)
	if !ok {
		return v
	}
	progress := g.Progress(current)
	v.Current, v.Progress = &current, &progress
	return v
}

func (h *repoHandlers) handleListGoals(w http.ResponseWriter, r *http.Request) {
	status := goals.Status(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		utils.WriteError(w, http.StatusBadRequest, "invalid 'status' (expected active, achieved or abandoned)")
		return
	}
	items, err := h.repo.ListGoals(r.Context(), status)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	latest, have := h.latest(r.Context())
	out := make([]goalView, 0, len(items))
	for _, g := range items {
		out = append(out, goalViewFor(g, latest, have))
	}
	utils.WriteJSON(w, http.StatusOK, map[string]any{"items": out})
}

func (h *repoHandlers) handleCreateGoal(w http.ResponseWriter, r *http.Request) {
	var req goalRequest
	if err := utils.ReadJSON(r, &req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	latest, have := h.latest(r.Context())
	g := goals.Goal{Type: req.Type, Target: req.Target, Deadline: req.Deadline}
	switch {
	case req.Start != nil:
		g.Start = *req.Start
	case have:
		g.Start, _ = goals.Current(req.Type, latest.Weight, latest.Composition)
	}
	if g.Start == 0 && req.Type.Valid() {
		utils.WriteError(w, http.StatusBadRequest, "'start' is required when no measurement provides it")
		return
	}
	created, err := h.repo.CreateGoal(r.Context(), g)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	h.logger.Info("goal created", "goal_id", created.ID, "type", created.Type, "target", created.Target, "start", created.Start)
	utils.WriteJSON(w, http.StatusCreated, goalViewFor(created, latest, have))
}

func (h *repoHandlers) handleGetGoal(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "goal")
	if !ok {
		return
	}
	h.writeGoal(w, r, id)
}

func (h *repoHandlers) handleUpdateGoal(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "goal")
	if !ok {
		return
	}
	var req goalRequest
	if err := utils.ReadJSON(r, &req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	cur, err := h.repo.GetGoal(r.Context(), id)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	cur.Target, cur.Deadline = req.Target, req.Deadline
	if req.Start != nil {
		cur.Start = *req.Start
	}
	if _, err := h.repo.UpdateGoal(r.Context(), cur); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	h.writeGoal(w, r, id)
}

func (h *repoHandlers) handleDeleteGoal(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "goal")
	if !ok {
		return
	}
	if err := h.repo.DeleteGoal(r.Context(), id); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *repoHandlers) setGoalStatus(status goals.Status) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "goal")
		if !ok {
			return
		}
		if err := h.repo.SetGoalStatus(r.Context(), id, status, time.Now()); err != nil {
			writeDomainError(w, h.logger, err)
			return
		}
		h.logger.Info("goal status changed", "goal_id", id, "status", status)
		h.writeGoal(w, r, id)
	}
}

func (h *repoHandlers) writeGoal(w http.ResponseWriter, r *http.Request, id int64) {
	g, err := h.repo.GetGoal(r.Context(), id)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	latest, have := h.latest(r.Context())
	utils.WriteJSON(w, http.StatusOK, goalViewFor(g, latest, have))
}

func registerGoals(mux *http.ServeMux, repo store.Repository, logger *slog.Logger) {
	h := &repoHandlers{repo: repo, logger: logger}
	mux.HandleFunc("GET /api/goals", h.handleListGoals)
	mux.HandleFunc("POST /api/goals", h.handleCreateGoal)
	mux.HandleFunc("GET /api/goals/{id}", h.handleGetGoal)
	mux.HandleFunc("PUT /api/goals/{id}", h.handleUpdateGoal)
	mux.HandleFunc("DELETE /api/goals/{id}", h.handleDeleteGoal)
	mux.HandleFunc("POST /api/goals/{id}/achieve", h.setGoalStatus(goals.StatusAchieved))
	mux.HandleFunc("POST /api/goals/{id}/abandon", h.setGoalStatus(goals.StatusAbandoned))
	mux.HandleFunc("POST /api/goals/{id}/reactivate", h.setGoalStatus(goals.StatusActive))
}
