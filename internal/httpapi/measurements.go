package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Aquilesorei/talon/internal/composition"
	"github.com/Aquilesorei/talon/internal/store"
	"github.com/Aquilesorei/talon/internal/utils"
)

const maxNotesLen = 2000

type measurementView struct {
	store.Measurement
	BMICategory     string `json:"bmi_category"`
	BodyFatCategory string `json:"body_fat_category"`
}

type repoHandlers struct {
	repo   store.Repository
	logger *slog.Logger
}

func (h *repoHandlers) male(r *http.Request) bool {
	p, err := h.repo.GetProfile(r.Context())
	if err != nil {
		return composition.DefaultProfile().Male
	}
	return p.Male
}

func view(m store.Measurement, male bool) measurementView {
	return measurementView{
		Measurement:     m,
		BMICategory:     string(m.Composition.BMICategory()),
		BodyFatCategory: m.Composition.BodyFatCategory(male),
	}
}

func (h *repoHandlers) handleList(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	items, err := h.repo.ListMeasurements(r.Context(), limit)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	male := h.male(r)
	views := make([]measurementView, 0, len(items))
	for _, m := range items {
		views = append(views, view(m, male))
	}
	utils.WriteJSON(w, http.StatusOK, map[string]any{
		"limit": limit,
		"items": views,
	})
}

func (h *repoHandlers) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "measurement")
	if !ok {
		return
	}
	m, err := h.repo.GetMeasurement(r.Context(), id)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, view(m, h.male(r)))
}

func (h *repoHandlers) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "measurement")
	if !ok {
		return
	}
	if err := h.repo.DeleteMeasurement(r.Context(), id); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type notesRequest struct {
	Notes *string `json:"notes"`
}

func (h *repoHandlers) handlePatch(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "measurement")
	if !ok {
		return
	}
	var req notesRequest
	if err := utils.ReadJSON(r, &req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Notes == nil {
		utils.WriteError(w, http.StatusBadRequest, "'notes' is required")
		return
	}
	if len(*req.Notes) > maxNotesLen {
		utils.WriteError(w, http.StatusBadRequest, "'notes' is too long")
		return
	}
	m, err := h.repo.UpdateMeasurementNotes(r.Context(), id, *req.Notes)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, view(m, h.male(r)))
}

func pathID(w http.ResponseWriter, r *http.Request, what string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		utils.WriteError(w, http.StatusBadRequest, "invalid "+what+" id")
		return 0, false
	}
	return id, true
}

func parseLimit(r *http.Request) (int, error) {
	s := r.URL.Query().Get("limit")
	if s == "" {
		return store.DefaultListLimit, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.New("invalid 'limit' (expected integer)")
	}
	if n <= 0 {
		return 0, errors.New("'limit' must be > 0")
	}
	if n > store.MaxListLimit {
		return 0, errors.New("'limit' must be <= 1000")
	}
	return n, nil
}

func registerMeasurements(mux *http.ServeMux, repo store.Repository, logger *slog.Logger) {
	h := &repoHandlers{repo: repo, logger: logger}
	mux.HandleFunc("GET /api/measurements", h.handleList)
	mux.HandleFunc("GET /api/measurements/{id}", h.handleGet)
	mux.HandleFunc("PATCH /api/measurements/{id}", h.handlePatch)
	mux.HandleFunc("DELETE /api/measurements/{id}", h.handleDelete)
}
