package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/Aquilesorei/talon/internal/composition"
	"github.com/Aquilesorei/talon/internal/store"
	"github.com/Aquilesorei/talon/internal/utils"
)

func (h *repoHandlers) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.repo.GetProfile(r.Context())
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, p)
}

func (h *repoHandlers) handlePutProfile(w http.ResponseWriter, r *http.Request) {
	var p composition.Profile
	if err := utils.ReadJSON(r, &p); err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.repo.SaveProfile(r.Context(), p); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, p)
}

func (h *repoHandlers) handleGetScale(w http.ResponseWriter, r *http.Request) {
	dev, ok, err := h.repo.GetScaleDevice(r.Context())
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	if !ok {
		utils.WriteError(w, http.StatusNotFound, "no saved scale")
		return
	}
	utils.WriteJSON(w, http.StatusOK, dev)
}

func (h *repoHandlers) handleForgetScale(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.ForgetScaleDevice(r.Context()); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func registerProfile(mux *http.ServeMux, repo store.Repository, logger *slog.Logger) {
	h := &repoHandlers{repo: repo, logger: logger}
	mux.HandleFunc("GET /api/profile", h.handleGetProfile)
	mux.HandleFunc("PUT /api/profile", h.handlePutProfile)
}

func registerScale(mux *http.ServeMux, repo store.Repository, logger *slog.Logger) {
	h := &repoHandlers{repo: repo, logger: logger}
	mux.HandleFunc("GET /api/scale", h.handleGetScale)
	mux.HandleFunc("DELETE /api/scale", h.handleForgetScale)
}
