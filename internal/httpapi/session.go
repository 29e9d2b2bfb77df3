package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/Aquilesorei/talon/internal/utils"
)

type beginRequest struct {
	Target string `json:"target"`
	Auto   bool   `json:"auto"`
}

type selectRequest struct {
	Address string `json:"address"`
}

type sessionHandlers struct {
	ctrl   sessionController
	logger *slog.Logger
}

func (h *sessionHandlers) handleGet(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, h.ctrl.Snapshot())
}

func (h *sessionHandlers) handleBegin(w http.ResponseWriter, r *http.Request) {
	var req beginRequest
	if err := utils.ReadJSON(r, &req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.ctrl.Begin(r.Context(), req.Target, req.Auto); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	utils.WriteJSON(w, http.StatusAccepted, h.ctrl.Snapshot())
}

func (h *sessionHandlers) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := utils.ReadJSON(r, &req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.ctrl.Select(r.Context(), req.Address); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, h.ctrl.Snapshot())
}

func (h *sessionHandlers) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.Cancel(r.Context()); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, h.ctrl.Snapshot())
}

func registerSession(mux *http.ServeMux, ctrl sessionController, logger *slog.Logger) {
	h := &sessionHandlers{ctrl: ctrl, logger: logger}
	mux.HandleFunc("GET /api/session", h.handleGet)
	mux.HandleFunc("POST /api/session/begin", h.handleBegin)
	mux.HandleFunc("POST /api/session/select", h.handleSelect)
	mux.HandleFunc("POST /api/session/cancel", h.handleCancel)
}
