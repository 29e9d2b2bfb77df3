package httpapi

import (
	"bytes"
	"log/slog"
	"net/http"

	"github.com/Aquilesorei/talon/internal/store"
	"github.com/Aquilesorei/talon/internal/utils"
	"github.com/Aquilesorei/talon/internal/views"
)

const dashboardHistory = 20

type dashboardHandlers struct {
	ctrl   sessionController
	repo   store.Repository
	logger *slog.Logger
}

func (h *dashboardHandlers) data(r *http.Request) (*views.DashboardData, error) {
	ctx := r.Context()
	profile, err := h.repo.GetProfile(ctx)
	if err != nil {
		return nil, err
	}
	items, err := h.repo.ListMeasurements(ctx, dashboardHistory)
	if err != nil {
		return nil, err
	}
	data := &views.DashboardData{
		Session:      h.ctrl.Snapshot(),
		Profile:      profile,
		Measurements: views.NewMeasurementRows(items, profile.Male),
	}
	dev, ok, err := h.repo.GetScaleDevice(ctx)
	if err != nil {
		return nil, err
	}
	if ok {
		data.Scale = &dev
	}
	return data, nil
}

func (h *dashboardHandlers) render(w http.ResponseWriter, r *http.Request, fn func(*bytes.Buffer, *views.DashboardData) error) {
	data, err := h.data(r)
	if err != nil {
		h.logger.Error("dashboard: load failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load dashboard")
		return
	}
	var buf bytes.Buffer
	if err := fn(&buf, data); err != nil {
		h.logger.Error("dashboard template render failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to render page")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func (h *dashboardHandlers) handleDashboard(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, func(b *bytes.Buffer, d *views.DashboardData) error { return views.RenderDashboard(b, d) })
}

func (h *dashboardHandlers) handleHistory(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, func(b *bytes.Buffer, d *views.DashboardData) error { return views.RenderHistoryPartial(b, d) })
}

func registerDashboard(mux *http.ServeMux, ctrl sessionController, repo store.Repository, logger *slog.Logger) {
	h := &dashboardHandlers{ctrl: ctrl, repo: repo, logger: logger}
	mux.HandleFunc("GET /{$}", h.handleDashboard)
	mux.HandleFunc("GET /partials/history", h.handleHistory)
}
