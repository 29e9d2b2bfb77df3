package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Aquilesorei/talon/internal/acquisition"
	"github.com/Aquilesorei/talon/internal/controller"
	"github.com/Aquilesorei/talon/internal/goals"
	"github.com/Aquilesorei/talon/internal/store"
	"github.com/Aquilesorei/talon/internal/utils"
)

type pinger interface {
	PingContext(ctx context.Context) error
}

type sessionController interface {
	Begin(ctx context.Context, target string, auto bool) error
	Select(ctx context.Context, target string) error
	Cancel(ctx context.Context) error
	Snapshot() controller.Snapshot
}

type Deps struct {
	DB         pinger
	Controller sessionController
	Repo       store.Repository
	Logger     *slog.Logger
}

func NewMux(d Deps) *http.ServeMux {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	mux := http.NewServeMux()
	registerHealthcheck(mux, d.DB, d.Logger)
	registerSession(mux, d.Controller, d.Logger)
	registerMeasurements(mux, d.Repo, d.Logger)
	registerProfile(mux, d.Repo, d.Logger)
	registerScale(mux, d.Repo, d.Logger)
	registerGoals(mux, d.Repo, d.Logger)
	registerDashboard(mux, d.Controller, d.Repo, d.Logger)
	return mux
}

// writeDomainError maps known errors to a status; anything else is a 500.
func writeDomainError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, acquisition.ErrSessionBusy),
		errors.Is(err, acquisition.ErrNotDiscovering):
		status = http.StatusConflict
	case errors.Is(err, controller.ErrNoSavedScale),
		errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, acquisition.ErrTransportUnavailable),
		errors.Is(err, controller.ErrNotRunning),
		errors.Is(err, acquisition.ErrSessionClosed):
		status = http.StatusServiceUnavailable
	case errors.Is(err, acquisition.ErrEmptyTarget),
		errors.Is(err, store.ErrInvalidProfile),
		errors.Is(err, goals.ErrInvalidGoal):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		logger.Error("request failed", "error", err)
		utils.WriteError(w, status, "internal error")
		return
	}
	utils.WriteError(w, status, err.Error())
}
