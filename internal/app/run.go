package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Aquilesorei/talon/internal/acquisition"
	"github.com/Aquilesorei/talon/internal/ble"
	"github.com/Aquilesorei/talon/internal/config"
	"github.com/Aquilesorei/talon/internal/controller"
	"github.com/Aquilesorei/talon/internal/db"
	"github.com/Aquilesorei/talon/internal/httpapi"
	"github.com/Aquilesorei/talon/internal/indicator"
	"github.com/Aquilesorei/talon/internal/migrate"
	"github.com/Aquilesorei/talon/internal/mqtt"
	"github.com/Aquilesorei/talon/internal/recorder"
	"github.com/Aquilesorei/talon/internal/store"
	"github.com/Aquilesorei/talon/internal/views"
)

func Run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	logger.Info("config loaded",
		"appEnv", cfg.AppEnv,
		"logLevel", cfg.LogLevel.String(),
		"httpAddr", cfg.HTTPAddr,
		"bleAdapter", cfg.BLEAdapter,
		"bleFilterName", cfg.BLEFilterName,
		"bleCompanyID", cfg.BLECompanyID,
		"scaleDebounce", cfg.ScaleDebounce,
		"scaleTick", cfg.ScaleTick,
		"scaleTimeoutTicks", cfg.ScaleTimeoutTicks,
		"sqlitePath", cfg.SQLitePath,
		"mqttBroker", cfg.MQTTBroker,
		"mqttPort", cfg.MQTTPort,
		"mqttTopicPrefix", cfg.MQTTTopicPrefix,
		"stationID", cfg.StationID,
		"statusLEDPin", cfg.StatusLEDPin,
	)

	dbConn, err := db.Open(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(dbConn); closeErr != nil {
			logger.Error("db close", "error", closeErr)
		}
	}()

	if err := migrate.Run(ctx, dbConn, logger); err != nil {
		return err
	}
	repo := store.NewRepository(dbConn)

	if err := views.LoadTemplates(); err != nil {
		return err
	}

	mqttClient, err := mqtt.NewClient(cfg, logger)
	if err != nil {
		return err
	}
	forwarder := mqtt.NewEventForwarder(mqttClient, logger)
	rec := recorder.New(repo, mqttClient, logger)

	observers := []acquisition.Observer{rec.Observe, forwarder.Observe}

	var led *indicator.LED
	if cfg.StatusLEDPin != "" {
		led, err = indicator.Open(cfg.StatusLEDPin, logger)
		if err != nil {
			logger.Warn("status led unavailable (continuing without it)", "pin", cfg.StatusLEDPin, "error", err)
		} else {
			observers = append(observers, led.Observe)
		}
	}

	scanner := ble.NewScanner(ble.Options{
		Adapter: cfg.BLEAdapter,
		Filter: ble.Filter{
			LocalName: cfg.BLEFilterName,
			CompanyID: cfg.BLECompanyID,
		},
		Logger: logger,
	})

	ctrl := controller.New(scanner, acquisition.Options{
		Debounce:          cfg.ScaleDebounce,
		Tick:              cfg.ScaleTick,
		TimeoutTicks:      cfg.ScaleTimeoutTicks,
		SentinelImpedance: cfg.ScaleSentinelImpedance,
		BufferSize:        cfg.ScaleBufferSize,
		Sink:              rec,
	}, repo, logger, observers...)
	scanner.SetHandlers(ctrl.Ingest, ctrl.TransportLost)

	workCtx, stopWork := context.WithCancel(ctx)
	var wg sync.WaitGroup
	spawn := func(f func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f(workCtx)
		}()
	}
	spawn(func(ctx context.Context) { _ = ctrl.Run(ctx) })

	// The forwarder outlives the session so its final event is published.
	fwdCtx, stopForwarder := context.WithCancel(context.Background())
	defer stopForwarder()
	fwdDone := make(chan struct{})
	go func() {
		defer close(fwdDone)
		forwarder.Run(fwdCtx)
	}()
	if led != nil {
		spawn(led.Run)
	}
	spawn(func(ctx context.Context) {
		// The broker being down must not block the station.
		if err := mqttClient.Connect(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("mqtt connection failed (continuing without mqtt)", "error", err)
		}
	})

	mux := httpapi.NewMux(httpapi.Deps{
		DB:         dbConn,
		Controller: ctrl,
		Repo:       repo,
		Logger:     logger,
	})
	srv := httpapi.NewServer(cfg.HTTPAddr, mux, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listening", "addr", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
		if errors.Is(serveErr, http.ErrServerClosed) {
			serveErr = nil
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if serveErr == nil && ctx.Err() != nil {
		logger.Info("http shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	logger.Info("stopping acquisition")
	stopWork()
	wg.Wait()
	stopForwarder()
	<-fwdDone
	_ = scanner.StopDiscovery()
	rec.Wait()

	logger.Info("mqtt disconnecting")
	mqttClient.Disconnect()

	if serveErr != nil {
		return serveErr
	}
	return ctx.Err()
}
