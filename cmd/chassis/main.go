// Package main boots the chassis gateway: schema registration, two-phase
// storage startup, the HTTP dispatcher and the websocket session protocol.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"

	"github.com/chassisworks/chassis/internal/agents"
	"github.com/chassisworks/chassis/internal/config"
	"github.com/chassisworks/chassis/internal/dispatcher"
	"github.com/chassisworks/chassis/internal/mail"
	"github.com/chassisworks/chassis/internal/metrics"
	"github.com/chassisworks/chassis/internal/middleware"
	"github.com/chassisworks/chassis/internal/schema"
	"github.com/chassisworks/chassis/internal/scrambler"
	"github.com/chassisworks/chassis/internal/session"
	"github.com/chassisworks/chassis/internal/sessionstore"
	"github.com/chassisworks/chassis/internal/storage"
	"github.com/chassisworks/chassis/pkg/logger"
)

func main() {
	configPath := flag.String("config", filepath.Join("config", "chassis.yaml"), "Path to configuration file")
	flag.Parse()

	// Local development convenience; a missing .env is fine.
	_ = godotenv.Load()

	cfg, err := config.LoadFromPath(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	rootLog := logger.New("chassis", logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	registry := schema.NewRegistry(rootLog.Named("schema"))
	registry.Init()
	if err := registry.SetBusinessLogic(systemServices()); err != nil {
		rootLog.WithError(err).Fatal("schema registration failed")
	}

	scr, err := scrambler.New(cfg.Scrambler)
	if err != nil {
		rootLog.WithError(err).Fatal("scrambler setup failed")
	}

	sessions, err := sessionstore.NewRedis(cfg.Redis, cfg.Server.ServerTag, scr.AccessTTL(), rootLog.Named("sessionstore"))
	if err != nil {
		rootLog.WithError(err).Fatal("session store connection failed")
	}
	defer sessions.Close()

	connector := storage.NewConnector(cfg.Storage, rootLog.Named("storage"))
	factory := agents.NewFactory(scr, sessions, connector, mail.NewLogSender(rootLog.Named("mail")))

	// Two-phase startup: collect every entity definition first, then hand
	// them to the connector in one explicit call.
	entities, err := registry.EntityDefinitions(factory.Bundle())
	if err != nil {
		rootLog.WithError(err).Fatal("entity collection failed")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if cfg.Storage.DSN != "" {
		if err := connector.Connect(ctx, entities); err != nil {
			rootLog.WithError(err).Fatal("storage connection failed")
		}
		defer connector.Close()
	} else {
		rootLog.Warn("no database configured, repository capabilities disabled")
	}

	services, err := registry.Services()
	if err != nil {
		rootLog.WithError(err).Fatal("registry not initialized")
	}
	serviceNames, err := registry.ServiceNames()
	if err != nil {
		rootLog.WithError(err).Fatal("registry not initialized")
	}

	d := dispatcher.New(services, factory, scr, sessions, dispatcher.Options{
		APIPrefix:          cfg.Server.APIPrefix,
		SupportedLanguages: cfg.Languages.Supported,
		DefaultLanguage:    cfg.Languages.Default,
	}, rootLog.Named("dispatcher"))

	ws := session.New(sessions, scr, cfg.Server.ServerTag, serviceNames, rootLog.Named("session"))

	router := mux.NewRouter()
	router.Handle("/metrics", metrics.Handler())
	router.HandleFunc(cfg.Server.WSPath, ws.HandleWS)
	router.PathPrefix(cfg.Server.APIPrefix).HandlerFunc(d.Handle)

	cors := middleware.NewCORSMiddleware(cfg.Server.AllowedOrigins)
	tracing := middleware.NewTracingMiddleware(rootLog.Named("http"))
	router.Use(cors.Handler, tracing.Handler, middleware.MetricsMiddleware)

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		rootLog.WithField("addr", cfg.Addr()).Info("gateway listening")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			rootLog.WithError(err).Fatal("server error")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	rootLog.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		rootLog.WithError(err).Error("shutdown failed")
	}
	registry.Destroy()
}
