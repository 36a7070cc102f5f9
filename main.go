package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ms-registration/internal/app"
	"ms-registration/internal/config"
	"ms-registration/internal/dashboard/dashboard_api"
	"ms-registration/internal/event/event_api"
	"ms-registration/internal/logger"
	"ms-registration/internal/registration/registration_api"
	"ms-registration/internal/server"

	"github.com/joho/godotenv"
)

func main() {
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.Log.Dir, cfg.Log.Service)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()

	if envErr != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("APP", "Starting Registration Service initialization")
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("APP", fmt.Sprintf("Initialization failed: %v", err))
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error("APP", fmt.Sprintf("Error releasing resources: %v", err))
		}
	}()

	// Finish any cascade a previous instance left half done.
	if n, err := a.Events.RepairCancellations(ctx); err != nil {
		log.Error("EVENT", fmt.Sprintf("Startup cancellation repair incomplete (%d repaired): %v", n, err))
	}

	verifier, err := a.Verifier(ctx)
	if err != nil {
		log.Fatal("AUTH", fmt.Sprintf("Failed to set up token verification: %v", err))
	}

	router := server.NewRouter(server.Deps{
		Verifier:       verifier,
		Events:         event_api.NewHandler(a.Events, log),
		Registrations:  registration_api.NewHandler(a.Registrations, a.Events.OrganizerOf, a.Emitter, log),
		Dashboard:      dashboard_api.NewHandler(a.Dashboard, a.Events.OrganizerOf, log),
		Logger:         log,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Ready:          func(r *http.Request) error { return a.Ping(r.Context()) },
	})

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("Registration Service running on %s", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-ctx.Done()

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		log.Info("HTTP", "Registration Service shutdown complete")
	}
}
