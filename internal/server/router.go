// Package server assembles the HTTP surface of the registration service.
package server

import (
	"fmt"
	"net/http"
	"time"

	"ms-registration/internal/auth"
	"ms-registration/internal/dashboard/dashboard_api"
	"ms-registration/internal/event/event_api"
	"ms-registration/internal/logger"
	"ms-registration/internal/registration/registration_api"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Deps struct {
	Verifier       auth.TokenVerifier
	Events         *event_api.Handler
	Registrations  *registration_api.Handler
	Dashboard      *dashboard_api.Handler
	Logger         *logger.Logger
	AllowedOrigins []string
	// Ready reports whether backing stores are reachable; nil means always.
	Ready func(r *http.Request) error
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(d.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if d.Ready != nil {
			if err := d.Ready(req); err != nil {
				http.Error(w, "unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		d.Events.RegisterPublicRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(d.Verifier, d.Logger))
			d.Events.RegisterRoutes(r)
			d.Registrations.RegisterRoutes(r)
			d.Dashboard.RegisterRoutes(r)
		})
	})

	return r
}

func requestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.LogAPI(r.Method, r.URL.Path, fmt.Sprint(ww.Status()), time.Since(start).String())
		})
	}
}
