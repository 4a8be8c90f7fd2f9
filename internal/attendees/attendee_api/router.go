package attendee_api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"ms-checkin/internal/auth"
	"ms-checkin/internal/logger"
	"ms-checkin/internal/utils"
)

// NewRouter wires the public health check and the staff API.
func NewRouter(h *Handler, authn *auth.Authenticator, allowedOrigins []string, log *logger.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// --- Public Routes ---
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteSuccess(w, http.StatusOK, "ok", nil)
	})

	// --- Protected Routes ---
	r.Group(func(r chi.Router) {
		r.Use(authn.Middleware)
		h.RegisterRoutes(r)
	})
	return r
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Route("/attendees", func(r chi.Router) {
			r.Get("/", h.SearchAttendees)
			r.Get("/all", h.ListAttendees)
			r.Get("/export.csv", h.ExportCSV)
			r.Get("/stats", h.Stats)
			r.Get("/{id}", h.GetAttendee)
			r.Put("/{id}", h.UpdateAttendee)
			r.Get("/{id}/badge.png", h.Badge)
		})
		r.Post("/checkin", h.Checkin)
		r.Post("/import", h.RunImport)
		r.Get("/import/last", h.LastImport)
		r.Post("/raffle/draw", h.Draw)
		r.Get("/raffle/pool", h.Pool)
	})
}

func requestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			log.LogAPI(r.Method, r.URL.Path, status, time.Since(start))
		})
	}
}
