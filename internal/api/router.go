package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/atmx/edge-trader/internal/metrics"
)

// NewRouter returns the full HTTP handler: health, metrics and the
// /api/v1 routes.
func NewRouter(s *Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metrics.Middleware)
	r.Use(cors)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"edge-trader"}`))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// The status stream is long-lived; everything else gets a deadline.
		if s.hub != nil {
			r.Get("/ws", s.hub.HandleWS)
		}
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))
			s.Routes(r)
		})
	})
	return r
}

// Routes mounts the handlers on r.
func (s *Service) Routes(r chi.Router) {
	r.Get("/status", s.GetStatus)
	r.Post("/bot/start", s.StartBot)
	r.Post("/bot/stop", s.StopBot)
	r.Post("/mode", s.SwitchMode)
	r.Post("/paper/reset", s.ResetPaper)
	r.Post("/query", s.Query)

	r.Get("/config", s.GetConfig)
	r.Post("/config", s.SetConfig)

	r.Get("/trades", s.ListTrades)
	r.Get("/decisions", s.ListDecisions)
	r.Get("/analytics", s.GetAnalytics)
	r.Post("/analytics/apply", s.ApplySuggestion)
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
