package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/edgevision/inference-api/internal/api/middleware"
	"github.com/edgevision/inference-api/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	RateLimit *mw.RateLimit

	HealthHandler   http.HandlerFunc
	SubmitHandler   http.HandlerFunc
	ResultHandler   http.HandlerFunc
	DeleteHandler   http.HandlerFunc
	HistoryHandler  http.HandlerFunc
	ScheduleHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)
	r.Use(mw.Owner)

	r.Get("/health", orNotImplemented(deps.HealthHandler))

	r.Group(func(r chi.Router) {
		if deps.RateLimit != nil {
			r.Use(deps.RateLimit.Limit)
		}

		r.Post("/inferences", orNotImplemented(deps.SubmitHandler))
		r.Get("/inferences", orNotImplemented(deps.HistoryHandler))
		r.Get("/inferences/{inferenceID}", orNotImplemented(deps.ResultHandler))
		r.Delete("/inferences/{inferenceID}", orNotImplemented(deps.DeleteHandler))

		r.Put("/schedule/inference-history", orNotImplemented(deps.ScheduleHandler))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
