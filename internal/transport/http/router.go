package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"medishare/internal/platform/middleware"
)

// NewRouter wires all endpoints. Health and metrics are public; the API
// requires a bearer token from the back-office auth service.
func NewRouter(h *Handler, validator middleware.JWTValidator, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(api chi.Router) {
		api.Use(middleware.RequireAuth(validator, logger))

		api.Get("/documents/{documentID}/recipients", h.handleListRecipients)
		api.Post("/documents/{documentID}/finalize", h.handleFinalizeDocument)
		api.Get("/recipients/{recipientID}/notifications", h.handleListNotifications)
		api.Post("/notifications/{notificationID}/read", h.handleMarkNotificationRead)
	})

	return r
}
