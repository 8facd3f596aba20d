package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/chatform/backend/internal/handler/health"
	"github.com/chatform/backend/internal/handler/ws"
	middlewarePkg "github.com/chatform/backend/internal/middleware"
	"github.com/chatform/backend/internal/service/gateway"
	"github.com/chatform/backend/internal/service/session"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(store *session.Store, gatewaySvc *gateway.Service) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	healthHandler := health.New(store, gatewaySvc)
	wsHandler := ws.New(store)

	r.Get("/health", healthHandler.HandleHealth)
	r.Get("/ws", wsHandler.HandleWS)

	r.Route("/api", func(api chi.Router) {
		healthHandler.RegisterRoutes(api)
	})

	return r
}
