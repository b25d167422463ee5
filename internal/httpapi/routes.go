package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DoyleJ11/martillo-live/internal/coordinator"
	"github.com/DoyleJ11/martillo-live/internal/orchestrator"
	"github.com/DoyleJ11/martillo-live/internal/ws"
)

func SetupRoutes(co *coordinator.Coordinator, orch *orchestrator.Orchestrator, wsOpts ws.Options, log *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log.Named("http")))

	// Public routes
	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(co, wsOpts, log))
	r.Get("/payments/mock/{ref}", MockCheckout)

	r.Route("/auctions/{id}", func(r chi.Router) {
		r.Get("/state", AuctionState(co, orch))
		r.Post("/sync", SyncAuction(orch))
	})
	return r
}
