// Package httptransport assembles the module routers into the server's
// handler. Each module registers its own subtree with its own middleware
// stack; this file only owns the cross-cutting endpoints.
package httptransport

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"quizdeck/internal/platform/redis"
	"quizdeck/internal/transport/http/shared"
)

// Registrar is implemented by every module handler.
type Registrar interface {
	Register(r chi.Router)
}

// Deps carries what the router needs beyond the module handlers.
type Deps struct {
	Logger   *slog.Logger
	DB       *sql.DB
	Redis    *redis.Client
	Handlers []Registrar
}

// NewRouter builds the full HTTP handler: module routes, health and
// metrics.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	for _, h := range deps.Handlers {
		h.Register(r)
	}

	r.Get("/healthz", healthHandler(deps))
	r.Handle("/metrics", promhttp.Handler())

	return r
}

type healthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
}

func healthHandler(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok", Components: map[string]string{}}
		status := http.StatusOK

		if deps.DB != nil {
			if err := deps.DB.PingContext(ctx); err != nil {
				resp.Components["postgres"] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
			} else {
				resp.Components["postgres"] = "ok"
			}
		}
		if deps.Redis != nil {
			if err := deps.Redis.Health(ctx); err != nil {
				resp.Components["redis"] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
			} else {
				resp.Components["redis"] = "ok"
			}
		}

		shared.WriteJSON(w, status, resp)
	}
}
