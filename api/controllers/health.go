package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/speedy-van/dispatch/api/responses"
	"github.com/speedy-van/dispatch/pkg/config"
	pkgerrors "github.com/speedy-van/dispatch/pkg/errors"
	"github.com/speedy-van/dispatch/pkg/logger"
)

const readinessTimeout = 2 * time.Second

// Pinger is the readiness contract each infra client satisfies.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-SpeedyVan-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings each dependency; any failure makes the instance
// not ready.
func HealthReady(cfg *config.Config, logg *logger.Logger, deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-SpeedyVan-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		failing := map[string]string{}
		for name, dep := range deps {
			if dep == nil {
				continue
			}
			if err := dep.Ping(ctx); err != nil {
				failing[name] = err.Error()
			}
		}
		if len(failing) > 0 {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeDependency, "dependencies unavailable").WithDetails(failing))
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
