package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/speedy-van/dispatch/api/controllers"
	"github.com/speedy-van/dispatch/api/middleware"
	"github.com/speedy-van/dispatch/internal/assignment"
	"github.com/speedy-van/dispatch/internal/manualroutes"
	"github.com/speedy-van/dispatch/internal/routingconfig"
	"github.com/speedy-van/dispatch/pkg/config"
	"github.com/speedy-van/dispatch/pkg/db"
	"github.com/speedy-van/dispatch/pkg/logger"
	"github.com/speedy-van/dispatch/pkg/pubsub"
	"github.com/speedy-van/dispatch/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	pubsubClient *pubsub.Client,
	registry *prometheus.Registry,
	configService routingconfig.Service,
	routesService manualroutes.Service,
	offersService assignment.Service,
	consolidationService controllers.ConsolidationRunner,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readinessDeps(dbP, redisClient, pubsubClient)))
	})

	if registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	// A typed nil must not reach the middleware as a non-nil interface.
	var idemStore redis.IdempotencyStore
	if redisClient != nil {
		idemStore = redisClient
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Idempotency(idemStore, logg))

		r.Route("/admin", func(r chi.Router) {
			r.Route("/routing", func(r chi.Router) {
				r.Get("/config", controllers.GetRoutingConfig(configService, logg))
				r.Put("/config", controllers.UpdateRoutingConfig(configService, logg))
				r.Post("/mode", controllers.SetRoutingMode(configService, logg))
				r.Post("/run", controllers.TriggerRun(consolidationService, logg))
			})
			r.Route("/routes", func(r chi.Router) {
				r.Post("/preview", controllers.PreviewRoute(routesService, logg))
				r.Post("/", controllers.CreateRoute(routesService, logg))
				r.Post("/{approvalId}/approve", controllers.ApproveRoute(routesService, logg))
				r.Post("/{approvalId}/reject", controllers.RejectRoute(routesService, logg))
			})
		})

		r.Route("/driver/offers/{assignmentId}", func(r chi.Router) {
			r.Post("/accept", controllers.AcceptOffer(offersService, logg))
			r.Post("/decline", controllers.DeclineOffer(offersService, logg))
			r.Post("/complete", controllers.CompleteOffer(offersService, logg))
		})
	})

	return r
}

// readinessDeps tolerates nil clients so partial wiring in tests and
// local runs does not fail readiness on components that are not used.
func readinessDeps(dbP db.Pinger, redisClient *redis.Client, pubsubClient *pubsub.Client) map[string]controllers.Pinger {
	deps := map[string]controllers.Pinger{}
	if dbP != nil {
		deps["postgres"] = dbP
	}
	if redisClient != nil {
		deps["redis"] = redisClient
	}
	if pubsubClient != nil {
		deps["pubsub"] = pubsubClient
	}
	return deps
}
