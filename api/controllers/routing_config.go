package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/speedy-van/dispatch/api/responses"
	"github.com/speedy-van/dispatch/api/validators"
	"github.com/speedy-van/dispatch/internal/consolidation"
	"github.com/speedy-van/dispatch/internal/routingconfig"
	"github.com/speedy-van/dispatch/pkg/db/models"
	"github.com/speedy-van/dispatch/pkg/enums"
	pkgerrors "github.com/speedy-van/dispatch/pkg/errors"
	"github.com/speedy-van/dispatch/pkg/logger"
)

type routingConfigResponse struct {
	Mode                 enums.RoutingMode `json:"mode"`
	AutoRoutingEnabled   bool              `json:"auto_routing_enabled"`
	IntervalMinutes      int               `json:"interval_minutes"`
	MaxDropsPerRoute     int               `json:"max_drops_per_route"`
	MaxRouteDistanceKm   float64           `json:"max_route_distance_km"`
	AutoAssignDrivers    bool              `json:"auto_assign_drivers"`
	RequireApproval      bool              `json:"require_approval"`
	MinDropsForAutoRoute int               `json:"min_drops_for_auto_route"`
	UpdatedBy            *string           `json:"updated_by,omitempty"`
	UpdatedAt            time.Time         `json:"updated_at"`
}

func toRoutingConfigResponse(cfg *models.RoutingConfig) routingConfigResponse {
	return routingConfigResponse{
		Mode:                 cfg.Mode,
		AutoRoutingEnabled:   cfg.AutoRoutingEnabled,
		IntervalMinutes:      cfg.IntervalMinutes,
		MaxDropsPerRoute:     cfg.MaxDropsPerRoute,
		MaxRouteDistanceKm:   cfg.MaxRouteDistanceKm,
		AutoAssignDrivers:    cfg.AutoAssignDrivers,
		RequireApproval:      cfg.RequireApproval,
		MinDropsForAutoRoute: cfg.MinDropsForAutoRoute,
		UpdatedBy:            cfg.UpdatedBy,
		UpdatedAt:            cfg.UpdatedAt,
	}
}

// GetRoutingConfig returns the singleton routing configuration.
func GetRoutingConfig(svc routingconfig.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg, err := svc.Get(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toRoutingConfigResponse(cfg))
	}
}

type updateRoutingConfigRequest struct {
	IntervalMinutes      *int     `json:"interval_minutes" validate:"omitempty,min=1"`
	MaxDropsPerRoute     *int     `json:"max_drops_per_route" validate:"omitempty,min=1"`
	MaxRouteDistanceKm   *float64 `json:"max_route_distance_km" validate:"omitempty,gt=0"`
	AutoAssignDrivers    *bool    `json:"auto_assign_drivers"`
	RequireApproval      *bool    `json:"require_approval"`
	MinDropsForAutoRoute *int     `json:"min_drops_for_auto_route" validate:"omitempty,min=2"`
	UpdatedBy            string   `json:"updated_by" validate:"required"`
}

// UpdateRoutingConfig applies a partial update to the routing knobs.
// Mode flips are not accepted here; they go through SetRoutingMode.
func UpdateRoutingConfig(svc routingconfig.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req updateRoutingConfigRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		cfg, err := svc.Update(r.Context(), routingconfig.UpdateInput{
			IntervalMinutes:      req.IntervalMinutes,
			MaxDropsPerRoute:     req.MaxDropsPerRoute,
			MaxRouteDistanceKm:   req.MaxRouteDistanceKm,
			AutoAssignDrivers:    req.AutoAssignDrivers,
			RequireApproval:      req.RequireApproval,
			MinDropsForAutoRoute: req.MinDropsForAutoRoute,
		}, req.UpdatedBy)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toRoutingConfigResponse(cfg))
	}
}

type setRoutingModeRequest struct {
	Mode      string `json:"mode" validate:"required"`
	UpdatedBy string `json:"updated_by" validate:"required"`
}

// SetRoutingMode flips between auto and manual routing.
func SetRoutingMode(svc routingconfig.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req setRoutingModeRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		mode, err := enums.ParseRoutingMode(req.Mode)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid routing mode"))
			return
		}

		cfg, err := svc.SetMode(r.Context(), mode, req.UpdatedBy)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toRoutingConfigResponse(cfg))
	}
}

type ConsolidationRunner interface {
	Run(ctx context.Context, trigger string) consolidation.RunResult
}

// TriggerRun starts a consolidation pass on demand. The outcome,
// including "already running" and disabled states, travels in the
// result payload rather than the HTTP status.
func TriggerRun(runner ConsolidationRunner, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result := runner.Run(r.Context(), "manual")
		responses.WriteSuccess(w, result)
	}
}
