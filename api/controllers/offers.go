package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/speedy-van/dispatch/api/responses"
	"github.com/speedy-van/dispatch/api/validators"
	"github.com/speedy-van/dispatch/internal/assignment"
	"github.com/speedy-van/dispatch/pkg/db/models"
	"github.com/speedy-van/dispatch/pkg/enums"
	pkgerrors "github.com/speedy-van/dispatch/pkg/errors"
	"github.com/speedy-van/dispatch/pkg/logger"
)

type offerResponse struct {
	ID          uuid.UUID              `json:"id"`
	RouteID     uuid.UUID              `json:"route_id"`
	DriverID    uuid.UUID              `json:"driver_id"`
	Status      enums.AssignmentStatus `json:"status"`
	Round       int                    `json:"round"`
	ExpiresAt   time.Time              `json:"expires_at"`
	ClaimedAt   *time.Time             `json:"claimed_at,omitempty"`
	RespondedAt *time.Time             `json:"responded_at,omitempty"`
}

func toOfferResponse(a *models.Assignment) offerResponse {
	return offerResponse{
		ID:          a.ID,
		RouteID:     a.RouteID,
		DriverID:    a.DriverID,
		Status:      a.Status,
		Round:       a.Round,
		ExpiresAt:   a.ExpiresAt,
		ClaimedAt:   a.ClaimedAt,
		RespondedAt: a.RespondedAt,
	}
}

type offerActionRequest struct {
	DriverID uuid.UUID `json:"driver_id" validate:"required"`
}

func offerParams(r *http.Request) (uuid.UUID, offerActionRequest, error) {
	assignmentID, err := uuid.Parse(chi.URLParam(r, "assignmentId"))
	if err != nil {
		return uuid.Nil, offerActionRequest{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid assignment id")
	}
	var req offerActionRequest
	if err := validators.DecodeJSONBody(r, &req); err != nil {
		return uuid.Nil, offerActionRequest{}, err
	}
	return assignmentID, req, nil
}

// AcceptOffer claims the offer for the invited driver.
func AcceptOffer(svc assignment.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assignmentID, req, err := offerParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		claimed, err := svc.Accept(r.Context(), assignmentID, req.DriverID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toOfferResponse(claimed))
	}
}

// DeclineOffer closes the offer and cascades the route to the next
// candidate driver.
func DeclineOffer(svc assignment.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assignmentID, req, err := offerParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Decline(r.Context(), assignmentID, req.DriverID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "declined"})
	}
}

// CompleteOffer marks the claimed route as delivered.
func CompleteOffer(svc assignment.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assignmentID, req, err := offerParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		completed, err := svc.Complete(r.Context(), assignmentID, req.DriverID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toOfferResponse(completed))
	}
}
