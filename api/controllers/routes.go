package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/speedy-van/dispatch/api/responses"
	"github.com/speedy-van/dispatch/api/validators"
	"github.com/speedy-van/dispatch/internal/manualroutes"
	pkgerrors "github.com/speedy-van/dispatch/pkg/errors"
	"github.com/speedy-van/dispatch/pkg/logger"
)

const maxRejectReasonLen = 500

type previewRouteRequest struct {
	BookingIDs []uuid.UUID `json:"booking_ids" validate:"required,min=1"`
}

// PreviewRoute returns the would-be stop order without persisting.
func PreviewRoute(svc manualroutes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req previewRouteRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		preview, err := svc.Preview(r.Context(), req.BookingIDs)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, preview)
	}
}

type createRouteRequest struct {
	BookingIDs   []uuid.UUID `json:"booking_ids" validate:"required,min=1"`
	StartTime    *time.Time  `json:"start_time"`
	AdminID      string      `json:"admin_id" validate:"required"`
	SkipApproval bool        `json:"skip_approval"`
}

// CreateRoute builds a route from hand-picked bookings. Domain
// rejections come back as success=false payloads, not HTTP errors.
func CreateRoute(svc manualroutes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createRouteRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := manualroutes.CreateInput{
			BookingIDs:   req.BookingIDs,
			AdminID:      req.AdminID,
			SkipApproval: req.SkipApproval,
		}
		if req.StartTime != nil {
			input.StartTime = *req.StartTime
		}

		result, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status := http.StatusOK
		if result.Success {
			status = http.StatusCreated
		}
		responses.WriteSuccessStatus(w, status, result)
	}
}

type decideApprovalRequest struct {
	AdminID string `json:"admin_id" validate:"required"`
	Reason  string `json:"reason"`
}

// ApproveRoute clears the approval gate and dispatches driver offers.
func ApproveRoute(svc manualroutes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		approvalID, err := uuid.Parse(chi.URLParam(r, "approvalId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid approval id"))
			return
		}

		var req decideApprovalRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Approve(r.Context(), approvalID, req.AdminID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "approved"})
	}
}

// RejectRoute cancels the held route and releases its bookings.
func RejectRoute(svc manualroutes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		approvalID, err := uuid.Parse(chi.URLParam(r, "approvalId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid approval id"))
			return
		}

		var req decideApprovalRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		reason := validators.SanitizeString(req.Reason, maxRejectReasonLen)

		if err := svc.Reject(r.Context(), approvalID, req.AdminID, reason); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "rejected"})
	}
}
