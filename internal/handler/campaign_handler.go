package handler

import (
	"net/http"

	"github.com/boddenberg/influmatch-bfa-go/internal/domain"
	"github.com/boddenberg/influmatch-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Campaigns & collaboration requests
// ============================================================

// listCampaignsHandler returns the campaigns visible to the caller's role.
func listCampaignsHandler(sessions *service.SessionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/campaigns")
		defer span.End()

		view, err := sessions.Resolve(ctx, SessionFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"data":  view.Campaigns,
			"total": len(view.Campaigns),
		})
	}
}

func createCampaignHandler(svc *service.CampaignService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/campaigns")
		defer span.End()

		var req domain.CreateCampaignRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		campaign, err := svc.CreateCampaign(ctx, SessionFromContext(ctx), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusCreated, campaign)
	}
}

func applyToCampaignHandler(svc *service.CampaignService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/campaigns/{id}/requests")
		defer span.End()

		campaignID := chi.URLParam(r, "id")
		span.SetAttributes(attribute.String("campaign.id", campaignID))

		var req domain.ApplyRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		cr, err := svc.ApplyToCampaign(ctx, SessionFromContext(ctx), campaignID, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusCreated, cr)
	}
}

func updateRequestStatusHandler(svc *service.CampaignService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/requests/{id}/status")
		defer span.End()

		requestID := chi.URLParam(r, "id")
		span.SetAttributes(attribute.String("request.id", requestID))

		var req domain.UpdateRequestStatusRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		cr, err := svc.UpdateRequestStatus(ctx, SessionFromContext(ctx), requestID, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, cr)
	}
}
