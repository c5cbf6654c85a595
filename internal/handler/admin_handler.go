package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/boddenberg/influmatch-bfa-go/internal/domain"
	"github.com/boddenberg/influmatch-bfa-go/internal/infra/observability"
	"github.com/boddenberg/influmatch-bfa-go/internal/service"

	"go.uber.org/zap"
)

// ============================================================
// Diagnostics & repair (admin)
// ============================================================

type diagnosticsResponse struct {
	Healthy  bool                        `json:"healthy"`
	Report   *domain.DiagnosticReport    `json:"report"`
	Counters *domain.OperationalCounters `json:"counters"`
}

type repairResponse struct {
	DryRun  bool                  `json:"dryRun"`
	Results []domain.RepairResult `json:"results"`
}

func diagnosticsHandler(svc *service.RepairService, metrics *observability.Metrics, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/admin/diagnostics")
		defer span.End()

		report, err := svc.Diagnose(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, diagnosticsResponse{
			Healthy:  report.Healthy(),
			Report:   report,
			Counters: metrics.Snapshot(),
		})
	}
}

// repairHandler runs every repair in order. An empty body is a real run.
func repairHandler(svc *service.RepairService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/admin/repair")
		defer span.End()

		var req domain.RepairRequest
		if err := decodeBody(r, &req); err != nil && !isEmptyBody(err) {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		results, err := svc.RepairAll(ctx, req.DryRun)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, repairResponse{DryRun: req.DryRun, Results: results})
	}
}

func isEmptyBody(err error) bool {
	return errors.Is(err, io.EOF)
}
