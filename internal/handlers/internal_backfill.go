package handlers

import (
	"net/http"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/installhub/api/internal/platform/httpx"
	"github.com/installhub/api/internal/platform/requestctx"
	"github.com/installhub/api/internal/services"
)

// InternalHandlers exposes operator endpoints mounted under /internal.
type InternalHandlers struct {
	backfill services.ShipmentBackfiller
	running  atomic.Bool
}

// NewInternalHandlers constructs the internal handler set.
func NewInternalHandlers(backfill services.ShipmentBackfiller) *InternalHandlers {
	return &InternalHandlers{backfill: backfill}
}

// Routes registers the internal endpoints relative to the /internal group.
func (h *InternalHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/shipments:backfill", h.runShipmentBackfill)
}

// runShipmentBackfill runs the backfill synchronously. Only one run may be in flight per
// process; concurrent requests receive 409.
func (h *InternalHandlers) runShipmentBackfill(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.backfill == nil {
		writeServiceUnavailable(ctx, w, "shipment backfill")
		return
	}
	if !h.running.CompareAndSwap(false, true) {
		httpx.WriteError(ctx, w, httpx.NewError("backfill_in_progress", "a shipment backfill is already running", http.StatusConflict))
		return
	}
	defer h.running.Store(false)

	report, err := h.backfill.Run(ctx)
	if err != nil {
		requestctx.Logger(ctx).Error("shipment backfill failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("backfill_failed", err.Error(), http.StatusInternalServerError).
			WithDetails(map[string]any{"processed": report.Processed}))
		return
	}
	status := http.StatusOK
	if report.Failed > 0 {
		status = http.StatusMultiStatus
	}
	writeJSONResponse(w, status, report)
}
