package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/installhub/api/internal/services"
)

// ShipmentHandlers serves persisted project shipments.
type ShipmentHandlers struct {
	shipments services.ShipmentService
}

// NewShipmentHandlers constructs the shipment handler set.
func NewShipmentHandlers(shipments services.ShipmentService) *ShipmentHandlers {
	return &ShipmentHandlers{shipments: shipments}
}

// Routes registers the shipment endpoints.
func (h *ShipmentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/projects/{projectId}/shipment", h.getProjectShipment)
}

type shipmentPayload struct {
	ID          string                  `json:"id"`
	ProjectID   string                  `json:"projectId"`
	MilestoneID *string                 `json:"milestoneId"`
	Items       []services.ShipmentItem `json:"items"`
	CreatedAt   string                  `json:"createdAt"`
}

func (h *ShipmentHandlers) getProjectShipment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.shipments == nil {
		writeServiceUnavailable(ctx, w, "shipment")
		return
	}
	shipment, err := h.shipments.GetProjectShipment(ctx, chi.URLParam(r, "projectId"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	items := shipment.Items
	if items == nil {
		items = []services.ShipmentItem{}
	}
	writeJSONResponse(w, http.StatusOK, shipmentPayload{
		ID:          shipment.ID,
		ProjectID:   shipment.ProjectID,
		MilestoneID: shipment.MilestoneID,
		Items:       items,
		CreatedAt:   shipment.CreatedAt.UTC().Format(time.RFC3339),
	})
}
