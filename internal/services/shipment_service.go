package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/installhub/api/internal/repositories"
)

type shipmentService struct {
	shipments repositories.ShipmentRepository
}

// NewShipmentService exposes persisted project shipments.
func NewShipmentService(shipments repositories.ShipmentRepository) (ShipmentService, error) {
	if shipments == nil {
		return nil, errors.New("shipment service: repository is required")
	}
	return &shipmentService{shipments: shipments}, nil
}

func (s *shipmentService) GetProjectShipment(ctx context.Context, projectID string) (ProjectDeviceShipment, error) {
	id := strings.TrimSpace(projectID)
	if id == "" {
		return ProjectDeviceShipment{}, fmt.Errorf("%w: project id is required", ErrShipmentNotFound)
	}
	shipment, err := s.shipments.FindByProject(ctx, id)
	switch {
	case err == nil:
		return shipment, nil
	case isRepoNotFound(err):
		return ProjectDeviceShipment{}, ErrShipmentNotFound
	case isRepoUnavailable(err):
		return ProjectDeviceShipment{}, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	default:
		return ProjectDeviceShipment{}, err
	}
}
