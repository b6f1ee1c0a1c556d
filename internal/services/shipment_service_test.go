package services

import (
	"context"
	"errors"
	"testing"

	"github.com/installhub/api/internal/repositories/memory"
)

func TestShipmentService_GetProjectShipment(t *testing.T) {
	store := memory.NewStore().PutShipment(ProjectDeviceShipment{ID: "s1", ProjectID: "p1", Items: []ShipmentItem{}})
	svc, err := NewShipmentService(store.Shipments())
	if err != nil {
		t.Fatalf("NewShipmentService error: %v", err)
	}

	got, err := svc.GetProjectShipment(context.Background(), " p1 ")
	if err != nil {
		t.Fatalf("GetProjectShipment error: %v", err)
	}
	if got.ID != "s1" {
		t.Fatalf("unexpected shipment %+v", got)
	}

	if _, err := svc.GetProjectShipment(context.Background(), "p2"); !errors.Is(err, ErrShipmentNotFound) {
		t.Fatalf("expected ErrShipmentNotFound, got %v", err)
	}
	if _, err := svc.GetProjectShipment(context.Background(), ""); !errors.Is(err, ErrShipmentNotFound) {
		t.Fatalf("expected ErrShipmentNotFound for blank id, got %v", err)
	}

	store.Fail["FindShipment"] = &memory.Error{Msg: "unavailable", Unavailable: true}
	if _, err := svc.GetProjectShipment(context.Background(), "p1"); !errors.Is(err, ErrServiceUnavailable) {
		t.Fatalf("expected ErrServiceUnavailable, got %v", err)
	}

	if _, err := NewShipmentService(nil); err == nil {
		t.Fatal("expected error for nil repository")
	}
}
