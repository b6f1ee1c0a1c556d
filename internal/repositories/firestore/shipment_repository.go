package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/installhub/api/internal/domain"
	pfirestore "github.com/installhub/api/internal/platform/firestore"
	"github.com/installhub/api/internal/repositories"
)

const shipmentsCollection = "projectShipments"

type shipmentDocument struct {
	ID          string                 `firestore:"id"`
	ProjectID   string                 `firestore:"projectId"`
	MilestoneID *string                `firestore:"milestoneId"`
	Items       []shipmentItemDocument `firestore:"items"`
	CreatedAt   time.Time              `firestore:"createdAt"`
}

type shipmentItemDocument struct {
	QuoteItemID *string `firestore:"quoteItemId"`
	Quantity    int     `firestore:"quantity"`
	Name        *string `firestore:"name"`
	Category    *string `firestore:"category"`
}

// ShipmentRepository stores one shipment document per project, keyed by project id.
type ShipmentRepository struct {
	provider  *pfirestore.Provider
	shipments *pfirestore.Collection[domain.ProjectDeviceShipment]
}

var _ repositories.ShipmentRepository = (*ShipmentRepository)(nil)

// NewShipmentRepository constructs a Firestore-backed shipment repository.
func NewShipmentRepository(provider *pfirestore.Provider) (*ShipmentRepository, error) {
	if provider == nil {
		return nil, errors.New("shipment repository requires firestore provider")
	}
	return &ShipmentRepository{
		provider:  provider,
		shipments: pfirestore.NewCollection(provider, shipmentsCollection, decodeShipment),
	}, nil
}

// FindByProject returns the shipment stored for projectID.
func (r *ShipmentRepository) FindByProject(ctx context.Context, projectID string) (domain.ProjectDeviceShipment, error) {
	return r.shipments.Get(ctx, strings.TrimSpace(projectID))
}

// CreateIfAbsent writes the shipment inside a transaction that first reads the project's
// document. tx.Create fails if another writer commits first, so at most one record exists.
func (r *ShipmentRepository) CreateIfAbsent(ctx context.Context, shipment domain.ProjectDeviceShipment) (bool, error) {
	doc, err := r.shipments.Doc(ctx, strings.TrimSpace(shipment.ProjectID))
	if err != nil {
		return false, err
	}
	created := false
	err = r.provider.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		created = false
		snap, err := tx.Get(doc)
		if err == nil && snap.Exists() {
			return nil
		}
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}
		if err := tx.Create(doc, encodeShipment(shipment)); err != nil {
			return err
		}
		created = true
		return nil
	}, pfirestore.WithTxAttempts(3), pfirestore.WithTxTimeout(10*time.Second))
	if err != nil {
		return false, err
	}
	return created, nil
}

func encodeShipment(shipment domain.ProjectDeviceShipment) shipmentDocument {
	items := make([]shipmentItemDocument, 0, len(shipment.Items))
	for _, item := range shipment.Items {
		items = append(items, shipmentItemDocument(item))
	}
	return shipmentDocument{
		ID:          shipment.ID,
		ProjectID:   shipment.ProjectID,
		MilestoneID: shipment.MilestoneID,
		Items:       items,
		CreatedAt:   shipment.CreatedAt.UTC(),
	}
}

func decodeShipment(snap *firestore.DocumentSnapshot) (domain.ProjectDeviceShipment, error) {
	var doc shipmentDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.ProjectDeviceShipment{}, err
	}
	items := make([]domain.ShipmentItem, 0, len(doc.Items))
	for _, item := range doc.Items {
		items = append(items, domain.ShipmentItem(item))
	}
	projectID := doc.ProjectID
	if projectID == "" {
		projectID = snap.Ref.ID
	}
	return domain.ProjectDeviceShipment{
		ID:          doc.ID,
		ProjectID:   projectID,
		MilestoneID: doc.MilestoneID,
		Items:       items,
		CreatedAt:   doc.CreatedAt.UTC(),
	}, nil
}
