package repositories

import (
	"context"

	domain "github.com/installhub/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Projects() ProjectRepository
	QuoteItems() QuoteItemRepository
	Shipments() ShipmentRepository
	Quotes() QuoteRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// ProjectRepository reads projects together with their milestones.
type ProjectRepository interface {
	// ListWithMilestones returns every project in creation order with milestones sorted by
	// ascending index.
	ListWithMilestones(ctx context.Context) ([]domain.Project, error)
	FindByID(ctx context.Context, projectID string) (domain.Project, error)
}

// QuoteItemRepository is the authoritative quote item catalog.
type QuoteItemRepository interface {
	// FindByIDs resolves the given ids in one batched read. Unknown ids are omitted.
	FindByIDs(ctx context.Context, ids []string) ([]domain.QuoteItem, error)
}

// ShipmentRepository stores the single device shipment kept per project.
type ShipmentRepository interface {
	FindByProject(ctx context.Context, projectID string) (domain.ProjectDeviceShipment, error)
	// CreateIfAbsent atomically checks for an existing shipment and creates one when none
	// exists. created is false when a shipment was already present.
	CreateIfAbsent(ctx context.Context, shipment domain.ProjectDeviceShipment) (bool, error)
}

// QuoteRepository persists generated quotes.
type QuoteRepository interface {
	Insert(ctx context.Context, quote domain.Quote) error
	FindByID(ctx context.Context, quoteID string) (domain.Quote, error)
}
