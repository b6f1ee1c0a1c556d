package firestore

import (
	"context"
	"errors"
	"time"

	pfirestore "github.com/installhub/api/internal/platform/firestore"
	"github.com/installhub/api/internal/repositories"
)

// Registry wires every Firestore repository over a shared provider.
type Registry struct {
	provider   *pfirestore.Provider
	projects   *ProjectRepository
	quoteItems *QuoteItemRepository
	shipments  *ShipmentRepository
	quotes     *QuoteRepository
	health     repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry builds the repositories. The readiness report always probes Firestore; extra
// probes cover the other backends the binary depends on.
func NewRegistry(provider *pfirestore.Provider, extraProbes ...repositories.DependencyProbe) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry requires provider")
	}
	projects, err := NewProjectRepository(provider)
	if err != nil {
		return nil, err
	}
	quoteItems, err := NewQuoteItemRepository(provider)
	if err != nil {
		return nil, err
	}
	shipments, err := NewShipmentRepository(provider)
	if err != nil {
		return nil, err
	}
	quotes, err := NewQuoteRepository(provider)
	if err != nil {
		return nil, err
	}
	probes := append([]repositories.DependencyProbe{{Name: "firestore", Check: provider.Ping}}, extraProbes...)
	health, err := repositories.NewProbeHealthRepository(probes, time.Now)
	if err != nil {
		return nil, err
	}
	return &Registry{
		provider:   provider,
		projects:   projects,
		quoteItems: quoteItems,
		shipments:  shipments,
		quotes:     quotes,
		health:     health,
	}, nil
}

func (r *Registry) Close(context.Context) error { return r.provider.Close() }

func (r *Registry) Projects() repositories.ProjectRepository     { return r.projects }
func (r *Registry) QuoteItems() repositories.QuoteItemRepository { return r.quoteItems }
func (r *Registry) Shipments() repositories.ShipmentRepository   { return r.shipments }
func (r *Registry) Quotes() repositories.QuoteRepository         { return r.quotes }
func (r *Registry) Health() repositories.HealthRepository        { return r.health }
