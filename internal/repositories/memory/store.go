package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	domain "github.com/installhub/api/internal/domain"
	"github.com/installhub/api/internal/repositories"
)

// Error implements repositories.RepositoryError for the in-memory store.
type Error struct {
	Msg         string
	NotFound    bool
	Conflict    bool
	Unavailable bool
}

func (e *Error) Error() string       { return e.Msg }
func (e *Error) IsNotFound() bool    { return e.NotFound }
func (e *Error) IsConflict() bool    { return e.Conflict }
func (e *Error) IsUnavailable() bool { return e.Unavailable }

func notFound(kind, id string) error {
	return &Error{Msg: fmt.Sprintf("%s %q not found", kind, id), NotFound: true}
}

// Store is an in-memory registry useful for tests and local development. It is safe for
// concurrent use.
type Store struct {
	mu         sync.Mutex
	projects   []domain.Project
	quoteItems map[string]domain.QuoteItem
	shipments  map[string]domain.ProjectDeviceShipment
	quotes     map[string]domain.Quote
	health     repositories.HealthRepository

	// Calls counts repository calls by method name.
	Calls map[string]int
	// Fail injects errors by method name, optionally scoped with "Method:id".
	Fail map[string]error
}

var _ repositories.Registry = (*Store)(nil)

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{
		quoteItems: map[string]domain.QuoteItem{},
		shipments:  map[string]domain.ProjectDeviceShipment{},
		quotes:     map[string]domain.Quote{},
		Calls:      map[string]int{},
		Fail:       map[string]error{},
	}
}

// AddProject appends a project in list order.
func (s *Store) AddProject(project domain.Project) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects = append(s.projects, project)
	return s
}

// AddQuoteItems seeds the catalog.
func (s *Store) AddQuoteItems(items ...domain.QuoteItem) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range items {
		s.quoteItems[item.ID] = item
	}
	return s
}

// PutShipment stores a shipment directly, bypassing CreateIfAbsent.
func (s *Store) PutShipment(shipment domain.ProjectDeviceShipment) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shipments[shipment.ProjectID] = shipment
	return s
}

// Shipment returns the stored shipment for projectID.
func (s *Store) Shipment(projectID string) (domain.ProjectDeviceShipment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	shipment, ok := s.shipments[projectID]
	return shipment, ok
}

// ShipmentCount returns the number of stored shipments.
func (s *Store) ShipmentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.shipments)
}

// CallCount returns how often method was invoked.
func (s *Store) CallCount(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Calls[method]
}

// WithHealth sets the repository returned by Health.
func (s *Store) WithHealth(health repositories.HealthRepository) *Store {
	s.health = health
	return s
}

// enter records the call and returns any injected failure. Callers hold s.mu.
func (s *Store) enter(method, id string) error {
	s.Calls[method]++
	if err, ok := s.Fail[method+":"+id]; ok {
		return err
	}
	return s.Fail[method]
}

func (s *Store) Close(context.Context) error { return nil }

func (s *Store) Projects() repositories.ProjectRepository     { return projectRepo{s} }
func (s *Store) QuoteItems() repositories.QuoteItemRepository { return quoteItemRepo{s} }
func (s *Store) Shipments() repositories.ShipmentRepository   { return shipmentRepo{s} }
func (s *Store) Quotes() repositories.QuoteRepository         { return quoteRepo{s} }
func (s *Store) Health() repositories.HealthRepository        { return s.health }

type projectRepo struct{ s *Store }

func (r projectRepo) ListWithMilestones(context.Context) ([]domain.Project, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("ListWithMilestones", ""); err != nil {
		return nil, err
	}
	out := make([]domain.Project, 0, len(r.s.projects))
	for _, p := range r.s.projects {
		p.Milestones = sortedMilestones(p.Milestones)
		out = append(out, p)
	}
	return out, nil
}

func (r projectRepo) FindByID(_ context.Context, projectID string) (domain.Project, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("FindProject", projectID); err != nil {
		return domain.Project{}, err
	}
	for _, p := range r.s.projects {
		if p.ID == projectID {
			p.Milestones = sortedMilestones(p.Milestones)
			return p, nil
		}
	}
	return domain.Project{}, notFound("project", projectID)
}

type quoteItemRepo struct{ s *Store }

func (r quoteItemRepo) FindByIDs(_ context.Context, ids []string) ([]domain.QuoteItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("FindQuoteItems", ""); err != nil {
		return nil, err
	}
	var out []domain.QuoteItem
	for _, id := range ids {
		if item, ok := r.s.quoteItems[id]; ok {
			out = append(out, item)
		}
	}
	return out, nil
}

type shipmentRepo struct{ s *Store }

func (r shipmentRepo) FindByProject(_ context.Context, projectID string) (domain.ProjectDeviceShipment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("FindShipment", projectID); err != nil {
		return domain.ProjectDeviceShipment{}, err
	}
	shipment, ok := r.s.shipments[projectID]
	if !ok {
		return domain.ProjectDeviceShipment{}, notFound("shipment", projectID)
	}
	return shipment, nil
}

func (r shipmentRepo) CreateIfAbsent(_ context.Context, shipment domain.ProjectDeviceShipment) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("CreateShipment", shipment.ProjectID); err != nil {
		return false, err
	}
	if _, ok := r.s.shipments[shipment.ProjectID]; ok {
		return false, nil
	}
	shipment.Items = slices.Clone(shipment.Items)
	r.s.shipments[shipment.ProjectID] = shipment
	return true, nil
}

type quoteRepo struct{ s *Store }

func (r quoteRepo) Insert(_ context.Context, quote domain.Quote) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("InsertQuote", quote.ID); err != nil {
		return err
	}
	if _, ok := r.s.quotes[quote.ID]; ok {
		return &Error{Msg: fmt.Sprintf("quote %q already exists", quote.ID), Conflict: true}
	}
	r.s.quotes[quote.ID] = quote
	return nil
}

func (r quoteRepo) FindByID(_ context.Context, quoteID string) (domain.Quote, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("FindQuote", quoteID); err != nil {
		return domain.Quote{}, err
	}
	quote, ok := r.s.quotes[quoteID]
	if !ok {
		return domain.Quote{}, notFound("quote", quoteID)
	}
	return quote, nil
}

func sortedMilestones(milestones []domain.Milestone) []domain.Milestone {
	out := slices.Clone(milestones)
	slices.SortStableFunc(out, func(a, b domain.Milestone) int { return a.Index - b.Index })
	return out
}
