package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/installhub/api/internal/repositories"
)

// QuoteServiceDeps wires the collaborators of the quote service.
type QuoteServiceDeps struct {
	Engine     *FeeEngine
	Projects   repositories.ProjectRepository
	QuoteItems repositories.QuoteItemRepository
	Quotes     repositories.QuoteRepository
	Logger     *zap.Logger
	Clock      func() time.Time
	IDGen      func() string
}

type quoteService struct {
	engine     *FeeEngine
	projects   repositories.ProjectRepository
	quoteItems repositories.QuoteItemRepository
	quotes     repositories.QuoteRepository
	logger     *zap.Logger
	now        func() time.Time
	newID      func() string
}

// NewQuoteService constructs the quote service. Only the fee engine is mandatory; store-backed
// operations fail with ErrServiceUnavailable when their repositories are absent.
func NewQuoteService(deps QuoteServiceDeps) (QuoteService, error) {
	if deps.Engine == nil {
		return nil, errors.New("quote service: fee engine is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	newID := deps.IDGen
	if newID == nil {
		newID = newULID
	}
	return &quoteService{
		engine:     deps.Engine,
		projects:   deps.Projects,
		quoteItems: deps.QuoteItems,
		quotes:     deps.Quotes,
		logger:     logger,
		now:        func() time.Time { return now().UTC() },
		newID:      newID,
	}, nil
}

func (s *quoteService) PreviewFees(_ context.Context, cmd PreviewFeesCommand) (FeeBreakdown, error) {
	return s.engine.Compute(FeeInput{
		DevicesSubtotal: cmd.DevicesSubtotal,
		TotalDevices:    cmd.TotalDevices,
		LocationHint:    cmd.Location,
		RoomsCount:      cmd.Rooms,
		Overrides:       cmd.Overrides,
	}), nil
}

func (s *quoteService) GenerateQuote(ctx context.Context, cmd GenerateQuoteCommand) (Quote, error) {
	if s.projects == nil || s.quoteItems == nil || s.quotes == nil {
		return Quote{}, ErrServiceUnavailable
	}
	projectID := strings.TrimSpace(cmd.ProjectID)
	if projectID == "" {
		return Quote{}, fmt.Errorf("%w: project id is required", ErrQuoteInvalidInput)
	}
	if len(cmd.Lines) == 0 {
		return Quote{}, fmt.Errorf("%w: at least one line is required", ErrQuoteInvalidInput)
	}
	for idx, line := range cmd.Lines {
		if strings.TrimSpace(line.QuoteItemID) == "" {
			return Quote{}, fmt.Errorf("%w: line %d quoteItemId is required", ErrQuoteInvalidInput, idx)
		}
		if line.Quantity <= 0 {
			return Quote{}, fmt.Errorf("%w: line %d quantity must be positive", ErrQuoteInvalidInput, idx)
		}
	}

	project, err := s.projects.FindByID(ctx, projectID)
	if err != nil {
		return Quote{}, s.translateRepoError(err, ErrProjectNotFound)
	}

	ids := lo.Uniq(lo.Map(cmd.Lines, func(line QuoteLineInput, _ int) string {
		return strings.TrimSpace(line.QuoteItemID)
	}))
	resolved, err := s.quoteItems.FindByIDs(ctx, ids)
	if err != nil {
		return Quote{}, s.translateRepoError(err, nil)
	}
	catalog := lo.KeyBy(resolved, func(item QuoteItem) string { return item.ID })
	if missing := lo.Filter(ids, func(id string, _ int) bool { _, ok := catalog[id]; return !ok }); len(missing) > 0 {
		return Quote{}, fmt.Errorf("%w: %s", ErrQuoteUnknownItem, strings.Join(missing, ", "))
	}

	lines := make([]QuoteLine, 0, len(cmd.Lines))
	var subtotal float64
	var devices int
	for _, input := range cmd.Lines {
		item := catalog[strings.TrimSpace(input.QuoteItemID)]
		amount := item.UnitPrice * float64(input.Quantity)
		subtotal += amount
		devices += input.Quantity
		lines = append(lines, QuoteLine{
			QuoteItemID: item.ID,
			Name:        item.Name,
			Category:    item.Category,
			UnitPrice:   item.UnitPrice,
			Quantity:    input.Quantity,
			Amount:      amount,
		})
	}

	location := project.Location
	if cmd.Location != nil {
		location = strings.TrimSpace(*cmd.Location)
	}
	rooms := project.Rooms
	if cmd.Rooms != nil {
		rooms = lo.ToPtr(*cmd.Rooms)
	}
	var roomsCount *float64
	if rooms != nil {
		roomsCount = lo.ToPtr(float64(*rooms))
	}

	fees := s.engine.Compute(FeeInput{
		DevicesSubtotal: subtotal,
		TotalDevices:    float64(devices),
		LocationHint:    &location,
		RoomsCount:      roomsCount,
		Overrides:       cmd.Overrides,
	})

	quote := Quote{
		ID:              s.newID(),
		ProjectID:       project.ID,
		Location:        location,
		Rooms:           rooms,
		Lines:           lines,
		DevicesSubtotal: subtotal,
		TotalDevices:    devices,
		Fees:            fees,
		CreatedAt:       s.now(),
	}
	if err := s.quotes.Insert(ctx, quote); err != nil {
		return Quote{}, s.translateRepoError(err, nil)
	}

	s.logger.Info("quote generated",
		zap.String("quote_id", quote.ID),
		zap.String("project_id", quote.ProjectID),
		zap.String("logistics_tier", string(fees.Tier)),
		zap.Float64("total", fees.Total),
	)
	return quote, nil
}

func (s *quoteService) GetQuote(ctx context.Context, quoteID string) (Quote, error) {
	if s.quotes == nil {
		return Quote{}, ErrServiceUnavailable
	}
	id := strings.TrimSpace(quoteID)
	if id == "" {
		return Quote{}, fmt.Errorf("%w: quote id is required", ErrQuoteInvalidInput)
	}
	quote, err := s.quotes.FindByID(ctx, id)
	if err != nil {
		return Quote{}, s.translateRepoError(err, ErrQuoteNotFound)
	}
	return quote, nil
}

func (s *quoteService) translateRepoError(err error, notFound error) error {
	switch {
	case notFound != nil && isRepoNotFound(err):
		return notFound
	case isRepoUnavailable(err):
		return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	default:
		return err
	}
}
