package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/installhub/api/internal/domain"
	pfirestore "github.com/installhub/api/internal/platform/firestore"
	"github.com/installhub/api/internal/repositories"
)

const quotesCollection = "quotes"

type quoteDocument struct {
	ProjectID       string              `firestore:"projectId"`
	Location        string              `firestore:"location"`
	Rooms           *int                `firestore:"rooms"`
	Lines           []quoteLineDocument `firestore:"lines"`
	DevicesSubtotal float64             `firestore:"devicesSubtotal"`
	TotalDevices    int                 `firestore:"totalDevices"`
	Fees            domain.FeeBreakdown `firestore:"fees"`
	CreatedAt       time.Time           `firestore:"createdAt"`
}

type quoteLineDocument struct {
	QuoteItemID string  `firestore:"quoteItemId"`
	Name        string  `firestore:"name"`
	Category    string  `firestore:"category"`
	UnitPrice   float64 `firestore:"unitPrice"`
	Quantity    int     `firestore:"quantity"`
	Amount      float64 `firestore:"amount"`
}

// QuoteRepository persists generated quotes.
type QuoteRepository struct {
	quotes *pfirestore.Collection[domain.Quote]
}

var _ repositories.QuoteRepository = (*QuoteRepository)(nil)

// NewQuoteRepository constructs a Firestore-backed quote repository.
func NewQuoteRepository(provider *pfirestore.Provider) (*QuoteRepository, error) {
	if provider == nil {
		return nil, errors.New("quote repository requires firestore provider")
	}
	return &QuoteRepository{quotes: pfirestore.NewCollection(provider, quotesCollection, decodeQuote)}, nil
}

// Insert creates the quote document. Quote ids are never reused, so an existing id is a conflict.
func (r *QuoteRepository) Insert(ctx context.Context, quote domain.Quote) error {
	doc, err := r.quotes.Doc(ctx, strings.TrimSpace(quote.ID))
	if err != nil {
		return err
	}
	lines := make([]quoteLineDocument, 0, len(quote.Lines))
	for _, line := range quote.Lines {
		lines = append(lines, quoteLineDocument(line))
	}
	_, err = doc.Create(ctx, quoteDocument{
		ProjectID:       quote.ProjectID,
		Location:        quote.Location,
		Rooms:           quote.Rooms,
		Lines:           lines,
		DevicesSubtotal: quote.DevicesSubtotal,
		TotalDevices:    quote.TotalDevices,
		Fees:            quote.Fees,
		CreatedAt:       quote.CreatedAt.UTC(),
	})
	return pfirestore.WrapError("quotes.create", err)
}

// FindByID loads a quote by id.
func (r *QuoteRepository) FindByID(ctx context.Context, quoteID string) (domain.Quote, error) {
	return r.quotes.Get(ctx, strings.TrimSpace(quoteID))
}

func decodeQuote(snap *firestore.DocumentSnapshot) (domain.Quote, error) {
	var doc quoteDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Quote{}, err
	}
	lines := make([]domain.QuoteLine, 0, len(doc.Lines))
	for _, line := range doc.Lines {
		lines = append(lines, domain.QuoteLine(line))
	}
	return domain.Quote{
		ID:              snap.Ref.ID,
		ProjectID:       doc.ProjectID,
		Location:        doc.Location,
		Rooms:           doc.Rooms,
		Lines:           lines,
		DevicesSubtotal: doc.DevicesSubtotal,
		TotalDevices:    doc.TotalDevices,
		Fees:            doc.Fees,
		CreatedAt:       doc.CreatedAt.UTC(),
	}, nil
}
