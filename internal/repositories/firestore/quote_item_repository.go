package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"
	"github.com/samber/lo"

	domain "github.com/installhub/api/internal/domain"
	pfirestore "github.com/installhub/api/internal/platform/firestore"
	"github.com/installhub/api/internal/repositories"
)

const quoteItemsCollection = "quoteItems"

type quoteItemDocument struct {
	Name      string  `firestore:"name"`
	Category  string  `firestore:"category"`
	UnitPrice float64 `firestore:"unitPrice"`
}

// QuoteItemRepository reads the quote item catalog.
type QuoteItemRepository struct {
	items *pfirestore.Collection[domain.QuoteItem]
}

var _ repositories.QuoteItemRepository = (*QuoteItemRepository)(nil)

// NewQuoteItemRepository constructs a Firestore-backed catalog repository.
func NewQuoteItemRepository(provider *pfirestore.Provider) (*QuoteItemRepository, error) {
	if provider == nil {
		return nil, errors.New("quote item repository requires firestore provider")
	}
	return &QuoteItemRepository{
		items: pfirestore.NewCollection(provider, quoteItemsCollection, func(snap *firestore.DocumentSnapshot) (domain.QuoteItem, error) {
			var doc quoteItemDocument
			if err := snap.DataTo(&doc); err != nil {
				return domain.QuoteItem{}, err
			}
			return domain.QuoteItem{ID: snap.Ref.ID, Name: doc.Name, Category: doc.Category, UnitPrice: doc.UnitPrice}, nil
		}),
	}, nil
}

// FindByIDs resolves ids with one batched read; ids without a document are omitted.
func (r *QuoteItemRepository) FindByIDs(ctx context.Context, ids []string) ([]domain.QuoteItem, error) {
	return r.items.GetAll(ctx, lo.Uniq(lo.Compact(ids)))
}
