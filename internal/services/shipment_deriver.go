package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/samber/lo"
	"github.com/tidwall/gjson"
)

// ErrMalformedMilestoneItems is returned when milestone item data is not valid JSON.
var ErrMalformedMilestoneItems = errors.New("shipment derivation: malformed milestone items")

const maxShipmentQuantity = math.MaxInt32

// CatalogLookup resolves quote items for a batch of ids in a single call.
type CatalogLookup func(ctx context.Context, ids []string) ([]QuoteItem, error)

// ParseMilestoneItems normalises raw milestone item JSON. Valid JSON that is not an array
// yields no items. quoteItemId is kept only when it is a string and quantity only when it is
// a number greater than zero; anything else falls back to nil and 1 respectively.
func ParseMilestoneItems(raw json.RawMessage) ([]MilestoneItem, error) {
	if len(raw) == 0 {
		return []MilestoneItem{}, nil
	}
	if !gjson.ValidBytes(raw) {
		return nil, ErrMalformedMilestoneItems
	}
	parsed := gjson.ParseBytes(raw)
	if !parsed.IsArray() {
		return []MilestoneItem{}, nil
	}

	entries := parsed.Array()
	items := make([]MilestoneItem, 0, len(entries))
	for _, entry := range entries {
		item := MilestoneItem{Quantity: 1}
		// Duplicate keys resolve to their first occurrence.
		if id := entry.Get("quoteItemId"); id.Type == gjson.String {
			item.QuoteItemID = lo.ToPtr(id.Str)
		}
		if qty := entry.Get("quantity"); qty.Type == gjson.Number && qty.Num > 0 {
			item.Quantity = max(1, int(min(qty.Num, maxShipmentQuantity)))
		}
		items = append(items, item)
	}
	return items, nil
}

// DeriveShipmentItems rebuilds shipment lines from raw milestone items, resolving every
// referenced quote item with one batched catalog lookup. Unresolved ids keep their entry with
// nil name and category.
func DeriveShipmentItems(ctx context.Context, raw json.RawMessage, lookup CatalogLookup) ([]ShipmentItem, error) {
	items, err := ParseMilestoneItems(raw)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return []ShipmentItem{}, nil
	}

	ids := lo.Uniq(lo.FilterMap(items, func(item MilestoneItem, _ int) (string, bool) {
		if item.QuoteItemID == nil {
			return "", false
		}
		return *item.QuoteItemID, true
	}))

	catalog := map[string]QuoteItem{}
	if len(ids) > 0 {
		if lookup == nil {
			return nil, errors.New("shipment derivation: catalog lookup is required")
		}
		resolved, err := lookup(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("shipment derivation: catalog lookup: %w", err)
		}
		catalog = lo.KeyBy(resolved, func(item QuoteItem) string { return item.ID })
	}

	shipment := make([]ShipmentItem, 0, len(items))
	for _, item := range items {
		line := ShipmentItem{QuoteItemID: item.QuoteItemID, Quantity: item.Quantity}
		if item.QuoteItemID != nil {
			if quoteItem, ok := catalog[*item.QuoteItemID]; ok {
				line.Name = lo.ToPtr(quoteItem.Name)
				line.Category = lo.ToPtr(quoteItem.Category)
			}
		}
		shipment = append(shipment, line)
	}
	return shipment, nil
}
