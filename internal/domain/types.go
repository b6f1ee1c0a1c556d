package domain

import (
	"bytes"
	"encoding/json"
	"time"
)

// QuoteItem is the authoritative catalog record for a sellable device or service.
type QuoteItem struct {
	ID        string
	Name      string
	Category  string
	UnitPrice float64
}

// MilestoneItem is the normalised form of one raw milestone item entry.
type MilestoneItem struct {
	QuoteItemID *string
	Quantity    int
}

// Milestone is a scheduled project stage. Items holds the loosely typed item JSON
// produced by the scheduling flow and may be empty or malformed.
type Milestone struct {
	ID        string
	ProjectID string
	Index     int
	Title     string
	Items     json.RawMessage
}

// HasItemData reports whether the milestone carries any item payload at all.
func (m Milestone) HasItemData() bool {
	trimmed := bytes.TrimSpace(m.Items)
	return len(trimmed) > 0 && string(trimmed) != "null"
}

// Project groups quoting, scheduling and shipment records for one installation.
type Project struct {
	ID         string
	Name       string
	Location   string
	Rooms      *int
	CreatedAt  time.Time
	Milestones []Milestone
}

// FirstMilestone returns the milestone with the lowest index.
func (p Project) FirstMilestone() (Milestone, bool) {
	if len(p.Milestones) == 0 {
		return Milestone{}, false
	}
	first := p.Milestones[0]
	for _, m := range p.Milestones[1:] {
		if m.Index < first.Index {
			first = m
		}
	}
	return first, true
}

// ShipmentItem is a derived device line on a project shipment. Name and Category are nil
// when the referenced quote item could not be resolved.
type ShipmentItem struct {
	QuoteItemID *string `json:"quoteItemId"`
	Quantity    int     `json:"quantity"`
	Name        *string `json:"name"`
	Category    *string `json:"category"`
}

// ProjectDeviceShipment is the single shipment record kept per project.
type ProjectDeviceShipment struct {
	ID          string
	ProjectID   string
	MilestoneID *string
	Items       []ShipmentItem
	CreatedAt   time.Time
}

// QuoteLine is a priced catalog line on a quote.
type QuoteLine struct {
	QuoteItemID string  `json:"quoteItemId"`
	Name        string  `json:"name"`
	Category    string  `json:"category"`
	UnitPrice   float64 `json:"unitPrice"`
	Quantity    int     `json:"quantity"`
	Amount      float64 `json:"amount"`
}

// Quote is a generated project quote with its fee breakdown.
type Quote struct {
	ID              string
	ProjectID       string
	Location        string
	Rooms           *int
	Lines           []QuoteLine
	DevicesSubtotal float64
	TotalDevices    int
	Fees            FeeBreakdown
	CreatedAt       time.Time
}
