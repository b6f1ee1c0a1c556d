package services

import (
	"context"
	"time"

	domain "github.com/installhub/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	FeeConfig             = domain.FeeConfig
	FeeConfigOverrides    = domain.FeeConfigOverrides
	FeeBreakdown          = domain.FeeBreakdown
	LogisticsTier         = domain.LogisticsTier
	QuoteItem             = domain.QuoteItem
	MilestoneItem         = domain.MilestoneItem
	Milestone             = domain.Milestone
	Project               = domain.Project
	ShipmentItem          = domain.ShipmentItem
	ProjectDeviceShipment = domain.ProjectDeviceShipment
	Quote                 = domain.Quote
	QuoteLine             = domain.QuoteLine
)

const (
	LogisticsTierPrimary    = domain.LogisticsTierPrimary
	LogisticsTierNearRegion = domain.LogisticsTierNearRegion
	LogisticsTierOther      = domain.LogisticsTierOther
)

// DefaultFeeConfig returns the default fee rates.
func DefaultFeeConfig() FeeConfig { return domain.DefaultFeeConfig() }

// QuoteService exposes the fee engine to quote-generation callers.
type QuoteService interface {
	PreviewFees(ctx context.Context, cmd PreviewFeesCommand) (FeeBreakdown, error)
	GenerateQuote(ctx context.Context, cmd GenerateQuoteCommand) (Quote, error)
	GetQuote(ctx context.Context, quoteID string) (Quote, error)
}

// ShipmentService serves persisted project shipments.
type ShipmentService interface {
	GetProjectShipment(ctx context.Context, projectID string) (ProjectDeviceShipment, error)
}

// ShipmentBackfiller ensures every project carries exactly one shipment record.
type ShipmentBackfiller interface {
	Run(ctx context.Context) (BackfillReport, error)
}

// EventPublisher emits domain events to downstream consumers.
type EventPublisher interface {
	PublishShipmentCreated(ctx context.Context, event ShipmentCreatedEvent) (string, error)
}

// ShipmentCreatedEvent announces a newly persisted project shipment.
type ShipmentCreatedEvent struct {
	ShipmentID  string    `json:"shipmentId"`
	ProjectID   string    `json:"projectId"`
	MilestoneID *string   `json:"milestoneId,omitempty"`
	ItemCount   int       `json:"itemCount"`
	Source      string    `json:"source"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ReportWriter persists a finished backfill report for later auditing.
type ReportWriter interface {
	WriteBackfillReport(ctx context.Context, report BackfillReport) (string, error)
}

// PreviewFeesCommand prices explicit totals without touching the store.
type PreviewFeesCommand struct {
	DevicesSubtotal float64
	TotalDevices    float64
	Location        *string
	Rooms           *float64
	Overrides       *FeeConfigOverrides
}

// GenerateQuoteCommand describes the catalog lines of a new quote for a project.
type GenerateQuoteCommand struct {
	ProjectID string
	Lines     []QuoteLineInput
	Location  *string
	Rooms     *int
	Overrides *FeeConfigOverrides
}

// QuoteLineInput references a catalog item and the requested quantity.
type QuoteLineInput struct {
	QuoteItemID string
	Quantity    int
}
