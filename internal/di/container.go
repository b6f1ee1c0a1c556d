package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/installhub/api/internal/platform/config"
	"github.com/installhub/api/internal/repositories"
	"github.com/installhub/api/internal/services"
)

// Services bundles the service-layer contracts that handlers and binaries rely upon.
type Services struct {
	Quotes    services.QuoteService
	Shipments services.ShipmentService
	Backfill  services.ShipmentBackfiller
}

// Infrastructure carries optional collaborators created by the binary. Nil fields disable the
// corresponding feature.
type Infrastructure struct {
	Events  services.EventPublisher
	Reports services.ReportWriter
	Logger  *zap.Logger
	Meter   metric.Meter
	Clock   func() time.Time
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies over reg. Tests can supply in-memory registries.
func NewContainer(cfg config.Config, reg repositories.Registry, infra Infrastructure) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}
	svc, err := buildServices(cfg, reg, infra)
	if err != nil {
		return nil, err
	}
	return &Container{Config: cfg, Repositories: reg, Services: svc}, nil
}

// Close releases repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(cfg config.Config, reg repositories.Registry, infra Infrastructure) (Services, error) {
	logger := infra.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := infra.Clock
	if clock == nil {
		clock = time.Now
	}

	var svc Services
	quotes, err := services.NewQuoteService(services.QuoteServiceDeps{
		Engine:     services.NewFeeEngine(cfg.Fees),
		Projects:   reg.Projects(),
		QuoteItems: reg.QuoteItems(),
		Quotes:     reg.Quotes(),
		Logger:     logger.Named("quotes"),
		Clock:      clock,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build quote service: %w", err)
	}
	svc.Quotes = quotes

	if shipmentsRepo := reg.Shipments(); shipmentsRepo != nil {
		shipments, err := services.NewShipmentService(shipmentsRepo)
		if err != nil {
			return Services{}, fmt.Errorf("build shipment service: %w", err)
		}
		svc.Shipments = shipments
	}

	if reg.Projects() != nil && reg.QuoteItems() != nil && reg.Shipments() != nil {
		backfill, err := services.NewShipmentBackfillService(services.ShipmentBackfillDeps{
			Projects:   reg.Projects(),
			QuoteItems: reg.QuoteItems(),
			Shipments:  reg.Shipments(),
			Events:     infra.Events,
			Reports:    infra.Reports,
			Logger:     logger.Named("backfill"),
			Meter:      infra.Meter,
			Workers:    cfg.Backfill.Workers,
			DryRun:     cfg.Backfill.DryRun,
			Now:        clock,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build shipment backfill: %w", err)
		}
		svc.Backfill = backfill
	}
	return svc, nil
}
