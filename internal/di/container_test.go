package di

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/installhub/api/internal/domain"
	"github.com/installhub/api/internal/platform/config"
	"github.com/installhub/api/internal/repositories/memory"
	"github.com/installhub/api/internal/services"
)

func TestNewContainerWiresServices(t *testing.T) {
	store := memory.NewStore().
		AddProject(domain.Project{ID: "p1", Location: "Lagos"}).
		AddQuoteItems(domain.QuoteItem{ID: "cam", Name: "Camera", Category: "Security", UnitPrice: 1000})
	fees := domain.DefaultFeeConfig()
	fees.TaxRate = 0
	cfg := config.Config{Fees: fees, Backfill: config.BackfillConfig{Workers: 2, DryRun: true}}
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	container, err := NewContainer(cfg, store, Infrastructure{Clock: func() time.Time { return now }})
	require.NoError(t, err)
	require.NotNil(t, container.Services.Quotes)
	require.NotNil(t, container.Services.Shipments)
	require.NotNil(t, container.Services.Backfill)

	quote, err := container.Services.Quotes.GenerateQuote(context.Background(), services.GenerateQuoteCommand{
		ProjectID: "p1",
		Lines:     []services.QuoteLineInput{{QuoteItemID: "cam", Quantity: 1}},
	})
	require.NoError(t, err)
	assert.Zero(t, quote.Fees.TaxAmount, "configured fee rates should reach the engine")
	assert.Equal(t, now, quote.CreatedAt)

	report, err := container.Services.Backfill.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.DryRun)
	assert.Equal(t, 1, report.Created)
	assert.Zero(t, store.ShipmentCount(), "dry run config should reach the backfill")

	require.NoError(t, container.Close(context.Background()))
}

func TestNewContainerRequiresRegistry(t *testing.T) {
	_, err := NewContainer(config.Config{}, nil, Infrastructure{})
	require.Error(t, err)

	var container *Container
	assert.NoError(t, container.Close(context.Background()))
}
