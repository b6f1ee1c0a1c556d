package services

import (
	"math"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	baselineTrips     = 4
	fewRoomsTrips     = 3
	manyRoomsTrips    = 5
	largeProjectTrips = 6

	fewRoomsMax    = 3
	manyRoomsMin   = 8
	manyRoomsMax   = 12
	primaryKeyword = "lagos"
)

// nearRegionKeywords is the literal set of place names priced at the near-region rate.
var nearRegionKeywords = []string{"osun", "ogun", "ibadan", "oyo", "ondo", "ekiti", "kwara"}

// FeeInput carries the per-call arguments of a fee computation.
type FeeInput struct {
	DevicesSubtotal float64
	TotalDevices    float64
	LocationHint    *string
	RoomsCount      *float64
	Overrides       *FeeConfigOverrides
}

// FeeEngine prices quotes from an explicit base configuration. It holds no mutable state.
type FeeEngine struct {
	base FeeConfig
}

// NewFeeEngine constructs an engine around the supplied base rates.
func NewFeeEngine(base FeeConfig) *FeeEngine {
	return &FeeEngine{base: base}
}

// Config returns the base rates used before per-call overrides.
func (e *FeeEngine) Config() FeeConfig {
	if e == nil {
		return DefaultFeeConfig()
	}
	return e.base
}

// Compute prices the input against the engine's base rates. It never fails.
func (e *FeeEngine) Compute(in FeeInput) FeeBreakdown {
	return computeFees(e.Config(), in)
}

// ComputeFees prices the input against the default rates.
func ComputeFees(in FeeInput) FeeBreakdown {
	return computeFees(DefaultFeeConfig(), in)
}

func computeFees(base FeeConfig, in FeeInput) FeeBreakdown {
	cfg := base.Apply(in.Overrides)

	subtotal := sanitizeAmount(in.DevicesSubtotal)
	devices := sanitizeAmount(in.TotalDevices)

	tier := ClassifyLocation(in.LocationHint)
	trips := EstimateTrips(in.RoomsCount)

	installation := devices * cfg.InstallationPerDevice
	integration := subtotal * cfg.IntegrationRate
	logistics := cfg.LogisticsPerTrip(tier) * float64(trips)
	misc := subtotal * cfg.MiscRate
	taxableBase := subtotal + installation + integration + logistics + misc
	tax := taxableBase * cfg.TaxRate

	return FeeBreakdown{
		InstallationFee:  installation,
		IntegrationFee:   integration,
		LogisticsCost:    logistics,
		MiscellaneousFee: misc,
		TaxAmount:        tax,
		Total:            taxableBase + tax,
		TaxableBase:      taxableBase,
		Tier:             tier,
		Trips:            trips,
	}
}

// ClassifyLocation maps a free-text location to a logistics tier. A missing or blank
// hint is priced as "other".
func ClassifyLocation(hint *string) LogisticsTier {
	if hint == nil {
		return LogisticsTierOther
	}
	lowered := cases.Lower(language.Und).String(strings.TrimSpace(*hint))
	if lowered == "" {
		return LogisticsTierOther
	}
	if strings.Contains(lowered, primaryKeyword) {
		return LogisticsTierPrimary
	}
	for _, keyword := range nearRegionKeywords {
		if strings.Contains(lowered, keyword) {
			return LogisticsTierNearRegion
		}
	}
	return LogisticsTierOther
}

// EstimateTrips adjusts the baseline trip count by room count.
func EstimateTrips(rooms *float64) int {
	if rooms == nil || math.IsNaN(*rooms) || math.IsInf(*rooms, 0) {
		return baselineTrips
	}
	r := *rooms
	switch {
	case r <= fewRoomsMax:
		return fewRoomsTrips
	case r >= manyRoomsMin && r <= manyRoomsMax:
		return manyRoomsTrips
	case r > manyRoomsMax:
		return largeProjectTrips
	default:
		return baselineTrips
	}
}

func sanitizeAmount(value float64) float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return 0
	}
	return value
}
