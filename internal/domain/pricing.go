package domain

import "math"

// Default fee constants applied when a caller does not override a field.
const (
	DefaultInstallationPerDevice = 15000.0
	DefaultIntegrationRate       = 0.10
	DefaultLogisticsPrimary      = 25000.0
	DefaultLogisticsNearRegion   = 45000.0
	DefaultLogisticsOther        = 75000.0
	DefaultMiscRate              = 0.05
	DefaultTaxRate               = 0.075
)

// LogisticsTier classifies a project location into a logistics cost band.
type LogisticsTier string

const (
	LogisticsTierPrimary    LogisticsTier = "primary"
	LogisticsTierNearRegion LogisticsTier = "near_region"
	LogisticsTierOther      LogisticsTier = "other"
)

// FeeConfig holds the tunable rates used to price a quote. Values are immutable per computation.
type FeeConfig struct {
	InstallationPerDevice float64 `json:"installationPerDevice" firestore:"installationPerDevice"`
	IntegrationRate       float64 `json:"integrationRate" firestore:"integrationRate"`
	LogisticsPrimary      float64 `json:"logisticsPrimary" firestore:"logisticsPrimary"`
	LogisticsNearRegion   float64 `json:"logisticsNearRegion" firestore:"logisticsNearRegion"`
	LogisticsOther        float64 `json:"logisticsOther" firestore:"logisticsOther"`
	MiscRate              float64 `json:"miscRate" firestore:"miscRate"`
	TaxRate               float64 `json:"taxRate" firestore:"taxRate"`
}

// DefaultFeeConfig returns the rates backed by the named default constants.
func DefaultFeeConfig() FeeConfig {
	return FeeConfig{
		InstallationPerDevice: DefaultInstallationPerDevice,
		IntegrationRate:       DefaultIntegrationRate,
		LogisticsPrimary:      DefaultLogisticsPrimary,
		LogisticsNearRegion:   DefaultLogisticsNearRegion,
		LogisticsOther:        DefaultLogisticsOther,
		MiscRate:              DefaultMiscRate,
		TaxRate:               DefaultTaxRate,
	}
}

// FeeConfigOverrides replaces individual FeeConfig fields. Nil fields keep the base value.
type FeeConfigOverrides struct {
	InstallationPerDevice *float64 `json:"installationPerDevice,omitempty"`
	IntegrationRate       *float64 `json:"integrationRate,omitempty"`
	LogisticsPrimary      *float64 `json:"logisticsPrimary,omitempty"`
	LogisticsNearRegion   *float64 `json:"logisticsNearRegion,omitempty"`
	LogisticsOther        *float64 `json:"logisticsOther,omitempty"`
	MiscRate              *float64 `json:"miscRate,omitempty"`
	TaxRate               *float64 `json:"taxRate,omitempty"`
}

// Apply returns a copy of c with the supplied overrides. Negative or non-finite values are
// ignored so no breakdown component can become negative.
func (c FeeConfig) Apply(overrides *FeeConfigOverrides) FeeConfig {
	if overrides == nil {
		return c
	}
	replace := func(target *float64, value *float64) {
		if value == nil || math.IsNaN(*value) || math.IsInf(*value, 0) || *value < 0 {
			return
		}
		*target = *value
	}
	replace(&c.InstallationPerDevice, overrides.InstallationPerDevice)
	replace(&c.IntegrationRate, overrides.IntegrationRate)
	replace(&c.LogisticsPrimary, overrides.LogisticsPrimary)
	replace(&c.LogisticsNearRegion, overrides.LogisticsNearRegion)
	replace(&c.LogisticsOther, overrides.LogisticsOther)
	replace(&c.MiscRate, overrides.MiscRate)
	replace(&c.TaxRate, overrides.TaxRate)
	return c
}

// LogisticsPerTrip returns the per-trip logistics rate for the tier.
func (c FeeConfig) LogisticsPerTrip(tier LogisticsTier) float64 {
	switch tier {
	case LogisticsTierPrimary:
		return c.LogisticsPrimary
	case LogisticsTierNearRegion:
		return c.LogisticsNearRegion
	default:
		return c.LogisticsOther
	}
}

// FeeBreakdown is the itemised result of pricing a quote. Total equals TaxableBase plus TaxAmount.
type FeeBreakdown struct {
	InstallationFee  float64       `json:"installationFee" firestore:"installationFee"`
	IntegrationFee   float64       `json:"integrationFee" firestore:"integrationFee"`
	LogisticsCost    float64       `json:"logisticsCost" firestore:"logisticsCost"`
	MiscellaneousFee float64       `json:"miscellaneousFee" firestore:"miscellaneousFee"`
	TaxAmount        float64       `json:"taxAmount" firestore:"taxAmount"`
	Total            float64       `json:"total" firestore:"total"`
	TaxableBase      float64       `json:"taxableBase" firestore:"taxableBase"`
	Tier             LogisticsTier `json:"logisticsTier" firestore:"logisticsTier"`
	Trips            int           `json:"trips" firestore:"trips"`
}
