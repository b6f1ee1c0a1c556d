package services

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/samber/lo"
)

const feeTolerance = 1e-6

func TestComputeFees_Breakdown(t *testing.T) {
	got := ComputeFees(FeeInput{
		DevicesSubtotal: 100000,
		TotalDevices:    4,
		LocationHint:    lo.ToPtr("Lagos Island"),
		RoomsCount:      lo.ToPtr(5.0),
	})

	want := FeeBreakdown{
		InstallationFee:  60000,
		IntegrationFee:   10000,
		LogisticsCost:    100000,
		MiscellaneousFee: 5000,
		TaxableBase:      275000,
		TaxAmount:        20625,
		Total:            295625,
		Tier:             LogisticsTierPrimary,
		Trips:            4,
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, feeTolerance)); diff != "" {
		t.Fatalf("unexpected breakdown (-want +got):\n%s", diff)
	}
}

func TestComputeFees_TotalIsSumOfComponents(t *testing.T) {
	inputs := []FeeInput{
		{DevicesSubtotal: 0, TotalDevices: 0},
		{DevicesSubtotal: 12345.67, TotalDevices: 3, LocationHint: lo.ToPtr("Osogbo, Osun"), RoomsCount: lo.ToPtr(2.0)},
		{DevicesSubtotal: 999999, TotalDevices: 40, LocationHint: lo.ToPtr("Abuja"), RoomsCount: lo.ToPtr(20.0)},
		{DevicesSubtotal: 5000, TotalDevices: 1, Overrides: &FeeConfigOverrides{MiscRate: lo.ToPtr(0.2)}},
	}
	for _, in := range inputs {
		fees := ComputeFees(in)
		sum := in.DevicesSubtotal + fees.InstallationFee + fees.IntegrationFee + fees.LogisticsCost + fees.MiscellaneousFee + fees.TaxAmount
		if math.Abs(fees.Total-sum) > feeTolerance {
			t.Errorf("total %v does not match component sum %v for %+v", fees.Total, sum, in)
		}
		if math.Abs(fees.Total-(fees.TaxableBase+fees.TaxAmount)) > feeTolerance {
			t.Errorf("total %v does not equal taxable base plus tax for %+v", fees.Total, in)
		}
	}
}

func TestComputeFees_SanitizesAmounts(t *testing.T) {
	location := lo.ToPtr("Ikeja, Lagos")
	rooms := lo.ToPtr(9.0)
	zero := ComputeFees(FeeInput{LocationHint: location, RoomsCount: rooms})

	for _, bad := range []float64{-1, -1e9, math.NaN(), math.Inf(1), math.Inf(-1)} {
		got := ComputeFees(FeeInput{DevicesSubtotal: bad, TotalDevices: bad, LocationHint: location, RoomsCount: rooms})
		if diff := cmp.Diff(zero, got); diff != "" {
			t.Errorf("input %v should price like zero (-want +got):\n%s", bad, diff)
		}
	}
}

func TestClassifyLocation(t *testing.T) {
	cases := []struct {
		name string
		hint *string
		want LogisticsTier
	}{
		{name: "primary", hint: lo.ToPtr("Lagos Island"), want: LogisticsTierPrimary},
		{name: "primary uppercase", hint: lo.ToPtr("  LAGOS  "), want: LogisticsTierPrimary},
		{name: "near region", hint: lo.ToPtr("Ibadan, Oyo"), want: LogisticsTierNearRegion},
		{name: "near region kwara", hint: lo.ToPtr("Ilorin, Kwara State"), want: LogisticsTierNearRegion},
		{name: "other", hint: lo.ToPtr("Abuja"), want: LogisticsTierOther},
		{name: "empty", hint: lo.ToPtr(""), want: LogisticsTierOther},
		{name: "blank", hint: lo.ToPtr("   "), want: LogisticsTierOther},
		{name: "nil", hint: nil, want: LogisticsTierOther},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyLocation(tc.hint); got != tc.want {
				t.Fatalf("ClassifyLocation = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestEstimateTrips(t *testing.T) {
	cases := []struct {
		rooms *float64
		want  int
	}{
		{rooms: lo.ToPtr(2.0), want: 3},
		{rooms: lo.ToPtr(3.0), want: 3},
		{rooms: lo.ToPtr(5.0), want: 4},
		{rooms: lo.ToPtr(8.0), want: 5},
		{rooms: lo.ToPtr(10.0), want: 5},
		{rooms: lo.ToPtr(12.0), want: 5},
		{rooms: lo.ToPtr(15.0), want: 6},
		{rooms: lo.ToPtr(math.NaN()), want: 4},
		{rooms: lo.ToPtr(math.Inf(1)), want: 4},
		{rooms: lo.ToPtr(math.Inf(-1)), want: 4},
		{rooms: nil, want: 4},
	}
	for _, tc := range cases {
		if got := EstimateTrips(tc.rooms); got != tc.want {
			t.Errorf("EstimateTrips(%v) = %d, want %d", lo.FromPtr(tc.rooms), got, tc.want)
		}
	}
}

func TestComputeFees_OverridesReplaceOnlySuppliedFields(t *testing.T) {
	in := FeeInput{DevicesSubtotal: 200000, TotalDevices: 5, LocationHint: lo.ToPtr("Abeokuta, Ogun"), RoomsCount: lo.ToPtr(4.0)}
	base := ComputeFees(in)

	in.Overrides = &FeeConfigOverrides{TaxRate: lo.ToPtr(0.0)}
	got := ComputeFees(in)

	if got.TaxAmount != 0 {
		t.Fatalf("expected zero tax, got %v", got.TaxAmount)
	}
	if got.LogisticsCost != base.LogisticsCost || got.MiscellaneousFee != base.MiscellaneousFee {
		t.Fatalf("override changed untouched fields: base=%+v got=%+v", base, got)
	}
	if math.Abs(got.Total-base.TaxableBase) > feeTolerance {
		t.Fatalf("expected total to equal taxable base, got %v want %v", got.Total, base.TaxableBase)
	}
}

func TestComputeFees_IgnoresUnusableOverrides(t *testing.T) {
	in := FeeInput{DevicesSubtotal: 1000, TotalDevices: 1}
	base := ComputeFees(in)

	in.Overrides = &FeeConfigOverrides{
		TaxRate:               lo.ToPtr(-0.5),
		InstallationPerDevice: lo.ToPtr(math.Inf(1)),
		LogisticsOther:        lo.ToPtr(math.NaN()),
	}
	if diff := cmp.Diff(base, ComputeFees(in)); diff != "" {
		t.Fatalf("unusable overrides must be ignored (-want +got):\n%s", diff)
	}
}

func TestFeeEngine_UsesConfiguredBase(t *testing.T) {
	cfg := DefaultFeeConfig()
	cfg.LogisticsOther = 100000
	cfg.TaxRate = 0
	engine := NewFeeEngine(cfg)

	got := engine.Compute(FeeInput{LocationHint: lo.ToPtr("Kano")})
	if got.LogisticsCost != 400000 {
		t.Fatalf("expected configured logistics rate, got %v", got.LogisticsCost)
	}
	if got.TaxAmount != 0 {
		t.Fatalf("expected configured tax rate, got %v", got.TaxAmount)
	}
	if engine.Config() != cfg {
		t.Fatalf("Config() = %+v, want %+v", engine.Config(), cfg)
	}

	var nilEngine *FeeEngine
	if nilEngine.Config() != DefaultFeeConfig() {
		t.Fatalf("nil engine should fall back to default rates")
	}
}
