package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/samber/lo"

	"github.com/installhub/api/internal/repositories/memory"
)

var quoteNow = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

func newQuoteFixture(t *testing.T) (*memory.Store, QuoteService) {
	t.Helper()
	store := memory.NewStore().
		AddQuoteItems(
			QuoteItem{ID: "cam", Name: "Camera", Category: "Security", UnitPrice: 20000},
			QuoteItem{ID: "hub", Name: "Hub", Category: "Network", UnitPrice: 60000},
		).
		AddProject(Project{ID: "proj-1", Location: "Lekki, Lagos", Rooms: lo.ToPtr(10)})
	svc, err := NewQuoteService(QuoteServiceDeps{
		Engine:     NewFeeEngine(DefaultFeeConfig()),
		Projects:   store.Projects(),
		QuoteItems: store.QuoteItems(),
		Quotes:     store.Quotes(),
		Clock:      func() time.Time { return quoteNow },
		IDGen:      func() string { return "quote-1" },
	})
	if err != nil {
		t.Fatalf("NewQuoteService error: %v", err)
	}
	return store, svc
}

func TestQuoteService_PreviewFees(t *testing.T) {
	_, svc := newQuoteFixture(t)
	got, err := svc.PreviewFees(context.Background(), PreviewFeesCommand{
		DevicesSubtotal: 100000,
		TotalDevices:    4,
		Location:        lo.ToPtr("Lagos Island"),
		Rooms:           lo.ToPtr(5.0),
	})
	if err != nil {
		t.Fatalf("PreviewFees error: %v", err)
	}
	if got.Total != 295625 || got.Tier != LogisticsTierPrimary {
		t.Fatalf("unexpected breakdown %+v", got)
	}
}

func TestQuoteService_GenerateQuote(t *testing.T) {
	store, svc := newQuoteFixture(t)

	quote, err := svc.GenerateQuote(context.Background(), GenerateQuoteCommand{
		ProjectID: " proj-1 ",
		Lines: []QuoteLineInput{
			{QuoteItemID: "cam", Quantity: 3},
			{QuoteItemID: "hub", Quantity: 1},
		},
	})
	if err != nil {
		t.Fatalf("GenerateQuote error: %v", err)
	}

	wantFees := ComputeFees(FeeInput{
		DevicesSubtotal: 120000,
		TotalDevices:    4,
		LocationHint:    lo.ToPtr("Lekki, Lagos"),
		RoomsCount:      lo.ToPtr(10.0),
	})
	want := Quote{
		ID:        "quote-1",
		ProjectID: "proj-1",
		Location:  "Lekki, Lagos",
		Rooms:     lo.ToPtr(10),
		Lines: []QuoteLine{
			{QuoteItemID: "cam", Name: "Camera", Category: "Security", UnitPrice: 20000, Quantity: 3, Amount: 60000},
			{QuoteItemID: "hub", Name: "Hub", Category: "Network", UnitPrice: 60000, Quantity: 1, Amount: 60000},
		},
		DevicesSubtotal: 120000,
		TotalDevices:    4,
		Fees:            wantFees,
		CreatedAt:       quoteNow,
	}
	if diff := cmp.Diff(want, quote, cmpopts.EquateApprox(0, 1e-6)); diff != "" {
		t.Fatalf("unexpected quote (-want +got):\n%s", diff)
	}
	if quote.Fees.Trips != 5 || quote.Fees.Tier != LogisticsTierPrimary {
		t.Fatalf("expected project location and rooms to drive fees, got %+v", quote.Fees)
	}

	stored, err := svc.GetQuote(context.Background(), "quote-1")
	if err != nil {
		t.Fatalf("GetQuote error: %v", err)
	}
	if diff := cmp.Diff(quote, stored); diff != "" {
		t.Fatalf("stored quote differs (-want +got):\n%s", diff)
	}
	if store.CallCount("FindQuoteItems") != 1 {
		t.Fatalf("expected one catalog lookup, got %d", store.CallCount("FindQuoteItems"))
	}
}

func TestQuoteService_GenerateQuoteOverridesProjectContext(t *testing.T) {
	_, svc := newQuoteFixture(t)
	quote, err := svc.GenerateQuote(context.Background(), GenerateQuoteCommand{
		ProjectID: "proj-1",
		Lines:     []QuoteLineInput{{QuoteItemID: "cam", Quantity: 1}},
		Location:  lo.ToPtr(" Abuja "),
		Rooms:     lo.ToPtr(2),
		Overrides: &FeeConfigOverrides{TaxRate: lo.ToPtr(0.0)},
	})
	if err != nil {
		t.Fatalf("GenerateQuote error: %v", err)
	}
	if quote.Location != "Abuja" || quote.Fees.Tier != LogisticsTierOther || quote.Fees.Trips != 3 {
		t.Fatalf("expected request context to win, got %+v", quote)
	}
	if quote.Fees.TaxAmount != 0 {
		t.Fatalf("expected tax override, got %v", quote.Fees.TaxAmount)
	}
}

func TestQuoteService_GenerateQuoteErrors(t *testing.T) {
	cases := []struct {
		name  string
		cmd   GenerateQuoteCommand
		setup func(*memory.Store)
		want  error
	}{
		{name: "missing project id", cmd: GenerateQuoteCommand{Lines: []QuoteLineInput{{QuoteItemID: "cam", Quantity: 1}}}, want: ErrQuoteInvalidInput},
		{name: "no lines", cmd: GenerateQuoteCommand{ProjectID: "proj-1"}, want: ErrQuoteInvalidInput},
		{name: "zero quantity", cmd: GenerateQuoteCommand{ProjectID: "proj-1", Lines: []QuoteLineInput{{QuoteItemID: "cam"}}}, want: ErrQuoteInvalidInput},
		{name: "blank item", cmd: GenerateQuoteCommand{ProjectID: "proj-1", Lines: []QuoteLineInput{{QuoteItemID: " ", Quantity: 1}}}, want: ErrQuoteInvalidInput},
		{name: "unknown project", cmd: GenerateQuoteCommand{ProjectID: "nope", Lines: []QuoteLineInput{{QuoteItemID: "cam", Quantity: 1}}}, want: ErrProjectNotFound},
		{name: "unknown item", cmd: GenerateQuoteCommand{ProjectID: "proj-1", Lines: []QuoteLineInput{{QuoteItemID: "ghost", Quantity: 1}}}, want: ErrQuoteUnknownItem},
		{
			name: "store unavailable",
			cmd:  GenerateQuoteCommand{ProjectID: "proj-1", Lines: []QuoteLineInput{{QuoteItemID: "cam", Quantity: 1}}},
			setup: func(s *memory.Store) {
				s.Fail["InsertQuote"] = &memory.Error{Msg: "deadline", Unavailable: true}
			},
			want: ErrServiceUnavailable,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store, svc := newQuoteFixture(t)
			if tc.setup != nil {
				tc.setup(store)
			}
			_, err := svc.GenerateQuote(context.Background(), tc.cmd)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestQuoteService_GetQuoteNotFound(t *testing.T) {
	_, svc := newQuoteFixture(t)
	if _, err := svc.GetQuote(context.Background(), "missing"); !errors.Is(err, ErrQuoteNotFound) {
		t.Fatalf("expected ErrQuoteNotFound, got %v", err)
	}
	if _, err := svc.GetQuote(context.Background(), " "); !errors.Is(err, ErrQuoteInvalidInput) {
		t.Fatalf("expected ErrQuoteInvalidInput, got %v", err)
	}
}

func TestQuoteService_WithoutStore(t *testing.T) {
	svc, err := NewQuoteService(QuoteServiceDeps{Engine: NewFeeEngine(DefaultFeeConfig())})
	if err != nil {
		t.Fatalf("NewQuoteService error: %v", err)
	}
	if _, err := svc.PreviewFees(context.Background(), PreviewFeesCommand{}); err != nil {
		t.Fatalf("preview must work without a store: %v", err)
	}
	if _, err := svc.GenerateQuote(context.Background(), GenerateQuoteCommand{ProjectID: "p"}); !errors.Is(err, ErrServiceUnavailable) {
		t.Fatalf("expected ErrServiceUnavailable, got %v", err)
	}
	if _, err := NewQuoteService(QuoteServiceDeps{}); err == nil {
		t.Fatal("expected error without fee engine")
	}
}
