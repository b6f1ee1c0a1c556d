package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/samber/lo"

	"github.com/installhub/api/internal/repositories/memory"
)

var backfillNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

type fakeEventPublisher struct {
	mu     sync.Mutex
	events []ShipmentCreatedEvent
	err    error
}

func (p *fakeEventPublisher) PublishShipmentCreated(_ context.Context, event ShipmentCreatedEvent) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	if p.err != nil {
		return "", p.err
	}
	return fmt.Sprintf("msg-%d", len(p.events)), nil
}

type fakeReportWriter struct {
	reports []BackfillReport
	err     error
}

func (w *fakeReportWriter) WriteBackfillReport(_ context.Context, report BackfillReport) (string, error) {
	w.reports = append(w.reports, report)
	if w.err != nil {
		return "", w.err
	}
	return "gs://reports/" + report.RunID + ".json", nil
}

func sequentialIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func newBackfill(t *testing.T, store *memory.Store, mutate func(*ShipmentBackfillDeps)) *ShipmentBackfillService {
	t.Helper()
	deps := ShipmentBackfillDeps{
		Projects:   store.Projects(),
		QuoteItems: store.QuoteItems(),
		Shipments:  store.Shipments(),
		Now:        func() time.Time { return backfillNow },
		IDGen:      sequentialIDs("id"),
	}
	if mutate != nil {
		mutate(&deps)
	}
	svc, err := NewShipmentBackfillService(deps)
	if err != nil {
		t.Fatalf("NewShipmentBackfillService error: %v", err)
	}
	return svc
}

func projectWithItems(id, raw string) Project {
	return Project{
		ID: id,
		Milestones: []Milestone{
			{ID: id + "-m2", ProjectID: id, Index: 2, Items: json.RawMessage(`[{"quoteItemId":"ignored"}]`)},
			{ID: id + "-m1", ProjectID: id, Index: 1, Items: json.RawMessage(raw)},
		},
	}
}

func TestShipmentBackfill_IsIdempotent(t *testing.T) {
	store := memory.NewStore().
		AddQuoteItems(QuoteItem{ID: "A", Name: "Camera", Category: "Security"}).
		AddProject(projectWithItems("p1", `[{"quoteItemId":"A","quantity":2},{"quoteItemId":"missing"}]`)).
		AddProject(Project{ID: "p2"})
	svc := newBackfill(t, store, nil)

	first, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("first run error: %v", err)
	}
	if first.Created != 2 || first.Skipped != 0 || first.Processed != 2 {
		t.Fatalf("unexpected first report %+v", first)
	}

	second, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("second run error: %v", err)
	}
	if second.Created != 0 || second.Skipped != 2 {
		t.Fatalf("second run must create nothing, got %+v", second)
	}
	if store.ShipmentCount() != 2 {
		t.Fatalf("expected exactly one shipment per project, got %d", store.ShipmentCount())
	}

	shipment, _ := store.Shipment("p1")
	if lo.FromPtr(shipment.MilestoneID) != "p1-m1" {
		t.Fatalf("expected first milestone link, got %v", lo.FromPtr(shipment.MilestoneID))
	}
	want := []ShipmentItem{
		{QuoteItemID: lo.ToPtr("A"), Quantity: 2, Name: lo.ToPtr("Camera"), Category: lo.ToPtr("Security")},
		{QuoteItemID: lo.ToPtr("missing"), Quantity: 1},
	}
	if diff := cmp.Diff(want, shipment.Items); diff != "" {
		t.Fatalf("unexpected items (-want +got):\n%s", diff)
	}
	if !shipment.CreatedAt.Equal(backfillNow) {
		t.Fatalf("unexpected createdAt %s", shipment.CreatedAt)
	}
}

func TestShipmentBackfill_ProjectWithoutMilestones(t *testing.T) {
	store := memory.NewStore().AddProject(Project{ID: "bare"})
	report, err := newBackfill(t, store, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if report.Empty != 1 {
		t.Fatalf("expected empty shipment counted, got %+v", report)
	}
	shipment, ok := store.Shipment("bare")
	if !ok {
		t.Fatal("expected shipment to be created")
	}
	if shipment.MilestoneID != nil {
		t.Fatalf("expected nil milestone id, got %v", *shipment.MilestoneID)
	}
	if shipment.Items == nil || len(shipment.Items) != 0 {
		t.Fatalf("expected empty non-nil items, got %#v", shipment.Items)
	}
}

func TestShipmentBackfill_DerivationFailureStillPersists(t *testing.T) {
	store := memory.NewStore().
		AddProject(projectWithItems("broken", `[{"quoteItemId":`)).
		AddProject(projectWithItems("lookup", `[{"quoteItemId":"A"}]`))
	store.Fail["FindQuoteItems"] = errors.New("catalog offline")

	report, err := newBackfill(t, store, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if report.Created != 2 || report.DerivationFailures != 2 || report.Failed != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
	for _, id := range []string{"broken", "lookup"} {
		shipment, ok := store.Shipment(id)
		if !ok {
			t.Fatalf("%s: expected shipment despite derivation failure", id)
		}
		if len(shipment.Items) != 0 || shipment.Items == nil {
			t.Fatalf("%s: expected empty items, got %#v", id, shipment.Items)
		}
		if lo.FromPtr(shipment.MilestoneID) != id+"-m1" {
			t.Fatalf("%s: milestone link should be kept", id)
		}
	}
	stages := lo.Map(report.Failures, func(f BackfillFailure, _ int) string { return f.Stage })
	if diff := cmp.Diff([]string{"derive", "derive"}, stages); diff != "" {
		t.Fatalf("unexpected failure stages (-want +got):\n%s", diff)
	}
}

func TestShipmentBackfill_IsolatesProjectFailures(t *testing.T) {
	store := memory.NewStore().
		AddProject(Project{ID: "ok"}).
		AddProject(Project{ID: "lookup-fails"}).
		AddProject(Project{ID: "create-fails"}).
		AddProject(Project{ID: "raced"}).
		AddProject(Project{ID: "exists"}).
		PutShipment(ProjectDeviceShipment{ID: "s-old", ProjectID: "exists", Items: []ShipmentItem{}})
	store.Fail["FindShipment:lookup-fails"] = &memory.Error{Msg: "store unavailable", Unavailable: true}
	store.Fail["CreateShipment:create-fails"] = errors.New("write rejected")
	store.Fail["CreateShipment:raced"] = &memory.Error{Msg: "already exists", Conflict: true}

	report, err := newBackfill(t, store, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	want := BackfillReport{Processed: 5, Created: 1, Skipped: 2, Empty: 1, Failed: 2}
	got := BackfillReport{Processed: report.Processed, Created: report.Created, Skipped: report.Skipped, Empty: report.Empty, Failed: report.Failed}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected counters (-want +got):\n%s", diff)
	}
	stages := lo.SliceToMap(report.Failures, func(f BackfillFailure) (string, string) { return f.ProjectID, f.Stage })
	if diff := cmp.Diff(map[string]string{"lookup-fails": "lookup", "create-fails": "create"}, stages); diff != "" {
		t.Fatalf("unexpected failures (-want +got):\n%s", diff)
	}
	if existing, _ := store.Shipment("exists"); existing.ID != "s-old" {
		t.Fatalf("existing shipment must not be overwritten, got %s", existing.ID)
	}
}

func TestShipmentBackfill_ListFailureIsFatal(t *testing.T) {
	store := memory.NewStore()
	store.Fail["ListWithMilestones"] = errors.New("store unreachable")
	reports := &fakeReportWriter{}

	_, err := newBackfill(t, store, func(d *ShipmentBackfillDeps) { d.Reports = reports }).Run(context.Background())
	if err == nil {
		t.Fatal("expected fatal error")
	}
	if len(reports.reports) != 0 {
		t.Fatal("aborted runs must not upload a report")
	}
}

func TestShipmentBackfill_CancelledContext(t *testing.T) {
	store := memory.NewStore().AddProject(Project{ID: "p1"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newBackfill(t, store, nil).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if store.ShipmentCount() != 0 {
		t.Fatal("no shipment should be created after cancellation")
	}
}

func TestShipmentBackfill_ConcurrentWorkers(t *testing.T) {
	store := memory.NewStore().AddQuoteItems(QuoteItem{ID: "A", Name: "Hub", Category: "Network"})
	for i := range 40 {
		store.AddProject(projectWithItems(fmt.Sprintf("p%02d", i), `[{"quoteItemId":"A","quantity":1}]`))
	}
	events := &fakeEventPublisher{}
	svc := newBackfill(t, store, func(d *ShipmentBackfillDeps) {
		d.Workers = 8
		d.Events = events
	})

	report, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if report.Created != 40 || store.ShipmentCount() != 40 {
		t.Fatalf("expected 40 shipments, report=%+v stored=%d", report, store.ShipmentCount())
	}
	if len(events.events) != 40 {
		t.Fatalf("expected one event per created shipment, got %d", len(events.events))
	}
	if store.CallCount("FindQuoteItems") != 40 {
		t.Fatalf("expected one catalog lookup per project, got %d", store.CallCount("FindQuoteItems"))
	}
}

func TestShipmentBackfill_DryRunDoesNotPersist(t *testing.T) {
	store := memory.NewStore().
		AddProject(Project{ID: "p1"}).
		AddProject(projectWithItems("p2", `[]`))
	events := &fakeEventPublisher{}
	report, err := newBackfill(t, store, func(d *ShipmentBackfillDeps) {
		d.DryRun = true
		d.Events = events
	}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if !report.DryRun || report.Created != 2 {
		t.Fatalf("unexpected dry run report %+v", report)
	}
	if store.ShipmentCount() != 0 || store.CallCount("CreateShipment") != 0 {
		t.Fatal("dry run must not write shipments")
	}
	if len(events.events) != 0 {
		t.Fatal("dry run must not publish events")
	}
}

func TestShipmentBackfill_PublishesAndReports(t *testing.T) {
	store := memory.NewStore().
		AddQuoteItems(QuoteItem{ID: "A", Name: "Camera", Category: "Security"}).
		AddProject(projectWithItems("p1", `[{"quoteItemId":"A","quantity":2}]`))
	events := &fakeEventPublisher{err: errors.New("topic gone")}
	reports := &fakeReportWriter{}

	report, err := newBackfill(t, store, func(d *ShipmentBackfillDeps) {
		d.Events = events
		d.Reports = reports
	}).Run(context.Background())
	if err != nil {
		t.Fatalf("publish failures must not fail the run: %v", err)
	}

	wantEvent := ShipmentCreatedEvent{
		ShipmentID:  "id-2",
		ProjectID:   "p1",
		MilestoneID: lo.ToPtr("p1-m1"),
		ItemCount:   1,
		Source:      "backfill",
		CreatedAt:   backfillNow,
	}
	if len(events.events) != 1 {
		t.Fatalf("expected one event, got %d", len(events.events))
	}
	if diff := cmp.Diff(wantEvent, events.events[0]); diff != "" {
		t.Fatalf("unexpected event (-want +got):\n%s", diff)
	}
	if len(reports.reports) != 1 || reports.reports[0].RunID != "id-1" {
		t.Fatalf("expected report upload for run id-1, got %+v", reports.reports)
	}
	if report.ReportLocation != "gs://reports/id-1.json" {
		t.Fatalf("unexpected report location %q", report.ReportLocation)
	}
}

func TestShipmentBackfill_ReportUploadFailureIsNotFatal(t *testing.T) {
	store := memory.NewStore().AddProject(Project{ID: "p1"})
	report, err := newBackfill(t, store, func(d *ShipmentBackfillDeps) {
		d.Reports = &fakeReportWriter{err: errors.New("bucket missing")}
	}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if report.ReportLocation != "" {
		t.Fatalf("expected no report location, got %q", report.ReportLocation)
	}
}

func TestNewShipmentBackfillService_RequiresRepositories(t *testing.T) {
	store := memory.NewStore()
	cases := map[string]ShipmentBackfillDeps{
		"projects":    {QuoteItems: store.QuoteItems(), Shipments: store.Shipments()},
		"quote items": {Projects: store.Projects(), Shipments: store.Shipments()},
		"shipments":   {Projects: store.Projects(), QuoteItems: store.QuoteItems()},
	}
	for name, deps := range cases {
		if _, err := NewShipmentBackfillService(deps); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}
