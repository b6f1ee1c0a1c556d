package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/installhub/api/internal/repositories"
)

const backfillMetricNamespace = "github.com/installhub/api/internal/services/backfill"

// Backfill outcomes recorded per project.
const (
	BackfillOutcomeCreated = "created"
	BackfillOutcomeSkipped = "skipped"
	BackfillOutcomeFailed  = "failed"
)

// BackfillFailure records why a single project could not be processed.
type BackfillFailure struct {
	ProjectID string `json:"projectId"`
	Stage     string `json:"stage"`
	Reason    string `json:"reason"`
}

// BackfillReport summarises one backfill run.
type BackfillReport struct {
	RunID              string            `json:"runId"`
	DryRun             bool              `json:"dryRun"`
	Processed          int               `json:"processed"`
	Created            int               `json:"created"`
	Skipped            int               `json:"skipped"`
	Empty              int               `json:"empty"`
	DerivationFailures int               `json:"derivationFailures"`
	Failed             int               `json:"failed"`
	Failures           []BackfillFailure `json:"failures,omitempty"`
	ReportLocation     string            `json:"reportLocation,omitempty"`
	StartedAt          time.Time         `json:"startedAt"`
	FinishedAt         time.Time         `json:"finishedAt"`
}

// ShipmentBackfillDeps wires the collaborators of the shipment backfill.
type ShipmentBackfillDeps struct {
	Projects   repositories.ProjectRepository
	QuoteItems repositories.QuoteItemRepository
	Shipments  repositories.ShipmentRepository
	Events     EventPublisher
	Reports    ReportWriter
	Logger     *zap.Logger
	Meter      metric.Meter
	Workers    int
	DryRun     bool
	Now        func() time.Time
	IDGen      func() string
}

// ShipmentBackfillService gives every project exactly one device shipment record. Running it
// repeatedly never duplicates or overwrites a shipment.
type ShipmentBackfillService struct {
	projects   repositories.ProjectRepository
	quoteItems repositories.QuoteItemRepository
	shipments  repositories.ShipmentRepository
	events     EventPublisher
	reports    ReportWriter
	logger     *zap.Logger
	outcomes   metric.Int64Counter
	workers    int
	dryRun     bool
	now        func() time.Time
	newID      func() string
}

var _ ShipmentBackfiller = (*ShipmentBackfillService)(nil)

// NewShipmentBackfillService validates dependencies and constructs the backfill.
func NewShipmentBackfillService(deps ShipmentBackfillDeps) (*ShipmentBackfillService, error) {
	if deps.Projects == nil {
		return nil, errors.New("shipment backfill: project repository is required")
	}
	if deps.QuoteItems == nil {
		return nil, errors.New("shipment backfill: quote item repository is required")
	}
	if deps.Shipments == nil {
		return nil, errors.New("shipment backfill: shipment repository is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(backfillMetricNamespace)
	}
	outcomes, err := meter.Int64Counter(
		"shipments.backfill.projects",
		metric.WithDescription("Projects processed by the shipment backfill, by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("shipment backfill: register metric: %w", err)
	}
	workers := deps.Workers
	if workers <= 0 {
		workers = 1
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	newID := deps.IDGen
	if newID == nil {
		newID = newULID
	}

	return &ShipmentBackfillService{
		projects:   deps.Projects,
		quoteItems: deps.QuoteItems,
		shipments:  deps.Shipments,
		events:     deps.Events,
		reports:    deps.Reports,
		logger:     logger,
		outcomes:   outcomes,
		workers:    workers,
		dryRun:     deps.DryRun,
		now:        func() time.Time { return now().UTC() },
		newID:      newID,
	}, nil
}

// Run processes every project. Per-project failures are logged and counted; only a failure to
// list projects or a cancelled context aborts the run.
func (s *ShipmentBackfillService) Run(ctx context.Context) (BackfillReport, error) {
	report := BackfillReport{RunID: s.newID(), DryRun: s.dryRun, StartedAt: s.now()}
	logger := s.logger.With(zap.String("run_id", report.RunID), zap.Bool("dry_run", s.dryRun))

	projects, err := s.projects.ListWithMilestones(ctx)
	if err != nil {
		return report, fmt.Errorf("shipment backfill: list projects: %w", err)
	}
	logger.Info("shipment backfill started", zap.Int("projects", len(projects)), zap.Int("workers", s.workers))

	var mu sync.Mutex
	record := func(res projectResult) {
		mu.Lock()
		defer mu.Unlock()
		report.Processed++
		switch res.outcome {
		case BackfillOutcomeCreated:
			report.Created++
			if res.empty {
				report.Empty++
			}
		case BackfillOutcomeSkipped:
			report.Skipped++
		case BackfillOutcomeFailed:
			report.Failed++
		}
		if res.derivationErr != nil {
			report.DerivationFailures++
			report.Failures = append(report.Failures, BackfillFailure{ProjectID: res.projectID, Stage: "derive", Reason: res.derivationErr.Error()})
		}
		if res.err != nil {
			report.Failures = append(report.Failures, BackfillFailure{ProjectID: res.projectID, Stage: res.stage, Reason: res.err.Error()})
		}
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.workers)
	for _, project := range projects {
		if err := groupCtx.Err(); err != nil {
			break
		}
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			res := s.processProject(groupCtx, logger, project)
			s.outcomes.Add(groupCtx, 1, metric.WithAttributes(attribute.String("outcome", res.outcome)))
			record(res)
			return nil
		})
	}
	waitErr := group.Wait()
	report.FinishedAt = s.now()
	if waitErr == nil {
		waitErr = ctx.Err()
	}
	if waitErr != nil {
		logger.Error("shipment backfill aborted", zap.Error(waitErr), zap.Int("processed", report.Processed))
		return report, fmt.Errorf("shipment backfill: %w", waitErr)
	}

	if s.reports != nil {
		location, err := s.reports.WriteBackfillReport(ctx, report)
		if err != nil {
			logger.Warn("shipment backfill report upload failed", zap.Error(err))
		} else {
			report.ReportLocation = location
		}
	}

	logger.Info("shipment backfill finished",
		zap.Int("processed", report.Processed),
		zap.Int("created", report.Created),
		zap.Int("skipped", report.Skipped),
		zap.Int("empty", report.Empty),
		zap.Int("derivation_failures", report.DerivationFailures),
		zap.Int("failed", report.Failed),
		zap.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
	)
	return report, nil
}

type projectResult struct {
	projectID     string
	outcome       string
	empty         bool
	stage         string
	err           error
	derivationErr error
}

func (s *ShipmentBackfillService) processProject(ctx context.Context, logger *zap.Logger, project Project) projectResult {
	res := projectResult{projectID: project.ID}
	logger = logger.With(zap.String("project_id", project.ID))
	if strings.TrimSpace(project.ID) == "" {
		res.outcome, res.stage, res.err = BackfillOutcomeFailed, "validate", errors.New("project id is empty")
		logger.Warn("shipment backfill skipped project without id")
		return res
	}

	if _, err := s.shipments.FindByProject(ctx, project.ID); err == nil {
		res.outcome = BackfillOutcomeSkipped
		return res
	} else if !isRepoNotFound(err) {
		res.outcome, res.stage, res.err = BackfillOutcomeFailed, "lookup", err
		logger.Error("shipment backfill existence check failed", zap.Error(err))
		return res
	}

	shipment := ProjectDeviceShipment{
		ID:        s.newID(),
		ProjectID: project.ID,
		Items:     []ShipmentItem{},
		CreatedAt: s.now(),
	}
	milestone, ok := project.FirstMilestone()
	if ok && milestone.HasItemData() {
		shipment.MilestoneID = &milestone.ID
		items, err := DeriveShipmentItems(ctx, milestone.Items, s.lookupQuoteItems)
		if err != nil {
			res.derivationErr = err
			logger.Warn("shipment derivation failed; persisting empty shipment",
				zap.String("milestone_id", milestone.ID),
				zap.Error(err),
			)
		} else {
			shipment.Items = items
		}
	} else {
		res.empty = true
	}

	if s.dryRun {
		res.outcome = BackfillOutcomeCreated
		logger.Debug("shipment backfill dry run", zap.Int("items", len(shipment.Items)))
		return res
	}

	created, err := s.shipments.CreateIfAbsent(ctx, shipment)
	if err != nil {
		if isRepoConflict(err) {
			res.outcome = BackfillOutcomeSkipped
			logger.Info("shipment already created concurrently", zap.Error(err))
			return res
		}
		res.outcome, res.stage, res.err = BackfillOutcomeFailed, "create", err
		logger.Error("shipment backfill create failed", zap.Error(err))
		return res
	}
	if !created {
		res.outcome = BackfillOutcomeSkipped
		return res
	}

	res.outcome = BackfillOutcomeCreated
	logger.Info("shipment created", zap.String("shipment_id", shipment.ID), zap.Int("items", len(shipment.Items)))
	s.publishCreated(ctx, logger, shipment)
	return res
}

func (s *ShipmentBackfillService) lookupQuoteItems(ctx context.Context, ids []string) ([]QuoteItem, error) {
	return s.quoteItems.FindByIDs(ctx, ids)
}

func (s *ShipmentBackfillService) publishCreated(ctx context.Context, logger *zap.Logger, shipment ProjectDeviceShipment) {
	if s.events == nil {
		return
	}
	event := ShipmentCreatedEvent{
		ShipmentID:  shipment.ID,
		ProjectID:   shipment.ProjectID,
		MilestoneID: shipment.MilestoneID,
		ItemCount:   len(shipment.Items),
		Source:      "backfill",
		CreatedAt:   shipment.CreatedAt,
	}
	if _, err := s.events.PublishShipmentCreated(ctx, event); err != nil {
		logger.Warn("shipment created event publish failed", zap.Error(err))
	}
}
