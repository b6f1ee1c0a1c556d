package firestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/samber/lo"

	domain "github.com/installhub/api/internal/domain"
	pfirestore "github.com/installhub/api/internal/platform/firestore"
	"github.com/installhub/api/internal/repositories"
)

const (
	projectsCollection   = "projects"
	milestonesCollection = "milestones"
)

type projectDocument struct {
	Name      string    `firestore:"name"`
	Location  string    `firestore:"location"`
	Rooms     *int      `firestore:"rooms"`
	CreatedAt time.Time `firestore:"createdAt"`
}

// ProjectRepository reads projects and their milestone subcollections.
type ProjectRepository struct {
	provider *pfirestore.Provider
	projects *pfirestore.Collection[domain.Project]
}

var _ repositories.ProjectRepository = (*ProjectRepository)(nil)

// NewProjectRepository constructs a Firestore-backed project repository.
func NewProjectRepository(provider *pfirestore.Provider) (*ProjectRepository, error) {
	if provider == nil {
		return nil, errors.New("project repository requires firestore provider")
	}
	return &ProjectRepository{
		provider: provider,
		projects: pfirestore.NewCollection(provider, projectsCollection, decodeProject),
	}, nil
}

// ListWithMilestones loads every project ordered by creation time. Milestones are read with
// a single collection group query and attached to their parent project.
func (r *ProjectRepository) ListWithMilestones(ctx context.Context) ([]domain.Project, error) {
	projects, err := r.projects.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("createdAt", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	milestones, err := pfirestore.DecodeAll(ctx, "milestones.collectionGroup",
		client.CollectionGroup(milestonesCollection).Documents(ctx), decodeMilestone)
	if err != nil {
		return nil, err
	}
	byProject := lo.GroupBy(milestones, func(m domain.Milestone) string { return m.ProjectID })
	for i := range projects {
		projects[i].Milestones = sortMilestones(byProject[projects[i].ID])
	}
	return projects, nil
}

// FindByID loads a project with its milestones.
func (r *ProjectRepository) FindByID(ctx context.Context, projectID string) (domain.Project, error) {
	projectID = strings.TrimSpace(projectID)
	project, err := r.projects.Get(ctx, projectID)
	if err != nil {
		return domain.Project{}, err
	}
	doc, err := r.projects.Doc(ctx, projectID)
	if err != nil {
		return domain.Project{}, err
	}
	milestones, err := pfirestore.DecodeAll(ctx, "milestones.query",
		doc.Collection(milestonesCollection).OrderBy("index", firestore.Asc).Documents(ctx), decodeMilestone)
	if err != nil {
		return domain.Project{}, err
	}
	project.Milestones = sortMilestones(milestones)
	return project, nil
}

func decodeProject(snap *firestore.DocumentSnapshot) (domain.Project, error) {
	var doc projectDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Project{}, err
	}
	return domain.Project{
		ID:        snap.Ref.ID,
		Name:      doc.Name,
		Location:  doc.Location,
		Rooms:     doc.Rooms,
		CreatedAt: doc.CreatedAt.UTC(),
	}, nil
}

// decodeMilestone keeps the items field loosely typed. Arrays and maps are re-encoded as JSON;
// a string field is taken as JSON text verbatim so malformed payloads surface at derivation.
func decodeMilestone(snap *firestore.DocumentSnapshot) (domain.Milestone, error) {
	data := snap.Data()
	milestone := domain.Milestone{ID: snap.Ref.ID}
	if parent := snap.Ref.Parent; parent != nil && parent.Parent != nil {
		milestone.ProjectID = parent.Parent.ID
	}
	if title, ok := data["title"].(string); ok {
		milestone.Title = title
	}
	switch idx := data["index"].(type) {
	case int64:
		milestone.Index = int(idx)
	case float64:
		milestone.Index = int(idx)
	}

	switch items := data["items"].(type) {
	case nil:
	default:
		// Strings are encoded as JSON strings, not parsed, so they derive no items.
		raw, err := json.Marshal(items)
		if err != nil {
			return domain.Milestone{}, fmt.Errorf("encode milestone items: %w", err)
		}
		milestone.Items = raw
	}
	return milestone, nil
}

func sortMilestones(milestones []domain.Milestone) []domain.Milestone {
	slices.SortStableFunc(milestones, func(a, b domain.Milestone) int { return a.Index - b.Index })
	return milestones
}
