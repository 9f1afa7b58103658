package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Haseeb-Ahmed-Spectreco/JIRA/internal/config"
	"github.com/Haseeb-Ahmed-Spectreco/JIRA/internal/models"
	"github.com/Haseeb-Ahmed-Spectreco/JIRA/internal/repository"
)

func strPtr(s string) *string { return &s }

// fakeStore — in-memory реализация dataStore для тестов координатора
type fakeStore struct {
	issues  []models.Issue
	sprints []models.Sprint
	users   []models.UserIdentity
	keySeq  int64
}

func (f *fakeStore) FindIssues(_ context.Context, filter repository.IssueFilter) ([]models.Issue, error) {
	var result []models.Issue
	for _, issue := range f.issues {
		if !filter.IncludeDeleted && issue.IsDeleted {
			continue
		}
		if filter.CreatorID != nil && issue.CreatorID != *filter.CreatorID {
			continue
		}
		result = append(result, issue)
	}
	return result, nil
}

func (f *fakeStore) CountIssues(ctx context.Context, filter repository.IssueFilter) (int, error) {
	issues, _ := f.FindIssues(ctx, filter)
	return len(issues), nil
}

func (f *fakeStore) GetIssue(_ context.Context, id string) (*models.Issue, error) {
	for _, issue := range f.issues {
		if issue.ID == id {
			found := issue
			return &found, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeStore) CreateIssue(_ context.Context, issue models.Issue) (*models.Issue, error) {
	f.issues = append(f.issues, issue)
	return &issue, nil
}

func (f *fakeStore) UpdateIssue(_ context.Context, id string, fields repository.IssueUpdate) (*models.Issue, error) {
	for i, issue := range f.issues {
		if issue.ID != id {
			continue
		}
		if fields.Status != nil {
			issue.Status = *fields.Status
		}
		if fields.AssigneeID != nil {
			issue.AssigneeID = fields.AssigneeID
		}
		f.issues[i] = issue
		return &issue, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeStore) UpdateIssues(ctx context.Context, ids []string, fields repository.IssueUpdate) ([]models.Issue, error) {
	var updated []models.Issue
	for _, id := range ids {
		issue, err := f.UpdateIssue(ctx, id, fields)
		if err != nil {
			continue
		}
		updated = append(updated, *issue)
	}
	return updated, nil
}

func (f *fakeStore) SoftDeleteIssue(_ context.Context, id string) (*models.Issue, error) {
	for i, issue := range f.issues {
		if issue.ID != id {
			continue
		}
		issue.IsDeleted = true
		issue.BoardPosition = -1
		issue.SprintPosition = -1
		deleted := models.DeletedSprintID
		issue.SprintID = &deleted
		f.issues[i] = issue
		return &issue, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeStore) DeleteIssues(_ context.Context, ids []string) (int64, error) {
	var kept []models.Issue
	var removed int64
	for _, issue := range f.issues {
		drop := false
		for _, id := range ids {
			if issue.ID == id {
				drop = true
				break
			}
		}
		if drop {
			removed++
			continue
		}
		kept = append(kept, issue)
	}
	f.issues = kept
	return removed, nil
}

func (f *fakeStore) NextIssueKeyNumber(_ context.Context) (int64, error) {
	f.keySeq++
	return f.keySeq, nil
}

func (f *fakeStore) FindSprints(_ context.Context, statuses []string) ([]models.Sprint, error) {
	var result []models.Sprint
	for _, sprint := range f.sprints {
		for _, status := range statuses {
			if sprint.Status == status {
				result = append(result, sprint)
				break
			}
		}
	}
	return result, nil
}

func (f *fakeStore) GetSprint(_ context.Context, id string) (*models.Sprint, error) {
	for _, sprint := range f.sprints {
		if sprint.ID == id {
			found := sprint
			return &found, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeStore) CreateSprint(_ context.Context, sprint models.Sprint) (*models.Sprint, error) {
	f.sprints = append(f.sprints, sprint)
	return &sprint, nil
}

func (f *fakeStore) CountSprintsByCreator(_ context.Context, creatorID string) (int, error) {
	count := 0
	for _, sprint := range f.sprints {
		if sprint.CreatorID == creatorID {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) FindUsersByIDs(_ context.Context, ids []string) ([]models.UserIdentity, error) {
	var result []models.UserIdentity
	for _, user := range f.users {
		for _, id := range ids {
			if user.ID == id {
				result = append(result, user)
				break
			}
		}
	}
	return result, nil
}

func (f *fakeStore) ListUsers(_ context.Context) ([]models.UserIdentity, error) {
	return f.users, nil
}

func (f *fakeStore) GetUser(_ context.Context, id string) (*models.UserIdentity, error) {
	for _, user := range f.users {
		if user.ID == id {
			found := user
			return &found, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeStore) CreateUser(_ context.Context, user models.UserIdentity) (*models.UserIdentity, error) {
	f.users = append(f.users, user)
	return &user, nil
}

// fakeSource — внешний провайдер идентичности для тестов
type fakeSource struct {
	users []models.UserIdentity
	err   error
}

func (f *fakeSource) FetchMany(_ context.Context, ids []string) ([]models.UserIdentity, error) {
	if f.err != nil {
		return nil, f.err
	}
	var result []models.UserIdentity
	for _, user := range f.users {
		for _, id := range ids {
			if user.ID == id {
				result = append(result, user)
				break
			}
		}
	}
	return result, nil
}

func newTestService(store *fakeStore, source *fakeSource) *Service {
	if source == nil {
		source = &fakeSource{}
	}
	return New(store, source, zap.NewNop(), config.DefaultsConfig{
		ReporterID: "default-reporter",
		CreatorID:  "default-creator",
	})
}

func TestCreateIssue_ActiveSprintPlacesOnBoard(t *testing.T) {
	sprintID := "s1"
	store := &fakeStore{
		sprints: []models.Sprint{{ID: sprintID, Status: models.SprintActive}},
		issues: []models.Issue{
			{ID: "a", Status: models.StatusTodo, SprintID: &sprintID, BoardPosition: 1, SprintPosition: 1},
			{ID: "b", Status: models.StatusTodo, SprintID: &sprintID, BoardPosition: 2, SprintPosition: 2},
			{ID: "c", Status: models.StatusDone, SprintID: &sprintID, BoardPosition: 9, SprintPosition: 3},
		},
	}
	svc := newTestService(store, nil)

	issue, err := svc.CreateIssue(context.Background(), CreateIssueInput{
		Name:     "new task",
		Type:     models.TypeTask,
		SprintID: &sprintID,
	})
	require.NoError(t, err)

	// Доска: низ колонки TODO, позиция колонки DONE не учитывается
	assert.Greater(t, issue.BoardPosition, 2.0)
	assert.Less(t, issue.BoardPosition, 9.0)
	// Бэклог спринта: строго ниже всех существующих
	assert.Greater(t, issue.SprintPosition, 3.0)
	assert.Equal(t, models.StatusTodo, issue.Status)
}

func TestCreateIssue_PendingSprintGetsBoardSentinel(t *testing.T) {
	sprintID := "s1"
	store := &fakeStore{
		sprints: []models.Sprint{{ID: sprintID, Status: models.SprintPending}},
	}
	svc := newTestService(store, nil)

	issue, err := svc.CreateIssue(context.Background(), CreateIssueInput{
		Name:     "later",
		Type:     models.TypeStory,
		SprintID: &sprintID,
	})
	require.NoError(t, err)

	assert.Equal(t, models.UnpositionedBoard, issue.BoardPosition,
		"задача вне активного спринта не размещается на доске")
}

func TestCreateIssue_BacklogWithoutSprint(t *testing.T) {
	store := &fakeStore{
		issues: []models.Issue{
			{ID: "a", SprintPosition: 5},
			{ID: "b", SprintID: strPtr("other"), SprintPosition: 100},
		},
	}
	svc := newTestService(store, nil)

	issue, err := svc.CreateIssue(context.Background(), CreateIssueInput{
		Name: "backlog item",
		Type: models.TypeBug,
	})
	require.NoError(t, err)

	assert.Equal(t, models.UnpositionedBoard, issue.BoardPosition)
	assert.Greater(t, issue.SprintPosition, 5.0)
	assert.Less(t, issue.SprintPosition, 100.0, "чужой спринт не влияет на позицию в бэклоге")
}

func TestCreateIssue_SequentialKeysAndPositions(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(store, nil)

	for i := 1; i <= 5; i++ {
		issue, err := svc.CreateIssue(context.Background(), CreateIssueInput{
			Name: "n",
			Type: models.TypeTask,
		})
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("ISSUE-%d", i), issue.Key)
	}

	seen := make(map[float64]bool)
	for _, issue := range store.issues {
		assert.False(t, seen[issue.SprintPosition], "позиции не повторяются")
		seen[issue.SprintPosition] = true
	}
}

func TestCreateIssue_DefaultsApplied(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(store, nil)

	issue, err := svc.CreateIssue(context.Background(), CreateIssueInput{
		Name: "n",
		Type: models.TypeTask,
	})
	require.NoError(t, err)

	assert.Equal(t, "default-reporter", issue.ReporterID)
	assert.Equal(t, "default-creator", issue.CreatorID)
}

func TestCreateIssue_InvalidType(t *testing.T) {
	svc := newTestService(&fakeStore{}, nil)

	_, err := svc.CreateIssue(context.Background(), CreateIssueInput{Name: "n", Type: "FEATURE"})

	assert.ErrorIs(t, err, ErrValidation)
}

func TestCreateIssue_DeletedIssuesIgnoredForPositions(t *testing.T) {
	store := &fakeStore{
		issues: []models.Issue{
			{ID: "dead", IsDeleted: true, SprintPosition: -1},
		},
	}
	svc := newTestService(store, nil)

	issue, err := svc.CreateIssue(context.Background(), CreateIssueInput{Name: "n", Type: models.TypeTask})
	require.NoError(t, err)

	assert.Greater(t, issue.SprintPosition, 0.0, "заглушечная позиция -1 не участвует в выделении")
}

func TestListIssues_ComposesHierarchyAndIdentities(t *testing.T) {
	sprintID := "s1"
	store := &fakeStore{
		sprints: []models.Sprint{{ID: sprintID, Status: models.SprintActive}},
		issues: []models.Issue{
			{ID: "1", ReporterID: "u1", SprintID: &sprintID},
			{ID: "2", ParentID: strPtr("1"), AssigneeID: strPtr("u2"), ReporterID: "u1"},
		},
		users: []models.UserIdentity{{ID: "u1", Name: "Local Name"}},
	}
	source := &fakeSource{users: []models.UserIdentity{
		{ID: "u1", Name: "External Name", Avatar: strPtr("pic")},
		{ID: "u2", Name: "Only External"},
	}}
	svc := newTestService(store, source)

	list, err := svc.ListIssues(context.Background(), ListOptions{})
	require.NoError(t, err)

	require.Len(t, list.Issues, 1)
	root := list.Issues[0]
	assert.Equal(t, "1", root.ID)
	assert.True(t, root.SprintIsActive)

	require.NotNil(t, root.Reporter)
	assert.Equal(t, "Local Name", root.Reporter.Name, "локальное имя побеждает внешнее")
	require.NotNil(t, root.Reporter.Avatar, "аватар добирается у провайдера")

	require.Len(t, root.Children, 1)
	child := root.Children[0]
	assert.Equal(t, "2", child.ID)
	require.NotNil(t, child.Assignee)
	assert.Equal(t, "Only External", child.Assignee.Name)
	assert.False(t, child.SprintIsActive)
}

func TestListIssues_ExternalProviderFailureDegrades(t *testing.T) {
	store := &fakeStore{
		issues: []models.Issue{{ID: "1", ReporterID: "u1"}},
		users:  []models.UserIdentity{{ID: "u1", Name: "Local"}},
	}
	source := &fakeSource{err: errors.New("provider down")}
	svc := newTestService(store, source)

	list, err := svc.ListIssues(context.Background(), ListOptions{})
	require.NoError(t, err, "недоступность провайдера не роняет чтение")

	require.Len(t, list.Issues, 1)
	require.NotNil(t, list.Issues[0].Reporter)
	assert.Equal(t, "Local", list.Issues[0].Reporter.Name)
}

func TestListIssues_Empty(t *testing.T) {
	svc := newTestService(&fakeStore{}, nil)

	list, err := svc.ListIssues(context.Background(), ListOptions{})
	require.NoError(t, err)

	assert.Empty(t, list.Issues)
}

func TestListIssues_CreatorFilterWithPagination(t *testing.T) {
	store := &fakeStore{
		issues: []models.Issue{
			{ID: "1", CreatorID: "me"},
			{ID: "2", CreatorID: "me"},
			{ID: "3", CreatorID: "someone-else"},
		},
	}
	svc := newTestService(store, nil)

	list, err := svc.ListIssues(context.Background(), ListOptions{CreatorID: strPtr("me")})
	require.NoError(t, err)

	assert.Len(t, list.Issues, 2)
	require.NotNil(t, list.Total)
	assert.Equal(t, 2, *list.Total)
}

func TestGetIssue_WithParentContext(t *testing.T) {
	store := &fakeStore{
		issues: []models.Issue{
			{ID: "p", ReporterID: "u1"},
			{ID: "c", ParentID: strPtr("p"), ReporterID: "u1"},
		},
		users: []models.UserIdentity{{ID: "u1", Name: "Reporter"}},
	}
	svc := newTestService(store, nil)

	view, err := svc.GetIssue(context.Background(), "c")
	require.NoError(t, err)

	assert.Equal(t, "c", view.ID)
	require.NotNil(t, view.Parent)
	assert.Equal(t, "p", view.Parent.ID)
	assert.Nil(t, view.Parent.Parent)
}

func TestGetIssue_MissingParentDoesNotFail(t *testing.T) {
	store := &fakeStore{
		issues: []models.Issue{{ID: "c", ParentID: strPtr("gone")}},
	}
	svc := newTestService(store, nil)

	view, err := svc.GetIssue(context.Background(), "c")
	require.NoError(t, err)

	assert.Nil(t, view.Parent)
}

func TestGetIssue_NotFound(t *testing.T) {
	svc := newTestService(&fakeStore{}, nil)

	_, err := svc.GetIssue(context.Background(), "missing")

	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestUpdateIssue_ResolvesAssigneePreferringProvider(t *testing.T) {
	store := &fakeStore{
		issues: []models.Issue{{ID: "1"}},
		users:  []models.UserIdentity{{ID: "u1", Name: "Local"}},
	}
	source := &fakeSource{users: []models.UserIdentity{{ID: "u1", Name: "Provider"}}}
	svc := newTestService(store, source)

	view, err := svc.UpdateIssue(context.Background(), "1", repository.IssueUpdate{AssigneeID: strPtr("u1")})
	require.NoError(t, err)

	require.NotNil(t, view.Assignee)
	assert.Equal(t, "Provider", view.Assignee.Name)
}

func TestUpdateIssue_AssigneeFallsBackToLocalStore(t *testing.T) {
	store := &fakeStore{
		issues: []models.Issue{{ID: "1"}},
		users:  []models.UserIdentity{{ID: "u1", Name: "Local"}},
	}
	source := &fakeSource{err: errors.New("provider down")}
	svc := newTestService(store, source)

	view, err := svc.UpdateIssue(context.Background(), "1", repository.IssueUpdate{AssigneeID: strPtr("u1")})
	require.NoError(t, err)

	require.NotNil(t, view.Assignee)
	assert.Equal(t, "Local", view.Assignee.Name)
}

func TestCreateSprint_AutoName(t *testing.T) {
	store := &fakeStore{
		sprints: []models.Sprint{{ID: "s1", CreatorID: "me", Status: models.SprintClosed}},
	}
	svc := newTestService(store, nil)

	sprint, err := svc.CreateSprint(context.Background(), "me")
	require.NoError(t, err)

	assert.Equal(t, "SPRINT-2", sprint.Name)
	assert.Equal(t, models.SprintPending, sprint.Status)
}

func TestListSprints_ClosedExcluded(t *testing.T) {
	store := &fakeStore{
		sprints: []models.Sprint{
			{ID: "a", Status: models.SprintActive},
			{ID: "b", Status: models.SprintPending},
			{ID: "c", Status: models.SprintClosed},
		},
	}
	svc := newTestService(store, nil)

	sprints, err := svc.ListSprints(context.Background())
	require.NoError(t, err)

	assert.Len(t, sprints, 2)
}
