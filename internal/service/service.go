// service/service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Haseeb-Ahmed-Spectreco/JIRA/internal/config"
	"github.com/Haseeb-Ahmed-Spectreco/JIRA/internal/hierarchy"
	"github.com/Haseeb-Ahmed-Spectreco/JIRA/internal/identity"
	"github.com/Haseeb-Ahmed-Spectreco/JIRA/internal/models"
	"github.com/Haseeb-Ahmed-Spectreco/JIRA/internal/ordering"
	"github.com/Haseeb-Ahmed-Spectreco/JIRA/internal/repository"
)

// ErrValidation — ошибка валидации входных данных
var ErrValidation = errors.New("validation failed")

var allowedIssueTypes = map[string]struct{}{
	models.TypeBug:     {},
	models.TypeTask:    {},
	models.TypeSubtask: {},
	models.TypeStory:   {},
	models.TypeEpic:    {},
}

var allowedIssueStatuses = map[string]struct{}{
	models.StatusTodo:       {},
	models.StatusInProgress: {},
	models.StatusDone:       {},
}

// dataStore — контракт хранилища, который потребляет координатор.
// Реализуется pgx-репозиторием, в тестах подменяется на in-memory
type dataStore interface {
	FindIssues(ctx context.Context, filter repository.IssueFilter) ([]models.Issue, error)
	CountIssues(ctx context.Context, filter repository.IssueFilter) (int, error)
	GetIssue(ctx context.Context, id string) (*models.Issue, error)
	CreateIssue(ctx context.Context, issue models.Issue) (*models.Issue, error)
	UpdateIssue(ctx context.Context, id string, fields repository.IssueUpdate) (*models.Issue, error)
	UpdateIssues(ctx context.Context, ids []string, fields repository.IssueUpdate) ([]models.Issue, error)
	SoftDeleteIssue(ctx context.Context, id string) (*models.Issue, error)
	DeleteIssues(ctx context.Context, ids []string) (int64, error)
	NextIssueKeyNumber(ctx context.Context) (int64, error)

	FindSprints(ctx context.Context, statuses []string) ([]models.Sprint, error)
	GetSprint(ctx context.Context, id string) (*models.Sprint, error)
	CreateSprint(ctx context.Context, sprint models.Sprint) (*models.Sprint, error)
	CountSprintsByCreator(ctx context.Context, creatorID string) (int, error)

	FindUsersByIDs(ctx context.Context, ids []string) ([]models.UserIdentity, error)
	ListUsers(ctx context.Context) ([]models.UserIdentity, error)
	GetUser(ctx context.Context, id string) (*models.UserIdentity, error)
	CreateUser(ctx context.Context, user models.UserIdentity) (*models.UserIdentity, error)
}

// Service — координатор жизненного цикла задач: на запись выдает позиции
// через ordering, на чтение собирает клиентское дерево через identity и hierarchy
type Service struct {
	store    dataStore
	external identity.Source
	composer *hierarchy.Composer
	logger   *zap.Logger
	defaults config.DefaultsConfig

	// Выделение позиции — это "прочитай колонку, вычисли, запиши".
	// Конкурентные вставки в один и тот же список сериализуются замком
	// на ключ назначения (спринт или бэклог)
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New создает новый экземпляр координатора
func New(store dataStore, external identity.Source, logger *zap.Logger, defaults config.DefaultsConfig) *Service {
	return &Service{
		store:    store,
		external: external,
		composer: hierarchy.NewComposer(logger),
		logger:   logger,
		defaults: defaults,
		locks:    make(map[string]*sync.Mutex),
	}
}

// destinationLock возвращает замок списка назначения
func (s *Service) destinationLock(sprintID *string) *sync.Mutex {
	key := "backlog"
	if sprintID != nil {
		key = *sprintID
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}
	return lock
}

// ListOptions — параметры выборки списка задач
type ListOptions struct {
	CreatorID *string
	Limit     int
	Page      int
}

// IssueList — результат выборки списка задач
type IssueList struct {
	Issues []models.IssueView `json:"issues"`
	Total  *int               `json:"total,omitempty"`
}

// ListIssues собирает клиентское дерево задач: выборка, разрешение
// пользователей из двух источников и композиция иерархии
func (s *Service) ListIssues(ctx context.Context, opts ListOptions) (*IssueList, error) {
	filter := repository.IssueFilter{CreatorID: opts.CreatorID}
	var total *int
	if opts.CreatorID != nil {
		filter.NewestFirst = true
		if opts.Limit > 0 {
			filter.Limit = opts.Limit
			if opts.Page > 1 {
				filter.Offset = (opts.Page - 1) * opts.Limit
			}
		}
		count, err := s.store.CountIssues(ctx, filter)
		if err != nil {
			return nil, err
		}
		total = &count
	}

	issues, err := s.store.FindIssues(ctx, filter)
	if err != nil {
		return nil, err
	}
	if len(issues) == 0 {
		return &IssueList{Issues: []models.IssueView{}, Total: total}, nil
	}

	activeSprintIDs, err := s.activeSprintSet(ctx)
	if err != nil {
		return nil, err
	}

	var identities map[string]models.UserIdentity
	if opts.CreatorID != nil {
		// Выборка одного пользователя разрешается только из локальной базы
		local, err := s.store.FindUsersByIDs(ctx, []string{*opts.CreatorID})
		if err != nil {
			return nil, err
		}
		identities = identity.Resolve(local, nil)
	} else {
		identities, err = s.resolveIdentities(ctx, collectUserIDs(issues))
		if err != nil {
			return nil, err
		}
	}

	return &IssueList{
		Issues: s.composer.Compose(issues, identities, activeSprintIDs),
		Total:  total,
	}, nil
}

// GetIssue собирает одну задачу с одним уровнем родительского контекста
func (s *Service) GetIssue(ctx context.Context, id string) (*models.IssueView, error) {
	issue, err := s.store.GetIssue(ctx, id)
	if err != nil {
		return nil, err
	}

	var parent *models.Issue
	if issue.ParentID != nil {
		parent, err = s.store.GetIssue(ctx, *issue.ParentID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		// Отсутствующий родитель понижает задачу до верхнего уровня, а не роняет запрос
	}

	userIDs := collectUserIDs([]models.Issue{*issue})
	if parent != nil {
		userIDs = append(userIDs, collectUserIDs([]models.Issue{*parent})...)
	}
	identities, err := s.resolveIdentities(ctx, dedupe(userIDs))
	if err != nil {
		return nil, err
	}

	activeSprintIDs, err := s.activeSprintSet(ctx)
	if err != nil {
		return nil, err
	}

	view := s.composer.ComposeWithParent(*issue, parent, identities, activeSprintIDs)
	return &view, nil
}

// CreateIssueInput — поля создания задачи
type CreateIssueInput struct {
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	Status      *string `json:"status"`
	AssigneeID  *string `json:"assigneeId"`
	ReporterID  *string `json:"reporterId"`
	ParentID    *string `json:"parentId"`
	SprintID    *string `json:"sprintId"`
	SprintColor *string `json:"sprintColor"`
	UserID      *string `json:"userId"`
	Details     *string `json:"details"`
}

// CreateIssue создает задачу: выдает ключ из последовательности и позиции
// в конце бэклога спринта и, для активного спринта, в конце колонки TODO
func (s *Service) CreateIssue(ctx context.Context, input CreateIssueInput) (*models.Issue, error) {
	if input.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if _, ok := allowedIssueTypes[input.Type]; !ok {
		return nil, fmt.Errorf("%w: unknown issue type %q", ErrValidation, input.Type)
	}
	status := models.StatusTodo
	if input.Status != nil {
		if _, ok := allowedIssueStatuses[*input.Status]; !ok {
			return nil, fmt.Errorf("%w: unknown issue status %q", ErrValidation, *input.Status)
		}
		status = *input.Status
	}

	reporterID := s.defaults.ReporterID
	if input.ReporterID != nil && *input.ReporterID != "" {
		reporterID = *input.ReporterID
	}
	creatorID := s.defaults.CreatorID
	if input.UserID != nil && *input.UserID != "" {
		creatorID = *input.UserID
	}

	// Чтение колонки, вычисление позиции и запись должны быть атомарны
	// относительно других вставок в тот же список
	lock := s.destinationLock(input.SprintID)
	lock.Lock()
	defer lock.Unlock()

	issues, err := s.store.FindIssues(ctx, repository.IssueFilter{})
	if err != nil {
		return nil, err
	}
	sprintIssues := filterBySprint(issues, input.SprintID)

	var sprint *models.Sprint
	if input.SprintID != nil {
		sprint, err = s.store.GetSprint(ctx, *input.SprintID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
	}

	// Задача вне активного спринта не попадает ни на одну доску
	boardPosition := models.UnpositionedBoard
	if sprint != nil && sprint.Status == models.SprintActive {
		var todoPositions []float64
		for _, issue := range sprintIssues {
			if issue.Status == models.StatusTodo {
				todoPositions = append(todoPositions, issue.BoardPosition)
			}
		}
		boardPosition = ordering.ComputeInsertPosition(todoPositions)
	}

	sprintPositions := make([]float64, 0, len(sprintIssues))
	for _, issue := range sprintIssues {
		sprintPositions = append(sprintPositions, issue.SprintPosition)
	}
	sprintPosition := ordering.ComputeInsertPosition(sprintPositions)

	keyNumber, err := s.store.NextIssueKeyNumber(ctx)
	if err != nil {
		return nil, err
	}

	issue := models.Issue{
		ID:             uuid.NewString(),
		Key:            fmt.Sprintf("ISSUE-%d", keyNumber),
		Name:           input.Name,
		Type:           input.Type,
		Status:         status,
		Details:        input.Details,
		SprintPosition: sprintPosition,
		BoardPosition:  boardPosition,
		AssigneeID:     input.AssigneeID,
		ReporterID:     reporterID,
		CreatorID:      creatorID,
		ParentID:       input.ParentID,
		SprintID:       input.SprintID,
		SprintColor:    input.SprintColor,
	}

	created, err := s.store.CreateIssue(ctx, issue)
	if err != nil {
		return nil, err
	}

	s.logger.Info("задача создана",
		zap.String("issue_id", created.ID),
		zap.String("key", created.Key),
		zap.Float64("sprint_position", created.SprintPosition),
		zap.Float64("board_position", created.BoardPosition))

	return created, nil
}

// UpdateIssue частично обновляет задачу и возвращает ее с разрешенным
// исполнителем: сначала пробует внешнего провайдера, затем локальную базу
func (s *Service) UpdateIssue(ctx context.Context, id string, fields repository.IssueUpdate) (*models.IssueView, error) {
	if err := validateUpdate(fields); err != nil {
		return nil, err
	}

	issue, err := s.store.UpdateIssue(ctx, id, fields)
	if err != nil {
		return nil, err
	}

	view := models.IssueView{Issue: *issue, Children: []models.IssueView{}}
	if issue.AssigneeID != nil {
		view.Assignee = s.resolveAssignee(ctx, *issue.AssigneeID)
	}
	return &view, nil
}

// UpdateIssues применяет одно частичное обновление к набору задач
func (s *Service) UpdateIssues(ctx context.Context, ids []string, fields repository.IssueUpdate) ([]models.Issue, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: ids are required", ErrValidation)
	}
	if err := validateUpdate(fields); err != nil {
		return nil, err
	}
	return s.store.UpdateIssues(ctx, ids, fields)
}

// SoftDeleteIssue помечает задачу удаленной с конвенциональными значениями
// позиций и спринта-заглушки
func (s *Service) SoftDeleteIssue(ctx context.Context, id string) (*models.Issue, error) {
	issue, err := s.store.SoftDeleteIssue(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logger.Info("задача помечена удаленной", zap.String("issue_id", id))
	return issue, nil
}

// DeleteIssues физически удаляет задачи
func (s *Service) DeleteIssues(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, fmt.Errorf("%w: ids are required", ErrValidation)
	}
	return s.store.DeleteIssues(ctx, ids)
}

// ListSprints возвращает спринты, участвующие в работе (ACTIVE и PENDING)
func (s *Service) ListSprints(ctx context.Context) ([]models.Sprint, error) {
	sprints, err := s.store.FindSprints(ctx, []string{models.SprintActive, models.SprintPending})
	if err != nil {
		return nil, err
	}
	if sprints == nil {
		sprints = []models.Sprint{}
	}
	return sprints, nil
}

// CreateSprint создает спринт с автоименем SPRINT-n в статусе PENDING
func (s *Service) CreateSprint(ctx context.Context, creatorID string) (*models.Sprint, error) {
	if creatorID == "" {
		creatorID = s.defaults.CreatorID
	}

	count, err := s.store.CountSprintsByCreator(ctx, creatorID)
	if err != nil {
		return nil, err
	}

	sprint := models.Sprint{
		ID:        uuid.NewString(),
		Name:      fmt.Sprintf("SPRINT-%d", count+1),
		CreatorID: creatorID,
		Status:    models.SprintPending,
	}
	return s.store.CreateSprint(ctx, sprint)
}

// CreateUser создает локального пользователя
func (s *Service) CreateUser(ctx context.Context, user models.UserIdentity) (*models.UserIdentity, error) {
	if user.ID == "" || user.Email == "" {
		return nil, fmt.Errorf("%w: id and email are required", ErrValidation)
	}
	return s.store.CreateUser(ctx, user)
}

// GetUser получает локального пользователя по ID
func (s *Service) GetUser(ctx context.Context, id string) (*models.UserIdentity, error) {
	return s.store.GetUser(ctx, id)
}

// ListUsers возвращает всех локальных пользователей
func (s *Service) ListUsers(ctx context.Context) ([]models.UserIdentity, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []models.UserIdentity{}
	}
	return users, nil
}

// resolveIdentities собирает записи из обоих источников и объединяет их.
// Недоступность внешнего провайдера деградирует до локальных записей:
// неразрешенные пользователи отрисуются как null, а не уронят чтение
func (s *Service) resolveIdentities(ctx context.Context, ids []string) (map[string]models.UserIdentity, error) {
	if len(ids) == 0 {
		return map[string]models.UserIdentity{}, nil
	}

	local, err := s.store.FindUsersByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	external, err := s.external.FetchMany(ctx, ids)
	if err != nil {
		s.logger.Warn("внешний провайдер идентичности недоступен, используются только локальные записи",
			zap.Error(err))
		external = nil
	}

	return identity.Resolve(local, external), nil
}

// resolveAssignee разрешает одного исполнителя: провайдер, затем локальная база
func (s *Service) resolveAssignee(ctx context.Context, assigneeID string) *models.UserIdentity {
	external, err := s.external.FetchMany(ctx, []string{assigneeID})
	if err == nil && len(external) > 0 {
		merged := identity.Resolve(nil, external)
		if user, ok := merged[assigneeID]; ok {
			return &user
		}
	}
	if err != nil {
		s.logger.Warn("не удалось получить исполнителя у провайдера, берем локальную запись",
			zap.String("assignee_id", assigneeID), zap.Error(err))
	}

	user, err := s.store.GetUser(ctx, assigneeID)
	if err != nil {
		return nil
	}
	return user
}

// activeSprintSet строит множество ID спринтов, считающихся активными
func (s *Service) activeSprintSet(ctx context.Context) (map[string]struct{}, error) {
	sprints, err := s.store.FindSprints(ctx, []string{models.SprintActive, models.SprintPending})
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(sprints))
	for _, sprint := range sprints {
		set[sprint.ID] = struct{}{}
	}
	return set, nil
}

func validateUpdate(fields repository.IssueUpdate) error {
	if fields.Type != nil {
		if _, ok := allowedIssueTypes[*fields.Type]; !ok {
			return fmt.Errorf("%w: unknown issue type %q", ErrValidation, *fields.Type)
		}
	}
	if fields.Status != nil {
		if _, ok := allowedIssueStatuses[*fields.Status]; !ok {
			return fmt.Errorf("%w: unknown issue status %q", ErrValidation, *fields.Status)
		}
	}
	return nil
}

// collectUserIDs собирает ID исполнителей и репортеров из набора задач
func collectUserIDs(issues []models.Issue) []string {
	var ids []string
	for _, issue := range issues {
		if issue.AssigneeID != nil && *issue.AssigneeID != "" {
			ids = append(ids, *issue.AssigneeID)
		}
		if issue.ReporterID != "" {
			ids = append(ids, issue.ReporterID)
		}
	}
	return dedupe(ids)
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	result := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	return result
}

// filterBySprint оставляет живые задачи списка назначения: либо конкретного
// спринта, либо бэклога без спринта (спринт-заглушка удаленных сюда не попадает)
func filterBySprint(issues []models.Issue, sprintID *string) []models.Issue {
	var result []models.Issue
	for _, issue := range issues {
		if issue.IsDeleted {
			continue
		}
		switch {
		case sprintID == nil && issue.SprintID == nil:
			result = append(result, issue)
		case sprintID != nil && issue.SprintID != nil && *issue.SprintID == *sprintID:
			result = append(result, issue)
		}
	}
	return result
}
