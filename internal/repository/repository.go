// repository/repository.go
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Haseeb-Ahmed-Spectreco/JIRA/internal/models"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("resource already exists")
	ErrInvalidInput  = errors.New("invalid input")
)

const issueColumns = `id, key, name, description, details, status, type,
	sprint_position, board_position, assignee_id, reporter_id, creator_id,
	parent_id, sprint_id, sprint_color, is_deleted, created_at, updated_at, deleted_at`

const sprintColumns = `id, name, description, duration, start_date, end_date,
	creator_id, status, created_at, updated_at`

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// IssueFilter описывает условия выборки задач
type IssueFilter struct {
	CreatorID      *string
	IncludeDeleted bool
	NewestFirst    bool
	Limit          int
	Offset         int
}

// IssueUpdate описывает частичное обновление задачи: nil-поля не меняются.
// Для ссылочных полей (assignee, parent, sprint) пустая строка означает
// явный сброс в NULL
type IssueUpdate struct {
	Name           *string
	Description    *string
	Details        *string
	Type           *string
	Status         *string
	SprintPosition *float64
	BoardPosition  *float64
	AssigneeID     *string
	ReporterID     *string
	ParentID       *string
	SprintID       *string
	SprintColor    *string
	IsDeleted      *bool
}

// rowScanner покрывает pgx.Row и pgx.Rows для общего сканирования задач
type rowScanner interface {
	Scan(dest ...any) error
}

func scanIssue(row rowScanner) (*models.Issue, error) {
	var issue models.Issue
	err := row.Scan(
		&issue.ID, &issue.Key, &issue.Name, &issue.Description, &issue.Details,
		&issue.Status, &issue.Type, &issue.SprintPosition, &issue.BoardPosition,
		&issue.AssigneeID, &issue.ReporterID, &issue.CreatorID, &issue.ParentID,
		&issue.SprintID, &issue.SprintColor, &issue.IsDeleted,
		&issue.CreatedAt, &issue.UpdatedAt, &issue.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &issue, nil
}

func scanSprint(row rowScanner) (*models.Sprint, error) {
	var sprint models.Sprint
	err := row.Scan(
		&sprint.ID, &sprint.Name, &sprint.Description, &sprint.Duration,
		&sprint.StartDate, &sprint.EndDate, &sprint.CreatorID, &sprint.Status,
		&sprint.CreatedAt, &sprint.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sprint, nil
}

// FindIssues получает задачи по фильтру
func (r *Repository) FindIssues(ctx context.Context, filter IssueFilter) ([]models.Issue, error) {
	var conditions []string
	var args []any

	if !filter.IncludeDeleted {
		conditions = append(conditions, "is_deleted = false")
	}
	if filter.CreatorID != nil {
		args = append(args, *filter.CreatorID)
		conditions = append(conditions, fmt.Sprintf("creator_id = $%d", len(args)))
	}

	query := "SELECT " + issueColumns + " FROM issues"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	if filter.NewestFirst {
		query += " ORDER BY created_at DESC"
	}
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find issues: %w", err)
	}
	defer rows.Close()

	var issues []models.Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan issue: %w", err)
		}
		issues = append(issues, *issue)
	}

	return issues, rows.Err()
}

// CountIssues возвращает количество задач по фильтру (для пагинации)
func (r *Repository) CountIssues(ctx context.Context, filter IssueFilter) (int, error) {
	query := "SELECT COUNT(*) FROM issues WHERE is_deleted = false"
	var args []any
	if filter.CreatorID != nil {
		args = append(args, *filter.CreatorID)
		query += " AND creator_id = $1"
	}

	var total int
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count issues: %w", err)
	}
	return total, nil
}

// GetIssue получает задачу по ID
func (r *Repository) GetIssue(ctx context.Context, id string) (*models.Issue, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+issueColumns+" FROM issues WHERE id = $1", id)
	issue, err := scanIssue(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get issue: %w", err)
	}
	return issue, nil
}

// CreateIssue создает новую задачу
func (r *Repository) CreateIssue(ctx context.Context, issue models.Issue) (*models.Issue, error) {
	query := `
        INSERT INTO issues (id, key, name, description, details, status, type,
            sprint_position, board_position, assignee_id, reporter_id, creator_id,
            parent_id, sprint_id, sprint_color)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
        RETURNING ` + issueColumns

	row := r.pool.QueryRow(ctx, query,
		issue.ID, issue.Key, issue.Name, issue.Description, issue.Details,
		issue.Status, issue.Type, issue.SprintPosition, issue.BoardPosition,
		issue.AssigneeID, issue.ReporterID, issue.CreatorID, issue.ParentID,
		issue.SprintID, issue.SprintColor,
	)
	created, err := scanIssue(row)
	if err != nil {
		if pgxErr, ok := err.(*pgconn.PgError); ok && pgxErr.Code == "23505" {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("failed to create issue: %w", err)
	}
	return created, nil
}

// buildIssueSet собирает SET-часть частичного обновления.
// Пустая строка в ссылочных полях превращается в NULL
func buildIssueSet(fields IssueUpdate) ([]string, []any) {
	var set []string
	var args []any

	add := func(column string, value any) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	addNullable := func(column string, value *string) {
		if *value == "" {
			set = append(set, column+" = NULL")
			return
		}
		add(column, *value)
	}

	if fields.Name != nil {
		add("name", *fields.Name)
	}
	if fields.Description != nil {
		add("description", *fields.Description)
	}
	if fields.Details != nil {
		add("details", *fields.Details)
	}
	if fields.Type != nil {
		add("type", *fields.Type)
	}
	if fields.Status != nil {
		add("status", *fields.Status)
	}
	if fields.SprintPosition != nil {
		add("sprint_position", *fields.SprintPosition)
	}
	if fields.BoardPosition != nil {
		add("board_position", *fields.BoardPosition)
	}
	if fields.AssigneeID != nil {
		addNullable("assignee_id", fields.AssigneeID)
	}
	if fields.ReporterID != nil {
		add("reporter_id", *fields.ReporterID)
	}
	if fields.ParentID != nil {
		addNullable("parent_id", fields.ParentID)
	}
	if fields.SprintID != nil {
		addNullable("sprint_id", fields.SprintID)
	}
	if fields.SprintColor != nil {
		add("sprint_color", *fields.SprintColor)
	}
	if fields.IsDeleted != nil {
		add("is_deleted", *fields.IsDeleted)
	}

	return set, args
}

// UpdateIssue частично обновляет задачу по ID
func (r *Repository) UpdateIssue(ctx context.Context, id string, fields IssueUpdate) (*models.Issue, error) {
	set, args := buildIssueSet(fields)
	if len(set) == 0 {
		return r.GetIssue(ctx, id)
	}
	set = append(set, "updated_at = NOW()")

	args = append(args, id)
	query := fmt.Sprintf("UPDATE issues SET %s WHERE id = $%d RETURNING %s",
		strings.Join(set, ", "), len(args), issueColumns)

	row := r.pool.QueryRow(ctx, query, args...)
	issue, err := scanIssue(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update issue: %w", err)
	}
	return issue, nil
}

// UpdateIssues применяет одно и то же частичное обновление к набору задач
func (r *Repository) UpdateIssues(ctx context.Context, ids []string, fields IssueUpdate) ([]models.Issue, error) {
	if len(ids) == 0 {
		return nil, ErrInvalidInput
	}

	set, args := buildIssueSet(fields)
	if len(set) == 0 {
		return nil, ErrInvalidInput
	}
	set = append(set, "updated_at = NOW()")

	args = append(args, ids)
	query := fmt.Sprintf("UPDATE issues SET %s WHERE id = ANY($%d) RETURNING %s",
		strings.Join(set, ", "), len(args), issueColumns)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update issues: %w", err)
	}
	defer rows.Close()

	var issues []models.Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan updated issue: %w", err)
		}
		issues = append(issues, *issue)
	}

	return issues, rows.Err()
}

// SoftDeleteIssue помечает задачу удаленной: позиции сбрасываются в -1,
// спринт перепривязывается к зарезервированной заглушке, чтобы задача
// не пересекалась с живой сортировкой
func (r *Repository) SoftDeleteIssue(ctx context.Context, id string) (*models.Issue, error) {
	query := `
        UPDATE issues
        SET is_deleted = true,
            board_position = -1,
            sprint_position = -1,
            sprint_id = $1,
            deleted_at = NOW(),
            updated_at = NOW()
        WHERE id = $2
        RETURNING ` + issueColumns

	row := r.pool.QueryRow(ctx, query, models.DeletedSprintID, id)
	issue, err := scanIssue(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to soft delete issue: %w", err)
	}
	return issue, nil
}

// DeleteIssues физически удаляет задачи по списку ID
func (r *Repository) DeleteIssues(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, ErrInvalidInput
	}
	tag, err := r.pool.Exec(ctx, "DELETE FROM issues WHERE id = ANY($1)", ids)
	if err != nil {
		return 0, fmt.Errorf("failed to delete issues: %w", err)
	}
	return tag.RowsAffected(), nil
}

// NextIssueKeyNumber выдает следующий номер для человекочитаемого ключа.
// Последовательность в базе гарантирует, что номера не переиспользуются
// даже после физического удаления задач
func (r *Repository) NextIssueKeyNumber(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, "SELECT nextval('issue_key_seq')").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to get next issue key number: %w", err)
	}
	return n, nil
}

// FindSprints получает спринты с указанными статусами в порядке создания
func (r *Repository) FindSprints(ctx context.Context, statuses []string) ([]models.Sprint, error) {
	query := "SELECT " + sprintColumns + " FROM sprints"
	var args []any
	if len(statuses) > 0 {
		args = append(args, statuses)
		query += " WHERE status = ANY($1)"
	}
	query += " ORDER BY created_at ASC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find sprints: %w", err)
	}
	defer rows.Close()

	var sprints []models.Sprint
	for rows.Next() {
		sprint, err := scanSprint(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sprint: %w", err)
		}
		sprints = append(sprints, *sprint)
	}

	return sprints, rows.Err()
}

// GetSprint получает спринт по ID
func (r *Repository) GetSprint(ctx context.Context, id string) (*models.Sprint, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+sprintColumns+" FROM sprints WHERE id = $1", id)
	sprint, err := scanSprint(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sprint: %w", err)
	}
	return sprint, nil
}

// CreateSprint создает новый спринт
func (r *Repository) CreateSprint(ctx context.Context, sprint models.Sprint) (*models.Sprint, error) {
	query := `
        INSERT INTO sprints (id, name, description, duration, start_date, end_date, creator_id, status)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING ` + sprintColumns

	row := r.pool.QueryRow(ctx, query,
		sprint.ID, sprint.Name, sprint.Description, sprint.Duration,
		sprint.StartDate, sprint.EndDate, sprint.CreatorID, sprint.Status,
	)
	created, err := scanSprint(row)
	if err != nil {
		if pgxErr, ok := err.(*pgconn.PgError); ok && pgxErr.Code == "23505" {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("failed to create sprint: %w", err)
	}
	return created, nil
}

// CountSprintsByCreator возвращает число спринтов пользователя (для автоимени SPRINT-n)
func (r *Repository) CountSprintsByCreator(ctx context.Context, creatorID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM sprints WHERE creator_id = $1", creatorID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count sprints: %w", err)
	}
	return count, nil
}

// FindUsersByIDs получает записи локальных пользователей по списку ID
func (r *Repository) FindUsersByIDs(ctx context.Context, ids []string) ([]models.UserIdentity, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := r.pool.Query(ctx, "SELECT id, name, email, avatar FROM users WHERE id = ANY($1)", ids)
	if err != nil {
		return nil, fmt.Errorf("failed to find users: %w", err)
	}
	defer rows.Close()

	var users []models.UserIdentity
	for rows.Next() {
		var user models.UserIdentity
		if err := rows.Scan(&user.ID, &user.Name, &user.Email, &user.Avatar); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	return users, rows.Err()
}

// ListUsers получает всех локальных пользователей
func (r *Repository) ListUsers(ctx context.Context) ([]models.UserIdentity, error) {
	rows, err := r.pool.Query(ctx, "SELECT id, name, email, avatar FROM users ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []models.UserIdentity
	for rows.Next() {
		var user models.UserIdentity
		if err := rows.Scan(&user.ID, &user.Name, &user.Email, &user.Avatar); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	return users, rows.Err()
}

// GetUser получает локального пользователя по ID
func (r *Repository) GetUser(ctx context.Context, id string) (*models.UserIdentity, error) {
	var user models.UserIdentity
	err := r.pool.QueryRow(ctx, "SELECT id, name, email, avatar FROM users WHERE id = $1", id).
		Scan(&user.ID, &user.Name, &user.Email, &user.Avatar)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// CreateUser создает локального пользователя
func (r *Repository) CreateUser(ctx context.Context, user models.UserIdentity) (*models.UserIdentity, error) {
	query := `
        INSERT INTO users (id, name, email, avatar)
        VALUES ($1, $2, $3, $4)
        RETURNING id, name, email, avatar
    `
	var created models.UserIdentity
	err := r.pool.QueryRow(ctx, query, user.ID, user.Name, user.Email, user.Avatar).
		Scan(&created.ID, &created.Name, &created.Email, &created.Avatar)
	if err != nil {
		if pgxErr, ok := err.(*pgconn.PgError); ok && pgxErr.Code == "23505" {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return &created, nil
}
