// models/models.go
package models

import "time"

// Типы задач
const (
	TypeBug     = "BUG"
	TypeTask    = "TASK"
	TypeSubtask = "SUBTASK"
	TypeStory   = "STORY"
	TypeEpic    = "EPIC"
)

// Статусы задач
const (
	StatusTodo       = "TODO"
	StatusInProgress = "IN_PROGRESS"
	StatusDone       = "DONE"
)

// Статусы спринтов
const (
	SprintActive  = "ACTIVE"
	SprintPending = "PENDING"
	SprintClosed  = "CLOSED"
)

// DeletedSprintID — зарезервированный спринт-заглушка, к которому привязываются
// мягко удаленные задачи, чтобы они не попадали в живую сортировку спринта
const DeletedSprintID = "DELETED-SPRINT-ID"

// UnpositionedBoard — значение boardPosition для задачи, не размещенной ни на одной доске
const UnpositionedBoard float64 = -1

// Issue представляет задачу
type Issue struct {
	ID             string     `json:"id" db:"id"`
	Key            string     `json:"key" db:"key"`
	Name           string     `json:"name" db:"name"`
	Description    *string    `json:"description" db:"description"`
	Details        *string    `json:"details,omitempty" db:"details"`
	Status         string     `json:"status" db:"status"`
	Type           string     `json:"type" db:"type"`
	SprintPosition float64    `json:"sprintPosition" db:"sprint_position"`
	BoardPosition  float64    `json:"boardPosition" db:"board_position"`
	AssigneeID     *string    `json:"assigneeId" db:"assignee_id"`
	ReporterID     string     `json:"reporterId" db:"reporter_id"`
	CreatorID      string     `json:"creatorId" db:"creator_id"`
	ParentID       *string    `json:"parentId" db:"parent_id"`
	SprintID       *string    `json:"sprintId" db:"sprint_id"`
	SprintColor    *string    `json:"sprintColor" db:"sprint_color"`
	IsDeleted      bool       `json:"isDeleted" db:"is_deleted"`
	CreatedAt      time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time  `json:"updatedAt" db:"updated_at"`
	DeletedAt      *time.Time `json:"deletedAt,omitempty" db:"deleted_at"`
}

// Sprint представляет спринт
type Sprint struct {
	ID          string     `json:"id" db:"id"`
	Name        string     `json:"name" db:"name"`
	Description string     `json:"description" db:"description"`
	Duration    *string    `json:"duration" db:"duration"`
	StartDate   *time.Time `json:"startDate" db:"start_date"`
	EndDate     *time.Time `json:"endDate" db:"end_date"`
	CreatorID   string     `json:"creatorId" db:"creator_id"`
	Status      string     `json:"status" db:"status"`
	CreatedAt   time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time  `json:"updatedAt" db:"updated_at"`
}

// UserIdentity представляет запись о пользователе из любого из двух источников
// (локальная база или внешний провайдер)
type UserIdentity struct {
	ID     string  `json:"id" db:"id"`
	Name   string  `json:"name" db:"name"`
	Email  string  `json:"email" db:"email"`
	Avatar *string `json:"avatar" db:"avatar"`
}

// IssueView представляет задачу в клиентском виде: разрешенные пользователи,
// вложенные дочерние задачи, родитель на один уровень и флаг активного спринта
type IssueView struct {
	Issue
	Assignee       *UserIdentity `json:"assignee"`
	Reporter       *UserIdentity `json:"reporter"`
	Children       []IssueView   `json:"children"`
	Parent         *IssueView    `json:"parent"`
	SprintIsActive bool          `json:"sprintIsActive"`
}
