package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/Haseeb-Ahmed-Spectreco/JIRA/internal/models"
	"github.com/Haseeb-Ahmed-Spectreco/JIRA/internal/repository"
	"github.com/Haseeb-Ahmed-Spectreco/JIRA/internal/service"
)

// Коды ошибок для API
const (
	ErrCodeInvalidBody = "INVALID_BODY"
	ErrCodeNotFound    = "NOT_FOUND"
	ErrCodeExists      = "ALREADY_EXISTS"
	ErrCodeInternal    = "INTERNAL"
)

type Handler struct {
	service *service.Service
	logger  *zap.Logger
}

// New создает новый экземпляр обработчика
func New(service *service.Service, logger *zap.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// ErrorResponse представляет структуру ошибки API
type ErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// newErrorResponse создает стандартный ответ с ошибкой
func newErrorResponse(code, message string) ErrorResponse {
	var resp ErrorResponse
	resp.Error.Code = code
	resp.Error.Message = message
	return resp
}

// GetIssues возвращает дерево задач, опционально отфильтрованное по создателю
func (h *Handler) GetIssues(c echo.Context) error {
	opts := service.ListOptions{}
	if userID := c.QueryParam("userId"); userID != "" {
		opts.CreatorID = &userID
		if limit, err := strconv.Atoi(c.QueryParam("limit")); err == nil {
			opts.Limit = limit
		}
		if page, err := strconv.Atoi(c.QueryParam("page")); err == nil {
			opts.Page = page
		}
	}

	h.logger.Info("GetIssues: выборка задач",
		zap.Stringp("creator_id", opts.CreatorID),
		zap.Int("limit", opts.Limit),
		zap.Int("page", opts.Page))

	list, err := h.service.ListIssues(c.Request().Context(), opts)
	if err != nil {
		h.logger.Error("GetIssues: ошибка выборки задач", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, newErrorResponse(ErrCodeInternal, "failed to get issues"))
	}

	h.logger.Info("GetIssues: задачи собраны", zap.Int("top_level_count", len(list.Issues)))
	return c.JSON(http.StatusOK, list)
}

// postIssueRequest — тело создания задачи; полезная нагрузка вложена в data
type postIssueRequest struct {
	Data service.CreateIssueInput `json:"data"`
}

// CreateIssue создает задачу с автоматическим ключом и позициями
func (h *Handler) CreateIssue(c echo.Context) error {
	h.logger.Info("CreateIssue: начало обработки запроса")

	var req postIssueRequest
	if err := c.Bind(&req); err != nil {
		h.logger.Error("CreateIssue: ошибка парсинга тела запроса", zap.Error(err))
		return c.JSON(http.StatusBadRequest, newErrorResponse(ErrCodeInvalidBody, "invalid request body"))
	}

	issue, err := h.service.CreateIssue(c.Request().Context(), req.Data)
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			h.logger.Warn("CreateIssue: невалидные данные задачи", zap.Error(err))
			return c.JSON(http.StatusBadRequest, newErrorResponse(ErrCodeInvalidBody, err.Error()))
		}
		h.logger.Error("CreateIssue: ошибка создания задачи", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, newErrorResponse(ErrCodeInternal, "failed to create issue"))
	}

	h.logger.Info("CreateIssue: задача создана",
		zap.String("issue_id", issue.ID),
		zap.String("key", issue.Key))
	return c.JSON(http.StatusCreated, map[string]interface{}{"issue": issue})
}

// patchIssuesRequest — тело массового частичного обновления
type patchIssuesRequest struct {
	IDs        []string `json:"ids"`
	Type       *string  `json:"type"`
	Status     *string  `json:"status"`
	AssigneeID *string  `json:"assigneeId"`
	ReporterID *string  `json:"reporterId"`
	ParentID   *string  `json:"parentId"`
	SprintID   *string  `json:"sprintId"`
	IsDeleted  *bool    `json:"isDeleted"`
}

// UpdateIssues применяет одно частичное обновление к набору задач
func (h *Handler) UpdateIssues(c echo.Context) error {
	h.logger.Info("UpdateIssues: начало обработки запроса")

	var req patchIssuesRequest
	if err := c.Bind(&req); err != nil {
		h.logger.Error("UpdateIssues: ошибка парсинга тела запроса", zap.Error(err))
		return c.JSON(http.StatusBadRequest, newErrorResponse(ErrCodeInvalidBody, "invalid request body"))
	}

	fields := repository.IssueUpdate{
		Type:       req.Type,
		Status:     req.Status,
		AssigneeID: req.AssigneeID,
		ReporterID: req.ReporterID,
		ParentID:   req.ParentID,
		SprintID:   req.SprintID,
		IsDeleted:  req.IsDeleted,
	}

	issues, err := h.service.UpdateIssues(c.Request().Context(), req.IDs, fields)
	if err != nil {
		if errors.Is(err, service.ErrValidation) || errors.Is(err, repository.ErrInvalidInput) {
			h.logger.Warn("UpdateIssues: невалидные данные", zap.Error(err))
			return c.JSON(http.StatusBadRequest, newErrorResponse(ErrCodeInvalidBody, "invalid update fields"))
		}
		h.logger.Error("UpdateIssues: ошибка обновления задач", zap.Error(err), zap.Strings("ids", req.IDs))
		return c.JSON(http.StatusInternalServerError, newErrorResponse(ErrCodeInternal, "failed to update issues"))
	}

	h.logger.Info("UpdateIssues: задачи обновлены", zap.Int("updated_count", len(issues)))
	return c.JSON(http.StatusOK, map[string]interface{}{"issues": issues})
}

// GetIssue возвращает одну задачу с одним уровнем родительского контекста.
// Отсутствующая задача отдается как {"issue": null}, а не ошибкой
func (h *Handler) GetIssue(c echo.Context) error {
	issueID := c.Param("issueId")
	h.logger.Info("GetIssue: получение задачи", zap.String("issue_id", issueID))

	view, err := h.service.GetIssue(c.Request().Context(), issueID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			h.logger.Warn("GetIssue: задача не найдена", zap.String("issue_id", issueID))
			return c.JSON(http.StatusOK, map[string]interface{}{"issue": nil})
		}
		h.logger.Error("GetIssue: ошибка получения задачи", zap.Error(err), zap.String("issue_id", issueID))
		return c.JSON(http.StatusInternalServerError, newErrorResponse(ErrCodeInternal, "failed to get issue"))
	}

	return c.JSON(http.StatusOK, map[string]interface{}{"issue": view})
}

// patchIssueRequest — тело частичного обновления одной задачи
type patchIssueRequest struct {
	Name           *string  `json:"name"`
	Description    *string  `json:"description"`
	Details        *string  `json:"details"`
	Type           *string  `json:"type"`
	Status         *string  `json:"status"`
	SprintPosition *float64 `json:"sprintPosition"`
	BoardPosition  *float64 `json:"boardPosition"`
	AssigneeID     *string  `json:"assigneeId"`
	ReporterID     *string  `json:"reporterId"`
	ParentID       *string  `json:"parentId"`
	SprintID       *string  `json:"sprintId"`
	SprintColor    *string  `json:"sprintColor"`
	IsDeleted      *bool    `json:"isDeleted"`
}

// UpdateIssue частично обновляет задачу и возвращает ее с разрешенным исполнителем
func (h *Handler) UpdateIssue(c echo.Context) error {
	issueID := c.Param("issueId")
	h.logger.Info("UpdateIssue: начало обработки запроса", zap.String("issue_id", issueID))

	var req patchIssueRequest
	if err := c.Bind(&req); err != nil {
		h.logger.Error("UpdateIssue: ошибка парсинга тела запроса", zap.Error(err))
		return c.JSON(http.StatusBadRequest, newErrorResponse(ErrCodeInvalidBody, "invalid request body"))
	}

	fields := repository.IssueUpdate{
		Name:           req.Name,
		Description:    req.Description,
		Details:        req.Details,
		Type:           req.Type,
		Status:         req.Status,
		SprintPosition: req.SprintPosition,
		BoardPosition:  req.BoardPosition,
		AssigneeID:     req.AssigneeID,
		ReporterID:     req.ReporterID,
		ParentID:       req.ParentID,
		SprintID:       req.SprintID,
		SprintColor:    req.SprintColor,
		IsDeleted:      req.IsDeleted,
	}

	view, err := h.service.UpdateIssue(c.Request().Context(), issueID, fields)
	if err != nil {
		if errors.Is(err, service.ErrValidation) || errors.Is(err, repository.ErrInvalidInput) {
			h.logger.Warn("UpdateIssue: невалидные данные", zap.Error(err))
			return c.JSON(http.StatusBadRequest, newErrorResponse(ErrCodeInvalidBody, "invalid update fields"))
		}
		if errors.Is(err, repository.ErrNotFound) {
			h.logger.Warn("UpdateIssue: задача не найдена", zap.String("issue_id", issueID))
			return c.JSON(http.StatusNotFound, newErrorResponse(ErrCodeNotFound, "issue not found"))
		}
		h.logger.Error("UpdateIssue: ошибка обновления задачи", zap.Error(err), zap.String("issue_id", issueID))
		return c.JSON(http.StatusInternalServerError, newErrorResponse(ErrCodeInternal, "failed to update issue"))
	}

	h.logger.Info("UpdateIssue: задача обновлена", zap.String("issue_id", issueID))
	return c.JSON(http.StatusOK, map[string]interface{}{"issue": view})
}

// DeleteIssue мягко удаляет задачу: позиции сбрасываются, спринт
// перепривязывается к заглушке
func (h *Handler) DeleteIssue(c echo.Context) error {
	issueID := c.Param("issueId")
	h.logger.Info("DeleteIssue: мягкое удаление задачи", zap.String("issue_id", issueID))

	issue, err := h.service.SoftDeleteIssue(c.Request().Context(), issueID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			h.logger.Warn("DeleteIssue: задача не найдена", zap.String("issue_id", issueID))
			return c.JSON(http.StatusNotFound, newErrorResponse(ErrCodeNotFound, "issue not found"))
		}
		h.logger.Error("DeleteIssue: ошибка удаления задачи", zap.Error(err), zap.String("issue_id", issueID))
		return c.JSON(http.StatusInternalServerError, newErrorResponse(ErrCodeInternal, "failed to delete issue"))
	}

	h.logger.Info("DeleteIssue: задача помечена удаленной", zap.String("issue_id", issueID))
	return c.JSON(http.StatusOK, map[string]interface{}{"issue": issue})
}

// deleteIssuesRequest — тело массового физического удаления
type deleteIssuesRequest struct {
	IDs []string `json:"ids"`
}

// DeleteIssues физически удаляет набор задач
func (h *Handler) DeleteIssues(c echo.Context) error {
	h.logger.Info("DeleteIssues: начало обработки запроса")

	var req deleteIssuesRequest
	if err := c.Bind(&req); err != nil {
		h.logger.Error("DeleteIssues: ошибка парсинга тела запроса", zap.Error(err))
		return c.JSON(http.StatusBadRequest, newErrorResponse(ErrCodeInvalidBody, "invalid request body"))
	}

	count, err := h.service.DeleteIssues(c.Request().Context(), req.IDs)
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			return c.JSON(http.StatusBadRequest, newErrorResponse(ErrCodeInvalidBody, err.Error()))
		}
		h.logger.Error("DeleteIssues: ошибка удаления задач", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, newErrorResponse(ErrCodeInternal, "failed to delete issues"))
	}

	h.logger.Info("DeleteIssues: задачи удалены", zap.Int64("deleted_count", count))
	return c.JSON(http.StatusOK, map[string]interface{}{"count": count})
}

// GetSprints возвращает активные и ожидающие спринты
func (h *Handler) GetSprints(c echo.Context) error {
	sprints, err := h.service.ListSprints(c.Request().Context())
	if err != nil {
		h.logger.Error("GetSprints: ошибка получения спринтов", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, newErrorResponse(ErrCodeInternal, "failed to get sprints"))
	}

	return c.JSON(http.StatusOK, map[string]interface{}{"sprints": sprints})
}

// postSprintRequest — тело создания спринта
type postSprintRequest struct {
	UserID string `json:"userId"`
}

// CreateSprint создает спринт с автоименем
func (h *Handler) CreateSprint(c echo.Context) error {
	h.logger.Info("CreateSprint: начало обработки запроса")

	var req postSprintRequest
	if err := c.Bind(&req); err != nil {
		h.logger.Error("CreateSprint: ошибка парсинга тела запроса", zap.Error(err))
		return c.JSON(http.StatusBadRequest, newErrorResponse(ErrCodeInvalidBody, "invalid request body"))
	}

	sprint, err := h.service.CreateSprint(c.Request().Context(), req.UserID)
	if err != nil {
		h.logger.Error("CreateSprint: ошибка создания спринта", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, newErrorResponse(ErrCodeInternal, "failed to create sprint"))
	}

	h.logger.Info("CreateSprint: спринт создан",
		zap.String("sprint_id", sprint.ID),
		zap.String("name", sprint.Name))
	return c.JSON(http.StatusCreated, map[string]interface{}{"sprint": sprint})
}

// CreateUser создает локального пользователя
func (h *Handler) CreateUser(c echo.Context) error {
	h.logger.Info("CreateUser: начало обработки запроса")

	var req models.UserIdentity
	if err := c.Bind(&req); err != nil {
		h.logger.Error("CreateUser: ошибка парсинга тела запроса", zap.Error(err))
		return c.JSON(http.StatusBadRequest, newErrorResponse(ErrCodeInvalidBody, "invalid request body"))
	}

	user, err := h.service.CreateUser(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			return c.JSON(http.StatusBadRequest, newErrorResponse(ErrCodeInvalidBody, err.Error()))
		}
		if errors.Is(err, repository.ErrAlreadyExists) {
			h.logger.Warn("CreateUser: пользователь уже существует", zap.String("user_id", req.ID))
			return c.JSON(http.StatusConflict, newErrorResponse(ErrCodeExists, "user already exists"))
		}
		h.logger.Error("CreateUser: ошибка создания пользователя", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, newErrorResponse(ErrCodeInternal, "failed to create user"))
	}

	h.logger.Info("CreateUser: пользователь создан", zap.String("user_id", user.ID))
	return c.JSON(http.StatusOK, map[string]interface{}{"user": user})
}

// GetUsers возвращает всех локальных пользователей
func (h *Handler) GetUsers(c echo.Context) error {
	users, err := h.service.ListUsers(c.Request().Context())
	if err != nil {
		h.logger.Error("GetUsers: ошибка получения пользователей", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, newErrorResponse(ErrCodeInternal, "failed to get users"))
	}

	return c.JSON(http.StatusOK, map[string]interface{}{"user": users})
}

// GetUser возвращает локального пользователя по ID
func (h *Handler) GetUser(c echo.Context) error {
	userID := c.Param("user_id")
	h.logger.Info("GetUser: получение пользователя", zap.String("user_id", userID))

	user, err := h.service.GetUser(c.Request().Context(), userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusOK, map[string]interface{}{"user": nil})
		}
		h.logger.Error("GetUser: ошибка получения пользователя", zap.Error(err), zap.String("user_id", userID))
		return c.JSON(http.StatusInternalServerError, newErrorResponse(ErrCodeInternal, "failed to get user"))
	}

	return c.JSON(http.StatusOK, map[string]interface{}{"user": user})
}

// RegisterRoutes регистрирует все маршруты API
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Issues
	e.GET("/api/issues", h.GetIssues)
	e.POST("/api/issues", h.CreateIssue)
	e.PATCH("/api/issues", h.UpdateIssues)
	e.DELETE("/api/issues", h.DeleteIssues)
	e.GET("/api/issues/:issueId", h.GetIssue)
	e.PATCH("/api/issues/:issueId", h.UpdateIssue)
	e.DELETE("/api/issues/:issueId", h.DeleteIssue)

	// Sprints
	e.GET("/api/sprints", h.GetSprints)
	e.POST("/api/sprints", h.CreateSprint)

	// Users
	e.GET("/api/user", h.GetUsers)
	e.POST("/api/user", h.CreateUser)
	e.GET("/api/user/:user_id", h.GetUser)
}
