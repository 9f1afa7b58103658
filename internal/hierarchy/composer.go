// hierarchy/composer.go
package hierarchy

import (
	"go.uber.org/zap"

	"github.com/Haseeb-Ahmed-Spectreco/JIRA/internal/models"
)

// Composer собирает из плоского набора задач клиентское дерево:
// родитель/дети, разрешенные пользователи и флаг активного спринта
type Composer struct {
	logger *zap.Logger
}

// NewComposer создает новый экземпляр сборщика иерархии
func NewComposer(logger *zap.Logger) *Composer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Composer{logger: logger}
}

// Compose строит дерево задач верхнего уровня по плоскому списку.
// Мягко удаленные задачи исключаются до построения; задача, чей родитель
// удален или отсутствует во входном наборе, поднимается на верхний уровень.
// Задачи с зацикленной цепочкой родителей тоже поднимаются на верхний уровень
// с предупреждением в лог, а не валят сборку.
// Порядок детей внутри списка не определяется сборщиком: сортировка по
// boardPosition/sprintPosition — забота вызывающего кода.
func (c *Composer) Compose(issues []models.Issue, identities map[string]models.UserIdentity, activeSprintIDs map[string]struct{}) []models.IssueView {
	live := make([]models.Issue, 0, len(issues))
	for _, issue := range issues {
		if !issue.IsDeleted {
			live = append(live, issue)
		}
	}

	// Индекс по ID строится один раз, чтобы не сканировать список повторно
	index := make(map[string]models.Issue, len(live))
	for _, issue := range live {
		index[issue.ID] = issue
	}

	// Связь "ребенок -> родитель" только для родителей, присутствующих в наборе
	parentOf := make(map[string]string, len(live))
	for _, issue := range live {
		if issue.ParentID != nil {
			if _, ok := index[*issue.ParentID]; ok {
				parentOf[issue.ID] = *issue.ParentID
			}
		}
	}

	// Участники циклов A->B->...->A: их родительская связь разрывается,
	// и каждый участник становится задачей верхнего уровня
	cycleMembers := make(map[string]struct{})
	for _, issue := range live {
		if inParentCycle(issue.ID, parentOf) {
			cycleMembers[issue.ID] = struct{}{}
			c.logger.Warn("обнаружен цикл в цепочке родителей, задача поднята на верхний уровень",
				zap.String("issue_id", issue.ID),
				zap.String("issue_key", issue.Key))
		}
	}
	for id := range cycleMembers {
		delete(parentOf, id)
	}

	// Один проход раскладывает задачи по спискам детей их родителей
	childrenOf := make(map[string][]string, len(live))
	for _, issue := range live {
		if parentID, ok := parentOf[issue.ID]; ok {
			childrenOf[parentID] = append(childrenOf[parentID], issue.ID)
		}
	}

	views := make([]models.IssueView, 0, len(live))
	for _, issue := range live {
		if _, hasParent := parentOf[issue.ID]; hasParent {
			continue
		}
		views = append(views, c.materialize(issue, nil, index, childrenOf, identities, activeSprintIDs))
	}

	return views
}

// ComposeWithParent собирает одну задачу с одним уровнем родительского
// контекста: родитель декорируется без рекурсии в собственного родителя
func (c *Composer) ComposeWithParent(issue models.Issue, parent *models.Issue, identities map[string]models.UserIdentity, activeSprintIDs map[string]struct{}) models.IssueView {
	view := c.decorate(issue, identities, activeSprintIDs)
	if parent != nil && !parent.IsDeleted {
		parentView := c.decorate(*parent, identities, activeSprintIDs)
		view.Parent = &parentView
	}
	return view
}

// materialize рекурсивно разворачивает поддерево задачи. Родительские связи
// к этому моменту ацикличны, поэтому спуск всегда завершается
func (c *Composer) materialize(issue models.Issue, parent *models.Issue, index map[string]models.Issue, childrenOf map[string][]string, identities map[string]models.UserIdentity, activeSprintIDs map[string]struct{}) models.IssueView {
	view := c.decorate(issue, identities, activeSprintIDs)
	if parent != nil {
		parentView := c.decorate(*parent, identities, activeSprintIDs)
		view.Parent = &parentView
	}
	for _, childID := range childrenOf[issue.ID] {
		child, ok := index[childID]
		if !ok {
			continue
		}
		view.Children = append(view.Children, c.materialize(child, &issue, index, childrenOf, identities, activeSprintIDs))
	}
	return view
}

// decorate наполняет клиентское представление задачи разрешенными
// пользователями и флагом активного спринта. Неразрешенные ID дают nil,
// а не ошибку
func (c *Composer) decorate(issue models.Issue, identities map[string]models.UserIdentity, activeSprintIDs map[string]struct{}) models.IssueView {
	view := models.IssueView{
		Issue:    issue,
		Children: []models.IssueView{},
	}

	if issue.AssigneeID != nil {
		if assignee, ok := identities[*issue.AssigneeID]; ok {
			view.Assignee = &assignee
		}
	}
	if reporter, ok := identities[issue.ReporterID]; ok {
		view.Reporter = &reporter
	}
	if issue.SprintID != nil {
		_, view.SprintIsActive = activeSprintIDs[*issue.SprintID]
	}

	return view
}

// inParentCycle проверяет, возвращается ли цепочка родителей задачи к ней самой
func inParentCycle(start string, parentOf map[string]string) bool {
	seen := map[string]struct{}{start: {}}
	current := start
	for {
		parent, ok := parentOf[current]
		if !ok {
			return false
		}
		if parent == start {
			return true
		}
		if _, visited := seen[parent]; visited {
			// Цикл выше по цепочке, но сама задача в него не входит
			return false
		}
		seen[parent] = struct{}{}
		current = parent
	}
}
