// identity/resolver.go
package identity

import (
	"context"

	"github.com/Haseeb-Ahmed-Spectreco/JIRA/internal/models"
)

// Source — источник записей о пользователях. Реализации: локальная база
// и внешний провайдер. Каждая реализация сама отвечает за соблюдение
// ограничений своего источника (размер страницы провайдера и т.п.)
type Source interface {
	FetchMany(ctx context.Context, ids []string) ([]models.UserIdentity, error)
}

// Resolve объединяет записи из локальной базы и внешнего провайдера в одну
// мапу по ID пользователя. При совпадении ID непустые поля локальной записи
// имеют приоритет, недостающие добираются из записи провайдера.
// Записи без ID считаются некорректными и пропускаются.
// Resolve предполагает, что оба среза уже получены с учетом ограничений
// источников: постраничная выборка у провайдера — забота вызывающего кода.
func Resolve(local, external []models.UserIdentity) map[string]models.UserIdentity {
	resolved := make(map[string]models.UserIdentity, len(local)+len(external))

	for _, user := range external {
		if user.ID == "" {
			continue
		}
		resolved[user.ID] = user
	}

	for _, user := range local {
		if user.ID == "" {
			continue
		}
		merged, ok := resolved[user.ID]
		if !ok {
			resolved[user.ID] = user
			continue
		}
		// Локальная запись побеждает по заполненным полям,
		// пустые добираются из записи провайдера
		if user.Name != "" {
			merged.Name = user.Name
		}
		if user.Email != "" {
			merged.Email = user.Email
		}
		if user.Avatar != nil {
			merged.Avatar = user.Avatar
		}
		resolved[user.ID] = merged
	}

	return resolved
}
